package arm64

import (
	"encoding/binary"
	"testing"

	"github.com/tinyrange/jitcall/internal/asm"
)

func expectWords(t *testing.T, name string, frag asm.Fragment, want ...uint32) {
	t.Helper()
	code, err := EmitBytes(frag)
	if err != nil {
		t.Fatalf("%s: emit failed: %v", name, err)
	}
	if len(code) != 4*len(want) {
		t.Fatalf("%s: emitted %d bytes, want %d", name, len(code), 4*len(want))
	}
	for i, w := range want {
		if got := binary.LittleEndian.Uint32(code[4*i:]); got != w {
			t.Fatalf("%s: word %d=0x%08x, want 0x%08x", name, i, got, w)
		}
	}
}

func TestEncodeExact(t *testing.T) {
	expectWords(t, "stp x29, x30, [sp, #-16]!", PushPair(Reg64(FP), Reg64(LR)), 0xA9BF7BFD)
	expectWords(t, "ldp x29, x30, [sp], #16", PopPair(Reg64(FP), Reg64(LR)), 0xA8C17BFD)
	expectWords(t, "mov x29, sp", MovRegFromSP(Reg64(FP)), 0x910003FD)
	expectWords(t, "sub sp, sp, #32", SubRegImm(Reg64(SP), 32), 0xD10083FF)
	expectWords(t, "add sp, sp, #32", AddRegImm(Reg64(SP), 32), 0x910083FF)
	expectWords(t, "mov x0, #42", MovImmediate(Reg64(X0), 42), 0xD2800540)
	expectWords(t, "mov x0, #0", MovImmediate(Reg64(X0), 0), 0xD2800000)
	expectWords(t, "mov x1, 0x10000", MovImmediate(Reg64(X1), 0x10000), 0xD2800001, 0xF2A00021)
	expectWords(t, "mov w2, -1", MovImmediate(Reg32(X2), -1), 0xD29FFFE2, 0xF2BFFFE2)
	expectWords(t, "mov x16, -1", MovImmediate(Reg64(X16), -1), 0xD29FFFF0, 0xF2BFFFF0, 0xF2DFFFF0, 0xF2FFFFF0)
	expectWords(t, "mov x2, x1", MovReg(Reg64(X2), Reg64(X1)), 0xAA0103E2)
	expectWords(t, "str x16, [sp, #8]", MovToMemory(Mem(Reg64(SP)).WithDisp(8), Reg64(X16)), 0xF90007F0)
	expectWords(t, "ldr x0, [x1]", MovFromMemory(Reg64(X0), Mem(Reg64(X1))), 0xF9400020)
	expectWords(t, "str w1, [x2, #4]", MovToMemory(Mem(Reg64(X2)).WithDisp(4), Reg32(X1)), 0xB9000441)
	expectWords(t, "udiv x0, x1, x2", DivReg(Reg64(X0), Reg64(X1), Reg64(X2)), 0x9AC20820)
	expectWords(t, "sdiv w0, w1, w2", SDivReg(Reg32(X0), Reg32(X1), Reg32(X2)), 0x1AC20C20)
	expectWords(t, "blr x16", CallReg(Reg64(X16)), 0xD63F0200)
	expectWords(t, "br x17", JumpReg(Reg64(X17)), 0xD61F0220)
	expectWords(t, "ret", Ret(), 0xD65F03C0)
	expectWords(t, "fmov d0, x16", FmovToVector(V0, Reg64(X16)), 0x9E670200)
	expectWords(t, "fmov s1, w16", FmovToVector(V1, Reg32(X16)), 0x1E270201)
	expectWords(t, "fmov x0, d0", FmovFromVector(Reg64(X0), V0), 0x9E660000)
	expectWords(t, "fmov w0, s0", FmovFromVector(Reg32(X0), V0), 0x1E260000)
}

func TestEncodeRejects(t *testing.T) {
	cases := []struct {
		name string
		frag asm.Fragment
	}{
		{"add imm too large", AddRegImm(Reg64(SP), 0x1000)},
		{"misaligned store", MovToMemory(Mem(Reg64(SP)).WithDisp(4), Reg64(X0))},
		{"store offset range", MovToMemory(Mem(Reg64(SP)).WithDisp(8*0x1000), Reg64(X0))},
		{"negative store", MovToMemory(Mem(Reg64(SP)).WithDisp(-8), Reg64(X0))},
		{"mov into sp", MovImmediate(Reg64(SP), 1)},
		{"blr sp", CallReg(Reg64(SP))},
		{"blr w", CallReg(Reg32(X1))},
		{"fmov v32", FmovToVector(VReg(32), Reg64(X0))},
		{"mixed div", DivReg(Reg64(X0), Reg32(X1), Reg64(X2))},
		{"bad register", MovReg(Reg64(asm.Variable(40)), Reg64(X0))},
	}

	for _, tc := range cases {
		buf := asm.NewBuffer()
		if err := buf.Emit(tc.frag); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if buf.Len() != 0 {
			t.Fatalf("%s: %d bytes emitted after failure", tc.name, buf.Len())
		}
	}
}
