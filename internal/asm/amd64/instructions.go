package amd64

import (
	"fmt"
	"math"

	"github.com/tinyrange/jitcall/internal/asm"
)

func Push(reg Reg) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodePush(reg) })
}

func Pop(reg Reg) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodePop(reg) })
}

// PushImm pushes a sign-extended 32-bit immediate as an 8-byte stack slot.
func PushImm(value int32) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodePushImm(value), nil })
}

// MovImmediate loads value into dst. A 64-bit destination always uses the
// ten byte movabs form so the immediate can be patched later.
func MovImmediate(dst Reg, value int64) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeMovRegImm(dst, value) })
}

func MovReg(dst, src Reg) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeMovRegReg(dst, src) })
}

func MovToMemory(mem Memory, src Reg) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeMovMemReg(mem, src) })
}

func MovFromMemory(dst Reg, mem Memory) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeMovRegMem(dst, mem) })
}

func MovStoreImm8(mem Memory, value byte) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeMovMemImm(mem, size8, int32(int8(value))) })
}

func MovStoreImm16(mem Memory, value uint16) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeMovMemImm(mem, size16, int32(int16(value))) })
}

func MovStoreImm32(mem Memory, value uint32) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeMovMemImm(mem, size32, int32(value)) })
}

// MovStoreImm64 stores a sign-extended 32-bit immediate into a quadword.
func MovStoreImm64(mem Memory, value int64) asm.Fragment {
	return encoded(func() ([]byte, error) {
		if value < math.MinInt32 || value > math.MaxInt32 {
			return nil, fmt.Errorf("immediate 0x%x does not fit a sign-extended imm32", value)
		}
		return encodeMovMemImm(mem, size64, int32(value))
	})
}

func AddRegImm(reg Reg, value int32) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeAddRegImm(reg, value) })
}

func SubRegImm(reg Reg, value int32) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeSubRegImm(reg, value) })
}

func AddRegReg(dst, src Reg) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeAddRegReg(dst, src) })
}

func SubRegReg(dst, src Reg) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeSubRegReg(dst, src) })
}

func XorRegReg(dst, src Reg) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeXorRegReg(dst, src) })
}

// DivReg divides rdx:rax (edx:eax, ...) by reg as an unsigned value.
func DivReg(reg Reg) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeDivReg(reg) })
}

// IDivReg is the signed variant of DivReg.
func IDivReg(reg Reg) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeIDivReg(reg) })
}

func CallReg(target Reg) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeCallReg(target) })
}

func JmpReg(target Reg) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeJmpReg(target) })
}

func Ret() asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeRet(), nil })
}

// RetImm returns and releases pop bytes of caller arguments.
func RetImm(pop uint16) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeRetImm(pop), nil })
}

// MovXmmFromReg copies a 32 or 64-bit general register into the low lane of dst.
func MovXmmFromReg(dst XMM, src Reg) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeMovXmmReg(dst, src) })
}

// MovRegFromXmm copies the low 32 or 64 bits of src into dst.
func MovRegFromXmm(dst Reg, src XMM) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeMovRegXmm(dst, src) })
}
