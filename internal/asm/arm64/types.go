package arm64

import (
	"encoding/binary"
	"fmt"

	"github.com/tinyrange/jitcall/internal/asm"
)

// General-purpose registers by hardware number. SP shares encoding 31 with
// the zero register; the instructions used here only ever read it as SP.
const (
	X0 asm.Variable = iota
	X1
	X2
	X3
	X4
	X5
	X6
	X7
	X8
	X9
	X10
	X11
	X12
	X13
	X14
	X15
	X16
	X17
	X18
	X19
	X20
	X21
	X22
	X23
	X24
	X25
	X26
	X27
	X28
	X29
	X30
	SP
)

// Frame pointer and link register aliases.
const (
	FP = X29
	LR = X30
)

// VReg identifies a SIMD/floating-point register.
type VReg uint8

const (
	V0 VReg = iota
	V1
	V2
	V3
	V4
	V5
	V6
	V7
	V8
	V9
	V10
	V11
	V12
	V13
	V14
	V15
	V16
	V17
	V18
	V19
	V20
	V21
	V22
	V23
	V24
	V25
	V26
	V27
	V28
	V29
	V30
	V31
)

func (v VReg) String() string {
	return fmt.Sprintf("v%d", uint8(v))
}

// RegisterName returns the assembler name of a 64-bit register.
func RegisterName(id asm.Variable) string {
	switch {
	case id == SP:
		return "sp"
	case id >= X0 && id < SP:
		return fmt.Sprintf("x%d", int(id))
	}
	return fmt.Sprintf("x?%d", int(id))
}

type operandSize uint8

const (
	size32 operandSize = 32
	size64 operandSize = 64
)

// Reg stores the logical register plus the width used by the instruction.
type Reg struct {
	id   asm.Variable
	size operandSize
}

func (r Reg) validate() error {
	if r.id < X0 || r.id > SP {
		return fmt.Errorf("arm64: invalid register %d", r.id)
	}
	switch r.size {
	case size32, size64:
		return nil
	default:
		return fmt.Errorf("arm64: unsupported register width %d", r.size)
	}
}

func Reg32(id asm.Variable) Reg { return Reg{id: id, size: size32} }
func Reg64(id asm.Variable) Reg { return Reg{id: id, size: size64} }

func (r Reg) String() string {
	if r.id == SP {
		return "sp"
	}
	if r.size == size32 {
		return fmt.Sprintf("w%d", int(r.id))
	}
	return RegisterName(r.id)
}

// Memory is [base, #disp]. The displacement is unsigned and must be a
// multiple of the access width.
type Memory struct {
	base Reg
	disp int32
}

func Mem(base Reg) Memory {
	return Memory{base: base}
}

func (m Memory) WithDisp(disp int32) Memory {
	m.disp = disp
	return m
}

func (m Memory) validate() error {
	if m.base.size != size64 {
		return fmt.Errorf("arm64 asm: base %s must be a 64-bit register", m.base)
	}
	return m.base.validate()
}

type fragmentFunc func(asm.Context) error

func (f fragmentFunc) Emit(ctx asm.Context) error {
	return f(ctx)
}

// words wraps an encoder producing one or more instruction words. Nothing is
// emitted unless every word encoded.
func words(encode func() ([]uint32, error)) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		ws, err := encode()
		if err != nil {
			return err
		}
		out := make([]byte, 0, 4*len(ws))
		for _, w := range ws {
			out = binary.LittleEndian.AppendUint32(out, w)
		}
		ctx.EmitBytes(out)
		return nil
	})
}

func word(encode func() (uint32, error)) asm.Fragment {
	return words(func() ([]uint32, error) {
		w, err := encode()
		if err != nil {
			return nil, err
		}
		return []uint32{w}, nil
	})
}

// EmitProgram lowers a fragment into machine code for AArch64.
func EmitProgram(fragment asm.Fragment) (asm.Program, error) {
	if fragment == nil {
		return asm.Program{}, fmt.Errorf("arm64 asm: fragment is nil")
	}
	buf := asm.NewBuffer()
	if err := buf.Emit(fragment); err != nil {
		return asm.Program{}, err
	}
	return buf.Seal(), nil
}

// EmitBytes is a convenience helper returning the raw instruction stream for a fragment.
func EmitBytes(fragment asm.Fragment) ([]byte, error) {
	prog, err := EmitProgram(fragment)
	if err != nil {
		return nil, err
	}
	return prog.Bytes(), nil
}
