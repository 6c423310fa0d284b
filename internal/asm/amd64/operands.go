package amd64

import (
	"fmt"
	"strings"

	"github.com/tinyrange/jitcall/internal/asm"
)

// operandSize is a register or store width in bits.
type operandSize uint8

const (
	size8  operandSize = 8
	size16 operandSize = 16
	size32 operandSize = 32
	size64 operandSize = 64
)

// Reg is a general-purpose register viewed at one width. The same hardware
// register appears as al, ax, eax or rax depending on the width.
type Reg struct {
	id   asm.Variable
	size operandSize
}

func Reg64(id asm.Variable) Reg { return Reg{id: id, size: size64} }
func Reg32(id asm.Variable) Reg { return Reg{id: id, size: size32} }
func Reg16(id asm.Variable) Reg { return Reg{id: id, size: size16} }
func Reg8(id asm.Variable) Reg  { return Reg{id: id, size: size8} }

// Bits returns the operand width.
func (r Reg) Bits() int { return int(r.size) }

func (r Reg) String() string {
	return fmt.Sprintf("%s/%d", RegisterName(r.id), r.size)
}

// Memory is a [base + index*scale + disp] effective address. The index is
// optional; the base is not.
type Memory struct {
	base  Reg
	index *Reg
	scale uint8
	disp  int32
}

// Mem addresses [base].
func Mem(base Reg) Memory {
	return Memory{base: base, scale: 1}
}

// MemIndex addresses [base + index*scale]. A zero scale means 1.
func MemIndex(base Reg, index Reg, scale uint8) Memory {
	if scale == 0 {
		scale = 1
	}
	return Memory{base: base, index: &index, scale: scale}
}

// WithDisp replaces the displacement.
func (m Memory) WithDisp(disp int32) Memory {
	m.disp = disp
	return m
}

func (m Memory) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	sb.WriteString(RegisterName(m.base.id))
	if m.index != nil {
		fmt.Fprintf(&sb, "+%s*%d", RegisterName(m.index.id), m.scale)
	}
	if m.disp != 0 {
		fmt.Fprintf(&sb, "%+d", m.disp)
	}
	sb.WriteByte(']')
	return sb.String()
}

func (m Memory) validate() error {
	if m.base.size != size64 {
		return fmt.Errorf("%s: base must be a 64-bit register", m)
	}
	if m.index == nil {
		return nil
	}
	if m.index.size != size64 {
		return fmt.Errorf("%s: index must be a 64-bit register", m)
	}
	switch m.scale {
	case 1, 2, 4, 8:
		return nil
	}
	return fmt.Errorf("%s: scale must be 1, 2, 4 or 8", m)
}

type fragmentFunc func(asm.Context) error

func (f fragmentFunc) Emit(ctx asm.Context) error { return f(ctx) }

// encoded appends the instruction only when encode succeeds, so a failed
// fragment leaves the buffer untouched.
func encoded(encode func() ([]byte, error)) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		bytes, err := encode()
		if err != nil {
			return err
		}
		ctx.EmitBytes(bytes)
		return nil
	})
}
