package arm64

import (
	"fmt"

	"github.com/tinyrange/jitcall/internal/asm"
)

// MovImmediate loads value into dst. Narrow destinations are zero-extended.
func MovImmediate(dst Reg, value int64) asm.Fragment {
	return words(func() ([]uint32, error) {
		if err := dst.validate(); err != nil {
			return nil, err
		}
		switch dst.size {
		case size64:
			return encodeMovImmediate(dst, uint64(value))
		case size32:
			return encodeMovImmediate(Reg64(dst.id), uint64(uint32(value)))
		default:
			return nil, fmt.Errorf("arm64 asm: unsupported immediate width %d", dst.size)
		}
	})
}

func MovReg(dst, src Reg) asm.Fragment {
	return word(func() (uint32, error) {
		if err := dst.validate(); err != nil {
			return 0, err
		}
		if err := src.validate(); err != nil {
			return 0, err
		}
		return encodeMoveReg(dst, src)
	})
}

// MovRegFromSP copies the stack pointer into dst. ARM64 treats the SP
// register differently from general-purpose registers, so MOV cannot use it
// as a source operand.
func MovRegFromSP(dst Reg) asm.Fragment {
	return word(func() (uint32, error) {
		if err := dst.validate(); err != nil {
			return 0, err
		}
		return encodeAddImm64(dst, Reg64(SP), 0)
	})
}

func AddRegImm(dst Reg, value uint16) asm.Fragment {
	return word(func() (uint32, error) {
		if err := dst.validate(); err != nil {
			return 0, err
		}
		return encodeAddImm64(dst, dst, value)
	})
}

func SubRegImm(dst Reg, value uint16) asm.Fragment {
	return word(func() (uint32, error) {
		if err := dst.validate(); err != nil {
			return 0, err
		}
		return encodeSubImm64(dst, dst, value)
	})
}

// MovToMemory stores src at mem. The displacement must be a non-negative
// multiple of the register width.
func MovToMemory(mem Memory, src Reg) asm.Fragment {
	return word(func() (uint32, error) {
		if err := src.validate(); err != nil {
			return 0, err
		}
		return encodeLoadStoreUnsigned(src, mem, true)
	})
}

func MovFromMemory(dst Reg, mem Memory) asm.Fragment {
	return word(func() (uint32, error) {
		if err := dst.validate(); err != nil {
			return 0, err
		}
		return encodeLoadStoreUnsigned(dst, mem, false)
	})
}

// PushPair stores first and second below SP and moves SP down by 16
// (STP first, second, [sp, #-16]!).
func PushPair(first, second Reg) asm.Fragment {
	return word(func() (uint32, error) {
		return encodePairIndexed(first, second, Reg64(SP), -16, false, true)
	})
}

// PopPair is the inverse of PushPair (LDP first, second, [sp], #16).
func PopPair(first, second Reg) asm.Fragment {
	return word(func() (uint32, error) {
		return encodePairIndexed(first, second, Reg64(SP), 16, true, false)
	})
}

// DivReg is an unsigned divide: dst = left / right.
func DivReg(dst, left, right Reg) asm.Fragment {
	return word(func() (uint32, error) { return encodeDivReg(dst, left, right, false) })
}

// SDivReg is a signed divide: dst = left / right.
func SDivReg(dst, left, right Reg) asm.Fragment {
	return word(func() (uint32, error) { return encodeDivReg(dst, left, right, true) })
}

func CallReg(target Reg) asm.Fragment {
	return word(func() (uint32, error) { return encodeBranchReg(0xD63F0000, target) })
}

func JumpReg(target Reg) asm.Fragment {
	return word(func() (uint32, error) { return encodeBranchReg(0xD61F0000, target) })
}

func Ret() asm.Fragment {
	return word(func() (uint32, error) { return 0xD65F03C0, nil })
}

// FmovToVector copies a W register into S(dst) or an X register into D(dst).
func FmovToVector(dst VReg, src Reg) asm.Fragment {
	return word(func() (uint32, error) {
		if err := src.validate(); err != nil {
			return 0, err
		}
		return encodeFmovToVector(dst, src)
	})
}

// FmovFromVector copies S(src) into a W register or D(src) into an X register.
func FmovFromVector(dst Reg, src VReg) asm.Fragment {
	return word(func() (uint32, error) {
		if err := dst.validate(); err != nil {
			return 0, err
		}
		return encodeFmovFromVector(dst, src)
	})
}
