package amd64

import (
	"fmt"

	"github.com/tinyrange/jitcall/internal/asm"
)

// General-purpose registers, numbered by their hardware encoding. Bit 3 of
// the number is the REX.B/REX.R extension bit.
const (
	RAX asm.Variable = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

var gpNames = [...]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

// RegisterName returns the 64-bit assembler name of a general-purpose register.
func RegisterName(id asm.Variable) string {
	if id < RAX || id > R15 {
		return fmt.Sprintf("r?%d", int(id))
	}
	return gpNames[id]
}

// XMM identifies an SSE register.
type XMM uint8

const (
	X0 XMM = iota
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
)

func (x XMM) String() string {
	return fmt.Sprintf("xmm%d", uint8(x))
}

type registerCode struct {
	code byte
	high bool
	// byteRex is set for SPL/BPL/SIL/DIL, which are only reachable as 8-bit
	// operands when some REX prefix is present.
	byteRex bool
}

func regInfo(v asm.Variable) (registerCode, error) {
	if v < RAX || v > R15 {
		return registerCode{}, fmt.Errorf("unsupported register %d", v)
	}
	return registerCode{
		code:    byte(v) & 7,
		high:    v >= R8,
		byteRex: v >= RSP && v <= RDI,
	}, nil
}

func xmmInfo(x XMM) (registerCode, error) {
	if x > X15 {
		return registerCode{}, fmt.Errorf("unsupported xmm register %d", x)
	}
	return registerCode{code: byte(x) & 7, high: x >= X8}, nil
}

// IsExtended reports whether the register can only be encoded with a REX
// extension bit.
func IsExtended(id asm.Variable) bool {
	return id >= R8 && id <= R15
}
