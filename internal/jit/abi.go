package jit

import (
	"fmt"
	"runtime"
	"strings"
)

// RegClass partitions argument registers.
type RegClass uint8

const (
	ClassInt RegClass = iota
	ClassFloat
)

func (c RegClass) String() string {
	if c == ClassFloat {
		return "float"
	}
	return "int"
}

// Register is one physical argument register.
type Register struct {
	Name string
	// Code is the architecture's register number.
	Code uint8
	// Extended is set for registers that need an encoding extension
	// (REX.B on amd64) to be addressed.
	Extended bool
	Class    RegClass
}

func (r Register) String() string {
	return r.Name
}

// Arch names an instruction set.
type Arch string

const (
	ArchAMD64 Arch = "amd64"
	ArchARM64 Arch = "arm64"
)

// HostArch returns the architecture of the running process.
func HostArch() Arch {
	return Arch(runtime.GOARCH)
}

// CallingConvention selects an ABI variant. Native resolves to the host's
// default convention for the architecture.
type CallingConvention uint8

const (
	Native CallingConvention = iota
	SysV
	Win64
	AAPCS64
	DarwinARM64
)

var conventionNames = map[CallingConvention]string{
	Native:      "native",
	SysV:        "sysv",
	Win64:       "win64",
	AAPCS64:     "aapcs64",
	DarwinARM64: "darwin-arm64",
}

func (c CallingConvention) String() string {
	if name, ok := conventionNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CallingConvention(%d)", uint8(c))
}

// ParseCallingConvention accepts the names printed by String.
func ParseCallingConvention(s string) (CallingConvention, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "native", "default":
		return Native, nil
	case "sysv", "systemv", "sysv64":
		return SysV, nil
	case "win64", "windows", "ms64":
		return Win64, nil
	case "aapcs64", "aapcs":
		return AAPCS64, nil
	case "darwin-arm64", "apple-arm64", "darwin":
		return DarwinARM64, nil
	}
	return 0, fmt.Errorf("unknown calling convention %q: %w", s, ErrUnsupportedConvention)
}

// Cleanup says who removes stack arguments after the call.
type Cleanup uint8

const (
	CallerCleanup Cleanup = iota
	CalleeCleanup
)

// ABI is one calling convention's register table and stack rules.
type ABI struct {
	Name       string
	Convention CallingConvention
	IntArgs    []Register
	FloatArgs  []Register
	// SharedSlots makes the integer and float cursors advance together: the
	// N-th argument uses the N-th register of its class or the stack.
	SharedSlots bool
	// FrameReserve is the local area the prologue subtracts from the stack
	// pointer and the epilogue adds back.
	FrameReserve int32
	// ShadowSpace is the area reserved directly above the return address
	// for the callee to home register arguments.
	ShadowSpace int32
	StackAlign  int32
	// SlotSize is the width every stack argument occupies.
	SlotSize int32
	Cleanup  Cleanup
	// Scratch holds the call target. It never carries an argument.
	Scratch Register
	// VectorCount passes the number of vector registers used in the low
	// byte of the return register, for variadic callees.
	VectorCount bool
	// PackedStack lays stack arguments out at their natural size rather than
	// in SlotSize slots.
	PackedStack bool
}

// Clone returns a deep copy so callers can derive variants from the
// immutable tables.
func (a ABI) Clone() ABI {
	a.IntArgs = append([]Register(nil), a.IntArgs...)
	a.FloatArgs = append([]Register(nil), a.FloatArgs...)
	return a
}

// Registers returns the argument registers of class c.
func (a ABI) Registers(c RegClass) []Register {
	if c == ClassFloat {
		return a.FloatArgs
	}
	return a.IntArgs
}

func alignUp(v, align int32) int32 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}
