package amd64

import (
	"strconv"

	"github.com/tinyrange/jitcall/internal/jit"
)

func intReg(name string, code uint8) jit.Register {
	return jit.Register{Name: name, Code: code, Extended: code >= 8, Class: jit.ClassInt}
}

func xmmReg(code uint8) jit.Register {
	return jit.Register{Name: "xmm" + strconv.Itoa(int(code)), Code: code, Extended: code >= 8, Class: jit.ClassFloat}
}

// frameReserve is subtracted in the prologue. Together with the saved frame
// pointer it keeps the stack 16-byte aligned at the call.
const frameReserve = 0x20

var (
	rcx = intReg("rcx", 1)
	rdx = intReg("rdx", 2)
	rsi = intReg("rsi", 6)
	rdi = intReg("rdi", 7)
	r8  = intReg("r8", 8)
	r9  = intReg("r9", 9)
	r11 = intReg("r11", 11)
)

var sysV = jit.ABI{
	Name:       "sysv",
	Convention: jit.SysV,
	IntArgs:    []jit.Register{rdi, rsi, rdx, rcx, r8, r9},
	FloatArgs: []jit.Register{
		xmmReg(0), xmmReg(1), xmmReg(2), xmmReg(3),
		xmmReg(4), xmmReg(5), xmmReg(6), xmmReg(7),
	},
	FrameReserve: frameReserve,
	StackAlign:   16,
	SlotSize:     8,
	Cleanup:      jit.CallerCleanup,
	Scratch:      r11,
	VectorCount:  true,
}

var win64 = jit.ABI{
	Name:         "win64",
	Convention:   jit.Win64,
	IntArgs:      []jit.Register{rcx, rdx, r8, r9},
	FloatArgs:    []jit.Register{xmmReg(0), xmmReg(1), xmmReg(2), xmmReg(3)},
	SharedSlots:  true,
	FrameReserve: frameReserve,
	ShadowSpace:  32,
	StackAlign:   16,
	SlotSize:     8,
	Cleanup:      jit.CallerCleanup,
	Scratch:      r11,
}
