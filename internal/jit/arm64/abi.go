package arm64

import (
	"strconv"

	"github.com/tinyrange/jitcall/internal/jit"
)

func xReg(code uint8) jit.Register {
	return jit.Register{Name: "x" + strconv.Itoa(int(code)), Code: code, Class: jit.ClassInt}
}

func vReg(code uint8) jit.Register {
	return jit.Register{Name: "v" + strconv.Itoa(int(code)), Code: code, Class: jit.ClassFloat}
}

func regs(class func(uint8) jit.Register, n uint8) []jit.Register {
	out := make([]jit.Register, n)
	for i := range out {
		out[i] = class(uint8(i))
	}
	return out
}

var aapcs64 = jit.ABI{
	Name:       "aapcs64",
	Convention: jit.AAPCS64,
	IntArgs:    regs(xReg, 8),
	FloatArgs:  regs(vReg, 8),
	StackAlign: 16,
	SlotSize:   8,
	Cleanup:    jit.CallerCleanup,
	// x16 (ip0) is the intra-procedure-call scratch register.
	Scratch: xReg(16),
}

// darwin differs from AAPCS64 only for stack arguments, which Apple packs
// at their natural size.
var darwin = func() jit.ABI {
	abi := aapcs64.Clone()
	abi.Name = "darwin-arm64"
	abi.Convention = jit.DarwinARM64
	abi.PackedStack = true
	return abi
}()
