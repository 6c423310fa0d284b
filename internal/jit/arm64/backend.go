// Package arm64 generates call trampolines for AArch64 under AAPCS64 and
// Apple's arm64 variant.
package arm64

import (
	"fmt"

	"github.com/tinyrange/jitcall/internal/asm"
	arm64asm "github.com/tinyrange/jitcall/internal/asm/arm64"
	"github.com/tinyrange/jitcall/internal/jit"
)

func init() {
	jit.RegisterBackend(Backend{})
}

// Backend implements jit.Backend for AArch64.
type Backend struct{}

var _ jit.Backend = Backend{}

// maxImm12 is the largest immediate add/sub accept without a shift.
const maxImm12 = 0xFFF

func (Backend) Arch() jit.Arch { return jit.ArchARM64 }

func (Backend) ABI(conv jit.CallingConvention, goos string) (jit.ABI, error) {
	switch conv {
	case jit.Native:
		if goos == "darwin" || goos == "ios" {
			return darwin.Clone(), nil
		}
		return aapcs64.Clone(), nil
	case jit.AAPCS64:
		return aapcs64.Clone(), nil
	case jit.DarwinARM64:
		return darwin.Clone(), nil
	}
	return jit.ABI{}, fmt.Errorf("arm64: %s: %w", conv, jit.ErrUnsupportedConvention)
}

func x(r jit.Register) arm64asm.Reg {
	return arm64asm.Reg64(asm.Variable(r.Code))
}

func sp() arm64asm.Reg {
	return arm64asm.Reg64(arm64asm.SP)
}

func checkImm12(what string, v int32) error {
	if v < 0 || v > maxImm12 {
		return fmt.Errorf("arm64: %s %d exceeds a 12-bit immediate: %w", what, v, jit.ErrUnsupportedOperation)
	}
	return nil
}

func (Backend) Prologue(buf *asm.Buffer, abi jit.ABI) error {
	frag := asm.Group{
		arm64asm.PushPair(arm64asm.Reg64(arm64asm.FP), arm64asm.Reg64(arm64asm.LR)),
		arm64asm.MovRegFromSP(arm64asm.Reg64(arm64asm.FP)),
	}
	if abi.FrameReserve > 0 {
		if err := checkImm12("frame reserve", abi.FrameReserve); err != nil {
			return err
		}
		frag = append(frag, arm64asm.SubRegImm(sp(), uint16(abi.FrameReserve)))
	}
	return buf.Emit(frag)
}

// BeginStackArgs reserves the whole argument area at once; arguments are
// then stored into their slots relative to sp.
func (Backend) BeginStackArgs(buf *asm.Buffer, abi jit.ABI, area, argBytes int32) error {
	if err := checkImm12("argument area", area); err != nil {
		return err
	}
	return buf.Emit(arm64asm.SubRegImm(sp(), uint16(area)))
}

func (Backend) StoreStackArg(buf *asm.Buffer, abi jit.ABI, slot int, v jit.ArgValue) error {
	if abi.SlotSize != 8 {
		return fmt.Errorf("arm64: stack slot size %d: %w", abi.SlotSize, jit.ErrUnsupportedOperation)
	}
	offset := abi.ShadowSpace + int32(slot)*abi.SlotSize
	if offset > 8*0xFFF {
		return fmt.Errorf("arm64: stack slot offset %d out of range: %w", offset, jit.ErrUnsupportedOperation)
	}
	return buf.Emit(asm.Group{
		arm64asm.MovImmediate(x(abi.Scratch), int64(v.Widened())),
		arm64asm.MovToMemory(arm64asm.Mem(sp()).WithDisp(offset), x(abi.Scratch)),
	})
}

func (Backend) LoadRegister(buf *asm.Buffer, abi jit.ABI, reg jit.Register, v jit.ArgValue) error {
	if reg.Class != v.Type().Class() {
		return fmt.Errorf("arm64: %s argument in %s register %s: %w", v.Type(), reg.Class, reg, jit.ErrUnsupportedOperand)
	}

	var frag asm.Fragment
	switch v.Type() {
	case jit.Float:
		frag = asm.Group{
			arm64asm.MovImmediate(x(abi.Scratch), int64(v.Bits())),
			arm64asm.FmovToVector(arm64asm.VReg(reg.Code), arm64asm.Reg32(asm.Variable(abi.Scratch.Code))),
		}
	case jit.Double:
		frag = asm.Group{
			arm64asm.MovImmediate(x(abi.Scratch), int64(v.Bits())),
			arm64asm.FmovToVector(arm64asm.VReg(reg.Code), x(abi.Scratch)),
		}
	default:
		frag = arm64asm.MovImmediate(x(reg), int64(v.Widened()))
	}

	if err := buf.Emit(frag); err != nil {
		return fmt.Errorf("arm64: load %s into %s: %w (%w)", v.Type(), reg, jit.ErrUnsupportedOperand, err)
	}
	return nil
}

func (Backend) AdjustStack(buf *asm.Buffer, abi jit.ABI, delta int32) error {
	switch {
	case delta < 0:
		if err := checkImm12("stack adjustment", -delta); err != nil {
			return err
		}
		return buf.Emit(arm64asm.SubRegImm(sp(), uint16(-delta)))
	case delta > 0:
		if err := checkImm12("stack adjustment", delta); err != nil {
			return err
		}
		return buf.Emit(arm64asm.AddRegImm(sp(), uint16(delta)))
	}
	return nil
}

func (Backend) Call(buf *asm.Buffer, abi jit.ABI, fn uintptr, plan jit.Plan) error {
	return buf.Emit(asm.Group{
		arm64asm.MovImmediate(x(abi.Scratch), int64(fn)),
		arm64asm.CallReg(x(abi.Scratch)),
	})
}

func (Backend) Epilogue(buf *asm.Buffer, abi jit.ABI, ret jit.ArgType) error {
	var frag asm.Group
	switch ret {
	case jit.Float:
		frag = append(frag, arm64asm.FmovFromVector(arm64asm.Reg32(arm64asm.X0), arm64asm.V0))
	case jit.Double:
		frag = append(frag, arm64asm.FmovFromVector(arm64asm.Reg64(arm64asm.X0), arm64asm.V0))
	}
	if abi.FrameReserve > 0 {
		if err := checkImm12("frame reserve", abi.FrameReserve); err != nil {
			return err
		}
		frag = append(frag, arm64asm.AddRegImm(sp(), uint16(abi.FrameReserve)))
	}
	frag = append(frag,
		arm64asm.PopPair(arm64asm.Reg64(arm64asm.FP), arm64asm.Reg64(arm64asm.LR)),
		arm64asm.Ret(),
	)
	return buf.Emit(frag)
}
