// Package amd64 generates call trampolines for x86-64 under the System V and
// Microsoft x64 calling conventions.
package amd64

import (
	"fmt"
	"math"

	"github.com/tinyrange/jitcall/internal/asm"
	amd64asm "github.com/tinyrange/jitcall/internal/asm/amd64"
	"github.com/tinyrange/jitcall/internal/jit"
)

func init() {
	jit.RegisterBackend(Backend{})
}

// Backend implements jit.Backend for x86-64.
type Backend struct{}

var _ jit.Backend = Backend{}

func (Backend) Arch() jit.Arch { return jit.ArchAMD64 }

func (Backend) ABI(conv jit.CallingConvention, goos string) (jit.ABI, error) {
	switch conv {
	case jit.Native:
		if goos == "windows" {
			return win64.Clone(), nil
		}
		return sysV.Clone(), nil
	case jit.SysV:
		return sysV.Clone(), nil
	case jit.Win64:
		return win64.Clone(), nil
	}
	return jit.ABI{}, fmt.Errorf("amd64: %s: %w", conv, jit.ErrUnsupportedConvention)
}

func gp(r jit.Register) amd64asm.Reg {
	return amd64asm.Reg64(asm.Variable(r.Code))
}

func stackPointer() amd64asm.Reg {
	return amd64asm.Reg64(amd64asm.RSP)
}

func (Backend) Prologue(buf *asm.Buffer, abi jit.ABI) error {
	frag := asm.Group{
		amd64asm.Push(amd64asm.Reg64(amd64asm.RBP)),
		amd64asm.MovReg(amd64asm.Reg64(amd64asm.RBP), stackPointer()),
	}
	if abi.FrameReserve > 0 {
		frag = append(frag, amd64asm.SubRegImm(stackPointer(), abi.FrameReserve))
	}
	return buf.Emit(frag)
}

// BeginStackArgs reserves the alignment padding that sits above the pushed
// arguments. The arguments themselves are pushed and the shadow space is
// reserved separately.
func (Backend) BeginStackArgs(buf *asm.Buffer, abi jit.ABI, area, argBytes int32) error {
	pad := area - argBytes - abi.ShadowSpace
	if pad < 0 {
		return fmt.Errorf("amd64: argument area %d smaller than its contents: %w", area, jit.ErrUnsupportedOperation)
	}
	if pad == 0 {
		return nil
	}
	return buf.Emit(amd64asm.SubRegImm(stackPointer(), pad))
}

// StoreStackArg pushes v. Every push is eight bytes, so narrow values are
// widened; values that do not fit a sign-extended imm32 go through the
// scratch register.
func (Backend) StoreStackArg(buf *asm.Buffer, abi jit.ABI, slot int, v jit.ArgValue) error {
	if abi.SlotSize != 8 {
		return fmt.Errorf("amd64: stack slot size %d: %w", abi.SlotSize, jit.ErrUnsupportedOperation)
	}
	value := int64(v.Widened())
	if value >= math.MinInt32 && value <= math.MaxInt32 {
		return buf.Emit(amd64asm.PushImm(int32(value)))
	}
	return buf.Emit(asm.Group{
		amd64asm.MovImmediate(gp(abi.Scratch), value),
		amd64asm.Push(gp(abi.Scratch)),
	})
}

// LoadRegister uses the 32-bit immediate form for narrow integers in base
// registers (the upper half is cleared by the CPU) and the 64-bit form for
// 64-bit values and for any extended register.
func (Backend) LoadRegister(buf *asm.Buffer, abi jit.ABI, reg jit.Register, v jit.ArgValue) error {
	if reg.Class != v.Type().Class() {
		return fmt.Errorf("amd64: %s argument in %s register %s: %w", v.Type(), reg.Class, reg, jit.ErrUnsupportedOperand)
	}

	var frag asm.Fragment
	switch v.Type() {
	case jit.Float:
		frag = asm.Group{
			amd64asm.MovImmediate(amd64asm.Reg32(asm.Variable(abi.Scratch.Code)), int64(v.Bits())),
			amd64asm.MovXmmFromReg(amd64asm.XMM(reg.Code), amd64asm.Reg32(asm.Variable(abi.Scratch.Code))),
		}
	case jit.Double:
		frag = asm.Group{
			amd64asm.MovImmediate(gp(abi.Scratch), int64(v.Bits())),
			amd64asm.MovXmmFromReg(amd64asm.XMM(reg.Code), gp(abi.Scratch)),
		}
	default:
		if reg.Extended || v.Type().Size() == 8 {
			frag = amd64asm.MovImmediate(gp(reg), int64(v.Widened()))
		} else {
			frag = amd64asm.MovImmediate(amd64asm.Reg32(asm.Variable(reg.Code)), int64(uint32(v.Widened())))
		}
	}

	if err := buf.Emit(frag); err != nil {
		return fmt.Errorf("amd64: load %s into %s: %w (%w)", v.Type(), reg, jit.ErrUnsupportedOperand, err)
	}
	return nil
}

func (Backend) AdjustStack(buf *asm.Buffer, abi jit.ABI, delta int32) error {
	switch {
	case delta < 0:
		return buf.Emit(amd64asm.SubRegImm(stackPointer(), -delta))
	case delta > 0:
		return buf.Emit(amd64asm.AddRegImm(stackPointer(), delta))
	}
	return nil
}

func (Backend) Call(buf *asm.Buffer, abi jit.ABI, fn uintptr, plan jit.Plan) error {
	var frag asm.Group
	if abi.VectorCount {
		// al carries an upper bound on the vector registers used, read by
		// variadic callees.
		frag = append(frag, amd64asm.MovImmediate(amd64asm.Reg32(amd64asm.RAX), int64(plan.FloatCount)))
	}
	frag = append(frag,
		amd64asm.MovImmediate(gp(abi.Scratch), int64(fn)),
		amd64asm.CallReg(gp(abi.Scratch)),
	)
	return buf.Emit(frag)
}

func (Backend) Epilogue(buf *asm.Buffer, abi jit.ABI, ret jit.ArgType) error {
	var frag asm.Group
	switch ret {
	case jit.Float:
		frag = append(frag, amd64asm.MovRegFromXmm(amd64asm.Reg32(amd64asm.RAX), amd64asm.X0))
	case jit.Double:
		frag = append(frag, amd64asm.MovRegFromXmm(amd64asm.Reg64(amd64asm.RAX), amd64asm.X0))
	}
	if abi.FrameReserve > 0 {
		frag = append(frag, amd64asm.AddRegImm(stackPointer(), abi.FrameReserve))
	}
	frag = append(frag,
		amd64asm.Pop(amd64asm.Reg64(amd64asm.RBP)),
		amd64asm.Ret(),
	)
	return buf.Emit(frag)
}
