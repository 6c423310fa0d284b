package amd64

import (
	"errors"
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// ErrUnbalanced is returned by AnalyzeStack when the stack pointer cannot be
// tracked statically.
var ErrUnbalanced = errors.New("stack pointer not statically tracked")

// StackReport is the result of walking a straight-line instruction sequence
// and tracking the stack pointer.
type StackReport struct {
	// Instructions is the decoded instruction count up to and including ret.
	Instructions int
	// NetDisplacement is the number of bytes the stack grew between entry and
	// the first ret. Zero for a balanced sequence.
	NetDisplacement int64
	// CallDepths records the stack growth at each call instruction.
	CallDepths []int64
	// Returned reports whether a ret was reached.
	Returned bool
}

// CallsAligned reports whether every call site saw a 16-byte aligned stack,
// assuming the sequence was entered by a call from an aligned frame.
func (r StackReport) CallsAligned() bool {
	for _, depth := range r.CallDepths {
		if (8+depth)%16 != 0 {
			return false
		}
	}
	return true
}

// AnalyzeStack decodes code as 64-bit x86 and tracks rsp through push, pop,
// add, sub, call and ret. calleePops is the number of argument bytes each
// called function removes on return.
func AnalyzeStack(code []byte, calleePops int64) (StackReport, error) {
	var (
		report   StackReport
		depth    int64
		rbpDepth int64 = -1
	)

	for off := 0; off < len(code); {
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil {
			return report, fmt.Errorf("decode at 0x%x: %w", off, err)
		}
		report.Instructions++

		switch inst.Op {
		case x86asm.PUSH:
			depth += 8
		case x86asm.POP:
			depth -= 8
			if inst.Args[0] == x86asm.RSP {
				return report, fmt.Errorf("pop rsp at 0x%x: %w", off, ErrUnbalanced)
			}
		case x86asm.ADD, x86asm.SUB:
			if inst.Args[0] != x86asm.RSP {
				break
			}
			imm, ok := inst.Args[1].(x86asm.Imm)
			if !ok {
				return report, fmt.Errorf("%s at 0x%x: %w", inst, off, ErrUnbalanced)
			}
			if inst.Op == x86asm.SUB {
				depth += int64(imm)
			} else {
				depth -= int64(imm)
			}
		case x86asm.MOV:
			switch inst.Args[0] {
			case x86asm.RBP:
				if inst.Args[1] == x86asm.RSP {
					rbpDepth = depth
				}
			case x86asm.RSP:
				if inst.Args[1] != x86asm.RBP || rbpDepth < 0 {
					return report, fmt.Errorf("%s at 0x%x: %w", inst, off, ErrUnbalanced)
				}
				depth = rbpDepth
			}
		case x86asm.LEAVE:
			if rbpDepth < 0 {
				return report, fmt.Errorf("leave without frame at 0x%x: %w", off, ErrUnbalanced)
			}
			depth = rbpDepth - 8
		case x86asm.CALL:
			report.CallDepths = append(report.CallDepths, depth)
			depth -= calleePops
		case x86asm.RET:
			report.Returned = true
			report.NetDisplacement = depth
			return report, nil
		}

		off += inst.Len
	}

	report.NetDisplacement = depth
	return report, nil
}
