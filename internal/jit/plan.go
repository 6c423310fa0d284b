package jit

import (
	"fmt"
)

// Placement is where one argument travels.
type Placement struct {
	Index      int
	Type       ArgType
	InRegister bool
	Register   Register
	// Slot is the stack slot counted from the lowest address, or -1.
	Slot int
}

// Plan is the result of assigning every argument of a call to a register or
// a stack slot.
type Plan struct {
	Placements []Placement
	IntCount   int
	FloatCount int
	StackCount int
	// LastInt and LastFloat are the indexes of the last argument that got a
	// register of that class, or -1.
	LastInt   int
	LastFloat int
}

// StackBytes is the size of the stack argument block.
func (p Plan) StackBytes(abi ABI) int32 {
	return int32(p.StackCount) * abi.SlotSize
}

// Spilled returns the stack-resident placements in slot order.
func (p Plan) Spilled() []Placement {
	out := make([]Placement, 0, p.StackCount)
	for _, pl := range p.Placements {
		if !pl.InRegister {
			out = append(out, pl)
		}
	}
	return out
}

// PlanCall assigns args to registers in a single left-to-right pass. Each
// class keeps its own cursor; when a class runs out its arguments go to the
// stack while the other class keeps filling registers. With SharedSlots one
// positional cursor serves both classes.
func PlanCall(abi ABI, args ArgList) (Plan, error) {
	plan := Plan{
		Placements: make([]Placement, len(args)),
		LastInt:    -1,
		LastFloat:  -1,
	}

	var nextInt, nextFloat, slot int
	for i, arg := range args {
		t := arg.Type()
		if !t.Valid() {
			return Plan{}, fmt.Errorf("argument %d has invalid type %s: %w", i, t, ErrUnsupportedOperand)
		}

		pl := Placement{Index: i, Type: t, Slot: -1}
		class := t.Class()
		regs := abi.Registers(class)

		cursor := &nextInt
		if class == ClassFloat {
			cursor = &nextFloat
		}
		if abi.SharedSlots {
			cursor = &nextInt
		}

		if *cursor < len(regs) {
			pl.InRegister = true
			pl.Register = regs[*cursor]
			*cursor++
			if class == ClassFloat {
				plan.FloatCount++
				plan.LastFloat = i
			} else {
				plan.IntCount++
				plan.LastInt = i
			}
		} else {
			if abi.PackedStack && t.Size() < int(abi.SlotSize) {
				return Plan{}, fmt.Errorf("argument %d: %s on the stack needs packed layout: %w", i, t, ErrUnsupportedOperand)
			}
			pl.Slot = slot
			slot++
			plan.StackCount++
		}
		plan.Placements[i] = pl
	}

	return plan, nil
}
