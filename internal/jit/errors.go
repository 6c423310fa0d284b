package jit

import (
	"errors"
	"strconv"
)

var (
	// ErrUnsupportedOperand is returned when an argument or return type has
	// no correct encoding on the selected architecture and convention.
	ErrUnsupportedOperand = errors.New("unsupported operand")
	// ErrUnsupportedConvention is returned when the backend has no register
	// table for the requested calling convention.
	ErrUnsupportedConvention = errors.New("unsupported calling convention")
	// ErrUnsupportedOperation covers far calls and stack layouts the backend
	// cannot address.
	ErrUnsupportedOperation = errors.New("unsupported operation")
	// ErrUnsupportedArch is returned when no backend is registered for an
	// architecture, or when executing code for a foreign architecture.
	ErrUnsupportedArch = errors.New("unsupported architecture")
	// ErrClosed is returned when invoking a released trampoline.
	ErrClosed = errors.New("trampoline closed")
)

// Error records a failed build step.
type Error struct {
	// Op is the build step, e.g. "load register" or "spill".
	Op string
	// Arg is the index of the offending argument, or -1.
	Arg int
	// Offset is the code length when the step failed.
	Offset int
	Err    error
}

func (e *Error) Error() string {
	s := "jit: " + e.Op
	if e.Arg >= 0 {
		s += " arg " + strconv.Itoa(e.Arg)
	}
	s += " at offset " + strconv.Itoa(e.Offset)
	return s + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
