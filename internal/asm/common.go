package asm

import (
	"encoding/binary"
)

// Variable identifies an architecture register by its hardware number.
type Variable int

// Context receives encoded instructions.
type Context interface {
	EmitBytes(data []byte)
	Len() int
}

// Fragment is one or more instructions. Implementations encode into a local
// slice first and only call EmitBytes once the whole instruction is known to
// be well formed, so a failing Emit never leaves a partial instruction behind.
type Fragment interface {
	Emit(ctx Context) error
}

// Group emits its fragments in order and stops at the first error.
type Group []Fragment

func (g Group) Emit(ctx Context) error {
	for _, frag := range g {
		if err := frag.Emit(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Program is a sealed, immutable instruction stream.
type Program struct {
	code        []byte
	relocations []int
}

func (p Program) Bytes() []byte {
	return append([]byte(nil), p.code...)
}

func (p Program) Len() int {
	return len(p.code)
}

// Relocations returns the offsets of 8-byte absolute fields that must be
// rebased onto the load address.
func (p Program) Relocations() []int {
	return append([]int(nil), p.relocations...)
}

// RelocatedCopy returns the code with every relocation rebased onto base.
func (p Program) RelocatedCopy(base uintptr) []byte {
	out := append([]byte(nil), p.code...)
	for _, off := range p.relocations {
		if off < 0 || off+8 > len(out) {
			continue
		}
		val := binary.LittleEndian.Uint64(out[off:])
		binary.LittleEndian.PutUint64(out[off:], val+uint64(base))
	}
	return out
}

func NewProgram(code []byte, relocations []int) Program {
	return Program{
		code:        append([]byte(nil), code...),
		relocations: append([]int(nil), relocations...),
	}
}
