package asm

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrSealed is returned when a sealed Buffer is asked to change.
var ErrSealed = errors.New("buffer is sealed")

// Buffer is the append-only byte stream instructions are emitted into.
//
// A Buffer grows monotonically while a trampoline is being built. Seal
// freezes it into a Program; after that every mutation panics (EmitBytes) or
// fails with ErrSealed (patching, truncation).
type Buffer struct {
	code        []byte
	relocations []int
	sealed      bool
}

var (
	_ Context = (*Buffer)(nil)
)

func NewBuffer() *Buffer {
	return &Buffer{code: make([]byte, 0, 64)}
}

// EmitBytes appends data to the stream.
func (b *Buffer) EmitBytes(data []byte) {
	if b.sealed {
		panic("asm: write to sealed buffer")
	}
	b.code = append(b.code, data...)
}

// Len reports the current write offset.
func (b *Buffer) Len() int {
	return len(b.code)
}

// Emit appends a fragment. When the fragment fails the buffer is rolled back
// to its length before the call, so groups of instructions are all-or-nothing.
func (b *Buffer) Emit(frag Fragment) error {
	if b.sealed {
		return ErrSealed
	}
	mark := len(b.code)
	if err := frag.Emit(b); err != nil {
		b.truncate(mark)
		return err
	}
	return nil
}

// Truncate discards everything written after offset n.
func (b *Buffer) Truncate(n int) error {
	if b.sealed {
		return ErrSealed
	}
	if n < 0 || n > len(b.code) {
		return fmt.Errorf("truncate offset %d out of range (len %d)", n, len(b.code))
	}
	b.truncate(n)
	return nil
}

func (b *Buffer) truncate(n int) {
	b.code = b.code[:n]
	kept := b.relocations[:0]
	for _, off := range b.relocations {
		if off+8 <= n {
			kept = append(kept, off)
		}
	}
	b.relocations = kept
}

// PatchUint32 overwrites a previously emitted 4-byte little-endian field.
func (b *Buffer) PatchUint32(off int, value uint32) error {
	if b.sealed {
		return ErrSealed
	}
	if off < 0 || off+4 > len(b.code) {
		return fmt.Errorf("patch offset %d out of range (len %d)", off, len(b.code))
	}
	binary.LittleEndian.PutUint32(b.code[off:], value)
	return nil
}

// PatchUint64 overwrites a previously emitted 8-byte little-endian field.
func (b *Buffer) PatchUint64(off int, value uint64) error {
	if b.sealed {
		return ErrSealed
	}
	if off < 0 || off+8 > len(b.code) {
		return fmt.Errorf("patch offset %d out of range (len %d)", off, len(b.code))
	}
	binary.LittleEndian.PutUint64(b.code[off:], value)
	return nil
}

// AddRelocation marks the 8-byte field at off as relative to the load address.
func (b *Buffer) AddRelocation(off int) error {
	if b.sealed {
		return ErrSealed
	}
	if off < 0 || off+8 > len(b.code) {
		return fmt.Errorf("relocation offset %d out of range (len %d)", off, len(b.code))
	}
	b.relocations = append(b.relocations, off)
	return nil
}

// Sealed reports whether Seal has been called.
func (b *Buffer) Sealed() bool {
	return b.sealed
}

// Seal freezes the buffer and returns its contents as a Program.
func (b *Buffer) Seal() Program {
	b.sealed = true
	return NewProgram(b.code, b.relocations)
}
