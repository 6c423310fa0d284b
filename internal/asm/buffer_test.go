package asm

import (
	"bytes"
	"errors"
	"testing"
)

type rawFragment []byte

func (r rawFragment) Emit(ctx Context) error {
	ctx.EmitBytes(r)
	return nil
}

type failingFragment struct{}

func (failingFragment) Emit(Context) error {
	return errors.New("boom")
}

func TestBufferEmitRollsBackGroup(t *testing.T) {
	buf := NewBuffer()
	if err := buf.Emit(rawFragment{0x55}); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	err := buf.Emit(Group{rawFragment{0x49, 0xBB, 1, 2, 3, 4, 5, 6, 7, 8}, failingFragment{}})
	if err == nil {
		t.Fatalf("Emit succeeded, want error")
	}
	if got, want := buf.Len(), 1; got != want {
		t.Fatalf("Len()=%d, want %d", got, want)
	}
}

func TestBufferPatch(t *testing.T) {
	buf := NewBuffer()
	buf.EmitBytes([]byte{0x49, 0xBB, 0, 0, 0, 0, 0, 0, 0, 0, 0x68, 0, 0, 0, 0})

	if err := buf.PatchUint64(2, 0x1122334455667788); err != nil {
		t.Fatalf("PatchUint64: %v", err)
	}
	if err := buf.PatchUint32(11, 0xdeadbeef); err != nil {
		t.Fatalf("PatchUint32: %v", err)
	}
	if err := buf.PatchUint32(12, 0); err == nil {
		t.Fatalf("PatchUint32 past end succeeded")
	}

	want := []byte{0x49, 0xBB, 0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11, 0x68, 0xef, 0xbe, 0xad, 0xde}
	if got := buf.Seal().Bytes(); !bytes.Equal(got, want) {
		t.Fatalf("code=%x, want %x", got, want)
	}
}

func TestBufferSeal(t *testing.T) {
	buf := NewBuffer()
	buf.EmitBytes([]byte{0xC3})
	prog := buf.Seal()

	if !buf.Sealed() {
		t.Fatalf("Sealed()=false after Seal")
	}
	if err := buf.PatchUint32(0, 0); !errors.Is(err, ErrSealed) {
		t.Fatalf("PatchUint32 after seal: %v, want ErrSealed", err)
	}
	if err := buf.Emit(rawFragment{0x90}); !errors.Is(err, ErrSealed) {
		t.Fatalf("Emit after seal: %v, want ErrSealed", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("EmitBytes after seal did not panic")
		}
		if got := prog.Bytes(); !bytes.Equal(got, []byte{0xC3}) {
			t.Fatalf("sealed program changed: %x", got)
		}
	}()
	buf.EmitBytes([]byte{0x90})
}

func TestProgramRelocatedCopy(t *testing.T) {
	buf := NewBuffer()
	buf.EmitBytes([]byte{0x48, 0xB8, 0x10, 0, 0, 0, 0, 0, 0, 0})
	if err := buf.AddRelocation(2); err != nil {
		t.Fatalf("AddRelocation: %v", err)
	}
	prog := buf.Seal()

	got := prog.RelocatedCopy(0x1000)
	want := []byte{0x48, 0xB8, 0x10, 0x10, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(got, want) {
		t.Fatalf("RelocatedCopy=%x, want %x", got, want)
	}
	if !bytes.Equal(prog.Bytes()[:4], []byte{0x48, 0xB8, 0x10, 0}) {
		t.Fatalf("RelocatedCopy mutated the program")
	}
}

func TestBufferTruncateDropsRelocations(t *testing.T) {
	buf := NewBuffer()
	buf.EmitBytes(make([]byte, 20))
	_ = buf.AddRelocation(2)
	_ = buf.AddRelocation(12)

	if err := buf.Truncate(10); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if got := buf.Seal().Relocations(); len(got) != 1 || got[0] != 2 {
		t.Fatalf("Relocations()=%v, want [2]", got)
	}
}
