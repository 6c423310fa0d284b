//go:build darwin || freebsd || linux || netbsd || openbsd || windows

package execmem

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/tinyrange/jitcall/internal/asm"
)

func TestRegionLifecycle(t *testing.T) {
	alloc := Host()

	region, err := alloc.Allocate(10)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if region.Cap() < 10 {
		t.Fatalf("Cap()=%d, want at least 10", region.Cap())
	}
	if err := region.Write(0, []byte{0xC3}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := region.Write(region.Cap(), []byte{0}); err == nil {
		t.Fatalf("Write past end succeeded")
	}
	if err := alloc.Seal(region); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !region.Sealed() {
		t.Fatalf("Sealed()=false after Seal")
	}
	if err := region.Write(0, []byte{0x90}); !errors.Is(err, ErrSealed) {
		t.Fatalf("Write after seal: %v, want ErrSealed", err)
	}
	if got := region.mem[0]; got != 0xC3 {
		t.Fatalf("sealed byte=0x%x, want 0xc3", got)
	}
	if err := alloc.Release(region); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := alloc.Release(region); !errors.Is(err, ErrReleased) {
		t.Fatalf("second Release: %v, want ErrReleased", err)
	}
	if region.Addr() != 0 {
		t.Fatalf("Addr()=0x%x after release, want 0", region.Addr())
	}
}

func TestLoadAppliesRelocations(t *testing.T) {
	buf := asm.NewBuffer()
	buf.EmitBytes([]byte{0x48, 0xB8, 0x02, 0, 0, 0, 0, 0, 0, 0, 0xC3})
	if err := buf.AddRelocation(2); err != nil {
		t.Fatalf("AddRelocation: %v", err)
	}

	alloc := Host()
	region, err := Load(alloc, buf.Seal())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer func() { _ = alloc.Release(region) }()

	code := region.mem[:region.Len()]
	if got, want := binary.LittleEndian.Uint64(code[2:]), uint64(region.Addr())+2; got != want {
		t.Fatalf("relocated immediate=0x%x, want 0x%x", got, want)
	}
	if region.Len() != 11 {
		t.Fatalf("Len()=%d, want 11", region.Len())
	}
}

func TestLoadRejectsEmptyProgram(t *testing.T) {
	if _, err := Load(Host(), asm.Program{}); err == nil {
		t.Fatalf("Load of empty program succeeded")
	}
}
