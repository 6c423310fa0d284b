//go:build linux || darwin

package native

import (
	"errors"
	"testing"
)

func TestOpenDefaultLibrary(t *testing.T) {
	lib, err := Open("")
	if err != nil {
		t.Skipf("C runtime not available: %v", err)
	}
	if lib.Name() != DefaultLibrary() {
		t.Fatalf("Name()=%q, want %q", lib.Name(), DefaultLibrary())
	}

	addr, err := lib.Symbol("labs")
	if err != nil {
		t.Fatalf("Symbol(labs): %v", err)
	}
	if addr == 0 {
		t.Fatalf("labs resolved to 0")
	}
	if _, err := lib.Symbol("jitcall_no_such_symbol"); err == nil {
		t.Fatalf("lookup of missing symbol succeeded")
	}

	if err := lib.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := lib.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := lib.Symbol("labs"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Symbol after Close: %v, want ErrClosed", err)
	}
}

func TestOpenMissingLibrary(t *testing.T) {
	if _, err := Open("libjitcall-does-not-exist.so"); err == nil {
		t.Fatalf("Open of missing library succeeded")
	}
}

func TestLibrariesResolve(t *testing.T) {
	libs := NewLibraries()
	defer libs.Close()

	a, err := libs.Resolve("", "labs")
	if err != nil {
		t.Skipf("C runtime not available: %v", err)
	}
	b, err := libs.Resolve(DefaultLibrary(), "labs")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if a != b {
		t.Fatalf("labs resolved to 0x%x and 0x%x", a, b)
	}
	if len(libs.open) != 1 {
		t.Fatalf("%d libraries open, want 1", len(libs.open))
	}
	if err := libs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(libs.open) != 0 {
		t.Fatalf("libraries left open after Close")
	}
}
