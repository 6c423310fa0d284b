package jit

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tinyrange/jitcall/internal/asm"
)

// Backend is one architecture's instruction emission for the call-site
// compiler. Each method appends complete instructions to buf or returns an
// error; the compiler rolls buf back on failure.
type Backend interface {
	Arch() Arch
	// ABI returns the register table for conv. Native resolves using goos.
	ABI(conv CallingConvention, goos string) (ABI, error)

	// Prologue saves the frame pointer and reserves abi.FrameReserve bytes.
	Prologue(buf *asm.Buffer, abi ABI) error
	// BeginStackArgs runs before any StoreStackArg. area is the aligned size
	// of the outgoing argument area including shadow space; argBytes is the
	// part occupied by stack arguments.
	BeginStackArgs(buf *asm.Buffer, abi ABI, area, argBytes int32) error
	// StoreStackArg places v in stack slot slot. Slots are visited from the
	// highest to the lowest.
	StoreStackArg(buf *asm.Buffer, abi ABI, slot int, v ArgValue) error
	// LoadRegister materialises v in reg.
	LoadRegister(buf *asm.Buffer, abi ABI, reg Register, v ArgValue) error
	// AdjustStack moves the stack pointer by delta bytes; negative grows the
	// stack.
	AdjustStack(buf *asm.Buffer, abi ABI, delta int32) error
	// Call loads fn into the scratch register and calls through it.
	Call(buf *asm.Buffer, abi ABI, fn uintptr, plan Plan) error
	// Epilogue moves a floating-point result into the integer return
	// register when ret needs it, undoes the prologue and returns.
	Epilogue(buf *asm.Buffer, abi ABI, ret ArgType) error
}

var (
	backendsMu sync.RWMutex
	backends   = make(map[Arch]Backend)
)

// RegisterBackend makes an architecture available to Compile and Build. It
// panics when the same architecture is registered twice so mistakes are
// caught during init.
func RegisterBackend(backend Backend) {
	if backend == nil {
		panic("jit: backend must be non-nil")
	}
	arch := backend.Arch()
	if arch == "" {
		panic("jit: cannot register backend for empty architecture")
	}

	backendsMu.Lock()
	defer backendsMu.Unlock()

	if _, exists := backends[arch]; exists {
		panic(fmt.Sprintf("jit: backend for %s already registered", arch))
	}
	backends[arch] = backend
}

// LookupBackend returns the backend registered for arch.
func LookupBackend(arch Arch) (Backend, error) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	if backend, ok := backends[arch]; ok {
		return backend, nil
	}
	return nil, fmt.Errorf("jit: no backend registered for %q: %w", arch, ErrUnsupportedArch)
}

// Architectures lists the registered architectures in sorted order.
func Architectures() []Arch {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	out := make([]Arch, 0, len(backends))
	for arch := range backends {
		out = append(out, arch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
