// Package execmem hands out memory that can hold generated machine code.
//
// A Region starts writable. Seal flips it to read+execute and from then on
// Write fails; Release unmaps it. The allocator never lets a region be
// writable and executable at the same time.
package execmem

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tinyrange/jitcall/internal/asm"
)

var (
	ErrSealed      = errors.New("region is sealed")
	ErrReleased    = errors.New("region is released")
	ErrUnsupported = errors.New("executable memory not supported on this platform")
)

// Region is a page-aligned mapping owned by an Allocator.
type Region struct {
	mu       sync.Mutex
	mem      []byte
	used     int
	sealed   bool
	released bool
}

func newRegion(mem []byte) *Region {
	return &Region{mem: mem}
}

// Addr returns the address of the first byte.
func (r *Region) Addr() uintptr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released || len(r.mem) == 0 {
		return 0
	}
	return addrOf(r.mem)
}

// Len returns the number of bytes written so far.
func (r *Region) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.used
}

// Cap returns the mapped size.
func (r *Region) Cap() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.mem)
}

// Sealed reports whether the region has been made executable.
func (r *Region) Sealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sealed
}

// Write copies data to offset off.
func (r *Region) Write(off int, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.released:
		return ErrReleased
	case r.sealed:
		return ErrSealed
	case off < 0 || off+len(data) > len(r.mem):
		return fmt.Errorf("write [%d, %d) outside region of %d bytes", off, off+len(data), len(r.mem))
	}
	copy(r.mem[off:], data)
	if end := off + len(data); end > r.used {
		r.used = end
	}
	return nil
}

// Allocator is the host's executable memory capability.
type Allocator interface {
	// Allocate maps at least size writable bytes.
	Allocate(size int) (*Region, error)
	// Seal makes the region read+execute and forbids further writes.
	Seal(r *Region) error
	// Release unmaps the region. Releasing twice returns ErrReleased.
	Release(r *Region) error
}

// Load copies prog into a fresh region from alloc, rebases its relocations
// onto the region's address and seals it. On failure nothing stays mapped.
func Load(alloc Allocator, prog asm.Program) (*Region, error) {
	if prog.Len() == 0 {
		return nil, fmt.Errorf("load program: empty code")
	}
	region, err := alloc.Allocate(prog.Len())
	if err != nil {
		return nil, fmt.Errorf("allocate executable region: %w", err)
	}
	if err := region.Write(0, prog.RelocatedCopy(region.Addr())); err != nil {
		_ = alloc.Release(region)
		return nil, fmt.Errorf("write executable region: %w", err)
	}
	if err := alloc.Seal(region); err != nil {
		_ = alloc.Release(region)
		return nil, fmt.Errorf("seal executable region: %w", err)
	}
	return region, nil
}

func roundUp(n, page int) int {
	return (n + page - 1) / page * page
}
