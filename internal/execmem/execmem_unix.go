//go:build darwin || freebsd || linux || netbsd || openbsd

package execmem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

type mmapAllocator struct{}

// Host returns the allocator for the running platform.
func Host() Allocator {
	return mmapAllocator{}
}

func addrOf(mem []byte) uintptr {
	return uintptr(unsafe.Pointer(&mem[0]))
}

func (mmapAllocator) Allocate(size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("allocate %d bytes: size must be positive", size)
	}
	mem, err := unix.Mmap(-1, 0, roundUp(size, unix.Getpagesize()),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap code region: %w", err)
	}
	return newRegion(mem), nil
}

func (mmapAllocator) Seal(r *Region) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.released:
		return ErrReleased
	case r.sealed:
		return nil
	}
	if err := unix.Mprotect(r.mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("mprotect code region: %w", err)
	}
	flushInstructionCache(addrOf(r.mem), uintptr(r.used))
	r.sealed = true
	return nil
}

func (mmapAllocator) Release(r *Region) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return ErrReleased
	}
	if err := unix.Munmap(r.mem); err != nil {
		return fmt.Errorf("munmap code region: %w", err)
	}
	r.released = true
	r.mem = nil
	return nil
}
