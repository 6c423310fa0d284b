//go:build windows

package execmem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

const pageSize = 4096

type virtualAllocator struct{}

// Host returns the allocator for the running platform.
func Host() Allocator {
	return virtualAllocator{}
}

func addrOf(mem []byte) uintptr {
	return uintptr(unsafe.Pointer(&mem[0]))
}

func (virtualAllocator) Allocate(size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("allocate %d bytes: size must be positive", size)
	}
	size = roundUp(size, pageSize)
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, fmt.Errorf("VirtualAlloc code region: %w", err)
	}
	return newRegion(unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)), nil
}

func (virtualAllocator) Seal(r *Region) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.released:
		return ErrReleased
	case r.sealed:
		return nil
	}
	var old uint32
	if err := windows.VirtualProtect(addrOf(r.mem), uintptr(len(r.mem)), windows.PAGE_EXECUTE_READ, &old); err != nil {
		return fmt.Errorf("VirtualProtect code region: %w", err)
	}
	if err := flushInstructionCache(addrOf(r.mem), uintptr(r.used)); err != nil {
		return fmt.Errorf("seal code region: %w", err)
	}
	r.sealed = true
	return nil
}

func (virtualAllocator) Release(r *Region) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return ErrReleased
	}
	if err := windows.VirtualFree(addrOf(r.mem), 0, windows.MEM_RELEASE); err != nil {
		return fmt.Errorf("VirtualFree code region: %w", err)
	}
	r.released = true
	r.mem = nil
	return nil
}
