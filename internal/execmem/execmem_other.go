//go:build !(darwin || freebsd || linux || netbsd || openbsd || windows)

package execmem

import "unsafe"

type unsupportedAllocator struct{}

// Host returns an allocator whose every operation fails with ErrUnsupported.
func Host() Allocator {
	return unsupportedAllocator{}
}

func addrOf(mem []byte) uintptr {
	return uintptr(unsafe.Pointer(&mem[0]))
}

func (unsupportedAllocator) Allocate(int) (*Region, error) { return nil, ErrUnsupported }
func (unsupportedAllocator) Seal(*Region) error            { return ErrUnsupported }
func (unsupportedAllocator) Release(*Region) error         { return ErrUnsupported }
