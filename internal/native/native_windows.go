//go:build windows

package native

import (
	"golang.org/x/sys/windows"
)

// DefaultLibrary names the C runtime of the host.
func DefaultLibrary() string {
	return "msvcrt.dll"
}

// MathLibrary names the library exporting the C math functions.
func MathLibrary() string {
	return "msvcrt.dll"
}

func openLibrary(name string) (uintptr, error) {
	h, err := windows.LoadLibrary(name)
	return uintptr(h), err
}

func lookupSymbol(handle uintptr, name string) (uintptr, error) {
	return windows.GetProcAddress(windows.Handle(handle), name)
}

func closeLibrary(handle uintptr) error {
	return windows.FreeLibrary(windows.Handle(handle))
}
