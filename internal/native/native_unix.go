//go:build darwin || freebsd || linux

package native

import (
	"runtime"

	"github.com/ebitengine/purego"
)

// DefaultLibrary names the C runtime of the host.
func DefaultLibrary() string {
	switch runtime.GOOS {
	case "darwin":
		return "/usr/lib/libSystem.B.dylib"
	case "freebsd":
		return "libc.so.7"
	}
	return "libc.so.6"
}

// MathLibrary names the library exporting the C math functions.
func MathLibrary() string {
	switch runtime.GOOS {
	case "darwin":
		return "/usr/lib/libSystem.B.dylib"
	case "freebsd":
		return "libm.so.5"
	}
	return "libm.so.6"
}

func openLibrary(name string) (uintptr, error) {
	return purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
}

func lookupSymbol(handle uintptr, name string) (uintptr, error) {
	return purego.Dlsym(handle, name)
}

func closeLibrary(handle uintptr) error {
	return purego.Dlclose(handle)
}
