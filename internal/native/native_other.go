//go:build !(darwin || freebsd || linux || windows)

package native

func DefaultLibrary() string { return "" }

func MathLibrary() string { return "" }

func openLibrary(string) (uintptr, error) { return 0, ErrUnsupported }

func lookupSymbol(uintptr, string) (uintptr, error) { return 0, ErrUnsupported }

func closeLibrary(uintptr) error { return ErrUnsupported }
