// Package native resolves C function addresses from shared libraries so
// they can be used as call targets.
package native

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnsupported is returned on platforms without a dynamic loader
	// binding.
	ErrUnsupported = errors.New("dynamic loading not supported on this platform")
	// ErrClosed is returned when resolving a symbol from a closed library.
	ErrClosed = errors.New("library closed")
)

// Library is an open shared library.
type Library struct {
	name   string
	handle uintptr

	mu     sync.Mutex
	closed bool
}

// Open loads the named library with the platform loader. An empty name
// opens DefaultLibrary.
func Open(name string) (*Library, error) {
	if name == "" {
		name = DefaultLibrary()
	}
	handle, err := openLibrary(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return &Library{name: name, handle: handle}, nil
}

// Name returns the name the library was opened with.
func (l *Library) Name() string {
	return l.name
}

// Symbol returns the address of an exported function.
func (l *Library) Symbol(name string) (uintptr, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, fmt.Errorf("lookup %s in %s: %w", name, l.name, ErrClosed)
	}
	addr, err := lookupSymbol(l.handle, name)
	if err != nil {
		return 0, fmt.Errorf("lookup %s in %s: %w", name, l.name, err)
	}
	if addr == 0 {
		return 0, fmt.Errorf("lookup %s in %s: symbol resolved to nil", name, l.name)
	}
	return addr, nil
}

// Close unloads the library. Addresses obtained from it must not be called
// afterwards.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if err := closeLibrary(l.handle); err != nil {
		return fmt.Errorf("close %s: %w", l.name, err)
	}
	return nil
}

// Libraries opens libraries on first use and keeps them open until Close.
type Libraries struct {
	mu   sync.Mutex
	open map[string]*Library
}

// NewLibraries returns an empty set.
func NewLibraries() *Libraries {
	return &Libraries{open: make(map[string]*Library)}
}

// Resolve returns the address of symbol in library, opening the library if
// needed. An empty library means DefaultLibrary.
func (l *Libraries) Resolve(library, symbol string) (uintptr, error) {
	if library == "" {
		library = DefaultLibrary()
	}

	l.mu.Lock()
	lib, ok := l.open[library]
	if !ok {
		var err error
		lib, err = Open(library)
		if err != nil {
			l.mu.Unlock()
			return 0, err
		}
		l.open[library] = lib
	}
	l.mu.Unlock()

	return lib.Symbol(symbol)
}

// Close closes every library opened so far.
func (l *Libraries) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	for name, lib := range l.open {
		if err := lib.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(l.open, name)
	}
	return errors.Join(errs...)
}
