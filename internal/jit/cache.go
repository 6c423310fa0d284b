package jit

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Cache builds each distinct (function, argument values, convention,
// return type) combination once and hands out the same Trampoline after
// that.
type Cache struct {
	opts []Option

	mu      sync.Mutex
	entries map[string]*Trampoline
	closed  bool
}

// NewCache returns a cache that builds with opts.
func NewCache(opts ...Option) *Cache {
	return &Cache{
		opts:    opts,
		entries: make(map[string]*Trampoline),
	}
}

func cacheKey(fn uintptr, args ArgList, conv CallingConvention, ret ArgType) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%x/%d/%d", fn, conv, ret)
	for _, arg := range args {
		fmt.Fprintf(&sb, "/%d:%x", arg.Type(), arg.Widened())
	}
	return sb.String()
}

// Get returns the cached trampoline for the call, building it on first use.
// The cache owns the trampoline; callers must not Close it.
func (c *Cache) Get(fn uintptr, args ArgList, conv CallingConvention, ret ArgType) (*Trampoline, error) {
	key := cacheKey(fn, args, conv, ret)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if t, ok := c.entries[key]; ok {
		return t, nil
	}
	t, err := Build(fn, args, conv, ret, c.opts...)
	if err != nil {
		return nil, err
	}
	c.entries[key] = t
	return t, nil
}

// Len returns the number of cached trampolines.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close releases every cached trampoline. Later Get calls fail with
// ErrClosed.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	var errs []error
	for key, t := range c.entries {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
		delete(c.entries, key)
	}
	return errors.Join(errs...)
}
