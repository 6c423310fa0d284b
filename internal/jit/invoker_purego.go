//go:build darwin || freebsd || linux || windows

package jit

import (
	"github.com/ebitengine/purego"
)

type puregoInvoker struct{}

// Invoke calls entry with the platform C calling convention and no
// arguments.
func (puregoInvoker) Invoke(entry uintptr) uint64 {
	r1, _, _ := purego.SyscallN(entry)
	return uint64(r1)
}

func defaultInvoker() Invoker {
	return puregoInvoker{}
}
