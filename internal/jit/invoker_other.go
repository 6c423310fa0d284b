//go:build !(darwin || freebsd || linux || windows)

package jit

func defaultInvoker() Invoker {
	return nil
}
