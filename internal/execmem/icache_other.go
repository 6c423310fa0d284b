//go:build !(darwin && arm64) && !windows

package execmem

// flushInstructionCache is a no-op where the kernel keeps the instruction
// cache coherent when a mapping becomes executable.
func flushInstructionCache(addr, size uintptr) {}
