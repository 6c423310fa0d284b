//go:build darwin && arm64

package execmem

import (
	"sync"

	"github.com/ebitengine/purego"
)

var (
	icacheOnce       sync.Once
	icacheInvalidate func(addr uintptr, size uintptr)
)

// flushInstructionCache invalidates the instruction cache for freshly
// written code. Apple silicon does not keep it coherent with data writes.
func flushInstructionCache(addr, size uintptr) {
	icacheOnce.Do(func() {
		lib, err := purego.Dlopen("/usr/lib/libSystem.B.dylib", purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			return
		}
		purego.RegisterLibFunc(&icacheInvalidate, lib, "sys_icache_invalidate")
	})
	if icacheInvalidate != nil && size > 0 {
		icacheInvalidate(addr, size)
	}
}
