//go:build windows

package execmem

import (
	"fmt"

	"golang.org/x/sys/windows"
)

var procFlushInstructionCache = windows.NewLazySystemDLL("kernel32.dll").NewProc("FlushInstructionCache")

// flushInstructionCache discards stale instructions for [addr, addr+size).
// windows/arm64 needs it after code is written; on amd64 it is cheap.
func flushInstructionCache(addr, size uintptr) error {
	if size == 0 {
		return nil
	}
	if err := procFlushInstructionCache.Find(); err != nil {
		return err
	}
	ok, _, err := procFlushInstructionCache.Call(uintptr(windows.CurrentProcess()), addr, size)
	if ok == 0 {
		return fmt.Errorf("FlushInstructionCache: %w", err)
	}
	return nil
}
