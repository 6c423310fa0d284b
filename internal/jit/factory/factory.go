// Package factory links every architecture backend into the binary.
package factory

import (
	_ "github.com/tinyrange/jitcall/internal/jit/amd64"
	_ "github.com/tinyrange/jitcall/internal/jit/arm64"
)
