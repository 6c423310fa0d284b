// Package jitcall compiles native call sites at runtime. Given a function
// address, an argument list and a calling convention it generates a small
// machine-code trampoline that loads the arguments where the callee expects
// them, calls it, and hands back the raw return register.
package jitcall

import (
	"github.com/tinyrange/jitcall/internal/execmem"
	"github.com/tinyrange/jitcall/internal/jit"
	_ "github.com/tinyrange/jitcall/internal/jit/factory"
	"github.com/tinyrange/jitcall/internal/native"
)

// -----------------------------------------------------------------------------
// Type Aliases - These re-export types from internal/jit
// -----------------------------------------------------------------------------

// ArgType tags the width and register class of an argument or return value.
type ArgType = jit.ArgType

// ArgValue is a tagged 64-bit argument payload.
type ArgValue = jit.ArgValue

// ArgList is one call's arguments in declaration order.
type ArgList = jit.ArgList

// CallingConvention selects an ABI variant.
type CallingConvention = jit.CallingConvention

// ABI is one calling convention's register table and stack rules.
type ABI = jit.ABI

// Plan records where each argument of a call travels.
type Plan = jit.Plan

// Trampoline is generated code bound to one function and one argument list.
type Trampoline = jit.Trampoline

// Cache builds each distinct call once.
type Cache = jit.Cache

// CallSite describes a call for Compile.
type CallSite = jit.CallSite

// Compiled is generated code that has not been loaded.
type Compiled = jit.Compiled

// Option configures Build and NewCache.
type Option = jit.Option

// Error records the build step that failed.
type Error = jit.Error

// Arch names an instruction set.
type Arch = jit.Arch

// Library is an open shared library.
type Library = native.Library

const (
	Byte       = jit.Byte
	Word       = jit.Word
	DoubleWord = jit.DoubleWord
	QuadWord   = jit.QuadWord
	Pointer    = jit.Pointer
	Float      = jit.Float
	Double     = jit.Double
)

const (
	Native      = jit.Native
	SysV        = jit.SysV
	Win64       = jit.Win64
	AAPCS64     = jit.AAPCS64
	DarwinARM64 = jit.DarwinARM64
)

const (
	ArchAMD64 = jit.ArchAMD64
	ArchARM64 = jit.ArchARM64
)

var (
	ErrUnsupportedOperand    = jit.ErrUnsupportedOperand
	ErrUnsupportedConvention = jit.ErrUnsupportedConvention
	ErrUnsupportedOperation  = jit.ErrUnsupportedOperation
	ErrUnsupportedArch       = jit.ErrUnsupportedArch
	ErrClosed                = jit.ErrClosed
	// ErrExecUnsupported is returned when the platform has no executable
	// memory allocator.
	ErrExecUnsupported = execmem.ErrUnsupported
)

// -----------------------------------------------------------------------------
// Argument constructors
// -----------------------------------------------------------------------------

func Int8(v int8) ArgValue       { return jit.Int8(v) }
func Uint8(v uint8) ArgValue     { return jit.Uint8(v) }
func Int16(v int16) ArgValue     { return jit.Int16(v) }
func Uint16(v uint16) ArgValue   { return jit.Uint16(v) }
func Int32(v int32) ArgValue     { return jit.Int32(v) }
func Uint32(v uint32) ArgValue   { return jit.Uint32(v) }
func Int64(v int64) ArgValue     { return jit.Int64(v) }
func Uint64(v uint64) ArgValue   { return jit.Uint64(v) }
func Ptr(v uintptr) ArgValue     { return jit.Ptr(v) }
func Float32(v float32) ArgValue { return jit.Float32(v) }
func Float64(v float64) ArgValue { return jit.Float64(v) }

// NewArgValue builds a value from raw bits truncated to the width of t.
func NewArgValue(t ArgType, bits uint64) ArgValue { return jit.NewArgValue(t, bits) }

// ParseArgType parses a type name such as "i32", "ptr" or "f64".
func ParseArgType(s string) (ArgType, error) { return jit.ParseArgType(s) }

// ParseCallingConvention parses a convention name such as "sysv".
func ParseCallingConvention(s string) (CallingConvention, error) {
	return jit.ParseCallingConvention(s)
}

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

var (
	WithLogger       = jit.WithLogger
	WithAllocator    = jit.WithAllocator
	WithInvoker      = jit.WithInvoker
	WithFarCall      = jit.WithFarCall
	WithGOOS         = jit.WithGOOS
	WithABI          = jit.WithABI
	WithSignedReturn = jit.WithSignedReturn
)

// -----------------------------------------------------------------------------
// Building and calling
// -----------------------------------------------------------------------------

// Build generates a trampoline for fn on the host architecture and loads it
// into executable memory.
func Build(fn uintptr, args ArgList, conv CallingConvention, ret ArgType, opts ...Option) (*Trampoline, error) {
	return jit.Build(fn, args, conv, ret, opts...)
}

// Call builds a trampoline, invokes it once and releases it.
func Call(fn uintptr, args ArgList, conv CallingConvention, ret ArgType, opts ...Option) (ArgValue, error) {
	t, err := jit.Build(fn, args, conv, ret, opts...)
	if err != nil {
		return ArgValue{}, err
	}
	v, err := t.Invoke()
	if cerr := t.Close(); err == nil {
		err = cerr
	}
	return v, err
}

// Compile generates code for arch without loading it. It works for any
// registered architecture, not just the host's.
func Compile(arch Arch, site CallSite) (*Compiled, error) {
	return jit.Compile(arch, site)
}

// NewCache returns a trampoline cache that builds with opts.
func NewCache(opts ...Option) *Cache {
	return jit.NewCache(opts...)
}

// HostArch returns the architecture of the running process.
func HostArch() Arch { return jit.HostArch() }

// -----------------------------------------------------------------------------
// Symbols
// -----------------------------------------------------------------------------

// Open loads a shared library. An empty name opens the C runtime.
func Open(name string) (*Library, error) {
	return native.Open(name)
}
