package jit

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/tinyrange/jitcall/internal/execmem"
	"github.com/tinyrange/jitcall/internal/timeslice"
)

var (
	tsCompile = timeslice.RegisterKind("compile", timeslice.FlagBuild)
	tsLoad    = timeslice.RegisterKind("load", timeslice.FlagBuild)
	tsInvoke  = timeslice.RegisterKind("invoke", timeslice.FlagNative)
	tsRelease = timeslice.RegisterKind("release", timeslice.FlagBuild)
)

// Invoker transfers control to generated code that takes no arguments and
// returns the content of the integer return register.
type Invoker interface {
	Invoke(entry uintptr) uint64
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(entry uintptr) uint64

func (f InvokerFunc) Invoke(entry uintptr) uint64 { return f(entry) }

type options struct {
	logger  *slog.Logger
	alloc   execmem.Allocator
	invoker Invoker
	far     bool
	goos    string
	abi     *ABI
	signed  bool
}

// Option configures Build.
type Option func(*options)

// WithLogger sets the logger used for build diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithAllocator replaces the host executable memory allocator.
func WithAllocator(a execmem.Allocator) Option {
	return func(o *options) { o.alloc = a }
}

// WithInvoker replaces the default way of calling the generated entry point.
func WithInvoker(inv Invoker) Option {
	return func(o *options) { o.invoker = inv }
}

// WithFarCall requests far-call addressing. Builds fail with
// ErrUnsupportedOperation.
func WithFarCall() Option {
	return func(o *options) { o.far = true }
}

// WithGOOS resolves Native against goos instead of the host.
func WithGOOS(goos string) Option {
	return func(o *options) { o.goos = goos }
}

// WithABI supplies a custom register table instead of the backend's table
// for the convention.
func WithABI(abi ABI) Option {
	return func(o *options) { o.abi = &abi }
}

// WithSignedReturn makes Invoke sign-extend Byte, Word and DoubleWord
// results. Without it they are zero-extended.
func WithSignedReturn() Option {
	return func(o *options) { o.signed = true }
}

func buildOptions(opts []Option) options {
	o := options{
		logger:  slog.Default(),
		alloc:   execmem.Host(),
		invoker: defaultInvoker(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Trampoline is generated code calling one function with fixed arguments.
// It may be invoked any number of times until Close.
type Trampoline struct {
	compiled *Compiled
	region   *execmem.Region
	alloc    execmem.Allocator
	invoker  Invoker
	signed   bool

	mu     sync.RWMutex
	closed bool
}

// Build compiles a call to fn for the host architecture and loads it into
// executable memory. Every error is reported before memory is allocated.
func Build(fn uintptr, args ArgList, conv CallingConvention, ret ArgType, opts ...Option) (*Trampoline, error) {
	o := buildOptions(opts)

	if o.invoker == nil {
		return nil, fmt.Errorf("build trampoline: no invoker for %s/%s: %w", runtime.GOOS, runtime.GOARCH, ErrUnsupportedArch)
	}
	if o.goos != "" && o.goos != runtime.GOOS {
		return nil, fmt.Errorf("build trampoline: cannot execute %s code on %s: %w", o.goos, runtime.GOOS, ErrUnsupportedArch)
	}

	rec := timeslice.NewRecorder()
	compiled, err := Compile(HostArch(), CallSite{
		Func:       fn,
		Args:       args,
		Convention: conv,
		Return:     ret,
		Far:        o.far,
		GOOS:       o.goos,
		ABI:        o.abi,
	})
	if err != nil {
		return nil, err
	}
	rec.Record(tsCompile)

	region, err := execmem.Load(o.alloc, compiled.Program)
	if err != nil {
		return nil, fmt.Errorf("build trampoline: %w", err)
	}
	rec.Record(tsLoad)

	o.logger.Debug("built trampoline",
		slog.String("convention", compiled.ABI.Name),
		slog.String("args", args.Signature()),
		slog.String("return", ret.String()),
		slog.Int("int_regs", compiled.Plan.IntCount),
		slog.Int("float_regs", compiled.Plan.FloatCount),
		slog.Int("stack_slots", compiled.Plan.StackCount),
		slog.Int("code_size", compiled.Program.Len()),
		slog.String("entry", fmt.Sprintf("0x%x", region.Addr())),
	)

	return &Trampoline{
		compiled: compiled,
		region:   region,
		alloc:    o.alloc,
		invoker:  o.invoker,
		signed:   o.signed && ret.Class() == ClassInt,
	}, nil
}

// Invoke runs the generated code and reinterprets the return register by
// the requested return type. A fault inside the callee is not recovered.
func (t *Trampoline) Invoke() (ArgValue, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return ArgValue{}, ErrClosed
	}
	start := time.Now()
	raw := t.invoker.Invoke(t.region.Addr())
	timeslice.Record(tsInvoke, time.Since(start))
	if t.signed {
		return newSigned(t.compiled.Return, int64(raw)), nil
	}
	return NewArgValue(t.compiled.Return, raw), nil
}

// Close releases the executable memory. It waits for running invocations
// and is safe to call more than once.
func (t *Trampoline) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	start := time.Now()
	err := t.alloc.Release(t.region)
	timeslice.Record(tsRelease, time.Since(start))
	return err
}

// Entry returns the address of the generated code, or 0 after Close.
func (t *Trampoline) Entry() uintptr {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return 0
	}
	return t.region.Addr()
}

// Code returns a copy of the generated instructions.
func (t *Trampoline) Code() []byte {
	return t.compiled.Program.Bytes()
}

// Plan returns the argument placement the code was generated from.
func (t *Trampoline) Plan() Plan {
	return t.compiled.Plan
}

// ABI returns the resolved calling convention.
func (t *Trampoline) ABI() ABI {
	return t.compiled.ABI.Clone()
}

// Return returns the requested return type.
func (t *Trampoline) Return() ArgType {
	return t.compiled.Return
}
