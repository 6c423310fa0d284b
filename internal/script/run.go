package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinyrange/jitcall/internal/jit"
)

// ErrMismatch is returned when a result differs from its expectation.
var ErrMismatch = errors.New("result mismatch")

// Resolver finds the address of a symbol. An empty library means the
// default one.
type Resolver interface {
	Resolve(library, symbol string) (uintptr, error)
}

// Result is the outcome of one call.
type Result struct {
	Call *Call
	// Value is the result of the last invocation.
	Value   jit.ArgValue
	Text    string
	Elapsed time.Duration
}

// Passed reports whether the result matched the expectation, or no
// expectation was given.
func (r Result) Passed() bool {
	return r.Call.Expect == nil || *r.Call.Expect == r.Text
}

// Runner executes scripts.
type Runner struct {
	Resolver Resolver
	Options  []jit.Option
	Logger   *slog.Logger
	// Progress, when set, is called after every invocation.
	Progress func(call *Call, done, total int)
}

// Run executes every call in order. A call that cannot be built stops the
// run; mismatched results are collected and reported together at the end.
func (r *Runner) Run(ctx context.Context, s *Script) ([]Result, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		results    []Result
		mismatches []error
	)
	for i := range s.Calls {
		call := &s.Calls[i]
		if err := ctx.Err(); err != nil {
			return results, err
		}

		library := call.Library
		if library == "" {
			library = s.Library
		}
		fn, err := r.Resolver.Resolve(library, call.SymbolName())
		if err != nil {
			return results, fmt.Errorf("call %s: %w", call.SymbolName(), err)
		}

		res, err := r.runCall(ctx, call, fn)
		if err != nil {
			return results, fmt.Errorf("call %s: %w", call.SymbolName(), err)
		}
		results = append(results, res)

		logger.Debug("call finished",
			slog.String("symbol", call.SymbolName()),
			slog.String("result", res.Text),
			slog.Int("repeat", call.Times()),
			slog.Duration("elapsed", res.Elapsed),
		)
		if !res.Passed() {
			mismatches = append(mismatches, fmt.Errorf("call %s: got %s, want %s: %w",
				call.SymbolName(), res.Text, *call.Expect, ErrMismatch))
		}
	}
	return results, errors.Join(mismatches...)
}

func (r *Runner) runCall(ctx context.Context, call *Call, fn uintptr) (Result, error) {
	opts := append([]jit.Option(nil), r.Options...)
	if call.Return.Signed {
		opts = append(opts, jit.WithSignedReturn())
	}
	tr, err := jit.Build(fn, call.ArgList(), call.Convention.CallingConvention, call.Return.ArgType, opts...)
	if err != nil {
		return Result{}, err
	}
	defer tr.Close()

	res := Result{Call: call}
	start := time.Now()
	total := call.Times()
	for n := 1; n <= total; n++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		v, err := tr.Invoke()
		if err != nil {
			return Result{}, err
		}
		res.Value = v
		if r.Progress != nil {
			r.Progress(call, n, total)
		}
	}
	res.Elapsed = time.Since(start)
	res.Text = FormatValue(res.Value, call.Return.Signed)
	return res, nil
}
