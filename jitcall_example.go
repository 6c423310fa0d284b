//go:build ignore

// This file demonstrates every public API in the jitcall package.
// It is excluded from the build and serves as a reference and compile-time check.

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/tinyrange/jitcall"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// =========================================================================
	// Open / Symbol - resolve a C function
	// =========================================================================
	libc, err := jitcall.Open("") // empty = the C runtime
	if err != nil {
		return fmt.Errorf("open libc: %w", err)
	}
	defer libc.Close()

	labs, err := libc.Symbol("labs")
	if err != nil {
		return fmt.Errorf("resolve labs: %w", err)
	}

	// =========================================================================
	// Call - build, invoke once, release
	// =========================================================================
	v, err := jitcall.Call(labs, jitcall.ArgList{jitcall.Int64(-42)}, jitcall.Native, jitcall.QuadWord)
	if err != nil {
		return fmt.Errorf("call labs: %w", err)
	}
	fmt.Println("labs(-42) =", v.Int64())

	// =========================================================================
	// Build / Trampoline - keep the generated code around
	// =========================================================================
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	tr, err := jitcall.Build(labs, jitcall.ArgList{jitcall.Int64(-7)}, jitcall.Native, jitcall.QuadWord,
		jitcall.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	for i := 0; i < 3; i++ {
		v, err := tr.Invoke()
		if err != nil {
			return err
		}
		fmt.Println("invoke", i, v)
	}
	_ = tr.Entry() // address of the code
	_ = tr.Code()  // copy of the instructions
	_ = tr.Plan()  // argument placement
	_ = tr.ABI()   // resolved convention
	if err := tr.Close(); err != nil {
		return err
	}
	if _, err := tr.Invoke(); !errors.Is(err, jitcall.ErrClosed) {
		return fmt.Errorf("invoke after close: %v", err)
	}

	// =========================================================================
	// Cache - one trampoline per distinct call
	// =========================================================================
	cache := jitcall.NewCache()
	defer cache.Close()
	if _, err := cache.Get(labs, jitcall.ArgList{jitcall.Int64(-1)}, jitcall.Native, jitcall.QuadWord); err != nil {
		return err
	}

	// =========================================================================
	// Compile - generate code for another architecture without running it
	// =========================================================================
	compiled, err := jitcall.Compile(jitcall.ArchARM64, jitcall.CallSite{
		Func:       0x1000,
		Args:       jitcall.ArgList{jitcall.Float32(1.5)},
		Convention: jitcall.AAPCS64,
		Return:     jitcall.Float,
	})
	if err != nil {
		return err
	}
	fmt.Printf("% x\n", compiled.Program.Bytes())

	// =========================================================================
	// Errors
	// =========================================================================
	_, err = jitcall.Build(labs, nil, jitcall.Native, jitcall.QuadWord, jitcall.WithFarCall())
	var jerr *jitcall.Error
	if errors.As(err, &jerr) && errors.Is(err, jitcall.ErrUnsupportedOperation) {
		fmt.Println("far calls are rejected:", jerr.Op)
	}
	return nil
}
