package jit

import (
	"fmt"
	"runtime"

	"github.com/tinyrange/jitcall/internal/asm"
)

// CallSite describes one call to compile.
type CallSite struct {
	Func       uintptr
	Args       ArgList
	Convention CallingConvention
	Return     ArgType
	// Far requests far-call addressing. No backend supports it.
	Far bool
	// GOOS selects the operating system Native resolves against. Empty
	// means the host.
	GOOS string
	// ABI overrides the backend's register table for Convention.
	ABI *ABI
}

// Compiled is a sealed trampoline program that has not been loaded into
// executable memory.
type Compiled struct {
	Arch    Arch
	ABI     ABI
	Plan    Plan
	Return  ArgType
	Program asm.Program
}

// Compile builds the trampoline for site with the backend registered for
// arch. No executable memory is touched.
func Compile(arch Arch, site CallSite) (*Compiled, error) {
	backend, err := LookupBackend(arch)
	if err != nil {
		return nil, err
	}
	return CompileWith(backend, site)
}

// CompileWith builds the trampoline for site with an explicit backend.
func CompileWith(backend Backend, site CallSite) (*Compiled, error) {
	if site.Far {
		return nil, &Error{Op: "call", Arg: -1, Err: fmt.Errorf("far call: %w", ErrUnsupportedOperation)}
	}
	if !site.Return.Valid() {
		return nil, &Error{Op: "return", Arg: -1, Err: fmt.Errorf("return type %s: %w", site.Return, ErrUnsupportedOperand)}
	}
	for i, arg := range site.Args {
		if !arg.Type().Valid() {
			return nil, &Error{Op: "classify", Arg: i, Err: fmt.Errorf("type %s: %w", arg.Type(), ErrUnsupportedOperand)}
		}
	}

	var abi ABI
	if site.ABI != nil {
		abi = site.ABI.Clone()
	} else {
		goos := site.GOOS
		if goos == "" {
			goos = runtime.GOOS
		}
		var err error
		abi, err = backend.ABI(site.Convention, goos)
		if err != nil {
			return nil, &Error{Op: "convention", Arg: -1, Err: err}
		}
	}
	if abi.SlotSize <= 0 || abi.StackAlign <= 0 {
		return nil, &Error{Op: "convention", Arg: -1, Err: fmt.Errorf("%s: incomplete stack rules: %w", abi.Name, ErrUnsupportedConvention)}
	}

	plan, err := PlanCall(abi, site.Args)
	if err != nil {
		return nil, &Error{Op: "classify", Arg: -1, Err: err}
	}

	c := &compiler{backend: backend, abi: abi, buf: asm.NewBuffer()}
	if err := c.emit(site, plan); err != nil {
		return nil, err
	}

	return &Compiled{
		Arch:    backend.Arch(),
		ABI:     abi,
		Plan:    plan,
		Return:  site.Return,
		Program: c.buf.Seal(),
	}, nil
}

type compiler struct {
	backend Backend
	abi     ABI
	buf     *asm.Buffer
}

// step runs one emission step and rolls the buffer back to its length
// before the step if it fails.
func (c *compiler) step(op string, arg int, fn func() error) error {
	mark := c.buf.Len()
	if err := fn(); err != nil {
		if terr := c.buf.Truncate(mark); terr != nil {
			return &Error{Op: op, Arg: arg, Offset: mark, Err: terr}
		}
		return &Error{Op: op, Arg: arg, Offset: mark, Err: err}
	}
	return nil
}

func (c *compiler) emit(site CallSite, plan Plan) error {
	b, abi, buf := c.backend, c.abi, c.buf

	if err := c.step("prologue", -1, func() error { return b.Prologue(buf, abi) }); err != nil {
		return err
	}

	argBytes := plan.StackBytes(abi)
	area := alignUp(argBytes+abi.ShadowSpace, abi.StackAlign)

	if area > 0 {
		if err := c.step("reserve stack", -1, func() error {
			return b.BeginStackArgs(buf, abi, area, argBytes)
		}); err != nil {
			return err
		}
	}

	// Reverse declaration order so the first spilled argument ends up at
	// the lowest address.
	for i := len(plan.Placements) - 1; i >= 0; i-- {
		pl := plan.Placements[i]
		if pl.InRegister {
			continue
		}
		if err := c.step("spill", i, func() error {
			return b.StoreStackArg(buf, abi, pl.Slot, site.Args[i])
		}); err != nil {
			return err
		}
	}

	for i, pl := range plan.Placements {
		if !pl.InRegister {
			continue
		}
		if err := c.step("load register", i, func() error {
			return b.LoadRegister(buf, abi, pl.Register, site.Args[i])
		}); err != nil {
			return err
		}
	}

	if abi.ShadowSpace > 0 {
		if err := c.step("shadow space", -1, func() error {
			return b.AdjustStack(buf, abi, -abi.ShadowSpace)
		}); err != nil {
			return err
		}
	}

	if err := c.step("call", -1, func() error { return b.Call(buf, abi, site.Func, plan) }); err != nil {
		return err
	}

	release := area
	if abi.Cleanup == CalleeCleanup {
		release -= argBytes
	}
	if release > 0 {
		if err := c.step("release stack", -1, func() error {
			return b.AdjustStack(buf, abi, release)
		}); err != nil {
			return err
		}
	}

	return c.step("epilogue", -1, func() error { return b.Epilogue(buf, abi, site.Return) })
}
