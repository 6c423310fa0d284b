// Command jitcall builds a trampoline for a native function, calls it and
// prints the result. With -dump it prints the generated code instead.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/tinyrange/jitcall/internal/jit"
	_ "github.com/tinyrange/jitcall/internal/jit/factory"
	"github.com/tinyrange/jitcall/internal/native"
	"github.com/tinyrange/jitcall/internal/script"
	"github.com/tinyrange/jitcall/internal/timeslice"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "jitcall: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	lib      string
	sym      string
	addr     string
	conv     string
	ret      string
	arch     string
	goos     string
	n        int
	dump     bool
	verbose  bool
	color    string
	progress string
	script   string
	tsfile   string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("jitcall", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var o options
	fs.StringVar(&o.lib, "lib", "", "library to resolve -sym in (default: the C runtime)")
	fs.StringVar(&o.sym, "sym", "", "symbol to call")
	fs.StringVar(&o.addr, "addr", "", "call a raw address instead of a symbol")
	fs.StringVar(&o.conv, "conv", "native", "calling convention: native, sysv, win64, aapcs64, darwin-arm64")
	fs.StringVar(&o.ret, "ret", "i64", "return type")
	fs.StringVar(&o.arch, "arch", "", "target architecture for -dump (default: host)")
	fs.StringVar(&o.goos, "goos", "", "operating system native resolves against for -dump (default: host)")
	fs.IntVar(&o.n, "n", 1, "number of invocations")
	fs.BoolVar(&o.dump, "dump", false, "print the generated code instead of running it")
	fs.BoolVar(&o.verbose, "v", false, "enable debug logging")
	fs.StringVar(&o.color, "color", "auto", "colorize output: auto, always, never")
	fs.StringVar(&o.progress, "progress", "auto", "show a progress bar for -n: auto, always, never")
	fs.StringVar(&o.script, "script", "", "run the calls in a YAML script")
	fs.StringVar(&o.tsfile, "tsfile", "", "record build and invoke timings to a file and print a summary")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: jitcall [flags] -sym name [type:value ...]\n")
		fmt.Fprintf(stderr, "       jitcall -script calls.yaml\n\n")
		fmt.Fprintf(stderr, "Argument types: i8 u8 i16 u16 i32 u32 i64 u64 ptr f32 f64\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	out := &printer{w: stdout, color: wantColor(o.color, stdout)}

	if o.tsfile == "" {
		return execute(ctx, o, fs.Args(), logger, out, stderr)
	}
	return recordTimeslices(o.tsfile, out, func() error {
		return execute(ctx, o, fs.Args(), logger, out, stderr)
	})
}

func execute(ctx context.Context, o options, literals []string, logger *slog.Logger, out *printer, stderr io.Writer) error {
	showBar := wantColor(o.progress, stderr)

	if o.script != "" {
		if len(literals) > 0 || o.sym != "" || o.addr != "" {
			return fmt.Errorf("-script cannot be combined with -sym, -addr or arguments")
		}
		return runScript(ctx, o, logger, out, stderr, showBar)
	}

	callArgs := make(jit.ArgList, 0, len(literals))
	for _, literal := range literals {
		v, err := script.ParseArg(literal)
		if err != nil {
			return err
		}
		callArgs = append(callArgs, v)
	}

	conv, err := jit.ParseCallingConvention(o.conv)
	if err != nil {
		return err
	}
	ret, err := script.ParseType(o.ret)
	if err != nil {
		return fmt.Errorf("-ret: %w", err)
	}
	if o.n < 1 {
		return fmt.Errorf("-n must be at least 1")
	}

	if o.dump {
		fn, err := dumpTarget(o)
		if err != nil {
			return err
		}
		return dump(o, out, fn, callArgs, conv, ret.ArgType)
	}

	if o.arch != "" && jit.Arch(o.arch) != jit.HostArch() {
		return fmt.Errorf("cannot execute %s code on %s: %w", o.arch, jit.HostArch(), jit.ErrUnsupportedArch)
	}

	libs := native.NewLibraries()
	defer libs.Close()

	fn, name, err := resolveTarget(o, libs)
	if err != nil {
		return err
	}

	opts := []jit.Option{jit.WithLogger(logger)}
	if ret.Signed {
		opts = append(opts, jit.WithSignedReturn())
	}
	tr, err := jit.Build(fn, callArgs, conv, ret.ArgType, opts...)
	if err != nil {
		return err
	}
	defer tr.Close()

	bar := newBar(o.n, name, stderr, showBar && o.n > 1)
	var v jit.ArgValue
	for i := 0; i < o.n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, err = tr.Invoke()
		if err != nil {
			return err
		}
		bar.Add(1)
	}
	bar.Close()

	out.result(name, callArgs, script.FormatValue(v, ret.Signed), true)
	return nil
}

func recordTimeslices(path string, out *printer, fn func() error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create timeslice file: %w", err)
	}
	defer f.Close()

	closer, err := timeslice.StartRecording(f)
	if err != nil {
		return err
	}
	runErr := fn()
	if err := closer.Close(); err != nil {
		return errors.Join(runErr, err)
	}
	if runErr != nil {
		return runErr
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind timeslice file: %w", err)
	}
	stats, err := timeslice.Summarize(f)
	if err != nil {
		return err
	}
	out.heading("timings")
	for _, s := range stats {
		out.line(fmt.Sprintf("  %-8s %-7s n=%-6d total=%-12s mean=%-10s min=%-10s max=%s",
			s.Name, s.Flags, s.Count, s.Total, s.Mean(), s.Min, s.Max))
	}
	return nil
}

func wantColor(mode string, w io.Writer) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func newBar(n int, description string, w io.Writer, visible bool) *progressbar.ProgressBar {
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetVisibility(visible),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func parseAddress(s string) (uintptr, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("-addr %q: %w", s, err)
	}
	if v == 0 {
		return 0, fmt.Errorf("-addr must not be zero")
	}
	return uintptr(v), nil
}

func resolveTarget(o options, libs *native.Libraries) (uintptr, string, error) {
	switch {
	case o.addr != "" && o.sym != "":
		return 0, "", fmt.Errorf("-addr and -sym are mutually exclusive")
	case o.addr != "":
		fn, err := parseAddress(o.addr)
		return fn, o.addr, err
	case o.sym != "":
		fn, err := libs.Resolve(o.lib, o.sym)
		return fn, o.sym, err
	}
	return 0, "", fmt.Errorf("one of -sym, -addr or -script is required")
}

// dumpTarget resolves the call target without requiring a loadable
// library when code is only printed.
func dumpTarget(o options) (uintptr, error) {
	if o.addr != "" {
		return parseAddress(o.addr)
	}
	if o.sym == "" {
		return 0, fmt.Errorf("one of -sym or -addr is required")
	}
	if o.arch != "" && jit.Arch(o.arch) != jit.HostArch() {
		return 0, fmt.Errorf("-sym cannot be resolved for foreign architecture %s; use -addr", o.arch)
	}
	libs := native.NewLibraries()
	defer libs.Close()
	return libs.Resolve(o.lib, o.sym)
}

func dump(o options, out *printer, fn uintptr, args jit.ArgList, conv jit.CallingConvention, ret jit.ArgType) error {
	arch := jit.HostArch()
	if o.arch != "" {
		arch = jit.Arch(o.arch)
	}
	compiled, err := jit.Compile(arch, jit.CallSite{
		Func:       fn,
		Args:       args,
		Convention: conv,
		Return:     ret,
		GOOS:       o.goos,
	})
	if err != nil {
		return err
	}

	out.heading(fmt.Sprintf("%s %s%s -> %s", compiled.ABI.Name, fmt.Sprintf("0x%x", fn), args.Signature(), ret))
	for _, pl := range compiled.Plan.Placements {
		where := "stack slot " + strconv.Itoa(pl.Slot)
		if pl.InRegister {
			where = pl.Register.Name
		}
		out.line(fmt.Sprintf("  arg %d %-6s %s", pl.Index, pl.Type, where))
	}

	code := compiled.Program.Bytes()
	out.heading(fmt.Sprintf("code (%d bytes)", len(code)))
	lines, err := disassemble(arch, code)
	if err != nil {
		return err
	}
	for _, l := range lines {
		out.line(fmt.Sprintf("  %04x  %-24s %s", l.offset, hex.EncodeToString(l.raw), l.text))
	}
	return nil
}

func runScript(ctx context.Context, o options, logger *slog.Logger, out *printer, stderr io.Writer, showBar bool) error {
	s, err := script.Load(o.script)
	if err != nil {
		return err
	}
	if o.lib != "" && s.Library == "" {
		s.Library = o.lib
	}

	libs := native.NewLibraries()
	defer libs.Close()

	var bar *progressbar.ProgressBar
	runner := &script.Runner{
		Resolver: libs,
		Options:  []jit.Option{jit.WithLogger(logger)},
		Logger:   logger,
		Progress: func(call *script.Call, done, total int) {
			if total == 1 {
				return
			}
			if done == 1 {
				bar = newBar(total, call.SymbolName(), stderr, showBar)
			}
			bar.Add(1)
			if done == total {
				bar.Close()
			}
		},
	}

	results, err := runner.Run(ctx, s)
	for _, res := range results {
		out.result(res.Call.SymbolName(), res.Call.ArgList(), res.Text, res.Passed())
	}
	return err
}

// printer writes human output, styled when the destination is a terminal.
type printer struct {
	w     io.Writer
	color bool
}

func (p *printer) write(s string) {
	if !p.color {
		s = ansi.Strip(s)
	}
	fmt.Fprintln(p.w, s)
}

func (p *printer) heading(s string) {
	p.write(ansi.Style{}.Bold().Styled(s))
}

func (p *printer) line(s string) {
	p.write(s)
}

func (p *printer) result(name string, args jit.ArgList, value string, passed bool) {
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(a.String())
	}
	sb.WriteString(") = ")

	style := ansi.Style{}.ForegroundColor(ansi.Green)
	if !passed {
		style = ansi.Style{}.ForegroundColor(ansi.Red)
	}
	sb.WriteString(style.Styled(value))
	if !passed {
		sb.WriteString(" (mismatch)")
	}
	p.write(sb.String())
}
