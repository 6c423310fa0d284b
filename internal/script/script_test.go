package script

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tinyrange/jitcall/internal/jit"
	_ "github.com/tinyrange/jitcall/internal/jit/factory"
)

func TestParseArg(t *testing.T) {
	cases := []struct {
		in   string
		want jit.ArgValue
	}{
		{"i8:-1", jit.Int8(-1)},
		{"u8:0xff", jit.Uint8(0xFF)},
		{"i16:-300", jit.Int16(-300)},
		{"u16:65535", jit.Uint16(65535)},
		{"i32:-5", jit.Int32(-5)},
		{"dword:7", jit.Int32(7)},
		{"u32:4294967295", jit.Uint32(0xFFFFFFFF)},
		{"i64:-9000000000", jit.Int64(-9000000000)},
		{"u64:0x8000000000000000", jit.Uint64(1 << 63)},
		{"ptr:0x1000", jit.Ptr(0x1000)},
		{"f32:1.5", jit.Float32(1.5)},
		{"f64: -0.25", jit.Float64(-0.25)},
	}
	for _, tc := range cases {
		got, err := ParseArg(tc.in)
		if err != nil {
			t.Fatalf("ParseArg(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseArg(%q)=%s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestParseArgErrors(t *testing.T) {
	for _, in := range []string{
		"42",
		"i128:1",
		"i8:200",
		"u8:-1",
		"u16:0x10000",
		"f64:abc",
	} {
		if _, err := ParseArg(in); err == nil {
			t.Fatalf("ParseArg(%q) succeeded", in)
		}
	}
}

func TestFormatValue(t *testing.T) {
	cases := []struct {
		v      jit.ArgValue
		signed bool
		want   string
	}{
		{jit.NewArgValue(jit.DoubleWord, 0xFFFFFFFF), true, "-1"},
		{jit.NewArgValue(jit.DoubleWord, 0xFFFFFFFF), false, "4294967295"},
		{jit.NewArgValue(jit.Byte, 0x80), true, "-128"},
		{jit.Ptr(0xABC), false, "0xabc"},
		{jit.Float32(0.5), false, "0.5"},
		{jit.Float64(1024), false, "1024"},
	}
	for _, tc := range cases {
		if got := FormatValue(tc.v, tc.signed); got != tc.want {
			t.Fatalf("FormatValue(%s, %v)=%q, want %q", tc.v, tc.signed, got, tc.want)
		}
	}
}

const sample = `
library: libc.so.6
calls:
  - name: labs
    return: i64
    args: ["i64:-42"]
    expect: "42"
  - name: pow
    library: libm.so.6
    convention: sysv
    return: f64
    repeat: 3
    args:
      - f64:2
      - {type: f64, value: "10"}
`

func TestParseScript(t *testing.T) {
	s, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.Library != "libc.so.6" || len(s.Calls) != 2 {
		t.Fatalf("script=%+v", s)
	}

	labs := s.Calls[0]
	if labs.SymbolName() != "labs" || labs.Return.ArgType != jit.QuadWord || !labs.Return.Signed {
		t.Fatalf("labs=%+v", labs)
	}
	if labs.Expect == nil || *labs.Expect != "42" {
		t.Fatalf("labs expect=%v", labs.Expect)
	}
	if labs.Times() != 1 || labs.Convention.CallingConvention != jit.Native {
		t.Fatalf("labs defaults: repeat %d, convention %s", labs.Times(), labs.Convention)
	}

	pow := s.Calls[1]
	if pow.Library != "libm.so.6" || pow.Convention.CallingConvention != jit.SysV || pow.Times() != 3 {
		t.Fatalf("pow=%+v", pow)
	}
	args := pow.ArgList()
	if len(args) != 2 || args[0] != jit.Float64(2) || args[1] != jit.Float64(10) {
		t.Fatalf("pow args=%v", args)
	}
}

func TestParseScriptErrors(t *testing.T) {
	cases := map[string]string{
		"empty":          "library: x\n",
		"no return":      "calls:\n  - name: f\n",
		"no symbol":      "calls:\n  - return: i32\n",
		"bad arg":        "calls:\n  - name: f\n    return: i32\n    args: [\"i32:x\"]\n",
		"bad convention": "calls:\n  - name: f\n    return: i32\n    convention: fastcall\n",
		"bad type":       "calls:\n  - name: f\n    return: i96\n",
		"negative":       "calls:\n  - name: f\n    return: i32\n    repeat: -1\n",
		"arg sequence":   "calls:\n  - name: f\n    return: i32\n    args: [[1]]\n",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: Parse succeeded", name)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calls.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.Calls) != 2 {
		t.Fatalf("loaded %d calls, want 2", len(s.Calls))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("Load of missing file succeeded")
	}
}

type mapResolver map[string]uintptr

func (m mapResolver) Resolve(library, symbol string) (uintptr, error) {
	if addr, ok := m[library+"!"+symbol]; ok {
		return addr, nil
	}
	return 0, errors.New("not found: " + library + "!" + symbol)
}

func TestRunnerWithFakeInvoker(t *testing.T) {
	if _, err := jit.LookupBackend(jit.HostArch()); err != nil {
		t.Skipf("no backend for %s", jit.HostArch())
	}

	s, err := Parse([]byte(`
calls:
  - name: first
    return: i32
    expect: "-1"
  - name: second
    return: u32
    repeat: 4
    expect: "1"
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	invocations := 0
	progress := 0
	runner := &Runner{
		Resolver: mapResolver{"!first": 0x1000, "!second": 0x2000},
		Options: []jit.Option{jit.WithInvoker(jit.InvokerFunc(func(uintptr) uint64 {
			invocations++
			return 0xFFFFFFFF
		}))},
		Progress: func(*Call, int, int) { progress++ },
	}

	results, err := runner.Run(context.Background(), s)
	if !errors.Is(err, ErrMismatch) {
		t.Fatalf("err=%v, want ErrMismatch", err)
	}
	if !strings.Contains(err.Error(), "second") {
		t.Fatalf("mismatch does not name the call: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("%d results, want 2", len(results))
	}
	if !results[0].Passed() || results[0].Text != "-1" {
		t.Fatalf("first=%q passed=%v", results[0].Text, results[0].Passed())
	}
	if results[1].Passed() || results[1].Text != "4294967295" {
		t.Fatalf("second=%q passed=%v", results[1].Text, results[1].Passed())
	}
	if invocations != 5 || progress != 5 {
		t.Fatalf("invocations=%d progress=%d, want 5", invocations, progress)
	}
}

func TestRunnerStopsOnResolveError(t *testing.T) {
	s := &Script{Calls: []Call{{Name: "missing", Return: Type{ArgType: jit.QuadWord}}}}
	runner := &Runner{Resolver: mapResolver{}}
	if _, err := runner.Run(context.Background(), s); err == nil {
		t.Fatalf("Run succeeded with unresolvable symbol")
	}
}

func TestRunnerHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &Script{Calls: []Call{{Name: "f", Return: Type{ArgType: jit.QuadWord}}}}
	runner := &Runner{Resolver: mapResolver{"!f": 1}}
	if _, err := runner.Run(ctx, s); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
}
