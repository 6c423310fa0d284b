//go:build linux && (amd64 || arm64)

package main

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestCallLabs(t *testing.T) {
	stdout, _, err := runCLI(t, "-sym", "labs", "-n", "3", "i64:-42")
	if err != nil {
		t.Skipf("labs not callable here: %v", err)
	}
	if !strings.Contains(stdout, "labs(qword:-42) = 42") {
		t.Fatalf("unexpected output %q", stdout)
	}
}

func TestDumpResolvesSymbol(t *testing.T) {
	stdout, _, err := runCLI(t, "-dump", "-sym", "labs", "i64:1")
	if err != nil {
		t.Skipf("labs not resolvable here: %v", err)
	}
	if !strings.Contains(stdout, "code (") {
		t.Fatalf("no code listing:\n%s", stdout)
	}
}

func TestScriptRun(t *testing.T) {
	path := writeScript(t, `
calls:
  - name: labs
    return: i64
    args: ["i64:-7"]
    expect: "7"
  - name: abs
    return: i32
    repeat: 2
    args: ["i32:-9"]
    expect: "9"
`)
	stdout, _, err := runCLI(t, "-script", path)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, stdout)
	}
	for _, want := range []string{"labs(qword:-7) = 7", "abs(dword:-9) = 9"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("output missing %q:\n%s", want, stdout)
		}
	}
}

func TestScriptMismatch(t *testing.T) {
	path := writeScript(t, `
calls:
  - name: labs
    return: i64
    args: ["i64:-7"]
    expect: "8"
`)
	stdout, _, err := runCLI(t, "-script", path)
	if err == nil {
		t.Fatalf("mismatch not reported")
	}
	if !strings.Contains(stdout, "(mismatch)") {
		t.Fatalf("mismatch not shown:\n%s", stdout)
	}
}

func TestTimesliceSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calls.ts")
	stdout, _, err := runCLI(t, "-sym", "labs", "-n", "5", "-tsfile", path, "i64:-1")
	if err != nil {
		t.Skipf("labs not callable here: %v", err)
	}
	for _, want := range []string{"timings", "compile", "load", "invoke   native  n=5", "release"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("summary missing %q:\n%s", want, stdout)
		}
	}
}
