package jit

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/tinyrange/jitcall/internal/asm"
)

var errInjected = errors.New("injected failure")

// recordingBackend emits one marker byte per step and logs what it was
// asked to do. Setting failOn makes that step write garbage and fail.
type recordingBackend struct {
	abi    ABI
	steps  []string
	failOn string
}

func (b *recordingBackend) record(buf *asm.Buffer, step string) error {
	b.steps = append(b.steps, step)
	if step == b.failOn {
		buf.EmitBytes([]byte{0xDE, 0xAD})
		return errInjected
	}
	buf.EmitBytes([]byte{byte(len(b.steps))})
	return nil
}

func (b *recordingBackend) Arch() Arch { return "recording" }

func (b *recordingBackend) ABI(conv CallingConvention, goos string) (ABI, error) {
	if conv != Native {
		return ABI{}, fmt.Errorf("recording: %s: %w", conv, ErrUnsupportedConvention)
	}
	return b.abi.Clone(), nil
}

func (b *recordingBackend) Prologue(buf *asm.Buffer, abi ABI) error {
	return b.record(buf, "prologue")
}

func (b *recordingBackend) BeginStackArgs(buf *asm.Buffer, abi ABI, area, argBytes int32) error {
	return b.record(buf, fmt.Sprintf("begin %d %d", area, argBytes))
}

func (b *recordingBackend) StoreStackArg(buf *asm.Buffer, abi ABI, slot int, v ArgValue) error {
	return b.record(buf, fmt.Sprintf("store %d %s", slot, v))
}

func (b *recordingBackend) LoadRegister(buf *asm.Buffer, abi ABI, reg Register, v ArgValue) error {
	return b.record(buf, fmt.Sprintf("load %s %s", reg, v))
}

func (b *recordingBackend) AdjustStack(buf *asm.Buffer, abi ABI, delta int32) error {
	return b.record(buf, fmt.Sprintf("adjust %d", delta))
}

func (b *recordingBackend) Call(buf *asm.Buffer, abi ABI, fn uintptr, plan Plan) error {
	return b.record(buf, fmt.Sprintf("call 0x%x", fn))
}

func (b *recordingBackend) Epilogue(buf *asm.Buffer, abi ABI, ret ArgType) error {
	return b.record(buf, "epilogue "+ret.String())
}

func expectSteps(t *testing.T, got []string, want ...string) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("steps:\n  got  %q\n  want %q", got, want)
	}
}

func TestCompileRegisterOnly(t *testing.T) {
	b := &recordingBackend{abi: testSplit}
	compiled, err := CompileWith(b, CallSite{
		Func:   0x1234,
		Args:   ArgList{Int32(1), Float64(2)},
		Return: DoubleWord,
	})
	if err != nil {
		t.Fatalf("CompileWith: %v", err)
	}
	expectSteps(t, b.steps,
		"prologue",
		"load r0 dword:1",
		"load f0 double:2",
		"call 0x1234",
		"epilogue dword",
	)
	if compiled.Program.Len() != len(b.steps) {
		t.Fatalf("program length %d, want %d", compiled.Program.Len(), len(b.steps))
	}
	if compiled.Arch != "recording" || compiled.Return != DoubleWord {
		t.Fatalf("compiled=%+v", compiled)
	}
}

func TestCompileSpillsInReverseWithShadowSpace(t *testing.T) {
	b := &recordingBackend{abi: testShared}
	_, err := CompileWith(b, CallSite{
		Func:   0x10,
		Args:   ArgList{Int32(1), Int32(2), Int32(3), Int32(4), Int32(5), Int32(6)},
		Return: QuadWord,
	})
	if err != nil {
		t.Fatalf("CompileWith: %v", err)
	}
	expectSteps(t, b.steps,
		"prologue",
		"begin 48 16",
		"store 1 dword:6",
		"store 0 dword:5",
		"load r0 dword:1",
		"load r1 dword:2",
		"load r2 dword:3",
		"load r3 dword:4",
		"adjust -32",
		"call 0x10",
		"adjust 48",
		"epilogue qword",
	)
}

func TestCompileCalleeCleanup(t *testing.T) {
	abi := testSplit.Clone()
	abi.IntArgs = abi.IntArgs[:1]
	abi.Cleanup = CalleeCleanup

	b := &recordingBackend{abi: abi}
	_, err := CompileWith(b, CallSite{Func: 0x10, Args: ArgList{Int64(1), Int64(2)}, Return: QuadWord})
	if err != nil {
		t.Fatalf("CompileWith: %v", err)
	}
	expectSteps(t, b.steps,
		"prologue",
		"begin 16 8",
		"store 0 qword:2",
		"load r0 qword:1",
		"call 0x10",
		"adjust 8",
		"epilogue qword",
	)
}

func TestCompileRollsBackFailedStep(t *testing.T) {
	b := &recordingBackend{abi: testSplit, failOn: "load f0 double:2"}
	c := &compiler{backend: b, abi: testSplit, buf: asm.NewBuffer()}

	site := CallSite{Func: 0x10, Args: ArgList{Int32(1), Float64(2)}, Return: QuadWord}
	plan, err := PlanCall(testSplit, site.Args)
	if err != nil {
		t.Fatalf("PlanCall: %v", err)
	}

	err = c.emit(site, plan)
	if !errors.Is(err, errInjected) {
		t.Fatalf("err=%v, want injected failure", err)
	}
	var jerr *Error
	if !errors.As(err, &jerr) {
		t.Fatalf("err=%T, want *Error", err)
	}
	if jerr.Op != "load register" || jerr.Arg != 1 || jerr.Offset != 2 {
		t.Fatalf("Error=%+v, want load register arg 1 at offset 2", jerr)
	}
	if c.buf.Len() != jerr.Offset {
		t.Fatalf("buffer holds %d bytes, want %d", c.buf.Len(), jerr.Offset)
	}
	if want := "jit: load register arg 1 at offset 2: injected failure"; jerr.Error() != want {
		t.Fatalf("Error()=%q, want %q", jerr.Error(), want)
	}
}

func TestCompileRejections(t *testing.T) {
	incomplete := testSplit.Clone()
	incomplete.SlotSize = 0

	cases := []struct {
		name string
		site CallSite
		want error
		op   string
	}{
		{"far call", CallSite{Func: 1, Return: QuadWord, Far: true}, ErrUnsupportedOperation, "call"},
		{"no return type", CallSite{Func: 1}, ErrUnsupportedOperand, "return"},
		{"invalid argument", CallSite{Func: 1, Return: QuadWord, Args: ArgList{Int8(1), {}}}, ErrUnsupportedOperand, "classify"},
		{"unknown convention", CallSite{Func: 1, Return: QuadWord, Convention: Win64}, ErrUnsupportedConvention, "convention"},
		{"incomplete abi", CallSite{Func: 1, Return: QuadWord, ABI: &incomplete}, ErrUnsupportedConvention, "convention"},
	}
	for _, tc := range cases {
		b := &recordingBackend{abi: testSplit}
		_, err := CompileWith(b, tc.site)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: err=%v, want %v", tc.name, err, tc.want)
		}
		var jerr *Error
		if !errors.As(err, &jerr) || jerr.Op != tc.op {
			t.Fatalf("%s: err=%v, want op %q", tc.name, err, tc.op)
		}
		if len(b.steps) != 0 {
			t.Fatalf("%s: emitted %q before rejecting", tc.name, b.steps)
		}
	}
}

func TestCompileUnknownArch(t *testing.T) {
	_, err := Compile("pdp11", CallSite{Func: 1, Return: QuadWord})
	if !errors.Is(err, ErrUnsupportedArch) {
		t.Fatalf("err=%v, want ErrUnsupportedArch", err)
	}
}

func TestCompileSiteABIOverride(t *testing.T) {
	custom := testSplit.Clone()
	custom.IntArgs = []Register{{Name: "only", Code: 3}}

	b := &recordingBackend{abi: testSplit}
	compiled, err := CompileWith(b, CallSite{Func: 1, Return: QuadWord, Args: ArgList{Int64(1)}, ABI: &custom})
	if err != nil {
		t.Fatalf("CompileWith: %v", err)
	}
	if compiled.Plan.Placements[0].Register.Name != "only" {
		t.Fatalf("override ignored: %+v", compiled.Plan.Placements[0])
	}
	// The override is copied, not aliased.
	custom.IntArgs[0].Name = "changed"
	if compiled.ABI.IntArgs[0].Name != "only" {
		t.Fatalf("compiled ABI aliases the caller's table")
	}
}
