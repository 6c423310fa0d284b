package jit

import (
	"errors"
	"math"
	"testing"
)

func TestArgValueWidth(t *testing.T) {
	cases := []struct {
		name    string
		v       ArgValue
		bits    uint64
		widened uint64
	}{
		{"int8 -1", Int8(-1), 0xFF, 0xFFFFFFFFFFFFFFFF},
		{"uint8 255", Uint8(255), 0xFF, 0xFF},
		{"int16 -2", Int16(-2), 0xFFFE, 0xFFFFFFFFFFFFFFFE},
		{"uint16", Uint16(0xBEEF), 0xBEEF, 0xBEEF},
		{"int32 min", Int32(math.MinInt32), 0x80000000, 0xFFFFFFFF80000000},
		{"uint32 max", Uint32(math.MaxUint32), 0xFFFFFFFF, 0xFFFFFFFF},
		{"int64", Int64(-3), 0xFFFFFFFFFFFFFFFD, 0xFFFFFFFFFFFFFFFD},
		{"raw truncated", NewArgValue(Word, 0x123456789), 0x6789, 0x6789},
		{"pointer", Ptr(0xDEAD0000), 0xDEAD0000, 0xDEAD0000},
	}
	for _, tc := range cases {
		if got := tc.v.Bits(); got != tc.bits {
			t.Fatalf("%s: Bits=0x%x, want 0x%x", tc.name, got, tc.bits)
		}
		if got := tc.v.Widened(); got != tc.widened {
			t.Fatalf("%s: Widened=0x%x, want 0x%x", tc.name, got, tc.widened)
		}
	}
}

func TestArgValueAccessors(t *testing.T) {
	if got := Int16(-5).Int64(); got != -5 {
		t.Fatalf("Int64=%d, want -5", got)
	}
	if got := Int16(-5).Uint64(); got != 0xFFFB {
		t.Fatalf("Uint64=0x%x, want 0xfffb", got)
	}
	if got := Float32(2.5).Float32(); got != 2.5 {
		t.Fatalf("Float32=%v, want 2.5", got)
	}
	if got := Float32(2.5).Float64(); got != 2.5 {
		t.Fatalf("Float64 of float=%v, want 2.5", got)
	}
	if got := Float64(-0.125).Float64(); got != -0.125 {
		t.Fatalf("Float64=%v, want -0.125", got)
	}
	if got := Float64(1).Bits(); got != 0x3FF0000000000000 {
		t.Fatalf("Float64 bits=0x%x", got)
	}
	if !Int8(1).Signed() || Uint8(1).Signed() {
		t.Fatalf("signedness not recorded")
	}
}

func expectValuePanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("%s: no panic", name)
		}
		var verr *ValueError
		err, ok := r.(error)
		if !ok || !errors.As(err, &verr) {
			t.Fatalf("%s: panic value %v, want *ValueError", name, r)
		}
	}()
	fn()
}

func TestArgValueWrongAccessorPanics(t *testing.T) {
	expectValuePanic(t, "Int64 on double", func() { Float64(1).Int64() })
	expectValuePanic(t, "Uint64 on float", func() { Float32(1).Uint64() })
	expectValuePanic(t, "Float32 on double", func() { Float64(1).Float32() })
	expectValuePanic(t, "Float64 on dword", func() { Int32(1).Float64() })
}

func TestParseArgType(t *testing.T) {
	for in, want := range map[string]ArgType{
		"i8":     Byte,
		"U16":    Word,
		"dword":  DoubleWord,
		"int64":  QuadWord,
		" ptr ":  Pointer,
		"f32":    Float,
		"double": Double,
	} {
		got, err := ParseArgType(in)
		if err != nil {
			t.Fatalf("ParseArgType(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseArgType(%q)=%s, want %s", in, got, want)
		}
	}
	if _, err := ParseArgType("int128"); err == nil {
		t.Fatalf("ParseArgType(int128) succeeded")
	}
}

func TestArgTypeProperties(t *testing.T) {
	if ArgType(0).Valid() || ArgType(8).Valid() {
		t.Fatalf("out of range tags reported valid")
	}
	for typ, size := range map[ArgType]int{Byte: 1, Word: 2, DoubleWord: 4, QuadWord: 8, Pointer: 8, Float: 4, Double: 8} {
		if typ.Size() != size {
			t.Fatalf("%s.Size()=%d, want %d", typ, typ.Size(), size)
		}
	}
	if Float.Class() != ClassFloat || Double.Class() != ClassFloat || Pointer.Class() != ClassInt {
		t.Fatalf("register classes wrong")
	}
}

func TestArgListSignature(t *testing.T) {
	l := ArgList{Int32(1), Float64(2), Ptr(3)}
	if got, want := l.Signature(), "(dword, double, ptr)"; got != want {
		t.Fatalf("Signature=%q, want %q", got, want)
	}
	if got, want := Int8(-3).String(), "byte:-3"; got != want {
		t.Fatalf("String=%q, want %q", got, want)
	}
	if got, want := Ptr(0x10).String(), "ptr:0x10"; got != want {
		t.Fatalf("String=%q, want %q", got, want)
	}
}
