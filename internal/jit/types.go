package jit

import (
	"fmt"
	"math"
	"strings"
)

// ArgType tags the storage width and register class of a call argument or
// return value.
type ArgType uint8

const (
	Byte ArgType = iota + 1
	Word
	DoubleWord
	QuadWord
	Pointer
	Float
	Double
)

var argTypeNames = map[ArgType]string{
	Byte:       "byte",
	Word:       "word",
	DoubleWord: "dword",
	QuadWord:   "qword",
	Pointer:    "ptr",
	Float:      "float",
	Double:     "double",
}

func (t ArgType) String() string {
	if name, ok := argTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ArgType(%d)", uint8(t))
}

// Valid reports whether t is one of the defined tags.
func (t ArgType) Valid() bool {
	return t >= Byte && t <= Double
}

// Size returns the meaningful width of the payload in bytes.
func (t ArgType) Size() int {
	switch t {
	case Byte:
		return 1
	case Word:
		return 2
	case DoubleWord, Float:
		return 4
	case QuadWord, Pointer, Double:
		return 8
	}
	return 0
}

// Class returns the register class the type is passed in.
func (t ArgType) Class() RegClass {
	if t == Float || t == Double {
		return ClassFloat
	}
	return ClassInt
}

// ParseArgType accepts the names printed by String plus the short forms
// used in call scripts (i8, u16, f64, ...).
func ParseArgType(s string) (ArgType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "byte", "i8", "u8", "int8", "uint8":
		return Byte, nil
	case "word", "i16", "u16", "int16", "uint16":
		return Word, nil
	case "dword", "doubleword", "i32", "u32", "int32", "uint32":
		return DoubleWord, nil
	case "qword", "quadword", "i64", "u64", "int64", "uint64":
		return QuadWord, nil
	case "ptr", "pointer", "uintptr":
		return Pointer, nil
	case "float", "f32", "float32":
		return Float, nil
	case "double", "f64", "float64":
		return Double, nil
	}
	return 0, fmt.Errorf("unknown argument type %q", s)
}

// ArgValue is a type tag plus a 64-bit payload. Floats are stored as their
// IEEE-754 bit pattern. Only the low Size() bytes of the payload are
// meaningful; the constructors clear the rest. Values built from signed Go
// integers remember it so narrow arguments are sign-extended when loaded.
type ArgValue struct {
	typ    ArgType
	bits   uint64
	signed bool
}

func mask(t ArgType, bits uint64) uint64 {
	switch t.Size() {
	case 1:
		return bits & 0xFF
	case 2:
		return bits & 0xFFFF
	case 4:
		return bits & 0xFFFFFFFF
	}
	return bits
}

// NewArgValue builds a value from raw bits, truncated to the width of t.
func NewArgValue(t ArgType, bits uint64) ArgValue {
	return ArgValue{typ: t, bits: mask(t, bits)}
}

func newSigned(t ArgType, v int64) ArgValue {
	return ArgValue{typ: t, bits: mask(t, uint64(v)), signed: true}
}

func Int8(v int8) ArgValue       { return newSigned(Byte, int64(v)) }
func Uint8(v uint8) ArgValue     { return NewArgValue(Byte, uint64(v)) }
func Int16(v int16) ArgValue     { return newSigned(Word, int64(v)) }
func Uint16(v uint16) ArgValue   { return NewArgValue(Word, uint64(v)) }
func Int32(v int32) ArgValue     { return newSigned(DoubleWord, int64(v)) }
func Uint32(v uint32) ArgValue   { return NewArgValue(DoubleWord, uint64(v)) }
func Int64(v int64) ArgValue     { return newSigned(QuadWord, v) }
func Uint64(v uint64) ArgValue   { return NewArgValue(QuadWord, v) }
func Ptr(v uintptr) ArgValue     { return NewArgValue(Pointer, uint64(v)) }
func Float32(v float32) ArgValue { return NewArgValue(Float, uint64(math.Float32bits(v))) }
func Float64(v float64) ArgValue { return NewArgValue(Double, math.Float64bits(v)) }

// Type returns the value's tag.
func (v ArgValue) Type() ArgType {
	return v.typ
}

// Bits returns the raw payload with everything above the type's width
// cleared.
func (v ArgValue) Bits() uint64 {
	return mask(v.typ, v.bits)
}

// SignExtended returns the payload sign-extended from the type's width to
// 64 bits. Only meaningful for integer types.
func (v ArgValue) SignExtended() int64 {
	b := v.Bits()
	switch v.typ.Size() {
	case 1:
		return int64(int8(b))
	case 2:
		return int64(int16(b))
	case 4:
		return int64(int32(b))
	}
	return int64(b)
}

// Signed reports whether the value was built from a signed integer.
func (v ArgValue) Signed() bool {
	return v.signed
}

// Widened returns the payload extended to 64 bits: sign-extended for
// signed integers, zero-extended otherwise.
func (v ArgValue) Widened() uint64 {
	if v.signed {
		return uint64(v.SignExtended())
	}
	return v.Bits()
}

func (v ArgValue) mustBeInt(method string) {
	if v.typ.Class() != ClassInt || !v.typ.Valid() {
		panic(&ValueError{Method: method, Type: v.typ})
	}
}

func (v ArgValue) mustBe(method string, t ArgType) {
	if v.typ != t {
		panic(&ValueError{Method: method, Type: v.typ})
	}
}

// Int64 returns the value of an integer-typed argument, sign-extended. It
// panics if v holds a Float or Double.
func (v ArgValue) Int64() int64 {
	v.mustBeInt("ArgValue.Int64")
	return v.SignExtended()
}

// Uint64 returns the value of an integer-typed argument, zero-extended. It
// panics if v holds a Float or Double.
func (v ArgValue) Uint64() uint64 {
	v.mustBeInt("ArgValue.Uint64")
	return v.Bits()
}

// Float32 panics unless v is Float.
func (v ArgValue) Float32() float32 {
	v.mustBe("ArgValue.Float32", Float)
	return math.Float32frombits(uint32(v.bits))
}

// Float64 returns the value of a Double, or of a Float widened to float64.
// It panics for integer types.
func (v ArgValue) Float64() float64 {
	switch v.typ {
	case Float:
		return float64(math.Float32frombits(uint32(v.bits)))
	case Double:
		return math.Float64frombits(v.bits)
	}
	panic(&ValueError{Method: "ArgValue.Float64", Type: v.typ})
}

func (v ArgValue) String() string {
	switch v.typ {
	case Float, Double:
		return fmt.Sprintf("%s:%g", v.typ, v.Float64())
	case Pointer:
		return fmt.Sprintf("%s:0x%x", v.typ, v.Bits())
	}
	if !v.typ.Valid() {
		return "invalid"
	}
	if v.signed {
		return fmt.Sprintf("%s:%d", v.typ, v.SignExtended())
	}
	return fmt.Sprintf("%s:%d", v.typ, v.Bits())
}

// ValueError is the panic value of an ArgValue accessor called on the wrong
// tag.
type ValueError struct {
	Method string
	Type   ArgType
}

func (e *ValueError) Error() string {
	return "jit: call of " + e.Method + " on " + e.Type.String() + " value"
}

// ArgList is one call's arguments in declaration order.
type ArgList []ArgValue

// Types returns the tag of each argument.
func (l ArgList) Types() []ArgType {
	out := make([]ArgType, len(l))
	for i, v := range l {
		out[i] = v.typ
	}
	return out
}

// Signature renders the argument types, e.g. "(dword, double, ptr)".
func (l ArgList) Signature() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, v := range l {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(v.typ.String())
	}
	sb.WriteByte(')')
	return sb.String()
}
