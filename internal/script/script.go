// Package script reads YAML files describing native calls to build and run.
package script

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tinyrange/jitcall/internal/jit"
)

// Script is a list of calls against one default library.
type Script struct {
	// Library is opened for calls that do not name their own. Empty means
	// the C runtime.
	Library string `yaml:"library"`
	Calls   []Call `yaml:"calls"`
}

// Call describes one native call.
type Call struct {
	Name string `yaml:"name"`
	// Symbol defaults to Name.
	Symbol     string     `yaml:"symbol"`
	Library    string     `yaml:"library"`
	Convention Convention `yaml:"convention"`
	Return     Type       `yaml:"return"`
	Args       []Arg      `yaml:"args"`
	// Repeat invokes the trampoline this many times. Zero means once.
	Repeat int `yaml:"repeat"`
	// Expect is compared to the formatted result when set.
	Expect *string `yaml:"expect"`
}

// SymbolName returns the symbol to resolve.
func (c *Call) SymbolName() string {
	if c.Symbol != "" {
		return c.Symbol
	}
	return c.Name
}

// Times returns how often the call runs.
func (c *Call) Times() int {
	if c.Repeat <= 0 {
		return 1
	}
	return c.Repeat
}

// ArgList returns the call's arguments in order.
func (c *Call) ArgList() jit.ArgList {
	out := make(jit.ArgList, len(c.Args))
	for i, a := range c.Args {
		out[i] = a.Value
	}
	return out
}

// Type is a return type that remembers whether it was written signed, so
// results print the way they were declared.
type Type struct {
	jit.ArgType
	Signed bool
}

// ParseType accepts the forms of jit.ParseArgType. Names starting with "i"
// and the width names (byte, word, ...) are signed.
func ParseType(s string) (Type, error) {
	typ, err := jit.ParseArgType(s)
	if err != nil {
		return Type{}, err
	}
	return Type{ArgType: typ, Signed: signedName(s)}, nil
}

func signedName(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if strings.HasPrefix(s, "u") || strings.HasPrefix(s, "ptr") || strings.HasPrefix(s, "pointer") {
		return false
	}
	return true
}

// UnmarshalYAML implements yaml.Unmarshaler for Type.
func (t *Type) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseType(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*t = parsed
	return nil
}

// Convention wraps jit.CallingConvention for YAML.
type Convention struct {
	jit.CallingConvention
}

// UnmarshalYAML implements yaml.Unmarshaler for Convention.
func (c *Convention) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	conv, err := jit.ParseCallingConvention(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	c.CallingConvention = conv
	return nil
}

// Arg is one argument literal. It is written either as "type:value" or as
// a mapping with type and value keys.
type Arg struct {
	Value jit.ArgValue
}

// UnmarshalYAML implements yaml.Unmarshaler for Arg.
func (a *Arg) UnmarshalYAML(value *yaml.Node) error {
	var literal string
	switch value.Kind {
	case yaml.ScalarNode:
		literal = value.Value
	case yaml.MappingNode:
		var m struct {
			Type  string `yaml:"type"`
			Value string `yaml:"value"`
		}
		if err := value.Decode(&m); err != nil {
			return err
		}
		literal = m.Type + ":" + m.Value
	default:
		return fmt.Errorf("line %d: argument must be a string or a mapping", value.Line)
	}
	v, err := ParseArg(literal)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	a.Value = v
	return nil
}

// ParseArg parses a "type:value" literal such as "i32:-5", "u8:0xff",
// "ptr:0x1000" or "f64:2.5".
func ParseArg(s string) (jit.ArgValue, error) {
	name, text, ok := strings.Cut(s, ":")
	if !ok {
		return jit.ArgValue{}, fmt.Errorf("argument %q: want type:value", s)
	}
	typ, err := ParseType(name)
	if err != nil {
		return jit.ArgValue{}, fmt.Errorf("argument %q: %w", s, err)
	}
	text = strings.TrimSpace(text)

	switch typ.ArgType {
	case jit.Float:
		f, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return jit.ArgValue{}, fmt.Errorf("argument %q: %w", s, err)
		}
		return jit.Float32(float32(f)), nil
	case jit.Double:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return jit.ArgValue{}, fmt.Errorf("argument %q: %w", s, err)
		}
		return jit.Float64(f), nil
	}

	bits := typ.Size() * 8
	if typ.Signed {
		n, err := strconv.ParseInt(text, 0, bits)
		if err != nil {
			return jit.ArgValue{}, fmt.Errorf("argument %q: %w", s, err)
		}
		switch typ.ArgType {
		case jit.Byte:
			return jit.Int8(int8(n)), nil
		case jit.Word:
			return jit.Int16(int16(n)), nil
		case jit.DoubleWord:
			return jit.Int32(int32(n)), nil
		}
		return jit.Int64(n), nil
	}

	n, err := strconv.ParseUint(text, 0, bits)
	if err != nil {
		return jit.ArgValue{}, fmt.Errorf("argument %q: %w", s, err)
	}
	if typ.ArgType == jit.Pointer {
		return jit.Ptr(uintptr(n)), nil
	}
	return jit.NewArgValue(typ.ArgType, n), nil
}

// FormatValue renders a call result. Integers print in decimal, signed
// when signed is set; pointers print in hex.
func FormatValue(v jit.ArgValue, signed bool) string {
	switch v.Type() {
	case jit.Float:
		return strconv.FormatFloat(float64(v.Float32()), 'g', -1, 32)
	case jit.Double:
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	case jit.Pointer:
		return fmt.Sprintf("0x%x", v.Bits())
	}
	if signed {
		return strconv.FormatInt(v.SignExtended(), 10)
	}
	return strconv.FormatUint(v.Bits(), 10)
}

// Load reads and validates a script file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a script.
func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that every call names a symbol and a return type.
func (s *Script) Validate() error {
	if len(s.Calls) == 0 {
		return errors.New("script has no calls")
	}
	for i := range s.Calls {
		c := &s.Calls[i]
		if c.SymbolName() == "" {
			return fmt.Errorf("call %d: missing name or symbol", i)
		}
		if !c.Return.Valid() {
			return fmt.Errorf("call %s: missing return type", c.SymbolName())
		}
		if c.Repeat < 0 {
			return fmt.Errorf("call %s: negative repeat %d", c.SymbolName(), c.Repeat)
		}
	}
	return nil
}
