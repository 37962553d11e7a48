// Package experiment defines the Experiment contract and the phase state
// machine that runs one parameter point through setup, do, and teardown.
package experiment

import (
	"fmt"
	"time"
)

// Kind identifies the storage type a Value carries. Schema inference
// (internal/resultset) assigns one Kind per field the first time it sees it.
type Kind int

const (
	// KindInt64 stores a 64-bit integer.
	KindInt64 Kind = iota
	// KindFloat64 stores a 64-bit floating point number.
	KindFloat64
	// KindComplex128 stores a 128-bit complex number.
	KindComplex128
	// KindBool stores a boolean.
	KindBool
	// KindString stores a string (also used for timestamps and exceptions,
	// which are recorded as their string representation).
	KindString
	// KindSequence stores a variable-length list of scalars sharing one Kind.
	KindSequence
)

// String renders the Kind the way it appears in DESIGN notes and logs.
func (k Kind) String() string {
	switch k {
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindComplex128:
		return "complex128"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	default:
		return "unknown"
	}
}

// Value is the scalar tagged union spec §3/§9 maps from a dynamically-typed
// source value. Exactly one field is meaningful, selected by Kind; for
// KindSequence, Elems holds one Value per item, each itself scalar.
type Value struct {
	Kind    Kind
	Int     int64
	Float   float64
	Complex complex128
	Bool    bool
	Str     string
	Elems   []Value
}

// Int64 builds an int64-valued Value.
func Int64(v int64) Value { return Value{Kind: KindInt64, Int: v} }

// Float64 builds a float64-valued Value.
func Float64(v float64) Value { return Value{Kind: KindFloat64, Float: v} }

// Complex128 builds a complex128-valued Value.
func Complex128(v complex128) Value { return Value{Kind: KindComplex128, Complex: v} }

// Bool builds a bool-valued Value.
func Bool(v bool) Value { return Value{Kind: KindBool, Bool: v} }

// String builds a string-valued Value. Timestamps should be passed through
// Timestamp, which fixes the RFC3339 stringification.
func String(v string) Value { return Value{Kind: KindString, Str: v} }

// Timestamp builds a string-valued Value holding the ISO-8601/RFC3339
// stringification of t, matching spec §6's "timestamp, ISO-8601 when
// stringified" wire rule.
func Timestamp(t time.Time) Value { return Value{Kind: KindString, Str: t.Format(time.RFC3339Nano)} }

// Sequence builds a KindSequence Value from a short list of scalars. An
// empty or nil elems still carries the sequence Kind so schema inference
// can record it.
func Sequence(elems ...Value) Value { return Value{Kind: KindSequence, Elems: elems} }

// Zero returns the type-specific zero value for Kind, used to back-fill
// existing rows when a result set's schema gains a field (spec §4.3).
func (k Kind) Zero() Value {
	switch k {
	case KindInt64:
		return Int64(0)
	case KindFloat64:
		return Float64(0)
	case KindComplex128:
		return Complex128(0)
	case KindBool:
		return Bool(false)
	case KindString:
		return String("")
	case KindSequence:
		return Sequence()
	default:
		return Value{}
	}
}

// IsNumeric reports whether v's Kind participates in Summary's mean/median/
// variance/min/max reduction (spec §4.2).
func (v Value) IsNumeric() bool {
	return v.Kind == KindInt64 || v.Kind == KindFloat64
}

// AsFloat reports v as a float64, valid only when IsNumeric is true.
func (v Value) AsFloat() float64 {
	if v.Kind == KindInt64 {
		return float64(v.Int)
	}

	return v.Float
}

// GoString renders a Value for debugging and log lines.
func (v Value) GoString() string {
	switch v.Kind {
	case KindInt64:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat64:
		return fmt.Sprintf("%g", v.Float)
	case KindComplex128:
		return fmt.Sprintf("%v", v.Complex)
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindString:
		return v.Str
	case KindSequence:
		return fmt.Sprintf("%v", v.Elems)
	default:
		return "<invalid>"
	}
}
