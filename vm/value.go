package vm

import (
	"fmt"
	"math"
	"strconv"
)

// ---------------------------------------------------------------------------
// Value: runtime representation of constants and operands
// ---------------------------------------------------------------------------

// ValueType tags the variant held by a Value.
type ValueType uint8

const (
	// ValNumber is a 64-bit IEEE-754 float.
	ValNumber ValueType = iota
)

func (t ValueType) String() string {
	switch t {
	case ValNumber:
		return "number"
	default:
		return fmt.Sprintf("ValueType(%d)", t)
	}
}

// Value is a tagged runtime value. Only numbers exist today; new variants
// (bool, nil, object references) extend ValueType without changing how the
// VM stores or passes values.
type Value struct {
	Type   ValueType
	Number float64
}

// NumberValue wraps f as a Value.
func NumberValue(f float64) Value {
	return Value{Type: ValNumber, Number: f}
}

// IsNumber reports whether v holds a number.
func (v Value) IsNumber() bool {
	return v.Type == ValNumber
}

// AsNumber returns the float payload. The caller checks IsNumber first.
func (v Value) AsNumber() float64 {
	return v.Number
}

// Equal reports whether two values have the same type and payload.
// NaN is never equal to itself.
func (v Value) Equal(other Value) bool {
	if v.Type != other.Type {
		return false
	}
	switch v.Type {
	case ValNumber:
		return v.Number == other.Number
	default:
		return false
	}
}

// String formats the value the way the REPL prints results.
func (v Value) String() string {
	switch v.Type {
	case ValNumber:
		return formatNumber(v.Number)
	default:
		return fmt.Sprintf("<%s>", v.Type)
	}
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ---------------------------------------------------------------------------
// ValueArray: the constant pool
// ---------------------------------------------------------------------------

// ValueArray is an append-only sequence of values addressed by index.
// Indices returned by Add stay valid for the lifetime of the array;
// duplicates are stored again rather than shared.
type ValueArray struct {
	values []Value
}

// Add appends v and returns its index.
func (a *ValueArray) Add(v Value) int {
	a.values = append(a.values, v)
	return len(a.values) - 1
}

// At returns the value at index i.
func (a *ValueArray) At(i int) (Value, bool) {
	if i < 0 || i >= len(a.values) {
		return Value{}, false
	}
	return a.values[i], true
}

// Len returns the number of stored values.
func (a *ValueArray) Len() int {
	return len(a.values)
}

// Values returns a copy of the stored values.
func (a *ValueArray) Values() []Value {
	out := make([]Value, len(a.values))
	copy(out, a.values)
	return out
}

func (a ValueArray) clone() ValueArray {
	return ValueArray{values: a.Values()}
}
