package vm

import (
	"math"
	"testing"
)

func TestNumberValue(t *testing.T) {
	tests := []float64{0, -0.0, 1, -1, 3.14159265358979, math.MaxFloat64, math.SmallestNonzeroFloat64, math.Inf(1), math.Inf(-1)}
	for _, f := range tests {
		v := NumberValue(f)
		if !v.IsNumber() {
			t.Errorf("NumberValue(%v).IsNumber() = false", f)
		}
		if got := v.AsNumber(); got != f {
			t.Errorf("NumberValue(%v).AsNumber() = %v", f, got)
		}
	}
}

func TestValueString(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{NumberValue(1), "1"},
		{NumberValue(-0.5), "-0.5"},
		{NumberValue(1.2), "1.2"},
		{NumberValue(-0.8214285714285714), "-0.8214285714285714"},
		{NumberValue(1e21), "1000000000000000000000"},
		{NumberValue(math.Inf(1)), "inf"},
		{NumberValue(math.Inf(-1)), "-inf"},
		{NumberValue(math.NaN()), "NaN"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestValueEqual(t *testing.T) {
	if !NumberValue(2).Equal(NumberValue(2)) {
		t.Error("2 should equal 2")
	}
	if NumberValue(2).Equal(NumberValue(3)) {
		t.Error("2 should not equal 3")
	}
	nan := NumberValue(math.NaN())
	if nan.Equal(nan) {
		t.Error("NaN should not equal itself")
	}
}

func TestValueArray(t *testing.T) {
	var a ValueArray
	if a.Len() != 0 {
		t.Fatalf("new array Len = %d", a.Len())
	}
	i0 := a.Add(NumberValue(1))
	i1 := a.Add(NumberValue(1))
	i2 := a.Add(NumberValue(2))
	if i0 != 0 || i1 != 1 || i2 != 2 {
		t.Errorf("indices = %d %d %d, want 0 1 2 (no deduplication)", i0, i1, i2)
	}
	if v, ok := a.At(2); !ok || v.AsNumber() != 2 {
		t.Errorf("At(2) = %v, %v", v, ok)
	}
	if _, ok := a.At(3); ok {
		t.Error("At(3) should be out of range")
	}
	if _, ok := a.At(-1); ok {
		t.Error("At(-1) should be out of range")
	}

	// Indices stay valid as the array grows.
	for i := 0; i < 1000; i++ {
		a.Add(NumberValue(float64(i)))
	}
	if v, _ := a.At(2); v.AsNumber() != 2 {
		t.Errorf("At(2) after growth = %v, want 2", v)
	}
}

func TestValueArrayClone(t *testing.T) {
	var a ValueArray
	a.Add(NumberValue(1))
	b := a.clone()
	b.Add(NumberValue(2))
	a.values[0] = NumberValue(9)

	if b.Len() != 2 || a.Len() != 1 {
		t.Errorf("lengths = %d, %d; want 1, 2", a.Len(), b.Len())
	}
	if v, _ := b.At(0); v.AsNumber() != 1 {
		t.Errorf("clone shares storage: b[0] = %v", v)
	}
}
