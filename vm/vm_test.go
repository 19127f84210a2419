package vm

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
)

func TestInterpretArithmetic(t *testing.T) {
	v := NewVM()
	got, err := v.Interpret(arithmeticChunk())
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if ResultOf(err) != InterpretOK {
		t.Errorf("ResultOf = %v, want ok", ResultOf(err))
	}
	if got.AsNumber() != -((1.2 + 3.4) / 5.6) {
		t.Errorf("result = %v, want %v", got, -((1.2 + 3.4) / 5.6))
	}
	if got.AsNumber() != -0.8214285714285714 {
		t.Errorf("result = %v, want -0.8214285714285714", got)
	}
	if v.Result() != got {
		t.Errorf("Result() = %v, want %v", v.Result(), got)
	}
	if v.StackDepth() != 0 {
		t.Errorf("stack depth after return = %d, want 0", v.StackDepth())
	}
}

func TestConstantRoundTrip(t *testing.T) {
	values := []float64{0, 1, -2.5, 1e300, math.Inf(1)}
	for _, f := range values {
		c := NewChunk()
		// Pad the pool so the index under test is not zero.
		c.AddConstant(NumberValue(-1))
		idx := c.AddConstant(NumberValue(f))
		c.WriteOp(OpConstant, 1)
		c.Write(byte(idx), 1)
		c.WriteOp(OpReturn, 1)

		got, err := NewVM().Interpret(c)
		if err != nil {
			t.Fatalf("%v: %v", f, err)
		}
		want, _ := c.Constant(idx)
		if !got.Equal(want) {
			t.Errorf("result = %v, want %v", got, want)
		}
	}
}

func TestBinaryOperandOrder(t *testing.T) {
	tests := []struct {
		op   Opcode
		want float64
	}{
		{OpAdd, 10 + 4},
		{OpSubtract, 10 - 4},
		{OpMultiply, 10 * 4},
		{OpDivide, 10.0 / 4},
	}
	for _, tt := range tests {
		c := NewChunk()
		c.EmitConstant(NumberValue(10), 1)
		c.EmitConstant(NumberValue(4), 1)
		c.WriteOp(tt.op, 1)
		c.WriteOp(OpReturn, 1)

		got, err := NewVM().Interpret(c)
		if err != nil {
			t.Fatalf("%s: %v", tt.op, err)
		}
		if got.AsNumber() != tt.want {
			t.Errorf("10 %s 4 = %v, want %v", tt.op, got, tt.want)
		}
	}
}

func TestNegate(t *testing.T) {
	c := NewChunk()
	c.EmitConstant(NumberValue(3), 1)
	c.WriteOp(OpNegate, 1)
	c.WriteOp(OpNegate, 1)
	c.WriteOp(OpNegate, 1)
	c.WriteOp(OpReturn, 1)

	got, err := NewVM().Interpret(c)
	if err != nil {
		t.Fatal(err)
	}
	if got.AsNumber() != -3 {
		t.Errorf("result = %v, want -3", got)
	}
}

func TestDivisionByZero(t *testing.T) {
	tests := []struct {
		a, b  float64
		check func(float64) bool
	}{
		{1, 0, func(f float64) bool { return math.IsInf(f, 1) }},
		{-1, 0, func(f float64) bool { return math.IsInf(f, -1) }},
		{0, 0, math.IsNaN},
	}
	for _, tt := range tests {
		c := NewChunk()
		c.EmitConstant(NumberValue(tt.a), 1)
		c.EmitConstant(NumberValue(tt.b), 1)
		c.WriteOp(OpDivide, 1)
		c.WriteOp(OpReturn, 1)

		got, err := NewVM().Interpret(c)
		if err != nil {
			t.Fatalf("%v / %v: %v", tt.a, tt.b, err)
		}
		if !tt.check(got.AsNumber()) {
			t.Errorf("%v / %v = %v", tt.a, tt.b, got)
		}
	}
}

func TestEmptyChunk(t *testing.T) {
	for name, c := range map[string]*Chunk{"empty": NewChunk(), "nil": nil} {
		_, err := NewVM().Interpret(c)
		if !errors.Is(err, ErrMissingReturn) {
			t.Errorf("%s: err = %v, want ErrMissingReturn", name, err)
		}
		if ResultOf(err) != InterpretCompileError {
			t.Errorf("%s: ResultOf = %v, want compile error", name, ResultOf(err))
		}
	}
}

func TestRunWithoutInit(t *testing.T) {
	_, err := NewVM().Run()
	if !errors.Is(err, ErrMissingReturn) {
		t.Errorf("Run on idle VM = %v, want ErrMissingReturn", err)
	}
}

func TestRunsOffEnd(t *testing.T) {
	c := NewChunk()
	c.EmitConstant(NumberValue(1), 5)

	_, err := NewVM().Interpret(c)
	var mc *MalformedChunkError
	if !errors.As(err, &mc) || !errors.Is(err, ErrMissingReturn) {
		t.Fatalf("err = %v, want missing return", err)
	}
	if mc.Offset != 2 {
		t.Errorf("offset = %d, want 2", mc.Offset)
	}
}

func TestAddFirstIsStackUnderflow(t *testing.T) {
	c := NewChunk()
	c.WriteOp(OpAdd, 1)
	c.WriteOp(OpReturn, 1)

	_, err := NewVM().Interpret(c)
	var rt *RuntimeError
	if !errors.As(err, &rt) {
		t.Fatalf("err = %v (%T), want *RuntimeError", err, err)
	}
	if !errors.Is(err, ErrStackUnderflow) {
		t.Errorf("err = %v, want ErrStackUnderflow", err)
	}
	if rt.Op != OpAdd || rt.Offset != 0 || rt.Line != 1 {
		t.Errorf("fault = %+v", rt)
	}
	if ResultOf(err) != InterpretRuntimeError || ResultOf(err).ExitCode() != 70 {
		t.Errorf("ResultOf = %v, want runtime error (70)", ResultOf(err))
	}
}

func TestUnderflowCases(t *testing.T) {
	tests := []struct {
		name string
		ops  []Opcode
	}{
		{"negate empty", []Opcode{OpNegate, OpReturn}},
		{"return empty", []Opcode{OpReturn}},
		{"subtract one operand", nil},
	}
	for _, tt := range tests {
		c := NewChunk()
		if tt.ops == nil {
			c.EmitConstant(NumberValue(1), 1)
			c.WriteOp(OpSubtract, 1)
			c.WriteOp(OpReturn, 1)
		}
		for _, op := range tt.ops {
			c.WriteOp(op, 1)
		}
		v := NewVM()
		_, err := v.Interpret(c)
		if !errors.Is(err, ErrStackUnderflow) {
			t.Errorf("%s: err = %v, want ErrStackUnderflow", tt.name, err)
		}
		if v.StackDepth() != 0 {
			t.Errorf("%s: stack not reset after fault (depth %d)", tt.name, v.StackDepth())
		}
	}
}

func TestUnknownOpcode(t *testing.T) {
	c := NewChunk()
	c.EmitConstant(NumberValue(1), 1)
	c.Write(0x7F, 2)

	_, err := NewVM().Interpret(c)
	var mc *MalformedChunkError
	if !errors.As(err, &mc) || !errors.Is(err, ErrUnknownOpcode) {
		t.Fatalf("err = %v, want unknown opcode", err)
	}
	if mc.Offset != 2 || mc.Byte != 0x7F || mc.Line != 2 {
		t.Errorf("fault = %+v", mc)
	}
	if ResultOf(err).ExitCode() != 65 {
		t.Errorf("exit code = %d, want 65", ResultOf(err).ExitCode())
	}
	if !strings.Contains(err.Error(), "unknown opcode 127") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestMalformedConstantOperands(t *testing.T) {
	truncated := NewChunk()
	truncated.WriteOp(OpConstant, 1)

	badIndex := NewChunk()
	badIndex.WriteOp(OpConstant, 1)
	badIndex.Write(3, 1)
	badIndex.WriteOp(OpReturn, 1)

	if _, err := NewVM().Interpret(truncated); !errors.Is(err, ErrTruncatedOperand) {
		t.Errorf("truncated: %v", err)
	}
	if _, err := NewVM().Interpret(badIndex); !errors.Is(err, ErrConstantIndex) {
		t.Errorf("bad index: %v", err)
	}
}

func TestStackOverflow(t *testing.T) {
	c := NewChunk()
	for i := 0; i < 5; i++ {
		c.EmitConstant(NumberValue(float64(i)), 1)
	}
	c.WriteOp(OpReturn, 1)

	v := NewVM()
	v.SetStackLimit(4)
	_, err := v.Interpret(c)
	if !errors.Is(err, ErrStackOverflow) {
		t.Fatalf("err = %v, want ErrStackOverflow", err)
	}
	var rt *RuntimeError
	if errors.As(err, &rt) && rt.Offset != 8 {
		t.Errorf("offset = %d, want 8", rt.Offset)
	}

	v.SetStackLimit(0)
	if _, err := v.Interpret(c); err != nil {
		t.Errorf("default limit: %v", err)
	}
}

func TestInterpretDoesNotModifyChunk(t *testing.T) {
	c := arithmeticChunk()
	before := c.Disassemble("c")

	v := NewVM()
	for i := 0; i < 3; i++ {
		if _, err := v.Interpret(c); err != nil {
			t.Fatal(err)
		}
	}
	if after := c.Disassemble("c"); after != before {
		t.Error("Interpret modified the caller's chunk")
	}
}

func TestInterpretResetsState(t *testing.T) {
	v := NewVM()

	bad := NewChunk()
	bad.EmitConstant(NumberValue(1), 1)
	bad.EmitConstant(NumberValue(2), 1)
	bad.Write(0xFF, 1)
	if _, err := v.Interpret(bad); err == nil {
		t.Fatal("expected fault")
	}

	got, err := v.Interpret(arithmeticChunk())
	if err != nil {
		t.Fatal(err)
	}
	if got.AsNumber() != -0.8214285714285714 {
		t.Errorf("result after earlier fault = %v", got)
	}
	if v.IP() != 10 {
		t.Errorf("IP = %d, want 10", v.IP())
	}
}

func TestTrace(t *testing.T) {
	c := NewChunk()
	c.EmitConstant(NumberValue(1), 1)
	c.EmitConstant(NumberValue(2), 1)
	c.WriteOp(OpAdd, 1)
	c.WriteOp(OpReturn, 1)

	var buf bytes.Buffer
	v := NewVM()
	v.SetTrace(&buf)
	if _, err := v.Interpret(c); err != nil {
		t.Fatal(err)
	}

	want := strings.Join([]string{
		"          ",
		"0000 0001 OP_CONSTANT         0 '1'",
		"          [ 1 ]",
		"0002    | OP_CONSTANT         1 '2'",
		"          [ 1 ][ 2 ]",
		"0004    | OP_ADD",
		"          [ 3 ]",
		"0005    | OP_RETURN",
		"",
	}, "\n")
	if buf.String() != want {
		t.Errorf("trace mismatch\ngot:\n%s\nwant:\n%s", buf.String(), want)
	}

	buf.Reset()
	v.SetTrace(nil)
	if _, err := v.Interpret(c); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Error("trace disabled but output written")
	}
}

func TestInterpretSourceWithoutCompiler(t *testing.T) {
	v := NewVM()
	if v.HasCompiler() {
		t.Fatal("new VM should have no compiler")
	}
	_, err := v.InterpretSource("1")
	if !errors.Is(err, ErrCompile) {
		t.Errorf("err = %v, want ErrCompile", err)
	}
}

func TestInterpretSourceCompileFunc(t *testing.T) {
	v := NewVM()
	v.UseCompiler(func(source string) (*Chunk, error) {
		if source != "ok" {
			return nil, fmt.Errorf("cannot compile %q", source)
		}
		return arithmeticChunk(), nil
	})

	got, err := v.InterpretSource("ok")
	if err != nil {
		t.Fatal(err)
	}
	if got.AsNumber() != -0.8214285714285714 {
		t.Errorf("result = %v", got)
	}

	_, err = v.InterpretSource("bad")
	if ResultOf(err) != InterpretCompileError {
		t.Errorf("ResultOf = %v, want compile error", ResultOf(err))
	}
	if !strings.Contains(err.Error(), `cannot compile "bad"`) {
		t.Errorf("err = %v", err)
	}
}

func TestInterpretResult(t *testing.T) {
	tests := []struct {
		r    InterpretResult
		name string
		code int
	}{
		{InterpretOK, "ok", 0},
		{InterpretCompileError, "compile error", 65},
		{InterpretRuntimeError, "runtime error", 70},
	}
	for _, tt := range tests {
		if tt.r.String() != tt.name || tt.r.ExitCode() != tt.code {
			t.Errorf("%d: %q / %d", int(tt.r), tt.r.String(), tt.r.ExitCode())
		}
	}
	if ResultOf(nil) != InterpretOK {
		t.Error("ResultOf(nil) should be ok")
	}
	if ResultOf(errors.New("other")) != InterpretRuntimeError {
		t.Error("unclassified errors should be runtime errors")
	}
}
