package vm

import "testing"

func TestDecodeOpcode(t *testing.T) {
	for _, op := range AllOpcodes() {
		got, ok := DecodeOpcode(byte(op))
		if !ok || got != op {
			t.Errorf("DecodeOpcode(%d) = %v, %v", byte(op), got, ok)
		}
	}
	for _, b := range []byte{7, 0x42, 0xFF} {
		if _, ok := DecodeOpcode(b); ok {
			t.Errorf("DecodeOpcode(%d) should fail", b)
		}
	}
}

func TestOpcodeNumbering(t *testing.T) {
	want := []Opcode{OpConstant, OpAdd, OpSubtract, OpMultiply, OpDivide, OpNegate, OpReturn}
	got := AllOpcodes()
	if len(got) != len(want) {
		t.Fatalf("AllOpcodes has %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] || byte(got[i]) != byte(i) {
			t.Errorf("AllOpcodes[%d] = %v (%d)", i, got[i], byte(got[i]))
		}
	}
}

func TestOpcodeInfo(t *testing.T) {
	tests := []struct {
		op     Opcode
		name   string
		length int
		binary bool
	}{
		{OpConstant, "OP_CONSTANT", 2, false},
		{OpAdd, "OP_ADD", 1, true},
		{OpSubtract, "OP_SUBTRACT", 1, true},
		{OpMultiply, "OP_MULTIPLY", 1, true},
		{OpDivide, "OP_DIVIDE", 1, true},
		{OpNegate, "OP_NEGATE", 1, false},
		{OpReturn, "OP_RETURN", 1, false},
	}
	for _, tt := range tests {
		if tt.op.String() != tt.name {
			t.Errorf("%d: String = %q, want %q", byte(tt.op), tt.op.String(), tt.name)
		}
		if tt.op.InstructionLen() != tt.length {
			t.Errorf("%s: InstructionLen = %d, want %d", tt.name, tt.op.InstructionLen(), tt.length)
		}
		if tt.op.IsBinary() != tt.binary {
			t.Errorf("%s: IsBinary = %v", tt.name, tt.op.IsBinary())
		}
	}

	if got := Opcode(0xAB).String(); got != "UNKNOWN(0xAB)" {
		t.Errorf("unknown opcode name = %q", got)
	}
	if Opcode(0xAB).InstructionLen() != 1 {
		t.Error("unknown opcode InstructionLen should be 1")
	}
}
