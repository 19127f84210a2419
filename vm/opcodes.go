package vm

import "fmt"

// Opcode is a single-byte instruction tag.
type Opcode byte

const (
	OpConstant Opcode = iota // Push constant from pool: OpConstant <index:u8>
	OpAdd                    // Pop b, pop a, push a+b
	OpSubtract               // Pop b, pop a, push a-b
	OpMultiply               // Pop b, pop a, push a*b
	OpDivide                 // Pop b, pop a, push a/b
	OpNegate                 // Pop a, push -a
	OpReturn                 // Pop a, halt with a as the result
)

// OpcodeInfo provides metadata about each opcode for disassembly and
// validation.
type OpcodeInfo struct {
	Name       string // Human-readable name
	StackPop   int    // Values popped from the stack
	StackPush  int    // Values pushed to the stack
	OperandLen int    // Operand bytes following the opcode
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpConstant: {"OP_CONSTANT", 0, 1, 1},
	OpAdd:      {"OP_ADD", 2, 1, 0},
	OpSubtract: {"OP_SUBTRACT", 2, 1, 0},
	OpMultiply: {"OP_MULTIPLY", 2, 1, 0},
	OpDivide:   {"OP_DIVIDE", 2, 1, 0},
	OpNegate:   {"OP_NEGATE", 1, 1, 0},
	OpReturn:   {"OP_RETURN", 1, 0, 0},
}

// DecodeOpcode converts a code byte into an Opcode. It is the only place a
// raw byte becomes an instruction; ok is false for bytes outside the set.
func DecodeOpcode(b byte) (op Opcode, ok bool) {
	op = Opcode(b)
	_, ok = opcodeInfoTable[op]
	return op, ok
}

// GetOpcodeInfo returns metadata for an opcode. Unknown opcodes get a name
// of the form UNKNOWN(0xNN) and zero widths.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the number of operand bytes for this opcode.
func (op Opcode) OperandLen() int {
	return GetOpcodeInfo(op).OperandLen
}

// InstructionLen returns the total length of an instruction (1 + operand bytes).
func (op Opcode) InstructionLen() int {
	return 1 + op.OperandLen()
}

// IsBinary reports whether op pops two operands and pushes one.
func (op Opcode) IsBinary() bool {
	return op >= OpAdd && op <= OpDivide
}

// AllOpcodes returns every defined opcode in numeric order.
func AllOpcodes() []Opcode {
	ops := make([]Opcode, 0, len(opcodeInfoTable))
	for op := OpConstant; op <= OpReturn; op++ {
		ops = append(ops, op)
	}
	return ops
}
