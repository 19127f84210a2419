package vm

import (
	"fmt"
	"math"
)

// MaxConstants is the number of pool entries a one-byte operand can address.
const MaxConstants = math.MaxUint8 + 1

// Chunk is the unit of compiled code: a byte stream of opcodes and
// operands, a parallel line table with one entry per code byte, and the
// constant pool the operands index into.
type Chunk struct {
	Code      []byte
	Lines     []int
	Constants ValueArray
}

// NewChunk creates an empty chunk.
func NewChunk() *Chunk {
	return &Chunk{
		Code:  make([]byte, 0, 64),
		Lines: make([]int, 0, 64),
	}
}

// Write appends one byte (opcode or raw operand) with its source line.
func (c *Chunk) Write(b byte, line int) {
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, line)
}

// WriteOp appends an opcode and returns its offset.
func (c *Chunk) WriteOp(op Opcode, line int) int {
	offset := len(c.Code)
	c.Write(byte(op), line)
	return offset
}

// AddConstant appends v to the constant pool and returns its index.
func (c *Chunk) AddConstant(v Value) int {
	return c.Constants.Add(v)
}

// EmitConstant adds v to the pool and writes an OpConstant loading it.
// It fails once the pool outgrows the one-byte operand.
func (c *Chunk) EmitConstant(v Value, line int) (int, error) {
	if c.Constants.Len() >= MaxConstants {
		return -1, fmt.Errorf("too many constants in one chunk (max %d)", MaxConstants)
	}
	idx := c.AddConstant(v)
	c.WriteOp(OpConstant, line)
	c.Write(byte(idx), line)
	return idx, nil
}

// Len returns the length of the code stream.
func (c *Chunk) Len() int {
	return len(c.Code)
}

// LineAt returns the source line recorded for the byte at offset, or 0.
func (c *Chunk) LineAt(offset int) int {
	if offset < 0 || offset >= len(c.Lines) {
		return 0
	}
	return c.Lines[offset]
}

// Constant returns pool entry idx.
func (c *Chunk) Constant(idx int) (Value, bool) {
	return c.Constants.At(idx)
}

// Clone returns a deep copy that shares no storage with c.
func (c *Chunk) Clone() *Chunk {
	out := &Chunk{
		Code:      make([]byte, len(c.Code)),
		Lines:     make([]int, len(c.Lines)),
		Constants: c.Constants.clone(),
	}
	copy(out.Code, c.Code)
	copy(out.Lines, c.Lines)
	return out
}

// Validate checks the structural invariants of the chunk: one line entry per
// code byte, every instruction decodes, operands are present, and constant
// operands index into the pool. A chunk that validates can still fault at
// run time (stack underflow, missing return).
func (c *Chunk) Validate() error {
	if len(c.Code) != len(c.Lines) {
		return fmt.Errorf("chunk has %d code bytes but %d line entries", len(c.Code), len(c.Lines))
	}
	for offset := 0; offset < len(c.Code); {
		op, ok := DecodeOpcode(c.Code[offset])
		if !ok {
			return c.malformed(offset, ErrUnknownOpcode, c.Code[offset])
		}
		if offset+op.InstructionLen() > len(c.Code) {
			return c.malformed(offset, ErrTruncatedOperand, c.Code[offset])
		}
		if op == OpConstant {
			idx := int(c.Code[offset+1])
			if idx >= c.Constants.Len() {
				return c.malformed(offset, ErrConstantIndex, c.Code[offset])
			}
		}
		offset += op.InstructionLen()
	}
	return nil
}

func (c *Chunk) malformed(offset int, err error, b byte) *MalformedChunkError {
	return &MalformedChunkError{
		Offset: offset,
		Line:   c.LineAt(offset),
		Byte:   b,
		Err:    err,
	}
}
