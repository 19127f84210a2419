package vm

import (
	"fmt"
	"io"
	"strings"
)

// Disassemble returns the listing produced by DisassembleChunk.
func (c *Chunk) Disassemble(name string) string {
	var sb strings.Builder
	c.DisassembleChunk(&sb, name)
	return sb.String()
}

// DisassembleChunk writes a header and every instruction in the chunk.
func (c *Chunk) DisassembleChunk(w io.Writer, name string) {
	fmt.Fprintf(w, "== %s ==\n", name)
	prev := -1
	for offset := 0; offset < len(c.Code); {
		next := c.disassembleAt(w, offset, prev)
		prev = offset
		offset = next
	}
}

// DisassembleInstruction writes the instruction at offset and returns the
// offset of the next one. The line column shows "|" when the line matches
// the previous instruction's line.
//
// An unknown opcode means the chunk is corrupt; after writing
// "Unknown opcode N" it panics with a *MalformedChunkError.
func (c *Chunk) DisassembleInstruction(w io.Writer, offset int) int {
	return c.disassembleAt(w, offset, c.previousInstruction(offset))
}

// previousInstruction returns the start of the instruction before offset,
// or -1 at the start of the chunk. An undecodable byte on the way falls
// back to the byte just before offset.
func (c *Chunk) previousInstruction(offset int) int {
	prev := -1
	for off := 0; off < offset && off < len(c.Code); {
		op, ok := DecodeOpcode(c.Code[off])
		if !ok {
			return offset - 1
		}
		prev = off
		off += op.InstructionLen()
	}
	return prev
}

func (c *Chunk) disassembleAt(w io.Writer, offset, prev int) int {
	fmt.Fprintf(w, "%04d ", offset)
	if prev >= 0 && c.LineAt(offset) == c.LineAt(prev) {
		fmt.Fprint(w, "   | ")
	} else {
		fmt.Fprintf(w, "%04d ", c.LineAt(offset))
	}

	b := c.Code[offset]
	op, ok := DecodeOpcode(b)
	if !ok {
		fmt.Fprintf(w, "Unknown opcode %d\n", b)
		panic(c.malformed(offset, ErrUnknownOpcode, b))
	}

	switch op {
	case OpConstant:
		return c.constantInstruction(w, op, offset)
	default:
		return simpleInstruction(w, op, offset)
	}
}

func simpleInstruction(w io.Writer, op Opcode, offset int) int {
	fmt.Fprintln(w, op)
	return offset + 1
}

func (c *Chunk) constantInstruction(w io.Writer, op Opcode, offset int) int {
	if offset+1 >= len(c.Code) {
		fmt.Fprintf(w, "%-16s <truncated>\n", op)
		return len(c.Code)
	}
	idx := int(c.Code[offset+1])
	display := "<invalid>"
	if v, ok := c.Constants.At(idx); ok {
		display = v.String()
	}
	fmt.Fprintf(w, "%-16s %4d '%s'\n", op, idx, display)
	return offset + 2
}
