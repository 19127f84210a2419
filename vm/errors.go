package vm

import (
	"errors"
	"fmt"
)

// Fault reasons for chunks that are structurally wrong. They indicate a
// compiler defect or a corrupt chunk, not bad user input.
var (
	ErrUnknownOpcode    = errors.New("unknown opcode")
	ErrMissingReturn    = errors.New("missing return")
	ErrTruncatedOperand = errors.New("truncated operand")
	ErrConstantIndex    = errors.New("constant index out of range")
)

// Fault reasons raised while executing a well-formed chunk.
var (
	ErrStackUnderflow = errors.New("stack underflow")
	ErrStackOverflow  = errors.New("stack overflow")
	ErrOperandType    = errors.New("operand must be a number")
)

// ErrCompile marks failures of the compile stage in InterpretSource.
var ErrCompile = errors.New("compile error")

// MalformedChunkError reports a compile-class fault found in a chunk.
type MalformedChunkError struct {
	Offset int  // Offset of the offending instruction
	Line   int  // Source line recorded for Offset (0 if none)
	Byte   byte // Code byte at Offset (0 past the end)
	Err    error
}

func (e *MalformedChunkError) Error() string {
	switch {
	case errors.Is(e.Err, ErrUnknownOpcode):
		return fmt.Sprintf("[line %d] %v %d at offset %04d", e.Line, e.Err, e.Byte, e.Offset)
	case e.Line > 0:
		return fmt.Sprintf("[line %d] %v at offset %04d", e.Line, e.Err, e.Offset)
	default:
		return fmt.Sprintf("%v at offset %04d", e.Err, e.Offset)
	}
}

func (e *MalformedChunkError) Unwrap() error {
	return e.Err
}

// RuntimeError reports a run-time-class fault.
type RuntimeError struct {
	Offset int // Offset of the faulting instruction
	Line   int
	Op     Opcode
	Err    error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("[line %d] in %s: %v", e.Line, e.Op, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// InterpretResult is the terminal outcome of running a chunk.
type InterpretResult int

const (
	InterpretOK InterpretResult = iota
	InterpretCompileError
	InterpretRuntimeError
)

func (r InterpretResult) String() string {
	switch r {
	case InterpretOK:
		return "ok"
	case InterpretCompileError:
		return "compile error"
	case InterpretRuntimeError:
		return "runtime error"
	default:
		return fmt.Sprintf("InterpretResult(%d)", int(r))
	}
}

// ExitCode maps an outcome to the process exit status used by the CLI
// (sysexits EX_DATAERR and EX_SOFTWARE).
func (r InterpretResult) ExitCode() int {
	switch r {
	case InterpretCompileError:
		return 65
	case InterpretRuntimeError:
		return 70
	default:
		return 0
	}
}

// ResultOf classifies an error returned by Interpret, Run or
// InterpretSource.
func ResultOf(err error) InterpretResult {
	if err == nil {
		return InterpretOK
	}
	var malformed *MalformedChunkError
	if errors.As(err, &malformed) || errors.Is(err, ErrCompile) {
		return InterpretCompileError
	}
	return InterpretRuntimeError
}
