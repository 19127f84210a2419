package vm

import (
	"fmt"
	"io"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("lox.vm")

// DefaultStackLimit is the operand stack depth a new VM allows.
const DefaultStackLimit = 256

// VM executes chunks on an operand stack. A VM is owned by one goroutine;
// its instruction pointer and stack are never shared.
type VM struct {
	// Current execution state
	chunk *Chunk  // Private copy of the chunk being run
	ip    int     // Offset of the next byte to fetch
	stack []Value // Operand stack, top at the end

	stackLimit int
	compile    CompileFunc
	result     Value

	// Trace receives a stack dump and the disassembled instruction
	// before each step when non-nil.
	trace io.Writer
}

// NewVM creates an idle VM with the default stack limit.
func NewVM() *VM {
	return &VM{
		stack:      make([]Value, 0, DefaultStackLimit),
		stackLimit: DefaultStackLimit,
	}
}

// SetTrace enables execution tracing to w; nil disables it.
func (vm *VM) SetTrace(w io.Writer) {
	vm.trace = w
}

// SetStackLimit bounds the operand stack depth. Values below 1 restore the
// default.
func (vm *VM) SetStackLimit(n int) {
	if n < 1 {
		n = DefaultStackLimit
	}
	vm.stackLimit = n
}

// Init binds an independent copy of chunk as the current program and
// resets the instruction pointer and stack. A nil chunk binds an empty one.
func (vm *VM) Init(chunk *Chunk) {
	if chunk == nil {
		vm.chunk = NewChunk()
	} else {
		vm.chunk = chunk.Clone()
	}
	vm.ip = 0
	vm.stack = vm.stack[:0]
	vm.result = Value{}
}

// Interpret binds chunk and runs it to completion. The caller's chunk is
// never modified.
func (vm *VM) Interpret(chunk *Chunk) (Value, error) {
	vm.Init(chunk)
	log.Debugf("interpret: %d code bytes, %d constants", vm.chunk.Len(), vm.chunk.Constants.Len())
	v, err := vm.Run()
	if err != nil {
		log.Debugf("interpret: %s: %v", ResultOf(err), err)
	}
	return v, err
}

// Run executes the bound chunk from the current instruction pointer until
// OpReturn or a fault. Faults come back as *MalformedChunkError or
// *RuntimeError; use ResultOf to classify them.
func (vm *VM) Run() (Value, error) {
	if vm.chunk == nil {
		return Value{}, &MalformedChunkError{Err: ErrMissingReturn}
	}
	code := vm.chunk.Code
	for {
		if vm.ip >= len(code) {
			return Value{}, vm.chunk.malformed(vm.ip, ErrMissingReturn, 0)
		}

		offset := vm.ip
		b := code[vm.ip]
		vm.ip++

		op, ok := DecodeOpcode(b)
		if !ok {
			return Value{}, vm.chunk.malformed(offset, ErrUnknownOpcode, b)
		}

		if vm.trace != nil {
			vm.traceInstruction(offset)
		}

		switch op {
		case OpConstant:
			if vm.ip >= len(code) {
				return Value{}, vm.chunk.malformed(offset, ErrTruncatedOperand, b)
			}
			idx := int(code[vm.ip])
			vm.ip++
			constant, ok := vm.chunk.Constant(idx)
			if !ok {
				return Value{}, vm.chunk.malformed(offset, ErrConstantIndex, b)
			}
			if err := vm.push(constant); err != nil {
				return Value{}, vm.runtimeError(offset, op, err)
			}

		case OpAdd, OpSubtract, OpMultiply, OpDivide:
			if err := vm.binaryOp(op); err != nil {
				return Value{}, vm.runtimeError(offset, op, err)
			}

		case OpNegate:
			v, err := vm.pop()
			if err != nil {
				return Value{}, vm.runtimeError(offset, op, err)
			}
			if !v.IsNumber() {
				return Value{}, vm.runtimeError(offset, op, ErrOperandType)
			}
			// Cannot overflow: the pop above freed a slot.
			_ = vm.push(NumberValue(-v.AsNumber()))

		case OpReturn:
			v, err := vm.pop()
			if err != nil {
				return Value{}, vm.runtimeError(offset, op, err)
			}
			vm.result = v
			return v, nil
		}
	}
}

// binaryOp pops b then a and pushes a OP b. The order matters for
// subtraction and division.
func (vm *VM) binaryOp(op Opcode) error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	if !a.IsNumber() || !b.IsNumber() {
		return ErrOperandType
	}
	x, y := a.AsNumber(), b.AsNumber()
	var r float64
	switch op {
	case OpAdd:
		r = x + y
	case OpSubtract:
		r = x - y
	case OpMultiply:
		r = x * y
	case OpDivide:
		r = x / y // IEEE-754: division by zero yields ±inf or NaN
	}
	return vm.push(NumberValue(r))
}

// Result returns the value produced by the last successful OpReturn.
func (vm *VM) Result() Value {
	return vm.result
}

// StackDepth returns the number of values on the operand stack.
func (vm *VM) StackDepth() int {
	return len(vm.stack)
}

// IP returns the instruction pointer.
func (vm *VM) IP() int {
	return vm.ip
}

func (vm *VM) push(v Value) error {
	if len(vm.stack) >= vm.stackLimit {
		return ErrStackOverflow
	}
	vm.stack = append(vm.stack, v)
	return nil
}

func (vm *VM) pop() (Value, error) {
	n := len(vm.stack)
	if n == 0 {
		return Value{}, ErrStackUnderflow
	}
	v := vm.stack[n-1]
	vm.stack = vm.stack[:n-1]
	return v, nil
}

// resetStack discards every operand.
func (vm *VM) resetStack() {
	vm.stack = vm.stack[:0]
}

func (vm *VM) runtimeError(offset int, op Opcode, err error) *RuntimeError {
	vm.resetStack()
	return &RuntimeError{
		Offset: offset,
		Line:   vm.chunk.LineAt(offset),
		Op:     op,
		Err:    err,
	}
}

func (vm *VM) traceInstruction(offset int) {
	fmt.Fprint(vm.trace, "          ")
	for _, v := range vm.stack {
		fmt.Fprintf(vm.trace, "[ %s ]", v)
	}
	fmt.Fprintln(vm.trace)
	vm.chunk.DisassembleInstruction(vm.trace, offset)
}
