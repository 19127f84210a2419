package vm

import "fmt"

// CompileFunc turns source text into a chunk. It is injected by the caller
// (normally compiler.Compile) so the vm package does not import the
// compiler.
type CompileFunc func(source string) (*Chunk, error)

// UseCompiler installs the compile stage used by InterpretSource.
func (vm *VM) UseCompiler(fn CompileFunc) {
	vm.compile = fn
}

// HasCompiler reports whether a compile stage is installed.
func (vm *VM) HasCompiler() bool {
	return vm.compile != nil
}

// InterpretSource compiles source and runs the result. Compile failures
// wrap ErrCompile so ResultOf reports InterpretCompileError.
func (vm *VM) InterpretSource(source string) (Value, error) {
	if vm.compile == nil {
		return Value{}, fmt.Errorf("%w: no compiler installed", ErrCompile)
	}
	chunk, err := vm.compile(source)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	return vm.Interpret(chunk)
}
