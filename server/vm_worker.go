package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/loxvm/vm"
)

// ErrWorkerStopped is returned by Do after Stop.
var ErrWorkerStopped = errors.New("vm worker stopped")

// vmRequest is a unit of work to be executed on the VM goroutine.
type vmRequest struct {
	fn   func(*vm.VM) (vm.Value, error)
	done chan vmResult
}

// vmResult holds the return value from a VM operation.
type vmResult struct {
	value vm.Value
	err   error
}

// VMWorker serializes all VM access through a single goroutine.
// A VM owns its stack and instruction pointer; LSP handlers run
// concurrently and must go through the worker.
type VMWorker struct {
	vm       *vm.VM
	requests chan vmRequest
	quit     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewVMWorker creates a VMWorker and starts the processing goroutine.
func NewVMWorker(v *vm.VM) *VMWorker {
	w := &VMWorker{
		vm:       v,
		requests: make(chan vmRequest, 64),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes VM requests sequentially on a dedicated goroutine.
func (w *VMWorker) loop() {
	defer close(w.stopped)
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs a function on the VM, recovering from panics. The
// disassembler panics on malformed chunks, so a recovered
// *vm.MalformedChunkError is returned as is.
func (w *VMWorker) execute(fn func(*vm.VM) (vm.Value, error)) (result vmResult) {
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok {
				result.err = err
				return
			}
			result.err = fmt.Errorf("%v", r)
		}
	}()
	result.value, result.err = fn(w.vm)
	return result
}

// Do submits a function for execution on the VM goroutine and blocks
// until it completes or ctx is done.
func (w *VMWorker) Do(ctx context.Context, fn func(*vm.VM) (vm.Value, error)) (vm.Value, error) {
	req := vmRequest{
		fn:   fn,
		done: make(chan vmResult, 1),
	}
	select {
	case <-w.quit:
		return vm.Value{}, ErrWorkerStopped
	default:
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return vm.Value{}, ErrWorkerStopped
	case <-ctx.Done():
		return vm.Value{}, ctx.Err()
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.stopped:
		return vm.Value{}, ErrWorkerStopped
	case <-ctx.Done():
		return vm.Value{}, ctx.Err()
	}
}

// Evaluate compiles and runs source on the worker's VM.
func (w *VMWorker) Evaluate(ctx context.Context, source string) (vm.Value, error) {
	return w.Do(ctx, func(v *vm.VM) (vm.Value, error) {
		return v.InterpretSource(source)
	})
}

// Stop shuts down the worker goroutine and waits for it to exit.
// Calling Stop twice is safe.
func (w *VMWorker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
	<-w.stopped
}
