package server

import (
	"fmt"
	"net/http"

	"github.com/chazu/loxvm/compiler"
	"github.com/chazu/loxvm/vm"
)

// LoxServer serves the evaluation service for a VM. Connect (HTTP/JSON)
// and gRPC (binary) share one port.
type LoxServer struct {
	worker *VMWorker
	mux    *http.ServeMux
}

// New creates a LoxServer wrapping the given VM. A compiler is installed on
// v if it has none.
func New(v *vm.VM) *LoxServer {
	if !v.HasCompiler() {
		v.UseCompiler(compiler.Compile)
	}
	worker := NewVMWorker(v)
	s := &LoxServer{
		worker: worker,
		mux:    http.NewServeMux(),
	}

	path, handler := NewEvalService(worker).Handler()
	s.mux.Handle(path, handler)

	return s
}

// Handler returns the HTTP handler for all services.
func (s *LoxServer) Handler() http.Handler {
	return s.mux
}

// Protocols enables HTTP/1.1 for Connect and unencrypted HTTP/2 so gRPC
// clients can connect without TLS.
func Protocols() *http.Protocols {
	p := new(http.Protocols)
	p.SetHTTP1(true)
	p.SetUnencryptedHTTP2(true)
	return p
}

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *LoxServer) ListenAndServe(addr string) error {
	fmt.Printf("Lox evaluation server listening on %s\n", addr)
	fmt.Printf("  Connect (HTTP/JSON): http://%s%s\n", addr, EvaluateProcedure)
	fmt.Printf("  gRPC (binary):       grpc://%s\n", addr)

	srv := &http.Server{
		Addr:      addr,
		Handler:   s.mux,
		Protocols: Protocols(),
	}
	return srv.ListenAndServe()
}

// Stop shuts down the VM worker.
func (s *LoxServer) Stop() {
	s.worker.Stop()
}
