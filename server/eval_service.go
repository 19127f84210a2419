package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/chazu/loxvm/compiler"
	"github.com/chazu/loxvm/vm"
)

var rpcLog = commonlog.GetLogger("lox.rpc")

// Procedure paths of the evaluation service. Requests and responses are
// protobuf well-known types, so clients need no generated code.
const (
	EvaluationServiceName = "lox.v1.EvaluationService"

	EvaluateProcedure    = "/" + EvaluationServiceName + "/Evaluate"
	DisassembleProcedure = "/" + EvaluationServiceName + "/Disassemble"
	CompileProcedure     = "/" + EvaluationServiceName + "/Compile"
)

// MaxRequestBytes caps the size of one request message.
const MaxRequestBytes = 1 << 20

// EvalResult is the outcome of evaluating one source text.
type EvalResult struct {
	Value   float64
	Display string
	Outcome vm.InterpretResult
	Error   string
}

// Success reports whether evaluation finished with a value.
func (r *EvalResult) Success() bool {
	return r.Outcome == vm.InterpretOK
}

// toStruct encodes r as the Evaluate response. Non-finite values are only
// carried in display, since JSON cannot represent them as numbers.
func (r *EvalResult) toStruct() (*structpb.Struct, error) {
	fields := map[string]any{
		"success":   r.Success(),
		"outcome":   r.Outcome.String(),
		"exit_code": r.Outcome.ExitCode(),
	}
	if r.Success() {
		fields["display"] = r.Display
		if !math.IsInf(r.Value, 0) && !math.IsNaN(r.Value) {
			fields["value"] = r.Value
		}
	} else {
		fields["error"] = r.Error
	}
	return structpb.NewStruct(fields)
}

// evalResultFromStruct decodes an Evaluate response.
func evalResultFromStruct(s *structpb.Struct) *EvalResult {
	f := s.GetFields()
	r := &EvalResult{
		Display: f["display"].GetStringValue(),
		Error:   f["error"].GetStringValue(),
	}
	switch f["outcome"].GetStringValue() {
	case vm.InterpretCompileError.String():
		r.Outcome = vm.InterpretCompileError
	case vm.InterpretRuntimeError.String():
		r.Outcome = vm.InterpretRuntimeError
	default:
		r.Outcome = vm.InterpretOK
	}
	if v, ok := f["value"]; ok {
		r.Value = v.GetNumberValue()
	} else {
		switch r.Display {
		case "inf":
			r.Value = math.Inf(1)
		case "-inf":
			r.Value = math.Inf(-1)
		case "NaN":
			r.Value = math.NaN()
		}
	}
	return r
}

// EvalService implements the evaluation RPCs on top of a VMWorker.
type EvalService struct {
	worker *VMWorker
}

// NewEvalService creates an EvalService.
func NewEvalService(worker *VMWorker) *EvalService {
	return &EvalService{worker: worker}
}

// Handler returns the path prefix and handler serving every procedure over
// the Connect, gRPC and gRPC-Web protocols. Requests larger than
// MaxRequestBytes are rejected unless opts override the limit.
func (s *EvalService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithReadMaxBytes(MaxRequestBytes)}, opts...)
	mux := http.NewServeMux()
	mux.Handle(EvaluateProcedure, connect.NewUnaryHandler(EvaluateProcedure, s.Evaluate, opts...))
	mux.Handle(DisassembleProcedure, connect.NewUnaryHandler(DisassembleProcedure, s.Disassemble, opts...))
	mux.Handle(CompileProcedure, connect.NewUnaryHandler(CompileProcedure, s.Compile, opts...))
	return "/" + EvaluationServiceName + "/", mux
}

// Evaluate compiles and runs a Lox expression. Compile and runtime faults
// are reported in the response, not as RPC errors.
func (s *EvalService) Evaluate(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[structpb.Struct], error) {
	source := req.Msg.GetValue()
	if strings.TrimSpace(source) == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}

	result := &EvalResult{}
	v, err := s.worker.Evaluate(ctx, source)
	switch {
	case errors.Is(err, context.Canceled):
		return nil, connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return nil, connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, ErrWorkerStopped):
		return nil, connect.NewError(connect.CodeUnavailable, err)
	case err != nil:
		result.Outcome = vm.ResultOf(err)
		result.Error = err.Error()
	default:
		result.Value = v.AsNumber()
		result.Display = v.String()
	}
	rpcLog.Debugf("evaluate: %s", result.Outcome)

	msg, err := result.toStruct()
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// Disassemble compiles source and returns the chunk listing.
func (s *EvalService) Disassemble(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[wrapperspb.StringValue], error) {
	chunk, err := compileRequest(req.Msg.GetValue())
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(wrapperspb.String(chunk.Disassemble("rpc"))), nil
}

// Compile compiles source and returns the encoded chunk.
func (s *EvalService) Compile(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[wrapperspb.BytesValue], error) {
	chunk, err := compileRequest(req.Msg.GetValue())
	if err != nil {
		return nil, err
	}
	data, err := vm.MarshalChunk(chunk)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(wrapperspb.Bytes(data)), nil
}

func compileRequest(source string) (*vm.Chunk, error) {
	if strings.TrimSpace(source) == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}
	chunk, err := compiler.Compile(source)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return chunk, nil
}
