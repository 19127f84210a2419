package server

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls a LoxServer over gRPC.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to a LoxServer at addr ("host:port") without TLS.
func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Evaluate runs source on the server.
func (c *Client) Evaluate(ctx context.Context, source string) (*EvalResult, error) {
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, EvaluateProcedure, wrapperspb.String(source), resp); err != nil {
		return nil, err
	}
	return evalResultFromStruct(resp), nil
}

// Disassemble returns the server's listing of the compiled source.
func (c *Client) Disassemble(ctx context.Context, source string) (string, error) {
	resp := new(wrapperspb.StringValue)
	if err := c.conn.Invoke(ctx, DisassembleProcedure, wrapperspb.String(source), resp); err != nil {
		return "", err
	}
	return resp.GetValue(), nil
}

// Compile returns the encoded chunk compiled by the server.
func (c *Client) Compile(ctx context.Context, source string) ([]byte, error) {
	resp := new(wrapperspb.BytesValue)
	if err := c.conn.Invoke(ctx, CompileProcedure, wrapperspb.String(source), resp); err != nil {
		return nil, err
	}
	return resp.GetValue(), nil
}
