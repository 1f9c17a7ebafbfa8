// Package rpc serves the ledger over JSON-RPC 2.0.
//
// The "Ledger" service exposes Ping, Deploy, Query and Transact. Ledger
// rejections are ordinary replies with the tag in the receipt outcome;
// environment failures are JSON-RPC errors carrying the code and receipt.
package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/shiden34/internal/config"
	"github.com/roach88/shiden34/internal/engine"
	"github.com/roach88/shiden34/internal/ir"
)

const (
	// Name is the registered service name; methods are "Ledger.<Method>".
	Name = "Ledger"

	JSONRPCEndpoint = "/rpc"
	MetricsEndpoint = "/metrics"
)

// Submitter applies calls. *engine.Engine implements it.
type Submitter interface {
	Submit(ctx context.Context, call ir.Call) (ir.Receipt, error)
}

// NewHandler returns an HTTP handler serving the service at JSONRPCEndpoint
// and, when gatherer is non-nil, Prometheus metrics at MetricsEndpoint.
func NewHandler(service *Service, gatherer prometheus.Gatherer) (http.Handler, error) {
	server := rpc.NewServer()
	server.RegisterCodec(json2.NewCodec(), "application/json")
	server.RegisterCodec(json2.NewCodec(), "application/json;charset=UTF-8")
	if err := server.RegisterService(service, Name); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle(JSONRPCEndpoint, server)
	if gatherer != nil {
		mux.Handle(MetricsEndpoint, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return mux, nil
}

// Service is the JSON-RPC receiver.
type Service struct {
	engine Submitter
	logger *slog.Logger
}

// NewService creates a service over e. A nil logger uses slog.Default().
func NewService(e Submitter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: e, logger: logger}
}

type PingReply struct {
	Success bool `json:"success"`
}

func (s *Service) Ping(_ *http.Request, _ *struct{}, reply *PingReply) error {
	reply.Success = true
	return nil
}

// CallArgs is a query or transact request.
type CallArgs struct {
	FlowToken string      `json:"flowToken,omitempty"`
	Method    string      `json:"method"`
	Caller    ir.Account  `json:"caller"`
	Args      ir.IRObject `json:"args,omitempty"`
	Value     int64       `json:"value,omitempty"`
	GasLimit  int64       `json:"gasLimit,omitempty"`
}

func (a CallArgs) call(kind ir.CallKind) ir.Call {
	return ir.Call{
		FlowToken: a.FlowToken,
		Kind:      kind,
		Method:    a.Method,
		Caller:    a.Caller,
		Args:      a.Args,
		Value:     a.Value,
		GasLimit:  a.GasLimit,
	}
}

type ReceiptReply struct {
	Receipt ir.Receipt `json:"receipt"`
}

func (s *Service) Query(req *http.Request, args *CallArgs, reply *ReceiptReply) error {
	return s.submit(req.Context(), args.call(ir.CallQuery), reply)
}

func (s *Service) Transact(req *http.Request, args *CallArgs, reply *ReceiptReply) error {
	return s.submit(req.Context(), args.call(ir.CallTransact), reply)
}

type DeployArgs struct {
	Caller     ir.Account        `json:"caller"`
	Collection config.Collection `json:"collection"`
	GasLimit   int64             `json:"gasLimit,omitempty"`
}

// Deploy runs the constructor with the given collection parameters.
func (s *Service) Deploy(req *http.Request, args *DeployArgs, reply *ReceiptReply) error {
	return s.submit(req.Context(), ir.Call{
		Kind:     ir.CallTransact,
		Method:   engine.MethodNew,
		Caller:   args.Caller,
		Args:     args.Collection.Args(),
		GasLimit: args.GasLimit,
	}, reply)
}

func (s *Service) submit(ctx context.Context, call ir.Call, reply *ReceiptReply) error {
	receipt, err := s.engine.Submit(ctx, call)
	if err != nil {
		s.logger.Debug("rpc call failed", "method", call.Method, "kind", call.Kind, "error", err)
		return toJSONError(receipt, err)
	}
	reply.Receipt = receipt
	return nil
}

// ErrorData is the data member of an environment failure.
type ErrorData struct {
	Code    engine.RuntimeErrorCode `json:"code"`
	Receipt ir.Receipt              `json:"receipt"`
}

func toJSONError(receipt ir.Receipt, err error) *json2.Error {
	var re *engine.RuntimeError
	if !errors.As(err, &re) {
		return &json2.Error{Code: json2.E_INTERNAL, Message: err.Error()}
	}

	code := json2.E_SERVER
	switch re.Code {
	case engine.ErrCodeUnknownMethod:
		code = json2.E_NO_METHOD
	case engine.ErrCodeBadArgs:
		code = json2.E_BAD_PARAMS
	}
	return &json2.Error{
		Code:    code,
		Message: re.Error(),
		Data:    ErrorData{Code: re.Code, Receipt: receipt},
	}
}
