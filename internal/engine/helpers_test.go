package engine

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/shiden34/internal/ir"
	"github.com/roach88/shiden34/internal/store"
)

const (
	alice ir.Account = "alice"
	bob   ir.Account = "bob"
	carol ir.Account = "carol"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// deployCall creates the reference collection: 888 tokens at price 1.
func deployCall() ir.Call {
	return ir.Call{
		Kind:   ir.CallTransact,
		Method: MethodNew,
		Caller: alice,
		Args: ir.IRObject{
			"name":      ir.IRString("Shiden34"),
			"symbol":    ir.IRString("SH34"),
			"baseUri":   ir.IRString("ipfs://tokenUriPrefix/"),
			"maxSupply": ir.IRInt(888),
			"price":     ir.IRInt(1),
		},
	}
}

func transactCall(flow string, caller ir.Account, method string, args ir.IRObject, value int64) ir.Call {
	if args == nil {
		args = ir.IRObject{}
	}
	return ir.Call{
		FlowToken: flow,
		Kind:      ir.CallTransact,
		Method:    method,
		Caller:    caller,
		Args:      args,
		Value:     value,
	}
}

func queryCall(flow string, caller ir.Account, method string, args ir.IRObject) ir.Call {
	c := transactCall(flow, caller, method, args, 0)
	c.Kind = ir.CallQuery
	return c
}

// newTestEngine returns a deployed in-memory engine.
func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e := New(nil, UUIDv7Generator{}, append([]Option{WithLogger(discardLogger())}, opts...)...)
	deploy := deployCall()
	deploy.FlowToken = "flow-deploy"
	receipt, err := e.Execute(context.Background(), deploy)
	require.NoError(t, err)
	require.True(t, receipt.OK(), "deploy outcome %s", receipt.Outcome)
	return e
}

// mustExecute runs a call that is expected to reach the ledger.
func mustExecute(t *testing.T, e *Engine, call ir.Call) ir.Receipt {
	t.Helper()
	receipt, err := e.Execute(context.Background(), call)
	require.NoError(t, err)
	return receipt
}

func queryValue(t *testing.T, e *Engine, method string, args ir.IRObject) ir.IRValue {
	t.Helper()
	receipt := mustExecute(t, e, queryCall("flow-q", alice, method, args))
	require.Equal(t, ir.OutcomeOk, receipt.Outcome)
	return receipt.Result["value"]
}

func tokenArgs(id int64) ir.IRObject {
	return ir.IRObject{"id": ir.IRInt(id)}
}
