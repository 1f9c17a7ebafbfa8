package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/shiden34/internal/engine"
	"github.com/roach88/shiden34/internal/ir"
	"github.com/roach88/shiden34/internal/store"
)

// CallOptions holds flags shared by tx and query.
type CallOptions struct {
	*RootOptions
	Database  string
	Caller    string
	Args      string // JSON object
	Value     int64
	GasLimit  int64
	FlowToken string
}

func (o *CallOptions) bindFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&o.Args, "args", "{}", "method arguments as a JSON object")
	cmd.Flags().Int64Var(&o.Value, "value", 0, "payment carried on the call")
	cmd.Flags().Int64Var(&o.GasLimit, "gas-limit", 0, "gas limit (0 = unmetered)")
	cmd.Flags().StringVar(&o.FlowToken, "flow", "", "flow token (default: a new UUIDv7)")
}

// NewTxCommand creates the tx command.
func NewTxCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tx <method>",
		Short: "Submit a transact call",
		Long: `Submit a state-changing call and journal it with its receipt.

Ledger rejections (BadMintValue, NotOwner, ...) and runtime errors
(BAD_ARGS, OUT_OF_GAS, ...) are journaled too and reported as the
receipt outcome.

Exit codes:
  0 - Outcome Ok
  1 - Call rejected
  2 - Command error

Examples:
  shiden34 tx mintNext --db ./ledger.db --caller bob --value 1
  shiden34 tx mint --db ./ledger.db --caller bob --args '{"to":"bob","amount":3}' --value 3
  shiden34 tx transfer --db ./ledger.db --caller bob --args '{"to":"carol","id":1}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd.Context(), opts, ir.CallTransact, args[0], cmd)
		},
	}

	opts.bindFlags(cmd)
	cmd.Flags().StringVar(&opts.Caller, "caller", "", "calling account (required)")
	_ = cmd.MarkFlagRequired("caller")

	return cmd
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <method>",
		Short: "Run a read-only call",
		Long: `Run a query against the journaled state. Nothing is written.

A query naming a mutating method is a dry run: it reports the outcome,
events and gas the transact would produce.

Examples:
  shiden34 query totalSupply --db ./ledger.db
  shiden34 query ownerOf --db ./ledger.db --args '{"id":1}'
  shiden34 query mintNext --db ./ledger.db --caller bob --value 1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd.Context(), opts, ir.CallQuery, args[0], cmd)
		},
	}

	opts.bindFlags(cmd)
	cmd.Flags().StringVar(&opts.Caller, "caller", "", "calling account")

	return cmd
}

func runCall(ctx context.Context, opts *CallOptions, kind ir.CallKind, method string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}

	args, err := parseArgs(opts.Args)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --args", err)
	}

	st, e, err := openEngine(ctx, opts.Database, opts.Logger())
	if err != nil {
		return err
	}
	defer st.Close()

	return executeCall(ctx, cmd, opts.Format, e, ir.Call{
		FlowToken: opts.FlowToken,
		Kind:      kind,
		Method:    method,
		Caller:    ir.Account(opts.Caller),
		Args:      args,
		Value:     opts.Value,
		GasLimit:  opts.GasLimit,
	})
}

// parseArgs decodes a JSON object of call arguments.
func parseArgs(s string) (ir.IRObject, error) {
	if s == "" {
		return ir.IRObject{}, nil
	}
	v, err := ir.UnmarshalIRValue([]byte(s))
	if err != nil {
		return nil, err
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %T", v)
	}
	return obj, nil
}

// openEngine opens the database and restores the engine from it.
func openEngine(ctx context.Context, path string, logger *slog.Logger, opts ...engine.Option) (*store.Store, *engine.Engine, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	opts = append([]engine.Option{engine.WithLogger(logger)}, opts...)
	e, err := engine.Open(ctx, st, engine.UUIDv7Generator{}, opts...)
	if err != nil {
		st.Close()
		return nil, nil, WrapExitError(ExitCommandError, "failed to restore ledger", err)
	}
	return st, e, nil
}

// executeCall runs one call and prints its receipt. A non-Ok outcome is
// ExitFailure; an error with no receipt is ExitCommandError.
func executeCall(ctx context.Context, cmd *cobra.Command, format string, e *engine.Engine, call ir.Call) error {
	w := cmd.OutOrStdout()

	receipt, err := e.Execute(ctx, call)

	var re *engine.RuntimeError
	switch {
	case errors.As(err, &re):
		if receipt.Outcome == "" {
			receipt.Outcome = string(re.Code)
		}
		if werr := writeReceipt(w, format, receipt, re.Message); werr != nil {
			return werr
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%s rejected: %s", call.Method, re.Code))
	case err != nil:
		return WrapExitError(ExitCommandError, fmt.Sprintf("%s failed", call.Method), err)
	}

	if err := writeReceipt(w, format, receipt, ""); err != nil {
		return err
	}
	if !receipt.OK() {
		return NewExitError(ExitFailure, fmt.Sprintf("%s returned %s", call.Method, receipt.Outcome))
	}
	return nil
}
