package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/shiden34/internal/config"
	"github.com/roach88/shiden34/internal/engine"
	"github.com/roach88/shiden34/internal/ir"
)

// DeployOptions holds flags for the deploy command.
type DeployOptions struct {
	*RootOptions
	Database string
	Config   string
	Caller   string
	GasLimit int64
}

// NewDeployCommand creates the deploy command.
func NewDeployCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeployOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Create the collection from a CUE file",
		Long: `Create the collection described by a CUE file. The caller becomes the
collection owner. A database holds one collection; deploying twice is
rejected with ALREADY_DEPLOYED.

Examples:
  shiden34 deploy --db ./ledger.db --config ./collection.cue --caller alice`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Config, "config", "", "collection CUE file (required)")
	_ = cmd.MarkFlagRequired("config")
	cmd.Flags().StringVar(&opts.Caller, "caller", "", "deploying account, the collection owner (required)")
	_ = cmd.MarkFlagRequired("caller")
	cmd.Flags().Int64Var(&opts.GasLimit, "gas-limit", 0, "gas limit (0 = unmetered)")

	return cmd
}

func runDeploy(ctx context.Context, opts *DeployOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid collection config", err)
	}

	st, e, err := openEngine(ctx, opts.Database, opts.Logger())
	if err != nil {
		return err
	}
	defer st.Close()

	opts.Logger().Debug("deploying collection",
		"name", cfg.Name,
		"max_supply", cfg.MaxSupply,
		"price", cfg.Price,
	)

	return executeCall(ctx, cmd, opts.Format, e, ir.Call{
		Kind:     ir.CallTransact,
		Method:   engine.MethodNew,
		Caller:   ir.Account(opts.Caller),
		Args:     cfg.Args(),
		GasLimit: opts.GasLimit,
	})
}
