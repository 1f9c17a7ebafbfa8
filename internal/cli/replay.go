package cli

import (
	"context"
	"fmt"
	"reflect"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/shiden34/internal/engine"
	"github.com/roach88/shiden34/internal/ledger"
	"github.com/roach88/shiden34/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// ReplayResult holds the replay result.
type ReplayResult struct {
	Calls         int               `json:"calls"`
	Mismatches    []engine.Mismatch `json:"mismatches"`
	StateMatches  bool              `json:"state_matches"`
	TotalSupply   int64             `json:"total_supply"`
	Deterministic bool              `json:"deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the journal and verify determinism",
		Long: `Re-execute every journaled transact on a fresh ledger and verify that
each receipt is reproduced byte for byte and that the rebuilt state
matches the materialized state in the database.

Exit codes:
  0 - Journal reproduced exactly
  1 - Mismatch detected
  2 - Command error (database not found, etc.)

Examples:
  shiden34 replay --db ./ledger.db
  shiden34 replay --db ./ledger.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReplay(ctx context.Context, opts *ReplayOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	entries, err := st.ReadJournal(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	report, err := engine.Replay(ctx, entries, engine.WithLogger(opts.Logger()))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to replay journal", err)
	}

	stored, deployed, err := st.LoadState(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load state", err)
	}

	result := ReplayResult{
		Calls:        report.Calls,
		Mismatches:   report.Mismatches,
		StateMatches: statesEqual(report.State, stored, deployed),
	}
	if report.State != nil {
		result.TotalSupply = int64(len(report.State.Tokens))
	}
	result.Deterministic = report.OK() && result.StateMatches

	if opts.Format == "json" {
		response := CLIResponse{Status: "ok", Data: result}
		if !result.Deterministic {
			response.Status = "error"
			response.Error = &CLIError{
				Code:    "E_DETERMINISM",
				Message: "replay did not reproduce the journal",
			}
		}
		if err := writeJSON(cmd.OutOrStdout(), response); err != nil {
			return err
		}
	} else {
		outputReplayText(cmd, result)
	}

	if !result.Deterministic {
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// statesEqual compares the replayed state with the materialized one.
func statesEqual(replayed *ledger.State, stored ledger.State, deployed bool) bool {
	if replayed == nil || !deployed {
		return replayed == nil && !deployed
	}
	a, b := *replayed, stored
	if !slices.Equal(a.Tokens, b.Tokens) {
		return false
	}
	a.Tokens, b.Tokens = nil, nil
	return reflect.DeepEqual(a, b)
}

func outputReplayText(cmd *cobra.Command, result ReplayResult) {
	w := cmd.OutOrStdout()

	if result.Calls == 0 {
		fmt.Fprintln(w, "Journal is empty.")
		return
	}

	fmt.Fprintf(w, "Replayed %d call(s), total supply %d\n", result.Calls, result.TotalSupply)

	for _, m := range result.Mismatches {
		fmt.Fprintf(w, "✗ seq %d %s: receipt %s, replay produced %s", m.Seq, m.Method, m.WantReceipt, m.GotReceipt)
		if m.WantOutcome != m.GotOutcome {
			fmt.Fprintf(w, " (outcome %s -> %s)", m.WantOutcome, m.GotOutcome)
		}
		fmt.Fprintln(w)
	}
	if !result.StateMatches {
		fmt.Fprintln(w, "✗ Replayed state differs from the stored state")
	}

	if result.Deterministic {
		fmt.Fprintln(w, "✓ Journal reproduced exactly")
		return
	}
	fmt.Fprintln(w, "✗ Determinism verification failed")
}
