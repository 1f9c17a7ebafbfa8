package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/shiden34/internal/ir"
	"github.com/roach88/shiden34/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	FlowToken string // optional - one flow only
	Method    string // optional - filter to one method
}

// TimelineEntry is one journaled call and its receipt.
type TimelineEntry struct {
	Seq         int64          `json:"seq"`
	ReceiptSeq  int64          `json:"receipt_seq"`
	FlowToken   string         `json:"flow_token"`
	CallID      string         `json:"call_id"`
	ReceiptID   string         `json:"receipt_id"`
	Method      string         `json:"method"`
	Caller      string         `json:"caller"`
	Args        ir.IRObject    `json:"args"`
	Value       int64          `json:"value"`
	Outcome     string         `json:"outcome"`
	Result      ir.IRObject    `json:"result"`
	Events      []ir.Event     `json:"events"`
	GasRequired int64          `json:"gas_required"`
}

// FlowStats summarizes one flow of the journal.
type FlowStats struct {
	FlowToken   string `json:"flow_token"`
	Calls       int    `json:"calls"`
	Failed      int    `json:"failed"`
	FirstSeq    int64  `json:"first_seq"`
	LastSeq     int64  `json:"last_seq"`
	LastOutcome string `json:"last_outcome"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Calls  int `json:"calls"`
	Failed int `json:"failed"`
	Events int `json:"events"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	FlowToken string          `json:"flow_token,omitempty"`
	Timeline  []TimelineEntry `json:"timeline"`
	Flows     []FlowStats     `json:"flows,omitempty"`
	Stats     TraceStats      `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the journal timeline",
		Long: `Show journaled calls and their receipts in seq order.

Without --flow the whole journal is shown together with a per-flow
summary. With --flow only that flow's calls are shown.

Examples:
  shiden34 trace --db ./ledger.db
  shiden34 trace --db ./ledger.db --flow 0190a5c4-...
  shiden34 trace --db ./ledger.db --method transfer --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.FlowToken, "flow", "", "flow token to trace")
	cmd.Flags().StringVar(&opts.Method, "method", "", "filter to one method")

	return cmd
}

func runTrace(ctx context.Context, opts *TraceOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var entries []store.Entry
	if opts.FlowToken != "" {
		entries, err = st.ReadFlow(ctx, opts.FlowToken)
	} else {
		entries, err = st.ReadJournal(ctx)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	result := TraceResult{
		FlowToken: opts.FlowToken,
		Timeline:  buildTimeline(entries, opts.Method),
	}
	for _, entry := range result.Timeline {
		result.Stats.Calls++
		if entry.Outcome != ir.OutcomeOk {
			result.Stats.Failed++
		}
		result.Stats.Events += len(entry.Events)
	}

	if opts.FlowToken == "" {
		flows, err := st.ListFlows(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list flows", err)
		}
		result.Flows = make([]FlowStats, len(flows))
		for i, f := range flows {
			result.Flows[i] = FlowStats{
				FlowToken:   f.FlowToken,
				Calls:       f.Calls,
				Failed:      f.Failed,
				FirstSeq:    f.FirstSeq,
				LastSeq:     f.LastSeq,
				LastOutcome: f.LastOutcome,
			}
		}
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: result})
	}
	return outputTraceText(cmd, result, opts.Verbose)
}

// buildTimeline converts journal entries to timeline entries, keeping only
// calls to method when it is set.
func buildTimeline(entries []store.Entry, method string) []TimelineEntry {
	timeline := make([]TimelineEntry, 0, len(entries))
	for _, e := range entries {
		if method != "" && e.Call.Method != method {
			continue
		}
		events := e.Receipt.Events
		if events == nil {
			events = []ir.Event{}
		}
		timeline = append(timeline, TimelineEntry{
			Seq:         e.Call.Seq,
			ReceiptSeq:  e.Receipt.Seq,
			FlowToken:   e.Call.FlowToken,
			CallID:      e.Call.ID,
			ReceiptID:   e.Receipt.ID,
			Method:      e.Call.Method,
			Caller:      string(e.Call.Caller),
			Args:        nonNil(e.Call.Args),
			Value:       e.Call.Value,
			Outcome:     e.Receipt.Outcome,
			Result:      nonNil(e.Receipt.Result),
			Events:      events,
			GasRequired: e.Receipt.GasRequired,
		})
	}
	return timeline
}

func nonNil(obj ir.IRObject) ir.IRObject {
	if obj == nil {
		return ir.IRObject{}
	}
	return obj
}

func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	if len(result.Timeline) == 0 {
		if result.FlowToken != "" {
			fmt.Fprintf(w, "No calls found for flow: %s\n", result.FlowToken)
		} else {
			fmt.Fprintln(w, "Journal is empty.")
		}
		return nil
	}

	if result.FlowToken != "" {
		fmt.Fprintf(w, "Flow: %s\n\n", result.FlowToken)
	} else {
		fmt.Fprintf(w, "Journal: %d call(s)\n\n", result.Stats.Calls)
	}

	for _, entry := range result.Timeline {
		status := "✓"
		if entry.Outcome != ir.OutcomeOk {
			status = "✗"
		}
		fmt.Fprintf(w, "%s [seq %d] %s by %s -> %s (gas %d)\n",
			status, entry.Seq, entry.Method, entry.Caller, entry.Outcome, entry.GasRequired)
		if verbose {
			fmt.Fprintf(w, "    args:   %s\n", canonicalText(entry.Args))
			if entry.Value != 0 {
				fmt.Fprintf(w, "    value:  %d\n", entry.Value)
			}
			fmt.Fprintf(w, "    result: %s\n", canonicalText(entry.Result))
			fmt.Fprintf(w, "    call:   %s\n", entry.CallID)
		}
		for _, ev := range entry.Events {
			fmt.Fprintf(w, "    %s %s\n", ev.Name, canonicalText(ev.Args))
		}
	}

	if len(result.Flows) > 0 {
		fmt.Fprintf(w, "\nFlows: %d\n", len(result.Flows))
		for _, f := range result.Flows {
			fmt.Fprintf(w, "  %s  calls=%d failed=%d seq=%d..%d last=%s\n",
				f.FlowToken, f.Calls, f.Failed, f.FirstSeq, f.LastSeq, f.LastOutcome)
		}
	}

	fmt.Fprintf(w, "\nStats: %d call(s), %d rejected, %d event(s)\n",
		result.Stats.Calls, result.Stats.Failed, result.Stats.Events)
	return nil
}
