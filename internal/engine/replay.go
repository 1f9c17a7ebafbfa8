package engine

import (
	"context"
	"fmt"

	"github.com/roach88/shiden34/internal/ir"
	"github.com/roach88/shiden34/internal/ledger"
	"github.com/roach88/shiden34/internal/store"
)

// Mismatch is a journaled receipt that replay did not reproduce.
type Mismatch struct {
	Seq         int64
	Method      string
	CallID      string
	WantReceipt string
	GotReceipt  string
	WantOutcome string
	GotOutcome  string
}

// ReplayReport summarizes a replay.
type ReplayReport struct {
	Calls      int
	Mismatches []Mismatch
	State      *ledger.State // nil if the journal never deployed a collection
}

// OK reports whether every receipt was reproduced.
func (r ReplayReport) OK() bool {
	return len(r.Mismatches) == 0
}

// Replay re-executes journaled calls on a fresh in-memory engine and
// compares each receipt ID with the journaled one.
//
// Calls keep their flow tokens, and the clock is positioned at each call's
// seq, so content-addressed IDs match exactly when behavior is unchanged.
// Replay writes nothing.
func Replay(ctx context.Context, entries []store.Entry, opts ...Option) (ReplayReport, error) {
	e := New(nil, UUIDv7Generator{}, opts...)
	report := ReplayReport{Mismatches: []Mismatch{}}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		want := entry.Call
		if want.Kind != ir.CallTransact {
			return report, fmt.Errorf("replay seq %d: journal holds a %s call", want.Seq, want.Kind)
		}

		e.clock.Reset(want.Seq - 1)
		got, err := e.Execute(ctx, ir.Call{
			FlowToken: want.FlowToken,
			Kind:      want.Kind,
			Method:    want.Method,
			Caller:    want.Caller,
			Args:      want.Args,
			Value:     want.Value,
			GasLimit:  want.GasLimit,
		})
		if err != nil && !IsRuntimeError(err) {
			return report, fmt.Errorf("replay seq %d: %w", want.Seq, err)
		}
		report.Calls++

		if got.CallID != want.ID || got.ID != entry.Receipt.ID {
			report.Mismatches = append(report.Mismatches, Mismatch{
				Seq:         want.Seq,
				Method:      want.Method,
				CallID:      want.ID,
				WantReceipt: entry.Receipt.ID,
				GotReceipt:  got.ID,
				WantOutcome: entry.Receipt.Outcome,
				GotOutcome:  got.Outcome,
			})
		}
	}

	if st, ok := e.Snapshot(); ok {
		report.State = &st
	}
	return report, nil
}
