package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shiden34/internal/ir"
)

func TestReadJournal_Empty(t *testing.T) {
	s := createTestStore(t)

	entries, err := s.ReadJournal(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestReadJournal_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Written out of order on purpose.
	for _, seq := range []int64{5, 1, 3} {
		require.NoError(t, s.Commit(ctx, createTestCommit("flow-1", "mintNext", seq, ir.OutcomeOk)))
	}

	entries, err := s.ReadJournal(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(1), entries[0].Call.Seq)
	assert.Equal(t, int64(3), entries[1].Call.Seq)
	assert.Equal(t, int64(5), entries[2].Call.Seq)
}

func TestReadFlow(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Commit(ctx, createTestCommit("flow-a", "mintNext", 1, ir.OutcomeOk)))
	require.NoError(t, s.Commit(ctx, createTestCommit("flow-b", "mintNext", 3, ir.OutcomeOk)))
	require.NoError(t, s.Commit(ctx, createTestCommit("flow-a", "transfer", 5, "TokenNotFound")))

	entries, err := s.ReadFlow(ctx, "flow-a")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "mintNext", entries[0].Call.Method)
	assert.Equal(t, "transfer", entries[1].Call.Method)

	none, err := s.ReadFlow(ctx, "flow-z")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestReadEntry_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadEntry(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestLastSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)

	require.NoError(t, s.Commit(ctx, createTestCommit("flow-1", "mintNext", 7, ir.OutcomeOk)))
	seq, err = s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), seq, "receipt seq follows call seq")
}

func TestLoadState_Empty(t *testing.T) {
	s := createTestStore(t)

	_, ok, err := s.LoadState(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArgsRoundTripLargeInts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	c := createTestCommit("flow-1", "setPrice", 1, ir.OutcomeOk)
	c.Call.Args = ir.IRObject{"price": ir.IRInt(1<<62 + 1)}
	c.Call.ID = ir.MustCallID(c.Call)
	c.Receipt.CallID = c.Call.ID
	c.Receipt.ID = ir.MustReceiptID(c.Receipt)
	require.NoError(t, s.Commit(ctx, c))

	got, err := s.ReadEntry(ctx, c.Call.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(1<<62+1), got.Call.Args["price"])
}

func TestListFlows(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	flows, err := s.ListFlows(ctx)
	require.NoError(t, err)
	assert.NotNil(t, flows)
	assert.Empty(t, flows)

	require.NoError(t, s.Commit(ctx, createTestCommit("flow-b", "mintNext", 3, ir.OutcomeOk)))
	require.NoError(t, s.Commit(ctx, createTestCommit("flow-a", "mintNext", 1, ir.OutcomeOk)))
	require.NoError(t, s.Commit(ctx, createTestCommit("flow-a", "mintNext", 5, "BadMintValue")))

	flows, err = s.ListFlows(ctx)
	require.NoError(t, err)
	require.Len(t, flows, 2)

	assert.Equal(t, FlowSummary{
		FlowToken:   "flow-a",
		Calls:       2,
		FirstSeq:    1,
		LastSeq:     5,
		LastOutcome: "BadMintValue",
		Failed:      1,
	}, flows[0])
	assert.Equal(t, "flow-b", flows[1].FlowToken)
	assert.Equal(t, 0, flows[1].Failed)
}
