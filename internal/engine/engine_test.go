package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shiden34/internal/ir"
	"github.com/roach88/shiden34/internal/ledger"
	"github.com/roach88/shiden34/internal/store"
)

func TestExecute_Deploy(t *testing.T) {
	e := New(nil, UUIDv7Generator{}, WithLogger(discardLogger()))
	assert.False(t, e.Deployed())

	receipt := mustExecute(t, e, deployCall())

	require.Equal(t, ir.OutcomeOk, receipt.Outcome)
	assert.Equal(t, ir.IRObject{
		"collectionId": ir.IRString("2a10b0ec11a240b74fc9ede245a0bb3b9cd2f0c87101442220dddb3465e393ae"),
	}, receipt.Result)
	assert.Empty(t, receipt.Events)
	assert.Equal(t, int64(1000), receipt.GasRequired)
	assert.True(t, e.Deployed())

	st, ok := e.Snapshot()
	require.True(t, ok)
	assert.Equal(t, int64(888), st.MaxSupply)
	assert.Equal(t, alice, st.Owner)
}

func TestExecute_DeployWithMintCap(t *testing.T) {
	e := New(nil, UUIDv7Generator{}, WithLogger(discardLogger()))
	call := deployCall()
	call.Args["maxMintAmount"] = ir.IRInt(5)

	receipt := mustExecute(t, e, call)
	require.Equal(t, ir.OutcomeOk, receipt.Outcome)
	assert.Equal(t, ir.IRInt(5), queryValue(t, e, MethodMaxMintAmount, nil))
}

func TestExecute_DeployRejectedByLedger(t *testing.T) {
	e := New(nil, UUIDv7Generator{}, WithLogger(discardLogger()))
	call := deployCall()
	call.Args["maxSupply"] = ir.IRInt(0)

	receipt := mustExecute(t, e, call)
	assert.Equal(t, string(ledger.InvalidParams), receipt.Outcome)
	assert.False(t, e.Deployed())
}

func TestExecute_AlreadyDeployed(t *testing.T) {
	e := newTestEngine(t)

	receipt, err := e.Execute(context.Background(), deployCall())
	require.Error(t, err)

	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrCodeAlreadyDeployed, code)
	assert.Equal(t, string(ErrCodeAlreadyDeployed), receipt.Outcome)
}

func TestExecute_NotDeployed(t *testing.T) {
	e := New(nil, UUIDv7Generator{}, WithLogger(discardLogger()))

	for _, call := range []ir.Call{
		transactCall("f", bob, MethodMintNext, nil, 1),
		queryCall("f", bob, MethodTotalSupply, nil),
	} {
		receipt, err := e.Execute(context.Background(), call)
		code, _ := CodeOf(err)
		assert.Equal(t, ErrCodeNotDeployed, code, call.Method)
		assert.Equal(t, string(ErrCodeNotDeployed), receipt.Outcome)
	}
}

func TestExecute_UnknownMethod(t *testing.T) {
	e := newTestEngine(t)

	receipt, err := e.Execute(context.Background(), transactCall("f", bob, "burn", nil, 0))
	code, _ := CodeOf(err)
	assert.Equal(t, ErrCodeUnknownMethod, code)
	assert.Equal(t, string(ErrCodeUnknownMethod), receipt.Outcome)
	assert.Equal(t, int64(0), receipt.GasRequired)
}

func TestExecute_QueryOnly(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Execute(context.Background(), transactCall("f", bob, MethodTotalSupply, nil, 0))
	code, _ := CodeOf(err)
	assert.Equal(t, ErrCodeQueryOnly, code)
}

func TestExecute_InvalidKind(t *testing.T) {
	e := newTestEngine(t)
	seq := e.Seq()

	call := queryCall("f", bob, MethodTotalSupply, nil)
	call.Kind = "call"
	_, err := e.Execute(context.Background(), call)

	code, _ := CodeOf(err)
	assert.Equal(t, ErrCodeBadArgs, code)
	assert.Equal(t, seq, e.Seq(), "rejected kinds do not consume seqs")
}

func TestExecute_BadArgs(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name string
		call ir.Call
	}{
		{"missing id", transactCall("f", alice, MethodTransfer, ir.IRObject{"to": ir.IRString(bob)}, 0)},
		{"id as string", transactCall("f", alice, MethodTransfer, ir.IRObject{"to": ir.IRString(bob), "id": ir.IRString("1")}, 0)},
		{"negative id", queryCall("f", alice, MethodOwnerOf, tokenArgs(-1))},
		{"approved not bool", transactCall("f", alice, MethodApprove, ir.IRObject{"operator": ir.IRString(bob), "id": ir.IRInt(1), "approved": ir.IRInt(1)}, 0)},
		{"data not string", transactCall("f", alice, MethodTransfer, ir.IRObject{"to": ir.IRString(bob), "id": ir.IRInt(1), "data": ir.IRInt(7)}, 0)},
		{"data byte out of range", transactCall("f", alice, MethodTransfer, ir.IRObject{"to": ir.IRString(bob), "id": ir.IRInt(1), "data": ir.IRArray{ir.IRInt(1), ir.IRInt(256)}}, 0)},
		{"data element not int", transactCall("f", alice, MethodTransfer, ir.IRObject{"to": ir.IRString(bob), "id": ir.IRInt(1), "data": ir.IRArray{ir.IRString("a")}}, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			receipt, err := e.Execute(context.Background(), tt.call)
			code, _ := CodeOf(err)
			assert.Equal(t, ErrCodeBadArgs, code)
			assert.Equal(t, string(ErrCodeBadArgs), receipt.Outcome)

			var re *RuntimeError
			require.True(t, errors.As(err, &re))
			assert.Equal(t, "f", re.FlowToken)
		})
	}
}

func TestExecute_MintNext(t *testing.T) {
	e := newTestEngine(t)

	receipt := mustExecute(t, e, transactCall("f", bob, MethodMintNext, nil, 1))

	require.Equal(t, ir.OutcomeOk, receipt.Outcome)
	assert.Equal(t, ir.IRObject{"id": ir.IRInt(1)}, receipt.Result)
	assert.Equal(t, []ir.Event{ledger.TransferEvent(ledger.ZeroAccount, bob, 1)}, receipt.Events)
	assert.Equal(t, int64(11_000), receipt.GasRequired)

	assert.Equal(t, ir.IRInt(1), queryValue(t, e, MethodTotalSupply, nil))
	assert.Equal(t, ir.IRInt(1), queryValue(t, e, MethodBalanceOf, ir.IRObject{"account": ir.IRString(bob)}))
	assert.Equal(t, ir.IRString(bob), queryValue(t, e, MethodOwnerOf, tokenArgs(1)))
	assert.Equal(t, ir.IRString("ipfs://tokenUriPrefix/1.json"), queryValue(t, e, MethodTokenURI, tokenArgs(1)))
	assert.Equal(t, ir.IRInt(1), queryValue(t, e, MethodCollected, nil))
}

func TestExecute_LedgerRejection(t *testing.T) {
	e := newTestEngine(t)
	before, _ := e.Snapshot()

	receipt := mustExecute(t, e, transactCall("f", bob, MethodMintNext, nil, 2))

	assert.Equal(t, string(ledger.BadMintValue), receipt.Outcome)
	assert.Equal(t, ir.IRObject{}, receipt.Result)
	assert.Equal(t, []ir.Event{}, receipt.Events)

	after, _ := e.Snapshot()
	assert.Equal(t, before, after)
}

func TestExecute_BatchMint(t *testing.T) {
	e := newTestEngine(t)

	receipt := mustExecute(t, e, transactCall("f", bob, MethodMint,
		ir.IRObject{"to": ir.IRString(carol), "amount": ir.IRInt(3)}, 3))

	require.Equal(t, ir.OutcomeOk, receipt.Outcome)
	require.Len(t, receipt.Events, 3)
	for i, ev := range receipt.Events {
		assert.Equal(t, ledger.TransferEvent(ledger.ZeroAccount, carol, ledger.TokenID(i+1)), ev)
	}
	assert.Equal(t, int64(31_000), receipt.GasRequired)
	assert.Equal(t, ir.IRInt(3), queryValue(t, e, MethodBalanceOf, ir.IRObject{"account": ir.IRString(carol)}))
}

func TestExecute_MintCap(t *testing.T) {
	e := newTestEngine(t)

	receipt := mustExecute(t, e, transactCall("f", bob, MethodSetMaxMintAmount, ir.IRObject{"amount": ir.IRInt(2)}, 0))
	assert.Equal(t, string(ledger.NotOwner), receipt.Outcome)

	receipt = mustExecute(t, e, transactCall("f", alice, MethodSetMaxMintAmount, ir.IRObject{"amount": ir.IRInt(2)}, 0))
	require.Equal(t, ir.OutcomeOk, receipt.Outcome)

	receipt = mustExecute(t, e, transactCall("f", bob, MethodMint,
		ir.IRObject{"to": ir.IRString(bob), "amount": ir.IRInt(3)}, 3))
	assert.Equal(t, string(ledger.MintAmountExceeded), receipt.Outcome)
}

func TestExecute_TransferAndApprove(t *testing.T) {
	e := newTestEngine(t)
	mustExecute(t, e, transactCall("f", bob, MethodMintNext, nil, 1))

	// carol may not move bob's token yet
	receipt := mustExecute(t, e, transactCall("f", carol, MethodTransfer,
		ir.IRObject{"to": ir.IRString(carol), "id": ir.IRInt(1)}, 0))
	assert.Equal(t, string(ledger.NotOwnerOrApproved), receipt.Outcome)

	receipt = mustExecute(t, e, transactCall("f", bob, MethodApprove,
		ir.IRObject{"operator": ir.IRString(carol), "id": ir.IRInt(1), "approved": ir.IRBool(true)}, 0))
	require.Equal(t, ir.OutcomeOk, receipt.Outcome)
	assert.Equal(t, []ir.Event{ledger.ApprovalEvent(bob, carol, 1, true)}, receipt.Events)

	assert.Equal(t, ir.IRBool(true), queryValue(t, e, MethodAllowance, ir.IRObject{
		"owner": ir.IRString(bob), "operator": ir.IRString(carol), "id": ir.IRInt(1),
	}))

	receipt = mustExecute(t, e, transactCall("f", carol, MethodTransfer,
		ir.IRObject{"to": ir.IRString(carol), "id": ir.IRInt(1), "data": ir.IRString("abc")}, 0))
	require.Equal(t, ir.OutcomeOk, receipt.Outcome)
	assert.Equal(t, []ir.Event{ledger.TransferEvent(bob, carol, 1)}, receipt.Events)
	assert.Equal(t, int64(11_003), receipt.GasRequired)

	assert.Equal(t, ir.IRString(carol), queryValue(t, e, MethodOwnerOf, tokenArgs(1)))
	assert.Equal(t, ir.IRBool(false), queryValue(t, e, MethodAllowance, ir.IRObject{
		"owner": ir.IRString(carol), "operator": ir.IRString(carol), "id": ir.IRInt(1),
	}))
}

func TestExecute_TransferByteData(t *testing.T) {
	e := newTestEngine(t)
	mustExecute(t, e, transactCall("f", bob, MethodMintNext, nil, 1))
	mustExecute(t, e, transactCall("f", bob, MethodMintNext, nil, 1))

	// An empty byte vector, as wallets send it.
	receipt := mustExecute(t, e, transactCall("f", bob, MethodTransfer,
		ir.IRObject{"to": ir.IRString(carol), "id": ir.IRInt(1), "data": ir.IRArray{}}, 0))
	require.Equal(t, ir.OutcomeOk, receipt.Outcome)
	assert.Equal(t, int64(11_000), receipt.GasRequired)

	receipt = mustExecute(t, e, transactCall("f", bob, MethodTransfer,
		ir.IRObject{"to": ir.IRString(carol), "id": ir.IRInt(2), "data": ir.IRArray{ir.IRInt(0), ir.IRInt(255), ir.IRInt(7)}}, 0))
	require.Equal(t, ir.OutcomeOk, receipt.Outcome)
	assert.Equal(t, int64(11_003), receipt.GasRequired)
	assert.Equal(t, ir.IRInt(2), queryValue(t, e, MethodBalanceOf, ir.IRObject{"account": ir.IRString(carol)}))
}

func TestExecute_TokenNotFound(t *testing.T) {
	e := newTestEngine(t)

	receipt := mustExecute(t, e, queryCall("f", bob, MethodOwnerOf, tokenArgs(0)))
	assert.Equal(t, string(ledger.TokenNotFound), receipt.Outcome)

	receipt = mustExecute(t, e, transactCall("f", bob, MethodTransfer,
		ir.IRObject{"to": ir.IRString(carol), "id": ir.IRInt(9)}, 0))
	assert.Equal(t, string(ledger.TokenNotFound), receipt.Outcome)
}

func TestExecute_GetAttribute(t *testing.T) {
	e := newTestEngine(t)
	id := queryValue(t, e, MethodCollectionID, nil)

	assert.Equal(t, ir.IRString("SH34"), queryValue(t, e, MethodGetAttribute, ir.IRObject{
		"collectionId": id, "key": ir.IRString("symbol"),
	}))
	assert.Equal(t, ir.IRString(""), queryValue(t, e, MethodGetAttribute, ir.IRObject{
		"collectionId": ir.IRString("other"), "key": ir.IRString("symbol"),
	}))
}

func TestExecute_WithdrawAndPrice(t *testing.T) {
	e := newTestEngine(t)

	mustExecute(t, e, transactCall("f", alice, MethodSetPrice, ir.IRObject{"price": ir.IRInt(5)}, 0))
	assert.Equal(t, ir.IRInt(5), queryValue(t, e, MethodPrice, nil))

	receipt := mustExecute(t, e, transactCall("f", bob, MethodMintNext, nil, 5))
	require.Equal(t, ir.OutcomeOk, receipt.Outcome)

	receipt = mustExecute(t, e, transactCall("f", bob, MethodWithdraw, nil, 0))
	assert.Equal(t, string(ledger.NotOwner), receipt.Outcome)

	receipt = mustExecute(t, e, transactCall("f", alice, MethodWithdraw, nil, 0))
	require.Equal(t, ir.OutcomeOk, receipt.Outcome)
	assert.Equal(t, ir.IRObject{"amount": ir.IRInt(5)}, receipt.Result)
	assert.Equal(t, ir.IRInt(0), queryValue(t, e, MethodCollected, nil))
}

func TestExecute_DryRun(t *testing.T) {
	e := newTestEngine(t)
	seq := e.Seq()

	receipt := mustExecute(t, e, queryCall("f", bob, MethodMintNext, nil))
	assert.Equal(t, string(ledger.BadMintValue), receipt.Outcome)

	call := queryCall("f", bob, MethodMintNext, nil)
	call.Value = 1
	receipt = mustExecute(t, e, call)
	require.Equal(t, ir.OutcomeOk, receipt.Outcome)
	assert.Equal(t, ir.IRObject{"id": ir.IRInt(1)}, receipt.Result)
	assert.Len(t, receipt.Events, 1)

	assert.Equal(t, ir.IRInt(0), queryValue(t, e, MethodTotalSupply, nil))
	assert.Equal(t, seq, e.Seq(), "queries do not advance the clock")
	assert.Equal(t, seq, receipt.Seq)
}

func TestExecute_Seq(t *testing.T) {
	e := New(nil, UUIDv7Generator{}, WithLogger(discardLogger()))

	deploy := mustExecute(t, e, deployCall())
	assert.Equal(t, int64(2), deploy.Seq)

	mint := mustExecute(t, e, transactCall("f", bob, MethodMintNext, nil, 1))
	assert.Equal(t, int64(4), mint.Seq)

	q := mustExecute(t, e, queryCall("f", bob, MethodTotalSupply, nil))
	assert.Equal(t, int64(4), q.Seq)

	// environment failures consume seqs too
	_, err := e.Execute(context.Background(), transactCall("f", bob, "burn", nil, 0))
	require.Error(t, err)
	assert.Equal(t, int64(6), e.Seq())
}

func TestExecute_ContentAddressedIDs(t *testing.T) {
	run := func() ir.Receipt {
		e := New(nil, NewFixedGenerator("flow-deploy"), WithLogger(discardLogger()))
		mustExecute(t, e, deployCall())
		return mustExecute(t, e, transactCall("flow-1", bob, MethodMintNext, nil, 1))
	}

	a, b := run(), run()
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, a.CallID, b.CallID)
	assert.Len(t, a.ID, 64)
	assert.Equal(t, ir.MustReceiptID(a), a.ID)
}

func TestExecute_OutOfGas(t *testing.T) {
	e := newTestEngine(t)

	call := transactCall("f", bob, MethodMintNext, nil, 1)
	call.GasLimit = 5_000
	receipt, err := e.Execute(context.Background(), call)

	require.True(t, IsOutOfGas(err))
	assert.Equal(t, string(ErrCodeOutOfGas), receipt.Outcome)
	assert.Equal(t, int64(11_000), receipt.GasRequired)
	assert.Equal(t, ir.IRInt(0), queryValue(t, e, MethodTotalSupply, nil))

	call.GasLimit = 11_000
	receipt = mustExecute(t, e, call)
	assert.Equal(t, ir.OutcomeOk, receipt.Outcome)
}

func TestExecute_JournalsTransacts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	e := New(s, UUIDv7Generator{}, WithLogger(discardLogger()))

	mustExecute(t, e, deployCall())
	mustExecute(t, e, transactCall("flow-1", bob, MethodMintNext, nil, 1))
	mustExecute(t, e, transactCall("flow-1", bob, MethodMintNext, nil, 7)) // BadMintValue
	mustExecute(t, e, queryCall("flow-1", bob, MethodTotalSupply, nil))
	_, err := e.Execute(ctx, transactCall("flow-1", bob, "burn", nil, 0))
	require.Error(t, err)

	entries, err := s.ReadJournal(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 4, "queries are not journaled")
	assert.Equal(t, ir.OutcomeOk, entries[1].Receipt.Outcome)
	assert.Equal(t, string(ledger.BadMintValue), entries[2].Receipt.Outcome)
	assert.Equal(t, string(ErrCodeUnknownMethod), entries[3].Receipt.Outcome)

	st, ok, err := s.LoadState(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	snap, _ := e.Snapshot()
	assert.Equal(t, snap, st)

	balance, err := s.ReadBalance(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(1), balance)
}

func TestOpen_RestoresState(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	e := New(s, UUIDv7Generator{}, WithLogger(discardLogger()))
	mustExecute(t, e, deployCall())
	mustExecute(t, e, transactCall("f", bob, MethodMint, ir.IRObject{"to": ir.IRString(bob), "amount": ir.IRInt(2)}, 2))

	reopened, err := Open(ctx, s, UUIDv7Generator{}, WithLogger(discardLogger()))
	require.NoError(t, err)

	assert.True(t, reopened.Deployed())
	assert.Equal(t, e.Seq(), reopened.Seq())
	assert.Equal(t, ir.IRInt(2), queryValue(t, reopened, MethodTotalSupply, nil))

	receipt := mustExecute(t, reopened, transactCall("f", carol, MethodMintNext, nil, 1))
	assert.Equal(t, ir.IRObject{"id": ir.IRInt(3)}, receipt.Result)
	assert.Equal(t, e.Seq()+2, receipt.Seq)
}

func TestOpen_EmptyStore(t *testing.T) {
	s := setupTestStore(t)

	e, err := Open(context.Background(), s, UUIDv7Generator{}, WithLogger(discardLogger()))
	require.NoError(t, err)
	assert.False(t, e.Deployed())
	assert.Equal(t, int64(0), e.Seq())
}

type failingJournal struct {
	err error
}

func (j *failingJournal) Commit(context.Context, store.Commit) error {
	return j.err
}

func TestExecute_JournalFailureRollsBack(t *testing.T) {
	journal := &failingJournal{}
	e := New(journal, UUIDv7Generator{}, WithLogger(discardLogger()))
	mustExecute(t, e, deployCall())
	before, _ := e.Snapshot()
	seq := e.Seq()

	journal.err = errors.New("disk full")
	receipt, err := e.Execute(context.Background(), transactCall("f", bob, MethodMintNext, nil, 1))

	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")
	assert.False(t, IsRuntimeError(err))
	assert.Equal(t, ir.Receipt{}, receipt)

	after, _ := e.Snapshot()
	assert.Equal(t, before, after)
	assert.Equal(t, seq, e.Seq())
}

func TestRun_SubmitConcurrent(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	const minters = 20
	var wg sync.WaitGroup
	ids := make(chan int64, minters)
	for i := 0; i < minters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			receipt, err := e.Submit(ctx, transactCall("f", bob, MethodMintNext, nil, 1))
			if assert.NoError(t, err) && assert.Equal(t, ir.OutcomeOk, receipt.Outcome) {
				n, _ := receipt.Result.Int("id")
				ids <- n
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		assert.False(t, seen[id], "id %d minted twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, minters)

	e.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	st, _ := e.Snapshot()
	assert.Len(t, st.Tokens, minters)
}

func TestRun_ReturnsOnCancel(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	_, err := e.Submit(context.Background(), queryCall("f", bob, MethodTotalSupply, nil))
	assert.ErrorIs(t, err, ErrStopped)
}

func TestSubmit_AfterStop(t *testing.T) {
	e := newTestEngine(t)
	e.Stop()

	_, err := e.Submit(context.Background(), queryCall("f", bob, MethodTotalSupply, nil))
	assert.ErrorIs(t, err, ErrStopped)
}

func TestSubmit_ContextCancelled(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// no Run loop: the wait can only end through ctx
	_, err := e.Submit(ctx, transactCall("f", bob, MethodMintNext, nil, 1))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, e.QueueLen())

	// the loop skips the abandoned call
	e.Stop()
	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, ir.IRInt(0), queryValue(t, e, MethodTotalSupply, nil))
}

func TestRun_DrainsQueuedOnStop(t *testing.T) {
	e := newTestEngine(t)

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := e.Submit(context.Background(), transactCall("f", bob, MethodMintNext, nil, 1))
			results <- err
		}()
	}
	require.Eventually(t, func() bool { return e.QueueLen() == 2 }, time.Second, time.Millisecond)

	e.Stop()
	require.NoError(t, e.Run(context.Background()))

	for i := 0; i < 2; i++ {
		assert.NoError(t, <-results)
	}
	assert.Equal(t, ir.IRInt(2), queryValue(t, e, MethodTotalSupply, nil))
}
