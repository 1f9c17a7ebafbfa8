package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/shiden34/internal/ir"
	"github.com/roach88/shiden34/internal/ledger"
)

// createTestStore opens a fresh store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestCommit builds a committed call at seq with a content-addressed
// call and receipt.
func createTestCommit(flowToken, method string, seq int64, outcome string, events ...ir.Event) Commit {
	call := ir.Call{
		FlowToken: flowToken,
		Kind:      ir.CallTransact,
		Method:    method,
		Caller:    "alice",
		Args:      ir.IRObject{},
		Seq:       seq,
	}
	call.ID = ir.MustCallID(call)

	if events == nil {
		events = []ir.Event{}
	}
	receipt := ir.Receipt{
		CallID:      call.ID,
		Outcome:     outcome,
		Result:      ir.IRObject{},
		Events:      events,
		GasRequired: 1000,
		Seq:         seq + 1,
	}
	receipt.ID = ir.MustReceiptID(receipt)

	return Commit{Call: call, Receipt: receipt}
}

func testState(tokens ...ledger.Token) ledger.State {
	if tokens == nil {
		tokens = []ledger.Token{}
	}
	return ledger.State{
		Name:         "Shiden34",
		Symbol:       "SH34",
		BaseURI:      "ipfs://tokenUriPrefix/",
		MaxSupply:    888,
		Price:        1,
		Owner:        "alice",
		CollectionID: ir.MustCollectionID("Shiden34", "SH34", "ipfs://tokenUriPrefix/", 888, "alice"),
		Tokens:       tokens,
	}
}
