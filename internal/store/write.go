package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/shiden34/internal/ir"
	"github.com/roach88/shiden34/internal/ledger"
)

// Commit is everything one transact call writes.
type Commit struct {
	Call    ir.Call
	Receipt ir.Receipt

	// State is the ledger after the call. Nil when the call failed or
	// left the collection untouched. State.Tokens is not written in full;
	// only the rows listed in Tokens are.
	State *ledger.State

	// Tokens are the token rows the call changed.
	Tokens []ledger.Token
}

// Commit writes a call, its receipt and the state it produced in a single
// transaction. Either all rows land or none do.
//
// The call insert uses ON CONFLICT(id) DO NOTHING so committing the same
// content-addressed call twice is a no-op.
func (s *Store) Commit(ctx context.Context, c Commit) error {
	if c.Receipt.CallID != c.Call.ID {
		return fmt.Errorf("write commit: receipt belongs to call %s, not %s", c.Receipt.CallID, c.Call.ID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write commit: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	inserted, err := writeCall(ctx, tx, c.Call)
	if err != nil {
		return fmt.Errorf("write commit: %w", err)
	}
	if !inserted {
		return nil
	}

	if err := writeReceipt(ctx, tx, c.Receipt); err != nil {
		return fmt.Errorf("write commit: %w", err)
	}

	if c.State != nil {
		if err := writeCollection(ctx, tx, *c.State, c.Receipt.Seq); err != nil {
			return fmt.Errorf("write commit: %w", err)
		}
		for _, tok := range c.Tokens {
			if err := writeToken(ctx, tx, tok); err != nil {
				return fmt.Errorf("write commit: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write commit: %w", err)
	}
	return nil
}

func writeCall(ctx context.Context, tx *sql.Tx, call ir.Call) (bool, error) {
	argsJSON, err := marshalObject("args", call.Args)
	if err != nil {
		return false, fmt.Errorf("write call: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO calls
		(id, flow_token, kind, method, caller, args, value, gas_limit, seq, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		call.ID,
		call.FlowToken,
		string(call.Kind),
		call.Method,
		string(call.Caller),
		argsJSON,
		call.Value,
		call.GasLimit,
		call.Seq,
		ir.EngineVersion,
		ir.IRVersion,
	)
	if err != nil {
		return false, fmt.Errorf("write call: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write call: rows affected: %w", err)
	}
	return n > 0, nil
}

func writeReceipt(ctx context.Context, tx *sql.Tx, r ir.Receipt) error {
	resultJSON, err := marshalObject("result", r.Result)
	if err != nil {
		return fmt.Errorf("write receipt: %w", err)
	}
	eventsJSON, err := marshalEvents(r.Events)
	if err != nil {
		return fmt.Errorf("write receipt: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO receipts
		(id, call_id, outcome, result, events, gas_required, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.CallID,
		r.Outcome,
		resultJSON,
		eventsJSON,
		r.GasRequired,
		r.Seq,
	)
	if err != nil {
		return fmt.Errorf("write receipt: %w", err)
	}
	return nil
}

func writeCollection(ctx context.Context, tx *sql.Tx, st ledger.State, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO collection
		(singleton, collection_id, name, symbol, base_uri, max_supply, price,
		 max_mint_amount, owner, collected, total_supply, seq)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(singleton) DO UPDATE SET
			price = excluded.price,
			max_mint_amount = excluded.max_mint_amount,
			owner = excluded.owner,
			collected = excluded.collected,
			total_supply = excluded.total_supply,
			seq = excluded.seq
	`,
		st.CollectionID,
		st.Name,
		st.Symbol,
		st.BaseURI,
		st.MaxSupply,
		st.Price,
		st.MaxMintAmount,
		string(st.Owner),
		st.Collected,
		len(st.Tokens),
		seq,
	)
	if err != nil {
		return fmt.Errorf("write collection: %w", err)
	}
	return nil
}

func writeToken(ctx context.Context, tx *sql.Tx, tok ledger.Token) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO tokens (id, owner, approved)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner = excluded.owner,
			approved = excluded.approved
	`,
		int64(tok.ID),
		string(tok.Owner),
		string(tok.Approved),
	)
	if err != nil {
		return fmt.Errorf("write token %d: %w", tok.ID, err)
	}
	return nil
}
