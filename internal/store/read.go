package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/shiden34/internal/ir"
	"github.com/roach88/shiden34/internal/ledger"
)

// Entry is one journaled call with its receipt.
type Entry struct {
	Call    ir.Call
	Receipt ir.Receipt
}

const entryColumns = `
	c.id, c.flow_token, c.kind, c.method, c.caller, c.args, c.value, c.gas_limit, c.seq,
	r.id, r.outcome, r.result, r.events, r.gas_required, r.seq
`

// ReadJournal returns every journaled call in commit order.
// Returns an empty slice (not nil) for an empty journal.
func (s *Store) ReadJournal(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM calls c
		JOIN receipts r ON r.call_id = c.id
		ORDER BY c.seq ASC, c.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	return scanEntries(rows)
}

// ReadFlow returns the journaled calls of one flow in commit order.
func (s *Store) ReadFlow(ctx context.Context, flowToken string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM calls c
		JOIN receipts r ON r.call_id = c.id
		WHERE c.flow_token = ?
		ORDER BY c.seq ASC, c.id COLLATE BINARY ASC
	`, flowToken)
	if err != nil {
		return nil, fmt.Errorf("query flow: %w", err)
	}
	return scanEntries(rows)
}

// ReadEntry returns the journaled call with the given ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadEntry(ctx context.Context, callID string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM calls c
		JOIN receipts r ON r.call_id = c.id
		WHERE c.id = ?
	`, callID)
	return scanEntry(row)
}

// LastSeq returns the highest seq in the journal, or 0 if it is empty.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM (
			SELECT seq FROM calls
			UNION ALL
			SELECT seq FROM receipts
		)
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("read last seq: %w", err)
	}
	return seq.Int64, nil
}

// LoadState returns the materialized collection, or ok=false if nothing has
// been deployed yet.
func (s *Store) LoadState(ctx context.Context) (st ledger.State, ok bool, err error) {
	var owner string
	err = s.db.QueryRowContext(ctx, `
		SELECT collection_id, name, symbol, base_uri, max_supply, price,
		       max_mint_amount, owner, collected
		FROM collection
		WHERE singleton = 1
	`).Scan(
		&st.CollectionID,
		&st.Name,
		&st.Symbol,
		&st.BaseURI,
		&st.MaxSupply,
		&st.Price,
		&st.MaxMintAmount,
		&owner,
		&st.Collected,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.State{}, false, nil
	}
	if err != nil {
		return ledger.State{}, false, fmt.Errorf("read collection: %w", err)
	}
	st.Owner = ir.Account(owner)

	rows, err := s.db.QueryContext(ctx, `SELECT id, owner, approved FROM tokens ORDER BY id ASC`)
	if err != nil {
		return ledger.State{}, false, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	st.Tokens = []ledger.Token{}
	for rows.Next() {
		var (
			id              int64
			owner, approved string
		)
		if err := rows.Scan(&id, &owner, &approved); err != nil {
			return ledger.State{}, false, fmt.Errorf("scan token: %w", err)
		}
		st.Tokens = append(st.Tokens, ledger.Token{
			ID:       ledger.TokenID(id),
			Owner:    ir.Account(owner),
			Approved: ir.Account(approved),
		})
	}
	if err := rows.Err(); err != nil {
		return ledger.State{}, false, fmt.Errorf("iterate tokens: %w", err)
	}

	return st, true, nil
}

// ReadBalance counts the materialized tokens owned by account.
func (s *Store) ReadBalance(ctx context.Context, account ir.Account) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tokens WHERE owner = ?`, string(account)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return n, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return entries, nil
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e                    Entry
		kind, caller         string
		argsJSON, resultJSON string
		eventsJSON           string
	)
	err := row.Scan(
		&e.Call.ID,
		&e.Call.FlowToken,
		&kind,
		&e.Call.Method,
		&caller,
		&argsJSON,
		&e.Call.Value,
		&e.Call.GasLimit,
		&e.Call.Seq,
		&e.Receipt.ID,
		&e.Receipt.Outcome,
		&resultJSON,
		&eventsJSON,
		&e.Receipt.GasRequired,
		&e.Receipt.Seq,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan entry: %w", err)
	}

	e.Call.Kind = ir.CallKind(kind)
	e.Call.Caller = ir.Account(caller)
	e.Receipt.CallID = e.Call.ID

	if e.Call.Args, err = unmarshalObject("args", argsJSON); err != nil {
		return Entry{}, err
	}
	if e.Receipt.Result, err = unmarshalObject("result", resultJSON); err != nil {
		return Entry{}, err
	}
	if e.Receipt.Events, err = unmarshalEvents(eventsJSON); err != nil {
		return Entry{}, err
	}
	return e, nil
}
