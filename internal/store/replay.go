package store

import (
	"context"
	"fmt"
)

// FlowSummary describes the journaled calls of one flow.
type FlowSummary struct {
	FlowToken   string
	Calls       int
	FirstSeq    int64
	LastSeq     int64
	LastOutcome string
	Failed      int // Calls whose outcome is not "Ok"
}

// ListFlows summarizes every flow in the journal, ordered by first seq.
// Returns an empty slice (not nil) for an empty journal.
func (s *Store) ListFlows(ctx context.Context) ([]FlowSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			c.flow_token,
			COUNT(*),
			MIN(c.seq),
			MAX(c.seq),
			SUM(CASE WHEN r.outcome = 'Ok' THEN 0 ELSE 1 END),
			(SELECT r2.outcome
			   FROM calls c2 JOIN receipts r2 ON r2.call_id = c2.id
			  WHERE c2.flow_token = c.flow_token
			  ORDER BY c2.seq DESC LIMIT 1)
		FROM calls c
		JOIN receipts r ON r.call_id = c.id
		GROUP BY c.flow_token
		ORDER BY MIN(c.seq) ASC, c.flow_token COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query flows: %w", err)
	}
	defer rows.Close()

	flows := []FlowSummary{}
	for rows.Next() {
		var f FlowSummary
		if err := rows.Scan(&f.FlowToken, &f.Calls, &f.FirstSeq, &f.LastSeq, &f.Failed, &f.LastOutcome); err != nil {
			return nil, fmt.Errorf("scan flow: %w", err)
		}
		flows = append(flows, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flows: %w", err)
	}
	return flows, nil
}
