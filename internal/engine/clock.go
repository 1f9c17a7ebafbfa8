package engine

import "sync/atomic"

// Clock is the monotonic logical clock that orders every call and receipt.
//
// Transacts advance the clock twice (call seq, then receipt seq). Queries
// read it without advancing, so the journal alone determines the seq of
// every committed record and a replay reproduces it exactly.
//
// Clock is safe for concurrent use, although only the engine loop calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock positioned at start, so the next value is
// start+1. Used when reopening a journal.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next increments the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last value handed out without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// Reset positions the clock at seq. Replay uses it to align with journaled
// seqs that skip values consumed by calls that never committed.
func (c *Clock) Reset(seq int64) {
	c.seq.Store(seq)
}
