package engine

import (
	"context"
	"sync"

	"github.com/roach88/shiden34/internal/ir"
)

// request is a submitted call waiting for the Run loop.
type request struct {
	ctx   context.Context
	call  ir.Call
	reply chan response // buffered, size 1
}

type response struct {
	receipt ir.Receipt
	err     error
}

// callQueue is a thread-safe unbounded FIFO of submitted calls.
//
// Submitters enqueue from any goroutine; only the Run loop dequeues. The
// signal channel lets the loop wait on the queue and its context together.
type callQueue struct {
	mu      sync.Mutex
	pending []*request
	closed  bool
	signal  chan struct{} // buffered, size 1
}

func newCallQueue() *callQueue {
	return &callQueue{
		pending: make([]*request, 0, 64),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds a request to the back of the queue.
// Returns false if the queue is closed.
func (q *callQueue) Enqueue(r *request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.pending = append(q.pending, r)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front request without blocking.
func (q *callQueue) TryDequeue() (*request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil, false
	}

	r := q.pending[0]
	q.pending[0] = nil // release for GC
	if len(q.pending) == 1 {
		q.pending = q.pending[:0]
	} else {
		q.pending = q.pending[1:]
	}
	return r, true
}

// Wait returns a channel that fires when requests may be available.
// It is closed when the queue is closed.
func (q *callQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of pending requests.
func (q *callQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Closed reports whether Close has been called.
func (q *callQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops accepting requests and wakes the loop.
// Requests already queued are still drained.
func (q *callQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
