package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/shiden34/internal/ir"
	"github.com/roach88/shiden34/internal/ledger"
	"github.com/roach88/shiden34/internal/store"
)

// Journal persists transact calls. *store.Store implements it.
type Journal interface {
	Commit(ctx context.Context, c store.Commit) error
}

// Engine is the single-writer execution environment of one collection.
//
// All calls are applied one at a time. External callers use Submit, which
// queues the call for the Run loop and waits for its receipt. Execute
// applies a call directly and is meant for the loop itself and for
// single-shot tools that never start Run.
//
// Thread-safety model:
//   - Submit(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Execute(): serialized by an internal mutex
//   - NewFlow(): safe from any goroutine
type Engine struct {
	mu      sync.Mutex
	ledger  *ledger.Ledger // nil until deployed
	journal Journal        // nil = memory only
	clock   *Clock
	queue   *callQueue
	flowGen FlowTokenGenerator
	gas     GasSchedule
	metrics *Metrics
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithGasSchedule overrides DefaultGasSchedule.
func WithGasSchedule(g GasSchedule) Option {
	return func(e *Engine) {
		e.gas = g
	}
}

// WithMetrics records call activity to m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithClock sets the logical clock, e.g. to resume after the last journaled seq.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLedger starts the engine with an already deployed collection.
func WithLedger(l *ledger.Ledger) Option {
	return func(e *Engine) {
		e.ledger = l
	}
}

// New creates an engine with no deployed collection. journal may be nil for
// an engine that keeps nothing.
func New(journal Journal, flowGen FlowTokenGenerator, opts ...Option) *Engine {
	e := &Engine{
		journal: journal,
		clock:   NewClock(),
		queue:   newCallQueue(),
		flowGen: flowGen,
		gas:     DefaultGasSchedule,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Open creates an engine over a store, restoring the materialized collection
// and resuming the clock after the last journaled seq.
func Open(ctx context.Context, s *store.Store, flowGen FlowTokenGenerator, opts ...Option) (*Engine, error) {
	seq, err := s.LastSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}

	base := []Option{WithClock(NewClockAt(seq))}

	st, ok, err := s.LoadState(ctx)
	if err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}
	if ok {
		l, err := ledger.Restore(st)
		if err != nil {
			return nil, fmt.Errorf("open engine: %w", err)
		}
		base = append(base, WithLedger(l))
	}

	e := New(s, flowGen, append(base, opts...)...)
	if l := e.ledger; l != nil {
		e.metrics.setSupply(l.TotalSupply())
	}
	return e, nil
}

// NewFlow generates a new flow token for an external request.
func (e *Engine) NewFlow() string {
	return e.flowGen.Generate()
}

// Deployed reports whether a collection exists.
func (e *Engine) Deployed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger != nil
}

// Snapshot returns a copy of the collection state, or ok=false before deploy.
func (e *Engine) Snapshot() (st ledger.State, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ledger == nil {
		return ledger.State{}, false
	}
	return e.ledger.Snapshot(), true
}

// Seq returns the current position of the logical clock.
func (e *Engine) Seq() int64 {
	return e.clock.Current()
}

// QueueLen returns the number of submitted calls not yet applied.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Submit queues a call for the Run loop and waits for its receipt.
//
// Cancelling ctx abandons the wait. A call still queued when its context is
// cancelled is skipped; a call already being applied completes.
func (e *Engine) Submit(ctx context.Context, call ir.Call) (ir.Receipt, error) {
	req := &request{ctx: ctx, call: call, reply: make(chan response, 1)}
	if !e.queue.Enqueue(req) {
		return ir.Receipt{}, ErrStopped
	}
	e.metrics.setQueueDepth(e.queue.Len())

	select {
	case resp := <-req.reply:
		return resp.receipt, resp.err
	case <-ctx.Done():
		return ir.Receipt{}, ctx.Err()
	}
}

// Run starts the single-writer loop. Blocks until ctx is cancelled or Stop
// is called and the queue has drained.
//
// A call that fails is logged with its full context and the loop continues.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "seq", e.clock.Current())
	defer e.drain()

	for {
		req, ok := e.queue.TryDequeue()
		if ok {
			e.metrics.setQueueDepth(e.queue.Len())
			e.handle(req)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel is closed on Close, so this fires at once
			// when stopped; return only once nothing is left.
			if e.queue.Len() == 0 && e.stopped() {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop stops accepting calls. Run returns after draining what is queued.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) stopped() bool {
	return e.queue.Closed()
}

// drain fails every request still queued when Run exits.
func (e *Engine) drain() {
	for {
		req, ok := e.queue.TryDequeue()
		if !ok {
			return
		}
		req.reply <- response{err: ErrStopped}
	}
}

func (e *Engine) handle(req *request) {
	if err := req.ctx.Err(); err != nil {
		req.reply <- response{err: err}
		return
	}

	receipt, err := e.Execute(req.ctx, req.call)
	switch {
	case err == nil:
	case IsRuntimeError(err):
		e.logger.Warn("call rejected",
			"method", req.call.Method,
			"kind", req.call.Kind,
			"caller", req.call.Caller,
			"call", receipt.CallID,
			"error", err,
		)
	default:
		e.logger.Error("call failed",
			"method", req.call.Method,
			"kind", req.call.Kind,
			"caller", req.call.Caller,
			"error", err,
		)
	}
	req.reply <- response{receipt: receipt, err: err}
}

// Execute applies one call and returns its receipt.
//
// Ledger rejections are reported in the receipt outcome with a nil error.
// Environment failures return a *RuntimeError together with a receipt whose
// outcome is the error code. Journal failures return a wrapped error and no
// receipt; the ledger and clock are left as they were before the call.
//
// Transacts are journaled whatever their outcome. Queries are never
// journaled and do not advance the clock.
func (e *Engine) Execute(ctx context.Context, call ir.Call) (ir.Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !call.Kind.Valid() {
		return ir.Receipt{}, newRuntimeError(ErrCodeBadArgs, call.Method, "unknown call kind %q", call.Kind)
	}
	if call.FlowToken == "" {
		call.FlowToken = e.flowGen.Generate()
	}
	if call.Args == nil {
		call.Args = ir.IRObject{}
	}

	transact := call.Kind == ir.CallTransact
	if transact {
		call.Seq = e.clock.Next()
	} else {
		call.Seq = e.clock.Current()
	}

	id, err := ir.CallID(call)
	if err != nil {
		return ir.Receipt{}, newRuntimeError(ErrCodeBadArgs, call.Method, "%v", err)
	}
	call.ID = id

	e.logger.Debug("processing call",
		"id", call.ID,
		"kind", call.Kind,
		"method", call.Method,
		"flow", call.FlowToken,
		"seq", call.Seq,
	)

	next, result, events, gas, runErr := e.dispatch(call)

	outcome, envErr, err := classify(runErr)
	if err != nil {
		return ir.Receipt{}, fmt.Errorf("apply %s: %w", call.Method, err)
	}
	if envErr != nil {
		envErr.FlowToken = call.FlowToken
	}
	if outcome != ir.OutcomeOk {
		result = ir.IRObject{}
		events = []ir.Event{}
	}

	receipt := ir.Receipt{
		CallID:      call.ID,
		Outcome:     outcome,
		Result:      result,
		Events:      events,
		GasRequired: gas,
		Seq:         call.Seq,
	}
	if transact {
		receipt.Seq = e.clock.Next()
	}
	if receipt.ID, err = ir.ReceiptID(receipt); err != nil {
		return ir.Receipt{}, fmt.Errorf("apply %s: %w", call.Method, err)
	}

	if transact {
		if err := e.commit(ctx, call, receipt, next); err != nil {
			e.clock.Reset(call.Seq - 1)
			e.metrics.commitFailed()
			return ir.Receipt{}, err
		}
		if outcome == ir.OutcomeOk {
			e.ledger = next
			e.metrics.setSupply(next.TotalSupply())
		}
	}

	e.metrics.observeCall(string(call.Kind), call.Method, outcome, gas)

	if envErr != nil {
		return receipt, envErr
	}
	return receipt, nil
}

// dispatch resolves and runs the method. For mutating methods it works on a
// clone and returns it as next; the live ledger is never touched here.
func (e *Engine) dispatch(call ir.Call) (next *ledger.Ledger, result ir.IRObject, events []ir.Event, gas int64, err error) {
	m, ok := methods[call.Method]
	if !ok {
		return nil, nil, nil, 0, newRuntimeError(ErrCodeUnknownMethod, call.Method, "no such method")
	}
	if call.Kind == ir.CallTransact && !m.mutating {
		return nil, nil, nil, 0, newRuntimeError(ErrCodeQueryOnly, call.Method, "read-only method sent as transact")
	}

	target := e.ledger
	switch {
	case m.constructor && target != nil:
		return nil, nil, nil, 0, newRuntimeError(ErrCodeAlreadyDeployed, call.Method, "collection %s already exists", target.CollectionID())
	case !m.constructor && target == nil:
		return nil, nil, nil, 0, newRuntimeError(ErrCodeNotDeployed, call.Method, "no collection deployed")
	case m.mutating && target != nil:
		target = target.Clone()
	}

	x := &execution{
		ledger: target,
		call:   call,
		gas:    NewGasMeter(e.gas, call.Method, call.GasLimit),
	}
	result, events, err = m.run(x)
	return x.ledger, result, events, x.gas.Used(), err
}

// classify maps a method error to a receipt outcome. Unknown errors are
// returned as err.
func classify(runErr error) (outcome string, envErr *RuntimeError, err error) {
	if runErr == nil {
		return ir.OutcomeOk, nil, nil
	}
	if kind, ok := ledger.KindOf(runErr); ok {
		return string(kind), nil, nil
	}
	var re *RuntimeError
	if errors.As(runErr, &re) {
		return string(re.Code), re, nil
	}
	return "", nil, runErr
}

// commit journals a transact. State rows are written only for successful
// calls, limited to the tokens named by the receipt's events.
func (e *Engine) commit(ctx context.Context, call ir.Call, receipt ir.Receipt, next *ledger.Ledger) error {
	if e.journal == nil {
		return nil
	}

	c := store.Commit{Call: call, Receipt: receipt}
	if receipt.OK() && next != nil {
		st := next.Snapshot()
		c.State = &st
		c.Tokens = touchedTokens(next, receipt.Events)
	}

	if err := e.journal.Commit(ctx, c); err != nil {
		return fmt.Errorf("commit call %s: %w", call.ID, err)
	}

	e.logger.Debug("call committed",
		"id", call.ID,
		"method", call.Method,
		"outcome", receipt.Outcome,
		"seq", receipt.Seq,
	)
	return nil
}

func touchedTokens(l *ledger.Ledger, events []ir.Event) []ledger.Token {
	seen := make(map[ledger.TokenID]bool, len(events))
	tokens := make([]ledger.Token, 0, len(events))
	for _, ev := range events {
		id, ok := ledger.EventTokenID(ev)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		if tok, err := l.Token(id); err == nil {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}
