package harness

import (
	"github.com/roach88/shiden34/internal/ir"
	"github.com/roach88/shiden34/internal/ledger"
)

// Trace event types.
const (
	TraceCall    = "call"
	TraceReceipt = "receipt"
)

// TraceEvent is one call or one receipt in execution order.
type TraceEvent struct {
	Type string `json:"type"` // "call" or "receipt"
	Seq  int64  `json:"seq"`

	// Call fields.
	Kind   ir.CallKind `json:"kind,omitempty"`
	Method string      `json:"method,omitempty"`
	Caller ir.Account  `json:"caller,omitempty"`
	Args   ir.IRObject `json:"args,omitempty"`
	Value  int64       `json:"value,omitempty"`

	// Receipt fields.
	Outcome     string      `json:"outcome,omitempty"`
	Result      ir.IRObject `json:"result,omitempty"`
	Events      []ir.Event  `json:"events,omitempty"`
	GasRequired int64       `json:"gas_required,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains every call and receipt in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains one message per failed expectation.
	Errors []string `json:"errors,omitempty"`

	// State is the collection after the flow, nil if never deployed.
	State *ledger.State `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddCallTrace appends a call.
func (r *Result) AddCallTrace(c ir.Call) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   TraceCall,
		Seq:    c.Seq,
		Kind:   c.Kind,
		Method: c.Method,
		Caller: c.Caller,
		Args:   c.Args,
		Value:  c.Value,
	})
}

// AddReceiptTrace appends a receipt.
func (r *Result) AddReceiptTrace(rc ir.Receipt) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:        TraceReceipt,
		Seq:         rc.Seq,
		Outcome:     rc.Outcome,
		Result:      rc.Result,
		Events:      rc.Events,
		GasRequired: rc.GasRequired,
	})
}

// Receipts returns the receipt events of the trace in order.
func (r *Result) Receipts() []TraceEvent {
	out := make([]TraceEvent, 0, len(r.Trace)/2)
	for _, ev := range r.Trace {
		if ev.Type == TraceReceipt {
			out = append(out, ev)
		}
	}
	return out
}
