package ir

// Account identifies a principal. Accounts are opaque to the ledger.
type Account string

// CallKind distinguishes read-only calls from state-changing ones.
type CallKind string

const (
	// CallQuery never mutates state and is never journaled. A query naming a
	// mutating method is executed as a dry run.
	CallQuery CallKind = "query"

	// CallTransact mutates state and is journaled whatever its outcome.
	CallTransact CallKind = "transact"
)

// Valid reports whether k is a known call kind.
func (k CallKind) Valid() bool {
	return k == CallQuery || k == CallTransact
}

// OutcomeOk is the receipt outcome of a successful call.
const OutcomeOk = "Ok"

// Call is a request to the ledger.
type Call struct {
	ID        string   `json:"id"` // Content-addressed hash
	FlowToken string   `json:"flow_token"`
	Kind      CallKind `json:"kind"`
	Method    string   `json:"method"`
	Caller    Account  `json:"caller"`
	Args      IRObject `json:"args"`
	Value     int64    `json:"value"`     // Payment carried on the call
	GasLimit  int64    `json:"gas_limit"` // 0 = unmetered
	Seq       int64    `json:"seq"`       // Logical clock
}

// Event is a notification emitted by a state change.
type Event struct {
	Name string   `json:"name"`
	Args IRObject `json:"args"`
}

// Value returns the event as an IRObject.
func (e Event) Value() IRObject {
	args := e.Args
	if args == nil {
		args = IRObject{}
	}
	return IRObject{"name": IRString(e.Name), "args": args}
}

// EventsValue returns events as an IRArray, preserving order.
func EventsValue(events []Event) IRArray {
	arr := make(IRArray, len(events))
	for i, e := range events {
		arr[i] = e.Value()
	}
	return arr
}

// Receipt is the outcome of a call.
type Receipt struct {
	ID          string   `json:"id"` // Content-addressed hash
	CallID      string   `json:"call_id"`
	Outcome     string   `json:"outcome"` // "Ok" or an error tag
	Result      IRObject `json:"result"`
	Events      []Event  `json:"events"`
	GasRequired int64    `json:"gas_required"`
	Seq         int64    `json:"seq"`
}

// OK reports whether the call succeeded.
func (r Receipt) OK() bool {
	return r.Outcome == OutcomeOk
}
