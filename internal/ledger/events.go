package ledger

import "github.com/roach88/shiden34/internal/ir"

// Event names.
const (
	EventTransfer = "Transfer"
	EventApproval = "Approval"
)

// TransferEvent builds a Transfer notification. Mints use ZeroAccount as from.
func TransferEvent(from, to ir.Account, id TokenID) ir.Event {
	return ir.Event{
		Name: EventTransfer,
		Args: ir.IRObject{
			"from": ir.IRString(from),
			"to":   ir.IRString(to),
			"id":   ir.IRInt(int64(id)),
		},
	}
}

// ApprovalEvent builds an Approval notification.
func ApprovalEvent(from, to ir.Account, id TokenID, approved bool) ir.Event {
	return ir.Event{
		Name: EventApproval,
		Args: ir.IRObject{
			"from":     ir.IRString(from),
			"to":       ir.IRString(to),
			"id":       ir.IRInt(int64(id)),
			"approved": ir.IRBool(approved),
		},
	}
}

// EventTokenID returns the token id carried by a ledger event.
func EventTokenID(e ir.Event) (TokenID, bool) {
	n, err := e.Args.Int("id")
	if err != nil || n <= 0 {
		return 0, false
	}
	return TokenID(n), true
}
