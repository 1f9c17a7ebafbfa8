package ledger

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable tag of a ledger failure. The tag is what
// callers see as a receipt outcome.
type ErrorKind string

const (
	InvalidParams      ErrorKind = "InvalidParams"
	BadMintValue       ErrorKind = "BadMintValue"
	CollectionIsFull   ErrorKind = "CollectionIsFull"
	MintAmountExceeded ErrorKind = "MintAmountExceeded"
	NotOwner           ErrorKind = "NotOwner"
	NotOwnerOrApproved ErrorKind = "NotOwnerOrApproved"
	TokenNotFound      ErrorKind = "TokenNotFound"
)

// Kinds lists every ledger error tag.
var Kinds = []ErrorKind{
	InvalidParams,
	BadMintValue,
	CollectionIsFull,
	MintAmountExceeded,
	NotOwner,
	NotOwnerOrApproved,
	TokenNotFound,
}

// Error is a rejected ledger operation. A rejected operation never changes
// state.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is a ledger error with the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// KindOf extracts the ledger error kind from err.
func KindOf(err error) (ErrorKind, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind, true
	}
	return "", false
}

// IsLedgerError reports whether err is a ledger error.
func IsLedgerError(err error) bool {
	var le *Error
	return errors.As(err, &le)
}
