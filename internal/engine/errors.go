package engine

import (
	"errors"
	"fmt"
)

// RuntimeError is a call the environment refused before or around the
// ledger: unknown methods, malformed arguments, exhausted gas, misuse of
// call kinds. Ledger rejections are not RuntimeErrors; they travel as the
// receipt outcome.
type RuntimeError struct {
	// Code identifies the error category. It is also the receipt outcome.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Method is the called method, when known.
	Method string

	// FlowToken identifies the affected flow.
	FlowToken string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeOutOfGas indicates the call's gas limit is below its cost.
	ErrCodeOutOfGas RuntimeErrorCode = "OUT_OF_GAS"

	// ErrCodeUnknownMethod indicates no such method exists.
	ErrCodeUnknownMethod RuntimeErrorCode = "UNKNOWN_METHOD"

	// ErrCodeBadArgs indicates missing or mistyped arguments.
	ErrCodeBadArgs RuntimeErrorCode = "BAD_ARGS"

	// ErrCodeNotDeployed indicates no collection exists yet.
	ErrCodeNotDeployed RuntimeErrorCode = "NOT_DEPLOYED"

	// ErrCodeAlreadyDeployed indicates a second constructor call.
	ErrCodeAlreadyDeployed RuntimeErrorCode = "ALREADY_DEPLOYED"

	// ErrCodeQueryOnly indicates a read-only method sent as a transact.
	ErrCodeQueryOnly RuntimeErrorCode = "QUERY_ONLY"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Method != "" && e.FlowToken != "" {
		return fmt.Sprintf("%s: %s (method=%s, flow=%s)", e.Code, e.Message, e.Method, e.FlowToken)
	}
	if e.Method != "" {
		return fmt.Sprintf("%s: %s (method=%s)", e.Code, e.Message, e.Method)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf extracts the runtime error code from err.
func CodeOf(err error) (RuntimeErrorCode, bool) {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code, true
	}
	return "", false
}

// IsRuntimeError reports whether err is a RuntimeError.
func IsRuntimeError(err error) bool {
	_, ok := CodeOf(err)
	return ok
}

// IsOutOfGas reports whether err is an out-of-gas RuntimeError.
func IsOutOfGas(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrCodeOutOfGas
}

func newRuntimeError(code RuntimeErrorCode, method, format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Method:  method,
	}
}

// NewOutOfGasError creates a RuntimeError for a gas limit below the cost.
func NewOutOfGasError(method string, required, limit int64) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeOutOfGas,
		Message: fmt.Sprintf("gas required %d exceeds limit %d", required, limit),
		Method:  method,
		Details: map[string]string{
			"gas_required": fmt.Sprintf("%d", required),
			"gas_limit":    fmt.Sprintf("%d", limit),
		},
	}
}

// ErrStopped is returned by Submit once the engine no longer accepts calls.
var ErrStopped = errors.New("engine stopped")
