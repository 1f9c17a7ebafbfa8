package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/shiden34/internal/ir"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rejected call, failed scenario, replay mismatch
	ExitCommandError = 2 // Command error (bad flags, unreadable files, database errors)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // outcome tag or E_* code
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// writeJSON encodes a response with two-space indentation.
func writeJSON(w io.Writer, response CLIResponse) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// writeReceipt prints a receipt in the configured format. The JSON form
// reports a non-Ok outcome as an error carrying the receipt as details.
func writeReceipt(w io.Writer, format string, receipt ir.Receipt, message string) error {
	if format == "json" {
		if receipt.OK() {
			return writeJSON(w, CLIResponse{Status: "ok", Data: receipt})
		}
		return writeJSON(w, CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    receipt.Outcome,
				Message: message,
				Details: receipt,
			},
		})
	}

	fmt.Fprintf(w, "outcome: %s\n", receipt.Outcome)
	if message != "" && !receipt.OK() {
		fmt.Fprintf(w, "error:   %s\n", message)
	}
	fmt.Fprintf(w, "result:  %s\n", canonicalText(receipt.Result))
	if len(receipt.Events) > 0 {
		fmt.Fprintln(w, "events:")
		for _, ev := range receipt.Events {
			fmt.Fprintf(w, "  %s %s\n", ev.Name, canonicalText(ev.Args))
		}
	}
	fmt.Fprintf(w, "gas:     %d\n", receipt.GasRequired)
	fmt.Fprintf(w, "seq:     %d\n", receipt.Seq)
	if receipt.ID != "" {
		fmt.Fprintf(w, "id:      %s\n", receipt.ID)
	}
	return nil
}

// canonicalText renders an object as canonical JSON for text output.
func canonicalText(obj ir.IRObject) string {
	if obj == nil {
		obj = ir.IRObject{}
	}
	b, err := ir.MarshalCanonical(obj)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(b)
}
