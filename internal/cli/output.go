package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Process exit codes. Scripts distinguish a ledger saying "no" from the
// command itself being unusable.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // ledger-level failure: verify mismatch, boot rejected
	ExitCommandError = 2 // usage or environment: bad flags, unreadable database
)

// Error codes carried in the JSON report envelope. These are part of the
// CLI contract; each maps to the command that emits it.
const (
	CodeBootstrap = "bootstrap"
	CodeVerify    = "verify"
	CodeBoot      = "boot"
)

// ExitError carries the process exit code a command failure maps to.
type ExitError struct {
	Code    int
	Message string
	Err     error
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

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps an error to its process exit code, defaulting to
// ExitFailure. When exit errors nest, the outermost classification wins.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Printer renders command results as human text or as a single JSON
// report on stdout.
type Printer struct {
	Format  string
	Out     io.Writer
	Diag    io.Writer // diagnostics when stdout must stay machine-readable
	Verbose bool
}

// Report is the envelope every command emits in json format.
type Report struct {
	Status string `json:"status"` // "ok" or "error"
	Data   any    `json:"data,omitempty"`
	Error  *Fault `json:"error,omitempty"`
}

// Fault describes a failed command inside a Report.
type Fault struct {
	Code    string `json:"code"` // one of the Code* constants
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success renders a successful result in the configured format.
func (p *Printer) Success(data any) error {
	if p.Format == "json" {
		return json.NewEncoder(p.Out).Encode(Report{
			Status: "ok",
			Data:   data,
		})
	}
	fmt.Fprintln(p.Out, data)
	return nil
}

// Fail renders a command failure in the configured format. The caller
// still returns an ExitError; Fail only handles presentation.
func (p *Printer) Fail(code, message string, details any) error {
	if p.Format == "json" {
		return json.NewEncoder(p.Out).Encode(Report{
			Status: "error",
			Error: &Fault{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(p.Out, "error: %s (%s)\n", message, code)
	if p.Verbose && details != nil {
		fmt.Fprintf(p.Out, "details: %v\n", details)
	}
	return nil
}

// Debugf prints a diagnostic line in verbose mode. Diagnostics go to Diag
// so a json report on stdout stays parseable.
func (p *Printer) Debugf(format string, args ...any) {
	if !p.Verbose {
		return
	}
	w := p.Diag
	if w == nil {
		w = p.Out
	}
	fmt.Fprintf(w, format+"\n", args...)
}
