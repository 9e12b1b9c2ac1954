package loader

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a boot rejection or execution failure.
//
// Boot errors fall into five categories:
//   - Validation: malformed or missing request input
//   - Authorization: function id not in the manifest whitelist
//   - NotFound: function absent from the visible ledger
//   - Integrity: content hash or signature mismatch
//   - Execution: invoked code failed, or had no entry point
//
// Error includes structured fields for diagnostics; FunctionID identifies
// the boot target when known.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// FunctionID identifies the boot target.
	FunctionID string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes boot errors.
type ErrorCode string

const (
	// ErrCodeValidation indicates malformed or missing request input.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeAuthorization indicates the function is not whitelisted.
	ErrCodeAuthorization ErrorCode = "AUTHORIZATION"

	// ErrCodeNotFound indicates the function does not exist in the ledger.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeIntegrity indicates a hash or signature verification failure.
	ErrCodeIntegrity ErrorCode = "INTEGRITY"

	// ErrCodeExecution indicates the invoked code failed or was not invocable.
	ErrCodeExecution ErrorCode = "EXECUTION"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.FunctionID != "" {
		return fmt.Sprintf("%s: %s (function=%s)", e.Code, e.Message, e.FunctionID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error category to the boot endpoint's status code.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case ErrCodeValidation, ErrCodeIntegrity:
		return http.StatusBadRequest
	case ErrCodeAuthorization:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf extracts the boot error category from an error chain. Errors that
// are not boot errors report ErrCodeExecution.
func CodeOf(err error) ErrorCode {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return ErrCodeExecution
}

// HTTPStatusOf maps any error from Boot to a response status.
func HTTPStatusOf(err error) int {
	var le *Error
	if errors.As(err, &le) {
		return le.HTTPStatus()
	}
	return http.StatusInternalServerError
}

func newError(code ErrorCode, functionID, message string) *Error {
	return &Error{Code: code, Message: message, FunctionID: functionID}
}

func wrapError(code ErrorCode, functionID, message string, err error) *Error {
	return &Error{Code: code, Message: message, FunctionID: functionID, Err: err}
}
