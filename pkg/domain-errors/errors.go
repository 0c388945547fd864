// Package domainerrors provides coded errors for the pipeline.
//
// Services translate infrastructure facts (pkg/platform/sentinel) and stage
// failures into coded errors at their boundary. The code determines how the
// queue consumer disposes of a message: retry via redelivery, quarantine, or
// absorb into a degraded-but-recorded event. No other layer should inspect
// error strings.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for disposition and reporting.
type Code string

const (
	// CodeTransient marks network/store hiccups. Safe to retry via
	// redelivery; never surfaced to the sender.
	CodeTransient Code = "transient"

	// CodeMalformedInput marks an envelope that cannot be decoded at all.
	// Routed to quarantine immediately; retrying will not help.
	CodeMalformedInput Code = "malformed_input"

	// CodeUnauthorizedTenant marks a recipient address that matches no
	// organization. Rejected and logged for security review.
	CodeUnauthorizedTenant Code = "unauthorized_tenant"

	// CodeExtractionSchema marks AI output that failed validation after all
	// retries. Absorbed into a degraded event; reported as a warning.
	CodeExtractionSchema Code = "extraction_schema"

	// CodeConcurrencyExhausted marks optimistic-write contention past the
	// retry bound. The message is redelivered; idempotency makes that safe.
	CodeConcurrencyExhausted Code = "concurrency_exhausted"

	// CodeQuotaExceeded marks an organization over its AI budget ceiling.
	CodeQuotaExceeded Code = "quota_exceeded"

	// CodeBadRequest and friends cover the admin API surface.
	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeInternal     Code = "internal_error"

	// CodeInvariantViolation marks a broken model invariant; a bug, not an
	// operational condition.
	CodeInvariantViolation Code = "invariant_violation"
)

// Error is a coded error with an operator-facing message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// chain for errors.Is/As.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or CodeInternal when err carries
// none. Disposition logic in the queue consumer relies on this default:
// unclassified failures are treated as retryable infrastructure trouble.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

// Permanent reports whether the error should never be retried. Only
// malformed input and unauthorized tenants are permanent; everything else is
// either redelivered or absorbed into a degraded event.
func Permanent(err error) bool {
	switch CodeOf(err) {
	case CodeMalformedInput, CodeUnauthorizedTenant:
		return true
	}
	return false
}
