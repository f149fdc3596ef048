// Package apperr defines the prefix-coded error taxonomy shared across the
// engine. Anticipated failures are classified into a Error with a stable
// Code; invariant violations are left to panic/recover at the orchestrator
// boundary and surface as INTERNAL_ERROR with a correlation id.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a stable, wire-visible error code (see spec §7).
type Code string

const (
	CodeDatasetMissing      Code = "DATASET_MISSING"
	CodeDatasetUnreadable   Code = "DATASET_UNREADABLE"
	CodeSchemaMismatch      Code = "DATASET_SCHEMA_MISMATCH"
	CodeCausalFutureAccess  Code = "CAUSAL_FUTURE_ACCESS"
	CodeExecPrecondition    Code = "EXEC_PRECONDITION_VIOLATION"
	CodeStatsWidthExceeded  Code = "STATS_WIDTH_EXCEEDED"
	CodeStatsInsufficient   Code = "STATS_INSUFFICIENT_TRADES"
	CodePersistFailed       Code = "PERSIST_WRITE_FAILED"
	CodeInvalidParam        Code = "INVALID_PARAM"
	CodeInvalidValue        Code = "INVALID_VALUE"
	CodeInvalidIndicator    Code = "INVALID_INDICATOR_PARAMS"
	CodeIndicatorDepMissing Code = "INDICATOR_DEPENDENCY_MISSING"
	CodeNotFound            Code = "NOT_FOUND"
	CodeConflict            Code = "CONFLICT"
	CodeCancelled           Code = "CANCELLED"
	CodeRateLimited         Code = "RATE_LIMITED"
	CodeRehydrateUnavail    Code = "REHYDRATE_UNAVAILABLE"
	CodeInternal            Code = "INTERNAL_ERROR"
)

// Error is the structured, anticipated-failure type. Phase is the
// orchestrator phase the error surfaced in, empty outside orchestration.
type Error struct {
	Code          Code
	Phase         string
	Message       string
	Details       map[string]any
	Retryable     bool
	CorrelationID string
	cause         error
}

func (e *Error) Error() string {
	if e.Phase != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Code, e.Phase, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a structured Error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds a structured Error wrapping cause.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithPhase returns a copy of e annotated with the orchestrator phase.
func (e *Error) WithPhase(phase string) *Error {
	cp := *e
	cp.Phase = phase
	return &cp
}

// WithDetails returns a copy of e with additional details merged in.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	merged := make(map[string]any, len(cp.Details)+len(details))
	for k, v := range cp.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	cp.Details = merged
	return &cp
}

// WithCorrelationID stamps a correlation id, used for INTERNAL_ERROR.
func (e *Error) WithCorrelationID(id string) *Error {
	cp := *e
	cp.CorrelationID = id
	return &cp
}

// As is a convenience wrapper around errors.As for *Error.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// CodeOf extracts the Code of err, or CodeInternal if err isn't an *Error.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}
