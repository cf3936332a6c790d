// Package domainerrors defines the typed error values services return to
// callers. Every failure mode carries a Code so the layer above can map it to
// user-facing messaging without matching on message strings.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code enumerates the failure taxonomy shared by all modules.
type Code string

const (
	// CodeNotFound: the referenced entity does not exist in the tenant.
	CodeNotFound Code = "NOT_FOUND"
	// CodeCrossTenant: an entity from another tenant leaked into the request.
	// Always a programming or authorization error, never user-recoverable.
	CodeCrossTenant Code = "CROSS_TENANT"
	// CodeCycleDetected: the requested parent link would make an organization
	// its own ancestor, or traversal hit an already-corrupted cycle.
	CodeCycleDetected Code = "CYCLE_DETECTED"
	// CodeDuplicateSlug: the slug is already taken within the tenant.
	CodeDuplicateSlug Code = "DUPLICATE_SLUG"
	// CodeIllegalTransition: the requested status transition is not permitted.
	CodeIllegalTransition Code = "ILLEGAL_TRANSITION"
	// CodeStoreUnavailable: the underlying persistence layer failed.
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
	// CodeInvalidInput: request-level validation failed.
	CodeInvalidInput Code = "INVALID_INPUT"
	// CodeConflict: the entity is in a state that rejects the operation,
	// or a concurrent writer got there first.
	CodeConflict Code = "CONFLICT"
	// CodeInvariantViolation: an entity constructor or mutator rejected a
	// state that would break a model invariant.
	CodeInvariantViolation Code = "INVARIANT_VIOLATION"
	// CodeInternal: unexpected failure; logged with context, surfaced generically.
	CodeInternal Code = "INTERNAL"
)

// Error is the concrete error type carrying a Code and an optional cause.
type Error struct {
	code  Code
	msg   string
	cause error
}

// New builds an Error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{code: code, msg: msg}
}

// Newf builds an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause. The cause stays
// reachable through errors.Is/As for sentinel checks.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{code: code, msg: msg, cause: err}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

// Code returns the error's classification code.
func (e *Error) Code() Code { return e.code }

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.code == code
	}
	return false
}

// CodeOf returns the code carried by err, or CodeInternal when err is not a
// domain error. Callers use it for logging and metrics labels.
func CodeOf(err error) Code {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.code
	}
	return CodeInternal
}
