// Package boxerr defines the error kinds shared across the ingestion and
// conversation subsystems. Components classify failures into a Kind
// rather than relying on callers to inspect error strings.
package boxerr

import (
	"errors"
	"fmt"
	"time"
)

// Kind enumerates the error classes propagated between components.
type Kind string

const (
	RateLimited Kind = "RateLimited"
	NotFound Kind = "NotFound"
	Forbidden Kind = "Forbidden"
	Transport Kind = "Transport"
	Timeout Kind = "Timeout"
	Parse Kind = "Parse"
	ModelUnavailable Kind = "ModelUnavailable"
	StorageError Kind = "StorageError"
	CapacityExceeded Kind = "CapacityExceeded"
	AlreadyActive Kind = "AlreadyActive"
	PolicyStop Kind = "PolicyStop"
)

// Error wraps a Kind, an optional cause, and (for RateLimited) a retry hint.
type Error struct {
	Kind Kind
	Message string
	Cause error
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WrapRateLimited builds a RateLimited error carrying a retry-after hint.
func WrapRateLimited(message string, retryAfter time.Duration, cause error) *Error {
	return &Error{Kind: RateLimited, Message: message, Cause: cause, RetryAfter: retryAfter}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or "" if err isn't a *Error.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// RetryAfterOf extracts the RetryAfter hint, or 0 if absent.
func RetryAfterOf(err error) time.Duration {
	var be *Error
	if errors.As(err, &be) {
		return be.RetryAfter
	}
	return 0
}
