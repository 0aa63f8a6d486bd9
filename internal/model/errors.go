package model

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable classification of an orchestration
// failure. Every error crossing the orchestrator boundary carries one.
type ErrorKind string

const (
	KindProvision          ErrorKind = "provision_error"
	KindNoPortsAvailable   ErrorKind = "no_ports_available"
	KindBackendUnavailable ErrorKind = "backend_unavailable"
	KindLivenessTimeout    ErrorKind = "liveness_timeout"
	KindPermission         ErrorKind = "permission_error"
	KindConflict           ErrorKind = "conflict_error"
	KindDrift              ErrorKind = "drift_detected"
	KindNotFound           ErrorKind = "not_found"
	KindInvalid            ErrorKind = "invalid_request"
)

// Error is a typed orchestration error.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// E constructs a typed error with a formatted message.
func E(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the error kind, or empty string for untyped errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
