// Package apperrors holds the typed error taxonomy returned to clients over
// the wire, generalized from the teacher's CheckResult{Passed, Reason}
// pattern into a Kind+Code pair every layer of the engine can return.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind is the top-level error classification reported on the wire.
type Kind string

const (
	KindEnvelope Kind = "envelope"
	KindAuthZ    Kind = "authz"
	KindNotFound Kind = "not_found"
	KindState    Kind = "state"
	KindRisk     Kind = "risk"
	KindInternal Kind = "internal"
)

// Error is a typed, wire-reportable error. Code is machine-readable
// (e.g. "max_position", "tick_misaligned"); Message is the human string.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New builds an Error with no wrapped cause.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind/code to an underlying error, preserving it for
// errors.Unwrap/errors.Is chains.
func Wrap(kind Kind, code string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: cause.Error(), cause: cause}
}

func Envelope(code, format string, args ...any) *Error {
	return Newf(KindEnvelope, code, format, args...)
}

func AuthZ(code, format string, args ...any) *Error {
	return Newf(KindAuthZ, code, format, args...)
}

func NotFound(code, format string, args ...any) *Error {
	return Newf(KindNotFound, code, format, args...)
}

func State(code, format string, args ...any) *Error {
	return Newf(KindState, code, format, args...)
}

func Risk(code, format string, args ...any) *Error {
	return Newf(KindRisk, code, format, args...)
}

func Internal(code, format string, args ...any) *Error {
	return Newf(KindInternal, code, format, args...)
}

// IsInternal reports whether err carries KindInternal, the only kind that
// should mark a room inactive rather than return a private error.
func IsInternal(err error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == KindInternal
	}
	return false
}
