// Package qerr defines the typed error kinds reported across the store
// subsystem. It mirrors the registry's errcode approach: a small set of
// named kinds, each carrying a human message and wrapping its cause, rather
// than ad-hoc sentinel errors scattered through every package.
package qerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories from the store error surface.
type Kind string

const (
	NotFound              Kind = "NOT_FOUND"
	AlreadyExists          Kind = "ALREADY_EXISTS"
	IntegrityError         Kind = "INTEGRITY_ERROR"
	InvalidConfiguration   Kind = "INVALID_CONFIGURATION"
	AuthError              Kind = "AUTH_ERROR"
	NetworkError           Kind = "NETWORK_ERROR"
	IoError                Kind = "IO_ERROR"
	NotWritable            Kind = "NOT_WRITABLE"
	DirtyWorktree          Kind = "DIRTY_WORKTREE"
	CapabilityUnsupported  Kind = "CAPABILITY_UNSUPPORTED"
)

// Error is a typed error carrying a Kind, a contextual message, and an
// optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around an existing cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err (or something it wraps) is a *Error of the given
// kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, if it is (or wraps) a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
