// Package cobalterr defines the single AppError taxonomy shared by every
// Cobalt component, scoped to the failure kinds spec.md §7 names.
package cobalterr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the failure categories a Cobalt component can
// surface to its caller.
type Kind string

const (
	InvalidArguments  Kind = "INVALID_ARGUMENTS"
	InvalidConfig     Kind = "INVALID_CONFIG"
	ObservationTooBig Kind = "OBSERVATION_TOO_BIG"
	StoreFull         Kind = "STORE_FULL"
	WriteFailed       Kind = "WRITE_FAILED"
	NotFound          Kind = "NOT_FOUND"
	AlreadyFlushed    Kind = "ALREADY_FLUSHED"
	Other             Kind = "OTHER"
)

// Error is the concrete error type returned by every Cobalt component.
type Error struct {
	Err     error
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind, wrapping a lower-level error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NewInvalidArguments(message string) *Error  { return New(InvalidArguments, message) }
func NewInvalidConfig(message string) *Error      { return New(InvalidConfig, message) }
func NewObservationTooBig(message string) *Error  { return New(ObservationTooBig, message) }
func NewStoreFull(message string) *Error          { return New(StoreFull, message) }
func NewNotFound(resource string) *Error          { return New(NotFound, resource+" not found") }
func NewAlreadyFlushed(message string) *Error     { return New(AlreadyFlushed, message) }
func NewWriteFailed(message string, err error) *Error {
	return Wrap(WriteFailed, message, err)
}
func NewOther(message string, err error) *Error { return Wrap(Other, message, err) }

// As extracts the *Error wrapped (directly or transitively) in err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// StatusOf returns the Kind of err, or Other if err is a non-nil error of
// an unrecognized type. Returns "" for a nil err.
func StatusOf(err error) Kind {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Other
}

// IsNotFound reports whether err's Kind is NotFound.
func IsNotFound(err error) bool {
	return StatusOf(err) == NotFound
}

// IsRetryable reports whether the shipping path should re-enqueue the
// envelope and back off rather than dropping it. spec.md §4.5 lists
// Aborted/Cancelled/DeadlineExceeded/Internal/Unavailable as retryable
// gRPC-style codes from the upload path; within this module those surface
// as WriteFailed (or an unrecognized Other for network-layer errors).
// Every other kind is non-retryable; the shuffler client returns
// InvalidArguments and ObservationTooBig for envelopes it rejects outright.
func IsRetryable(err error) bool {
	switch StatusOf(err) {
	case WriteFailed, Other:
		return true
	default:
		return false
	}
}
