package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so the HTTP facade can map each one to a
// stable status code without inspecting error text.
type ErrorKind int

const (
	// KindValidation covers missing or malformed input.
	KindValidation ErrorKind = iota
	// KindNotFound covers references to absent vehicles, users, branches
	// or reservations.
	KindNotFound
	// KindConflict covers overlapping bookings and duplicate keys.
	KindConflict
	// KindInvalidState covers illegal status transitions.
	KindInvalidState
	// KindStore covers underlying persistence failures.
	KindStore
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidState:
		return "invalid_state"
	case KindStore:
		return "store"
	default:
		return "unknown"
	}
}

// Error is the domain error type. It carries enough detail for a caller to
// correct the request: the offending field for validation failures, the
// missing resource for lookups, the conflicting range for overlaps.
type Error struct {
	Kind     ErrorKind
	Message  string
	Field    string    // set for validation errors
	Resource string    // set for not-found errors
	Plate    string    // set for overlap conflicts
	Range    DateRange // set for overlap conflicts
	cause    error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewValidationError reports missing or malformed input on a named field.
func NewValidationError(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

// NewNotFoundError reports an absent resource by type and identifier.
func NewNotFoundError(resource, id string) *Error {
	return &Error{
		Kind:     KindNotFound,
		Resource: resource,
		Message:  fmt.Sprintf("%s %q not found", resource, id),
	}
}

// NewOverlapError reports a booking conflict, naming the vehicle and the
// existing range the candidate collided with.
func NewOverlapError(plate string, conflicting DateRange) *Error {
	return &Error{
		Kind:    KindConflict,
		Plate:   plate,
		Range:   conflicting,
		Message: fmt.Sprintf("vehicle %s is already reserved from %s to %s", plate, conflicting.Start, conflicting.End),
	}
}

// NewConflictError reports a non-overlap conflict such as a duplicate key.
func NewConflictError(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// NewInvalidStateError reports an illegal status transition or an edit of a
// terminal reservation.
func NewInvalidStateError(message string) *Error {
	return &Error{Kind: KindInvalidState, Message: message}
}

// NewStoreError wraps a persistence failure. The underlying error is kept for
// logs but never shown to callers.
func NewStoreError(err error) *Error {
	return &Error{Kind: KindStore, Message: "storage failure", cause: err}
}

// KindOf extracts the taxonomy kind from an error chain. Unclassified errors
// count as store failures.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindStore
}

// AsDomainError returns the *Error in the chain, if any.
func AsDomainError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

func IsValidation(err error) bool   { return hasKind(err, KindValidation) }
func IsNotFound(err error) bool     { return hasKind(err, KindNotFound) }
func IsConflict(err error) bool     { return hasKind(err, KindConflict) }
func IsInvalidState(err error) bool { return hasKind(err, KindInvalidState) }
func IsStore(err error) bool        { return hasKind(err, KindStore) }

func hasKind(err error, kind ErrorKind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}
