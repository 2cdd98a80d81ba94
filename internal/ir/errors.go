package ir

import (
	"errors"
	"fmt"
)

// Error is the typed failure surfaced by the coordinator and its layers.
//
// The categories are:
//   - UnmanagedResource: entity-scoped submission against a resource without a lane
//   - StoreLoadFailure: a persistent store could not be opened or created
//   - CommitFailure: the store rejected a logged transaction; the WAL entry is retained
//   - ValidationFailure: a declared uniqueness key names a missing attribute
//   - NotStarted: a commit was attempted while no stores are attached
//   - Cancelled: an action observed a cancellation request
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Resource names the affected resource type, if any.
	Resource string

	// TransactionID identifies the retained WAL entry for commit failures.
	TransactionID string

	// Err is the underlying cause, reachable through errors.Is / errors.As.
	Err error
}

// ErrorCode categorizes errors.
type ErrorCode string

const (
	ErrCodeUnmanagedResource ErrorCode = "UNMANAGED_RESOURCE"
	ErrCodeStoreLoadFailure  ErrorCode = "STORE_LOAD_FAILURE"
	ErrCodeCommitFailure     ErrorCode = "COMMIT_FAILURE"
	ErrCodeValidationFailure ErrorCode = "VALIDATION_FAILURE"
	ErrCodeNotStarted        ErrorCode = "NOT_STARTED"
	ErrCodeCancelled         ErrorCode = "CANCELLED"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Resource != "" {
		msg += fmt.Sprintf(" (resource=%s)", e.Resource)
	}
	if e.TransactionID != "" {
		msg += fmt.Sprintf(" (transaction=%s)", e.TransactionID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsUnmanagedResource reports whether err is an UnmanagedResource error.
func IsUnmanagedResource(err error) bool { return hasCode(err, ErrCodeUnmanagedResource) }

// IsStoreLoadFailure reports whether err is a StoreLoadFailure error.
func IsStoreLoadFailure(err error) bool { return hasCode(err, ErrCodeStoreLoadFailure) }

// IsCommitFailure reports whether err is a CommitFailure error.
func IsCommitFailure(err error) bool { return hasCode(err, ErrCodeCommitFailure) }

// IsValidationFailure reports whether err is a ValidationFailure error.
func IsValidationFailure(err error) bool { return hasCode(err, ErrCodeValidationFailure) }

// IsNotStarted reports whether err is a NotStarted error.
func IsNotStarted(err error) bool { return hasCode(err, ErrCodeNotStarted) }

// IsCancelled reports whether err is a Cancelled error.
func IsCancelled(err error) bool { return hasCode(err, ErrCodeCancelled) }

// NewUnmanagedResourceError reports a submission against a resource without a lane.
func NewUnmanagedResourceError(resource string) *Error {
	return &Error{
		Code:     ErrCodeUnmanagedResource,
		Message:  "resource is not managed",
		Resource: resource,
	}
}

// NewStoreLoadError reports a persistent store that could not be opened.
func NewStoreLoadError(store string, err error) *Error {
	return &Error{
		Code:    ErrCodeStoreLoadFailure,
		Message: fmt.Sprintf("failed to load store %q", store),
		Err:     err,
	}
}

// NewCommitError reports a store failure for a transaction that stays logged.
func NewCommitError(transactionID string, err error) *Error {
	return &Error{
		Code:          ErrCodeCommitFailure,
		Message:       "commit failed, transaction retained",
		TransactionID: transactionID,
		Err:           err,
	}
}

// NewValidationError reports a uniqueness key naming an attribute the resource lacks.
func NewValidationError(resource, attribute string) *Error {
	return &Error{
		Code:     ErrCodeValidationFailure,
		Message:  fmt.Sprintf("uniqueness attribute %q is not present on resource", attribute),
		Resource: resource,
	}
}

// NewNotStartedError reports a commit attempted while no stores are attached.
func NewNotStartedError(name string) *Error {
	return &Error{
		Code:    ErrCodeNotStarted,
		Message: fmt.Sprintf("instance %q is not started", name),
	}
}

// NewCancelledError reports an action that stopped because it was cancelled.
func NewCancelledError(err error) *Error {
	return &Error{
		Code:    ErrCodeCancelled,
		Message: "action cancelled",
		Err:     err,
	}
}
