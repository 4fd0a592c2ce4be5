package communication

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every ValidationError.
	ErrValidation = errors.New("communication: validation failed")
	// ErrNotFound matches every NotFoundError.
	ErrNotFound = errors.New("communication: not found")
	// ErrCommunication matches every CommunicationError.
	ErrCommunication = errors.New("communication: provider failure")
	// ErrConflict is returned by repositories when a compare-and-swap update loses.
	ErrConflict = errors.New("communication: concurrent status update")
)

// ValidationError rejects malformed input before any side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "communication: invalid input: " + e.Reason
	}
	return fmt.Sprintf("communication: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports an unknown entity, external id, or tenant.
type NotFoundError struct {
	Kind string
	Key  string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("communication: %s %q not found", e.Kind, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func (e *NotFoundError) Unwrap() error { return e.Err }

// CommunicationError carries a provider failure. Code is the provider's error code
// when one was returned.
type CommunicationError struct {
	Code string
	Err  error
}

func (e *CommunicationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("communication: provider error (code=%s)", e.Code)
	}
	return fmt.Sprintf("communication: provider error (code=%s): %v", e.Code, e.Err)
}

func (e *CommunicationError) Is(target error) bool { return target == ErrCommunication }

func (e *CommunicationError) Unwrap() error { return e.Err }

func errInvalidTransition(from, to string) error {
	return &ValidationError{Field: "status", Reason: fmt.Sprintf("cannot move from %s to %s", from, to)}
}

func requiredField(field string) error {
	return &ValidationError{Field: field, Reason: "is required"}
}

// asCommunicationError normalizes gateway failures.
func asCommunicationError(err error) *CommunicationError {
	var commErr *CommunicationError
	if errors.As(err, &commErr) {
		return commErr
	}
	return &CommunicationError{Code: "provider_error", Err: err}
}
