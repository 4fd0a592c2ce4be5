package resume

import (
	"errors"
	"fmt"
)

var (
	// ErrTransient matches every TransientNetworkError. Callers hand such jobs
	// back to the queue.
	ErrTransient = errors.New("resume: transient failure")
	// ErrInvalidRequest is returned before any request is made.
	ErrInvalidRequest = errors.New("resume: invalid request")
)

// TransientNetworkError reports that every attempt failed with a connection error
// or a 5xx response. StatusCode is the last response status, 0 for connection errors.
type TransientNetworkError struct {
	Attempts   int
	StatusCode int
	Err        error
}

func (e *TransientNetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("resume: gave up after %d attempts (last status %d)", e.Attempts, e.StatusCode)
	}
	return fmt.Sprintf("resume: gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransientNetworkError) Is(target error) bool { return target == ErrTransient }

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// RejectedError is a 4xx answer from the workflow engine. It is never retried.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("resume: rejected with status %d body=%q", e.StatusCode, e.Body)
}
