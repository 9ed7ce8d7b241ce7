package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the classes callers branch on with errors.Is
var (
	// ErrConflict means a generation task is already in flight for the user
	ErrConflict = errors.New("status: processing")
	// ErrNotFound means the task or user data does not exist
	ErrNotFound = errors.New("not found")
)

// ValidationError reports bad input. Never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// UpstreamError reports a failure from the analysis engine or the datastore.
// StatusCode is the HTTP status when one was observed (0 otherwise) and
// Retryable is set per call site.
type UpstreamError struct {
	Op         string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s failed (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsClientError reports whether the upstream rejected the request with a
// 4xx-class status, meaning a retry cannot succeed.
func (e *UpstreamError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// UpstreamTimeout reports an unresponsive engine
type UpstreamTimeout struct {
	Op  string
	Err error
}

func (e *UpstreamTimeout) Error() string {
	return fmt.Sprintf("upstream %s timed out: %v", e.Op, e.Err)
}

func (e *UpstreamTimeout) Unwrap() error { return e.Err }
