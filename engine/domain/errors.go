package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure taxonomy. Batch operations isolate
// per-item failures; single-item operations propagate these after any
// local retries.
var (
	ErrResolution  = errors.New("resolved page is missing the document URL marker")
	ErrPattern     = errors.New("invalid field pattern")
	ErrPersistence = errors.New("persistence failure")
	ErrNotFound    = errors.New("record not found")
)

// DownloadError reports an exhausted download: the retry bound was
// reached without a successful attempt. Cause is the last underlying
// failure.
type DownloadError struct {
	URL      string
	Attempts int
	Cause    error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s failed after %d attempts: %v", e.URL, e.Attempts, e.Cause)
}

func (e *DownloadError) Unwrap() error { return e.Cause }

// StatusError is a non-200 response from the disclosure source.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}
