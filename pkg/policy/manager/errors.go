package manager

import (
	"errors"
	"fmt"
)

// Common sentinel errors.
var (
	// ErrNotLoaded is returned when the catalog holds no snapshot yet.
	ErrNotLoaded = errors.New("policy bundle not loaded")

	// ErrNilBundle is returned when a nil bundle is installed.
	ErrNilBundle = errors.New("bundle cannot be nil")

	// ErrWatchActive is returned when Watch is called twice.
	ErrWatchActive = errors.New("watch already active")

	// ErrWatchUnsupported is returned when the source cannot be watched.
	ErrWatchUnsupported = errors.New("source does not support watching")
)

// ReloadError reports a failed load from a source. The catalog keeps its
// previous snapshot.
type ReloadError struct {
	Source string
	Err    error
}

// Error returns the error message.
func (e *ReloadError) Error() string {
	return fmt.Sprintf("failed to reload bundle from %s: %v", e.Source, e.Err)
}

// Unwrap returns the underlying load error.
func (e *ReloadError) Unwrap() error {
	return e.Err
}
