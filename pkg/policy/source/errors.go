package source

import (
	"errors"
	"fmt"
)

// Common sentinel errors.
var (
	// ErrNotCloned is returned when a git operation runs before Clone.
	ErrNotCloned = errors.New("repository not cloned")

	// ErrNoBundle is returned by a MemorySource that holds no bundle.
	ErrNoBundle = errors.New("no bundle loaded")

	// ErrInvalidConfig is returned for unusable source configuration.
	ErrInvalidConfig = errors.New("invalid source configuration")
)

// RejectedCommitError reports a pulled commit whose bundle failed to parse.
// The worktree has been rolled back to the previous commit.
type RejectedCommitError struct {
	SHA     string
	Restore string
	Err     error
}

// Error returns the error message.
func (e *RejectedCommitError) Error() string {
	return fmt.Sprintf("commit %s rejected, restored %s: %v", short(e.SHA), short(e.Restore), e.Err)
}

// Unwrap returns the parse error.
func (e *RejectedCommitError) Unwrap() error {
	return e.Err
}

func short(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
