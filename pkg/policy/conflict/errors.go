package conflict

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrNoPolicies indicates resolution or merging was attempted with no
	// policies.
	ErrNoPolicies = errors.New("no policies provided for conflict resolution")

	// ErrIrreconcilableConflict indicates the strategy refuses to resolve
	// conflicts.
	ErrIrreconcilableConflict = errors.New("irreconcilable conflict")

	// ErrResolutionFailed indicates the strategy is unknown or could not be
	// applied.
	ErrResolutionFailed = errors.New("conflict resolution failed")
)

// IrreconcilableConflictError is returned by the FailOnConflict strategy.
type IrreconcilableConflictError struct {
	Conflicts int
	Detail    string
}

// Error returns the error message.
func (e *IrreconcilableConflictError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("irreconcilable conflict: %s", e.Detail)
	}
	return fmt.Sprintf("irreconcilable conflict: found %d unresolvable conflicts", e.Conflicts)
}

// Unwrap returns ErrIrreconcilableConflict.
func (e *IrreconcilableConflictError) Unwrap() error {
	return ErrIrreconcilableConflict
}
