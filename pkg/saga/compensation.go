package saga

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/policy/command"
)

// CompensationOrder decides how compensating commands are run.
type CompensationOrder string

const (
	// CompensateReverse undoes the most recent step first.
	CompensateReverse CompensationOrder = "reverse"
	CompensateForward CompensationOrder = "forward"
	// CompensateParallel dispatches every command at once.
	CompensateParallel CompensationOrder = "parallel"
)

// ParseCompensationOrder parses a compensation order name.
func ParseCompensationOrder(s string) (CompensationOrder, error) {
	switch o := CompensationOrder(s); o {
	case CompensateReverse, CompensateForward, CompensateParallel:
		return o, nil
	default:
		return "", fmt.Errorf("unknown compensation order %q", s)
	}
}

// Compensator is implemented by sagas that can undo their effects.
type Compensator interface {
	Compensations() []command.Command
}

// Compensation is the rollback plan of one saga.
type Compensation struct {
	SagaID   uuid.UUID
	Commands []command.Command
	Order    CompensationOrder
}

// NewCompensation returns an empty plan in reverse order.
func NewCompensation(sagaID uuid.UUID) *Compensation {
	return &Compensation{SagaID: sagaID, Order: CompensateReverse}
}

// Add appends compensating commands in the order their steps happened.
func (c *Compensation) Add(cmds ...command.Command) {
	c.Commands = append(c.Commands, cmds...)
}

// Execute returns the commands in execution order. Parallel plans keep the
// recorded order.
func (c *Compensation) Execute() []command.Command {
	out := slices.Clone(c.Commands)
	if c.Order == CompensateReverse {
		slices.Reverse(out)
	}
	return out
}

// Dispatch hands every command to fn in plan order. Parallel plans call fn
// concurrently. Errors from all commands are joined.
func (c *Compensation) Dispatch(ctx context.Context, fn func(context.Context, command.Command) error) error {
	cmds := c.Execute()
	if c.Order != CompensateParallel {
		var errs []error
		for _, cmd := range cmds {
			if err := ctx.Err(); err != nil {
				return errors.Join(append(errs, err)...)
			}
			if err := fn(ctx, cmd); err != nil {
				errs = append(errs, fmt.Errorf("compensate %s: %w", cmd.Kind(), err))
			}
		}
		return errors.Join(errs...)
	}

	errs := make([]error, len(cmds))
	var wg sync.WaitGroup
	for i, cmd := range cmds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx, cmd); err != nil {
				errs[i] = fmt.Errorf("compensate %s: %w", cmd.Kind(), err)
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
