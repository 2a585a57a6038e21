package saga

import (
	"errors"
	"fmt"

	"mercator-hq/tribune/pkg/policy/command"
	"mercator-hq/tribune/pkg/policy/domain"
	"mercator-hq/tribune/pkg/policy/event"
)

// DefaultCompositeChain returns the default planning chain for composite
// sagas.
func DefaultCompositeChain() *MarkovChain {
	c := NewMarkovChain()
	c.AddTransition(StateInitiated, StateInProgress, 1.0)
	c.AddTransition(StateInProgress, StateCompleted, 0.7)
	c.AddTransition(StateInProgress, StateFailed, 0.2)
	c.AddTransition(StateInProgress, StateWaiting, 0.1)
	c.AddTransition(StateWaiting, StateInProgress, 0.8)
	c.AddTransition(StateWaiting, StateFailed, 0.2)

	c.SetReward(StateCompleted, 100)
	c.SetReward(StateFailed, -50)
	c.SetReward(StateInProgress, 10)
	return c
}

// The composite state is derived from its sub-sagas, so any move between
// the live states is accepted.
var compositeGate = gate{
	StateInitiated:  {StateInProgress, StateWaiting, StateCompleted, StateFailed},
	StateInProgress: {StateWaiting, StateCompleted, StateFailed},
	StateWaiting:    {StateInProgress, StateCompleted, StateFailed},
}

var compositeTransitions = map[State][]Transition{
	StateInitiated:  {TransitionStart},
	StateInProgress: {TransitionProgress, TransitionComplete, TransitionFail},
	StateWaiting:    {TransitionProgress, TransitionFail},
}

// CompositeSaga coordinates several sub-sagas toward one completion
// criterion. A sub-saga that has failed receives no further events and
// contributes no further commands.
type CompositeSaga struct {
	base
	criteria domain.CompositionRule
	subs     []Saga
}

// NewCompositeSaga starts an empty composite in Initiated.
func NewCompositeSaga(initiatedBy string, criteria domain.CompositionRule, opts ...Option) *CompositeSaga {
	return &CompositeSaga{
		base:     newBase(KindComposite, initiatedBy, StateInitiated, DefaultCompositeChain(), compositeGate, opts),
		criteria: criteria,
	}
}

// Criteria returns the completion criterion.
func (s *CompositeSaga) Criteria() domain.CompositionRule { return s.criteria }

// SubSagas returns the coordinated sagas in the order they were added.
func (s *CompositeSaga) SubSagas() []Saga {
	out := make([]Saga, len(s.subs))
	copy(out, s.subs)
	return out
}

// AddSubSaga adds a saga to coordinate.
func (s *CompositeSaga) AddSubSaga(sub Saga) {
	s.subs = append(s.subs, sub)
	s.touch()
}

// CheckCompletion applies the criterion to the completed sub-sagas.
func (s *CompositeSaga) CheckCompletion() bool {
	completed := 0
	for _, sub := range s.subs {
		if sub.IsComplete() {
			completed++
		}
	}
	return s.criteria.Satisfied(completed, len(s.subs))
}

// Coordinate fans e out to every live sub-saga, collects their follow-up
// commands and recomputes the composite state. Sub-saga errors are logged
// and joined into the returned error; the commands of the other sub-sagas
// are still returned. Once the composite has completed or failed it
// rejects further events.
func (s *CompositeSaga) Coordinate(e event.Event) ([]command.Command, error) {
	switch s.state {
	case StateCompleted:
		return nil, ErrAlreadyCompleted
	case StateFailed:
		return nil, ErrSagaFailed
	}

	var (
		cmds []command.Command
		errs []error
	)
	for _, sub := range s.subs {
		if sub.HasFailed() {
			continue
		}
		if err := sub.ApplyEvent(e); err != nil {
			meta := sub.Metadata()
			s.logger.Warn("sub-saga rejected event",
				"saga_id", s.meta.ID,
				"sub_saga_id", meta.ID,
				"sub_saga_kind", sub.Kind(),
				"event_type", e.Type,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s saga %s: %w", sub.Kind(), meta.ID, err))
		}
		if sub.HasFailed() {
			continue
		}
		cmds = append(cmds, sub.Commands()...)
	}

	if err := s.recompute(); err != nil {
		errs = append(errs, err)
	}
	s.observe(e)
	return cmds, errors.Join(errs...)
}

func (s *CompositeSaga) recompute() error {
	next := StateInProgress
	switch {
	case s.CheckCompletion():
		next = StateCompleted
	case s.anyFailed():
		next = StateFailed
	case s.allWaiting():
		next = StateWaiting
	}
	if next == s.state {
		s.touch()
		return nil
	}
	return s.transition(next)
}

func (s *CompositeSaga) anyFailed() bool {
	for _, sub := range s.subs {
		if sub.HasFailed() {
			return true
		}
	}
	return false
}

func (s *CompositeSaga) allWaiting() bool {
	if len(s.subs) == 0 {
		return false
	}
	for _, sub := range s.subs {
		if sub.CurrentState() != StateWaiting {
			return false
		}
	}
	return true
}

// OptimalExecutionPath suggests the path from the current state to
// Completed.
func (s *CompositeSaga) OptimalExecutionPath() []State {
	return s.chain.OptimalPath(s.state, StateCompleted)
}

// CompensationPlan gathers the compensating commands of every sub-saga
// that can undo its effects, in the order the sub-sagas were added.
func (s *CompositeSaga) CompensationPlan(order CompensationOrder) *Compensation {
	plan := NewCompensation(s.meta.ID)
	plan.Order = order
	for _, sub := range s.subs {
		if c, ok := sub.(Compensator); ok {
			plan.Add(c.Compensations()...)
		}
	}
	return plan
}

// AvailableTransitions lists the transitions offered in the current state.
func (s *CompositeSaga) AvailableTransitions() []Transition {
	return compositeTransitions[s.state]
}

// ApplyEvent coordinates e and drops the follow-up commands. Use
// Coordinate to keep them.
func (s *CompositeSaga) ApplyEvent(e event.Event) error {
	_, err := s.Coordinate(e)
	return err
}

// Commands collects the pending commands of every live sub-saga. A
// completed or failed composite emits none.
func (s *CompositeSaga) Commands() []command.Command {
	if s.IsComplete() || s.HasFailed() {
		return nil
	}
	var cmds []command.Command
	for _, sub := range s.subs {
		if !sub.HasFailed() {
			cmds = append(cmds, sub.Commands()...)
		}
	}
	return cmds
}

// IsComplete reports Completed.
func (s *CompositeSaga) IsComplete() bool {
	return s.state == StateCompleted
}

// HasFailed reports Failed.
func (s *CompositeSaga) HasFailed() bool {
	return s.state == StateFailed
}
