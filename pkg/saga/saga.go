package saga

import (
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/policy/command"
	"mercator-hq/tribune/pkg/policy/event"
)

// Saga is a workflow state machine driven by domain events.
type Saga interface {
	// Kind returns the saga family.
	Kind() Kind

	// Metadata returns identity and bookkeeping for the instance.
	Metadata() Metadata

	// CurrentState returns the committed state.
	CurrentState() State

	// AvailableTransitions lists the transitions offered in the current
	// state.
	AvailableTransitions() []Transition

	// Chain returns the planning chain attached to the instance.
	Chain() *MarkovChain

	// ApplyEvent advances the saga. Events for other aggregates are
	// ignored; an event that is not allowed in the current state returns
	// an InvalidTransitionError and leaves the saga unchanged.
	ApplyEvent(e event.Event) error

	// Commands derives the follow-up commands from the current state and
	// workflow data. It does not change the saga.
	Commands() []command.Command

	// IsComplete reports whether the saga reached a terminal state.
	IsComplete() bool

	// HasFailed reports whether the saga ended unsuccessfully.
	HasFailed() bool
}

// Metadata identifies a saga instance. Version starts at 1 and increases
// with every change.
type Metadata struct {
	ID            uuid.UUID
	CorrelationID uuid.UUID
	CausationID   *uuid.UUID
	InitiatedAt   time.Time
	InitiatedBy   string
	LastUpdated   time.Time
	Version       uint32
	Tags          map[string]string
}

// Recorder receives saga measurements. The metrics collector implements it.
type Recorder interface {
	RecordSagaTransition(kind Kind, from, to State)
}

type nopRecorder struct{}

func (nopRecorder) RecordSagaTransition(Kind, State, State) {}

// Option configures a saga.
type Option func(*base)

// WithClock sets the time source.
func WithClock(clock func() time.Time) Option {
	return func(b *base) { b.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *base) { b.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(b *base) { b.recorder = r }
}

// WithCorrelation ties the saga to an existing correlation id and the
// event that started it.
func WithCorrelation(correlationID uuid.UUID, causationID *uuid.UUID) Option {
	return func(b *base) {
		b.meta.CorrelationID = correlationID
		b.meta.CausationID = causationID
	}
}

// WithChainConfig overrides the saga's default Markov chain.
func WithChainConfig(cfg ChainConfig) Option {
	return func(b *base) { b.chainConfig = &cfg }
}

// WithTags attaches free-form tags to the metadata.
func WithTags(tags map[string]string) Option {
	return func(b *base) { b.meta.Tags = maps.Clone(tags) }
}

// base carries what every saga shares.
type base struct {
	kind        Kind
	meta        Metadata
	state       State
	chain       *MarkovChain
	chainConfig *ChainConfig
	gate        gate
	clock       func() time.Time
	logger      *slog.Logger
	recorder    Recorder

	// lastEvent causes the commands derived from the current state.
	lastEvent uuid.UUID
}

func newBase(kind Kind, initiatedBy string, initial State, chain *MarkovChain, g gate, opts []Option) base {
	b := base{
		kind:     kind,
		state:    initial,
		chain:    chain,
		gate:     g,
		clock:    time.Now,
		recorder: nopRecorder{},
		meta: Metadata{
			ID:          uuid.New(),
			InitiatedBy: initiatedBy,
			Version:     1,
		},
	}
	for _, opt := range opts {
		opt(&b)
	}
	if b.logger == nil {
		b.logger = slog.Default().With("component", "saga."+string(kind))
	}
	if b.meta.CorrelationID == uuid.Nil {
		b.meta.CorrelationID = uuid.New()
	}
	if b.chainConfig != nil {
		b.chain.Apply(*b.chainConfig)
	}
	now := b.clock()
	b.meta.InitiatedAt = now
	b.meta.LastUpdated = now
	return b
}

func (b *base) Kind() Kind          { return b.kind }
func (b *base) CurrentState() State { return b.state }
func (b *base) Chain() *MarkovChain { return b.chain }

func (b *base) Metadata() Metadata {
	m := b.meta
	m.Tags = maps.Clone(b.meta.Tags)
	return m
}

// TransitionProbability reads the planning chain.
func (b *base) TransitionProbability(from, to State) float64 {
	return b.chain.Probability(from, to)
}

// OptimalPath suggests the path from the current state to goal.
func (b *base) OptimalPath(goal State) []State {
	return b.chain.OptimalPath(b.state, goal)
}

// CheckVersion returns a ConcurrentModificationError when the saga has
// changed since the caller read expected.
func (b *base) CheckVersion(expected uint32) error {
	if b.meta.Version != expected {
		return &ConcurrentModificationError{Expected: expected, Actual: b.meta.Version}
	}
	return nil
}

// transition moves to next if the gate allows it.
func (b *base) transition(next State) error {
	if !b.gate.allows(b.state, next) {
		return &InvalidTransitionError{Saga: b.kind, From: b.state, To: next}
	}
	from := b.state
	b.state = next
	b.touch()
	b.recorder.RecordSagaTransition(b.kind, from, next)
	b.logger.Debug("saga transition",
		"saga_id", b.meta.ID,
		"from", from,
		"to", next,
	)
	return nil
}

// touch records a change to workflow data.
func (b *base) touch() {
	b.meta.LastUpdated = b.clock()
	b.meta.Version++
}

// observe notes the event that the next commands will be caused by.
func (b *base) observe(e event.Event) {
	b.lastEvent = e.ID
}

func (b *base) commandMeta() command.Meta {
	cause := b.lastEvent
	if cause == uuid.Nil {
		cause = b.meta.ID
	}
	return command.Meta{CorrelationID: b.meta.CorrelationID, CausationID: cause}
}

func (b *base) terminal(states ...State) bool {
	for _, s := range states {
		if b.state == s {
			return true
		}
	}
	return false
}
