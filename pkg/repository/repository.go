package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/tribune/pkg/eventstore"
	"mercator-hq/tribune/pkg/policy/aggregate"
	"mercator-hq/tribune/pkg/policy/domain"
	"mercator-hq/tribune/pkg/policy/event"
)

// FoldFunc rebuilds an aggregate from its full history.
type FoldFunc[T any] func(events []event.Event) (*T, error)

// Repository loads and saves one aggregate type.
type Repository[T any] struct {
	store         eventstore.Store
	aggregateType event.AggregateType
	fold          FoldFunc[T]
	logger        *slog.Logger
	tracer        trace.Tracer
}

// Option configures a Repository.
type Option func(*options)

type options struct {
	logger *slog.Logger
	tracer trace.Tracer
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// New creates a repository for aggregateType backed by store.
func New[T any](store eventstore.Store, aggregateType event.AggregateType, fold FoldFunc[T], opts ...Option) *Repository[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default().With("component", "repository", "aggregate_type", string(aggregateType))
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer("mercator-hq/tribune/repository")
	}
	return &Repository[T]{
		store:         store,
		aggregateType: aggregateType,
		fold:          fold,
		logger:        o.logger,
		tracer:        o.tracer,
	}
}

// NewPolicyRepository creates a repository for policies.
func NewPolicyRepository(store eventstore.Store, opts ...Option) *Repository[domain.Policy] {
	return New(store, event.AggregatePolicy, aggregate.FoldPolicy, opts...)
}

// NewPolicySetRepository creates a repository for policy sets.
func NewPolicySetRepository(store eventstore.Store, opts ...Option) *Repository[domain.PolicySet] {
	return New(store, event.AggregatePolicySet, aggregate.FoldPolicySet, opts...)
}

// NewExemptionRepository creates a repository for exemptions.
func NewExemptionRepository(store eventstore.Store, opts ...Option) *Repository[domain.Exemption] {
	return New(store, event.AggregateExemption, aggregate.FoldExemption, opts...)
}

// Load replays the aggregate's history. An id whose stream belongs to another
// aggregate type returns a *NotFoundError. A history that does not start with
// the creation event returns aggregate.ErrInvalidSequence and no state.
func (r *Repository[T]) Load(ctx context.Context, id uuid.UUID) (state *T, err error) {
	ctx, span := r.tracer.Start(ctx, "repository.load", trace.WithAttributes(
		attribute.String("aggregate.type", string(r.aggregateType)),
		attribute.String("aggregate.id", id.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	events, err := r.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", r.aggregateType, id, err)
	}
	// A stream owned by another aggregate type is not this repository's.
	if len(events) == 0 || events[0].AggregateType != r.aggregateType {
		return nil, &NotFoundError{AggregateType: r.aggregateType, AggregateID: id}
	}
	span.SetAttributes(attribute.Int("events", len(events)))

	state, err = r.fold(events)
	if err != nil {
		r.logger.Error("replay failed",
			"aggregate_id", id,
			"events", len(events),
			"error", err,
		)
		return nil, err
	}
	return state, nil
}

// Exists reports whether the aggregate has any stored history.
func (r *Repository[T]) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	events, err := r.store.Load(ctx, id)
	if err != nil {
		return false, err
	}
	return len(events) > 0, nil
}

// IDs lists every stored aggregate of this type.
func (r *Repository[T]) IDs(ctx context.Context) ([]uuid.UUID, error) {
	return r.store.AggregateIDs(ctx, r.aggregateType)
}

// Save appends events, grouped per aggregate in order of first appearance.
// For each group the expected stream position comes from the first event:
// a set Seq must directly follow the stored head, a creation event must
// start the stream, and any other event is appended after the current head.
func (r *Repository[T]) Save(ctx context.Context, events []event.Event) (err error) {
	if len(events) == 0 {
		return ErrNoEvents
	}

	ctx, span := r.tracer.Start(ctx, "repository.save", trace.WithAttributes(
		attribute.String("aggregate.type", string(r.aggregateType)),
		attribute.Int("events", len(events)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	for _, group := range groupByAggregate(events) {
		id := group[0].AggregateID
		expected, err := r.expectedSeq(ctx, group[0])
		if err != nil {
			return err
		}
		if _, err := r.store.Append(ctx, id, expected, group...); err != nil {
			return fmt.Errorf("save %s %s: %w", r.aggregateType, id, err)
		}
		r.logger.Debug("events saved",
			"aggregate_id", id,
			"from_seq", expected+1,
			"count", len(group),
		)
	}
	return nil
}

func (r *Repository[T]) expectedSeq(ctx context.Context, first event.Event) (uint64, error) {
	switch {
	case first.Seq > 0:
		return first.Seq - 1, nil
	case event.IsCreation(first.Type):
		return 0, nil
	}
	history, err := r.store.Load(ctx, first.AggregateID)
	if err != nil {
		return 0, fmt.Errorf("read head of %s %s: %w", r.aggregateType, first.AggregateID, err)
	}
	if len(history) == 0 {
		return 0, &NotFoundError{AggregateType: r.aggregateType, AggregateID: first.AggregateID}
	}
	return history[len(history)-1].Seq, nil
}

func groupByAggregate(events []event.Event) [][]event.Event {
	index := make(map[uuid.UUID]int)
	var groups [][]event.Event
	for _, e := range events {
		i, ok := index[e.AggregateID]
		if !ok {
			i = len(groups)
			index[e.AggregateID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], e)
	}
	return groups
}
