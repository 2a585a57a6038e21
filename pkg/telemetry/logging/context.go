package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Context keys for common log fields.
type contextKey string

const (
	// CorrelationIDKey is the context key for event correlation ids.
	CorrelationIDKey contextKey = "correlation_id"

	// SagaIDKey is the context key for saga ids.
	SagaIDKey contextKey = "saga_id"

	// AggregateIDKey is the context key for aggregate ids.
	AggregateIDKey contextKey = "aggregate_id"

	// ActorKey is the context key for the acting principal.
	ActorKey contextKey = "actor"
)

var contextKeys = []contextKey{CorrelationIDKey, SagaIDKey, AggregateIDKey, ActorKey}

// WithCorrelationID adds a correlation id to the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// GetCorrelationID retrieves the correlation id from the context.
func GetCorrelationID(ctx context.Context) string {
	return value(ctx, CorrelationIDKey)
}

// WithSagaID adds a saga id to the context.
func WithSagaID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SagaIDKey, id)
}

// GetSagaID retrieves the saga id from the context.
func GetSagaID(ctx context.Context) string {
	return value(ctx, SagaIDKey)
}

// WithAggregateID adds an aggregate id to the context.
func WithAggregateID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, AggregateIDKey, id)
}

// GetAggregateID retrieves the aggregate id from the context.
func GetAggregateID(ctx context.Context) string {
	return value(ctx, AggregateIDKey)
}

// WithActor adds the acting principal to the context.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ActorKey, actor)
}

// GetActor retrieves the acting principal from the context.
func GetActor(ctx context.Context) string {
	return value(ctx, ActorKey)
}

func value(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// ContextAttrs returns the log attributes carried by ctx: the ids set with
// the With* helpers and the trace and span ids of a recording span.
func ContextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	for _, key := range contextKeys {
		if v := value(ctx, key); v != "" {
			attrs = append(attrs, slog.String(string(key), v))
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return attrs
}

// ContextHandler adds ContextAttrs to every record.
type ContextHandler struct {
	next slog.Handler
}

// NewContextHandler wraps next.
func NewContextHandler(next slog.Handler) *ContextHandler {
	return &ContextHandler{next: next}
}

// Enabled reports whether next handles level.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle adds the context attributes and passes the record on.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := ContextAttrs(ctx); len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.next.Handle(ctx, r)
}

// WithAttrs returns a handler with attrs preset.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{next: h.next.WithAttrs(attrs)}
}

// WithGroup returns a handler that nests attributes under name.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{next: h.next.WithGroup(name)}
}
