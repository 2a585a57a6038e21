// Package tracing configures OpenTelemetry tracing.
//
// New builds a tracer provider that exports spans over OTLP/gRPC and
// installs it as the global provider. The evaluator, repositories and event
// stores call otel.Tracer themselves, so once the provider is installed
// their spans (policy.evaluate, repository.load, eventstore.append, ...) are
// exported without further wiring:
//
//	tracer, err := tracing.New(ctx, &cfg.Telemetry.Tracing)
//	if err != nil {
//		return err
//	}
//	defer tracer.Shutdown(context.Background())
//
// # Sampling
//
// The sampler setting selects one of:
//   - always: sample every trace
//   - never: sample nothing
//   - ratio, parent_based: sample sample_ratio of root traces and follow the
//     parent's decision otherwise
//
// # Propagation
//
// W3C Trace Context and Baggage are propagated. HTTPMiddleware continues an
// incoming trace on the serve endpoints.
package tracing
