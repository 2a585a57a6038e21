// Package telemetry groups the observability packages of Tribune.
//
//   - logging: slog setup from config, correlation ids on the context
//   - metrics: Prometheus counters and histograms for evaluations, conflicts,
//     the event store, bundle reloads, expiry sweeps and the decision log
//   - tracing: OpenTelemetry spans over evaluation and storage, exported
//     with OTLP/gRPC
//   - health: liveness, readiness and version endpoints
//
// Each package reads its section of config.TelemetryConfig. Components take
// a narrow recorder interface (engine.Recorder, eventstore.Recorder, ...)
// rather than the metrics collector itself, so packages below cmd/ never
// import Prometheus.
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	evaluator := engine.NewEvaluator(engine.WithRecorder(collector))
//
//	tracer, err := tracing.New(ctx, &cfg.Telemetry.Tracing)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
package telemetry
