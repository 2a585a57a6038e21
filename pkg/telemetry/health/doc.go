// Package health serves liveness and readiness probes.
//
// Liveness answers 200 as long as the process can serve HTTP. Readiness
// runs the checks components register and answers 503 until every one
// passes. tribune serve registers two:
//
//   - catalog: a policy bundle has been installed
//   - eventstore: the event store answers a query
//
// Usage:
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterCheck("catalog", mgr.Ready)
//	checker.RegisterCheck("eventstore", func(ctx context.Context) error {
//		_, err := store.AggregateIDs(ctx, event.AggregatePolicy)
//		return err
//	})
//	checker.Register(mux, cfg.Telemetry.Health, health.VersionInfo{Version: version})
//
// Checks run concurrently, each bounded by the configured timeout. A check
// that overruns is reported unhealthy with ErrCheckTimeout.
package health
