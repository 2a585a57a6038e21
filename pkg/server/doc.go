// Package server provides the HTTP listener of "tribune serve".
//
// The server mounts the Prometheus metrics handler, the liveness, readiness
// and version endpoints, and a small JSON API over the loaded policy
// catalog:
//
//	GET  /v1/catalog    bundle version and the policies and sets it holds
//	POST /v1/evaluate   evaluate a context against a policy, a set, or every
//	                    effective policy
//
// Every request gets an X-Request-ID, which is also the logging correlation
// id. Panics in handlers are recovered into a 500 response.
//
// # Basic Usage
//
//	srv := server.NewServer(&cfg.Server,
//	    server.WithMetrics(cfg.Telemetry.Metrics.Path, collector.Handler()),
//	    server.WithHealth(checker, cfg.Telemetry.Health, info),
//	    server.WithAPI(server.NewAPI(mgr.Catalog(), evaluator)),
//	    server.WithMiddleware(tracer.HTTPMiddleware),
//	)
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//
// Start blocks until ctx is cancelled and then shuts down gracefully within
// the configured shutdown timeout.
package server
