// Package ratelimit throttles the /v1 API per caller.
//
// # Overview
//
// Each caller gets its own Limiter combining up to three limits:
//
//   - Requests per second: token bucket, burst of twice the rate
//   - Requests per minute: token bucket, burst of the full minute
//   - Concurrent requests: counting semaphore
//
// A request is rejected as soon as one limit is exhausted. Rejections carry
// the limit that was hit and how long to wait before retrying.
//
// # Callers
//
// The middleware keys limiters by the authenticated actor when the auth
// middleware runs first, and by client address otherwise:
//
//	registry := ratelimit.NewRegistry(cfg.Server.RateLimit)
//	mw := ratelimit.NewMiddleware(registry, ratelimit.WithMetrics(collector))
//	handler = auth.NewMiddleware(keys, nil).Handle(mw.Handle(handler))
//
// Actors named under server.rate_limit.actors get their own limits; every
// other caller gets the default. Limiters idle for ten minutes are dropped.
//
// # Thread Safety
//
// Every type in this package is safe for concurrent use.
package ratelimit
