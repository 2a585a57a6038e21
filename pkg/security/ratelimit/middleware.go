package ratelimit

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"

	"mercator-hq/tribune/pkg/security/auth"
)

// Metrics receives one call per rejected request.
type Metrics interface {
	RecordRateLimited(reason string)
}

type nopMetrics struct{}

func (nopMetrics) RecordRateLimited(string) {}

// Option configures a Middleware.
type Option func(*Middleware)

// WithMetrics reports rejections to m.
func WithMetrics(m Metrics) Option {
	return func(mw *Middleware) {
		if m != nil {
			mw.metrics = m
		}
	}
}

// Middleware rejects requests over their caller's limits with 429.
type Middleware struct {
	registry *Registry
	metrics  Metrics
	logger   *slog.Logger
}

// NewMiddleware creates a middleware over registry.
func NewMiddleware(registry *Registry, opts ...Option) *Middleware {
	m := &Middleware{
		registry: registry,
		metrics:  nopMetrics{},
		logger:   slog.Default().With("component", "security.ratelimit"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handle wraps an HTTP handler with rate limiting.
func (m *Middleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, actor := callerKey(r)
		limiter := m.registry.Limiter(key, actor)

		result := limiter.CheckRequest()
		if result.Limit > 0 {
			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		}
		if !result.Allowed {
			m.reject(w, r, key, result)
			return
		}

		if !limiter.Acquire() {
			m.reject(w, r, key, &CheckResult{
				Reason: ReasonConcurrent,
				Limit:  limiter.ConcurrentLimit(),
			})
			return
		}
		defer limiter.Release()

		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) reject(w http.ResponseWriter, r *http.Request, key string, result *CheckResult) {
	m.metrics.RecordRateLimited(result.Reason)
	m.logger.Warn("request rate limited",
		"caller", key,
		"reason", result.Reason,
		"limit", result.Limit,
		"path", r.URL.Path,
	)

	retry := int64(math.Ceil(result.RetryAfter.Seconds()))
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": "rate limit exceeded: " + result.Reason,
	})
}

// callerKey identifies the caller by authenticated actor, falling back to
// the client address.
func callerKey(r *http.Request) (key, actor string) {
	if p, ok := auth.PrincipalFrom(r.Context()); ok && p.Actor != "" {
		return "actor:" + p.Actor, p.Actor
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host, ""
}
