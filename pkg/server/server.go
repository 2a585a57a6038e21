package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"mercator-hq/tribune/pkg/config"
	"mercator-hq/tribune/pkg/telemetry/health"
)

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// Option configures a Server.
type Option func(*Server)

// WithMetrics mounts the metrics handler at path.
func WithMetrics(path string, h http.Handler) Option {
	return func(s *Server) {
		s.metricsPath = path
		s.metrics = h
	}
}

// WithHealth mounts the liveness, readiness and version endpoints.
func WithHealth(c *health.Checker, cfg config.HealthConfig, info health.VersionInfo) Option {
	return func(s *Server) {
		s.health = c
		s.healthConfig = cfg
		s.version = info
	}
}

// WithAPI mounts the catalog and evaluation API.
func WithAPI(api *API) Option {
	return func(s *Server) { s.api = api }
}

// WithAPIMiddleware adds a middleware that wraps only the /v1 API routes.
func WithAPIMiddleware(mw Middleware) Option {
	return func(s *Server) { s.apiMiddleware = append(s.apiMiddleware, mw) }
}

// WithMiddleware adds a middleware inside the request id, logging and
// recovery chain.
func WithMiddleware(mw Middleware) Option {
	return func(s *Server) { s.middleware = append(s.middleware, mw) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// Server is the HTTP listener of "tribune serve".
type Server struct {
	config        *config.ServerConfig
	metricsPath   string
	metrics       http.Handler
	health        *health.Checker
	healthConfig  config.HealthConfig
	version       health.VersionInfo
	api           *API
	apiMiddleware []Middleware
	middleware    []Middleware
	logger        *slog.Logger

	httpServer   *http.Server
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
	addr         net.Addr
}

// NewServer creates a server listening on cfg.ListenAddress.
func NewServer(cfg *config.ServerConfig, opts ...Option) *Server {
	s := &Server{
		config: cfg,
		logger: slog.Default().With("component", "server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}

	listener, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: s.config.ReadTimeout,
	}
	s.addr = listener.Addr()
	s.isRunning = true
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "address", listener.Addr().String())
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("server stopped")
	})

	return shutdownErr
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.metrics != nil {
		path := s.metricsPath
		if path == "" {
			path = config.DefaultMetricsPath
		}
		mux.Handle(path, s.metrics)
	}
	if s.health != nil {
		s.health.Register(mux, s.healthConfig, s.version)
	}
	if s.api != nil {
		apiMux := http.NewServeMux()
		s.api.Register(apiMux)
		var api http.Handler = apiMux
		for i := len(s.apiMiddleware) - 1; i >= 0; i-- {
			api = s.apiMiddleware[i](api)
		}
		mux.Handle(APIPrefix, api)
	}

	var handler http.Handler = mux
	for i := len(s.middleware) - 1; i >= 0; i-- {
		handler = s.middleware[i](handler)
	}

	// Request ID, then logging, with recovery outermost.
	handler = RequestIDMiddleware(handler)
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RecoveryMiddleware(s.logger)(handler)
	return handler
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}
