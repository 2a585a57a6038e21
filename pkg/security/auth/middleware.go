package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"mercator-hq/tribune/pkg/config"
)

// Middleware is HTTP middleware for API key authentication.
type Middleware struct {
	store   KeyStore
	sources []config.AuthSourceConfig
	logger  *slog.Logger
}

// NewMiddleware creates a middleware reading keys from sources, or from
// config.DefaultAuthSources when sources is empty.
func NewMiddleware(store KeyStore, sources []config.AuthSourceConfig) *Middleware {
	if len(sources) == 0 {
		sources = config.DefaultAuthSources()
	}
	return &Middleware{
		store:   store,
		sources: sources,
		logger:  slog.Default().With("component", "security.auth"),
	}
}

// Handle wraps an HTTP handler with API key authentication.
func (m *Middleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := m.extractKey(r)
		if !ok {
			m.logger.Warn("missing API key",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			unauthorized(w, ErrNoKey)
			return
		}

		p, err := m.store.Validate(key)
		if err != nil {
			m.logger.Warn("API key rejected",
				"error", err,
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			unauthorized(w, err)
			return
		}

		m.logger.Debug("API key authenticated",
			"actor", p.Actor,
			"team", p.Team,
			"path", r.URL.Path,
		)
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// extractKey returns the first key found in the configured sources.
func (m *Middleware) extractKey(r *http.Request) (string, bool) {
	for _, src := range m.sources {
		var value string
		switch src.Type {
		case "header":
			value = r.Header.Get(src.Name)
			if src.Scheme != "" {
				var found bool
				value, found = strings.CutPrefix(value, src.Scheme+" ")
				if !found {
					continue
				}
			}
		case "query":
			value = r.URL.Query().Get(src.Name)
		}
		if value = strings.TrimSpace(value); value != "" {
			return value, true
		}
	}
	return "", false
}

func unauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="tribune"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

type contextKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// PrincipalFrom returns the authenticated principal of a request context.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(*Principal)
	return p, ok
}
