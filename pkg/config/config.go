package config

import (
	"time"

	"mercator-hq/tribune/pkg/saga"
)

// Config is the root configuration structure for Tribune.
// It contains the event store, the policy source, the exemption expiry
// schedule, saga planning, the serve command and telemetry settings.
type Config struct {
	// Store selects and configures the event store backend.
	Store StoreConfig `yaml:"store"`

	// Policy contains configuration for the policy bundle source including
	// file or git mode and hot-reload settings.
	Policy PolicyConfig `yaml:"policy"`

	// Exemptions contains configuration for the exemption expiry sweep.
	Exemptions ExemptionsConfig `yaml:"exemptions"`

	// Saga contains Markov planning parameters and per-family chain
	// overrides.
	Saga SagaConfig `yaml:"saga"`

	// Evidence configures the decision log written by the evaluation API.
	Evidence EvidenceConfig `yaml:"evidence"`

	// Server contains configuration for the HTTP listener started by
	// "tribune serve".
	Server ServerConfig `yaml:"server"`

	// Telemetry contains configuration for observability including logging,
	// metrics, and distributed tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// StoreConfig contains configuration for the event store.
type StoreConfig struct {
	// Backend is the storage backend.
	// Options: "memory", "sqlite"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite backend configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig contains configuration for the SQLite event store.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/events.db"
	Path string `yaml:"path"`

	// Driver is the database/sql driver name.
	// Options: "sqlite" (modernc.org/sqlite, pure Go), "sqlite3" (mattn, cgo)
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// BusyTimeout is how long a writer waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// PolicyConfig contains configuration for the policy bundle source.
type PolicyConfig struct {
	// Mode determines where bundles are loaded from.
	// Options: "file", "git"
	// Default: "file"
	Mode string `yaml:"mode"`

	// BundlePath is a bundle file or a directory of bundle files.
	// Only used when Mode is "file".
	// Default: "./policies"
	BundlePath string `yaml:"bundle_path"`

	// Watch enables hot-reloading of the bundle when files change.
	// Default: false
	Watch bool `yaml:"watch"`

	// DebounceInterval coalesces bursts of file events into one reload.
	// Default: 100ms
	DebounceInterval time.Duration `yaml:"debounce_interval"`

	// MaxFileSize is the largest bundle file accepted, in bytes.
	// Default: 10485760 (10MB)
	MaxFileSize int64 `yaml:"max_file_size"`

	// Git contains Git repository configuration.
	// Only used when Mode is "git".
	Git GitConfig `yaml:"git"`
}

// GitConfig contains configuration for a Git-backed bundle source.
type GitConfig struct {
	// Repository is the Git repository URL.
	// Supports HTTPS (https://github.com/org/repo.git) and
	// SSH (git@github.com:org/repo.git) URLs.
	Repository string `yaml:"repository"`

	// Branch is the branch to track.
	// Default: "main"
	Branch string `yaml:"branch"`

	// Path is the bundle path within the repository.
	// Default: "policies/"
	Path string `yaml:"path"`

	// Auth contains authentication configuration.
	Auth GitAuthConfig `yaml:"auth"`

	// Poll contains polling configuration.
	Poll GitPollConfig `yaml:"poll"`

	// Clone contains clone configuration.
	Clone GitCloneConfig `yaml:"clone"`
}

// GitAuthConfig contains authentication configuration for Git.
type GitAuthConfig struct {
	// Type is the authentication method.
	// Options: "none", "token", "ssh"
	// Default: "none"
	Type string `yaml:"type"`

	// Token is the personal access token for HTTPS authentication.
	Token string `yaml:"token"`

	// TokenEnv names an environment variable holding the token. It takes
	// precedence over Token, like server.auth.keys[].key_env.
	TokenEnv string `yaml:"token_env"`

	// SSHKeyPath is the path to the SSH private key.
	SSHKeyPath string `yaml:"ssh_key_path"`

	// SSHKeyPassphrase is the passphrase for an encrypted SSH key.
	SSHKeyPassphrase string `yaml:"ssh_key_passphrase"`

	// SSHKeyPassphraseEnv names an environment variable holding the
	// passphrase. It takes precedence over SSHKeyPassphrase.
	SSHKeyPassphraseEnv string `yaml:"ssh_key_passphrase_env"`
}

// GitPollConfig contains polling configuration for Git.
type GitPollConfig struct {
	// Enabled controls whether the repository is polled for changes.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Schedule is a cron expression or descriptor for the poll.
	// Default: "@every 30s"
	Schedule string `yaml:"schedule"`

	// Timeout bounds a single pull.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`
}

// GitCloneConfig contains clone configuration for Git.
type GitCloneConfig struct {
	// Depth is the clone depth (0 = full history).
	// Default: 1
	Depth int `yaml:"depth"`

	// LocalPath is where the repository is cloned.
	// Default: "data/policy-repo"
	LocalPath string `yaml:"local_path"`

	// CleanOnStart removes LocalPath before cloning.
	// Default: false
	CleanOnStart bool `yaml:"clean_on_start"`

	// Timeout bounds the initial clone.
	// Default: 60s
	Timeout time.Duration `yaml:"timeout"`
}

// ExemptionsConfig contains configuration for exemption handling.
type ExemptionsConfig struct {
	// ExpirySchedule is the cron expression of the expiry sweep run by
	// "tribune serve".
	// Default: "*/5 * * * *"
	ExpirySchedule string `yaml:"expiry_schedule"`

	// SweepTimeout bounds a single sweep.
	// Default: 1m
	SweepTimeout time.Duration `yaml:"sweep_timeout"`
}

// SagaConfig contains Markov planning parameters. The top-level values apply
// to every saga family; Chains overrides them per family.
type SagaConfig struct {
	// Discount is the reward discount factor in (0, 1].
	// Default: 0.9
	Discount float64 `yaml:"discount"`

	// Horizon is the lookahead depth used when ranking transitions.
	// Default: 5
	Horizon int `yaml:"horizon"`

	// MaxHops bounds the length of a planned path.
	// Default: 10
	MaxHops int `yaml:"max_hops"`

	// Chains holds per-family overrides keyed by saga kind
	// ("approval", "enforcement", "exemption", "audit", "composite").
	Chains map[string]saga.ChainConfig `yaml:"chains"`
}

// Chain returns the effective chain configuration for kind: the family
// override layered over the top-level values.
func (c SagaConfig) Chain(kind saga.Kind) saga.ChainConfig {
	out := saga.ChainConfig{
		Discount:  c.Discount,
		Lookahead: c.Horizon,
		MaxHops:   c.MaxHops,
	}
	override, ok := c.Chains[string(kind)]
	if !ok {
		return out
	}
	if override.Discount > 0 {
		out.Discount = override.Discount
	}
	if override.Lookahead > 0 {
		out.Lookahead = override.Lookahead
	}
	if override.MaxHops > 0 {
		out.MaxHops = override.MaxHops
	}
	out.Transitions = override.Transitions
	out.Rewards = override.Rewards
	return out
}

// EvidenceConfig contains configuration for the decision log.
type EvidenceConfig struct {
	// Enabled records every API evaluation as a decision record.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Backend is the storage backend.
	// Options: "memory", "sqlite"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite backend configuration. The decision log uses
	// its own database file.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// AsyncBuffer is the number of records queued for writing.
	// Default: 1000
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout bounds one storage write, and how long a full queue may
	// block a caller.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// RedactFields lists context fields stored only as a hash.
	RedactFields []string `yaml:"redact_fields"`

	// Retention controls pruning of old records.
	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig contains decision log retention settings.
type RetentionConfig struct {
	// Days is how long records are kept. -1 keeps them forever.
	// Default: 90
	Days int `yaml:"days"`

	// MaxRecords caps the number of stored records. 0 means unlimited.
	// Default: 0
	MaxRecords int64 `yaml:"max_records"`

	// Schedule is the cron expression of the pruning run.
	// Default: "0 3 * * *"
	Schedule string `yaml:"schedule"`

	// ArchivePath, when set, receives a JSON export of every pruned batch.
	ArchivePath string `yaml:"archive_path"`
}

// ServerConfig contains configuration for the HTTP listener.
type ServerConfig struct {
	// ListenAddress is the address serving /metrics and /healthz.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Auth guards the /v1 API with API keys.
	Auth AuthConfig `yaml:"auth"`

	// RateLimit throttles /v1 requests per actor.
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig limits /v1 requests per authenticated actor, or per client
// address when auth is disabled.
type RateLimitConfig struct {
	// Enabled turns on rate limiting.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Default applies to every caller without an entry in Actors.
	Default RateLimitRule `yaml:"default"`

	// Actors overrides the default for named actors.
	Actors map[string]RateLimitRule `yaml:"actors"`
}

// RateLimitRule is one set of limits. Zero disables a limit.
type RateLimitRule struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	RequestsPerMinute int `yaml:"requests_per_minute"`
	MaxConcurrent     int `yaml:"max_concurrent"`
}

// AuthConfig contains API key authentication for the /v1 API.
type AuthConfig struct {
	// Enabled requires a valid API key on every /v1 request.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sources lists where keys are read from, tried in order.
	// Default: "Authorization: Bearer <key>", then the X-API-Key header
	Sources []AuthSourceConfig `yaml:"sources"`

	// Keys are the accepted API keys.
	Keys []APIKeyConfig `yaml:"keys"`
}

// AuthSourceConfig names one place an API key is read from.
type AuthSourceConfig struct {
	// Type is "header" or "query".
	Type string `yaml:"type"`

	// Name is the header or query parameter name.
	Name string `yaml:"name"`

	// Scheme is an optional header value prefix such as "Bearer".
	Scheme string `yaml:"scheme"`
}

// APIKeyConfig is one accepted API key.
type APIKeyConfig struct {
	// Key is the secret value. Prefer KeyEnv outside of tests.
	Key string `yaml:"key"`

	// KeyEnv names an environment variable holding the key.
	KeyEnv string `yaml:"key_env"`

	// Actor is the principal the key authenticates. It becomes the
	// requester of every evaluation made with the key.
	Actor string `yaml:"actor"`

	// Team is recorded in logs only.
	Team string `yaml:"team"`

	// Disabled rejects the key without removing it from the file.
	Disabled bool `yaml:"disabled"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "tribune"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "" (none)
	Subsystem string `yaml:"subsystem"`

	// EvaluationBuckets defines histogram buckets for evaluation duration
	// (seconds).
	// Default: [0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5]
	EvaluationBuckets []float64 `yaml:"evaluation_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio", "parent_based"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Only used when Sampler is "ratio" or "parent_based".
	// Default: 0.1 (10%)
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "tribune"
	ServiceName string `yaml:"service_name"`

	// Insecure disables TLS to the collector.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Timeout is the export timeout.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains health check endpoint configuration.
type HealthConfig struct {
	// LivenessPath is the liveness probe path.
	// Default: "/healthz"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the readiness probe path.
	// Default: "/readyz"
	ReadinessPath string `yaml:"readiness_path"`

	// CheckTimeout bounds a single component check.
	// Default: 2s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}
