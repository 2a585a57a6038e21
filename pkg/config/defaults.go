package config

import (
	"time"

	"mercator-hq/tribune/pkg/saga"
)

// Default values for configuration fields.
const (
	// Store defaults
	DefaultStoreBackend      = "sqlite"
	DefaultSQLitePath        = "data/events.db"
	DefaultSQLiteDriver      = "sqlite"
	DefaultSQLiteBusyTimeout = 5 * time.Second

	// Policy defaults
	DefaultPolicyMode             = "file"
	DefaultPolicyBundlePath       = "./policies"
	DefaultPolicyDebounceInterval = 100 * time.Millisecond
	DefaultPolicyMaxFileSize      = int64(10 * 1024 * 1024) // 10MB
	DefaultGitBranch              = "main"
	DefaultGitPath                = "policies/"
	DefaultGitAuthType            = "none"
	DefaultGitPollSchedule        = "@every 30s"
	DefaultGitPollTimeout         = 30 * time.Second
	DefaultGitCloneDepth          = 1
	DefaultGitCloneLocalPath      = "data/policy-repo"
	DefaultGitCloneTimeout        = 60 * time.Second

	// Exemption defaults
	DefaultExpirySchedule     = "*/5 * * * *"
	DefaultExpirySweepTimeout = time.Minute

	// Saga defaults
	DefaultSagaDiscount = saga.DefaultDiscount
	DefaultSagaHorizon  = saga.DefaultLookahead
	DefaultSagaMaxHops  = saga.DefaultMaxHops

	// Evidence defaults
	DefaultEvidenceBackend      = "sqlite"
	DefaultEvidenceSQLitePath   = "data/decisions.db"
	DefaultEvidenceAsyncBuffer  = 1000
	DefaultEvidenceWriteTimeout = 5 * time.Second
	DefaultRetentionDays        = 90
	DefaultRetentionSchedule    = "0 3 * * *"

	// Server defaults
	DefaultServerListenAddress   = "127.0.0.1:9090"
	DefaultServerReadTimeout     = 10 * time.Second
	DefaultServerShutdownTimeout = 15 * time.Second

	// Telemetry defaults
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "json"
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "tribune"
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 0.1
	DefaultTracingServiceName = "tribune"
	DefaultTracingTimeout     = 10 * time.Second
	DefaultLivenessPath       = "/healthz"
	DefaultReadinessPath      = "/readyz"
	DefaultHealthCheckTimeout = 2 * time.Second
)

// DefaultEvaluationBuckets are the histogram buckets for evaluation duration.
var DefaultEvaluationBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5}

// ApplyDefaults applies default values to any unset configuration fields.
// It modifies the provided Config in place. Fields that already have
// non-zero values are not modified.
func ApplyDefaults(cfg *Config) {
	// Store defaults
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = DefaultStoreBackend
	}
	if cfg.Store.SQLite.Path == "" {
		cfg.Store.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Store.SQLite.Driver == "" {
		cfg.Store.SQLite.Driver = DefaultSQLiteDriver
	}
	if cfg.Store.SQLite.BusyTimeout == 0 {
		cfg.Store.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}

	applyPolicyDefaults(&cfg.Policy)

	// Exemption defaults
	if cfg.Exemptions.ExpirySchedule == "" {
		cfg.Exemptions.ExpirySchedule = DefaultExpirySchedule
	}
	if cfg.Exemptions.SweepTimeout == 0 {
		cfg.Exemptions.SweepTimeout = DefaultExpirySweepTimeout
	}

	// Saga defaults
	if cfg.Saga.Discount == 0 {
		cfg.Saga.Discount = DefaultSagaDiscount
	}
	if cfg.Saga.Horizon == 0 {
		cfg.Saga.Horizon = DefaultSagaHorizon
	}
	if cfg.Saga.MaxHops == 0 {
		cfg.Saga.MaxHops = DefaultSagaMaxHops
	}

	applyEvidenceDefaults(&cfg.Evidence)

	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultServerListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultServerReadTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultServerShutdownTimeout
	}
	if cfg.Server.Auth.Enabled && len(cfg.Server.Auth.Sources) == 0 {
		cfg.Server.Auth.Sources = DefaultAuthSources()
	}

	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyPolicyDefaults(p *PolicyConfig) {
	if p.Mode == "" {
		p.Mode = DefaultPolicyMode
	}
	if p.BundlePath == "" {
		p.BundlePath = DefaultPolicyBundlePath
	}
	if p.DebounceInterval == 0 {
		p.DebounceInterval = DefaultPolicyDebounceInterval
	}
	if p.MaxFileSize == 0 {
		p.MaxFileSize = DefaultPolicyMaxFileSize
	}

	git := &p.Git
	if git.Branch == "" {
		git.Branch = DefaultGitBranch
	}
	if git.Path == "" {
		git.Path = DefaultGitPath
	}
	if git.Auth.Type == "" {
		git.Auth.Type = DefaultGitAuthType
	}
	if git.Poll.Schedule == "" {
		git.Poll.Schedule = DefaultGitPollSchedule
	}
	if git.Poll.Timeout == 0 {
		git.Poll.Timeout = DefaultGitPollTimeout
	}
	if git.Clone.Depth == 0 {
		git.Clone.Depth = DefaultGitCloneDepth
	}
	if git.Clone.LocalPath == "" {
		git.Clone.LocalPath = DefaultGitCloneLocalPath
	}
	if git.Clone.Timeout == 0 {
		git.Clone.Timeout = DefaultGitCloneTimeout
	}
}

func applyEvidenceDefaults(e *EvidenceConfig) {
	if e.Backend == "" {
		e.Backend = DefaultEvidenceBackend
	}
	if e.SQLite.Path == "" {
		e.SQLite.Path = DefaultEvidenceSQLitePath
	}
	if e.SQLite.Driver == "" {
		e.SQLite.Driver = DefaultSQLiteDriver
	}
	if e.SQLite.BusyTimeout == 0 {
		e.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if e.AsyncBuffer == 0 {
		e.AsyncBuffer = DefaultEvidenceAsyncBuffer
	}
	if e.WriteTimeout == 0 {
		e.WriteTimeout = DefaultEvidenceWriteTimeout
	}
	if e.Retention.Days == 0 {
		e.Retention.Days = DefaultRetentionDays
	}
	if e.Retention.Schedule == "" {
		e.Retention.Schedule = DefaultRetentionSchedule
	}
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLogLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLogFormat
	}

	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultMetricsPath
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}
	if len(t.Metrics.EvaluationBuckets) == 0 {
		t.Metrics.EvaluationBuckets = append([]float64(nil), DefaultEvaluationBuckets...)
	}

	if t.Tracing.Sampler == "" {
		t.Tracing.Sampler = DefaultTracingSampler
	}
	if t.Tracing.SampleRatio == 0 {
		t.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if t.Tracing.ServiceName == "" {
		t.Tracing.ServiceName = DefaultTracingServiceName
	}
	if t.Tracing.Timeout == 0 {
		t.Tracing.Timeout = DefaultTracingTimeout
	}

	if t.Health.LivenessPath == "" {
		t.Health.LivenessPath = DefaultLivenessPath
	}
	if t.Health.ReadinessPath == "" {
		t.Health.ReadinessPath = DefaultReadinessPath
	}
	if t.Health.CheckTimeout == 0 {
		t.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}

// DefaultAuthSources returns the API key sources used when none are
// configured: a bearer token, then the X-API-Key header.
func DefaultAuthSources() []AuthSourceConfig {
	return []AuthSourceConfig{
		{Type: "header", Name: "Authorization", Scheme: "Bearer"},
		{Type: "header", Name: "X-API-Key"},
	}
}
