package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"

	"mercator-hq/tribune/pkg/saga"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "store.backend").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validatePolicy(&cfg.Policy)...)
	errs = append(errs, validateExemptions(&cfg.Exemptions)...)
	errs = append(errs, validateSaga(&cfg.Saga)...)
	errs = append(errs, validateEvidence(&cfg.Evidence)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateStore validates event store configuration.
func validateStore(cfg *StoreConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "store.sqlite.path",
				Message: "path is required when backend is 'sqlite'",
			})
		}
		if cfg.SQLite.Driver != "sqlite" && cfg.SQLite.Driver != "sqlite3" {
			errs = append(errs, FieldError{
				Field:   "store.sqlite.driver",
				Message: fmt.Sprintf("invalid driver %q: must be 'sqlite' or 'sqlite3'", cfg.SQLite.Driver),
			})
		}
		if cfg.SQLite.BusyTimeout < 0 {
			errs = append(errs, FieldError{
				Field:   "store.sqlite.busy_timeout",
				Message: "busy timeout must be positive",
			})
		}
	case "":
		errs = append(errs, FieldError{
			Field:   "store.backend",
			Message: "backend is required",
		})
	default:
		errs = append(errs, FieldError{
			Field:   "store.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'memory' or 'sqlite'", cfg.Backend),
		})
	}

	return errs
}

// validatePolicy validates policy source configuration.
func validatePolicy(cfg *PolicyConfig) []FieldError {
	var errs []FieldError

	validModes := map[string]bool{"file": true, "git": true}
	if cfg.Mode == "" {
		errs = append(errs, FieldError{
			Field:   "policy.mode",
			Message: "mode is required",
		})
	} else if !validModes[cfg.Mode] {
		errs = append(errs, FieldError{
			Field:   "policy.mode",
			Message: fmt.Sprintf("invalid mode %q: must be 'file' or 'git'", cfg.Mode),
		})
	}

	if cfg.Mode == "file" && cfg.BundlePath == "" {
		errs = append(errs, FieldError{
			Field:   "policy.bundle_path",
			Message: "bundle path is required when mode is 'file'",
		})
	}
	if cfg.DebounceInterval < 0 {
		errs = append(errs, FieldError{
			Field:   "policy.debounce_interval",
			Message: "debounce interval must be positive",
		})
	}
	if cfg.MaxFileSize < 0 {
		errs = append(errs, FieldError{
			Field:   "policy.max_file_size",
			Message: "max file size must be non-negative",
		})
	}

	if cfg.Mode == "git" {
		errs = append(errs, validateGit(&cfg.Git)...)
	}

	return errs
}

func validateGit(cfg *GitConfig) []FieldError {
	var errs []FieldError

	if cfg.Repository == "" {
		errs = append(errs, FieldError{
			Field:   "policy.git.repository",
			Message: "repository is required when mode is 'git'",
		})
	} else if !strings.HasPrefix(cfg.Repository, "git@") {
		if _, err := url.Parse(cfg.Repository); err != nil {
			errs = append(errs, FieldError{
				Field:   "policy.git.repository",
				Message: fmt.Sprintf("invalid URL format: %v", err),
			})
		}
	}
	if cfg.Branch == "" {
		errs = append(errs, FieldError{
			Field:   "policy.git.branch",
			Message: "branch is required when mode is 'git'",
		})
	}

	switch cfg.Auth.Type {
	case "none":
	case "token":
		if cfg.Auth.Token == "" && cfg.Auth.TokenEnv == "" {
			errs = append(errs, FieldError{
				Field:   "policy.git.auth.token",
				Message: "token or token_env is required when auth type is 'token'",
			})
		}
	case "ssh":
		if cfg.Auth.SSHKeyPath == "" {
			errs = append(errs, FieldError{
				Field:   "policy.git.auth.ssh_key_path",
				Message: "SSH key path is required when auth type is 'ssh'",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "policy.git.auth.type",
			Message: fmt.Sprintf("invalid auth type %q: must be 'none', 'token', or 'ssh'", cfg.Auth.Type),
		})
	}

	if cfg.Poll.Enabled {
		if _, err := cron.ParseStandard(cfg.Poll.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "policy.git.poll.schedule",
				Message: fmt.Sprintf("invalid schedule %q: %v", cfg.Poll.Schedule, err),
			})
		}
	}
	if cfg.Clone.Depth < 0 {
		errs = append(errs, FieldError{
			Field:   "policy.git.clone.depth",
			Message: "clone depth must be non-negative",
		})
	}
	if cfg.Clone.LocalPath == "" {
		errs = append(errs, FieldError{
			Field:   "policy.git.clone.local_path",
			Message: "local path is required when mode is 'git'",
		})
	}

	return errs
}

// validateExemptions validates the expiry sweep configuration.
func validateExemptions(cfg *ExemptionsConfig) []FieldError {
	var errs []FieldError

	if _, err := cron.ParseStandard(cfg.ExpirySchedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "exemptions.expiry_schedule",
			Message: fmt.Sprintf("invalid schedule %q: %v", cfg.ExpirySchedule, err),
		})
	}
	if cfg.SweepTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "exemptions.sweep_timeout",
			Message: "sweep timeout must be positive",
		})
	}

	return errs
}

// validateSaga validates planning parameters and chain overrides.
func validateSaga(cfg *SagaConfig) []FieldError {
	var errs []FieldError

	if cfg.Discount <= 0 || cfg.Discount > 1 {
		errs = append(errs, FieldError{
			Field:   "saga.discount",
			Message: "discount must be in (0, 1]",
		})
	}
	if cfg.Horizon < 0 {
		errs = append(errs, FieldError{
			Field:   "saga.horizon",
			Message: "horizon must be non-negative",
		})
	}
	if cfg.MaxHops < 0 {
		errs = append(errs, FieldError{
			Field:   "saga.max_hops",
			Message: "max hops must be non-negative",
		})
	}

	known := make(map[string]bool, len(saga.Kinds))
	for _, k := range saga.Kinds {
		known[string(k)] = true
	}
	names := make([]string, 0, len(cfg.Chains))
	for name := range cfg.Chains {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		prefix := "saga.chains." + name
		if !known[name] {
			errs = append(errs, FieldError{
				Field:   prefix,
				Message: fmt.Sprintf("unknown saga kind %q", name),
			})
			continue
		}
		if err := cfg.Chains[name].Validate(); err != nil {
			errs = append(errs, FieldError{
				Field:   prefix,
				Message: err.Error(),
			})
		}
	}

	return errs
}

// validateEvidence validates the decision log. A disabled log is not
// checked.
func validateEvidence(cfg *EvidenceConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "evidence.sqlite.path",
				Message: "path is required when backend is 'sqlite'",
			})
		}
		if cfg.SQLite.Driver != "sqlite" && cfg.SQLite.Driver != "sqlite3" {
			errs = append(errs, FieldError{
				Field:   "evidence.sqlite.driver",
				Message: fmt.Sprintf("invalid driver %q: must be 'sqlite' or 'sqlite3'", cfg.SQLite.Driver),
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "evidence.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'memory' or 'sqlite'", cfg.Backend),
		})
	}

	if cfg.AsyncBuffer < 0 {
		errs = append(errs, FieldError{
			Field:   "evidence.async_buffer",
			Message: "async buffer must be non-negative",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "evidence.write_timeout",
			Message: "write timeout must be positive",
		})
	}
	if cfg.Retention.Days < -1 {
		errs = append(errs, FieldError{
			Field:   "evidence.retention.days",
			Message: "retention days must be positive, or -1 to keep records forever",
		})
	}
	if cfg.Retention.MaxRecords < 0 {
		errs = append(errs, FieldError{
			Field:   "evidence.retention.max_records",
			Message: "max records must be non-negative",
		})
	}
	if _, err := cron.ParseStandard(cfg.Retention.Schedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "evidence.retention.schedule",
			Message: fmt.Sprintf("invalid schedule %q: %v", cfg.Retention.Schedule, err),
		})
	}

	return errs
}

// validateServer validates the HTTP listener configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.shutdown_timeout",
			Message: "shutdown timeout must be positive",
		})
	}
	if cfg.Auth.Enabled {
		errs = append(errs, validateAuth(&cfg.Auth)...)
	}
	if cfg.RateLimit.Enabled {
		errs = append(errs, validateRateLimitRule("server.rate_limit.default", cfg.RateLimit.Default)...)
		for actor, rule := range cfg.RateLimit.Actors {
			errs = append(errs, validateRateLimitRule(fmt.Sprintf("server.rate_limit.actors[%s]", actor), rule)...)
		}
	}

	return errs
}

func validateRateLimitRule(field string, rule RateLimitRule) []FieldError {
	var errs []FieldError
	for _, limit := range []struct {
		name  string
		value int
	}{
		{"requests_per_second", rule.RequestsPerSecond},
		{"requests_per_minute", rule.RequestsPerMinute},
		{"max_concurrent", rule.MaxConcurrent},
	} {
		if limit.value < 0 {
			errs = append(errs, FieldError{
				Field:   field + "." + limit.name,
				Message: "limit must not be negative",
			})
		}
	}
	return errs
}

// validateAuth validates API key authentication.
func validateAuth(cfg *AuthConfig) []FieldError {
	var errs []FieldError

	if len(cfg.Keys) == 0 {
		errs = append(errs, FieldError{
			Field:   "server.auth.keys",
			Message: "at least one key is required when auth is enabled",
		})
	}
	for i, k := range cfg.Keys {
		field := fmt.Sprintf("server.auth.keys[%d]", i)
		if (k.Key == "") == (k.KeyEnv == "") {
			errs = append(errs, FieldError{
				Field:   field,
				Message: "exactly one of key and key_env is required",
			})
		}
		if k.Actor == "" {
			errs = append(errs, FieldError{
				Field:   field + ".actor",
				Message: "actor is required",
			})
		}
	}
	for i, src := range cfg.Sources {
		field := fmt.Sprintf("server.auth.sources[%d]", i)
		if src.Type != "header" && src.Type != "query" {
			errs = append(errs, FieldError{
				Field:   field + ".type",
				Message: fmt.Sprintf("invalid source type %q: must be 'header' or 'query'", src.Type),
			})
		}
		if src.Name == "" {
			errs = append(errs, FieldError{
				Field:   field + ".name",
				Message: "name is required",
			})
		}
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if cfg.Logging.Level == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: "logging level is required",
		})
	} else if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if cfg.Logging.Format == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: "logging format is required",
		})
	} else if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	validSamplers := map[string]bool{"always": true, "never": true, "ratio": true, "parent_based": true}
	if !validSamplers[cfg.Tracing.Sampler] {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never', 'ratio', or 'parent_based'", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing endpoint is required when tracing is enabled",
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	if !strings.HasPrefix(cfg.Health.LivenessPath, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.health.liveness_path",
			Message: "liveness path must start with /",
		})
	}
	if !strings.HasPrefix(cfg.Health.ReadinessPath, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.health.readiness_path",
			Message: "readiness path must start with /",
		})
	}

	return errs
}
