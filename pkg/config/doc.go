// Package config provides configuration management for Tribune.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("tribune.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("tribune.yaml")
//
// Passing an empty path to LoadConfigWithEnvOverrides starts from Default().
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention TRIBUNE_SECTION_FIELD.
// For example:
//
//   - TRIBUNE_STORE_BACKEND overrides store.backend
//   - TRIBUNE_POLICY_GIT_AUTH_TOKEN overrides policy.git.auth.token
//   - TRIBUNE_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// Configuration values are applied in the following order (later overrides earlier):
//
//  1. Values from YAML file
//  2. Default values for anything left unset
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Process Configuration
//
// The CLI installs the configuration it loaded with SetConfig; GetConfig
// returns it. Components take *Config explicitly, and tests build their own.
//
// # Example Configuration
//
//	store:
//	  backend: sqlite
//	  sqlite:
//	    path: data/events.db
//	    driver: sqlite
//
//	policy:
//	  mode: file
//	  bundle_path: ./policies
//	  watch: true
//
//	exemptions:
//	  expiry_schedule: "*/5 * * * *"
//
//	saga:
//	  discount: 0.9
//	  chains:
//	    approval:
//	      transitions:
//	        - {from: draft, to: under_review, probability: 0.95}
//
//	server:
//	  listen_address: 0.0.0.0:9090
//	  auth:
//	    enabled: true
//	    keys:
//	      - {key_env: TRIBUNE_CI_KEY, actor: ci-pipeline}
//	  rate_limit:
//	    enabled: true
//	    default: {requests_per_second: 20, max_concurrent: 10}
//
//	evidence:
//	  enabled: true
//	  sqlite:
//	    path: data/decisions.db
//	  redact_fields: [subject_dn]
//	  retention:
//	    days: 90
//	    schedule: "0 3 * * *"
//
//	telemetry:
//	  logging:
//	    level: info
//	    format: json
//	  metrics:
//	    enabled: true
package config
