package config

import "sync/atomic"

// current is the process-wide configuration installed by the CLI after
// loading.
var current atomic.Pointer[Config]

// SetConfig installs cfg as the process-wide configuration. Commands call
// it once their configuration has loaded and validated.
func SetConfig(cfg *Config) {
	current.Store(cfg)
}

// GetConfig returns the process-wide configuration, or nil before
// SetConfig. Prefer passing *Config explicitly; this exists for code that
// is far from the command that loaded it.
func GetConfig() *Config {
	return current.Load()
}

// MustGetConfig is GetConfig for code that runs only after a command has
// loaded its configuration. It panics otherwise.
func MustGetConfig() *Config {
	cfg := current.Load()
	if cfg == nil {
		panic("config: no configuration loaded")
	}
	return cfg
}
