package cli

import (
	"errors"
	"fmt"
	"testing"
)

func TestConfigError(t *testing.T) {
	tests := []struct {
		name string
		err  *ConfigError
		want string
	}{
		{"with field", NewConfigError("--strategy", "unknown strategy"), "config error in --strategy: unknown strategy"},
		{"without field", NewConfigError("", "missing bundle"), "config error: missing bundle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCommandError_Unwrap(t *testing.T) {
	base := errors.New("bundle not found")
	err := NewCommandError("evaluate", base)

	if !errors.Is(err, base) {
		t.Error("errors.Is() = false for wrapped error")
	}
	if err.Error() != "command evaluate failed: bundle not found" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain", errors.New("boom"), ExitFailure},
		{"config", NewConfigError("--format", "bad"), ExitUsage},
		{"non compliant", NonCompliant("%d rules failed", 2), ExitNonCompliant},
		{"wrapped", fmt.Errorf("evaluate: %w", NonCompliant("failed")), ExitNonCompliant},
		{"command wrapping config", NewCommandError("lint", NewConfigError("", "x")), ExitUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
