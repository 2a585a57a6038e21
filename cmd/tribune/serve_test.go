package main

import (
	"strings"
	"testing"

	"mercator-hq/tribune/pkg/config"
)

func TestRunServe_DryRun(t *testing.T) {
	useTempStore(t)
	out := captureOutput(t)
	t.Setenv("TRIBUNE_POLICY_BUNDLE_PATH", "testdata/bundle.yaml")

	// Set flags
	serveFlags.dryRun = true
	serveFlags.listenAddress = ""
	defer func() { serveFlags.dryRun = false }()

	if err := runServe(nil, []string{}); err != nil {
		t.Fatalf("runServe() dry run error = %v", err)
	}
	if !strings.Contains(out.String(), "(3 policies, 1 policy sets, 1 exemptions)") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunServe_DryRunInvalidBundle(t *testing.T) {
	useTempStore(t)
	captureOutput(t)
	t.Setenv("TRIBUNE_POLICY_BUNDLE_PATH", "testdata/invalid.yaml")

	serveFlags.dryRun = true
	defer func() { serveFlags.dryRun = false }()

	if err := runServe(nil, []string{}); err == nil {
		t.Error("runServe() dry run with invalid bundle should return error")
	}
}

func TestWatchEnabled(t *testing.T) {
	tests := []struct {
		name   string
		policy config.PolicyConfig
		want   bool
	}{
		{"file without watch", config.PolicyConfig{Mode: "file"}, false},
		{"file with watch", config.PolicyConfig{Mode: "file", Watch: true}, true},
		{"git without polling", config.PolicyConfig{Mode: "git", Watch: true}, false},
		{"git with polling", config.PolicyConfig{Mode: "git", Git: config.GitConfig{Poll: config.GitPollConfig{Enabled: true}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := watchEnabled(&config.Config{Policy: tt.policy}); got != tt.want {
				t.Errorf("watchEnabled() = %v, want %v", got, tt.want)
			}
		})
	}
}
