package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/tribune/pkg/cli"
	"mercator-hq/tribune/pkg/config"
	"mercator-hq/tribune/pkg/eventstore"
	"mercator-hq/tribune/pkg/policy/parser"
	"mercator-hq/tribune/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile string
	verbose bool

	// stdout receives command results. Tests replace it.
	stdout io.Writer = os.Stdout
)

var rootCmd = &cobra.Command{
	Use:   "tribune",
	Short: "Tribune - event-sourced policy governance",
	Long: `Tribune is a policy governance engine built on an append-only event log.

It provides:
  - Policy bundles in YAML with templates, policy sets and exemptions
  - Rule evaluation with exemptions and set composition
  - Conflict detection and resolution between policies
  - Event-sourced lifecycle for policies, sets and exemptions
  - Scheduled exemption expiry and hot-reloaded bundles`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with the code of its result.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults and TRIBUNE_* variables when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig loads the configuration named by --config and installs the
// logger it describes.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	if _, err := logging.Setup(cfg.Telemetry.Logging, logging.Options{}); err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	config.SetConfig(cfg)
	return cfg, nil
}

// openStore opens the event store selected by cfg.
func openStore(cfg *config.Config, opts ...eventstore.Option) (eventstore.Store, error) {
	store, err := eventstore.New(storeConfig(cfg.Store), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open event store: %w", err)
	}
	return store, nil
}

func storeConfig(cfg config.StoreConfig) eventstore.Config {
	return eventstore.Config{
		Backend: cfg.Backend,
		SQLite: eventstore.SQLiteConfig{
			Path:        cfg.SQLite.Path,
			Driver:      cfg.SQLite.Driver,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		},
	}
}

// parseBundle parses a bundle file or directory.
func parseBundle(path string) (*parser.Bundle, error) {
	if path == "" {
		return nil, cli.NewConfigError("--bundle", "a bundle file or directory is required")
	}
	return parser.NewParser().WithLogger(slog.Default()).Parse(path)
}

// printResult writes data to stdout in the named format.
func printResult(format string, data any) error {
	formatter, err := cli.NewFormatter(cli.OutputFormat(format))
	if err != nil {
		return err
	}
	return formatter.FormatTo(stdout, data)
}
