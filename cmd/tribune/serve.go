package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/tribune/pkg/cli"
	"mercator-hq/tribune/pkg/config"
	"mercator-hq/tribune/pkg/eventstore"
	"mercator-hq/tribune/pkg/evidence"
	"mercator-hq/tribune/pkg/evidence/recorder"
	"mercator-hq/tribune/pkg/evidence/retention"
	"mercator-hq/tribune/pkg/exemption/expiry"
	"mercator-hq/tribune/pkg/policy/conflict"
	"mercator-hq/tribune/pkg/policy/domain"
	"mercator-hq/tribune/pkg/policy/engine"
	"mercator-hq/tribune/pkg/policy/event"
	"mercator-hq/tribune/pkg/policy/manager"
	"mercator-hq/tribune/pkg/policy/parser"
	"mercator-hq/tribune/pkg/policy/source"
	"mercator-hq/tribune/pkg/repository"
	"mercator-hq/tribune/pkg/security/auth"
	"mercator-hq/tribune/pkg/security/ratelimit"
	"mercator-hq/tribune/pkg/server"
	"mercator-hq/tribune/pkg/telemetry/health"
	"mercator-hq/tribune/pkg/telemetry/metrics"
	"mercator-hq/tribune/pkg/telemetry/tracing"
)

var serveFlags struct {
	listenAddress string
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve metrics, health and the evaluation API",
	Long: `Start the Tribune server with the specified configuration.

The server loads the policy bundle into the catalog and keeps it current
(file watching or git polling), runs the exemption expiry sweep on schedule,
and exposes:
  - /metrics           Prometheus metrics
  - /healthz, /readyz  liveness and readiness probes
  - /version           build information
  - /v1/catalog        the loaded bundle
  - /v1/evaluate       evaluate a context against the loaded policies
  - /v1/decisions      query the decision log (when evidence.enabled)

Examples:
  # Start with a config file
  tribune serve --config /etc/tribune/config.yaml

  # Override listen address
  tribune serve --listen 0.0.0.0:9090

  # Validate config and bundle without starting the server
  tribune serve --dry-run`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config and bundle without starting the server")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveFlags.listenAddress != "" {
		cfg.Server.ListenAddress = serveFlags.listenAddress
	}

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	src, err := source.New(&cfg.Policy, parser.NewParser().WithMaxFileSize(cfg.Policy.MaxFileSize))
	if err != nil {
		return cli.NewConfigError("policy", err.Error())
	}

	if serveFlags.dryRun {
		mgr := manager.NewManager(src)
		snap, err := mgr.DryRun(ctx)
		if err != nil {
			return cli.NewCommandError("serve", err)
		}
		fmt.Fprintf(stdout, "✓ Configuration valid\n✓ Bundle %s valid (%d policies, %d policy sets, %d exemptions)\n",
			snap.Version, len(snap.Bundle.Policies), len(snap.Bundle.Sets), len(snap.Bundle.Exemptions))
		return nil
	}

	return serve(ctx, cfg, src)
}

func serve(ctx context.Context, cfg *config.Config, src source.Source) error {
	logger := slog.Default()

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	tracer, err := tracing.New(ctx, &cfg.Telemetry.Tracing, tracing.WithServiceVersion(Version))
	if err != nil {
		return cli.NewConfigError("telemetry.tracing", err.Error())
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	store, err := openStore(cfg, eventstore.WithRecorder(collector))
	if err != nil {
		return cli.NewCommandError("serve", err)
	}
	defer store.Close()

	evaluator := engine.NewEvaluator(engine.WithRecorder(collector))
	resolver := conflict.NewResolver(domain.ResolveMostRestrictive, conflict.WithRecorder(collector))

	mgr := manager.NewManager(src,
		manager.WithRecorder(collector),
		manager.WithDebounce(cfg.Policy.DebounceInterval),
		manager.WithPollSchedule(cfg.Policy.Git.Poll.Schedule),
	)
	defer mgr.Close()
	mgr.OnReload(manager.SyncExemptions(evaluator))
	mgr.OnReload(func(snap *manager.Snapshot) {
		if conflicts := resolver.DetectConflicts(snap.Bundle.Policies); len(conflicts) > 0 {
			logger.Warn("loaded bundle has conflicting policies",
				"version", snap.Version,
				"conflicts", len(conflicts),
			)
		}
	})

	if _, err := mgr.Load(ctx); err != nil {
		// Readiness reports the missing bundle; a watch can still recover.
		logger.Error("initial bundle load failed", "error", err)
	}
	if watchEnabled(cfg) {
		go func() {
			if err := mgr.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("bundle watch stopped", "error", err)
			}
		}()
	}

	sweeper := expiry.NewSweeper(repository.NewExemptionRepository(store), expiry.WithRecorder(collector))
	scheduler := expiry.NewScheduler(sweeper, cfg.Exemptions.ExpirySchedule, cfg.Exemptions.SweepTimeout)
	if err := scheduler.Start(ctx); err != nil {
		return cli.NewConfigError("exemptions.expiry_schedule", err.Error())
	}
	defer scheduler.Stop()

	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
	checker.RegisterCheck("catalog", mgr.Ready)
	checker.RegisterCheck("eventstore", func(ctx context.Context) error {
		_, err := store.AggregateIDs(ctx, event.AggregatePolicy)
		return err
	})

	api := server.NewAPI(mgr.Catalog(), evaluator)
	if cfg.Evidence.Enabled {
		decisions, err := openDecisionLog(cfg)
		if err != nil {
			return cli.NewCommandError("serve", err)
		}
		defer decisions.Close()

		// Closes before the store so queued records drain first.
		rec := recorder.NewRecorder(decisions, recorderConfig(cfg.Evidence), recorder.WithMetrics(collector))
		defer rec.Close()
		api.WithDecisions(rec, decisions)

		pruner := retention.NewPruner(decisions, retentionConfig(cfg.Evidence.Retention), retention.WithMetrics(collector))
		pruning := retention.NewScheduler(pruner)
		if err := pruning.Start(ctx); err != nil {
			return cli.NewConfigError("evidence.retention.schedule", err.Error())
		}
		defer pruning.Stop()

		checker.RegisterCheck("decisions", func(ctx context.Context) error {
			_, err := decisions.Query(ctx, &evidence.Query{Limit: 1})
			return err
		})
	}

	var opts []server.Option
	if cfg.Telemetry.Metrics.Enabled {
		opts = append(opts, server.WithMetrics(cfg.Telemetry.Metrics.Path, collector.Handler()))
	}
	opts = append(opts,
		server.WithHealth(checker, cfg.Telemetry.Health, buildInfo()),
		server.WithAPI(api),
		server.WithMiddleware(tracer.HTTPMiddleware),
	)
	if cfg.Server.Auth.Enabled {
		keys, err := auth.NewKeyValidatorFromConfig(cfg.Server.Auth, os.LookupEnv)
		if err != nil {
			return cli.NewConfigError("server.auth", err.Error())
		}
		opts = append(opts, server.WithAPIMiddleware(auth.NewMiddleware(keys, cfg.Server.Auth.Sources).Handle))
		logger.Info("api key authentication enabled", "keys", keys.Len())
	}
	if cfg.Server.RateLimit.Enabled {
		// Added after auth so limits apply per authenticated actor.
		limiter := ratelimit.NewMiddleware(ratelimit.NewRegistry(cfg.Server.RateLimit), ratelimit.WithMetrics(collector))
		opts = append(opts, server.WithAPIMiddleware(limiter.Handle))
	}

	stats := mgr.Catalog().Stats()
	logger.Info("tribune starting",
		"version", Version,
		"listen", cfg.Server.ListenAddress,
		"store", cfg.Store.Backend,
		"policy_source", src.Describe(),
		"policies", stats.Policies,
		"metrics", cfg.Telemetry.Metrics.Enabled,
		"tracing", tracer.Enabled(),
		"auth", cfg.Server.Auth.Enabled,
		"rate_limit", cfg.Server.RateLimit.Enabled,
		"decision_log", cfg.Evidence.Enabled,
	)
	return server.NewServer(&cfg.Server, opts...).Start(ctx)
}

func watchEnabled(cfg *config.Config) bool {
	if cfg.Policy.Mode == "git" {
		return cfg.Policy.Git.Poll.Enabled
	}
	return cfg.Policy.Watch
}
