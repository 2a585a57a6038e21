// Package metrics exposes Prometheus metrics for tribune.
//
// A single Collector implements the recorder hooks of the evaluator, the
// conflict detector, the saga runner, the event store, the policy manager
// and the exemption expiry sweeper:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	evaluator := engine.NewEvaluator(engine.WithRecorder(collector))
//	store, err := eventstore.New(storeCfg, eventstore.WithRecorder(collector))
//	mgr := manager.NewManager(src, manager.WithRecorder(collector))
//
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// # Metrics
//
// Policy evaluation:
//   - tribune_policy_evaluations_total{policy_id, outcome}
//   - tribune_policy_evaluation_duration_seconds{policy_id}
//   - tribune_policy_rule_results_total{policy_id, rule_id, result}
//   - tribune_policy_evaluation_errors_total{policy_id, reason}
//   - tribune_policy_conflicts_total{type}
//
// Lifecycle:
//   - tribune_saga_transitions_total{kind, from, to}
//   - tribune_eventstore_operations_total{backend, operation, result}
//   - tribune_eventstore_events_total{backend, operation}
//   - tribune_catalog_reloads_total{result}
//   - tribune_catalog_entries{kind}
//   - tribune_exemption_sweeps_total{result}
//   - tribune_exemptions_expired_total
//   - tribune_exemption_sweep_conflicts_total
//
// # Cardinality
//
// Policy and rule ids come from user-authored bundles. After
// DefaultMaxCardinality distinct values the collector reports new ones under
// the "other" label.
package metrics
