package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/tribune/pkg/config"
)

// PolicyMetrics tracks policy evaluation and conflict detection.
//
// Metrics:
//   - tribune_policy_evaluations_total: evaluations by policy and outcome
//   - tribune_policy_evaluation_duration_seconds: evaluation duration
//   - tribune_policy_rule_results_total: rule outcomes by policy, rule and result
//   - tribune_policy_evaluation_errors_total: evaluations aborted by an error
//   - tribune_policy_conflicts_total: detected conflicts by type
type PolicyMetrics struct {
	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	ruleResultsTotal   *prometheus.CounterVec
	errorsTotal        *prometheus.CounterVec
	conflictsTotal     *prometheus.CounterVec
}

// NewPolicyMetrics creates and registers policy metrics with the provided registry.
func NewPolicyMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *PolicyMetrics {
	buckets := cfg.EvaluationBuckets
	if len(buckets) == 0 {
		buckets = config.DefaultEvaluationBuckets
	}

	pm := &PolicyMetrics{
		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_evaluations_total",
				Help:      "Total number of policy evaluations",
			},
			[]string{"policy_id", "outcome"},
		),

		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_evaluation_duration_seconds",
				Help:      "Duration of policy evaluation in seconds",
				Buckets:   buckets,
			},
			[]string{"policy_id"},
		),

		ruleResultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_rule_results_total",
				Help:      "Total number of rule evaluations by result",
			},
			[]string{"policy_id", "rule_id", "result"},
		),

		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_evaluation_errors_total",
				Help:      "Total number of evaluations aborted by an error",
			},
			[]string{"policy_id", "reason"},
		),

		conflictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_conflicts_total",
				Help:      "Total number of detected policy conflicts",
			},
			[]string{"type"},
		),
	}

	registry.MustRegister(
		pm.evaluationsTotal,
		pm.evaluationDuration,
		pm.ruleResultsTotal,
		pm.errorsTotal,
		pm.conflictsTotal,
	)

	return pm
}

// RecordEvaluation records a completed evaluation.
func (pm *PolicyMetrics) RecordEvaluation(policyID, outcome string, duration time.Duration) {
	pm.evaluationsTotal.WithLabelValues(policyID, outcome).Inc()
	pm.evaluationDuration.WithLabelValues(policyID).Observe(duration.Seconds())
}

// RecordRule records one rule result.
func (pm *PolicyMetrics) RecordRule(policyID, ruleID string, passed bool) {
	result := "failed"
	if passed {
		result = "passed"
	}
	pm.ruleResultsTotal.WithLabelValues(policyID, ruleID, result).Inc()
}

// RecordError records an aborted evaluation.
func (pm *PolicyMetrics) RecordError(policyID, reason string) {
	pm.errorsTotal.WithLabelValues(policyID, reason).Inc()
}

// RecordConflict records a detected conflict.
func (pm *PolicyMetrics) RecordConflict(conflictType string) {
	pm.conflictsTotal.WithLabelValues(conflictType).Inc()
}
