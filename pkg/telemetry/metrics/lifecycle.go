package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/tribune/pkg/config"
)

// LifecycleMetrics tracks sagas, the event store, the policy catalog and
// exemption expiry.
//
// Metrics:
//   - tribune_saga_transitions_total: saga state changes by kind, from and to
//   - tribune_eventstore_operations_total: appends and loads by backend and result
//   - tribune_eventstore_events_total: events appended or loaded by backend
//   - tribune_catalog_reloads_total: bundle reloads by result
//   - tribune_catalog_entries: entries in the active bundle by kind
//   - tribune_exemption_sweeps_total: expiry sweeps by result
//   - tribune_exemptions_expired_total: exemptions expired by the sweeper
//   - tribune_exemption_sweep_conflicts_total: exemptions skipped on a sequence conflict
//   - tribune_decisions_recorded_total: decision log writes by result
//   - tribune_decision_prunes_total: retention runs by result
//   - tribune_decisions_pruned_total: decision records removed by retention
type LifecycleMetrics struct {
	sagaTransitions *prometheus.CounterVec
	storeOperations *prometheus.CounterVec
	storeEvents     *prometheus.CounterVec
	catalogReloads  *prometheus.CounterVec
	catalogEntries  *prometheus.GaugeVec
	sweepsTotal     *prometheus.CounterVec
	expiredTotal    prometheus.Counter
	sweepConflicts  prometheus.Counter
	decisionWrites  *prometheus.CounterVec
	prunesTotal     *prometheus.CounterVec
	prunedTotal     prometheus.Counter
	rateLimited     *prometheus.CounterVec
}

// NewLifecycleMetrics creates and registers lifecycle metrics with the
// provided registry.
func NewLifecycleMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *LifecycleMetrics {
	lm := &LifecycleMetrics{
		sagaTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "saga_transitions_total",
				Help:      "Total number of saga state transitions",
			},
			[]string{"kind", "from", "to"},
		),

		storeOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "eventstore_operations_total",
				Help:      "Total number of event store operations",
			},
			[]string{"backend", "operation", "result"},
		),

		storeEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "eventstore_events_total",
				Help:      "Total number of events appended or loaded",
			},
			[]string{"backend", "operation"},
		),

		catalogReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "catalog_reloads_total",
				Help:      "Total number of policy bundle reloads",
			},
			[]string{"result"},
		),

		catalogEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "catalog_entries",
				Help:      "Number of entries in the active policy bundle",
			},
			[]string{"kind"},
		),

		sweepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "exemption_sweeps_total",
				Help:      "Total number of exemption expiry sweeps",
			},
			[]string{"result"},
		),

		expiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "exemptions_expired_total",
				Help:      "Total number of exemptions expired by the sweeper",
			},
		),

		sweepConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "exemption_sweep_conflicts_total",
				Help:      "Total number of exemptions skipped because they changed during a sweep",
			},
		),

		decisionWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decisions_recorded_total",
				Help:      "Total number of decision log writes",
			},
			[]string{"result"},
		),

		prunesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decision_prunes_total",
				Help:      "Total number of decision log retention runs",
			},
			[]string{"result"},
		),

		prunedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decisions_pruned_total",
				Help:      "Total number of decision records removed by retention",
			},
		),

		rateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "api_rate_limited_total",
				Help:      "Total number of API requests rejected by rate limiting",
			},
			[]string{"reason"},
		),
	}

	registry.MustRegister(
		lm.sagaTransitions,
		lm.storeOperations,
		lm.storeEvents,
		lm.catalogReloads,
		lm.catalogEntries,
		lm.sweepsTotal,
		lm.expiredTotal,
		lm.sweepConflicts,
		lm.decisionWrites,
		lm.prunesTotal,
		lm.prunedTotal,
		lm.rateLimited,
	)

	return lm
}

// RecordSagaTransition records a saga state change.
func (lm *LifecycleMetrics) RecordSagaTransition(kind, from, to string) {
	lm.sagaTransitions.WithLabelValues(kind, from, to).Inc()
}

// RecordStoreOperation records an event store append or load.
func (lm *LifecycleMetrics) RecordStoreOperation(backend, operation string, events int, err error) {
	lm.storeOperations.WithLabelValues(backend, operation, result(err)).Inc()
	if err == nil {
		lm.storeEvents.WithLabelValues(backend, operation).Add(float64(events))
	}
}

// RecordReload records a bundle reload and, on success, the bundle size.
func (lm *LifecycleMetrics) RecordReload(policies, sets, exemptions int, err error) {
	lm.catalogReloads.WithLabelValues(result(err)).Inc()
	if err != nil {
		return
	}
	lm.catalogEntries.WithLabelValues("policy").Set(float64(policies))
	lm.catalogEntries.WithLabelValues("policy_set").Set(float64(sets))
	lm.catalogEntries.WithLabelValues("exemption").Set(float64(exemptions))
}

// RecordSweep records an expiry sweep.
func (lm *LifecycleMetrics) RecordSweep(expired, conflicts int, err error) {
	lm.sweepsTotal.WithLabelValues(result(err)).Inc()
	lm.expiredTotal.Add(float64(expired))
	lm.sweepConflicts.Add(float64(conflicts))
}

// RecordDecisionWrite records a decision log write. A dropped record counts
// as an error.
func (lm *LifecycleMetrics) RecordDecisionWrite(err error) {
	lm.decisionWrites.WithLabelValues(result(err)).Inc()
}

// RecordPrune records a retention run.
func (lm *LifecycleMetrics) RecordPrune(deleted int64, err error) {
	lm.prunesTotal.WithLabelValues(result(err)).Inc()
	lm.prunedTotal.Add(float64(deleted))
}

// RecordRateLimited records an API request rejected by rate limiting.
func (lm *LifecycleMetrics) RecordRateLimited(reason string) {
	lm.rateLimited.WithLabelValues(reason).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
