package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mercator-hq/tribune/pkg/config"
	"mercator-hq/tribune/pkg/eventstore"
	"mercator-hq/tribune/pkg/exemption/expiry"
	"mercator-hq/tribune/pkg/policy/conflict"
	"mercator-hq/tribune/pkg/policy/domain"
	"mercator-hq/tribune/pkg/policy/engine"
	"mercator-hq/tribune/pkg/policy/manager"
	"mercator-hq/tribune/pkg/saga"
)

// DefaultMaxCardinality bounds the number of distinct policy and rule label
// values tracked before new ones collapse into OverflowLabel.
const DefaultMaxCardinality = 10000

// OverflowLabel replaces label values past the cardinality limit.
const OverflowLabel = "other"

// Compile-time checks that the collector serves every recorder hook.
var (
	_ engine.Recorder     = (*Collector)(nil)
	_ conflict.Recorder   = (*Collector)(nil)
	_ saga.Recorder       = (*Collector)(nil)
	_ eventstore.Recorder = (*Collector)(nil)
	_ manager.Recorder    = (*Collector)(nil)
	_ expiry.Recorder     = (*Collector)(nil)
)

// Collector owns every Prometheus metric in the process. It implements the
// Recorder interfaces of the engine, conflict detector, saga runner, event
// store, policy manager and expiry sweeper, so a single collector can be
// passed to each of them.
//
// When the configuration disables metrics every Record method is a no-op.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	policyMetrics    *PolicyMetrics
	lifecycleMetrics *LifecycleMetrics

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a collector and registers its metrics. If registry is
// nil a fresh registry is created; Go runtime and process collectors are
// added to it.
//
// Example:
//
//	cfg := &config.MetricsConfig{Enabled: true, Namespace: "tribune"}
//	collector := metrics.NewCollector(cfg, nil)
//	evaluator := engine.NewEvaluator(engine.WithRecorder(collector))
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if len(cfg.EvaluationBuckets) == 0 {
		cfg.EvaluationBuckets = append([]float64(nil), config.DefaultEvaluationBuckets...)
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		policyMetrics:      NewPolicyMetrics(cfg, registry),
		lifecycleMetrics:   NewLifecycleMetrics(cfg, registry),
		cardinalityLimiter: NewCardinalityLimiter(DefaultMaxCardinality),
	}
}

// RecordEvaluation records a completed policy evaluation.
func (c *Collector) RecordEvaluation(policyID string, outcome domain.Outcome, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.policyMetrics.RecordEvaluation(c.limit("policy", policyID), string(outcome), duration)
}

// RecordRule records whether a single rule passed.
func (c *Collector) RecordRule(policyID, ruleID string, passed bool) {
	if !c.config.Enabled {
		return
	}
	policyID = c.limit("policy", policyID)
	if policyID == OverflowLabel {
		ruleID = OverflowLabel
	} else {
		ruleID = c.limit("rule", policyID+"/"+ruleID, ruleID)
	}
	c.policyMetrics.RecordRule(policyID, ruleID, passed)
}

// RecordEvaluationError records an evaluation aborted by an error.
func (c *Collector) RecordEvaluationError(policyID, reason string) {
	if !c.config.Enabled {
		return
	}
	c.policyMetrics.RecordError(c.limit("policy", policyID), reason)
}

// RecordConflict records a conflict found between two policies.
func (c *Collector) RecordConflict(conflictType domain.ConflictType) {
	if !c.config.Enabled {
		return
	}
	c.policyMetrics.RecordConflict(string(conflictType))
}

// RecordSagaTransition records a saga moving between states.
func (c *Collector) RecordSagaTransition(kind saga.Kind, from, to saga.State) {
	if !c.config.Enabled {
		return
	}
	c.lifecycleMetrics.RecordSagaTransition(string(kind), string(from), string(to))
}

// RecordAppend records an event store append.
func (c *Collector) RecordAppend(backend string, events int, err error) {
	if !c.config.Enabled {
		return
	}
	c.lifecycleMetrics.RecordStoreOperation(backend, "append", events, err)
}

// RecordLoad records an event store load.
func (c *Collector) RecordLoad(backend string, events int, err error) {
	if !c.config.Enabled {
		return
	}
	c.lifecycleMetrics.RecordStoreOperation(backend, "load", events, err)
}

// RecordReload records a policy bundle reload.
func (c *Collector) RecordReload(stats manager.CatalogStats, err error) {
	if !c.config.Enabled {
		return
	}
	c.lifecycleMetrics.RecordReload(stats.Policies, stats.Sets, stats.Exemptions, err)
}

// RecordSweep records an exemption expiry sweep.
func (c *Collector) RecordSweep(result *expiry.Result, err error) {
	if !c.config.Enabled {
		return
	}
	var expired, conflicts int
	if result != nil {
		expired, conflicts = len(result.Expired), result.Conflicts
	}
	c.lifecycleMetrics.RecordSweep(expired, conflicts, err)
}

// RecordDecisionWrite records a decision log write.
func (c *Collector) RecordDecisionWrite(err error) {
	if !c.config.Enabled {
		return
	}
	c.lifecycleMetrics.RecordDecisionWrite(err)
}

// RecordPrune records a decision log retention run.
func (c *Collector) RecordPrune(deleted int64, err error) {
	if !c.config.Enabled {
		return
	}
	c.lifecycleMetrics.RecordPrune(deleted, err)
}

// RecordRateLimited records an API request rejected by rate limiting.
func (c *Collector) RecordRateLimited(reason string) {
	if !c.config.Enabled {
		return
	}
	c.lifecycleMetrics.RecordRateLimited(reason)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// limit returns value, or OverflowLabel once the limiter is full. The
// optional label overrides the returned value while key identifies the
// label set.
func (c *Collector) limit(kind, key string, label ...string) string {
	if !c.cardinalityLimiter.Allow(kind + ":" + key) {
		return OverflowLabel
	}
	if len(label) > 0 {
		return label[0]
	}
	return key
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations per metric.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether a label set may be used. Label sets already seen are
// always allowed; new ones are allowed until the limit is reached.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
