package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/tribune/pkg/policy/engine"
	"mercator-hq/tribune/pkg/policy/parser"
	"mercator-hq/tribune/pkg/policy/source"
)

// DefaultPollSchedule is the git polling schedule used when none is set.
const DefaultPollSchedule = "@every 30s"

// ReloadFunc is called with every snapshot the manager installs.
type ReloadFunc func(snap *Snapshot)

// Recorder receives reload outcomes. The metrics collector implements it.
type Recorder interface {
	RecordReload(stats CatalogStats, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordReload(CatalogStats, error) {}

// Stats describes the manager's load history.
type Stats struct {
	Catalog   CatalogStats
	Reloads   int64
	Failures  int64
	LastLoad  time.Time
	LastError error
	Watching  bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock sets the clock used to stamp snapshots.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithDebounce sets the file watcher quiet period.
func WithDebounce(interval time.Duration) Option {
	return func(m *Manager) { m.debounce = interval }
}

// WithPollSchedule sets the cron schedule used to poll git sources.
func WithPollSchedule(schedule string) Option {
	return func(m *Manager) { m.pollSchedule = schedule }
}

// WithRecorder sets the reload recorder.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// Manager loads bundles from a source into a Catalog and keeps them current.
type Manager struct {
	source       source.Source
	catalog      *Catalog
	logger       *slog.Logger
	clock        func() time.Time
	debounce     time.Duration
	pollSchedule string
	recorder     Recorder

	mu        sync.Mutex
	listeners []ReloadFunc
	reloads   int64
	failures  int64
	lastLoad  time.Time
	lastErr   error

	watchMu  sync.Mutex
	watching bool
	watcher  *FileWatcher
	poller   *source.Poller
	stopCh   chan struct{}
}

// NewManager creates a manager reading from src.
func NewManager(src source.Source, opts ...Option) *Manager {
	m := &Manager{
		source:       src,
		catalog:      NewCatalog(),
		logger:       slog.Default().With("component", "policy.manager"),
		clock:        time.Now,
		debounce:     DefaultDebounceInterval,
		pollSchedule: DefaultPollSchedule,
		recorder:     nopRecorder{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Catalog returns the catalog the manager installs into.
func (m *Manager) Catalog() *Catalog { return m.catalog }

// OnReload registers fn to run after every successful load. Listeners run in
// registration order on the goroutine that performed the load.
func (m *Manager) OnReload(fn ReloadFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Load loads the bundle from the source and installs it.
func (m *Manager) Load(ctx context.Context) (*Snapshot, error) {
	bundle, err := m.source.Load(ctx)
	if err != nil {
		rerr := &ReloadError{Source: m.source.Describe(), Err: err}
		m.fail(rerr)
		return nil, rerr
	}
	return m.install(bundle)
}

// Reload is Load for callers that only need the outcome. On failure the
// previous snapshot stays active.
func (m *Manager) Reload(ctx context.Context) error {
	_, err := m.Load(ctx)
	return err
}

// DryRun loads and fingerprints the bundle without installing it.
func (m *Manager) DryRun(ctx context.Context) (*Snapshot, error) {
	bundle, err := m.source.Load(ctx)
	if err != nil {
		return nil, &ReloadError{Source: m.source.Describe(), Err: err}
	}
	return &Snapshot{
		Bundle:   bundle,
		Version:  Fingerprint(bundle),
		LoadedAt: m.clock(),
		Source:   m.source.Describe(),
	}, nil
}

func (m *Manager) install(bundle *parser.Bundle) (*Snapshot, error) {
	previous := m.catalog.Version()
	snap, err := m.catalog.Replace(bundle, m.source.Describe(), m.clock())
	if err != nil {
		m.fail(err)
		return nil, err
	}

	m.mu.Lock()
	m.reloads++
	m.lastLoad = snap.LoadedAt
	m.lastErr = nil
	listeners := append([]ReloadFunc(nil), m.listeners...)
	m.mu.Unlock()

	stats := m.catalog.Stats()
	m.recorder.RecordReload(stats, nil)
	if previous == snap.Version {
		m.logger.Debug("bundle unchanged", "version", snap.Version)
	} else {
		m.logger.Info("bundle installed",
			"version", snap.Version,
			"previous", previous,
			"policies", stats.Policies,
			"policy_sets", stats.Sets,
			"exemptions", stats.Exemptions,
		)
	}

	for _, fn := range listeners {
		fn(snap)
	}
	return snap, nil
}

func (m *Manager) fail(err error) {
	m.mu.Lock()
	m.failures++
	m.lastErr = err
	m.mu.Unlock()

	m.recorder.RecordReload(m.catalog.Stats(), err)
	if m.catalog.Snapshot() != nil {
		m.logger.Error("reload failed, keeping current bundle", "version", m.catalog.Version(), "error", err)
	} else {
		m.logger.Error("bundle load failed", "error", err)
	}
}

// Watch keeps the catalog current until ctx is cancelled or Close is called.
// The bundle should be loaded first; a git source must be cloned.
func (m *Manager) Watch(ctx context.Context) error {
	m.watchMu.Lock()
	if m.watching {
		m.watchMu.Unlock()
		return ErrWatchActive
	}

	switch src := m.source.(type) {
	case *source.FileSource:
		watcher, err := NewFileWatcher(&FileWatcherConfig{
			Path:             src.Path(),
			DebounceInterval: m.debounce,
			SkipHidden:       true,
		}, m.logger.With("path", src.Path()))
		if err != nil {
			m.watchMu.Unlock()
			return err
		}
		m.watcher = watcher
		m.watching = true
		m.watchMu.Unlock()

		defer m.endWatch()
		defer func() { _ = watcher.Stop() }()
		return watcher.Watch(ctx, func() error { return m.Reload(ctx) })

	case *source.GitSource:
		poller := source.NewPoller(src, m.pollSchedule, func(_ context.Context, bundle *parser.Bundle) error {
			_, err := m.install(bundle)
			return err
		})
		if err := poller.Start(ctx); err != nil {
			m.watchMu.Unlock()
			return fmt.Errorf("failed to start git poller: %w", err)
		}
		stopCh := make(chan struct{})
		m.poller = poller
		m.stopCh = stopCh
		m.watching = true
		m.watchMu.Unlock()

		defer m.endWatch()
		select {
		case <-ctx.Done():
		case <-stopCh:
		}
		poller.Stop()
		return nil

	default:
		m.watchMu.Unlock()
		return fmt.Errorf("%w: %s", ErrWatchUnsupported, m.source.Describe())
	}
}

func (m *Manager) endWatch() {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	m.watching = false
}

// Close stops any active watch.
func (m *Manager) Close() error {
	m.watchMu.Lock()
	watcher, poller, stopCh := m.watcher, m.poller, m.stopCh
	m.watcher, m.poller, m.stopCh = nil, nil, nil
	m.watchMu.Unlock()

	if poller != nil {
		poller.Stop()
		close(stopCh)
	}
	if watcher != nil {
		return watcher.Stop()
	}
	return nil
}

// Stats returns the load history and the current catalog summary.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	stats := Stats{
		Reloads:   m.reloads,
		Failures:  m.failures,
		LastLoad:  m.lastLoad,
		LastError: m.lastErr,
	}
	m.mu.Unlock()

	m.watchMu.Lock()
	stats.Watching = m.watching
	m.watchMu.Unlock()

	stats.Catalog = m.catalog.Stats()
	return stats
}

// Ready reports whether a bundle is installed. It satisfies the readiness
// check signature used by the health package.
func (m *Manager) Ready(context.Context) error {
	if m.catalog.Snapshot() == nil {
		return ErrNotLoaded
	}
	return nil
}

// SyncExemptions returns a listener that replaces e's exemptions with the
// ones of each installed bundle.
func SyncExemptions(e *engine.Evaluator) ReloadFunc {
	return func(snap *Snapshot) {
		e.ReplaceExemptions(snap.Bundle.Exemptions...)
	}
}
