package retention

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"mercator-hq/tribune/pkg/evidence"
	"mercator-hq/tribune/pkg/evidence/export"
)

// Config contains retention settings. Days or MaxRecords at or below zero
// disables that limit.
type Config struct {
	// Days is how long records are kept, by evaluation time.
	Days int

	// MaxRecords caps the number of records; the oldest go first.
	MaxRecords int64

	// Schedule is a standard 5-field cron expression. Empty disables
	// scheduled pruning.
	Schedule string

	// ArchivePath, when set, is a directory that receives a JSON export of
	// every batch before it is deleted.
	ArchivePath string
}

// Metrics receives one call per pruning run.
type Metrics interface {
	RecordPrune(deleted int64, err error)
}

type nopMetrics struct{}

func (nopMetrics) RecordPrune(int64, error) {}

// Option configures a Pruner.
type Option func(*Pruner)

// WithMetrics reports pruning runs to m.
func WithMetrics(m Metrics) Option {
	return func(p *Pruner) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithClock sets the clock used to compute the age cutoff and archive names.
func WithClock(clock func() time.Time) Option {
	return func(p *Pruner) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// Pruner deletes decision records that fall outside the retention limits.
type Pruner struct {
	storage evidence.Storage
	config  Config
	metrics Metrics
	clock   func() time.Time
	logger  *slog.Logger
}

// NewPruner creates a pruner over storage.
func NewPruner(storage evidence.Storage, config Config, opts ...Option) *Pruner {
	p := &Pruner{
		storage: storage,
		config:  config,
		metrics: nopMetrics{},
		clock:   time.Now,
		logger:  slog.Default().With("component", "evidence.retention"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the pruner's configuration.
func (p *Pruner) Config() Config {
	return p.config
}

// Prune applies the age limit and then the count limit, and returns the
// number of records deleted.
func (p *Pruner) Prune(ctx context.Context) (deleted int64, err error) {
	defer func() { p.metrics.RecordPrune(deleted, err) }()

	if p.config.Days > 0 {
		n, err := p.pruneByAge(ctx)
		if err != nil {
			return deleted, err
		}
		deleted += n
	}

	if p.config.MaxRecords > 0 {
		n, err := p.pruneByCount(ctx)
		if err != nil {
			return deleted, err
		}
		deleted += n
	}

	if deleted > 0 {
		p.logger.Info("decision log pruned",
			"deleted_count", deleted,
			"retention_days", p.config.Days,
			"max_records", p.config.MaxRecords,
		)
	} else {
		p.logger.Debug("no decision records pruned")
	}
	return deleted, nil
}

func (p *Pruner) pruneByAge(ctx context.Context) (int64, error) {
	cutoff := p.clock().AddDate(0, 0, -p.config.Days)
	// EndTime is inclusive; records exactly at the cutoff are still kept.
	end := cutoff.Add(-time.Nanosecond)
	return p.deleteThrough(ctx, "age", &end)
}

func (p *Pruner) pruneByCount(ctx context.Context) (int64, error) {
	count, err := p.storage.Count(ctx, &evidence.Query{})
	if err != nil {
		return 0, &evidence.RetentionError{Step: "count", Cause: err}
	}
	if count <= p.config.MaxRecords {
		return 0, nil
	}

	// The newest record past the limit marks the cutoff.
	over, err := p.storage.Query(ctx, &evidence.Query{
		SortBy:    "evaluated_at",
		SortOrder: "desc",
		Offset:    int(p.config.MaxRecords),
		Limit:     1,
	})
	if err != nil {
		return 0, &evidence.RetentionError{Step: "count", Cause: err}
	}
	if len(over) == 0 {
		return 0, nil
	}

	p.logger.Info("decision log over record limit, pruning oldest",
		"current_count", count,
		"max_records", p.config.MaxRecords,
	)
	cutoff := over[0].EvaluatedAt
	return p.deleteThrough(ctx, "count", &cutoff)
}

// deleteThrough archives (if configured) and deletes every record evaluated
// at or before end.
func (p *Pruner) deleteThrough(ctx context.Context, step string, end *time.Time) (int64, error) {
	query := &evidence.Query{EndTime: end}

	if p.config.ArchivePath != "" {
		if err := p.archive(ctx, step, query); err != nil {
			return 0, &evidence.RetentionError{Step: "archive", Cause: err}
		}
	}

	deleted, err := p.storage.Delete(ctx, query)
	if err != nil {
		return 0, &evidence.RetentionError{Step: step, Cause: err}
	}
	return deleted, nil
}

func (p *Pruner) archive(ctx context.Context, step string, query *evidence.Query) error {
	count, err := p.storage.Count(ctx, query)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}

	if err := os.MkdirAll(p.config.ArchivePath, 0o755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}
	name := fmt.Sprintf("decisions-%s-%s.json", step, p.clock().UTC().Format("20060102T150405Z"))
	path := filepath.Join(p.config.ArchivePath, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	recordsCh, errCh, err := p.storage.QueryStream(streamCtx, &evidence.Query{EndTime: query.EndTime, SortOrder: "asc"})
	if err != nil {
		f.Close()
		return err
	}
	if err := export.NewJSONExporter(false).ExportStream(streamCtx, recordsCh, f); err != nil {
		f.Close()
		return err
	}
	if err := <-errCh; err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	p.logger.Info("decision records archived",
		"path", path,
		"record_count", count,
	)
	return nil
}
