package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrSchedulerRunning is returned by Start on a running scheduler.
var ErrSchedulerRunning = errors.New("retention scheduler already running")

// Scheduler runs a Pruner on its cron schedule. A run that is due while the
// previous one is still pruning is skipped.
type Scheduler struct {
	pruner *Pruner
	logger *slog.Logger

	mu    sync.Mutex
	cron  *cron.Cron // nil when stopped
	entry cron.EntryID
}

// NewScheduler creates a scheduler for pruner. It does nothing until Start.
func NewScheduler(pruner *Pruner) *Scheduler {
	return &Scheduler{
		pruner: pruner,
		logger: slog.Default().With("component", "evidence.retention"),
	}
}

// Start schedules pruning and returns immediately. The schedule comes from
// the pruner's Config, for example "0 3 * * *" for daily at 03:00. An empty
// schedule is a no-op. The scheduler stops when ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	schedule := s.pruner.Config().Schedule
	if schedule == "" {
		s.logger.Info("prune schedule not configured, skipping scheduler")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return ErrSchedulerRunning
	}

	log := cronLogger{s.logger}
	c := cron.New(cron.WithLogger(log), cron.WithChain(cron.SkipIfStillRunning(log)))
	entry, err := c.AddFunc(schedule, func() { s.run(ctx) })
	if err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	c.Start()
	s.cron, s.entry = c, entry

	cfg := s.pruner.Config()
	s.logger.Info("retention scheduler started",
		"schedule", schedule,
		"retention_days", cfg.Days,
		"max_records", cfg.MaxRecords,
		"archive", cfg.ArchivePath != "",
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.pruner.Prune(ctx); err != nil {
		s.logger.Error("scheduled pruning failed", "error", err)
	}
}

// Stop unschedules pruning and waits for a running prune to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	s.logger.Info("retention scheduler stopped")
}

// IsRunning reports whether pruning is scheduled.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// NextRun returns the next scheduled pruning time, or nil when stopped.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return nil
	}
	next := s.cron.Entry(s.entry).Next
	return &next
}

// cronLogger adapts slog to cron.Logger. Scheduling chatter goes to debug.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
