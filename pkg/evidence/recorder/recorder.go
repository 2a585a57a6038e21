package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/evidence"
	"mercator-hq/tribune/pkg/policy/domain"
)

// Config contains recorder settings.
type Config struct {
	// AsyncBuffer is the size of the write queue. Zero makes every
	// RecordDecision wait for the worker to take the record.
	AsyncBuffer int

	// WriteTimeout bounds both the wait for queue space and each storage
	// write. Default: 5 seconds
	WriteTimeout time.Duration

	// RedactFields are top-level context fields stored only as a hash.
	RedactFields []string
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() Config {
	return Config{
		AsyncBuffer:  1000,
		WriteTimeout: 5 * time.Second,
	}
}

// Metrics receives one call per storage write.
type Metrics interface {
	RecordDecisionWrite(err error)
}

type nopMetrics struct{}

func (nopMetrics) RecordDecisionWrite(error) {}

// Option configures a Recorder.
type Option func(*Recorder)

// WithMetrics reports storage writes to m.
func WithMetrics(m Metrics) Option {
	return func(r *Recorder) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithClock sets the clock used for RecordedAt.
func WithClock(clock func() time.Time) Option {
	return func(r *Recorder) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// Decision is one evaluation to record.
type Decision struct {
	RequestID     string
	Source        string
	BundleVersion string
	SubjectKind   string
	Subject       string
	Context       domain.Context
	Outcome       domain.Outcome
	Compliant     bool
	Policies      []evidence.PolicyDecision
	Skipped       []string
}

// Recorder writes decision records asynchronously. Records are queued by
// RecordDecision and written by a single worker goroutine, so a slow
// backend never delays an evaluation response by more than WriteTimeout.
type Recorder struct {
	storage evidence.Storage
	config  Config
	metrics Metrics
	clock   func() time.Time
	logger  *slog.Logger

	recordChan chan *evidence.DecisionRecord
	done       chan struct{}
	wg         sync.WaitGroup

	// mu guards closed; senders hold the read lock so Close cannot
	// finish draining while a send is in flight.
	mu     sync.RWMutex
	closed bool
}

// NewRecorder creates a recorder and starts its worker.
func NewRecorder(storage evidence.Storage, config Config, opts ...Option) *Recorder {
	if config.AsyncBuffer < 0 {
		config.AsyncBuffer = 0
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}

	r := &Recorder{
		storage:    storage,
		config:     config,
		metrics:    nopMetrics{},
		clock:      time.Now,
		logger:     slog.Default().With("component", "evidence.recorder"),
		recordChan: make(chan *evidence.DecisionRecord, config.AsyncBuffer),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("decision recorder initialized",
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
		"redact_fields", len(config.RedactFields),
	)
	return r
}

// BuildRecord turns a decision into a record without queueing it.
func (r *Recorder) BuildRecord(d Decision) (*evidence.DecisionRecord, error) {
	hash, err := HashContext(d.Context)
	if err != nil {
		return nil, &evidence.RecorderError{Cause: err}
	}
	fields, err := RedactFields(d.Context.Fields, r.config.RedactFields)
	if err != nil {
		return nil, &evidence.RecorderError{Cause: err}
	}

	evaluatedAt := d.Context.Timestamp
	recordedAt := r.clock().UTC()
	if evaluatedAt.IsZero() {
		evaluatedAt = recordedAt
	}

	return &evidence.DecisionRecord{
		ID:            uuid.New().String(),
		RequestID:     d.RequestID,
		EvaluatedAt:   evaluatedAt.UTC(),
		RecordedAt:    recordedAt,
		Source:        d.Source,
		BundleVersion: d.BundleVersion,
		Requester:     d.Context.Requester,
		SubjectKind:   d.SubjectKind,
		Subject:       d.Subject,
		Outcome:       string(d.Outcome),
		Compliant:     d.Compliant,
		Policies:      d.Policies,
		Skipped:       d.Skipped,
		ContextHash:   hash,
		Context:       fields,
	}, nil
}

// RecordDecision queues a decision for writing. It blocks for at most
// WriteTimeout when the queue is full and then drops the record with
// ErrQueueFull.
func (r *Recorder) RecordDecision(ctx context.Context, d Decision) error {
	record, err := r.BuildRecord(d)
	if err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return &evidence.RecorderError{RecordID: record.ID, Cause: evidence.ErrRecorderClosed}
	}

	timer := time.NewTimer(r.config.WriteTimeout)
	defer timer.Stop()

	select {
	case r.recordChan <- record:
		r.logger.Debug("decision record enqueued",
			"record_id", record.ID,
			"request_id", record.RequestID,
		)
		return nil
	case <-timer.C:
		r.logger.Error("decision queue full, dropping record",
			"record_id", record.ID,
			"request_id", record.RequestID,
			"queue_capacity", r.config.AsyncBuffer,
		)
		r.metrics.RecordDecisionWrite(evidence.ErrQueueFull)
		return &evidence.RecorderError{RecordID: record.ID, Cause: evidence.ErrQueueFull}
	case <-ctx.Done():
		return &evidence.RecorderError{RecordID: record.ID, Cause: ctx.Err()}
	}
}

// Close stops accepting records, writes everything already queued and
// waits for the worker to exit. It does not close the storage.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.logger.Info("shutting down decision recorder", "pending_count", len(r.recordChan))
	close(r.done)
	r.wg.Wait()
	r.logger.Info("decision recorder shut down complete")
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case record := <-r.recordChan:
			r.writeRecord(record)

		case <-r.done:
			for {
				select {
				case record := <-r.recordChan:
					r.writeRecord(record)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) writeRecord(record *evidence.DecisionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	err := r.storage.Store(ctx, record)
	r.metrics.RecordDecisionWrite(err)
	if err != nil {
		r.logger.Error("failed to store decision record",
			"record_id", record.ID,
			"request_id", record.RequestID,
			"error", err,
		)
		return
	}

	duration := time.Since(start)
	r.logger.Debug("decision recorded",
		"record_id", record.ID,
		"request_id", record.RequestID,
		"outcome", record.Outcome,
		"duration_ms", duration.Milliseconds(),
	)
	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow decision write",
			"record_id", record.ID,
			"duration_ms", duration.Milliseconds(),
			"threshold_ms", (r.config.WriteTimeout / 2).Milliseconds(),
		)
	}
}
