// Package indexsync mirrors primary-store writes into the secondary index.
//
// Mirror calls hand a job to a bounded queue and return immediately. Jobs are
// routed to workers by task id, so one task's jobs are applied in the order
// they were enqueued, each with a per-attempt timeout and bounded exponential
// retry. Task documents are also versioned by the backend, which keeps a late
// stale write from replacing a newer state. Jobs that cannot be delivered are
// logged, counted and written to a dead-letter store off the caller's
// goroutine. The primary write never depends on the outcome, and the index
// may briefly lag behind it.
package indexsync

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/mtlprog/flowtrack/internal/domain"
	"github.com/mtlprog/flowtrack/internal/metrics"
	"github.com/mtlprog/flowtrack/internal/repository"
	"github.com/mtlprog/flowtrack/internal/search"
	"github.com/sethvargo/go-retry"
)

// Defaults applied to zero Config fields.
const (
	DefaultWorkers          = 4
	DefaultQueueSize        = 1024
	DefaultOperationTimeout = 5 * time.Second
	DefaultMaxAttempts      = 3
	DefaultBaseBackoff      = 200 * time.Millisecond
	DefaultDeadLetterBuffer = 256
)

// Job kinds, also used as the dead-letter kind and metric label.
const (
	KindTask       = "task"
	KindEvent      = "event"
	KindTaskDelete = "task_delete"
)

var (
	errQueueFull = errors.New("mirror queue full")
	errClosed    = errors.New("synchronizer closed")
)

// Backend is the secondary index.
type Backend interface {
	IndexTask(ctx context.Context, task *domain.Task) error
	IndexEvent(ctx context.Context, event *domain.Event) error
	DeleteTask(ctx context.Context, taskID string, version time.Time) error
	SearchTasks(ctx context.Context, organizationID, text string) ([]search.TaskHit, error)
	SearchEvents(ctx context.Context, organizationID string, q search.EventQuery) ([]*domain.Event, error)
	Aggregate(ctx context.Context, organizationID string, q search.AggregateQuery) (*search.Aggregations, error)
}

// DeadLetterStore persists jobs that could not be delivered.
type DeadLetterStore interface {
	Save(ctx context.Context, letter *repository.DeadLetter) error
}

// Config tunes the worker pool and retry policy.
// QueueSize is split evenly across workers. MaxAttempts of 1 disables retry.
// DeadLetterBuffer bounds the dead letters waiting to be stored.
type Config struct {
	Workers          int
	QueueSize        int
	OperationTimeout time.Duration
	MaxAttempts      int
	BaseBackoff      time.Duration
	DeadLetterBuffer int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = DefaultOperationTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = DefaultBaseBackoff
	}
	if c.DeadLetterBuffer <= 0 {
		c.DeadLetterBuffer = DefaultDeadLetterBuffer
	}
	return c
}

type job struct {
	kind           string
	entityID       string
	organizationID string
	routingKey     string // task id; selects the worker
	payload        map[string]any
	apply          func(ctx context.Context, backend Backend) error
}

type letter struct {
	job      job
	cause    error
	attempts int
}

// Synchronizer owns the mirror queues and their workers.
type Synchronizer struct {
	backend     Backend
	deadLetters DeadLetterStore
	cfg         Config

	shards []chan job
	wg     sync.WaitGroup

	letters       chan letter
	lettersClosed bool
	writerDone    chan struct{}

	mu      sync.RWMutex
	closed  bool
	started bool
	cancel  context.CancelFunc
}

// New creates a Synchronizer. A nil backend means no index is configured:
// mirror calls become no-ops and queries return domain.ErrIndexUnavailable.
// deadLetters may be nil, in which case failed jobs are only logged.
func New(backend Backend, deadLetters DeadLetterStore, cfg Config) *Synchronizer {
	cfg = cfg.withDefaults()

	perShard := (cfg.QueueSize + cfg.Workers - 1) / cfg.Workers
	shards := make([]chan job, cfg.Workers)
	for i := range shards {
		shards[i] = make(chan job, perShard)
	}

	return &Synchronizer{
		backend:     backend,
		deadLetters: deadLetters,
		cfg:         cfg,
		shards:      shards,
		letters:     make(chan letter, cfg.DeadLetterBuffer),
	}
}

// Enabled reports whether a backend is configured.
func (s *Synchronizer) Enabled() bool {
	return s.backend != nil
}

// Start launches the workers and the dead-letter writer.
// Calling it more than once has no effect.
func (s *Synchronizer) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.closed || s.backend == nil {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, shard := range s.shards {
		s.wg.Add(1)
		go s.worker(ctx, shard)
	}

	s.writerDone = make(chan struct{})
	go s.writeDeadLetters()

	slog.Info("index synchronizer started", "workers", s.cfg.Workers, "queue_size", s.cfg.QueueSize)
}

// Close stops accepting jobs and waits for queued jobs to drain. When ctx
// expires first, in-flight work is cancelled and the remaining jobs are
// dead-lettered.
func (s *Synchronizer) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, shard := range s.shards {
		close(shard)
	}
	cancel := s.cancel
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("drain mirror queue: %w", ctx.Err())
		if cancel != nil {
			cancel()
		}
		<-done
	}
	if cancel != nil {
		cancel()
	}

	// Jobs left behind when workers never started.
	for _, shard := range s.shards {
		for j := range shard {
			metrics.MirrorQueueDepth.Dec()
			s.deadLetter(j, errClosed, 0)
		}
	}

	s.mu.Lock()
	s.lettersClosed = true
	close(s.letters)
	writerDone := s.writerDone
	s.mu.Unlock()

	if writerDone == nil {
		for l := range s.letters {
			s.persist(l)
		}
		return err
	}

	select {
	case <-writerDone:
	case <-ctx.Done():
		if err == nil {
			err = fmt.Errorf("drain dead letters: %w", ctx.Err())
		}
	}
	return err
}

// MirrorTask upserts the task document.
func (s *Synchronizer) MirrorTask(task *domain.Task) {
	snapshot := *task
	s.enqueue(job{
		kind:           KindTask,
		entityID:       task.ID,
		organizationID: task.OrganizationID,
		routingKey:     task.ID,
		payload: map[string]any{
			"workflowId":   task.WorkflowID,
			"title":        task.Title,
			"currentStage": task.CurrentStage,
			"status":       string(task.Status),
			"updatedAt":    task.UpdatedAt,
		},
		apply: func(ctx context.Context, backend Backend) error {
			return backend.IndexTask(ctx, &snapshot)
		},
	})
}

// MirrorEvent indexes the event document.
func (s *Synchronizer) MirrorEvent(event *domain.Event) {
	snapshot := *event
	key := event.TaskID
	if key == "" {
		key = event.ID
	}
	s.enqueue(job{
		kind:           KindEvent,
		entityID:       event.ID,
		organizationID: event.OrganizationID,
		routingKey:     key,
		payload: map[string]any{
			"eventType":  string(event.Type),
			"taskId":     event.TaskID,
			"workflowId": event.WorkflowID,
			"fromStage":  event.FromStageName(),
			"toStage":    event.ToStageName(),
			"timestamp":  event.Timestamp,
		},
		apply: func(ctx context.Context, backend Backend) error {
			return backend.IndexEvent(ctx, &snapshot)
		},
	})
}

// RemoveTask deletes the task document. version orders the removal after
// every state of the task that was mirrored before it.
func (s *Synchronizer) RemoveTask(organizationID, taskID string, version time.Time) {
	s.enqueue(job{
		kind:           KindTaskDelete,
		entityID:       taskID,
		organizationID: organizationID,
		routingKey:     taskID,
		payload:        map[string]any{"version": version},
		apply: func(ctx context.Context, backend Backend) error {
			return backend.DeleteTask(ctx, taskID, version)
		},
	})
}

// shardFor picks the worker queue for a routing key.
func (s *Synchronizer) shardFor(key string) chan job {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// enqueue never blocks: a job that cannot be queued goes to the dead-letter writer.
func (s *Synchronizer) enqueue(j job) {
	if s.backend == nil {
		metrics.MirrorJobs.WithLabelValues(j.kind, metrics.OutcomeDropped).Inc()
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.offerDeadLetter(letter{job: j, cause: errClosed})
		return
	}

	select {
	case s.shardFor(j.routingKey) <- j:
		metrics.MirrorQueueDepth.Inc()
	default:
		s.offerDeadLetter(letter{job: j, cause: errQueueFull})
	}
}

// offerDeadLetter records l and hands it to the writer without blocking.
// Callers hold s.mu.
func (s *Synchronizer) offerDeadLetter(l letter) {
	s.recordDeadLetter(l)
	if s.deadLetters == nil {
		return
	}

	if s.lettersClosed {
		go s.persist(l)
		return
	}

	select {
	case s.letters <- l:
	default:
		metrics.DeadLettersUnpersisted.Inc()
		slog.Error("dead-letter buffer full, letter not stored",
			"kind", l.job.kind,
			"entity_id", l.job.entityID,
			"organization_id", l.job.organizationID,
		)
	}
}

func (s *Synchronizer) writeDeadLetters() {
	defer close(s.writerDone)
	for l := range s.letters {
		s.persist(l)
	}
}

func (s *Synchronizer) worker(ctx context.Context, jobs <-chan job) {
	defer s.wg.Done()
	for j := range jobs {
		metrics.MirrorQueueDepth.Dec()
		s.process(ctx, j)
	}
}

// process applies one job with bounded retry. Only unavailability is retried;
// any other failure is permanent. Later jobs for the same task wait behind it.
func (s *Synchronizer) process(ctx context.Context, j job) {
	attempts := 0
	backoff := retry.WithMaxRetries(uint64(s.cfg.MaxAttempts-1), retry.NewExponential(s.cfg.BaseBackoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++

		opCtx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
		defer cancel()

		err := j.apply(opCtx, s.backend)
		if err == nil {
			return nil
		}

		slog.Warn("mirror attempt failed",
			"kind", j.kind,
			"entity_id", j.entityID,
			"organization_id", j.organizationID,
			"attempt", attempts,
			"error", err,
		)

		if errors.Is(err, domain.ErrIndexUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			if attempts < s.cfg.MaxAttempts {
				metrics.MirrorJobs.WithLabelValues(j.kind, metrics.OutcomeRetried).Inc()
			}
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		s.deadLetter(j, err, attempts)
		return
	}

	metrics.MirrorJobs.WithLabelValues(j.kind, metrics.OutcomeIndexed).Inc()
}

// deadLetter records and stores a job on the calling goroutine.
// Only workers and Close use it.
func (s *Synchronizer) deadLetter(j job, cause error, attempts int) {
	l := letter{job: j, cause: cause, attempts: attempts}
	s.recordDeadLetter(l)
	if s.deadLetters != nil {
		s.persist(l)
	}
}

func (s *Synchronizer) recordDeadLetter(l letter) {
	metrics.MirrorJobs.WithLabelValues(l.job.kind, metrics.OutcomeDeadLettered).Inc()
	slog.Error("mirror job dead-lettered",
		"kind", l.job.kind,
		"entity_id", l.job.entityID,
		"organization_id", l.job.organizationID,
		"attempts", l.attempts,
		"error", l.cause,
	)
}

// persist writes one letter to the store. Failures are logged and counted.
func (s *Synchronizer) persist(l letter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.OperationTimeout)
	defer cancel()

	err := s.deadLetters.Save(ctx, &repository.DeadLetter{
		Kind:           l.job.kind,
		EntityID:       l.job.entityID,
		OrganizationID: l.job.organizationID,
		Payload:        l.job.payload,
		Error:          l.cause.Error(),
		Attempts:       l.attempts,
	})
	if err != nil {
		metrics.DeadLettersUnpersisted.Inc()
		slog.Error("failed to persist dead letter", "kind", l.job.kind, "entity_id", l.job.entityID, "error", err)
	}
}
