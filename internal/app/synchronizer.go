package app

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"live-quiz-service/internal/domain"
)

const (
	kindParticipant = "participant"
	kindTransition  = "transition"

	attemptTimeout = 5 * time.Second
)

// SyncOptions tunes the write-through workers.
type SyncOptions struct {
	Workers        int
	QueueSize      int
	MaxRetries     uint64
	InitialBackoff time.Duration
}

func (o SyncOptions) withDefaults() SyncOptions {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 100 * time.Millisecond
	}
	return o
}

type syncJob struct {
	kind   string
	key    string
	run    func(ctx context.Context) error
	fields []zap.Field
}

// Synchronizer writes live state through to durable storage without blocking callers.
// Jobs sharing a key are handled by one worker, so their writes land in enqueue order.
type Synchronizer struct {
	writer DurableWriter
	logger *zap.Logger
	opts   SyncOptions

	mu     sync.RWMutex
	closed bool
	shards []chan syncJob
	wg     sync.WaitGroup
}

func NewSynchronizer(writer DurableWriter, logger *zap.Logger, opts SyncOptions) *Synchronizer {
	opts = opts.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	shards := make([]chan syncJob, opts.Workers)
	perShard := opts.QueueSize / opts.Workers
	if perShard < 1 {
		perShard = 1
	}
	for i := range shards {
		shards[i] = make(chan syncJob, perShard)
	}
	return &Synchronizer{writer: writer, logger: logger, opts: opts, shards: shards}
}

// Start launches the workers. ctx bounds retries; Stop drains what is queued.
func (s *Synchronizer) Start(ctx context.Context) {
	for _, ch := range s.shards {
		s.wg.Add(1)
		go s.work(ctx, ch)
	}
}

// Stop refuses new jobs and waits for queued ones to finish.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, ch := range s.shards {
		close(ch)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// SaveParticipant enqueues an idempotent participant upsert.
func (s *Synchronizer) SaveParticipant(p domain.Participant) {
	s.enqueue(syncJob{
		kind: kindParticipant,
		key:  p.SessionID + "/" + p.StudentID,
		run: func(ctx context.Context) error {
			return s.writer.UpsertParticipant(ctx, p)
		},
		fields: []zap.Field{zap.String("session_id", p.SessionID), zap.String("student_id", p.StudentID)},
	})
}

// SaveTransition enqueues a forward-only status change.
func (s *Synchronizer) SaveTransition(t domain.Transition) {
	s.enqueue(syncJob{
		kind: kindTransition,
		key:  t.SessionID,
		run: func(ctx context.Context) error {
			return s.writer.ApplyTransition(ctx, t)
		},
		fields: []zap.Field{zap.String("session_id", t.SessionID), zap.String("status", string(t.Status))},
	})
}

func (s *Synchronizer) enqueue(job syncJob) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.drop(job, "synchronizer stopped", nil)
		return
	}
	select {
	case s.shards[s.shardFor(job.key)] <- job:
		syncQueueDepth.Inc()
	default:
		s.drop(job, "queue full", nil)
	}
}

func (s *Synchronizer) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(s.shards)))
}

func (s *Synchronizer) work(ctx context.Context, jobs <-chan syncJob) {
	defer s.wg.Done()
	for job := range jobs {
		syncQueueDepth.Dec()
		s.execute(ctx, job)
	}
}

func (s *Synchronizer) execute(ctx context.Context, job syncJob) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.opts.InitialBackoff
	policy.MaxElapsedTime = 0

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), attemptTimeout)
		defer cancel()
		err := job.run(attemptCtx)
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, s.opts.MaxRetries), ctx))

	if err != nil {
		reason := "retries exhausted"
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
			reason = "rejected"
		}
		s.drop(job, reason, err, zap.Int("attempts", attempts))
		return
	}
	outcome := "ok"
	if attempts > 1 {
		outcome = "retried"
	}
	durableWrites.WithLabelValues(job.kind, outcome).Inc()
}

func (s *Synchronizer) drop(job syncJob, reason string, err error, extra ...zap.Field) {
	durableWrites.WithLabelValues(job.kind, "dropped").Inc()
	fields := append([]zap.Field{zap.String("kind", job.kind), zap.String("reason", reason), zap.Error(err)}, job.fields...)
	s.logger.Error("dropped durable write", append(fields, extra...)...)
}
