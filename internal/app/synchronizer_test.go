package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// flakyWriter fails the first failures calls and records what eventually landed.
type flakyWriter struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    int
	scores   []int
}

func (w *flakyWriter) UpsertParticipant(_ context.Context, p domain.Participant) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.err != nil {
		return w.err
	}
	if w.failures > 0 {
		w.failures--
		return errors.New("connection reset")
	}
	w.scores = append(w.scores, p.Score)
	return nil
}

func (w *flakyWriter) ApplyTransition(_ context.Context, _ domain.Transition) error {
	return nil
}

func (w *flakyWriter) snapshot() (int, []int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls, append([]int(nil), w.scores...)
}

func participant(score int) domain.Participant {
	return domain.Participant{SessionID: "s-1", StudentID: "u1", Stats: domain.Stats{Score: score}}
}

func TestSynchronizerRetriesFailedWrites(t *testing.T) {
	writer := &flakyWriter{failures: 2}
	writes := app.NewSynchronizer(writer, zap.NewNop(), app.SyncOptions{Workers: 1, MaxRetries: 5, InitialBackoff: time.Millisecond})
	writes.Start(context.Background())

	writes.SaveParticipant(participant(3))
	writes.Stop()

	calls, scores := writer.snapshot()
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if len(scores) != 1 || scores[0] != 3 {
		t.Fatalf("expected the write to land once, got %v", scores)
	}
}

func TestSynchronizerKeepsPerKeyOrder(t *testing.T) {
	writer := &flakyWriter{}
	writes := app.NewSynchronizer(writer, zap.NewNop(), app.SyncOptions{Workers: 4, InitialBackoff: time.Millisecond})
	writes.Start(context.Background())

	for score := 1; score <= 50; score++ {
		writes.SaveParticipant(participant(score))
	}
	writes.Stop()

	_, scores := writer.snapshot()
	if len(scores) != 50 {
		t.Fatalf("expected 50 writes, got %d", len(scores))
	}
	for i, score := range scores {
		if score != i+1 {
			t.Fatalf("writes out of order at %d: %v", i, scores)
		}
	}
}

func TestSynchronizerLogsDroppedWrites(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	writer := &flakyWriter{failures: 100}
	writes := app.NewSynchronizer(writer, zap.New(core), app.SyncOptions{Workers: 1, MaxRetries: 2, InitialBackoff: time.Millisecond})
	writes.Start(context.Background())

	writes.SaveParticipant(participant(1))
	writes.Stop()

	dropped := logs.FilterMessage("dropped durable write").All()
	if len(dropped) != 1 {
		t.Fatalf("expected one dropped write log, got %d", len(dropped))
	}
	fields := dropped[0].ContextMap()
	if fields["session_id"] != "s-1" || fields["student_id"] != "u1" || fields["reason"] != "retries exhausted" {
		t.Fatalf("unexpected log fields %v", fields)
	}
	if calls, _ := writer.snapshot(); calls != 3 {
		t.Fatalf("expected initial attempt plus 2 retries, got %d", calls)
	}

	writes.SaveParticipant(participant(2))
	if n := logs.FilterField(zap.String("reason", "synchronizer stopped")).Len(); n != 1 {
		t.Fatalf("expected writes after stop to be dropped, got %d", n)
	}
}

func TestSynchronizerDoesNotRetryMissingSession(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	writer := &flakyWriter{err: domain.ErrSessionNotFound}
	writes := app.NewSynchronizer(writer, zap.New(core), app.SyncOptions{Workers: 1, MaxRetries: 5, InitialBackoff: time.Millisecond})
	writes.Start(context.Background())

	writes.SaveParticipant(participant(1))
	writes.Stop()

	if calls, _ := writer.snapshot(); calls != 1 {
		t.Fatalf("expected a single attempt for a deleted session, got %d", calls)
	}
	if n := logs.FilterField(zap.String("reason", "rejected")).Len(); n != 1 {
		t.Fatalf("expected the write to be logged as rejected, got %d", n)
	}
}
