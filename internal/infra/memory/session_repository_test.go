package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"live-quiz-service/internal/domain"
)

func TestSessionRepositoryTransitionsOnlyMoveForward(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository()
	_ = repo.CreateSession(ctx, domain.Session{ID: "s1", Code: "ABCD2345", TeacherID: "t1", Status: domain.StatusLobby, AllowLateJoin: true})

	started := time.Unix(100, 0)
	ended := time.Unix(200, 0)
	if err := repo.ApplyTransition(ctx, domain.Transition{SessionID: "s1", Status: domain.StatusRunning, At: started}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := repo.ApplyTransition(ctx, domain.Transition{SessionID: "s1", Status: domain.StatusEnded, At: ended}); err != nil {
		t.Fatalf("end: %v", err)
	}
	// A delayed running write must not resurrect the session.
	if err := repo.ApplyTransition(ctx, domain.Transition{SessionID: "s1", Status: domain.StatusRunning, At: ended.Add(time.Second)}); err != nil {
		t.Fatalf("stale start: %v", err)
	}

	s, _ := repo.GetSession(ctx, "s1")
	if s.Status != domain.StatusEnded {
		t.Fatalf("expected ended, got %s", s.Status)
	}
	if s.AllowLateJoin {
		t.Fatalf("expected late join disabled once running")
	}
	if s.StartedAt == nil || !s.StartedAt.Equal(started) || s.EndedAt == nil || !s.EndedAt.Equal(ended) {
		t.Fatalf("unexpected timestamps %+v", s)
	}
	if inUse, _ := repo.CodeInUse(ctx, "ABCD2345"); inUse {
		t.Fatalf("ended session code should be free")
	}
}

func TestSessionRepositoryKeepsFirstFinish(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository()
	_ = repo.CreateSession(ctx, domain.Session{ID: "s1", TeacherID: "t1", Status: domain.StatusRunning})

	first := time.Unix(100, 0)
	p := domain.Participant{SessionID: "s1", StudentID: "u1", DisplayName: "Ann"}
	p.Score = 2
	p.FinishedAt = &first
	_ = repo.UpsertParticipant(ctx, p)

	later := time.Unix(300, 0)
	p.Score = 3
	p.FinishedAt = &later
	_ = repo.UpsertParticipant(ctx, p)

	got, _ := repo.ListParticipants(ctx, "s1")
	if len(got) != 1 || got[0].Score != 3 || !got[0].FinishedAt.Equal(first) {
		t.Fatalf("unexpected participants %+v", got)
	}
}

func TestSessionRepositoryDeleteRequiresEnded(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository()
	_ = repo.CreateSession(ctx, domain.Session{ID: "s1", TeacherID: "t1", Status: domain.StatusRunning})
	_ = repo.UpsertParticipant(ctx, domain.Participant{SessionID: "s1", StudentID: "u1"})

	if err := repo.DeleteSession(ctx, "s1"); !errors.Is(err, domain.ErrSessionNotEnded) {
		t.Fatalf("expected not ended, got %v", err)
	}
	_ = repo.ApplyTransition(ctx, domain.Transition{SessionID: "s1", Status: domain.StatusEnded, At: time.Now()})
	if err := repo.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := repo.ListParticipants(ctx, "s1"); len(got) != 0 {
		t.Fatalf("expected participants removed, got %+v", got)
	}
}

func TestEnrollmentReturnsFirstEligibleClass(t *testing.T) {
	e := NewEnrollment()
	e.Enroll("class-b", "u1")

	classID, ok, err := e.EnrolledClass(context.Background(), "u1", []string{"class-a", "class-b"})
	if err != nil || !ok || classID != "class-b" {
		t.Fatalf("expected class-b, got %q %v %v", classID, ok, err)
	}
	if _, ok, _ := e.EnrolledClass(context.Background(), "u2", []string{"class-b"}); ok {
		t.Fatalf("u2 is not enrolled")
	}
}
