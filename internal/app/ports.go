package app

import (
	"context"

	"live-quiz-service/internal/domain"
)

// RoomStore abstracts where active rooms are kept (in-memory, Redis-marked, etc).
type RoomStore interface {
	GetOrCreate(code string, create func() *Room) (*Room, bool)
	Get(code string) (*Room, bool)
	// Delete removes code only while it still maps to room.
	Delete(code string, room *Room) bool
	Range(fn func(code string, room *Room) bool)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.QuizContent, error)
}

// DurableWriter is the idempotent write side used by the synchronizer.
type DurableWriter interface {
	UpsertParticipant(ctx context.Context, p domain.Participant) error
	ApplyTransition(ctx context.Context, t domain.Transition) error
}

// SessionRepository persists sessions and their participants.
type SessionRepository interface {
	DurableWriter
	CreateSession(ctx context.Context, s domain.Session) error
	GetSession(ctx context.Context, id string) (domain.Session, error)
	ListSessions(ctx context.Context, teacherID string) ([]domain.Session, error)
	CodeInUse(ctx context.Context, code string) (bool, error)
	DeleteSession(ctx context.Context, id string) error
	ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error)
}

// EnrollmentChecker answers class membership questions owned by the enrollment subsystem.
// It returns the first eligible class the student belongs to.
type EnrollmentChecker interface {
	EnrolledClass(ctx context.Context, studentID string, classIDs []string) (string, bool, error)
}

// Emitter delivers protocol events to live connections. Implementations must not block.
type Emitter interface {
	Emit(connIDs []string, event string, payload any)
}

// Notifier delivers events to a teacher's notification channel.
type Notifier interface {
	NotifyTeacher(ctx context.Context, teacherID, event string, payload any)
}
