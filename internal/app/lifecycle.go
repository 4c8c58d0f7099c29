package app

import (
	"context"
	"time"

	"live-quiz-service/internal/domain"
)

// Lifecycle owns session status transitions and join gating.
type Lifecycle struct {
	store  DurableWriter
	writes *Synchronizer
	now    func() time.Time
}

func NewLifecycle(store DurableWriter, writes *Synchronizer) *Lifecycle {
	return NewLifecycleWithClock(store, writes, time.Now)
}

// NewLifecycleWithClock is test-only for deterministic timestamps.
func NewLifecycleWithClock(store DurableWriter, writes *Synchronizer, now func() time.Time) *Lifecycle {
	return &Lifecycle{store: store, writes: writes, now: now}
}

// admission is what remains to be verified outside the room lock.
type admission struct {
	checkEnrollment bool
	classIDs        []string
}

// gateLocked applies the synchronous join rules in order: ad-hoc rooms admit anyone,
// ended sessions admit nobody, late joins need allowLateJoin unless the user was
// already admitted, and teachers never join as participants.
func (l *Lifecycle) gateLocked(room *Room, userID string, role domain.Role) (admission, error) {
	s := room.session
	if s == nil {
		return admission{}, nil
	}
	if room.ended || s.Status == domain.StatusEnded {
		return admission{}, domain.ErrSessionEnded
	}
	known := room.knowsLocked(userID)
	if s.Status == domain.StatusRunning && !s.AllowLateJoin && !known {
		return admission{}, domain.ErrLateJoinClosed
	}
	if role == domain.RoleTeacher {
		return admission{}, domain.ErrTeacherCannotJoin
	}
	if known || len(s.ClassIDs) == 0 {
		return admission{}, nil
	}
	return admission{checkEnrollment: true, classIDs: append([]string(nil), s.ClassIDs...)}, nil
}

// startLocked moves a lobby session to running. fresh is the latest durable copy,
// from which the scoring config is snapshotted for the rest of the game.
func (l *Lifecycle) startLocked(room *Room, fresh domain.Session) error {
	if room.ended {
		return domain.ErrSessionEnded
	}
	if room.session == nil {
		if room.started {
			return domain.ErrAlreadyStarted
		}
		room.started = true
		return nil
	}
	if room.session.Status != domain.StatusLobby {
		return domain.ErrAlreadyStarted
	}

	at := l.now()
	fresh.Status = domain.StatusRunning
	fresh.StartedAt = &at
	fresh.AllowLateJoin = false
	room.session = &fresh
	room.scoring = fresh.Scoring
	room.started = true

	l.writes.SaveTransition(domain.Transition{SessionID: fresh.ID, Status: domain.StatusRunning, At: at})
	return nil
}

// endLocked ends the room and its session. It reports false when already ended.
func (l *Lifecycle) endLocked(room *Room) bool {
	if room.ended {
		return false
	}
	room.ended = true
	if room.session == nil {
		return true
	}

	at := l.now()
	room.session.Status = domain.StatusEnded
	room.session.EndedAt = &at
	l.writes.SaveTransition(domain.Transition{SessionID: room.session.ID, Status: domain.StatusEnded, At: at})
	return true
}

// EndDurable writes the ended transition synchronously. Repeating it is a no-op.
func (l *Lifecycle) EndDurable(ctx context.Context, sessionID string) error {
	return l.store.ApplyTransition(ctx, domain.Transition{SessionID: sessionID, Status: domain.StatusEnded, At: l.now()})
}
