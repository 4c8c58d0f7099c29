package memory

import (
	"context"
	"sort"
	"sync"

	"live-quiz-service/internal/domain"
)

// SessionRepository keeps sessions and participants in process memory.
// It backs single-node runs without Postgres and the use-case tests.
type SessionRepository struct {
	mu           sync.RWMutex
	sessions     map[string]domain.Session
	participants map[string]map[string]domain.Participant
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		sessions:     make(map[string]domain.Session),
		participants: make(map[string]map[string]domain.Participant),
	}
}

func (r *SessionRepository) CreateSession(_ context.Context, s domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.ClassIDs = append([]string(nil), s.ClassIDs...)
	r.sessions[s.ID] = s
	return nil
}

func (r *SessionRepository) GetSession(_ context.Context, id string) (domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return s, nil
}

func (r *SessionRepository) ListSessions(_ context.Context, teacherID string) ([]domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Session, 0)
	for _, s := range r.sessions {
		if s.TeacherID == teacherID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *SessionRepository) CodeInUse(_ context.Context, code string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.Code == code && s.Status != domain.StatusEnded {
			return true, nil
		}
	}
	return false, nil
}

// ApplyTransition moves a session forward. Stale or repeated transitions are ignored.
func (r *SessionRepository) ApplyTransition(_ context.Context, t domain.Transition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[t.SessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if !s.Status.CanTransition(t.Status) {
		return nil
	}
	at := t.At
	switch t.Status {
	case domain.StatusRunning:
		s.StartedAt = &at
		s.AllowLateJoin = false
	case domain.StatusEnded:
		s.EndedAt = &at
	}
	s.Status = t.Status
	r.sessions[t.SessionID] = s
	return nil
}

func (r *SessionRepository) DeleteSession(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if s.Status != domain.StatusEnded {
		return domain.ErrSessionNotEnded
	}
	delete(r.sessions, id)
	delete(r.participants, id)
	return nil
}

// UpsertParticipant stores the latest snapshot; a recorded finish time is never cleared.
func (r *SessionRepository) UpsertParticipant(_ context.Context, p domain.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[p.SessionID]; !ok {
		return domain.ErrSessionNotFound
	}
	bySession, ok := r.participants[p.SessionID]
	if !ok {
		bySession = make(map[string]domain.Participant)
		r.participants[p.SessionID] = bySession
	}
	if prev, ok := bySession[p.StudentID]; ok && prev.FinishedAt != nil {
		p.FinishedAt = prev.FinishedAt
	}
	bySession[p.StudentID] = p
	return nil
}

func (r *SessionRepository) ListParticipants(_ context.Context, sessionID string) ([]domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Participant, 0, len(r.participants[sessionID]))
	for _, p := range r.participants[sessionID] {
		out = append(out, p)
	}
	return out, nil
}
