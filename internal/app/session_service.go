package app

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"live-quiz-service/internal/codegen"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/ranking"
)

// CreateSessionRequest is what a teacher supplies to schedule a live session.
type CreateSessionRequest struct {
	GameCreationID string               `json:"gameCreationId"`
	ClassIDs       []string             `json:"classIds"`
	AllowLateJoin  bool                 `json:"allowLateJoin"`
	Scoring        domain.ScoringConfig `json:"scoring"`
}

// Summary is a session together with its ranked durable participants.
type Summary struct {
	Session      domain.Session     `json:"session"`
	Participants []domain.RankEntry `json:"participants"`
}

// SessionService manages durable sessions for their owning teacher.
type SessionService struct {
	sessions  SessionRepository
	quizzes   QuizRepository
	registry  *Registry
	lifecycle *Lifecycle
	codes     *codegen.Generator
	now       func() time.Time
}

func NewSessionService(sessions SessionRepository, quizzes QuizRepository, registry *Registry, lifecycle *Lifecycle, codes *codegen.Generator) *SessionService {
	return &SessionService{
		sessions:  sessions,
		quizzes:   quizzes,
		registry:  registry,
		lifecycle: lifecycle,
		codes:     codes,
		now:       time.Now,
	}
}

// Create schedules a lobby session for teacherID with a fresh join code.
func (s *SessionService) Create(ctx context.Context, teacherID string, req CreateSessionRequest) (domain.Session, error) {
	quizID := strings.TrimSpace(req.GameCreationID)
	if quizID == "" {
		return domain.Session{}, domain.Invalid("gameCreationId is required")
	}
	switch req.Scoring.ScoringMode {
	case "":
		req.Scoring.ScoringMode = domain.ScoringModeClient
	case domain.ScoringModeClient, domain.ScoringModeCount:
	default:
		return domain.Session{}, domain.Invalid("unknown scoringMode %q", req.Scoring.ScoringMode)
	}
	if req.Scoring.TimePenaltyPerWrongMs < 0 {
		return domain.Session{}, domain.Invalid("timePenaltyPerWrongMs must not be negative")
	}
	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return domain.Session{}, err
	}

	code, err := s.codes.Generate(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	classIDs := req.ClassIDs
	if classIDs == nil {
		classIDs = []string{}
	}
	session := domain.Session{
		ID:             uuid.NewString(),
		Code:           code,
		TeacherID:      teacherID,
		GameCreationID: quizID,
		ClassIDs:       classIDs,
		Status:         domain.StatusLobby,
		AllowLateJoin:  req.AllowLateJoin,
		Scoring:        req.Scoring,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

// List returns teacherID's sessions.
func (s *SessionService) List(ctx context.Context, teacherID string) ([]domain.Session, error) {
	return s.sessions.ListSessions(ctx, teacherID)
}

// Summary returns a session and its participants ranked from durable records.
func (s *SessionService) Summary(ctx context.Context, teacherID, id string) (Summary, error) {
	session, err := s.owned(ctx, teacherID, id)
	if err != nil {
		return Summary{}, err
	}
	participants, err := s.sessions.ListParticipants(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Session: session, Participants: ranking.Participants(participants)}, nil
}

// End ends the live room, if any, and writes the ended status synchronously.
func (s *SessionService) End(ctx context.Context, teacherID, id string) (domain.Session, error) {
	session, err := s.owned(ctx, teacherID, id)
	if err != nil {
		return domain.Session{}, err
	}
	if session.Status == domain.StatusEnded {
		return session, nil
	}
	s.registry.EndSession(id)
	if err := s.lifecycle.EndDurable(ctx, id); err != nil {
		return domain.Session{}, err
	}
	return s.sessions.GetSession(ctx, id)
}

// Delete removes an ended session and its participants.
func (s *SessionService) Delete(ctx context.Context, teacherID, id string) error {
	session, err := s.owned(ctx, teacherID, id)
	if err != nil {
		return err
	}
	if session.Status != domain.StatusEnded {
		return domain.ErrSessionNotEnded
	}
	return s.sessions.DeleteSession(ctx, id)
}

func (s *SessionService) owned(ctx context.Context, teacherID, id string) (domain.Session, error) {
	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	if session.TeacherID != teacherID {
		return domain.Session{}, domain.ErrNotOwner
	}
	return session, nil
}
