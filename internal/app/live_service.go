package app

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"live-quiz-service/internal/codegen"
	"live-quiz-service/internal/domain"
)

// LiveService contains the real-time game use cases behind the socket protocol.
type LiveService struct {
	registry *Registry
	sessions SessionRepository
	quizzes  QuizRepository
	codes    *codegen.Generator
	logger   *zap.Logger
}

func NewLiveService(registry *Registry, sessions SessionRepository, quizzes QuizRepository, codes *codegen.Generator, logger *zap.Logger) *LiveService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiveService{registry: registry, sessions: sessions, quizzes: quizzes, codes: codes, logger: logger}
}

// Identify validates the identity a connection claims for itself.
func (s *LiveService) Identify(req IdentifyRequest) (Caller, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return Caller{}, domain.Invalid("userId is required")
	}
	switch req.Role {
	case domain.RoleStudent, domain.RoleTeacher:
	case "":
		req.Role = domain.RoleStudent
	default:
		return Caller{}, domain.Invalid("unknown role %q", req.Role)
	}
	return Caller{UserID: req.UserID, Role: req.Role}, nil
}

// HostGame creates or reclaims a room. Linked sessions may only be hosted by their
// owning teacher and always use the session's code.
func (s *LiveService) HostGame(ctx context.Context, caller Caller, req HostRequest) (string, error) {
	code := normalizeCode(req.Code)
	quizID := strings.TrimSpace(req.GameCreationID)

	var linked *domain.Session
	if req.SessionID != "" {
		session, err := s.sessions.GetSession(ctx, req.SessionID)
		if err != nil {
			return "", err
		}
		if caller.UserID == "" || caller.UserID != session.TeacherID {
			return "", domain.ErrNotOwner
		}
		if session.Status == domain.StatusEnded {
			return "", domain.ErrSessionEnded
		}
		code = session.Code
		if quizID == "" {
			quizID = session.GameCreationID
		}
		linked = &session
	}
	if quizID == "" {
		return "", domain.Invalid("gameCreationId is required")
	}
	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return "", err
	}

	if existing, ok := s.registry.Room(code); ok && linked == nil {
		if owner := existing.TeacherID(); owner != "" && owner != caller.UserID {
			return "", domain.ErrNotOwner
		}
	}
	if code == "" {
		generated, err := s.codes.Generate(ctx)
		if err != nil {
			return "", err
		}
		code = generated
	}

	s.registry.CreateRoom(caller.ConnID, code, quizID, linked)
	s.logger.Info("room hosted", zap.String("room", code), zap.String("conn", caller.ConnID), zap.String("session_id", req.SessionID))
	return code, nil
}

// JoinGame admits a participant into a room.
func (s *LiveService) JoinGame(ctx context.Context, caller Caller, req JoinRequest) error {
	code := normalizeCode(req.RoomCode)
	if code == "" {
		return domain.Invalid("roomCode is required")
	}
	if err := checkIdentity(caller, req.UserID); err != nil {
		return err
	}
	name := strings.TrimSpace(req.PlayerName)
	if name == "" {
		name = req.UserID
	}
	return s.registry.JoinRoom(ctx, code, caller, req.UserID, name)
}

// StartGame starts a room. Linked sessions are re-read so late config edits are honoured.
func (s *LiveService) StartGame(ctx context.Context, caller Caller, req RoomRequest) error {
	code := normalizeCode(req.RoomCode)
	if code == "" {
		return domain.Invalid("roomCode is required")
	}
	room, ok := s.registry.Room(code)
	if !ok {
		return domain.ErrRoomNotFound
	}

	var fresh *domain.Session
	if id := room.SessionID(); id != "" {
		session, err := s.sessions.GetSession(ctx, id)
		switch {
		case err == nil:
			fresh = &session
		case errors.Is(err, domain.ErrNotFound):
			return err
		default:
			s.logger.Warn("start with cached session", zap.String("room", code), zap.Error(err))
		}
	}
	return s.registry.StartRoom(code, caller.ConnID, fresh)
}

// Answer records a per-question answer.
func (s *LiveService) Answer(_ context.Context, caller Caller, req AnswerRequest) error {
	req.RoomCode = normalizeCode(req.RoomCode)
	if req.RoomCode == "" {
		return domain.Invalid("roomCode is required")
	}
	if err := checkIdentity(caller, req.UserID); err != nil {
		return err
	}
	_, err := s.registry.RecordAnswer(req.RoomCode, caller.ConnID, req)
	return err
}

// Finish records that a participant completed the game.
func (s *LiveService) Finish(_ context.Context, caller Caller, req FinishRequest) error {
	req.RoomCode = normalizeCode(req.RoomCode)
	if req.RoomCode == "" {
		return domain.Invalid("roomCode is required")
	}
	if err := checkIdentity(caller, req.UserID); err != nil {
		return err
	}
	_, err := s.registry.RecordFinish(req.RoomCode, caller.ConnID, req)
	return err
}

// EndGame ends a room on behalf of its host.
func (s *LiveService) EndGame(_ context.Context, caller Caller, req RoomRequest) error {
	code := normalizeCode(req.RoomCode)
	if code == "" {
		return domain.Invalid("roomCode is required")
	}
	return s.registry.EndRoom(code, caller.ConnID)
}

// Disconnect forgets a closed connection.
func (s *LiveService) Disconnect(ctx context.Context, connID string) {
	s.registry.RemoveConnection(ctx, connID)
}

func checkIdentity(caller Caller, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return domain.Invalid("userId is required")
	}
	if caller.UserID != "" && caller.UserID != userID {
		return domain.ErrIdentityMismatch
	}
	return nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
