package app

import "live-quiz-service/internal/domain"

// Protocol event names shared by the real-time transport and the use cases.
const (
	EventIdentify     = "identify"
	EventHostGame     = "host-game"
	EventRoomCreated  = "room-created"
	EventJoinGame     = "join-game"
	EventJoinSuccess  = "join-success"
	EventJoinError    = "join-error"
	EventScoreboard   = "live:scoreboard"
	EventPlayerJoined = "player-joined"
	EventSessionCount = "live:session-count"
	EventStartGame    = "start-game"
	EventGameStarted  = "game-started"
	EventAnswer       = "live:answer"
	EventFinish       = "live:finish"
	EventEndGame      = "end-game"
	EventGameEnded    = "game-ended"
	EventError        = "error"
)

// Caller identifies the connection an event arrived on.
type Caller struct {
	ConnID string
	UserID string
	Role   domain.Role
}

type IdentifyRequest struct {
	UserID string      `json:"userId"`
	Role   domain.Role `json:"role"`
}

type HostRequest struct {
	Code           string `json:"code"`
	SessionID      string `json:"sessionId"`
	GameCreationID string `json:"gameCreationId"`
}

type JoinRequest struct {
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
	UserID     string `json:"userId"`
}

type RoomRequest struct {
	RoomCode string `json:"roomCode"`
}

// AnswerRequest reports one answered question. Times are milliseconds; clients may send fractions.
type AnswerRequest struct {
	RoomCode     string  `json:"roomCode"`
	UserID       string  `json:"userId"`
	Correct      bool    `json:"correct"`
	DeltaMs      float64 `json:"deltaMs"`
	ScoreDelta   *int    `json:"scoreDelta,omitempty"`
	CurrentScore *int    `json:"currentScore,omitempty"`
}

type FinishRequest struct {
	RoomCode    string  `json:"roomCode"`
	UserID      string  `json:"userId"`
	TotalTimeMs float64 `json:"totalTimeMs"`
}

type RoomCreatedPayload struct {
	Code string `json:"code"`
}

type JoinSuccessPayload struct {
	RoomCode string `json:"roomCode"`
}

type ScoreboardPayload struct {
	Ranks []domain.RankEntry `json:"ranks"`
}

type PlayersPayload struct {
	Players []domain.Player `json:"players"`
}

type SessionCountPayload struct {
	SessionID         string `json:"sessionId"`
	ParticipantsCount int    `json:"participantsCount"`
}

type GameStartedPayload struct {
	GameCreationID string `json:"gameCreationId"`
}

type GameEndedPayload struct {
	RoomCode  string `json:"roomCode"`
	SessionID string `json:"sessionId,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
