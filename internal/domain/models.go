package domain

import "time"

// Status is the lifecycle state of a durable session. It only moves forward.
type Status string

const (
	StatusLobby   Status = "lobby"
	StatusRunning Status = "running"
	StatusEnded   Status = "ended"
)

func (s Status) rank() int {
	switch s {
	case StatusLobby:
		return 0
	case StatusRunning:
		return 1
	case StatusEnded:
		return 2
	}
	return -1
}

// CanTransition reports whether moving from s to next respects lobby -> running -> ended.
func (s Status) CanTransition(next Status) bool {
	return s.rank() >= 0 && next.rank() > s.rank()
}

// Role is what a connection claims to be through the identify event.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

const (
	ScoringModeClient = "client" // honour currentScore/scoreDelta reported by the game engine
	ScoringModeCount  = "count"  // one point per correct answer

	DefaultTimePenaltyMs = 3000
	MaxAnswerElapsedMs   = 60000
)

// ScoringConfig is snapshotted into a room when its session starts.
type ScoringConfig struct {
	ScoringMode           string `json:"scoringMode"`
	TimePenaltyPerWrongMs int64  `json:"timePenaltyPerWrongMs"`
	StrictProgress        bool   `json:"strictProgress"`
}

// Penalty returns the configured wrong-answer penalty, defaulting when unset.
func (c ScoringConfig) Penalty() int64 {
	if c.TimePenaltyPerWrongMs <= 0 {
		return DefaultTimePenaltyMs
	}
	return c.TimePenaltyPerWrongMs
}

// Session is the durable record of a live quiz instance.
type Session struct {
	ID             string        `json:"id"`
	Code           string        `json:"code"`
	TeacherID      string        `json:"teacherId"`
	GameCreationID string        `json:"gameCreationId"`
	ClassIDs       []string      `json:"classIds"`
	Status         Status        `json:"status"`
	AllowLateJoin  bool          `json:"allowLateJoin"`
	Scoring        ScoringConfig `json:"scoring"`
	StartedAt      *time.Time    `json:"startedAt,omitempty"`
	EndedAt        *time.Time    `json:"endedAt,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// Transition is a forward lifecycle change written through to durable storage.
type Transition struct {
	SessionID string
	Status    Status
	At        time.Time
}

// Stats are the running statistics of one participant in a room.
type Stats struct {
	Score           int        `json:"score"`
	Correct         int        `json:"correct"`
	Wrong           int        `json:"wrong"`
	RawTimeMs       int64      `json:"rawTimeMs"`
	EffectiveTimeMs int64      `json:"effectiveTimeMs"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty"`
}

// Participant is the durable per-student record within one session.
type Participant struct {
	SessionID   string    `json:"sessionId"`
	StudentID   string    `json:"studentId"`
	DisplayName string    `json:"displayName"`
	ClassID     string    `json:"classId,omitempty"`
	Stats
	LastPingAt time.Time `json:"lastPingAt"`
}

// RankEntry is one row of a leaderboard.
type RankEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Stats
}

// Player is a live connection entry in a room.
type Player struct {
	ConnectionID string `json:"-"`
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
}

// QuizContent is the slice of authored quiz content the live engine needs.
type QuizContent struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	TeacherID string `json:"teacherId"`
	GameType  string `json:"gameType"`
}
