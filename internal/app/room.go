package app

import (
	"sync"
	"time"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/ranking"
)

// Room is the in-memory state of one live game, keyed by its join code.
type Room struct {
	code   string
	quizID string
	now    func() time.Time

	mu           sync.Mutex
	hostConn     string
	session      *domain.Session
	scoring      domain.ScoringConfig
	players      []domain.Player
	stats        map[string]*domain.Stats
	names        map[string]string
	classes      map[string]string
	pings        map[string]time.Time
	started      bool
	ended        bool
	createdAt    time.Time
	lastActivity time.Time
}

// NewRoom is exported for infrastructure layers that need to seed rooms.
func NewRoom(code, quizID string, session *domain.Session) *Room {
	return NewRoomWithClock(code, quizID, session, time.Now)
}

// NewRoomWithClock is test-only for deterministic timestamps.
func NewRoomWithClock(code, quizID string, session *domain.Session, now func() time.Time) *Room {
	r := &Room{
		code:    code,
		quizID:  quizID,
		now:     now,
		stats:   make(map[string]*domain.Stats),
		names:   make(map[string]string),
		classes: make(map[string]string),
		pings:   make(map[string]time.Time),
	}
	if session != nil {
		s := *session
		r.session = &s
		r.scoring = s.Scoring
		r.started = s.Status == domain.StatusRunning
		r.ended = s.Status == domain.StatusEnded
	}
	r.createdAt = now()
	r.lastActivity = r.createdAt
	return r
}

func (r *Room) Code() string { return r.code }

// SessionID returns the linked durable session id, or "" for ad-hoc rooms.
func (r *Room) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionIDLocked()
}

// TeacherID returns the owner of the linked session, or "" for ad-hoc rooms.
func (r *Room) TeacherID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return ""
	}
	return r.session.TeacherID
}

// Ended reports whether the room no longer accepts progress.
func (r *Room) Ended() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended
}

// Players returns a copy of the current connection list.
func (r *Room) Players() []domain.Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Player(nil), r.players...)
}

// Ranking returns the current leaderboard.
func (r *Room) Ranking() []domain.RankEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rankingLocked()
}

func (r *Room) sessionIDLocked() string {
	if r.session == nil {
		return ""
	}
	return r.session.ID
}

func (r *Room) touchLocked() {
	r.lastActivity = r.now()
}

func (r *Room) knowsLocked(userID string) bool {
	_, ok := r.stats[userID]
	return ok
}

func (r *Room) playerLocked(userID string) (domain.Player, bool) {
	for _, p := range r.players {
		if p.UserID == userID {
			return p, true
		}
	}
	return domain.Player{}, false
}

// upsertPlayerLocked replaces the connection entry for userID and seeds stats on first admission.
func (r *Room) upsertPlayerLocked(connID, userID, displayName, classID string) {
	entry := domain.Player{ConnectionID: connID, UserID: userID, DisplayName: displayName}
	replaced := false
	for i := range r.players {
		if r.players[i].UserID == userID {
			r.players[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		r.players = append(r.players, entry)
	}
	if _, ok := r.stats[userID]; !ok {
		r.stats[userID] = &domain.Stats{}
	}
	r.names[userID] = displayName
	if classID != "" {
		r.classes[userID] = classID
	}
	r.pings[userID] = r.now()
}

// removeConnectionLocked drops the entry bound to connID. Stats are kept.
func (r *Room) removeConnectionLocked(connID string) bool {
	for i, p := range r.players {
		if p.ConnectionID == connID {
			r.players = append(r.players[:i], r.players[i+1:]...)
			return true
		}
	}
	return false
}

// connectionsLocked lists every connection that should see room broadcasts.
func (r *Room) connectionsLocked() []string {
	conns := make([]string, 0, len(r.players)+1)
	if r.hostConn != "" {
		conns = append(conns, r.hostConn)
	}
	for _, p := range r.players {
		conns = append(conns, p.ConnectionID)
	}
	return conns
}

func (r *Room) hostConnsLocked() []string {
	if r.hostConn == "" {
		return nil
	}
	return []string{r.hostConn}
}

// allFinishedLocked reports whether every user currently connected has finished.
func (r *Room) allFinishedLocked() bool {
	if len(r.players) == 0 {
		return false
	}
	for _, p := range r.players {
		st, ok := r.stats[p.UserID]
		if !ok || st.FinishedAt == nil {
			return false
		}
	}
	return true
}

func (r *Room) rankingLocked() []domain.RankEntry {
	entries := make([]domain.RankEntry, 0, len(r.stats))
	for userID, st := range r.stats {
		entries = append(entries, domain.RankEntry{
			UserID:      userID,
			DisplayName: r.names[userID],
			Stats:       *st,
		})
	}
	return ranking.Rank(entries)
}

func (r *Room) playersLocked() []domain.Player {
	return append([]domain.Player(nil), r.players...)
}

// participantLocked builds the durable record for userID from live state.
func (r *Room) participantLocked(userID string) domain.Participant {
	p := domain.Participant{
		SessionID:   r.sessionIDLocked(),
		StudentID:   userID,
		DisplayName: r.names[userID],
		ClassID:     r.classes[userID],
		LastPingAt:  r.pings[userID],
	}
	if st, ok := r.stats[userID]; ok {
		p.Stats = *st
	}
	return p
}

func (r *Room) idleFor(now time.Time) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return now.Sub(r.lastActivity), r.ended
}
