package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"live-quiz-service/internal/codegen"
	"live-quiz-service/internal/domain"
)

// liveMarkers is implemented by stores that publish room liveness outside the process.
type liveMarkers interface {
	Live(ctx context.Context, code string) (bool, error)
	Refresh(ctx context.Context) error
}

// Registry owns every active room. All mutations of a room happen under its lock,
// and events for a room are emitted before that lock is released.
type Registry struct {
	store      RoomStore
	lifecycle  *Lifecycle
	writes     *Synchronizer
	enrollment EnrollmentChecker
	emitter    Emitter
	notifier   Notifier
	logger     *zap.Logger
	now        func() time.Time

	mu    sync.Mutex
	conns map[string]map[string]struct{}
}

// RegistryDeps groups the collaborators of a Registry.
type RegistryDeps struct {
	Store      RoomStore
	Lifecycle  *Lifecycle
	Writes     *Synchronizer
	Enrollment EnrollmentChecker
	Emitter    Emitter
	Notifier   Notifier
	Logger     *zap.Logger
	Now        func() time.Time
}

func NewRegistry(deps RegistryDeps) *Registry {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Registry{
		store:      deps.Store,
		lifecycle:  deps.Lifecycle,
		writes:     deps.Writes,
		enrollment: deps.Enrollment,
		emitter:    deps.Emitter,
		notifier:   deps.Notifier,
		logger:     deps.Logger,
		now:        deps.Now,
		conns:      make(map[string]map[string]struct{}),
	}
}

// Room returns the active room for code.
func (r *Registry) Room(code string) (*Room, bool) {
	return r.store.Get(code)
}

// CodeTaken reports codes held by an active room or a non-ended durable session.
func (r *Registry) CodeTaken(sessions SessionRepository) codegen.Checker {
	return func(ctx context.Context, code string) (bool, error) {
		if room, ok := r.store.Get(code); ok && !room.Ended() {
			return true, nil
		}
		if shared, ok := r.store.(liveMarkers); ok {
			if live, err := shared.Live(ctx, code); err != nil || live {
				return true, err
			}
		}
		return sessions.CodeInUse(ctx, code)
	}
}

// CreateRoom makes hostConn the host of code, creating the room if needed.
// An ended room under the same code is replaced by a fresh one.
func (r *Registry) CreateRoom(hostConn, code, quizID string, session *domain.Session) *Room {
	if existing, ok := r.store.Get(code); ok && existing.Ended() && r.store.Delete(code, existing) {
		roomsActive.Dec()
	}

	room, created := r.store.GetOrCreate(code, func() *Room {
		return NewRoomWithClock(code, quizID, session, r.now)
	})
	if created {
		roomsActive.Inc()
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	previous := room.hostConn
	room.hostConn = hostConn
	room.touchLocked()
	r.index(hostConn, code)

	if previous != "" && previous != hostConn {
		r.logger.Info("host replaced", zap.String("room", code), zap.String("previous", previous), zap.String("conn", hostConn))
	}
	r.emitter.Emit([]string{hostConn}, EventRoomCreated, RoomCreatedPayload{Code: code})
	return room
}

// JoinRoom admits userID on connID after gating. The enrollment lookup runs without
// holding the room lock, so the synchronous rules are evaluated again afterwards.
func (r *Registry) JoinRoom(ctx context.Context, code string, caller Caller, userID, displayName string) error {
	room, ok := r.store.Get(code)
	if !ok {
		return domain.ErrRoomNotFound
	}

	room.mu.Lock()
	adm, err := r.lifecycle.gateLocked(room, userID, caller.Role)
	room.mu.Unlock()
	if err != nil {
		r.rejected(code, userID, err)
		return err
	}

	var classID string
	if adm.checkEnrollment {
		var enrolled bool
		classID, enrolled, err = r.enrollment.EnrolledClass(ctx, userID, adm.classIDs)
		if err != nil {
			r.rejected(code, userID, err)
			return fmt.Errorf("check enrollment: %w", err)
		}
		if !enrolled {
			r.rejected(code, userID, domain.ErrNotEnrolled)
			return domain.ErrNotEnrolled
		}
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if _, err := r.lifecycle.gateLocked(room, userID, caller.Role); err != nil {
		r.rejected(code, userID, err)
		return err
	}

	before := len(room.players)
	room.upsertPlayerLocked(caller.ConnID, userID, displayName, classID)
	room.touchLocked()
	r.index(caller.ConnID, code)

	r.emitter.Emit([]string{caller.ConnID}, EventJoinSuccess, JoinSuccessPayload{RoomCode: code})
	r.emitter.Emit([]string{caller.ConnID}, EventScoreboard, ScoreboardPayload{Ranks: room.rankingLocked()})
	r.emitter.Emit(room.hostConnsLocked(), EventPlayerJoined, PlayersPayload{Players: room.playersLocked()})
	if len(room.players) != before {
		r.notifyCountLocked(ctx, room)
	}
	if room.session != nil {
		r.writes.SaveParticipant(room.participantLocked(userID))
	}
	return nil
}

// StartRoom starts the room's game on behalf of its host. fresh is the latest durable
// copy of a linked session, or nil for ad-hoc rooms.
func (r *Registry) StartRoom(code, connID string, fresh *domain.Session) error {
	room, ok := r.store.Get(code)
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.hostConn != connID {
		return domain.ErrNotHost
	}
	latest := domain.Session{}
	if fresh != nil {
		latest = *fresh
	} else if room.session != nil {
		latest = *room.session
	}
	if err := r.lifecycle.startLocked(room, latest); err != nil {
		return err
	}
	room.touchLocked()
	r.emitter.Emit(room.connectionsLocked(), EventGameStarted, GameStartedPayload{GameCreationID: room.quizID})
	return nil
}

// RecordAnswer folds one answer into userID's stats and broadcasts the new leaderboard.
func (r *Registry) RecordAnswer(code, connID string, req AnswerRequest) ([]domain.RankEntry, error) {
	room, ok := r.store.Get(code)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.ended {
		return nil, domain.ErrSessionEnded
	}
	st, err := r.participantLocked(room, connID, req.UserID)
	if err != nil {
		return nil, err
	}
	scoring := room.scoring
	if scoring.StrictProgress && st.FinishedAt != nil {
		return nil, domain.ErrAlreadyFinished
	}

	elapsed := clampElapsed(req.DeltaMs)
	st.RawTimeMs = addSaturating(st.RawTimeMs, elapsed)
	st.EffectiveTimeMs = addSaturating(st.EffectiveTimeMs, elapsed)
	if req.Correct {
		st.Correct++
	} else {
		st.Wrong++
		st.EffectiveTimeMs = addSaturating(st.EffectiveTimeMs, scoring.Penalty())
	}

	switch {
	case scoring.ScoringMode != domain.ScoringModeCount && req.CurrentScore != nil:
		st.Score = *req.CurrentScore
	case scoring.ScoringMode != domain.ScoringModeCount && req.ScoreDelta != nil:
		st.Score += *req.ScoreDelta
	case req.Correct:
		st.Score++
	}
	answersRecorded.WithLabelValues(strconv.FormatBool(req.Correct)).Inc()

	room.pings[req.UserID] = r.now()
	room.touchLocked()
	ranks := room.rankingLocked()
	r.emitter.Emit(room.connectionsLocked(), EventScoreboard, ScoreboardPayload{Ranks: ranks})
	if room.session != nil {
		r.writes.SaveParticipant(room.participantLocked(req.UserID))
	}
	return ranks, nil
}

// RecordFinish marks userID finished once, reconciles the reported total time and
// ends the room when every connected participant has finished.
func (r *Registry) RecordFinish(code, connID string, req FinishRequest) ([]domain.RankEntry, error) {
	room, ok := r.store.Get(code)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	st, err := r.participantLocked(room, connID, req.UserID)
	if err != nil {
		return nil, err
	}
	if st.FinishedAt == nil {
		at := r.now()
		st.FinishedAt = &at
	}
	if total := reportedTotal(req.TotalTimeMs); total > st.EffectiveTimeMs {
		st.EffectiveTimeMs = total
	}

	room.pings[req.UserID] = r.now()
	room.touchLocked()
	ranks := room.rankingLocked()
	r.emitter.Emit(room.connectionsLocked(), EventScoreboard, ScoreboardPayload{Ranks: ranks})
	if room.session != nil {
		r.writes.SaveParticipant(room.participantLocked(req.UserID))
	}

	if !room.ended && room.allFinishedLocked() {
		r.endLocked(room)
		autoEnds.Inc()
		r.logger.Info("room auto-ended", zap.String("room", code), zap.String("session_id", room.sessionIDLocked()))
	}
	return ranks, nil
}

// EndRoom ends the room on behalf of its host. Ending twice is not an error.
func (r *Registry) EndRoom(code, connID string) error {
	room, ok := r.store.Get(code)
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.hostConn != connID {
		return domain.ErrNotHost
	}
	r.endLocked(room)
	return nil
}

// EndSession ends the live room linked to sessionID, if there is one.
func (r *Registry) EndSession(sessionID string) bool {
	var target *Room
	r.store.Range(func(_ string, room *Room) bool {
		if room.SessionID() == sessionID {
			target = room
			return false
		}
		return true
	})
	if target == nil {
		return false
	}
	target.mu.Lock()
	defer target.mu.Unlock()
	r.endLocked(target)
	return true
}

// RemoveConnection drops connID from every room it joined. Accumulated stats stay.
func (r *Registry) RemoveConnection(ctx context.Context, connID string) {
	for _, code := range r.unindex(connID) {
		room, ok := r.store.Get(code)
		if !ok {
			continue
		}
		room.mu.Lock()
		if room.removeConnectionLocked(connID) {
			room.touchLocked()
			r.emitter.Emit(room.hostConnsLocked(), EventPlayerJoined, PlayersPayload{Players: room.playersLocked()})
			r.notifyCountLocked(ctx, room)
		}
		room.mu.Unlock()
	}
}

// Sweep evicts rooms idle longer than idleTTL. Ended rooms go after a quarter of it.
// Eviction never ends a session.
func (r *Registry) Sweep(idleTTL time.Duration) int {
	now := r.now()
	stale := make(map[string]*Room)
	r.store.Range(func(code string, room *Room) bool {
		idle, ended := room.idleFor(now)
		if idle > idleTTL || (ended && idle > idleTTL/4) {
			stale[code] = room
		}
		return true
	})
	evicted := 0
	for code, room := range stale {
		// a host may have replaced the room since Range
		if !r.store.Delete(code, room) {
			continue
		}
		evicted++
		roomsActive.Dec()
		roomsEvicted.Inc()
		r.logger.Info("room evicted", zap.String("room", code))
	}
	return evicted
}

// RunSweeper evicts idle rooms every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval, idleTTL time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep(idleTTL)
			if shared, ok := r.store.(liveMarkers); ok {
				if err := shared.Refresh(ctx); err != nil {
					r.logger.Warn("refresh room markers", zap.Error(err))
				}
			}
		}
	}
}

func (r *Registry) endLocked(room *Room) {
	if !r.lifecycle.endLocked(room) {
		return
	}
	room.touchLocked()
	r.emitter.Emit(room.connectionsLocked(), EventGameEnded, GameEndedPayload{RoomCode: room.code, SessionID: room.sessionIDLocked()})
}

// participantLocked resolves the caller's stats, requiring the user to be bound to connID.
func (r *Registry) participantLocked(room *Room, connID, userID string) (*domain.Stats, error) {
	st, ok := room.stats[userID]
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}
	p, ok := room.playerLocked(userID)
	if !ok || p.ConnectionID != connID {
		return nil, domain.ErrIdentityMismatch
	}
	return st, nil
}

func (r *Registry) notifyCountLocked(ctx context.Context, room *Room) {
	if room.session == nil || r.notifier == nil {
		return
	}
	r.notifier.NotifyTeacher(ctx, room.session.TeacherID, EventSessionCount, SessionCountPayload{
		SessionID:         room.session.ID,
		ParticipantsCount: len(room.players),
	})
}

func (r *Registry) rejected(code, userID string, err error) {
	joinRejections.WithLabelValues(rejectionReason(err)).Inc()
	r.logger.Info("join rejected", zap.String("room", code), zap.String("user_id", userID), zap.Error(err))
}

func (r *Registry) index(connID, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	codes, ok := r.conns[connID]
	if !ok {
		codes = make(map[string]struct{})
		r.conns[connID] = codes
	}
	codes[code] = struct{}{}
}

func (r *Registry) unindex(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	codes := make([]string, 0, len(r.conns[connID]))
	for code := range r.conns[connID] {
		codes = append(codes, code)
	}
	delete(r.conns, connID)
	return codes
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrSessionEnded):
		return "ended"
	case errors.Is(err, domain.ErrLateJoinClosed):
		return "late_join"
	case errors.Is(err, domain.ErrTeacherCannotJoin):
		return "teacher"
	case errors.Is(err, domain.ErrNotEnrolled):
		return "not_enrolled"
	}
	return "error"
}

// clampElapsed bounds a client-reported answer time. Bounds are checked on the
// float so out-of-range values cannot wrap during conversion.
func clampElapsed(ms float64) int64 {
	if !(ms > 0) {
		return 0
	}
	if ms >= domain.MaxAnswerElapsedMs {
		return domain.MaxAnswerElapsedMs
	}
	return int64(math.Round(ms))
}

// reportedTotal converts a finish-time total, saturating instead of wrapping.
func reportedTotal(ms float64) int64 {
	if !(ms > 0) {
		return 0
	}
	if ms >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(math.Round(ms))
}

func addSaturating(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}
