package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"live-quiz-service/internal/domain"
)

type sessionRow struct {
	bun.BaseModel `bun:"table:live_sessions,alias:s"`

	ID                    string     `bun:"id,pk"`
	Code                  string     `bun:"code"`
	TeacherID             string     `bun:"teacher_id"`
	GameCreationID        string     `bun:"game_creation_id"`
	ClassIDs              []string   `bun:"class_ids,array"`
	Status                string     `bun:"status"`
	AllowLateJoin         bool       `bun:"allow_late_join"`
	ScoringMode           string     `bun:"scoring_mode"`
	TimePenaltyPerWrongMs int64      `bun:"time_penalty_per_wrong_ms"`
	StrictProgress        bool       `bun:"strict_progress"`
	StartedAt             *time.Time `bun:"started_at"`
	EndedAt               *time.Time `bun:"ended_at"`
	CreatedAt             time.Time  `bun:"created_at"`
}

type participantRow struct {
	bun.BaseModel `bun:"table:live_participants,alias:p"`

	SessionID       string     `bun:"session_id,pk"`
	StudentID       string     `bun:"student_id,pk"`
	DisplayName     string     `bun:"display_name"`
	ClassID         string     `bun:"class_id"`
	Score           int        `bun:"score"`
	Correct         int        `bun:"correct"`
	Wrong           int        `bun:"wrong"`
	RawTimeMs       int64      `bun:"raw_time_ms"`
	EffectiveTimeMs int64      `bun:"effective_time_ms"`
	FinishedAt      *time.Time `bun:"finished_at"`
	LastPingAt      time.Time  `bun:"last_ping_at"`
}

// SessionRepository persists sessions and participants with bun.
type SessionRepository struct {
	db *bun.DB
}

func NewSessionRepository(db *bun.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) CreateSession(ctx context.Context, s domain.Session) error {
	row := toSessionRow(s)
	if _, err := r.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("%w: create session: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (r *SessionRepository) GetSession(ctx context.Context, id string) (domain.Session, error) {
	var row sessionRow
	err := r.db.NewSelect().Model(&row).Where("s.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: get session: %v", domain.ErrPersistence, err)
	}
	return row.toDomain(), nil
}

func (r *SessionRepository) ListSessions(ctx context.Context, teacherID string) ([]domain.Session, error) {
	var rows []sessionRow
	err := r.db.NewSelect().Model(&rows).
		Where("s.teacher_id = ?", teacherID).
		Order("s.created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", domain.ErrPersistence, err)
	}
	out := make([]domain.Session, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *SessionRepository) CodeInUse(ctx context.Context, code string) (bool, error) {
	return r.db.NewSelect().Model((*sessionRow)(nil)).
		Where("s.code = ?", code).
		Where("s.status <> ?", string(domain.StatusEnded)).
		Exists(ctx)
}

// ApplyTransition moves a session forward. The status guard in the WHERE clause makes
// stale or repeated transitions no-ops.
func (r *SessionRepository) ApplyTransition(ctx context.Context, t domain.Transition) error {
	q := r.db.NewUpdate().Model((*sessionRow)(nil)).
		Set("status = ?", string(t.Status)).
		Where("s.id = ?", t.SessionID)

	switch t.Status {
	case domain.StatusRunning:
		q = q.Set("started_at = ?", t.At).
			Set("allow_late_join = FALSE").
			Where("s.status = ?", string(domain.StatusLobby))
	case domain.StatusEnded:
		q = q.Set("ended_at = ?", t.At).
			Where("s.status IN (?)", bun.In([]string{string(domain.StatusLobby), string(domain.StatusRunning)}))
	default:
		return domain.Invalid("cannot transition to %q", t.Status)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: apply transition: %v", domain.ErrPersistence, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	exists, err := r.db.NewSelect().Model((*sessionRow)(nil)).Where("s.id = ?", t.SessionID).Exists(ctx)
	if err != nil {
		return fmt.Errorf("%w: apply transition: %v", domain.ErrPersistence, err)
	}
	if !exists {
		return domain.ErrSessionNotFound
	}
	return nil
}

// DeleteSession removes an ended session and its participants in one transaction.
func (r *SessionRepository) DeleteSession(ctx context.Context, id string) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var row sessionRow
		err := tx.NewSelect().Model(&row).Where("s.id = ?", id).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: delete session: %v", domain.ErrPersistence, err)
		}
		if row.Status != string(domain.StatusEnded) {
			return domain.ErrSessionNotEnded
		}
		if _, err := tx.NewDelete().Model((*participantRow)(nil)).Where("p.session_id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("%w: delete participants: %v", domain.ErrPersistence, err)
		}
		if _, err := tx.NewDelete().Model((*sessionRow)(nil)).Where("s.id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("%w: delete session: %v", domain.ErrPersistence, err)
		}
		return nil
	})
}

// UpsertParticipant writes the latest snapshot. finished_at keeps its first value.
func (r *SessionRepository) UpsertParticipant(ctx context.Context, p domain.Participant) error {
	row := toParticipantRow(p)
	_, err := r.db.NewInsert().Model(&row).
		On("CONFLICT (session_id, student_id) DO UPDATE").
		Set("display_name = EXCLUDED.display_name").
		Set("class_id = COALESCE(NULLIF(EXCLUDED.class_id, ''), p.class_id)").
		Set("score = EXCLUDED.score").
		Set("correct = EXCLUDED.correct").
		Set("wrong = EXCLUDED.wrong").
		Set("raw_time_ms = EXCLUDED.raw_time_ms").
		Set("effective_time_ms = EXCLUDED.effective_time_ms").
		Set("finished_at = COALESCE(p.finished_at, EXCLUDED.finished_at)").
		Set("last_ping_at = EXCLUDED.last_ping_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: upsert participant: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (r *SessionRepository) ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	var rows []participantRow
	if err := r.db.NewSelect().Model(&rows).Where("p.session_id = ?", sessionID).Scan(ctx); err != nil {
		return nil, fmt.Errorf("%w: list participants: %v", domain.ErrPersistence, err)
	}
	out := make([]domain.Participant, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func toSessionRow(s domain.Session) sessionRow {
	classIDs := s.ClassIDs
	if classIDs == nil {
		classIDs = []string{}
	}
	return sessionRow{
		ID:                    s.ID,
		Code:                  s.Code,
		TeacherID:             s.TeacherID,
		GameCreationID:        s.GameCreationID,
		ClassIDs:              classIDs,
		Status:                string(s.Status),
		AllowLateJoin:         s.AllowLateJoin,
		ScoringMode:           s.Scoring.ScoringMode,
		TimePenaltyPerWrongMs: s.Scoring.TimePenaltyPerWrongMs,
		StrictProgress:        s.Scoring.StrictProgress,
		StartedAt:             s.StartedAt,
		EndedAt:               s.EndedAt,
		CreatedAt:             s.CreatedAt,
	}
}

func (row sessionRow) toDomain() domain.Session {
	return domain.Session{
		ID:             row.ID,
		Code:           row.Code,
		TeacherID:      row.TeacherID,
		GameCreationID: row.GameCreationID,
		ClassIDs:       row.ClassIDs,
		Status:         domain.Status(row.Status),
		AllowLateJoin:  row.AllowLateJoin,
		Scoring: domain.ScoringConfig{
			ScoringMode:           row.ScoringMode,
			TimePenaltyPerWrongMs: row.TimePenaltyPerWrongMs,
			StrictProgress:        row.StrictProgress,
		},
		StartedAt: row.StartedAt,
		EndedAt:   row.EndedAt,
		CreatedAt: row.CreatedAt,
	}
}

func toParticipantRow(p domain.Participant) participantRow {
	return participantRow{
		SessionID:       p.SessionID,
		StudentID:       p.StudentID,
		DisplayName:     p.DisplayName,
		ClassID:         p.ClassID,
		Score:           p.Score,
		Correct:         p.Correct,
		Wrong:           p.Wrong,
		RawTimeMs:       p.RawTimeMs,
		EffectiveTimeMs: p.EffectiveTimeMs,
		FinishedAt:      p.FinishedAt,
		LastPingAt:      p.LastPingAt,
	}
}

func (row participantRow) toDomain() domain.Participant {
	return domain.Participant{
		SessionID:   row.SessionID,
		StudentID:   row.StudentID,
		DisplayName: row.DisplayName,
		ClassID:     row.ClassID,
		Stats: domain.Stats{
			Score:           row.Score,
			Correct:         row.Correct,
			Wrong:           row.Wrong,
			RawTimeMs:       row.RawTimeMs,
			EffectiveTimeMs: row.EffectiveTimeMs,
			FinishedAt:      row.FinishedAt,
		},
		LastPingAt: row.LastPingAt,
	}
}
