package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// Enrollment reads class membership from the class_enrollments table.
type Enrollment struct {
	pool *pgxpool.Pool
}

func NewEnrollment(pool *pgxpool.Pool) *Enrollment {
	return &Enrollment{pool: pool}
}

// EnrolledClass returns the first class in classIDs that studentID belongs to.
func (e *Enrollment) EnrolledClass(ctx context.Context, studentID string, classIDs []string) (string, bool, error) {
	if len(classIDs) == 0 {
		return "", false, nil
	}
	var classID string
	err := e.pool.QueryRow(ctx, `
		SELECT class_id FROM class_enrollments
		WHERE student_id = $1 AND class_id = ANY($2::text[])
		ORDER BY array_position($2::text[], class_id)
		LIMIT 1`, studentID, classIDs).Scan(&classID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("check enrollment: %w", err)
	}
	return classID, true, nil
}
