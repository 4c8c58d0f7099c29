package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Transports map these to join-error/error events or HTTP status codes via errors.Is.
var (
	ErrValidation    = errors.New("invalid request")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("not found")
	ErrPersistence   = errors.New("persistence failure")
	ErrStateConflict = errors.New("state conflict")
)

var (
	// ErrRoomNotFound is returned when no active room uses the given code.
	ErrRoomNotFound = fmt.Errorf("room %w", ErrNotFound)
	// ErrSessionNotFound is returned when a durable session id is unknown.
	ErrSessionNotFound = fmt.Errorf("session %w", ErrNotFound)
	// ErrParticipantNotFound is returned when a user reports progress before joining.
	ErrParticipantNotFound = fmt.Errorf("participant %w", ErrNotFound)
	// ErrQuizNotFound indicates the referenced quiz content could not be loaded.
	ErrQuizNotFound = fmt.Errorf("quiz %w", ErrNotFound)

	ErrNotHost           = fmt.Errorf("%w: only the host may do that", ErrForbidden)
	ErrNotOwner          = fmt.Errorf("%w: session belongs to another teacher", ErrForbidden)
	ErrTeacherCannotJoin = fmt.Errorf("%w: teachers cannot join as participants", ErrForbidden)
	ErrNotEnrolled       = fmt.Errorf("%w: student is not enrolled in this session's classes", ErrForbidden)
	ErrIdentityMismatch  = fmt.Errorf("%w: connection is bound to another user", ErrForbidden)

	ErrSessionEnded    = fmt.Errorf("%w: session has ended", ErrStateConflict)
	ErrLateJoinClosed  = fmt.Errorf("%w: session already started", ErrStateConflict)
	ErrAlreadyStarted  = fmt.Errorf("%w: session is not in lobby", ErrStateConflict)
	ErrSessionNotEnded = fmt.Errorf("%w: session must be ended first", ErrStateConflict)
	ErrAlreadyFinished = fmt.Errorf("%w: participant already finished", ErrStateConflict)
)

// Invalid builds a validation error describing the offending field.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
