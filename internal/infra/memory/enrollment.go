package memory

import (
	"context"
	"sync"
)

// Enrollment is a static class roster used when no database is configured.
type Enrollment struct {
	mu      sync.RWMutex
	classes map[string]map[string]struct{}
}

func NewEnrollment() *Enrollment {
	return &Enrollment{classes: make(map[string]map[string]struct{})}
}

// Enroll adds studentID to classID.
func (e *Enrollment) Enroll(classID, studentID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	members, ok := e.classes[classID]
	if !ok {
		members = make(map[string]struct{})
		e.classes[classID] = members
	}
	members[studentID] = struct{}{}
}

func (e *Enrollment) EnrolledClass(_ context.Context, studentID string, classIDs []string) (string, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, classID := range classIDs {
		if _, ok := e.classes[classID][studentID]; ok {
			return classID, true, nil
		}
	}
	return "", false, nil
}
