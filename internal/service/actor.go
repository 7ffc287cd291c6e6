package service

import (
	"errors"

	"github.com/google/uuid"

	"github.com/classpilot-io/AI-grading/internal/models"
)

// ErrForbidden indicates the actor may not touch the resource.
var ErrForbidden = errors.New("forbidden")

// Actor identifies the authenticated caller of a use case.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// IsTeacher reports whether the actor acts as a teacher.
func (a Actor) IsTeacher() bool {
	return a.Role == models.RoleTeacher
}

func ensureOwner(actor Actor, assignment models.Assignment) error {
	if !actor.IsTeacher() || !assignment.OwnedBy(actor.ID) {
		return ErrForbidden
	}
	return nil
}
