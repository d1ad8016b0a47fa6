package visit

import (
	"errors"
	"fmt"
)

var (
	ErrVisitNotFound   = errors.New("visit not found")
	ErrSlotNotFound    = errors.New("availability slot not found")
	ErrInvalidDuration = errors.New("visit duration must be positive")
)

// ConflictError is returned when a booking attempt collides with existing
// visits or falls outside the midwife's availability. It carries the full
// conflict list so callers can render alternatives.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	if len(e.Conflicts) == 0 {
		return "scheduling conflict"
	}
	return fmt.Sprintf("scheduling conflict: %s", e.Conflicts[0].Message)
}

// InvalidTransitionError is returned when a visit's status does not permit
// the requested operation. These indicate stale caller state and are not
// retried.
type InvalidTransitionError struct {
	From Status
	Op   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a visit in status %q", e.Op, e.From)
}
