package visit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const maxSuggestedAlternatives = 3

// Detector checks booking candidates against the visit store and the
// midwife's declared availability.
type Detector struct {
	store Store
	avail AvailabilityIndex
	clock Clock
}

func NewDetector(store Store, avail AvailabilityIndex, clock Clock) *Detector {
	if clock == nil {
		clock = SystemClock
	}
	return &Detector{store: store, avail: avail, clock: clock}
}

// CheckConflicts returns every conflict for booking the midwife at start for
// durationMinutes. An empty result means the candidate is bookable. Overlap
// and availability checks both always run, so both conflict kinds may be
// reported together. The overlap scan walks visits in insertion order and
// reports the first collision.
func (d *Detector) CheckConflicts(ctx context.Context, providerID uuid.UUID, start time.Time, durationMinutes int, excludeVisitID *uuid.UUID) ([]Conflict, error) {
	end := EndOf(start, durationMinutes)

	var conflicts []Conflict

	active, err := d.store.ListActiveByProvider(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("list active visits: %w", err)
	}
	for i := range active {
		v := &active[i]
		if excludeVisitID != nil && v.ID == *excludeVisitID {
			continue
		}
		if IntervalsOverlap(start, end, v.ScheduledAt, v.End()) {
			id := v.ID
			conflicts = append(conflicts, Conflict{
				Kind:                  ConflictTimeOverlap,
				Message:               fmt.Sprintf("overlaps an existing visit from %s to %s", v.ScheduledAt.Format(time.RFC3339), v.End().Format(time.RFC3339)),
				VisitID:               &id,
				SuggestedAlternatives: []time.Time{},
			})
			break
		}
	}

	slot, err := d.avail.FindCoveringSlot(ctx, providerID, start, end)
	switch {
	case errors.Is(err, ErrSlotNotFound):
		alternatives, suggestErr := d.suggestAlternatives(ctx, providerID, start, durationMinutes, excludeVisitID)
		if suggestErr != nil {
			// Best-effort hint; an empty list is a legitimate answer.
			alternatives = []time.Time{}
		}
		conflicts = append(conflicts, Conflict{
			Kind:                  ConflictUnavailableSlot,
			Message:               "the midwife has no availability covering the requested time",
			SuggestedAlternatives: alternatives,
		})
	case err != nil:
		return nil, fmt.Errorf("find covering slot: %w", err)
	case !slot.HasCapacity():
		conflicts = append(conflicts, Conflict{
			Kind:                  ConflictDoubleBooking,
			Message:               "the covering availability window is fully booked",
			SuggestedAlternatives: []time.Time{},
		})
	}

	return conflicts, nil
}

// suggestAlternatives proposes up to three start times from the midwife's
// open windows on the same day that would not collide with existing visits.
func (d *Detector) suggestAlternatives(ctx context.Context, providerID uuid.UUID, start time.Time, durationMinutes int, excludeVisitID *uuid.UUID) ([]time.Time, error) {
	dayStart := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	// Any visit type: alternatives are a hint, the caller re-checks on book.
	var slots []AvailabilitySlot
	for _, t := range []Type{TypeRemote, TypeClinic, TypeHome} {
		found, err := d.avail.FindOpenSlots(ctx, providerID, dayStart, dayEnd, t)
		if err != nil {
			return nil, err
		}
		slots = append(slots, found...)
	}

	active, err := d.store.ListActiveByProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}

	alternatives := []time.Time{}
	seen := make(map[time.Time]bool)
	for i := range slots {
		slot := &slots[i]
		for cand := slot.StartTime; !EndOf(cand, durationMinutes).After(slot.EndTime); cand = cand.Add(time.Duration(durationMinutes) * time.Minute) {
			if seen[cand] || cand.Before(d.clock.Now()) {
				continue
			}
			if d.collides(cand, durationMinutes, active, excludeVisitID) {
				continue
			}
			seen[cand] = true
			alternatives = append(alternatives, cand)
			if len(alternatives) >= maxSuggestedAlternatives {
				return alternatives, nil
			}
		}
	}
	return alternatives, nil
}

func (d *Detector) collides(start time.Time, durationMinutes int, active []Visit, excludeVisitID *uuid.UUID) bool {
	end := EndOf(start, durationMinutes)
	for i := range active {
		v := &active[i]
		if excludeVisitID != nil && v.ID == *excludeVisitID {
			continue
		}
		if IntervalsOverlap(start, end, v.ScheduledAt, v.End()) {
			return true
		}
	}
	return false
}
