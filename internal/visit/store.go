package visit

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Filter narrows List results. Zero-value fields are ignored; set fields are
// combined with logical AND.
type Filter struct {
	Statuses   []Status
	Types      []Type
	From       time.Time
	To         time.Time
	ProviderID uuid.UUID
	PatientID  uuid.UUID
	// Search is matched case-insensitively against notes and the location
	// address.
	Search string
}

// Matches applies the filter to a single visit.
func (f Filter) Matches(v *Visit) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, v.Status) {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, v.Type) {
		return false
	}
	if !f.From.IsZero() && v.ScheduledAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !v.ScheduledAt.Before(f.To) {
		return false
	}
	if f.ProviderID != uuid.Nil && v.ProviderID != f.ProviderID {
		return false
	}
	if f.PatientID != uuid.Nil && v.PatientID != f.PatientID {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		haystack := strings.ToLower(v.Notes)
		if v.Location != nil {
			haystack += " " + strings.ToLower(v.Location.Address)
		}
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}

func containsStatus(set []Status, s Status) bool {
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}

func containsType(set []Type, t Type) bool {
	for _, x := range set {
		if x == t {
			return true
		}
	}
	return false
}

// Update is a partial visit update. Nil fields are left untouched.
type Update struct {
	Status          *Status
	Type            *Type
	ScheduledAt     *time.Time
	DurationMinutes *int
	Timezone        *string
	Location        *Location
	Notes           *string
	PriceCents      *int64
	Currency        *string
	CancelledAt     *time.Time
	CancelReason    *string
	CancelledBy     *uuid.UUID
	Reminders       *[]Reminder
	Metadata        map[string]string
}

// apply mutates v in place. updatedAt stamping is the store's job.
func (u Update) apply(v *Visit) {
	if u.Status != nil {
		v.Status = *u.Status
	}
	if u.Type != nil {
		v.Type = *u.Type
	}
	if u.ScheduledAt != nil {
		v.ScheduledAt = *u.ScheduledAt
	}
	if u.DurationMinutes != nil {
		v.DurationMinutes = *u.DurationMinutes
	}
	if u.Timezone != nil {
		v.Timezone = *u.Timezone
	}
	if u.Location != nil {
		loc := *u.Location
		v.Location = &loc
	}
	if u.Notes != nil {
		v.Notes = *u.Notes
	}
	if u.PriceCents != nil {
		v.PriceCents = *u.PriceCents
	}
	if u.Currency != nil {
		v.Currency = *u.Currency
	}
	if u.CancelledAt != nil {
		t := *u.CancelledAt
		v.CancelledAt = &t
	}
	if u.CancelReason != nil {
		v.CancelReason = *u.CancelReason
	}
	if u.CancelledBy != nil {
		id := *u.CancelledBy
		v.CancelledBy = &id
	}
	if u.Reminders != nil {
		v.Reminders = append([]Reminder(nil), (*u.Reminders)...)
	}
	if u.Metadata != nil {
		if v.Metadata == nil {
			v.Metadata = make(map[string]string, len(u.Metadata))
		}
		for k, val := range u.Metadata {
			v.Metadata[k] = val
		}
	}
}

// Store is the visit collection contract. Implementations assign identity on
// insert and must keep a stable insertion order for the active-visit scan
// used by conflict detection.
type Store interface {
	Insert(ctx context.Context, v *Visit) (*Visit, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	// Update applies a partial update and returns the updated visit.
	// Returns ErrVisitNotFound if id is absent.
	Update(ctx context.Context, id uuid.UUID, u Update) (*Visit, error)
	// List returns matching visits ordered ascending by scheduled start.
	List(ctx context.Context, f Filter) ([]Visit, error)
	// ListActiveByProvider returns the midwife's visits with an active
	// status, in insertion order.
	ListActiveByProvider(ctx context.Context, providerID uuid.UUID) ([]Visit, error)
	// MarkReminderSent flips a reminder's sent flag. It is a no-op when the
	// reminder was already sent.
	MarkReminderSent(ctx context.Context, visitID, reminderID uuid.UUID, at time.Time) error
}

// AvailabilityIndex is the contract over midwife-declared bookable windows.
type AvailabilityIndex interface {
	AddSlot(ctx context.Context, s *AvailabilitySlot) (*AvailabilitySlot, error)
	// FindOpenSlots returns the midwife's slots fully contained in
	// [from, to), available, accepting visitType, with remaining capacity,
	// ordered ascending by start time.
	FindOpenSlots(ctx context.Context, providerID uuid.UUID, from, to time.Time, visitType Type) ([]AvailabilitySlot, error)
	// FindCoveringSlot returns an available slot whose window fully contains
	// [start, end], or ErrSlotNotFound.
	FindCoveringSlot(ctx context.Context, providerID uuid.UUID, start, end time.Time) (*AvailabilitySlot, error)
	// AdjustBookings changes a slot's current booking count by delta,
	// clamped at zero.
	AdjustBookings(ctx context.Context, slotID uuid.UUID, delta int) error
}
