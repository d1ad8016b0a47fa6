package visit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bloomcare/midwife-scheduling/internal/lock"
)

// Notification event subjects.
const (
	subjectCreated     = "Visit booked"
	subjectUpdated     = "Visit updated"
	subjectCancelled   = "Visit cancelled"
	subjectRescheduled = "Visit rescheduled"
	subjectConfirmed   = "Visit confirmed"
)

// Service owns the visit lifecycle. It is the only writer of the visit store
// and the availability index; every conflict-check-then-commit sequence runs
// inside a per-midwife critical section.
type Service struct {
	store     Store
	avail     AvailabilityIndex
	detector  *Detector
	reminders *ReminderScheduler
	notifier  Notifier
	locker    lock.Locker
	clock     Clock
	log       *zap.Logger
	defaultTZ string
}

type ServiceOptions struct {
	Store     Store
	Avail     AvailabilityIndex
	Notifier  Notifier
	Locker    lock.Locker
	Clock     Clock
	Logger    *zap.Logger
	DefaultTZ string
}

func NewService(opts ServiceOptions) *Service {
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	locker := opts.Locker
	if locker == nil {
		locker = lock.NewMutexLocker()
	}
	tz := opts.DefaultTZ
	if tz == "" {
		tz = "UTC"
	}
	return &Service{
		store:     opts.Store,
		avail:     opts.Avail,
		detector:  NewDetector(opts.Store, opts.Avail, clock),
		reminders: NewReminderScheduler(opts.Store, opts.Notifier, clock, log),
		notifier:  opts.Notifier,
		locker:    locker,
		clock:     clock,
		log:       log,
		defaultTZ: tz,
	}
}

// Reminders exposes the scheduler for shutdown wiring.
func (s *Service) Reminders() *ReminderScheduler { return s.reminders }

// CreateVisitInput carries the caller-supplied fields for a new visit.
type CreateVisitInput struct {
	PatientID       uuid.UUID
	ProviderID      uuid.UUID
	Type            Type
	ScheduledAt     time.Time
	DurationMinutes int
	Timezone        string
	Location        *Location
	Notes           string
	PriceCents      int64
	Currency        string
	Channels        []Channel
	Metadata        map[string]string
}

// CreateVisit books a new visit. It fails with *ConflictError when the
// requested window overlaps an existing visit or falls outside the midwife's
// availability; both conflict kinds block.
func (s *Service) CreateVisit(ctx context.Context, in CreateVisitInput) (*Visit, error) {
	if in.DurationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}

	tz, tzConflict := s.resolveTimezone(in.Timezone)
	if tzConflict != nil {
		return nil, &ConflictError{Conflicts: []Conflict{*tzConflict}}
	}

	var created *Visit

	err := s.locker.WithProviderLock(ctx, in.ProviderID, func(lockCtx context.Context) error {
		conflicts, err := s.detector.CheckConflicts(lockCtx, in.ProviderID, in.ScheduledAt, in.DurationMinutes, nil)
		if err != nil {
			return fmt.Errorf("check conflicts: %w", err)
		}
		if len(conflicts) > 0 {
			return &ConflictError{Conflicts: conflicts}
		}

		now := s.clock.Now()
		v := &Visit{
			ID:              uuid.New(),
			PatientID:       in.PatientID,
			ProviderID:      in.ProviderID,
			Type:            in.Type,
			Status:          StatusScheduled,
			ScheduledAt:     in.ScheduledAt,
			DurationMinutes: in.DurationMinutes,
			Timezone:        tz,
			Location:        in.Location,
			Notes:           in.Notes,
			PriceCents:      in.PriceCents,
			Currency:        in.Currency,
			CreatedAt:       now,
			UpdatedAt:       now,
			Reminders:       BuildReminders(in.ScheduledAt, now, in.Channels),
			Metadata:        in.Metadata,
		}

		stored, err := s.store.Insert(lockCtx, v)
		if err != nil {
			return fmt.Errorf("insert visit: %w", err)
		}
		created = stored

		s.bumpCoveringSlot(lockCtx, stored, +1)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.reminders.Schedule(created)
	s.notify(ctx, created, subjectCreated, fmt.Sprintf("Your visit on %s has been booked.", created.ScheduledAt.Format(time.RFC1123)))

	s.log.Info("visit created",
		zap.String("visit_id", created.ID.String()),
		zap.String("provider_id", created.ProviderID.String()),
		zap.Time("scheduled_at", created.ScheduledAt))

	return created, nil
}

// UpdateVisit applies a partial update. When the update moves the visit's
// time window, conflicts are re-checked against the prospective window
// (excluding the visit itself) before anything is committed and the booking
// count follows the visit from the vacated slot to the new one; on conflict
// the visit is left untouched. Cancelled and rescheduled cannot be reached
// this way: those transitions carry side effects owned by CancelVisit and
// RescheduleVisit.
func (s *Service) UpdateVisit(ctx context.Context, id uuid.UUID, u Update) (*Visit, error) {
	var (
		updated     *Visit
		timeChanged bool
	)

	err := s.withVisitLock(ctx, id, func(lockCtx context.Context, current *Visit) error {
		if u.Status != nil && !transitionAllowed(current.Status, *u.Status) {
			return &InvalidTransitionError{From: current.Status, Op: fmt.Sprintf("move to %q", *u.Status)}
		}
		if u.DurationMinutes != nil && *u.DurationMinutes <= 0 {
			return ErrInvalidDuration
		}
		if u.Timezone != nil {
			if _, tzConflict := s.resolveTimezone(*u.Timezone); tzConflict != nil {
				return &ConflictError{Conflicts: []Conflict{*tzConflict}}
			}
		}

		newStart := current.ScheduledAt
		if u.ScheduledAt != nil {
			newStart = *u.ScheduledAt
		}
		newDuration := current.DurationMinutes
		if u.DurationMinutes != nil {
			newDuration = *u.DurationMinutes
		}
		windowChanged := !newStart.Equal(current.ScheduledAt) || newDuration != current.DurationMinutes
		timeChanged = !newStart.Equal(current.ScheduledAt)

		if windowChanged {
			conflicts, err := s.detector.CheckConflicts(lockCtx, current.ProviderID, newStart, newDuration, &id)
			if err != nil {
				return fmt.Errorf("check conflicts: %w", err)
			}
			if len(conflicts) > 0 {
				return &ConflictError{Conflicts: conflicts}
			}
		}

		if timeChanged {
			regenerated := BuildReminders(newStart, s.clock.Now(), reminderChannels(current))
			u.Reminders = &regenerated
		}

		v, err := s.store.Update(lockCtx, id, u)
		if err != nil {
			return err
		}
		updated = v

		if windowChanged {
			s.bumpCoveringSlot(lockCtx, current, -1)
			s.bumpCoveringSlot(lockCtx, updated, +1)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if timeChanged {
		s.reminders.Schedule(updated)
	}
	s.notify(ctx, updated, subjectUpdated, fmt.Sprintf("Your visit on %s has been updated.", updated.ScheduledAt.Format(time.RFC1123)))

	return updated, nil
}

// CancelVisit cancels a scheduled or confirmed visit. Cancelling from any
// other status fails with *InvalidTransitionError.
func (s *Service) CancelVisit(ctx context.Context, id uuid.UUID, reason string, cancelledBy uuid.UUID) (*Visit, error) {
	var cancelled *Visit

	err := s.withVisitLock(ctx, id, func(lockCtx context.Context, current *Visit) error {
		if current.Status != StatusScheduled && current.Status != StatusConfirmed {
			return &InvalidTransitionError{From: current.Status, Op: "cancel"}
		}

		now := s.clock.Now()
		status := StatusCancelled
		v, err := s.store.Update(lockCtx, id, Update{
			Status:       &status,
			CancelledAt:  &now,
			CancelReason: &reason,
			CancelledBy:  &cancelledBy,
		})
		if err != nil {
			return err
		}
		cancelled = v

		s.bumpCoveringSlot(lockCtx, current, -1)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.reminders.Cancel(id)
	s.notify(ctx, cancelled, subjectCancelled, fmt.Sprintf("Your visit on %s has been cancelled.", cancelled.ScheduledAt.Format(time.RFC1123)))

	s.log.Info("visit cancelled",
		zap.String("visit_id", id.String()),
		zap.String("reason", reason))

	return cancelled, nil
}

// RescheduleVisit books a brand-new visit at newStart carrying forward the
// original's fields and marks the original rescheduled. The original is
// never destroyed.
func (s *Service) RescheduleVisit(ctx context.Context, id uuid.UUID, newStart time.Time, newDurationMinutes *int) (*Visit, error) {
	var successor *Visit

	err := s.withVisitLock(ctx, id, func(lockCtx context.Context, original *Visit) error {
		if original.Status != StatusScheduled && original.Status != StatusConfirmed {
			return &InvalidTransitionError{From: original.Status, Op: "reschedule"}
		}

		duration := original.DurationMinutes
		if newDurationMinutes != nil {
			if *newDurationMinutes <= 0 {
				return ErrInvalidDuration
			}
			duration = *newDurationMinutes
		}

		conflicts, err := s.detector.CheckConflicts(lockCtx, original.ProviderID, newStart, duration, &id)
		if err != nil {
			return fmt.Errorf("check conflicts: %w", err)
		}
		if len(conflicts) > 0 {
			return &ConflictError{Conflicts: conflicts}
		}

		now := s.clock.Now()
		next := original.Clone()
		next.ID = uuid.New()
		next.Status = StatusScheduled
		next.ScheduledAt = newStart
		next.DurationMinutes = duration
		next.CreatedAt = now
		next.UpdatedAt = now
		next.CancelledAt = nil
		next.CancelReason = ""
		next.CancelledBy = nil
		origID := original.ID
		next.RescheduledFrom = &origID
		next.Reminders = BuildReminders(newStart, now, reminderChannels(original))

		stored, err := s.store.Insert(lockCtx, next)
		if err != nil {
			return fmt.Errorf("insert successor visit: %w", err)
		}
		successor = stored

		status := StatusRescheduled
		if _, err := s.store.Update(lockCtx, original.ID, Update{Status: &status}); err != nil {
			return fmt.Errorf("mark original rescheduled: %w", err)
		}

		s.bumpCoveringSlot(lockCtx, original, -1)
		s.bumpCoveringSlot(lockCtx, successor, +1)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.reminders.Cancel(id)
	s.reminders.Schedule(successor)
	s.notify(ctx, successor, subjectRescheduled, fmt.Sprintf("Your visit has been moved to %s.", successor.ScheduledAt.Format(time.RFC1123)))

	s.log.Info("visit rescheduled",
		zap.String("original_id", id.String()),
		zap.String("successor_id", successor.ID.String()))

	return successor, nil
}

// ConfirmVisit moves a scheduled visit to confirmed.
func (s *Service) ConfirmVisit(ctx context.Context, id uuid.UUID) (*Visit, error) {
	v, err := s.transition(ctx, id, StatusScheduled, StatusConfirmed, "confirm")
	if err != nil {
		return nil, err
	}
	s.notify(ctx, v, subjectConfirmed, fmt.Sprintf("Your visit on %s is confirmed.", v.ScheduledAt.Format(time.RFC1123)))
	return v, nil
}

// StartVisit moves a confirmed visit to in-progress.
func (s *Service) StartVisit(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return s.transition(ctx, id, StatusConfirmed, StatusInProgress, "start")
}

// CompleteVisit moves an in-progress visit to completed.
func (s *Service) CompleteVisit(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return s.transition(ctx, id, StatusInProgress, StatusCompleted, "complete")
}

func (s *Service) GetVisit(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return s.store.FindByID(ctx, id)
}

func (s *Service) ListVisits(ctx context.Context, f Filter) ([]Visit, error) {
	return s.store.List(ctx, f)
}

func (s *Service) GetAvailableSlots(ctx context.Context, providerID uuid.UUID, from, to time.Time, visitType Type) ([]AvailabilitySlot, error) {
	return s.avail.FindOpenSlots(ctx, providerID, from, to, visitType)
}

func (s *Service) CheckConflicts(ctx context.Context, providerID uuid.UUID, start time.Time, durationMinutes int, excludeVisitID *uuid.UUID) ([]Conflict, error) {
	return s.detector.CheckConflicts(ctx, providerID, start, durationMinutes, excludeVisitID)
}

// ExportToCalendar flattens a visit into a calendar event for the external
// ICS generator.
func (s *Service) ExportToCalendar(ctx context.Context, id uuid.UUID) (*CalendarEvent, error) {
	v, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return BuildCalendarEvent(v), nil
}

// DispatchDueReminders sends every unsent reminder whose fire time has
// passed. Intended for the periodic worker; the sent-flag guard keeps it
// idempotent alongside the in-process timer scheduler.
func (s *Service) DispatchDueReminders(ctx context.Context) (int, error) {
	now := s.clock.Now()

	visits, err := s.store.List(ctx, Filter{Statuses: ActiveStatuses})
	if err != nil {
		return 0, fmt.Errorf("list active visits: %w", err)
	}

	sent := 0
	for i := range visits {
		v := &visits[i]
		for j := range v.Reminders {
			r := &v.Reminders[j]
			if r.Sent || r.ScheduledFor.After(now) {
				continue
			}
			s.reminders.Dispatch(ctx, v, r)
			sent++
		}
	}
	return sent, nil
}

// AddAvailabilitySlot registers a midwife-declared bookable window.
func (s *Service) AddAvailabilitySlot(ctx context.Context, slot *AvailabilitySlot) (*AvailabilitySlot, error) {
	if !slot.StartTime.Before(slot.EndTime) {
		return nil, fmt.Errorf("slot start must be before end")
	}
	if slot.MaxBookings <= 0 {
		slot.MaxBookings = 1
	}
	return s.avail.AddSlot(ctx, slot)
}

// transition performs a guarded single-step status change.
func (s *Service) transition(ctx context.Context, id uuid.UUID, from, to Status, op string) (*Visit, error) {
	var updated *Visit
	err := s.withVisitLock(ctx, id, func(lockCtx context.Context, current *Visit) error {
		if current.Status != from {
			return &InvalidTransitionError{From: current.Status, Op: op}
		}
		v, err := s.store.Update(lockCtx, id, Update{Status: &to})
		if err != nil {
			return err
		}
		updated = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// withVisitLock loads the visit, acquires its midwife's lock, and re-reads
// inside the critical section so the callback sees committed state.
func (s *Service) withVisitLock(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, current *Visit) error) error {
	v, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return s.locker.WithProviderLock(ctx, v.ProviderID, func(lockCtx context.Context) error {
		current, err := s.store.FindByID(lockCtx, id)
		if err != nil {
			return err
		}
		return fn(lockCtx, current)
	})
}

// bumpCoveringSlot adjusts the booking count of the slot covering the
// visit's window. Best-effort: a missing slot is not an error here because
// the conflict check already decided bookability.
func (s *Service) bumpCoveringSlot(ctx context.Context, v *Visit, delta int) {
	slot, err := s.avail.FindCoveringSlot(ctx, v.ProviderID, v.ScheduledAt, v.End())
	if err != nil {
		return
	}
	if err := s.avail.AdjustBookings(ctx, slot.ID, delta); err != nil {
		s.log.Warn("failed to adjust slot bookings",
			zap.String("slot_id", slot.ID.String()),
			zap.Int("delta", delta),
			zap.Error(err))
	}
}

// notify emits a notification over the visit's reminder channels. Failures
// are logged and swallowed; the committed visit state is the durable fact.
func (s *Service) notify(ctx context.Context, v *Visit, subject, body string) {
	if s.notifier == nil {
		return
	}
	channels := reminderChannels(v)
	for _, ch := range channels {
		if err := s.notifier.Send(ctx, v, ch, subject, body); err != nil {
			s.log.Error("notification dispatch failed",
				zap.String("visit_id", v.ID.String()),
				zap.String("channel", string(ch)),
				zap.Error(err))
		}
	}
}

// reminderChannels returns the channels configured on the visit's reminders,
// defaulting to email.
func reminderChannels(v *Visit) []Channel {
	seen := make(map[Channel]bool)
	var channels []Channel
	for _, r := range v.Reminders {
		for _, ch := range r.Channels {
			if !seen[ch] {
				seen[ch] = true
				channels = append(channels, ch)
			}
		}
	}
	if len(channels) == 0 {
		channels = []Channel{ChannelEmail}
	}
	return channels
}

// resolveTimezone validates tz (falling back to the service default) and
// returns a timezone_mismatch conflict when the zone cannot be loaded.
func (s *Service) resolveTimezone(tz string) (string, *Conflict) {
	if tz == "" {
		tz = s.defaultTZ
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return "", &Conflict{
			Kind:                  ConflictTimezoneMismatch,
			Message:               fmt.Sprintf("unknown timezone %q", tz),
			SuggestedAlternatives: []time.Time{},
		}
	}
	return tz, nil
}

// transitionAllowed validates a caller-requested status change in a partial
// update. Cancelled and rescheduled are not reachable here: cancelling stamps
// the cancellation fields, retracts reminders and releases slot capacity, and
// rescheduling pairs the original with a successor visit, so both go through
// their dedicated operations.
func transitionAllowed(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusScheduled:
		return to == StatusConfirmed
	case StatusConfirmed:
		return to == StatusInProgress
	case StatusInProgress:
		return to == StatusCompleted
	}
	return false
}
