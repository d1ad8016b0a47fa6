package visit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BuildReminders computes the default reminder set for a visit starting at
// scheduledAt, keeping only offsets that still land in the future relative
// to now.
func BuildReminders(scheduledAt, now time.Time, channels []Channel) []Reminder {
	if len(channels) == 0 {
		channels = []Channel{ChannelEmail}
	}
	var reminders []Reminder
	for _, kind := range DefaultReminderKinds {
		fireAt := scheduledAt.Add(-kind.Offset())
		if !fireAt.After(now) {
			continue
		}
		reminders = append(reminders, Reminder{
			ID:           uuid.New(),
			Kind:         kind,
			ScheduledFor: fireAt,
			Channels:     append([]Channel(nil), channels...),
		})
	}
	return reminders
}

// ReminderScheduler arranges the future firing of visit reminders. It holds
// only visit and reminder ids, never the visits themselves; firing re-reads
// the store so a cancellation that won the race is respected.
type ReminderScheduler struct {
	mu       sync.Mutex
	timers   map[uuid.UUID][]Timer
	store    Store
	notifier Notifier
	clock    Clock
	log      *zap.Logger
}

func NewReminderScheduler(store Store, notifier Notifier, clock Clock, log *zap.Logger) *ReminderScheduler {
	if clock == nil {
		clock = SystemClock
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ReminderScheduler{
		timers:   make(map[uuid.UUID][]Timer),
		store:    store,
		notifier: notifier,
		clock:    clock,
		log:      log,
	}
}

// Schedule arranges callbacks for every unsent reminder of the visit whose
// fire time is still in the future. Any callbacks previously arranged for
// the visit are retracted first.
func (s *ReminderScheduler) Schedule(v *Visit) {
	s.Cancel(v.ID)

	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range v.Reminders {
		if r.Sent || !r.ScheduledFor.After(now) {
			continue
		}
		visitID := v.ID
		reminderID := r.ID
		t := s.clock.AfterFunc(r.ScheduledFor.Sub(now), func() {
			s.fire(visitID, reminderID)
		})
		s.timers[v.ID] = append(s.timers[v.ID], t)
	}
}

// Cancel retracts all pending callbacks for the visit. Safe to call when
// none are pending.
func (s *ReminderScheduler) Cancel(visitID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.timers[visitID] {
		t.Stop()
	}
	delete(s.timers, visitID)
}

// Stop retracts every pending callback. Used on shutdown.
func (s *ReminderScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, timers := range s.timers {
		for _, t := range timers {
			t.Stop()
		}
		delete(s.timers, id)
	}
}

func (s *ReminderScheduler) fire(visitID, reminderID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	v, err := s.store.FindByID(ctx, visitID)
	if err != nil {
		s.log.Warn("reminder fired for unknown visit",
			zap.String("visit_id", visitID.String()),
			zap.Error(err))
		return
	}
	if !IsActive(v.Status) {
		// Cancellation or reschedule won the race.
		return
	}

	var reminder *Reminder
	for i := range v.Reminders {
		if v.Reminders[i].ID == reminderID {
			reminder = &v.Reminders[i]
			break
		}
	}
	if reminder == nil || reminder.Sent {
		return
	}

	s.Dispatch(ctx, v, reminder)
}

// Dispatch delivers one reminder over its configured channels and marks it
// sent. Shared by the timer path and the worker sweep.
func (s *ReminderScheduler) Dispatch(ctx context.Context, v *Visit, r *Reminder) {
	subject := fmt.Sprintf("Upcoming visit in %s", r.Kind)
	body := fmt.Sprintf("Your %s visit is scheduled for %s.", v.Type, v.ScheduledAt.Format(time.RFC1123))

	for _, ch := range r.Channels {
		if err := s.notifier.Send(ctx, v, ch, subject, body); err != nil {
			s.log.Error("reminder delivery failed",
				zap.String("visit_id", v.ID.String()),
				zap.String("reminder_id", r.ID.String()),
				zap.String("channel", string(ch)),
				zap.Error(err))
		}
	}

	if err := s.store.MarkReminderSent(ctx, v.ID, r.ID, s.clock.Now()); err != nil {
		s.log.Error("failed to mark reminder sent",
			zap.String("visit_id", v.ID.String()),
			zap.String("reminder_id", r.ID.String()),
			zap.Error(err))
	}
}
