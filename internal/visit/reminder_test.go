package visit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestBuildReminders_DropsPastOffsets(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	all := BuildReminders(now.Add(48*time.Hour), now, nil)
	if len(all) != 4 {
		t.Fatalf("expected 4 reminders 48 hours out, got %d", len(all))
	}
	for _, r := range all {
		if len(r.Channels) != 1 || r.Channels[0] != ChannelEmail {
			t.Errorf("expected email default channel, got %v", r.Channels)
		}
	}

	short := BuildReminders(now.Add(time.Hour), now, []Channel{ChannelSMS, ChannelPush})
	if len(short) != 2 {
		t.Fatalf("expected only the 30m and 15m reminders 1 hour out, got %d", len(short))
	}
	if short[0].Kind != Reminder30Minutes || short[1].Kind != Reminder15Minutes {
		t.Errorf("unexpected kinds %s, %s", short[0].Kind, short[1].Kind)
	}

	none := BuildReminders(now.Add(5*time.Minute), now, nil)
	if len(none) != 0 {
		t.Errorf("expected no reminders 5 minutes out, got %d", len(none))
	}
}

func TestReminderScheduler_FiresAndMarksSent(t *testing.T) {
	svc, store, notifier, clock := newTestService(testNow)
	provider := uuid.New()
	start := testNow.Add(48 * time.Hour)
	addTestSlot(t, store, provider, start.Add(-time.Hour), 4, 10)

	v, err := svc.CreateVisit(context.Background(), CreateVisitInput{
		PatientID: uuid.New(), ProviderID: provider, Type: TypeRemote,
		ScheduledAt: start, DurationMinutes: 30,
		Channels: []Channel{ChannelEmail, ChannelSMS},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// 24 hours later the first reminder is due.
	clock.Advance(24 * time.Hour)

	sends := notifier.bySubject("Upcoming visit in 24h")
	if len(sends) != 2 {
		t.Fatalf("expected the 24h reminder on both channels, got %d sends", len(sends))
	}

	reloaded, _ := store.FindByID(context.Background(), v.ID)
	if !reloaded.Reminders[0].Sent || reloaded.Reminders[0].SentAt == nil {
		t.Error("fired reminder was not marked sent")
	}
	if reloaded.Reminders[1].Sent {
		t.Error("2h reminder fired early")
	}
}

func TestReminderScheduler_SentGuardKeepsSweepIdempotent(t *testing.T) {
	svc, store, notifier, clock := newTestService(testNow)
	provider := uuid.New()
	start := testNow.Add(48 * time.Hour)
	addTestSlot(t, store, provider, start.Add(-time.Hour), 4, 10)

	if _, err := svc.CreateVisit(context.Background(), CreateVisitInput{
		PatientID: uuid.New(), ProviderID: provider, Type: TypeRemote,
		ScheduledAt: start, DurationMinutes: 30,
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	clock.Advance(24 * time.Hour)
	fired := len(notifier.bySubject("Upcoming visit in 24h"))
	if fired != 1 {
		t.Fatalf("expected one 24h send from the timer, got %d", fired)
	}

	// The worker sweep running right after must not resend it.
	sent, err := svc.DispatchDueReminders(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if sent != 0 {
		t.Errorf("sweep resent %d already-delivered reminders", sent)
	}
	if got := len(notifier.bySubject("Upcoming visit in 24h")); got != fired {
		t.Errorf("duplicate delivery: %d sends", got)
	}
}

func TestDispatchDueReminders_CatchesMissedTimers(t *testing.T) {
	svc, store, notifier, clock := newTestService(testNow)
	provider := uuid.New()
	start := testNow.Add(48 * time.Hour)
	addTestSlot(t, store, provider, start.Add(-time.Hour), 4, 10)

	v, err := svc.CreateVisit(context.Background(), CreateVisitInput{
		PatientID: uuid.New(), ProviderID: provider, Type: TypeRemote,
		ScheduledAt: start, DurationMinutes: 30,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Simulate a restart: in-process timers are gone, time moves on.
	svc.Reminders().Stop()
	clock.Advance(24 * time.Hour)

	if got := len(notifier.bySubject("Upcoming visit in 24h")); got != 0 {
		t.Fatalf("stopped scheduler still delivered %d reminders", got)
	}

	sent, err := svc.DispatchDueReminders(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if sent != 1 {
		t.Errorf("expected the sweep to deliver 1 overdue reminder, got %d", sent)
	}

	reloaded, _ := store.FindByID(context.Background(), v.ID)
	if !reloaded.Reminders[0].Sent {
		t.Error("sweep did not mark the reminder sent")
	}
}

func TestCancelVisit_RetractsPendingReminders(t *testing.T) {
	svc, store, notifier, clock := newTestService(testNow)
	provider := uuid.New()
	start := testNow.Add(48 * time.Hour)
	addTestSlot(t, store, provider, start.Add(-time.Hour), 4, 10)

	v, err := svc.CreateVisit(context.Background(), CreateVisitInput{
		PatientID: uuid.New(), ProviderID: provider, Type: TypeRemote,
		ScheduledAt: start, DurationMinutes: 30,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := svc.CancelVisit(context.Background(), v.ID, "no longer needed", uuid.New()); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	clock.Advance(72 * time.Hour)

	for _, kind := range DefaultReminderKinds {
		if got := len(notifier.bySubject("Upcoming visit in " + string(kind))); got != 0 {
			t.Errorf("cancelled visit still delivered a %s reminder", kind)
		}
	}
}

func TestRescheduleVisit_MovesReminderTimers(t *testing.T) {
	svc, store, notifier, clock := newTestService(testNow)
	provider := uuid.New()
	start := testNow.Add(48 * time.Hour)
	addTestSlot(t, store, provider, start.Add(-time.Hour), 30, 10)

	v, err := svc.CreateVisit(context.Background(), CreateVisitInput{
		PatientID: uuid.New(), ProviderID: provider, Type: TypeRemote,
		ScheduledAt: start, DurationMinutes: 30,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	newStart := start.Add(24 * time.Hour)
	successor, err := svc.RescheduleVisit(context.Background(), v.ID, newStart, nil)
	if err != nil {
		t.Fatalf("reschedule failed: %v", err)
	}

	// The original's 24h mark passes with nothing due; the successor's 24h
	// reminder fires a day later.
	clock.Advance(24 * time.Hour)
	if got := len(notifier.bySubject("Upcoming visit in 24h")); got != 0 {
		t.Fatalf("reminder fired on the abandoned schedule: %d sends", got)
	}
	clock.Advance(24 * time.Hour)
	if got := len(notifier.bySubject("Upcoming visit in 24h")); got != 1 {
		t.Fatalf("expected the successor's 24h reminder, got %d sends", got)
	}

	reloaded, _ := store.FindByID(context.Background(), successor.ID)
	if !reloaded.Reminders[0].Sent {
		t.Error("successor reminder not marked sent")
	}
}

func TestReminderScheduler_FireSkipsInactiveVisit(t *testing.T) {
	clock := newFakeClock(testNow)
	store := NewMemoryStore(clock)
	notifier := &captureNotifier{}
	sched := NewReminderScheduler(store, notifier, clock, nil)
	defer sched.Stop()

	start := testNow.Add(48 * time.Hour)
	v, err := store.Insert(context.Background(), &Visit{
		PatientID: uuid.New(), ProviderID: uuid.New(),
		Type: TypeRemote, Status: StatusScheduled,
		ScheduledAt: start, DurationMinutes: 30,
		Reminders: BuildReminders(start, testNow, nil),
	})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	sched.Schedule(v)

	// The visit is cancelled out from under the scheduler, without the
	// service's timer retraction. The fire path must re-read and bail.
	status := StatusCancelled
	if _, err := store.Update(context.Background(), v.ID, Update{Status: &status}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	clock.Advance(72 * time.Hour)
	if notifier.count() != 0 {
		t.Errorf("reminder delivered for an inactive visit: %d sends", notifier.count())
	}
}

func TestReminderScheduler_ScheduleSkipsSentAndPast(t *testing.T) {
	clock := newFakeClock(testNow)
	store := NewMemoryStore(clock)
	notifier := &captureNotifier{}
	sched := NewReminderScheduler(store, notifier, clock, nil)
	defer sched.Stop()

	start := testNow.Add(time.Hour)
	sentAt := testNow.Add(-time.Minute)
	v, err := store.Insert(context.Background(), &Visit{
		PatientID: uuid.New(), ProviderID: uuid.New(),
		Type: TypeRemote, Status: StatusConfirmed,
		ScheduledAt: start, DurationMinutes: 30,
		Reminders: []Reminder{
			{ID: uuid.New(), Kind: Reminder24Hours, ScheduledFor: start.Add(-24 * time.Hour), Channels: []Channel{ChannelEmail}},
			{ID: uuid.New(), Kind: Reminder30Minutes, ScheduledFor: start.Add(-30 * time.Minute), Channels: []Channel{ChannelEmail}, Sent: true, SentAt: &sentAt},
			{ID: uuid.New(), Kind: Reminder15Minutes, ScheduledFor: start.Add(-15 * time.Minute), Channels: []Channel{ChannelEmail}},
		},
	})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	sched.Schedule(v)

	clock.Advance(2 * time.Hour)

	// The 24h mark is already past and the 30m one is marked sent; only the
	// 15m reminder may go out.
	if notifier.count() != 1 {
		t.Fatalf("expected exactly 1 send, got %d", notifier.count())
	}
	if got := notifier.bySubject("Upcoming visit in 15m"); len(got) != 1 {
		t.Error("the surviving send is not the 15m reminder")
	}
}
