package visit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryStore_InsertAssignsIdentityAndTimestamps(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))
	store := NewMemoryStore(clock)

	v, err := store.Insert(context.Background(), &Visit{
		PatientID:       uuid.New(),
		ProviderID:      uuid.New(),
		Type:            TypeRemote,
		Status:          StatusScheduled,
		ScheduledAt:     clock.Now().Add(24 * time.Hour),
		DurationMinutes: 30,
		Timezone:        "UTC",
	})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if v.ID == uuid.Nil {
		t.Error("insert did not assign an identity")
	}
	if !v.CreatedAt.Equal(clock.Now()) || !v.UpdatedAt.Equal(clock.Now()) {
		t.Error("insert did not stamp timestamps from the clock")
	}
}

func TestMemoryStore_FindByID_NotFound(t *testing.T) {
	store := NewMemoryStore(nil)
	if _, err := store.FindByID(context.Background(), uuid.New()); !errors.Is(err, ErrVisitNotFound) {
		t.Errorf("expected ErrVisitNotFound, got %v", err)
	}
}

func TestMemoryStore_UpdateIsIsolatedFromCallerMutation(t *testing.T) {
	store := NewMemoryStore(nil)
	v, _ := store.Insert(context.Background(), &Visit{
		PatientID: uuid.New(), ProviderID: uuid.New(),
		Type: TypeClinic, Status: StatusScheduled,
		ScheduledAt: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), DurationMinutes: 30,
	})

	// Mutating the returned copy must not leak into the store.
	v.Notes = "scribbled on the copy"
	stored, _ := store.FindByID(context.Background(), v.ID)
	if stored.Notes != "" {
		t.Error("store state leaked through a returned visit")
	}

	notes := "postpartum follow-up"
	updated, err := store.Update(context.Background(), v.ID, Update{Notes: &notes})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Notes != notes {
		t.Errorf("expected notes %q, got %q", notes, updated.Notes)
	}
}

func TestMemoryStore_ListOrdersByScheduledStart(t *testing.T) {
	store := NewMemoryStore(nil)
	provider := uuid.New()
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	// Insert out of chronological order.
	for _, offset := range []time.Duration{2 * time.Hour, 0, time.Hour} {
		_, err := store.Insert(context.Background(), &Visit{
			PatientID: uuid.New(), ProviderID: provider,
			Type: TypeRemote, Status: StatusScheduled,
			ScheduledAt: base.Add(offset), DurationMinutes: 30,
		})
		if err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	visits, err := store.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(visits) != 3 {
		t.Fatalf("expected 3 visits, got %d", len(visits))
	}
	for i := 1; i < len(visits); i++ {
		if visits[i].ScheduledAt.Before(visits[i-1].ScheduledAt) {
			t.Error("list output is not ascending by scheduled start")
		}
	}
}

func TestMemoryStore_ListFilters(t *testing.T) {
	store := NewMemoryStore(nil)
	providerA := uuid.New()
	providerB := uuid.New()
	patient := uuid.New()
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	seed := []*Visit{
		{PatientID: patient, ProviderID: providerA, Type: TypeRemote, Status: StatusScheduled, ScheduledAt: base, DurationMinutes: 30, Notes: "routine antenatal check"},
		{PatientID: uuid.New(), ProviderID: providerA, Type: TypeClinic, Status: StatusCancelled, ScheduledAt: base.Add(time.Hour), DurationMinutes: 30},
		{PatientID: uuid.New(), ProviderID: providerB, Type: TypeHome, Status: StatusScheduled, ScheduledAt: base.Add(48 * time.Hour), DurationMinutes: 60,
			Location: &Location{Address: "12 Rosemary Lane"}},
	}
	for _, v := range seed {
		if _, err := store.Insert(context.Background(), v); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	cases := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"by status", Filter{Statuses: []Status{StatusScheduled}}, 2},
		{"by type", Filter{Types: []Type{TypeHome}}, 1},
		{"by provider", Filter{ProviderID: providerA}, 2},
		{"by patient", Filter{PatientID: patient}, 1},
		{"by date range", Filter{From: base, To: base.Add(2 * time.Hour)}, 2},
		{"by notes substring", Filter{Search: "ANTENATAL"}, 1},
		{"by address substring", Filter{Search: "rosemary"}, 1},
		{"combined", Filter{ProviderID: providerA, Statuses: []Status{StatusCancelled}}, 1},
		{"no match", Filter{Search: "no such text"}, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			visits, err := store.List(context.Background(), tc.filter)
			if err != nil {
				t.Fatalf("list failed: %v", err)
			}
			if len(visits) != tc.want {
				t.Errorf("expected %d visits, got %d", tc.want, len(visits))
			}
		})
	}
}

func TestMemoryStore_ListActiveByProviderKeepsInsertionOrder(t *testing.T) {
	store := NewMemoryStore(nil)
	provider := uuid.New()
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	// Later start inserted first: the active scan must preserve insertion
	// order, not chronological order.
	first, _ := store.Insert(context.Background(), &Visit{
		PatientID: uuid.New(), ProviderID: provider,
		Type: TypeRemote, Status: StatusScheduled,
		ScheduledAt: base.Add(3 * time.Hour), DurationMinutes: 30,
	})
	_, _ = store.Insert(context.Background(), &Visit{
		PatientID: uuid.New(), ProviderID: provider,
		Type: TypeRemote, Status: StatusScheduled,
		ScheduledAt: base, DurationMinutes: 30,
	})
	_, _ = store.Insert(context.Background(), &Visit{
		PatientID: uuid.New(), ProviderID: provider,
		Type: TypeRemote, Status: StatusCompleted,
		ScheduledAt: base.Add(time.Hour), DurationMinutes: 30,
	})

	active, err := store.ListActiveByProvider(context.Background(), provider)
	if err != nil {
		t.Fatalf("list active failed: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active visits, got %d", len(active))
	}
	if active[0].ID != first.ID {
		t.Error("active scan did not preserve insertion order")
	}
}

func TestMemoryStore_FindOpenSlots(t *testing.T) {
	store := NewMemoryStore(nil)
	provider := uuid.New()
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	open, _ := store.AddSlot(context.Background(), &AvailabilitySlot{
		ProviderID: provider, StartTime: base, EndTime: base.Add(3 * time.Hour),
		IsAvailable: true, VisitTypes: []Type{TypeRemote}, MaxBookings: 2,
	})
	// Full slot.
	_, _ = store.AddSlot(context.Background(), &AvailabilitySlot{
		ProviderID: provider, StartTime: base.Add(4 * time.Hour), EndTime: base.Add(5 * time.Hour),
		IsAvailable: true, VisitTypes: []Type{TypeRemote}, MaxBookings: 1, CurrentBookings: 1,
	})
	// Wrong type.
	_, _ = store.AddSlot(context.Background(), &AvailabilitySlot{
		ProviderID: provider, StartTime: base.Add(5 * time.Hour), EndTime: base.Add(6 * time.Hour),
		IsAvailable: true, VisitTypes: []Type{TypeHome}, MaxBookings: 1,
	})
	// Unavailable.
	_, _ = store.AddSlot(context.Background(), &AvailabilitySlot{
		ProviderID: provider, StartTime: base.Add(6 * time.Hour), EndTime: base.Add(7 * time.Hour),
		IsAvailable: false, VisitTypes: []Type{TypeRemote}, MaxBookings: 1,
	})

	slots, err := store.FindOpenSlots(context.Background(), provider, base.Add(-time.Hour), base.Add(8*time.Hour), TypeRemote)
	if err != nil {
		t.Fatalf("find open slots failed: %v", err)
	}
	if len(slots) != 1 || slots[0].ID != open.ID {
		t.Fatalf("expected exactly the open remote slot, got %d slots", len(slots))
	}
}

func TestMemoryStore_FindCoveringSlot(t *testing.T) {
	store := NewMemoryStore(nil)
	provider := uuid.New()
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	slot, _ := store.AddSlot(context.Background(), &AvailabilitySlot{
		ProviderID: provider, StartTime: base, EndTime: base.Add(3 * time.Hour),
		IsAvailable: true, VisitTypes: []Type{TypeRemote}, MaxBookings: 1,
	})

	got, err := store.FindCoveringSlot(context.Background(), provider, base.Add(30*time.Minute), base.Add(75*time.Minute))
	if err != nil {
		t.Fatalf("expected covering slot, got error: %v", err)
	}
	if got.ID != slot.ID {
		t.Error("wrong covering slot returned")
	}

	// A window poking past the slot end is not covered.
	if _, err := store.FindCoveringSlot(context.Background(), provider, base.Add(2*time.Hour), base.Add(4*time.Hour)); !errors.Is(err, ErrSlotNotFound) {
		t.Errorf("expected ErrSlotNotFound, got %v", err)
	}
}

func TestMemoryStore_AdjustBookingsClampsAtZero(t *testing.T) {
	store := NewMemoryStore(nil)
	slot, _ := store.AddSlot(context.Background(), &AvailabilitySlot{
		ProviderID: uuid.New(),
		StartTime:  time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		EndTime:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		IsAvailable: true, VisitTypes: []Type{TypeRemote}, MaxBookings: 2,
	})

	if err := store.AdjustBookings(context.Background(), slot.ID, -5); err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	got, _ := store.FindCoveringSlot(context.Background(), slot.ProviderID, slot.StartTime, slot.EndTime)
	if got.CurrentBookings != 0 {
		t.Errorf("expected bookings clamped to 0, got %d", got.CurrentBookings)
	}
}
