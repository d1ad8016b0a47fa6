package visit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is the in-memory Store and AvailabilityIndex used by tests and
// single-node deployments. Visits keep their insertion order so conflict
// scans are reproducible.
type MemoryStore struct {
	mu     sync.RWMutex
	order  []uuid.UUID
	visits map[uuid.UUID]*Visit
	slots  map[uuid.UUID]*AvailabilitySlot
	clock  Clock
}

func NewMemoryStore(clock Clock) *MemoryStore {
	if clock == nil {
		clock = SystemClock
	}
	return &MemoryStore{
		visits: make(map[uuid.UUID]*Visit),
		slots:  make(map[uuid.UUID]*AvailabilitySlot),
		clock:  clock,
	}
}

func (m *MemoryStore) Insert(_ context.Context, v *Visit) (*Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := v.Clone()
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	now := m.clock.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	m.visits[stored.ID] = stored
	m.order = append(m.order, stored.ID)

	return stored.Clone(), nil
}

func (m *MemoryStore) FindByID(_ context.Context, id uuid.UUID) (*Visit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.visits[id]
	if !ok {
		return nil, ErrVisitNotFound
	}
	return v.Clone(), nil
}

func (m *MemoryStore) Update(_ context.Context, id uuid.UUID, u Update) (*Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.visits[id]
	if !ok {
		return nil, ErrVisitNotFound
	}
	u.apply(v)
	v.UpdatedAt = m.clock.Now()

	return v.Clone(), nil
}

func (m *MemoryStore) List(_ context.Context, f Filter) ([]Visit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []Visit
	for _, id := range m.order {
		v := m.visits[id]
		if f.Matches(v) {
			results = append(results, *v.Clone())
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].ScheduledAt.Before(results[j].ScheduledAt)
	})

	return results, nil
}

func (m *MemoryStore) ListActiveByProvider(_ context.Context, providerID uuid.UUID) ([]Visit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []Visit
	for _, id := range m.order {
		v := m.visits[id]
		if v.ProviderID == providerID && IsActive(v.Status) {
			results = append(results, *v.Clone())
		}
	}
	return results, nil
}

func (m *MemoryStore) MarkReminderSent(_ context.Context, visitID, reminderID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.visits[visitID]
	if !ok {
		return ErrVisitNotFound
	}
	for i := range v.Reminders {
		r := &v.Reminders[i]
		if r.ID != reminderID {
			continue
		}
		if r.Sent {
			return nil
		}
		r.Sent = true
		t := at
		r.SentAt = &t
		v.UpdatedAt = m.clock.Now()
		return nil
	}
	return nil
}

// AvailabilityIndex implementation.

func (m *MemoryStore) AddSlot(_ context.Context, s *AvailabilitySlot) (*AvailabilitySlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := s.Clone()
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	m.slots[stored.ID] = stored

	return stored.Clone(), nil
}

func (m *MemoryStore) FindOpenSlots(_ context.Context, providerID uuid.UUID, from, to time.Time, visitType Type) ([]AvailabilitySlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []AvailabilitySlot
	for _, s := range m.slots {
		if s.ProviderID != providerID || !s.IsAvailable {
			continue
		}
		if s.StartTime.Before(from) || s.EndTime.After(to) {
			continue
		}
		if !s.Accepts(visitType) || !s.HasCapacity() {
			continue
		}
		results = append(results, *s.Clone())
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].StartTime.Before(results[j].StartTime)
	})

	return results, nil
}

func (m *MemoryStore) FindCoveringSlot(_ context.Context, providerID uuid.UUID, start, end time.Time) (*AvailabilitySlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.slots {
		if s.ProviderID != providerID || !s.IsAvailable {
			continue
		}
		if s.Covers(start, end) {
			return s.Clone(), nil
		}
	}
	return nil, ErrSlotNotFound
}

func (m *MemoryStore) AdjustBookings(_ context.Context, slotID uuid.UUID, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[slotID]
	if !ok {
		return ErrSlotNotFound
	}
	s.CurrentBookings += delta
	if s.CurrentBookings < 0 {
		s.CurrentBookings = 0
	}
	return nil
}
