package visit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// fakeClock is a manually advanced clock. Timers fire synchronously from
// Advance, in fire-time order.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	fireAt  time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, fireAt: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.fireAt.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].fireAt.Before(due[j].fireAt) })
	c.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

// captureNotifier records every dispatch.
type captureNotifier struct {
	mu    sync.Mutex
	sends []capturedSend
}

type capturedSend struct {
	VisitID string
	Channel Channel
	Subject string
}

func (n *captureNotifier) Send(_ context.Context, v *Visit, channel Channel, subject, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends = append(n.sends, capturedSend{VisitID: v.ID.String(), Channel: channel, Subject: subject})
	return nil
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sends)
}

func (n *captureNotifier) bySubject(subject string) []capturedSend {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []capturedSend
	for _, s := range n.sends {
		if s.Subject == subject {
			out = append(out, s)
		}
	}
	return out
}

// newTestService wires a service over the in-memory store with a fake clock
// and a capturing notifier.
func newTestService(start time.Time) (*Service, *MemoryStore, *captureNotifier, *fakeClock) {
	clock := newFakeClock(start)
	store := NewMemoryStore(clock)
	notifier := &captureNotifier{}
	svc := NewService(ServiceOptions{
		Store:    store,
		Avail:    store,
		Notifier: notifier,
		Clock:    clock,
	})
	return svc, store, notifier, clock
}
