package visit

import "time"

// Clock abstracts wall time so reminder scheduling is testable with a
// simulated clock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a cancellable deferred callback handle.
type Timer interface {
	Stop() bool
}

type systemClock struct{}

// SystemClock is the production Clock backed by the time package.
var SystemClock Clock = systemClock{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
