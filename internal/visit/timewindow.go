package visit

import "time"

// IntervalsOverlap reports whether [aStart, aEnd) and [bStart, bEnd) overlap.
// Intervals are half-open: a visit ending exactly when another starts does
// not conflict.
func IntervalsOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// EndOf returns the exclusive end instant of a window starting at start and
// lasting durationMinutes.
func EndOf(start time.Time, durationMinutes int) time.Time {
	return start.Add(time.Duration(durationMinutes) * time.Minute)
}
