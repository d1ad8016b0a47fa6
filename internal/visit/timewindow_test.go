package visit

import (
	"testing"
	"time"
)

func TestIntervalsOverlap_HalfOpen(t *testing.T) {
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

	cases := []struct {
		name                           string
		aStart, aEnd, bStart, bEnd     time.Time
		want                           bool
	}{
		{"back to back does not conflict", at(9, 0), at(10, 0), at(10, 0), at(11, 0), false},
		{"partial overlap conflicts", at(9, 0), at(10, 0), at(9, 30), at(10, 30), true},
		{"containment conflicts", at(9, 0), at(12, 0), at(10, 0), at(10, 30), true},
		{"identical windows conflict", at(9, 0), at(10, 0), at(9, 0), at(10, 0), true},
		{"disjoint does not conflict", at(9, 0), at(10, 0), at(14, 0), at(15, 0), false},
		{"touching at start does not conflict", at(10, 0), at(11, 0), at(9, 0), at(10, 0), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IntervalsOverlap(tc.aStart, tc.aEnd, tc.bStart, tc.bEnd); got != tc.want {
				t.Errorf("IntervalsOverlap(%v,%v,%v,%v) = %v, want %v", tc.aStart, tc.aEnd, tc.bStart, tc.bEnd, got, tc.want)
			}
			// Symmetry.
			if got := IntervalsOverlap(tc.bStart, tc.bEnd, tc.aStart, tc.aEnd); got != tc.want {
				t.Errorf("IntervalsOverlap is not symmetric for %s", tc.name)
			}
		})
	}
}

func TestEndOf(t *testing.T) {
	start := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	if got := EndOf(start, 45); !got.Equal(start.Add(45 * time.Minute)) {
		t.Errorf("EndOf = %v, want %v", got, start.Add(45*time.Minute))
	}
}
