package slotstore

import (
	"testing"
	"time"
)

func at(h, m int) time.Time {
	return time.Date(2026, 6, 1, h, m, 0, 0, time.UTC)
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"disjoint", Interval{at(9, 0), at(9, 30)}, Interval{at(10, 0), at(10, 30)}, false},
		{"touching edges do not overlap", Interval{at(9, 0), at(9, 30)}, Interval{at(9, 30), at(10, 0)}, false},
		{"partial overlap", Interval{at(9, 0), at(9, 45)}, Interval{at(9, 30), at(10, 0)}, true},
		{"contained", Interval{at(9, 0), at(11, 0)}, Interval{at(9, 30), at(10, 0)}, true},
		{"identical", Interval{at(9, 0), at(9, 30)}, Interval{at(9, 0), at(9, 30)}, true},
	}
	for _, tc := range cases {
		if got := Overlaps(tc.a, tc.b); got != tc.want {
			t.Errorf("%s: Overlaps = %v, want %v", tc.name, got, tc.want)
		}
		if got := Overlaps(tc.b, tc.a); got != tc.want {
			t.Errorf("%s (swapped): Overlaps = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestOverlapsAny(t *testing.T) {
	existing := []Interval{
		{at(9, 0), at(9, 30)},
		{at(11, 0), at(11, 30)},
	}
	if OverlapsAny(Interval{at(10, 0), at(10, 30)}, existing) {
		t.Fatal("gap interval should not overlap")
	}
	if !OverlapsAny(Interval{at(9, 15), at(9, 45)}, existing) {
		t.Fatal("expected overlap with first interval")
	}
}

func TestValidRange(t *testing.T) {
	now := time.Date(2026, 5, 31, 15, 0, 0, 0, time.UTC)
	day := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	if !ValidRange(day, at(9, 0), at(9, 30), now) {
		t.Fatal("future day with start < end should be valid")
	}
	if ValidRange(day, at(9, 30), at(9, 30), now) {
		t.Fatal("zero-length range should be invalid")
	}
	if ValidRange(day, at(9, 30), at(9, 0), now) {
		t.Fatal("inverted range should be invalid")
	}
	past := time.Date(2026, 5, 30, 0, 0, 0, 0, time.UTC)
	if ValidRange(past, past.Add(9*time.Hour), past.Add(10*time.Hour), now) {
		t.Fatal("past day should be invalid")
	}
	sameDay := time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC)
	if !ValidRange(sameDay, sameDay.Add(16*time.Hour), sameDay.Add(17*time.Hour), now) {
		t.Fatal("today should still be valid")
	}
}
