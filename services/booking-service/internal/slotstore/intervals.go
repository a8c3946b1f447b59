package slotstore

import "time"

type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether the half-open intervals [a.Start,a.End) and
// [b.Start,b.End) intersect.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// OverlapsAny reports whether candidate intersects any of existing.
func OverlapsAny(candidate Interval, existing []Interval) bool {
	for _, e := range existing {
		if Overlaps(candidate, e) {
			return true
		}
	}
	return false
}

// ValidRange reports whether [start,end) is a well-formed future interval:
// start strictly before end, and the day not already past relative to now.
// All times are expected in UTC.
func ValidRange(day, start, end, now time.Time) bool {
	if !end.After(start) {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return !day.Before(today)
}
