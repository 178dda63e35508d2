package domain

import "time"

// StandardLeadTimes are checked for every active event regardless of
// member preferences.
var StandardLeadTimes = []int{0, 5, 10}

// NextOccurrence returns the next UTC instant on weekday at hour:minute that
// is not before ref, minus leadMinutes. When today's slot has already passed
// the result rolls forward exactly one week. The lead subtraction may land
// before ref; callers decide what to do with that.
func NextOccurrence(weekday time.Weekday, hour, minute, leadMinutes int, ref time.Time) time.Time {
	ref = ref.UTC()
	daysUntil := (int(weekday) - int(ref.Weekday()) + 7) % 7
	start := time.Date(ref.Year(), ref.Month(), ref.Day()+daysUntil, hour, minute, 0, 0, time.UTC)
	if start.Before(ref) {
		start = start.AddDate(0, 0, 7)
	}
	return start.Add(-time.Duration(leadMinutes) * time.Minute)
}

// InWindow reports whether t lies in the half-open interval [from, from+width).
func InWindow(t, from time.Time, width time.Duration) bool {
	return !t.Before(from) && t.Before(from.Add(width))
}
