package domain

import (
	"fmt"
	"time"
)

// Event is a weekly-recurring alliance event. The week is anchored in UTC
// and DayOfWeek follows time.Weekday (0 = Sunday).
type Event struct {
	ID              string
	Name            string
	Description     string
	DayOfWeek       int
	StartTime       string // HH:MM, UTC
	DurationMinutes int
	IsActive        bool
	CreatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Validate checks the invariants every stored event must satisfy.
func (e *Event) Validate() error {
	if e.DayOfWeek < 0 || e.DayOfWeek > 6 {
		return fmt.Errorf("%w: %d", ErrInvalidDayOfWeek, e.DayOfWeek)
	}
	if _, _, err := ParseStartTime(e.StartTime); err != nil {
		return err
	}
	if e.DurationMinutes < 1 {
		return fmt.Errorf("%w: %d minutes", ErrInvalidDuration, e.DurationMinutes)
	}
	return nil
}

// NextReminder returns the instant at which a reminder leadMinutes before
// the event's next start is due.
func (e *Event) NextReminder(leadMinutes int, ref time.Time) (time.Time, error) {
	h, m, err := ParseStartTime(e.StartTime)
	if err != nil {
		return time.Time{}, err
	}
	return NextOccurrence(time.Weekday(e.DayOfWeek), h, m, leadMinutes, ref), nil
}
