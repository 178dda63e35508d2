package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidStartTime = errors.New("invalid start time")
	ErrInvalidDayOfWeek = errors.New("invalid day of week")
	ErrInvalidDuration  = errors.New("invalid duration")
	ErrInvalidLeadTime  = errors.New("invalid lead time")
)

// MaxCustomLead is the largest custom lead-time a member may choose (one day).
const MaxCustomLead = 1440

// ParseStartTime parses "HH:MM" (UTC) into hour and minute.
func ParseStartTime(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: expected HH:MM, got %q", ErrInvalidStartTime, s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: hour %q", ErrInvalidStartTime, parts[0])
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: minute %q", ErrInvalidStartTime, parts[1])
	}
	return hour, minute, nil
}

// ValidateCustomLead checks a member-supplied custom lead-time.
func ValidateCustomLead(m int) error {
	if m < 1 || m > MaxCustomLead {
		return fmt.Errorf("%w: %d (allowed 1..%d)", ErrInvalidLeadTime, m, MaxCustomLead)
	}
	return nil
}
