package domain

import (
	"testing"
	"time"
)

// 2025-05-07 is a Wednesday.
func utc(d, hh, mm int) time.Time {
	return time.Date(2025, time.May, d, hh, mm, 0, 0, time.UTC)
}

func TestNextOccurrence_LaterToday(t *testing.T) {
	got := NextOccurrence(time.Wednesday, 14, 0, 5, utc(7, 13, 55))
	if want := utc(7, 13, 55); !got.Equal(want) {
		t.Fatalf("want %s, got %s", want, got)
	}
}

func TestNextOccurrence_SameDayAlreadyPassed(t *testing.T) {
	got := NextOccurrence(time.Wednesday, 14, 0, 0, utc(7, 14, 1))
	if want := utc(14, 14, 0); !got.Equal(want) {
		t.Fatalf("want %s, got %s", want, got)
	}
}

func TestNextOccurrence_ExactlyAtStartIsNotPast(t *testing.T) {
	got := NextOccurrence(time.Wednesday, 14, 0, 0, utc(7, 14, 0))
	if want := utc(7, 14, 0); !got.Equal(want) {
		t.Fatalf("want %s, got %s", want, got)
	}
}

func TestNextOccurrence_WeekWraparound(t *testing.T) {
	// Monday target seen from Wednesday: five days ahead.
	got := NextOccurrence(time.Monday, 9, 30, 10, utc(7, 20, 0))
	if want := utc(12, 9, 20); !got.Equal(want) {
		t.Fatalf("want %s, got %s", want, got)
	}
}

func TestNextOccurrence_LeadCrossesMidnight(t *testing.T) {
	got := NextOccurrence(time.Thursday, 0, 5, 15, utc(7, 23, 50))
	if want := utc(7, 23, 50); !got.Equal(want) {
		t.Fatalf("want %s, got %s", want, got)
	}
}

func TestNextOccurrence_LeadUnderflowIsNotAdjusted(t *testing.T) {
	// Start is 3 minutes away, a 10 minute lead lands in the past.
	got := NextOccurrence(time.Wednesday, 14, 0, 10, utc(7, 13, 57))
	if want := utc(7, 13, 50); !got.Equal(want) {
		t.Fatalf("want %s, got %s", want, got)
	}
}

func TestNextOccurrence_NonUTCReference(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	// 2025-05-08 04:00 in UTC+9 is still Wednesday 19:00 UTC.
	ref := time.Date(2025, time.May, 8, 4, 0, 0, 0, loc)
	got := NextOccurrence(time.Wednesday, 20, 0, 0, ref)
	if want := utc(7, 20, 0); !got.Equal(want) {
		t.Fatalf("want %s, got %s", want, got)
	}
}

func TestNextOccurrence_Properties(t *testing.T) {
	ref := utc(4, 0, 0) // Sunday
	for i := 0; i < 7*24*60; i += 37 {
		now := ref.Add(time.Duration(i) * time.Minute)
		for dow := 0; dow < 7; dow++ {
			for _, lead := range []int{0, 5, 10, 15, 90, 1440} {
				got := NextOccurrence(time.Weekday(dow), 14, 30, lead, now)
				start := got.Add(time.Duration(lead) * time.Minute)
				if start.Before(now) {
					t.Fatalf("start %s before now %s (dow=%d lead=%d)", start, now, dow, lead)
				}
				if start.Sub(now) >= 7*24*time.Hour {
					t.Fatalf("start %s more than a week after %s", start, now)
				}
				if int(start.Weekday()) != dow {
					t.Fatalf("weekday want %d, got %s", dow, start.Weekday())
				}
				if start.Hour() != 14 || start.Minute() != 30 {
					t.Fatalf("clock want 14:30, got %s", start.Format("15:04"))
				}
			}
		}
	}
}

func TestInWindow(t *testing.T) {
	from := utc(7, 13, 55)
	if !InWindow(from, from, time.Minute) {
		t.Fatal("window start must be inside")
	}
	if InWindow(from.Add(time.Minute), from, time.Minute) {
		t.Fatal("window end must be outside")
	}
	if InWindow(from.Add(-time.Second), from, time.Minute) {
		t.Fatal("instant before window must be outside")
	}
}

func TestEventNextReminder(t *testing.T) {
	e := &Event{DayOfWeek: 3, StartTime: "14:00", DurationMinutes: 60, IsActive: true}
	got, err := e.NextReminder(5, utc(7, 13, 55))
	if err != nil {
		t.Fatalf("next reminder: %v", err)
	}
	if want := utc(7, 13, 55); !got.Equal(want) {
		t.Fatalf("want %s, got %s", want, got)
	}

	e.StartTime = "25:00"
	if _, err := e.NextReminder(5, utc(7, 13, 55)); err == nil {
		t.Fatal("expected error for invalid start time")
	}
}
