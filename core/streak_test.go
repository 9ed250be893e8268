package core

import (
	"testing"
	"time"
)

func TestNextStreak(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	day := 24 * time.Hour

	up := NextStreak(now.Add(-day), now, time.UTC, 4, 4)
	if up.Streak != 5 || up.Longest != 5 || !up.Changed {
		t.Fatalf("yesterday: %+v", up)
	}
	up = NextStreak(now.Add(-3*day), now, time.UTC, 4, 9)
	if up.Streak != 1 || up.Longest != 9 {
		t.Fatalf("gap: %+v", up)
	}
	up = NextStreak(time.Time{}, now, time.UTC, 0, 0)
	if up.Streak != 1 || up.Longest != 1 {
		t.Fatalf("first play: %+v", up)
	}
	up = NextStreak(StartOfDay(now, time.UTC), now, time.UTC, 4, 6)
	if up.Streak != 4 || up.Longest != 6 || up.Changed {
		t.Fatalf("same day: %+v", up)
	}
}

func TestNextStreakLateNightYesterday(t *testing.T) {
	last := time.Date(2024, 3, 14, 23, 59, 0, 0, time.UTC)
	now := time.Date(2024, 3, 15, 0, 1, 0, 0, time.UTC)
	if up := NextStreak(last, now, time.UTC, 2, 2); up.Streak != 3 {
		t.Fatalf("got %+v", up)
	}
}

func TestNextStreakUsesLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	// 23:00 and 03:00 UTC the next day are the same evening in New York.
	last := time.Date(2024, 3, 14, 23, 0, 0, 0, time.UTC)
	now := time.Date(2024, 3, 15, 3, 0, 0, 0, time.UTC)
	if up := NextStreak(last, now, time.UTC, 2, 2); up.Streak != 3 {
		t.Fatalf("utc: %+v", up)
	}
	if up := NextStreak(last, now, ny, 2, 2); up.Changed {
		t.Fatalf("new york: %+v", up)
	}
}

func TestDaysBetweenAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	before := time.Date(2024, 3, 9, 12, 0, 0, 0, ny)
	after := time.Date(2024, 3, 10, 12, 0, 0, 0, ny)
	if d := DaysBetween(before, after, ny); d != 1 {
		t.Fatalf("got %d", d)
	}
}
