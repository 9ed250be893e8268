package core

import "time"

// StreakUpdate is the outcome of applying one day of play to a streak.
type StreakUpdate struct {
	Streak  int64
	Longest int64
	// Changed is false when the user already played on the same day.
	Changed bool
}

// StartOfDay truncates t to midnight of its calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DaysBetween counts calendar days from a to b in loc. Civil dates are compared
// through UTC so DST transitions never produce a 23 or 25 hour day.
func DaysBetween(a, b time.Time, loc *time.Location) int64 {
	if loc == nil {
		loc = time.UTC
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int64(db.Sub(da) / (24 * time.Hour))
}

// NextStreak applies a play at now to a streak last advanced on lastPlayed.
// A zero lastPlayed means the user never played.
func NextStreak(lastPlayed, now time.Time, loc *time.Location, current, longest int64) StreakUpdate {
	next := int64(1)
	if !lastPlayed.IsZero() {
		// a last-played date ahead of now (clock skew) counts as today
		switch d := DaysBetween(lastPlayed, now, loc); {
		case d <= 0:
			return StreakUpdate{Streak: current, Longest: max(longest, current)}
		case d == 1:
			next = current + 1
		}
	}
	return StreakUpdate{Streak: next, Longest: max(longest, next), Changed: true}
}
