// Package leaderboard ranks users by XP on a global board, one board per ISO
// week and one board per category.
package leaderboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"triviakit/core"
)

// BoardID names one ranking.
type BoardID string

const globalBoard BoardID = "global"

// Global ranks users by total XP.
func Global() BoardID { return globalBoard }

// Weekly ranks users by XP earned during the ISO week containing t in loc.
func Weekly(t time.Time, loc *time.Location) BoardID {
	return BoardID("weekly:" + WeekKey(t, loc))
}

// Category ranks users by XP earned in one category.
func Category(c core.CategoryID) BoardID { return BoardID("category:" + string(c)) }

// WeekKey formats the ISO week of t in loc as 2006-W01.
func WeekKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	y, w := t.In(loc).ISOWeek()
	return fmt.Sprintf("%d-W%02d", y, w)
}

// ParseBoard validates a board name coming from a request: "global",
// "weekly" (the current week), "weekly:2024-W24" or "category:<id>".
func ParseBoard(s string, now time.Time, loc *time.Location) (BoardID, error) {
	switch {
	case s == "" || s == string(globalBoard):
		return globalBoard, nil
	case s == "weekly":
		return Weekly(now, loc), nil
	case strings.HasPrefix(s, "weekly:") && len(s) > len("weekly:"):
		return BoardID(s), nil
	case strings.HasPrefix(s, "category:") && len(s) > len("category:"):
		return BoardID(s), nil
	}
	return "", core.Invalid("board", "unknown leaderboard "+s)
}

// IsWeekly reports whether b is a weekly board.
func (b BoardID) IsWeekly() bool { return strings.HasPrefix(string(b), "weekly:") }

// Entry is one ranked user. Rank starts at 1.
type Entry struct {
	User  core.UserID `json:"user_id"`
	Score int64       `json:"score"`
	Rank  int64       `json:"rank"`
}

// Boards stores scores for any number of boards.
type Boards interface {
	// Incr adds delta to user's score on board and returns the new score.
	Incr(ctx context.Context, board BoardID, user core.UserID, delta int64) (int64, error)
	// Set overwrites user's score on board.
	Set(ctx context.Context, board BoardID, user core.UserID, score int64) error
	// Top returns up to limit entries starting at offset, best first.
	Top(ctx context.Context, board BoardID, offset, limit int) ([]Entry, error)
	// Rank returns user's entry; ok is false when the user has no score.
	Rank(ctx context.Context, board BoardID, user core.UserID) (Entry, bool, error)
}
