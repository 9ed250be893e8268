package leaderboard

import (
	"context"
	"log/slog"
	"time"

	"triviakit/core"
)

// Subscriber is the part of the event bus the updater needs.
type Subscriber interface {
	Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func()
}

// Updater keeps boards in step with XP events.
type Updater struct {
	boards Boards
	loc    *time.Location
	log    *slog.Logger
	unsub  []func()
}

// NewUpdater subscribes to xp_awarded and xp_spent on bus. The global board
// tracks total XP. Weekly and category boards only ever grow.
func NewUpdater(boards Boards, bus Subscriber, loc *time.Location, log *slog.Logger) *Updater {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	u := &Updater{boards: boards, loc: loc, log: log}
	u.unsub = append(u.unsub,
		bus.Subscribe(core.EventXPAwarded, u.onAwarded),
		bus.Subscribe(core.EventXPSpent, u.onSpent),
	)
	return u
}

func (u *Updater) onAwarded(ctx context.Context, ev core.Event) {
	if err := u.boards.Set(ctx, Global(), ev.UserID, ev.Total); err != nil {
		u.fail(ev, Global(), err)
	}
	if ev.Delta <= 0 {
		return
	}
	weekly := Weekly(ev.Time, u.loc)
	if _, err := u.boards.Incr(ctx, weekly, ev.UserID, ev.Delta); err != nil {
		u.fail(ev, weekly, err)
	}
	if ev.CategoryID != "" {
		cat := Category(ev.CategoryID)
		if _, err := u.boards.Incr(ctx, cat, ev.UserID, ev.Delta); err != nil {
			u.fail(ev, cat, err)
		}
	}
}

func (u *Updater) onSpent(ctx context.Context, ev core.Event) {
	if err := u.boards.Set(ctx, Global(), ev.UserID, ev.Total); err != nil {
		u.fail(ev, Global(), err)
	}
}

func (u *Updater) fail(ev core.Event, board BoardID, err error) {
	u.log.Warn("leaderboard update failed",
		slog.String("user_id", string(ev.UserID)),
		slog.String("board", string(board)),
		slog.Any("error", err))
}

// Backfill seeds the global board from stored progress.
func (u *Updater) Backfill(ctx context.Context, users []core.UserProgress) error {
	for _, p := range users {
		if err := u.boards.Set(ctx, Global(), p.UserID, p.TotalXP); err != nil {
			return err
		}
	}
	return nil
}

// Close stops listening to the bus.
func (u *Updater) Close() {
	for _, f := range u.unsub {
		f()
	}
	u.unsub = nil
}
