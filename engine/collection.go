package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"triviakit/core"
)

// ToggleAchievementEquip flips the equipped flag of an owned achievement and
// returns the new state. At most Settings.DisplayLimit can be equipped.
func (s *ProgressionService) ToggleAchievementEquip(ctx context.Context, user core.UserID, id core.AchievementID) (bool, error) {
	user, err := core.NormalizeUserID(user)
	if err != nil {
		return false, err
	}
	var on bool
	err = s.store.WithUser(ctx, user, func(tx UserTx) error {
		unlocks, err := tx.AchievementUnlocks(ctx)
		if err != nil {
			return err
		}
		var (
			found    *core.AchievementUnlock
			equipped int
		)
		for i := range unlocks {
			if unlocks[i].Equipped {
				equipped++
			}
			if unlocks[i].AchievementID == id {
				found = &unlocks[i]
			}
		}
		if found == nil {
			return fmt.Errorf("achievement %s: %w", id, core.ErrNotUnlocked)
		}
		if !found.Equipped && equipped >= s.settings.DisplayLimit {
			return fmt.Errorf("at most %d achievements can be equipped: %w", s.settings.DisplayLimit, core.ErrDisplayLimit)
		}
		on = !found.Equipped
		return tx.SetAchievementEquipped(ctx, id, on)
	})
	return on, err
}

// ToggleBeltDisplay flips the displayed flag of an owned belt and returns the
// new state. At most Settings.DisplayLimit can be displayed.
func (s *ProgressionService) ToggleBeltDisplay(ctx context.Context, user core.UserID, id core.BeltID) (bool, error) {
	user, err := core.NormalizeUserID(user)
	if err != nil {
		return false, err
	}
	var on bool
	err = s.store.WithUser(ctx, user, func(tx UserTx) error {
		unlocks, err := tx.BeltUnlocks(ctx)
		if err != nil {
			return err
		}
		displayed, current, owned := 0, false, false
		for _, u := range unlocks {
			if u.Displayed {
				displayed++
			}
			if u.BeltID == id {
				owned, current = true, u.Displayed
			}
		}
		if !owned {
			return fmt.Errorf("belt %s: %w", id, core.ErrNotUnlocked)
		}
		if !current && displayed >= s.settings.DisplayLimit {
			return fmt.Errorf("at most %d belts can be displayed: %w", s.settings.DisplayLimit, core.ErrDisplayLimit)
		}
		on = !current
		return tx.SetBeltDisplayed(ctx, id, on)
	})
	return on, err
}

// FeaturedBelt returns the belt of the week. The pick advances every seven days
// counted from January 1st in the configured location.
func (s *ProgressionService) FeaturedBelt(ctx context.Context) (core.Belt, error) {
	belts, err := s.store.Belts(ctx)
	if err != nil {
		return core.Belt{}, err
	}
	if len(belts) == 0 {
		return core.Belt{}, core.ErrBeltNotFound
	}
	sort.Slice(belts, func(i, j int) bool { return belts[i].ID < belts[j].ID })
	return belts[WeekOfYear(s.clock(), s.loc)%len(belts)], nil
}

// WeekOfYear counts whole weeks elapsed since January 1st of t's year in loc.
func WeekOfYear(t time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(t.In(loc).Year(), time.January, 1, 0, 0, 0, 0, loc)
	return int(core.DaysBetween(start, t, loc) / 7)
}
