package engine

import (
	"context"
	"time"

	"triviakit/core"
)

type unlockBatch struct {
	achievements []core.AchievementUnlock
	belts        []core.BeltUnlock
	events       []core.Event
}

// unlock evaluates every unowned achievement and belt against one stats
// snapshot of p and records what it unlocks. Achievement bonus XP is added to
// p; the caller recomputes the level.
func (s *ProgressionService) unlock(ctx context.Context, tx UserTx, p *core.UserProgress, cat catalogView, now time.Time) (unlockBatch, error) {
	out := unlockBatch{achievements: []core.AchievementUnlock{}, belts: []core.BeltUnlock{}}

	ownedA := map[core.AchievementID]bool{}
	achUnlocks, err := tx.AchievementUnlocks(ctx)
	if err != nil {
		return out, err
	}
	for _, u := range achUnlocks {
		ownedA[u.AchievementID] = true
	}
	ownedB := map[core.BeltID]bool{}
	beltUnlocks, err := tx.BeltUnlocks(ctx)
	if err != nil {
		return out, err
	}
	for _, u := range beltUnlocks {
		ownedB[u.BeltID] = true
	}

	st, err := buildStats(ctx, tx, *p, cat)
	if err != nil {
		return out, err
	}
	st.OwnedBelts = int64(len(beltUnlocks))

	for _, a := range core.UnlockableAchievements(cat.achievements, ownedA, st) {
		u := core.AchievementUnlock{UserID: p.UserID, AchievementID: a.ID, UnlockedAt: now, BonusXP: a.XPReward}
		if err := tx.InsertAchievementUnlock(ctx, u); err != nil {
			return out, err
		}
		if p.TotalXP, err = core.AddSafe(p.TotalXP, a.XPReward); err != nil {
			return out, err
		}
		out.achievements = append(out.achievements, u)
		out.events = append(out.events, core.NewAchievementUnlocked(p.UserID, a, now))
		if a.XPReward > 0 {
			out.events = append(out.events, core.NewXPAwarded(p.UserID, "", a.XPReward, p.TotalXP, now))
		}
	}
	for _, b := range core.UnlockableBelts(cat.belts, ownedB, st) {
		u := core.BeltUnlock{UserID: p.UserID, BeltID: b.ID, UnlockedAt: now}
		if err := tx.InsertBeltUnlock(ctx, u); err != nil {
			return out, err
		}
		out.belts = append(out.belts, u)
		out.events = append(out.events, core.NewBeltUnlocked(p.UserID, b, now))
	}
	return out, nil
}

// buildStats assembles the unlock snapshot for p from the user's answer history
// and category progress.
func buildStats(ctx context.Context, tx UserTx, p core.UserProgress, cat catalogView) (core.Stats, error) {
	sum, err := tx.AnswerSummary(ctx, core.PerfectRunLength)
	if err != nil {
		return core.Stats{}, err
	}
	list, err := tx.CategoryProgressList(ctx)
	if err != nil {
		return core.Stats{}, err
	}
	slugs := make(map[core.CategoryID]string, len(cat.categories))
	for _, c := range cat.categories {
		slugs[c.ID] = c.Slug
	}
	st := core.Stats{
		TotalAnswers:    sum.Total,
		TotalCorrect:    sum.Correct,
		Level:           p.Level,
		CurrentStreak:   p.CurrentStreak,
		TotalCategories: int64(len(cat.categories)),
		Categories:      make(map[string]core.CategoryStats, len(list)),
		CorrectByTime:   sum.CorrectByTime,
		RecentAnswers:   sum.Recent,
	}
	for _, cp := range list {
		slug, ok := slugs[cp.CategoryID]
		if !ok {
			continue
		}
		st.Categories[slug] = core.CategoryStats{
			CategoryID:      cp.CategoryID,
			Slug:            slug,
			Answered:        cp.QuestionsAnswered,
			Correct:         cp.QuestionsCorrect,
			MasteryLevel:    cp.MasteryLevel,
			ActiveQuestions: cat.counts[cp.CategoryID],
		}
	}
	return st, nil
}
