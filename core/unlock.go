package core

import (
	"fmt"
	"sort"
)

// CategoryStats is one category's contribution to a Stats snapshot.
type CategoryStats struct {
	CategoryID      CategoryID
	Slug            string
	Answered        int64
	Correct         int64
	MasteryLevel    int
	ActiveQuestions int64
}

// Stats is a read-only snapshot of a user's aggregates taken before an unlock batch.
type Stats struct {
	TotalAnswers    int64
	TotalCorrect    int64
	Level           int64
	CurrentStreak   int64
	TotalCategories int64
	// Categories is keyed by category slug.
	Categories map[string]CategoryStats
	// CorrectByTime counts correct answers by time taken in seconds.
	CorrectByTime map[int64]int64
	// RecentAnswers holds correctness of the latest answers, newest first.
	RecentAnswers []bool
	OwnedBelts    int64
}

// Evaluate reports whether stats satisfy c.
func Evaluate(c Criteria, st Stats) bool {
	switch c := c.(type) {
	case FirstQuiz:
		return st.TotalAnswers >= 1
	case TotalCorrect:
		return st.TotalCorrect >= c.Min
	case TotalAnswers:
		return st.TotalAnswers >= c.Min
	case MinLevel:
		return st.Level >= c.Level
	case MinStreak:
		return st.CurrentStreak >= c.Days
	case CategoryCorrect:
		cs, ok := st.Categories[c.Category]
		return ok && cs.Correct >= c.Min
	case CategoryAccuracy:
		cs, ok := st.Categories[c.Category]
		if !ok || cs.Answered < c.MinAnswered || cs.Answered == 0 {
			return false
		}
		return cs.Correct*100 >= c.Percent*cs.Answered
	case CategoryMastery:
		cs, ok := st.Categories[c.Category]
		return ok && int64(cs.MasteryLevel) >= c.Level
	case AllCategories:
		var played int64
		for _, cs := range st.Categories {
			if cs.Answered > 0 {
				played++
			}
		}
		return played >= st.TotalCategories
	case SpeedDemon:
		var fast int64
		for secs, n := range st.CorrectByTime {
			if secs <= c.MaxSeconds {
				fast += n
			}
		}
		return fast >= SpeedDemonCount
	case PerfectRun:
		if len(st.RecentAnswers) < PerfectRunLength {
			return false
		}
		for _, ok := range st.RecentAnswers[:PerfectRunLength] {
			if !ok {
				return false
			}
		}
		return true
	case CategoryComplete:
		cs, ok := st.Categories[c.Category]
		return ok && cs.Answered > 0 && cs.Answered >= cs.ActiveQuestions
	case TotalBelts:
		return st.OwnedBelts >= c.Min
	case nil:
		return false
	default:
		panic(fmt.Sprintf("core: unhandled criteria %T", c))
	}
}

// UnlockableAchievements returns the catalog achievements not in owned whose
// criteria hold for st, ordered by ID. Every candidate sees the same snapshot.
func UnlockableAchievements(catalog []Achievement, owned map[AchievementID]bool, st Stats) []Achievement {
	out := make([]Achievement, 0)
	for _, a := range catalog {
		if owned[a.ID] || a.Criteria == nil {
			continue
		}
		if Evaluate(a.Criteria, st) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UnlockableBelts is UnlockableAchievements for belts.
func UnlockableBelts(catalog []Belt, owned map[BeltID]bool, st Stats) []Belt {
	out := make([]Belt, 0)
	for _, b := range catalog {
		if owned[b.ID] || b.Criteria == nil {
			continue
		}
		if Evaluate(b.Criteria, st) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
