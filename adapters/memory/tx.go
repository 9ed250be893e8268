package memory

import (
	"context"
	"sort"

	"triviakit/core"
	"triviakit/engine"
)

// userTx mutates a staged copy of one user's state.
type userTx struct{ st *UserState }

func (t *userTx) Progress(context.Context) (core.UserProgress, error) { return t.st.Progress, nil }

func (t *userTx) SaveProgress(_ context.Context, p core.UserProgress) error {
	t.st.Progress = p
	return nil
}

func (t *userTx) PriorAnswer(_ context.Context, q core.QuestionID) (core.AnswerEvent, bool, error) {
	a, ok := t.st.Answers[q]
	return a, ok, nil
}

func (t *userTx) InsertAnswer(_ context.Context, a core.AnswerEvent) error {
	if _, dup := t.st.Answers[a.QuestionID]; dup {
		return core.ErrAlreadyAnswered
	}
	t.st.Answers[a.QuestionID] = a
	t.st.AnswerOrder = append(t.st.AnswerOrder, a.QuestionID)
	return nil
}

func (t *userTx) AnswerSummary(_ context.Context, recent int) (engine.AnswerSummary, error) {
	sum := engine.AnswerSummary{CorrectByTime: map[int64]int64{}}
	for _, a := range t.st.Answers {
		sum.Total++
		if a.IsCorrect {
			sum.Correct++
			sum.CorrectByTime[a.TimeTaken]++
		}
	}
	for i := len(t.st.AnswerOrder) - 1; i >= 0 && len(sum.Recent) < recent; i-- {
		sum.Recent = append(sum.Recent, t.st.Answers[t.st.AnswerOrder[i]].IsCorrect)
	}
	return sum, nil
}

func (t *userTx) CategoryProgress(_ context.Context, c core.CategoryID) (core.CategoryProgress, bool, error) {
	cp, ok := t.st.Categories[c]
	return cp, ok, nil
}

func (t *userTx) CategoryProgressList(context.Context) ([]core.CategoryProgress, error) {
	out := make([]core.CategoryProgress, 0, len(t.st.Categories))
	for _, cp := range t.st.Categories {
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryID < out[j].CategoryID })
	return out, nil
}

func (t *userTx) SaveCategoryProgress(_ context.Context, cp core.CategoryProgress) error {
	t.st.Categories[cp.CategoryID] = cp
	return nil
}

func (t *userTx) AchievementUnlocks(context.Context) ([]core.AchievementUnlock, error) {
	out := make([]core.AchievementUnlock, 0, len(t.st.Achievements))
	for _, u := range t.st.Achievements {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AchievementID < out[j].AchievementID })
	return out, nil
}

func (t *userTx) BeltUnlocks(context.Context) ([]core.BeltUnlock, error) {
	out := make([]core.BeltUnlock, 0, len(t.st.Belts))
	for _, u := range t.st.Belts {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BeltID < out[j].BeltID })
	return out, nil
}

func (t *userTx) InsertAchievementUnlock(_ context.Context, u core.AchievementUnlock) error {
	if _, ok := t.st.Achievements[u.AchievementID]; ok {
		return nil
	}
	t.st.Achievements[u.AchievementID] = u
	return nil
}

func (t *userTx) InsertBeltUnlock(_ context.Context, u core.BeltUnlock) error {
	if _, ok := t.st.Belts[u.BeltID]; ok {
		return nil
	}
	t.st.Belts[u.BeltID] = u
	return nil
}

func (t *userTx) SetAchievementEquipped(_ context.Context, id core.AchievementID, on bool) error {
	u, ok := t.st.Achievements[id]
	if !ok {
		return core.ErrNotUnlocked
	}
	u.Equipped = on
	t.st.Achievements[id] = u
	return nil
}

func (t *userTx) SetBeltDisplayed(_ context.Context, id core.BeltID, on bool) error {
	u, ok := t.st.Belts[id]
	if !ok {
		return core.ErrNotUnlocked
	}
	u.Displayed = on
	t.st.Belts[id] = u
	return nil
}

func (t *userTx) ChallengeResult(_ context.Context, id core.ChallengeID) (core.ChallengeResult, bool, error) {
	r, ok := t.st.Challenges[id]
	return r, ok, nil
}

func (t *userTx) InsertChallengeResult(_ context.Context, r core.ChallengeResult) error {
	if _, ok := t.st.Challenges[r.ChallengeID]; ok {
		return core.ErrChallengeCompleted
	}
	t.st.Challenges[r.ChallengeID] = r
	return nil
}
