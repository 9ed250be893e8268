package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"triviakit/core"
)

// SubmitAnswer is one answer submission.
type SubmitAnswer struct {
	UserID     core.UserID     `json:"user_id"`
	QuestionID core.QuestionID `json:"question_id"`
	Answer     string          `json:"answer"`
	// TimeTaken is in whole seconds.
	TimeTaken int64 `json:"time_taken"`
}

// AnswerResult is what the player sees after answering.
type AnswerResult struct {
	IsCorrect       bool                     `json:"is_correct"`
	CorrectAnswer   string                   `json:"correct_answer"`
	Explanation     string                   `json:"explanation,omitempty"`
	XPEarned        int64                    `json:"xp_earned"`
	TotalXP         int64                    `json:"total_xp"`
	Level           int64                    `json:"level"`
	LeveledUp       bool                     `json:"leveled_up"`
	Streak          int64                    `json:"streak"`
	MasteryLevel    int                      `json:"mastery_level"`
	NewAchievements []core.AchievementUnlock `json:"new_achievements"`
	NewBelts        []core.BeltUnlock        `json:"new_belts"`
	AlreadyAnswered bool                     `json:"already_answered,omitempty"`
}

// catalogView is the catalog data one submission needs, read before the user lock.
type catalogView struct {
	categories   []core.Category
	counts       map[core.CategoryID]int64
	achievements []core.Achievement
	belts        []core.Belt
}

func (s *ProgressionService) loadCatalog(ctx context.Context) (catalogView, error) {
	var (
		v   catalogView
		err error
	)
	if v.categories, err = s.store.Categories(ctx); err != nil {
		return v, err
	}
	if v.counts, err = s.store.ActiveQuestionCounts(ctx); err != nil {
		return v, err
	}
	if v.achievements, err = s.store.Achievements(ctx); err != nil {
		return v, err
	}
	v.belts, err = s.store.Belts(ctx)
	return v, err
}

// SubmitAnswer scores an answer and applies every progression rule it triggers:
// category progress and mastery, XP and level, streak, then achievement and
// belt unlocks. All writes happen in one per-user unit of work and events are
// published only after it commits.
//
// A repeated submission for the same question returns the earlier outcome with
// AlreadyAnswered set, zero XP, and core.ErrAlreadyAnswered.
func (s *ProgressionService) SubmitAnswer(ctx context.Context, in SubmitAnswer) (res AnswerResult, err error) {
	ctx, span := s.startSpan(ctx, "engine.SubmitAnswer", in.UserID)
	span.SetAttributes(attribute.String("question_id", string(in.QuestionID)))
	defer func() {
		if errors.Is(err, core.ErrAlreadyAnswered) {
			endSpan(span, nil)
			return
		}
		endSpan(span, err)
	}()

	user, err := core.NormalizeUserID(in.UserID)
	if err != nil {
		return AnswerResult{}, err
	}
	answer := strings.TrimSpace(in.Answer)
	if answer == "" {
		return AnswerResult{}, core.Invalid("answer", "must not be empty")
	}
	if in.TimeTaken < 0 {
		return AnswerResult{}, core.Invalid("time_taken", "must not be negative")
	}
	q, err := s.store.Question(ctx, in.QuestionID)
	if err != nil {
		return AnswerResult{}, fmt.Errorf("submit answer: %w", err)
	}
	if !q.Active {
		return AnswerResult{}, fmt.Errorf("submit answer: question %s inactive: %w", q.ID, core.ErrQuestionNotFound)
	}
	cat, err := s.loadCatalog(ctx)
	if err != nil {
		return AnswerResult{}, fmt.Errorf("submit answer: load catalog: %w", err)
	}

	var events []core.Event
	err = s.store.WithUser(ctx, user, func(tx UserTx) error {
		var err error
		res, events, err = s.applyAnswer(ctx, tx, user, q, answer, in.TimeTaken, cat)
		return err
	})
	switch {
	case err == nil:
		s.publish(ctx, events)
		return res, nil
	case errors.Is(err, core.ErrAlreadyAnswered):
		if !res.AlreadyAnswered {
			// lost an insert race after the prior-answer check
			if res, err = s.priorResult(ctx, user, q); err != nil {
				return AnswerResult{}, err
			}
		}
		return res, core.ErrAlreadyAnswered
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrValidation):
		return AnswerResult{}, err
	default:
		s.logger.Error("submit answer failed", "user_id", user, "question_id", q.ID, "error", err)
		return AnswerResult{}, fmt.Errorf("submit answer: %w", err)
	}
}

func (s *ProgressionService) applyAnswer(ctx context.Context, tx UserTx, user core.UserID, q core.Question, answer string, took int64, cat catalogView) (AnswerResult, []core.Event, error) {
	p, err := tx.Progress(ctx)
	if err != nil {
		return AnswerResult{}, nil, err
	}
	if prior, ok, err := tx.PriorAnswer(ctx, q.ID); err != nil {
		return AnswerResult{}, nil, err
	} else if ok {
		res, err := duplicateResult(ctx, tx, p, q, prior)
		if err != nil {
			return AnswerResult{}, nil, err
		}
		return res, nil, core.ErrAlreadyAnswered
	}

	now := s.clock()
	correct := q.IsCorrect(answer)
	var xp int64
	if correct {
		xp = core.XPForAnswer(baseXP(q), timeLimit(q), took, p.CurrentStreak)
	}
	rec := core.AnswerEvent{
		ID: newID(), UserID: user, QuestionID: q.ID, CategoryID: q.CategoryID,
		Answer: answer, IsCorrect: correct, TimeTaken: took, XPEarned: xp, AnsweredAt: now,
	}
	if err := tx.InsertAnswer(ctx, rec); err != nil {
		return AnswerResult{}, nil, err
	}
	events := []core.Event{core.NewAnswerRecorded(rec)}

	cp, found, err := tx.CategoryProgress(ctx, q.CategoryID)
	if err != nil {
		return AnswerResult{}, nil, err
	}
	if !found {
		cp = core.CategoryProgress{UserID: user, CategoryID: q.CategoryID}
	}
	cp.QuestionsAnswered++
	if correct {
		cp.QuestionsCorrect++
	}
	cp.CategoryXP += xp
	cp.LastAttempted = now
	mastery, err := core.MasteryLevel(cp.QuestionsAnswered, cp.QuestionsCorrect, cat.counts[q.CategoryID])
	if err != nil {
		return AnswerResult{}, nil, err
	}
	if mastery != cp.MasteryLevel {
		events = append(events, core.NewMasteryChanged(user, q.CategoryID, mastery, now))
	}
	cp.MasteryLevel = mastery
	if err := tx.SaveCategoryProgress(ctx, cp); err != nil {
		return AnswerResult{}, nil, err
	}

	oldLevel := p.Level
	if p.TotalXP, err = core.AddSafe(p.TotalXP, xp); err != nil {
		return AnswerResult{}, nil, err
	}
	p.Level = max(p.Level, core.LevelForXP(p.TotalXP))
	if xp > 0 {
		events = append(events, core.NewXPAwarded(user, q.CategoryID, xp, p.TotalXP, now))
	}

	streak := core.NextStreak(p.LastPlayed, now, s.loc, p.CurrentStreak, p.LongestStreak)
	p.CurrentStreak, p.LongestStreak = streak.Streak, streak.Longest
	p.LastPlayed = core.StartOfDay(now, s.loc)
	if streak.Changed {
		events = append(events, core.NewStreakUpdated(user, p.CurrentStreak, now))
	}

	unlocked, err := s.unlock(ctx, tx, &p, cat, now)
	if err != nil {
		return AnswerResult{}, nil, err
	}
	events = append(events, unlocked.events...)

	p.Level = max(p.Level, core.LevelForXP(p.TotalXP))
	if p.Level > oldLevel {
		events = append(events, core.NewLevelUp(user, p.Level, now))
	}
	p.Updated = now
	if err := tx.SaveProgress(ctx, p); err != nil {
		return AnswerResult{}, nil, err
	}

	return AnswerResult{
		IsCorrect:       correct,
		CorrectAnswer:   q.CorrectAnswer,
		Explanation:     q.Explanation,
		XPEarned:        xp,
		TotalXP:         p.TotalXP,
		Level:           p.Level,
		LeveledUp:       p.Level > oldLevel,
		Streak:          p.CurrentStreak,
		MasteryLevel:    mastery,
		NewAchievements: unlocked.achievements,
		NewBelts:        unlocked.belts,
	}, events, nil
}

func duplicateResult(ctx context.Context, tx UserTx, p core.UserProgress, q core.Question, prior core.AnswerEvent) (AnswerResult, error) {
	cp, _, err := tx.CategoryProgress(ctx, q.CategoryID)
	if err != nil {
		return AnswerResult{}, err
	}
	return AnswerResult{
		IsCorrect:       prior.IsCorrect,
		CorrectAnswer:   q.CorrectAnswer,
		Explanation:     q.Explanation,
		TotalXP:         p.TotalXP,
		Level:           p.Level,
		Streak:          p.CurrentStreak,
		MasteryLevel:    cp.MasteryLevel,
		NewAchievements: []core.AchievementUnlock{},
		NewBelts:        []core.BeltUnlock{},
		AlreadyAnswered: true,
	}, nil
}

func (s *ProgressionService) priorResult(ctx context.Context, user core.UserID, q core.Question) (AnswerResult, error) {
	var res AnswerResult
	err := s.store.WithUser(ctx, user, func(tx UserTx) error {
		p, err := tx.Progress(ctx)
		if err != nil {
			return err
		}
		prior, ok, err := tx.PriorAnswer(ctx, q.ID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: duplicate answer for %s vanished", core.ErrInvariant, q.ID)
		}
		res, err = duplicateResult(ctx, tx, p, q, prior)
		return err
	})
	return res, err
}

func baseXP(q core.Question) int64 {
	if q.XPReward > 0 {
		return q.XPReward
	}
	return q.Difficulty.DefaultXP()
}

func timeLimit(q core.Question) int64 {
	if q.TimeLimit > 0 {
		return q.TimeLimit
	}
	return q.Difficulty.DefaultTimeLimit()
}
