package engine

import (
	"context"
	"errors"
	"fmt"

	"triviakit/core"
)

// ChallengeView is today's challenge from one user's point of view. Questions
// is empty once the user completed it.
type ChallengeView struct {
	Challenge core.DailyChallenge   `json:"challenge"`
	Completed bool                  `json:"completed"`
	Result    *core.ChallengeResult `json:"result,omitempty"`
	Questions []PublicQuestion      `json:"questions"`
}

// TodayChallenge returns the challenge of the current calendar day, creating it
// on first request.
func (s *ProgressionService) TodayChallenge(ctx context.Context) (core.DailyChallenge, error) {
	day := core.StartOfDay(s.clock(), s.loc)
	c, err := s.store.DailyChallenge(ctx, day)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, core.ErrChallengeNotFound) {
		return core.DailyChallenge{}, err
	}
	active, err := s.store.Questions(ctx, QuestionFilter{ActiveOnly: true})
	if err != nil {
		return core.DailyChallenge{}, err
	}
	if len(active) == 0 {
		return core.DailyChallenge{}, fmt.Errorf("daily challenge: no active questions: %w", core.ErrQuestionNotFound)
	}
	ids := make([]core.QuestionID, 0, len(active))
	for _, q := range core.Sample(active, s.settings.ChallengeSize, s.rng) {
		ids = append(ids, q.ID)
	}
	return s.store.CreateDailyChallenge(ctx, core.DailyChallenge{
		ID:          core.ChallengeID(newID()),
		Date:        day,
		QuestionIDs: ids,
		BonusXP:     s.settings.ChallengeBonusXP,
	})
}

// DailyChallenge returns today's challenge for user.
func (s *ProgressionService) DailyChallenge(ctx context.Context, user core.UserID) (ChallengeView, error) {
	user, err := core.NormalizeUserID(user)
	if err != nil {
		return ChallengeView{}, err
	}
	c, err := s.TodayChallenge(ctx)
	if err != nil {
		return ChallengeView{}, err
	}
	v := ChallengeView{Challenge: c, Questions: []PublicQuestion{}}
	err = s.store.WithUser(ctx, user, func(tx UserTx) error {
		r, ok, err := tx.ChallengeResult(ctx, c.ID)
		if err != nil {
			return err
		}
		if ok {
			v.Completed, v.Result = true, &r
		}
		return nil
	})
	if err != nil {
		return ChallengeView{}, err
	}
	if v.Completed {
		return v, nil
	}
	for _, id := range c.QuestionIDs {
		q, err := s.store.Question(ctx, id)
		if errors.Is(err, core.ErrQuestionNotFound) {
			continue
		}
		if err != nil {
			return ChallengeView{}, err
		}
		v.Questions = append(v.Questions, s.public(q))
	}
	return v, nil
}

// CompleteChallenge closes a daily challenge for user. The score is computed
// from the answers the user submitted for the challenge questions, and the
// bonus is floor(bonus * correct / total), awarded once.
func (s *ProgressionService) CompleteChallenge(ctx context.Context, user core.UserID, id core.ChallengeID) (core.ChallengeResult, error) {
	ctx, span := s.startSpan(ctx, "engine.CompleteChallenge", user)
	var err error
	defer func() { endSpan(span, err) }()

	user, err = core.NormalizeUserID(user)
	if err != nil {
		return core.ChallengeResult{}, err
	}
	c, err := s.store.Challenge(ctx, id)
	if err != nil {
		return core.ChallengeResult{}, err
	}
	now := s.clock()
	var (
		res    core.ChallengeResult
		events []core.Event
	)
	err = s.store.WithUser(ctx, user, func(tx UserTx) error {
		events = events[:0]
		if _, done, err := tx.ChallengeResult(ctx, c.ID); err != nil {
			return err
		} else if done {
			return core.ErrChallengeCompleted
		}
		p, err := tx.Progress(ctx)
		if err != nil {
			return err
		}
		res = core.ChallengeResult{UserID: user, ChallengeID: c.ID, TotalQuestions: int64(len(c.QuestionIDs)), CompletedAt: now}
		for _, qid := range c.QuestionIDs {
			a, ok, err := tx.PriorAnswer(ctx, qid)
			if err != nil {
				return err
			}
			if ok && a.IsCorrect {
				res.CorrectCount++
				res.Score += a.XPEarned
			}
		}
		if res.TotalQuestions > 0 {
			res.BonusXPEarned = c.BonusXP * res.CorrectCount / res.TotalQuestions
		}
		if err := tx.InsertChallengeResult(ctx, res); err != nil {
			return err
		}
		oldLevel := p.Level
		if p.TotalXP, err = core.AddSafe(p.TotalXP, res.BonusXPEarned); err != nil {
			return err
		}
		p.Level = max(p.Level, core.LevelForXP(p.TotalXP))
		p.Updated = now
		if err := tx.SaveProgress(ctx, p); err != nil {
			return err
		}
		events = append(events, core.NewChallengeCompleted(user, res))
		if res.BonusXPEarned > 0 {
			events = append(events, core.NewXPAwarded(user, "", res.BonusXPEarned, p.TotalXP, now))
		}
		if p.Level > oldLevel {
			events = append(events, core.NewLevelUp(user, p.Level, now))
		}
		return nil
	})
	if err != nil {
		return core.ChallengeResult{}, err
	}
	s.publish(ctx, events)
	return res, nil
}
