package engine

import (
	"context"
	"errors"
	"fmt"

	"triviakit/core"
)

// PublicQuestion is a question as shown before it is answered.
type PublicQuestion struct {
	ID         core.QuestionID `json:"id"`
	CategoryID core.CategoryID `json:"category_id"`
	Text       string          `json:"text"`
	Difficulty core.Difficulty `json:"difficulty"`
	Options    []string        `json:"options"`
	XPReward   int64           `json:"xp_reward"`
	TimeLimit  int64           `json:"time_limit"`
}

func (s *ProgressionService) public(q core.Question) PublicQuestion {
	opts := append([]string(nil), q.Options...)
	core.Shuffle(opts, s.rng)
	return PublicQuestion{
		ID: q.ID, CategoryID: q.CategoryID, Text: q.Text, Difficulty: q.Difficulty,
		Options: opts, XPReward: baseXP(q), TimeLimit: timeLimit(q),
	}
}

// QuestionQuery selects random questions.
type QuestionQuery struct {
	CategorySlug string
	Difficulty   core.Difficulty
	Limit        int
}

// RandomQuestions picks up to Limit active questions uniformly at random with
// their options shuffled. Limit is clamped to the configured maximum.
func (s *ProgressionService) RandomQuestions(ctx context.Context, qq QuestionQuery) ([]PublicQuestion, error) {
	f := QuestionFilter{ActiveOnly: true}
	if qq.CategorySlug != "" {
		c, err := s.store.CategoryBySlug(ctx, qq.CategorySlug)
		if err != nil {
			return nil, err
		}
		f.CategoryID = c.ID
	}
	if qq.Difficulty != "" {
		if !qq.Difficulty.Valid() {
			return nil, core.Invalid("difficulty", fmt.Sprintf("unknown %q", qq.Difficulty))
		}
		f.Difficulty = qq.Difficulty
	}
	limit := qq.Limit
	if limit <= 0 || limit > s.settings.MaxRandomQuestion {
		limit = s.settings.MaxRandomQuestion
	}
	all, err := s.store.Questions(ctx, f)
	if err != nil {
		return nil, err
	}
	picked := core.Sample(all, limit, s.rng)
	out := make([]PublicQuestion, 0, len(picked))
	for _, q := range picked {
		out = append(out, s.public(q))
	}
	return out, nil
}

// HintResult lists the options removed by a 50/50 hint.
type HintResult struct {
	Eliminated []string `json:"eliminated"`
	XPSpent    int64    `json:"xp_spent"`
	TotalXP    int64    `json:"total_xp"`
}

// UseHint spends the hint cost and removes wrong options from q. Spending XP
// never lowers the user's level.
func (s *ProgressionService) UseHint(ctx context.Context, user core.UserID, qid core.QuestionID) (HintResult, error) {
	ctx, span := s.startSpan(ctx, "engine.UseHint", user)
	var err error
	defer func() { endSpan(span, err) }()

	user, err = core.NormalizeUserID(user)
	if err != nil {
		return HintResult{}, err
	}
	q, err := s.store.Question(ctx, qid)
	if err != nil {
		return HintResult{}, err
	}
	if !q.Active {
		err = core.ErrQuestionNotFound
		return HintResult{}, err
	}
	cost := s.settings.HintCost
	now := s.clock()
	var res HintResult
	err = s.store.WithUser(ctx, user, func(tx UserTx) error {
		p, err := tx.Progress(ctx)
		if err != nil {
			return err
		}
		if p.TotalXP < cost {
			return fmt.Errorf("hint costs %d xp, have %d: %w", cost, p.TotalXP, core.ErrInsufficientXP)
		}
		p.TotalXP -= cost
		p.Updated = now
		if err := tx.SaveProgress(ctx, p); err != nil {
			return err
		}
		res = HintResult{
			Eliminated: core.Sample(q.WrongOptions(), s.settings.HintEliminates, s.rng),
			XPSpent:    cost,
			TotalXP:    p.TotalXP,
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, core.ErrInsufficientXP) && !errors.Is(err, core.ErrNotFound) {
			s.logger.Error("use hint failed", "user_id", user, "question_id", qid, "error", err)
		}
		return HintResult{}, err
	}
	s.bus.Publish(ctx, core.NewXPSpent(user, cost, res.TotalXP, now))
	return res, nil
}
