package engine

import (
	"context"
	"time"

	"triviakit/core"
)

// QuestionFilter narrows catalog question lookups. Zero values match everything.
type QuestionFilter struct {
	CategoryID core.CategoryID
	Difficulty core.Difficulty
	ActiveOnly bool
}

// Catalog is read access to questions, categories, achievements and belts.
type Catalog interface {
	Question(ctx context.Context, id core.QuestionID) (core.Question, error)
	Questions(ctx context.Context, f QuestionFilter) ([]core.Question, error)
	Category(ctx context.Context, id core.CategoryID) (core.Category, error)
	CategoryBySlug(ctx context.Context, slug string) (core.Category, error)
	Categories(ctx context.Context) ([]core.Category, error)
	// ActiveQuestionCounts returns the number of active questions per category.
	ActiveQuestionCounts(ctx context.Context) (map[core.CategoryID]int64, error)
	Achievements(ctx context.Context) ([]core.Achievement, error)
	Belts(ctx context.Context) ([]core.Belt, error)
}

// CatalogWriter replaces catalog content. Used by seeding and tests.
type CatalogWriter interface {
	PutCategory(ctx context.Context, c core.Category) error
	PutQuestion(ctx context.Context, q core.Question) error
	PutAchievement(ctx context.Context, a core.Achievement) error
	PutBelt(ctx context.Context, b core.Belt) error
}

// AnswerSummary aggregates a user's answer history.
type AnswerSummary struct {
	Total         int64
	Correct       int64
	CorrectByTime map[int64]int64
	// Recent holds correctness of the latest answers, newest first.
	Recent []bool
}

// UserTx is the per-user unit of work handed out by Store.WithUser. Nothing
// written through it is visible to other callers until the callback returns nil.
type UserTx interface {
	Progress(ctx context.Context) (core.UserProgress, error)
	SaveProgress(ctx context.Context, p core.UserProgress) error

	// PriorAnswer returns the recorded answer for q, if any.
	PriorAnswer(ctx context.Context, q core.QuestionID) (core.AnswerEvent, bool, error)
	// InsertAnswer records a; it fails with core.ErrAlreadyAnswered when the
	// (user, question) pair already exists.
	InsertAnswer(ctx context.Context, a core.AnswerEvent) error
	AnswerSummary(ctx context.Context, recent int) (AnswerSummary, error)

	CategoryProgress(ctx context.Context, c core.CategoryID) (core.CategoryProgress, bool, error)
	CategoryProgressList(ctx context.Context) ([]core.CategoryProgress, error)
	SaveCategoryProgress(ctx context.Context, cp core.CategoryProgress) error

	AchievementUnlocks(ctx context.Context) ([]core.AchievementUnlock, error)
	BeltUnlocks(ctx context.Context) ([]core.BeltUnlock, error)
	InsertAchievementUnlock(ctx context.Context, u core.AchievementUnlock) error
	InsertBeltUnlock(ctx context.Context, u core.BeltUnlock) error
	SetAchievementEquipped(ctx context.Context, id core.AchievementID, on bool) error
	SetBeltDisplayed(ctx context.Context, id core.BeltID, on bool) error

	ChallengeResult(ctx context.Context, id core.ChallengeID) (core.ChallengeResult, bool, error)
	InsertChallengeResult(ctx context.Context, r core.ChallengeResult) error
}

// Store abstracts persistence for progression state.
type Store interface {
	Catalog

	// CreateUser registers id, returning the existing progress when already present.
	CreateUser(ctx context.Context, id core.UserID, now time.Time) (core.UserProgress, error)
	// WithUser runs fn with exclusive access to one user's state. Writes made
	// through the UserTx commit only when fn returns nil.
	WithUser(ctx context.Context, id core.UserID, fn func(UserTx) error) error
	// Users lists registered users ordered by id.
	Users(ctx context.Context) ([]core.UserProgress, error)

	// DailyChallenge returns the challenge of the given day (midnight in the
	// configured location) or core.ErrChallengeNotFound.
	DailyChallenge(ctx context.Context, day time.Time) (core.DailyChallenge, error)
	// CreateDailyChallenge stores c unless a challenge for c.Date exists, in
	// which case the existing one is returned.
	CreateDailyChallenge(ctx context.Context, c core.DailyChallenge) (core.DailyChallenge, error)
	Challenge(ctx context.Context, id core.ChallengeID) (core.DailyChallenge, error)
}
