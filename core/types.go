package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

// UserID uniquely identifies a player.
type UserID string

type (
	QuestionID    string
	CategoryID    string
	AchievementID string
	BeltID        string
	ChallengeID   string
)

// Difficulty is the authored difficulty of a question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the known difficulties.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// DefaultXP is the base XP reward used when a question does not set one.
func (d Difficulty) DefaultXP() int64 {
	switch d {
	case DifficultyMedium:
		return 100
	case DifficultyHard:
		return 150
	default:
		return 50
	}
}

// DefaultTimeLimit is the answer time limit in seconds used when a question does not set one.
func (d Difficulty) DefaultTimeLimit() int64 {
	switch d {
	case DifficultyMedium:
		return 20
	case DifficultyHard:
		return 30
	default:
		return 15
	}
}

// Category groups questions under a themed slug.
type Category struct {
	ID   CategoryID `json:"id"`
	Slug string     `json:"slug"`
	Name string     `json:"name"`
}

// Question is a multiple-choice question. CorrectAnswer must never leave the server
// before the player answered.
type Question struct {
	ID            QuestionID `json:"id"`
	CategoryID    CategoryID `json:"category_id"`
	Text          string     `json:"text"`
	Difficulty    Difficulty `json:"difficulty"`
	Options       []string   `json:"options"`
	CorrectAnswer string     `json:"correct_answer"`
	Explanation   string     `json:"explanation,omitempty"`
	XPReward      int64      `json:"xp_reward"`
	TimeLimit     int64      `json:"time_limit"`
	Active        bool       `json:"active"`
}

// IsCorrect compares a submitted answer with the correct one, ignoring case and
// surrounding whitespace.
func (q Question) IsCorrect(answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(q.CorrectAnswer))
}

// WrongOptions returns the options that do not match the correct answer.
func (q Question) WrongOptions() []string {
	out := make([]string, 0, len(q.Options))
	for _, opt := range q.Options {
		if !q.IsCorrect(opt) {
			out = append(out, opt)
		}
	}
	return out
}

// UserProgress is the per-user progression state. LastPlayed is the zero time
// when the user never answered a question.
type UserProgress struct {
	UserID        UserID    `json:"user_id"`
	TotalXP       int64     `json:"total_xp"`
	Level         int64     `json:"level"`
	CurrentStreak int64     `json:"current_streak"`
	LongestStreak int64     `json:"longest_streak"`
	LastPlayed    time.Time `json:"last_played,omitempty"`
	Created       time.Time `json:"created"`
	Updated       time.Time `json:"updated"`
}

// NewUserProgress returns the initial state of a freshly registered user.
func NewUserProgress(id UserID, now time.Time) UserProgress {
	return UserProgress{UserID: id, Level: 1, Created: now, Updated: now}
}

// CategoryProgress tracks one user's play within one category.
type CategoryProgress struct {
	UserID            UserID     `json:"user_id"`
	CategoryID        CategoryID `json:"category_id"`
	QuestionsAnswered int64      `json:"questions_answered"`
	QuestionsCorrect  int64      `json:"questions_correct"`
	CategoryXP        int64      `json:"category_xp"`
	MasteryLevel      int        `json:"mastery_level"`
	LastAttempted     time.Time  `json:"last_attempted"`
}

// AnswerEvent is the immutable record of one submitted answer.
type AnswerEvent struct {
	ID         string     `json:"id"`
	UserID     UserID     `json:"user_id"`
	QuestionID QuestionID `json:"question_id"`
	CategoryID CategoryID `json:"category_id"`
	Answer     string     `json:"answer"`
	IsCorrect  bool       `json:"is_correct"`
	TimeTaken  int64      `json:"time_taken"`
	XPEarned   int64      `json:"xp_earned"`
	AnsweredAt time.Time  `json:"answered_at"`
}

// Achievement is a catalog entry unlocked by its Criteria.
type Achievement struct {
	ID          AchievementID `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Criteria    Criteria      `json:"-"`
	XPReward    int64         `json:"xp_reward"`
	BeltTier    string        `json:"belt_tier,omitempty"`
}

// Belt is a championship belt. CategoryID is empty for milestone belts.
type Belt struct {
	ID          BeltID     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	CategoryID  CategoryID `json:"category_id,omitempty"`
	Criteria    Criteria   `json:"-"`
	Rarity      string     `json:"rarity,omitempty"`
	ProductURL  string     `json:"product_url,omitempty"`
}

// AchievementUnlock joins a user with an unlocked achievement.
type AchievementUnlock struct {
	UserID        UserID        `json:"user_id"`
	AchievementID AchievementID `json:"achievement_id"`
	UnlockedAt    time.Time     `json:"unlocked_at"`
	Equipped      bool          `json:"equipped"`
	// BonusXP is the XP awarded at unlock time.
	BonusXP int64 `json:"bonus_xp"`
}

// BeltUnlock joins a user with an owned belt.
type BeltUnlock struct {
	UserID     UserID    `json:"user_id"`
	BeltID     BeltID    `json:"belt_id"`
	UnlockedAt time.Time `json:"unlocked_at"`
	Displayed  bool      `json:"displayed"`
}

// DailyChallenge is the set of questions offered on one calendar day.
type DailyChallenge struct {
	ID          ChallengeID  `json:"id"`
	Date        time.Time    `json:"date"`
	QuestionIDs []QuestionID `json:"question_ids"`
	BonusXP     int64        `json:"bonus_xp"`
}

// ChallengeResult is a user's completion of a daily challenge.
type ChallengeResult struct {
	UserID         UserID      `json:"user_id"`
	ChallengeID    ChallengeID `json:"challenge_id"`
	Score          int64       `json:"score"`
	CorrectCount   int64       `json:"correct_count"`
	TotalQuestions int64       `json:"total_questions"`
	BonusXPEarned  int64       `json:"bonus_xp_earned"`
	CompletedAt    time.Time   `json:"completed_at"`
}

// AddSafe adds delta to base ensuring no signed overflow occurs.
func AddSafe(base, delta int64) (int64, error) {
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return 0, errors.New("xp overflow")
	}
	return base + delta, nil
}

// NormalizeUserID trims and lowercases user identifiers.
func NormalizeUserID(id UserID) (UserID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", Invalid("user_id", "empty")
	}
	return UserID(strings.ToLower(s)), nil
}
