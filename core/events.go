package core

import "time"

// EventType enumerates domain events.
type EventType string

const (
	EventAnswerRecorded      EventType = "answer_recorded"
	EventXPAwarded           EventType = "xp_awarded"
	EventXPSpent             EventType = "xp_spent"
	EventLevelUp             EventType = "level_up"
	EventStreakUpdated       EventType = "streak_updated"
	EventMasteryChanged      EventType = "mastery_changed"
	EventAchievementUnlocked EventType = "achievement_unlocked"
	EventBeltUnlocked        EventType = "belt_unlocked"
	EventChallengeCompleted  EventType = "challenge_completed"
)

// AllEventTypes lists every event the engine publishes.
var AllEventTypes = []EventType{
	EventAnswerRecorded,
	EventXPAwarded,
	EventXPSpent,
	EventLevelUp,
	EventStreakUpdated,
	EventMasteryChanged,
	EventAchievementUnlocked,
	EventBeltUnlocked,
	EventChallengeCompleted,
}

// Event represents an immutable domain event.
type Event struct {
	Type        EventType      `json:"type"`
	Time        time.Time      `json:"time"`
	UserID      UserID         `json:"user_id"`
	Delta       int64          `json:"delta,omitempty"`
	Total       int64          `json:"total,omitempty"`
	Level       int64          `json:"level,omitempty"`
	Streak      int64          `json:"streak,omitempty"`
	CategoryID  CategoryID     `json:"category_id,omitempty"`
	QuestionID  QuestionID     `json:"question_id,omitempty"`
	Correct     bool           `json:"correct,omitempty"`
	Achievement AchievementID  `json:"achievement,omitempty"`
	Belt        BeltID         `json:"belt,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewAnswerRecorded(a AnswerEvent) Event {
	return Event{
		Type: EventAnswerRecorded, Time: a.AnsweredAt, UserID: a.UserID,
		QuestionID: a.QuestionID, CategoryID: a.CategoryID, Correct: a.IsCorrect, Delta: a.XPEarned,
	}
}

// NewXPAwarded records delta XP added to a user, optionally within a category.
func NewXPAwarded(user UserID, category CategoryID, delta, total int64, at time.Time) Event {
	return Event{Type: EventXPAwarded, Time: at, UserID: user, CategoryID: category, Delta: delta, Total: total}
}

func NewXPSpent(user UserID, delta, total int64, at time.Time) Event {
	return Event{Type: EventXPSpent, Time: at, UserID: user, Delta: delta, Total: total}
}

func NewLevelUp(user UserID, level int64, at time.Time) Event {
	return Event{Type: EventLevelUp, Time: at, UserID: user, Level: level}
}

func NewStreakUpdated(user UserID, streak int64, at time.Time) Event {
	return Event{Type: EventStreakUpdated, Time: at, UserID: user, Streak: streak}
}

func NewMasteryChanged(user UserID, category CategoryID, level int, at time.Time) Event {
	return Event{Type: EventMasteryChanged, Time: at, UserID: user, CategoryID: category, Level: int64(level)}
}

func NewAchievementUnlocked(user UserID, a Achievement, at time.Time) Event {
	return Event{Type: EventAchievementUnlocked, Time: at, UserID: user, Achievement: a.ID, Delta: a.XPReward,
		Metadata: map[string]any{"name": a.Name}}
}

func NewBeltUnlocked(user UserID, b Belt, at time.Time) Event {
	return Event{Type: EventBeltUnlocked, Time: at, UserID: user, Belt: b.ID, CategoryID: b.CategoryID,
		Metadata: map[string]any{"name": b.Name}}
}

func NewChallengeCompleted(user UserID, r ChallengeResult) Event {
	return Event{Type: EventChallengeCompleted, Time: r.CompletedAt, UserID: user, Delta: r.BonusXPEarned,
		Metadata: map[string]any{"challenge_id": string(r.ChallengeID), "correct": r.CorrectCount, "total": r.TotalQuestions}}
}
