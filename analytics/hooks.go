// Package analytics aggregates gameplay KPIs from engine events.
package analytics

import (
	"fmt"
	"maps"
	"sync"
	"time"

	"triviakit/core"
)

// Hook receives domain events for KPI aggregation.
type Hook interface {
	OnEvent(e core.Event)
}

// DAU tracks daily active users.
type DAU struct {
	mu   sync.Mutex
	days map[string]map[core.UserID]struct{}
}

func NewDAU() *DAU { return &DAU{days: map[string]map[core.UserID]struct{}{}} }

func (d *DAU) OnEvent(e core.Event) {
	if e.Type != core.EventAnswerRecorded {
		return
	}
	day := dayKey(e.Time)
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.days[day]
	if m == nil {
		m = map[core.UserID]struct{}{}
		d.days[day] = m
	}
	m[e.UserID] = struct{}{}
}

func (d *DAU) Count(day string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.days[day])
}

// Metrics counts answers, XP and unlocks per day and per category.
type Metrics struct {
	mu sync.RWMutex

	weeklyActive map[string]map[core.UserID]struct{}

	answersByDay      map[string]int64
	correctByDay      map[string]int64
	answersByCategory map[core.CategoryID]int64
	correctByCategory map[core.CategoryID]int64

	xpAwardedByDay map[string]int64
	xpSpentByDay   map[string]int64

	levelDistribution map[int64]int64
	achievements      map[core.AchievementID]int64
	belts             map[core.BeltID]int64
	challenges        int64
}

func NewMetrics() *Metrics {
	return &Metrics{
		weeklyActive:      map[string]map[core.UserID]struct{}{},
		answersByDay:      map[string]int64{},
		correctByDay:      map[string]int64{},
		answersByCategory: map[core.CategoryID]int64{},
		correctByCategory: map[core.CategoryID]int64{},
		xpAwardedByDay:    map[string]int64{},
		xpSpentByDay:      map[string]int64{},
		levelDistribution: map[int64]int64{},
		achievements:      map[core.AchievementID]int64{},
		belts:             map[core.BeltID]int64{},
	}
}

func (m *Metrics) OnEvent(e core.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := dayKey(e.Time)
	switch e.Type {
	case core.EventAnswerRecorded:
		week := weekKey(e.Time)
		if m.weeklyActive[week] == nil {
			m.weeklyActive[week] = map[core.UserID]struct{}{}
		}
		m.weeklyActive[week][e.UserID] = struct{}{}
		m.answersByDay[day]++
		m.answersByCategory[e.CategoryID]++
		if e.Correct {
			m.correctByDay[day]++
			m.correctByCategory[e.CategoryID]++
		}
	case core.EventXPAwarded:
		m.xpAwardedByDay[day] += e.Delta
	case core.EventXPSpent:
		m.xpSpentByDay[day] += e.Delta
	case core.EventLevelUp:
		m.levelDistribution[e.Level]++
	case core.EventAchievementUnlocked:
		m.achievements[e.Achievement]++
	case core.EventBeltUnlocked:
		m.belts[e.Belt]++
	case core.EventChallengeCompleted:
		m.challenges++
	}
}

// WeeklyActiveUsers returns the number of users who answered during week (2006-W01).
func (m *Metrics) WeeklyActiveUsers(week string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.weeklyActive[week])
}

// Accuracy is the share of correct answers in a category, 0 with no answers.
func (m *Metrics) Accuracy(c core.CategoryID) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := m.answersByCategory[c]
	if n == 0 {
		return 0
	}
	return float64(m.correctByCategory[c]) / float64(n)
}

// Report is a point-in-time copy of every counter.
type Report struct {
	AnswersByDay       map[string]int64             `json:"answers_by_day"`
	CorrectByDay       map[string]int64             `json:"correct_by_day"`
	AnswersByCategory  map[core.CategoryID]int64    `json:"answers_by_category"`
	AccuracyByCategory map[core.CategoryID]float64  `json:"accuracy_by_category"`
	XPAwardedByDay     map[string]int64             `json:"xp_awarded_by_day"`
	XPSpentByDay       map[string]int64             `json:"xp_spent_by_day"`
	LevelsReached      map[int64]int64              `json:"levels_reached"`
	Achievements       map[core.AchievementID]int64 `json:"achievements_unlocked"`
	Belts              map[core.BeltID]int64        `json:"belts_unlocked"`
	Challenges         int64                        `json:"challenges_completed"`
	DailyActiveUsers   int                          `json:"daily_active_users"`
	WeeklyActiveUsers  int                          `json:"weekly_active_users"`
}

// Report snapshots the counters. Active user figures refer to the day and
// week containing now.
func (m *Metrics) Report(dau *DAU, now time.Time) Report {
	m.mu.RLock()
	r := Report{
		AnswersByDay:       maps.Clone(m.answersByDay),
		CorrectByDay:       maps.Clone(m.correctByDay),
		AnswersByCategory:  maps.Clone(m.answersByCategory),
		AccuracyByCategory: make(map[core.CategoryID]float64, len(m.answersByCategory)),
		XPAwardedByDay:     maps.Clone(m.xpAwardedByDay),
		XPSpentByDay:       maps.Clone(m.xpSpentByDay),
		LevelsReached:      maps.Clone(m.levelDistribution),
		Achievements:       maps.Clone(m.achievements),
		Belts:              maps.Clone(m.belts),
		Challenges:         m.challenges,
		WeeklyActiveUsers:  len(m.weeklyActive[weekKey(now)]),
	}
	for c, n := range m.answersByCategory {
		r.AccuracyByCategory[c] = float64(m.correctByCategory[c]) / float64(n)
	}
	m.mu.RUnlock()
	if dau != nil {
		r.DailyActiveUsers = dau.Count(dayKey(now))
	}
	return r
}

func dayKey(t time.Time) string { return t.UTC().Format(time.DateOnly) }

func weekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
