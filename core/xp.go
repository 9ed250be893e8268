package core

import "math"

const (
	// MaxStreakMultiplierTenths caps the streak multiplier at 2.0x.
	MaxStreakMultiplierTenths = 20
	speedBonusPerSecond       = 2
	levelBaseXP               = 500.0
)

// XPForAnswer returns the XP earned by a correct answer. Incorrect answers earn
// nothing and callers must not call it for them.
//
// The multiplier grows by 0.1 per streak day and is kept in tenths so the floor
// is exact.
func XPForAnswer(baseXP, timeLimit, timeTaken, currentStreak int64) int64 {
	speed := (timeLimit - timeTaken) * speedBonusPerSecond
	if speed < 0 {
		speed = 0
	}
	if currentStreak < 0 {
		currentStreak = 0
	}
	mult := int64(10) + currentStreak
	if mult > MaxStreakMultiplierTenths {
		mult = MaxStreakMultiplierTenths
	}
	return (baseXP + speed) * mult / 10
}

// XPToAdvance is the XP needed to go from level to level+1.
func XPToAdvance(level int64) int64 {
	return int64(math.Floor(levelBaseXP * math.Pow(float64(level), 1.5)))
}

// LevelForXP maps a total XP amount to a level starting at 1.
func LevelForXP(totalXP int64) int64 {
	level := int64(1)
	var cumulative int64
	for {
		next, err := AddSafe(cumulative, XPToAdvance(level))
		if err != nil || next > totalXP {
			return level
		}
		cumulative = next
		level++
	}
}

// CumulativeXPForLevel is the total XP at which level begins. Level 1 begins at 0.
func CumulativeXPForLevel(level int64) int64 {
	var total int64
	for i := int64(1); i < level; i++ {
		next, err := AddSafe(total, XPToAdvance(i))
		if err != nil {
			return math.MaxInt64
		}
		total = next
	}
	return total
}

// LevelProgress describes how far a user is into the current level.
type LevelProgress struct {
	CurrentLevel   int64   `json:"current_level"`
	CurrentLevelXP int64   `json:"current_level_xp"`
	NextLevelXP    int64   `json:"next_level_xp"`
	Progress       float64 `json:"progress"`
}

// ProgressForXP reports the level for totalXP together with the fraction of the
// way to the next one, in [0,1).
func ProgressForXP(totalXP int64) LevelProgress {
	if totalXP < 0 {
		totalXP = 0
	}
	level := LevelForXP(totalXP)
	start := CumulativeXPForLevel(level)
	end := start + XPToAdvance(level)
	p := LevelProgress{CurrentLevel: level, CurrentLevelXP: start, NextLevelXP: end}
	if end > start {
		p.Progress = float64(totalXP-start) / float64(end-start)
	}
	return p
}
