package core

import "fmt"

// MaxMastery is the highest mastery tier.
const MaxMastery = 5

// masteryTiers are checked highest-first; percentages are accuracy and completion.
var masteryTiers = []struct {
	level      int
	accuracy   int64
	completion int64
}{
	{5, 90, 80},
	{4, 80, 60},
	{3, 70, 40},
	{2, 60, 20},
}

// MasteryLevel computes the 0..5 mastery tier for one category from the number
// of answered and correct questions and the number of active questions in the
// category. Ratios are compared in integer percent so there is no rounding.
func MasteryLevel(answered, correct, totalInCategory int64) (int, error) {
	if answered <= 0 {
		return 0, nil
	}
	if totalInCategory <= 0 {
		return 0, fmt.Errorf("%w: mastery with %d answers in an empty category", ErrInvariant, answered)
	}
	if correct > answered || correct < 0 {
		return 0, fmt.Errorf("%w: %d correct out of %d answered", ErrInvariant, correct, answered)
	}
	acc := correct * 100
	done := answered * 100
	for _, t := range masteryTiers {
		if acc >= t.accuracy*answered && done >= t.completion*totalInCategory {
			return t.level, nil
		}
	}
	if acc >= 50*answered || done >= 10*totalInCategory {
		return 1, nil
	}
	return 0, nil
}
