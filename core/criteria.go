package core

import (
	"fmt"
	"strings"
)

// Criteria is a closed set of unlock rules attached to achievements and belts.
// Every variant carries only the fields it needs; use Evaluate to test one
// against a Stats snapshot.
type Criteria interface {
	// Kind is the stored type tag of the criteria.
	Kind() string
	// Spec converts the criteria back into its stored form.
	Spec() CriteriaSpec
	criteria()
}

const (
	KindFirstQuiz        = "first_quiz"
	KindTotalCorrect     = "total_correct"
	KindTotalAnswers     = "total_answers"
	KindLevel            = "level"
	KindStreak           = "streak"
	KindCategoryCorrect  = "category_correct"
	KindCategoryAccuracy = "category_accuracy"
	KindCategoryMastery  = "category_mastery"
	KindAllCategories    = "all_categories"
	KindSpeedDemon       = "speed_demon"
	KindPerfectQuiz      = "perfect_quiz"
	KindCategoryComplete = "category_complete"
	KindTotalBelts       = "total_belts"
)

const (
	// AccuracyMinAnswered is how many answers category_accuracy needs before accuracy counts.
	AccuracyMinAnswered = 10
	// BeltMasteryMinAnswered is the same threshold for the belt form of category_mastery.
	BeltMasteryMinAnswered = 20
	// SpeedDemonCount is how many fast correct answers speed_demon needs.
	SpeedDemonCount = 10
	// PerfectRunLength is how many recent answers perfect_quiz inspects.
	PerfectRunLength = 10
)

type (
	FirstQuiz    struct{}
	TotalCorrect struct{ Min int64 }
	TotalAnswers struct{ Min int64 }
	MinLevel     struct{ Level int64 }
	MinStreak    struct{ Days int64 }

	CategoryCorrect struct {
		Category string
		Min      int64
	}

	CategoryAccuracy struct {
		Category    string
		MinAnswered int64
		Percent     int64
	}

	CategoryMastery struct {
		Category string
		Level    int64
	}

	AllCategories struct{}
	SpeedDemon    struct{ MaxSeconds int64 }
	PerfectRun    struct{}

	CategoryComplete struct{ Category string }
	TotalBelts       struct{ Min int64 }
)

func (FirstQuiz) criteria()        {}
func (TotalCorrect) criteria()     {}
func (TotalAnswers) criteria()     {}
func (MinLevel) criteria()         {}
func (MinStreak) criteria()        {}
func (CategoryCorrect) criteria()  {}
func (CategoryAccuracy) criteria() {}
func (CategoryMastery) criteria()  {}
func (AllCategories) criteria()    {}
func (SpeedDemon) criteria()       {}
func (PerfectRun) criteria()       {}
func (CategoryComplete) criteria() {}
func (TotalBelts) criteria()       {}

func (FirstQuiz) Kind() string        { return KindFirstQuiz }
func (TotalCorrect) Kind() string     { return KindTotalCorrect }
func (TotalAnswers) Kind() string     { return KindTotalAnswers }
func (MinLevel) Kind() string         { return KindLevel }
func (MinStreak) Kind() string        { return KindStreak }
func (CategoryCorrect) Kind() string  { return KindCategoryCorrect }
func (CategoryAccuracy) Kind() string { return KindCategoryAccuracy }
func (CategoryMastery) Kind() string  { return KindCategoryMastery }
func (AllCategories) Kind() string    { return KindAllCategories }
func (SpeedDemon) Kind() string       { return KindSpeedDemon }
func (PerfectRun) Kind() string       { return KindPerfectQuiz }
func (CategoryComplete) Kind() string { return KindCategoryComplete }
func (TotalBelts) Kind() string       { return KindTotalBelts }

func (c FirstQuiz) Spec() CriteriaSpec    { return CriteriaSpec{Type: c.Kind()} }
func (c TotalCorrect) Spec() CriteriaSpec { return CriteriaSpec{Type: c.Kind(), Value: ptr(c.Min)} }
func (c TotalAnswers) Spec() CriteriaSpec { return CriteriaSpec{Type: c.Kind(), Value: ptr(c.Min)} }
func (c MinLevel) Spec() CriteriaSpec     { return CriteriaSpec{Type: c.Kind(), Value: ptr(c.Level)} }
func (c MinStreak) Spec() CriteriaSpec    { return CriteriaSpec{Type: c.Kind(), Streak: ptr(c.Days)} }
func (c CategoryCorrect) Spec() CriteriaSpec {
	return CriteriaSpec{Type: c.Kind(), CategorySlug: c.Category, Value: ptr(c.Min)}
}
func (c CategoryAccuracy) Spec() CriteriaSpec {
	return CriteriaSpec{Type: c.Kind(), CategorySlug: c.Category, Accuracy: ptr(c.Percent), MinAnswered: ptr(c.MinAnswered)}
}
func (c CategoryMastery) Spec() CriteriaSpec {
	return CriteriaSpec{Type: c.Kind(), CategorySlug: c.Category, Value: ptr(c.Level)}
}
func (c AllCategories) Spec() CriteriaSpec { return CriteriaSpec{Type: c.Kind()} }
func (c SpeedDemon) Spec() CriteriaSpec    { return CriteriaSpec{Type: c.Kind(), Value: ptr(c.MaxSeconds)} }
func (c PerfectRun) Spec() CriteriaSpec    { return CriteriaSpec{Type: c.Kind()} }
func (c CategoryComplete) Spec() CriteriaSpec {
	return CriteriaSpec{Type: c.Kind(), CategorySlug: c.Category}
}
func (c TotalBelts) Spec() CriteriaSpec { return CriteriaSpec{Type: c.Kind(), Value: ptr(c.Min)} }

func ptr(v int64) *int64 { return &v }

// CriteriaSpec is the stored, tagged form of a Criteria.
type CriteriaSpec struct {
	Type         string `json:"type" yaml:"type"`
	Value        *int64 `json:"value,omitempty" yaml:"value,omitempty"`
	Accuracy     *int64 `json:"accuracy,omitempty" yaml:"accuracy,omitempty"`
	Streak       *int64 `json:"streak,omitempty" yaml:"streak,omitempty"`
	CategorySlug string `json:"categorySlug,omitempty" yaml:"categorySlug,omitempty"`
	MinAnswered  *int64 `json:"minAnswered,omitempty" yaml:"minAnswered,omitempty"`
}

// DecodeAchievementCriteria converts a stored achievement criteria into its variant.
// A missing required field is an error rather than a silent default.
func DecodeAchievementCriteria(s CriteriaSpec) (Criteria, error) {
	return decodeCriteria(s, "")
}

// DecodeBeltCriteria converts a stored belt criteria into its variant. Category
// criteria without a categorySlug use the belt's own category slug, and
// category_mastery means at least 20 answers with the given accuracy.
func DecodeBeltCriteria(s CriteriaSpec, beltCategory string) (Criteria, error) {
	if strings.TrimSpace(s.Type) == KindCategoryMastery {
		slug := firstNonEmpty(s.CategorySlug, beltCategory)
		if slug == "" {
			return nil, Invalid("criteria.categorySlug", "required for category_mastery")
		}
		pct, err := need(s.Accuracy, "accuracy", s.Type)
		if err != nil {
			return nil, err
		}
		return CategoryAccuracy{Category: slug, MinAnswered: BeltMasteryMinAnswered, Percent: pct}, nil
	}
	return decodeCriteria(s, beltCategory)
}

func decodeCriteria(s CriteriaSpec, defaultCategory string) (Criteria, error) {
	kind := strings.TrimSpace(s.Type)
	slug := firstNonEmpty(s.CategorySlug, defaultCategory)
	category := func() (string, error) {
		if slug == "" {
			return "", Invalid("criteria.categorySlug", "required for "+kind)
		}
		return slug, nil
	}
	switch kind {
	case KindFirstQuiz:
		return FirstQuiz{}, nil
	case KindAllCategories:
		return AllCategories{}, nil
	case KindPerfectQuiz:
		return PerfectRun{}, nil
	case KindTotalCorrect:
		v, err := need(s.Value, "value", kind)
		return TotalCorrect{Min: v}, err
	case KindTotalAnswers:
		v, err := need(s.Value, "value", kind)
		return TotalAnswers{Min: v}, err
	case KindLevel:
		v, err := need(s.Value, "value", kind)
		return MinLevel{Level: v}, err
	case KindStreak:
		days := s.Streak
		if days == nil {
			days = s.Value
		}
		v, err := need(days, "streak", kind)
		return MinStreak{Days: v}, err
	case KindSpeedDemon:
		v, err := need(s.Value, "value", kind)
		return SpeedDemon{MaxSeconds: v}, err
	case KindTotalBelts:
		v, err := need(s.Value, "value", kind)
		return TotalBelts{Min: v}, err
	case KindCategoryCorrect:
		cat, err := category()
		if err != nil {
			return nil, err
		}
		v, err := need(s.Value, "value", kind)
		return CategoryCorrect{Category: cat, Min: v}, err
	case KindCategoryAccuracy:
		cat, err := category()
		if err != nil {
			return nil, err
		}
		pct, err := need(s.Accuracy, "accuracy", kind)
		if err != nil {
			return nil, err
		}
		minAnswered := int64(AccuracyMinAnswered)
		if s.MinAnswered != nil {
			minAnswered = *s.MinAnswered
		}
		return CategoryAccuracy{Category: cat, MinAnswered: minAnswered, Percent: pct}, nil
	case KindCategoryMastery:
		cat, err := category()
		if err != nil {
			return nil, err
		}
		v, err := need(s.Value, "value", kind)
		return CategoryMastery{Category: cat, Level: v}, err
	case KindCategoryComplete:
		cat, err := category()
		return CategoryComplete{Category: cat}, err
	case "":
		return nil, Invalid("criteria.type", "empty")
	default:
		return nil, Invalid("criteria.type", fmt.Sprintf("unknown %q", kind))
	}
}

func need(v *int64, field, kind string) (int64, error) {
	if v == nil {
		return 0, Invalid("criteria."+field, "required for "+kind)
	}
	if *v < 0 {
		return 0, Invalid("criteria."+field, "must not be negative")
	}
	return *v, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
