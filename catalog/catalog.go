// Package catalog loads trivia content (categories, questions, achievements
// and belts) from YAML or JSON files and seeds it into a store.
package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"triviakit/core"
	"triviakit/engine"
)

//go:embed default.yaml
var defaultCatalog []byte

// File is the on-disk catalog layout. Questions and belts refer to categories
// by slug.
type File struct {
	Categories   []CategoryDoc    `json:"categories" yaml:"categories"`
	Questions    []QuestionDoc    `json:"questions" yaml:"questions"`
	Achievements []AchievementDoc `json:"achievements" yaml:"achievements"`
	Belts        []BeltDoc        `json:"belts" yaml:"belts"`
}

type CategoryDoc struct {
	ID   string `json:"id" yaml:"id"`
	Slug string `json:"slug" yaml:"slug"`
	Name string `json:"name" yaml:"name"`
}

type QuestionDoc struct {
	ID            string   `json:"id" yaml:"id"`
	Category      string   `json:"category" yaml:"category"`
	Text          string   `json:"text" yaml:"text"`
	Difficulty    string   `json:"difficulty" yaml:"difficulty"`
	Options       []string `json:"options" yaml:"options"`
	CorrectAnswer string   `json:"correct_answer" yaml:"correct_answer"`
	Explanation   string   `json:"explanation,omitempty" yaml:"explanation,omitempty"`
	XPReward      int64    `json:"xp_reward,omitempty" yaml:"xp_reward,omitempty"`
	TimeLimit     int64    `json:"time_limit,omitempty" yaml:"time_limit,omitempty"`
	// Active defaults to true.
	Active *bool `json:"active,omitempty" yaml:"active,omitempty"`
}

type AchievementDoc struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description" yaml:"description"`
	XPReward    int64             `json:"xp_reward" yaml:"xp_reward"`
	BeltTier    string            `json:"belt_tier,omitempty" yaml:"belt_tier,omitempty"`
	Criteria    core.CriteriaSpec `json:"criteria" yaml:"criteria"`
}

type BeltDoc struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description" yaml:"description"`
	Category    string            `json:"category,omitempty" yaml:"category,omitempty"`
	Rarity      string            `json:"rarity,omitempty" yaml:"rarity,omitempty"`
	ProductURL  string            `json:"product_url,omitempty" yaml:"product_url,omitempty"`
	Criteria    core.CriteriaSpec `json:"criteria" yaml:"criteria"`
}

// Catalog is decoded, validated content ready to seed.
type Catalog struct {
	Categories   []core.Category
	Questions    []core.Question
	Achievements []core.Achievement
	Belts        []core.Belt
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) { return Parse(defaultCatalog, "yaml") }

// Load reads a catalog file; the format follows the extension (.json, .yaml, .yml).
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	c, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes data as "json" or "yaml" and validates it. Unknown fields are errors.
func Parse(data []byte, format string) (*Catalog, error) {
	var f File
	switch format {
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", format)
	}
	return f.Build()
}

// Build validates the document and converts it to domain types. Every problem
// is reported, not just the first.
func (f File) Build() (*Catalog, error) {
	var (
		c    Catalog
		errs []error
	)
	bySlug := map[string]core.Category{}
	seen := map[string]bool{}
	dup := func(kind, id string) bool {
		key := kind + "/" + id
		if seen[key] {
			errs = append(errs, fmt.Errorf("%s %q: duplicate id", kind, id))
			return true
		}
		seen[key] = true
		return false
	}

	for _, d := range f.Categories {
		if d.ID == "" || d.Slug == "" {
			errs = append(errs, fmt.Errorf("category %q: id and slug are required", d.Name))
			continue
		}
		if dup("category", d.ID) {
			continue
		}
		if _, ok := bySlug[d.Slug]; ok {
			errs = append(errs, fmt.Errorf("category %q: duplicate slug %q", d.ID, d.Slug))
			continue
		}
		cat := core.Category{ID: core.CategoryID(d.ID), Slug: d.Slug, Name: d.Name}
		bySlug[d.Slug] = cat
		c.Categories = append(c.Categories, cat)
	}

	for _, d := range f.Questions {
		q, err := d.question(bySlug)
		if err != nil {
			errs = append(errs, fmt.Errorf("question %q: %w", d.ID, err))
			continue
		}
		if !dup("question", d.ID) {
			c.Questions = append(c.Questions, q)
		}
	}

	for _, d := range f.Achievements {
		crit, err := core.DecodeAchievementCriteria(d.Criteria)
		if err == nil {
			err = knownCategory(crit, bySlug)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("achievement %q: %w", d.ID, err))
			continue
		}
		if d.ID == "" {
			errs = append(errs, fmt.Errorf("achievement %q: id is required", d.Name))
			continue
		}
		if d.XPReward < 0 {
			errs = append(errs, fmt.Errorf("achievement %q: negative xp_reward", d.ID))
			continue
		}
		if !dup("achievement", d.ID) {
			c.Achievements = append(c.Achievements, core.Achievement{
				ID: core.AchievementID(d.ID), Name: d.Name, Description: d.Description,
				Criteria: crit, XPReward: d.XPReward, BeltTier: d.BeltTier,
			})
		}
	}

	for _, d := range f.Belts {
		var catID core.CategoryID
		if d.Category != "" {
			cat, ok := bySlug[d.Category]
			if !ok {
				errs = append(errs, fmt.Errorf("belt %q: unknown category %q", d.ID, d.Category))
				continue
			}
			catID = cat.ID
		}
		crit, err := core.DecodeBeltCriteria(d.Criteria, d.Category)
		if err == nil {
			err = knownCategory(crit, bySlug)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("belt %q: %w", d.ID, err))
			continue
		}
		if d.ID == "" {
			errs = append(errs, fmt.Errorf("belt %q: id is required", d.Name))
			continue
		}
		if !dup("belt", d.ID) {
			c.Belts = append(c.Belts, core.Belt{
				ID: core.BeltID(d.ID), Name: d.Name, Description: d.Description, CategoryID: catID,
				Criteria: crit, Rarity: d.Rarity, ProductURL: d.ProductURL,
			})
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &c, nil
}

func (d QuestionDoc) question(bySlug map[string]core.Category) (core.Question, error) {
	if d.ID == "" {
		return core.Question{}, core.Invalid("id", "empty")
	}
	cat, ok := bySlug[d.Category]
	if !ok {
		return core.Question{}, core.Invalid("category", fmt.Sprintf("unknown %q", d.Category))
	}
	diff := core.Difficulty(strings.ToLower(d.Difficulty))
	if !diff.Valid() {
		return core.Question{}, core.Invalid("difficulty", fmt.Sprintf("unknown %q", d.Difficulty))
	}
	if strings.TrimSpace(d.Text) == "" {
		return core.Question{}, core.Invalid("text", "empty")
	}
	if len(d.Options) < 2 {
		return core.Question{}, core.Invalid("options", "need at least two")
	}
	q := core.Question{
		ID: core.QuestionID(d.ID), CategoryID: cat.ID, Text: d.Text, Difficulty: diff,
		Options: d.Options, CorrectAnswer: d.CorrectAnswer, Explanation: d.Explanation,
		XPReward: d.XPReward, TimeLimit: d.TimeLimit, Active: d.Active == nil || *d.Active,
	}
	found := false
	for _, o := range d.Options {
		if q.IsCorrect(o) {
			found = true
			break
		}
	}
	if !found {
		return core.Question{}, core.Invalid("correct_answer", "not among the options")
	}
	if q.XPReward < 0 || q.TimeLimit < 0 {
		return core.Question{}, core.Invalid("xp_reward", "must not be negative")
	}
	return q, nil
}

// knownCategory rejects criteria naming a category the catalog does not define.
func knownCategory(c core.Criteria, bySlug map[string]core.Category) error {
	slug := c.Spec().CategorySlug
	if slug == "" {
		return nil
	}
	if _, ok := bySlug[slug]; !ok {
		return core.Invalid("criteria.categorySlug", fmt.Sprintf("unknown %q", slug))
	}
	return nil
}

// Seed writes every entry through w. Categories go first so questions and
// belts can reference them.
func Seed(ctx context.Context, w engine.CatalogWriter, c *Catalog) error {
	for _, cat := range c.Categories {
		if err := w.PutCategory(ctx, cat); err != nil {
			return fmt.Errorf("seed category %s: %w", cat.ID, err)
		}
	}
	for _, q := range c.Questions {
		if err := w.PutQuestion(ctx, q); err != nil {
			return fmt.Errorf("seed question %s: %w", q.ID, err)
		}
	}
	for _, a := range c.Achievements {
		if err := w.PutAchievement(ctx, a); err != nil {
			return fmt.Errorf("seed achievement %s: %w", a.ID, err)
		}
	}
	for _, b := range c.Belts {
		if err := w.PutBelt(ctx, b); err != nil {
			return fmt.Errorf("seed belt %s: %w", b.ID, err)
		}
	}
	return nil
}
