package sqlx

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"triviakit/core"
	"triviakit/engine"
)

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

func decodeJSON(s string, v any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}

type questionRow struct {
	ID            string `db:"id"`
	CategoryID    string `db:"category_id"`
	Text          string `db:"text"`
	Difficulty    string `db:"difficulty"`
	Options       string `db:"options"`
	CorrectAnswer string `db:"correct_answer"`
	Explanation   string `db:"explanation"`
	XPReward      int64  `db:"xp_reward"`
	TimeLimit     int64  `db:"time_limit"`
	Active        bool   `db:"active"`
}

func (r questionRow) question() (core.Question, error) {
	q := core.Question{
		ID: core.QuestionID(r.ID), CategoryID: core.CategoryID(r.CategoryID), Text: r.Text,
		Difficulty: core.Difficulty(r.Difficulty), CorrectAnswer: r.CorrectAnswer, Explanation: r.Explanation,
		XPReward: r.XPReward, TimeLimit: r.TimeLimit, Active: r.Active,
	}
	if err := decodeJSON(r.Options, &q.Options); err != nil {
		return core.Question{}, fmt.Errorf("question %s options: %w", r.ID, err)
	}
	return q, nil
}

const questionCols = "id, category_id, text, difficulty, options, correct_answer, explanation, xp_reward, time_limit, active"

func (s *Store) PutCategory(ctx context.Context, c core.Category) error {
	q := s.upsert("categories", []string{"id", "slug", "name"}, []string{"id"})
	_, err := s.db.ExecContext(ctx, q, string(c.ID), c.Slug, c.Name)
	return err
}

func (s *Store) PutQuestion(ctx context.Context, qn core.Question) error {
	opts, err := encodeJSON(qn.Options)
	if err != nil {
		return err
	}
	q := s.upsert("questions", strings.Split(questionCols, ", "), []string{"id"})
	_, err = s.db.ExecContext(ctx, q, string(qn.ID), string(qn.CategoryID), qn.Text, string(qn.Difficulty), opts,
		qn.CorrectAnswer, qn.Explanation, qn.XPReward, qn.TimeLimit, qn.Active)
	return err
}

func (s *Store) PutAchievement(ctx context.Context, a core.Achievement) error {
	if a.Criteria == nil {
		return core.Invalid("achievement.criteria", "missing")
	}
	crit, err := encodeJSON(a.Criteria.Spec())
	if err != nil {
		return err
	}
	q := s.upsert("achievements", []string{"id", "name", "description", "criteria", "xp_reward", "belt_tier"}, []string{"id"})
	_, err = s.db.ExecContext(ctx, q, string(a.ID), a.Name, a.Description, crit, a.XPReward, a.BeltTier)
	return err
}

func (s *Store) PutBelt(ctx context.Context, b core.Belt) error {
	if b.Criteria == nil {
		return core.Invalid("belt.criteria", "missing")
	}
	crit, err := encodeJSON(b.Criteria.Spec())
	if err != nil {
		return err
	}
	var category any
	if b.CategoryID != "" {
		category = string(b.CategoryID)
	}
	q := s.upsert("belts", []string{"id", "name", "description", "category_id", "criteria", "rarity", "product_url"}, []string{"id"})
	_, err = s.db.ExecContext(ctx, q, string(b.ID), b.Name, b.Description, category, crit, b.Rarity, b.ProductURL)
	return err
}

func (s *Store) Question(ctx context.Context, id core.QuestionID) (core.Question, error) {
	var row questionRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind("SELECT "+questionCols+" FROM questions WHERE id = ?"), string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Question{}, core.ErrQuestionNotFound
	}
	if err != nil {
		return core.Question{}, err
	}
	return row.question()
}

func (s *Store) Questions(ctx context.Context, f engine.QuestionFilter) ([]core.Question, error) {
	var (
		where []string
		args  []any
	)
	if f.ActiveOnly {
		where = append(where, "active = ?")
		args = append(args, true)
	}
	if f.CategoryID != "" {
		where = append(where, "category_id = ?")
		args = append(args, string(f.CategoryID))
	}
	if f.Difficulty != "" {
		where = append(where, "difficulty = ?")
		args = append(args, string(f.Difficulty))
	}
	q := "SELECT " + questionCols + " FROM questions"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id"
	var rows []questionRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	out := make([]core.Question, 0, len(rows))
	for _, r := range rows {
		qn, err := r.question()
		if err != nil {
			return nil, err
		}
		out = append(out, qn)
	}
	return out, nil
}

type categoryRow struct {
	ID   string `db:"id"`
	Slug string `db:"slug"`
	Name string `db:"name"`
}

func (r categoryRow) category() core.Category {
	return core.Category{ID: core.CategoryID(r.ID), Slug: r.Slug, Name: r.Name}
}

func (s *Store) categoryWhere(ctx context.Context, col, val string) (core.Category, error) {
	var row categoryRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind("SELECT id, slug, name FROM categories WHERE "+col+" = ?"), val)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.ErrCategoryNotFound
	}
	return row.category(), err
}

func (s *Store) Category(ctx context.Context, id core.CategoryID) (core.Category, error) {
	return s.categoryWhere(ctx, "id", string(id))
}

func (s *Store) CategoryBySlug(ctx context.Context, slug string) (core.Category, error) {
	return s.categoryWhere(ctx, "slug", slug)
}

func (s *Store) Categories(ctx context.Context) ([]core.Category, error) {
	var rows []categoryRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT id, slug, name FROM categories ORDER BY slug"); err != nil {
		return nil, err
	}
	out := make([]core.Category, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.category())
	}
	return out, nil
}

func (s *Store) ActiveQuestionCounts(ctx context.Context) (map[core.CategoryID]int64, error) {
	var rows []struct {
		CategoryID string `db:"category_id"`
		N          int64  `db:"n"`
	}
	q := s.db.Rebind("SELECT category_id, COUNT(*) AS n FROM questions WHERE active = ? GROUP BY category_id")
	if err := s.db.SelectContext(ctx, &rows, q, true); err != nil {
		return nil, err
	}
	out := make(map[core.CategoryID]int64, len(rows))
	for _, r := range rows {
		out[core.CategoryID(r.CategoryID)] = r.N
	}
	return out, nil
}

func (s *Store) Achievements(ctx context.Context) ([]core.Achievement, error) {
	var rows []struct {
		ID          string `db:"id"`
		Name        string `db:"name"`
		Description string `db:"description"`
		Criteria    string `db:"criteria"`
		XPReward    int64  `db:"xp_reward"`
		BeltTier    string `db:"belt_tier"`
	}
	if err := s.db.SelectContext(ctx, &rows, "SELECT id, name, description, criteria, xp_reward, belt_tier FROM achievements ORDER BY id"); err != nil {
		return nil, err
	}
	out := make([]core.Achievement, 0, len(rows))
	for _, r := range rows {
		var spec core.CriteriaSpec
		if err := decodeJSON(r.Criteria, &spec); err != nil {
			return nil, fmt.Errorf("achievement %s criteria: %w", r.ID, err)
		}
		crit, err := core.DecodeAchievementCriteria(spec)
		if err != nil {
			return nil, fmt.Errorf("achievement %s: %w", r.ID, err)
		}
		out = append(out, core.Achievement{
			ID: core.AchievementID(r.ID), Name: r.Name, Description: r.Description,
			Criteria: crit, XPReward: r.XPReward, BeltTier: r.BeltTier,
		})
	}
	return out, nil
}

func (s *Store) Belts(ctx context.Context) ([]core.Belt, error) {
	var rows []struct {
		ID           string         `db:"id"`
		Name         string         `db:"name"`
		Description  string         `db:"description"`
		CategoryID   sql.NullString `db:"category_id"`
		CategorySlug sql.NullString `db:"category_slug"`
		Criteria     string         `db:"criteria"`
		Rarity       string         `db:"rarity"`
		ProductURL   string         `db:"product_url"`
	}
	q := `SELECT b.id, b.name, b.description, b.category_id, c.slug AS category_slug, b.criteria, b.rarity, b.product_url
		FROM belts b LEFT JOIN categories c ON c.id = b.category_id ORDER BY b.id`
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, err
	}
	out := make([]core.Belt, 0, len(rows))
	for _, r := range rows {
		var spec core.CriteriaSpec
		if err := decodeJSON(r.Criteria, &spec); err != nil {
			return nil, fmt.Errorf("belt %s criteria: %w", r.ID, err)
		}
		crit, err := core.DecodeBeltCriteria(spec, r.CategorySlug.String)
		if err != nil {
			return nil, fmt.Errorf("belt %s: %w", r.ID, err)
		}
		out = append(out, core.Belt{
			ID: core.BeltID(r.ID), Name: r.Name, Description: r.Description,
			CategoryID: core.CategoryID(r.CategoryID.String), Criteria: crit,
			Rarity: r.Rarity, ProductURL: r.ProductURL,
		})
	}
	return out, nil
}
