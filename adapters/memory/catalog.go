package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"triviakit/core"
	"triviakit/engine"
)

type catalog struct {
	mu           sync.RWMutex
	categories   map[core.CategoryID]core.Category
	questions    map[core.QuestionID]core.Question
	achievements map[core.AchievementID]core.Achievement
	belts        map[core.BeltID]core.Belt
}

func newCatalog() catalog {
	return catalog{
		categories:   map[core.CategoryID]core.Category{},
		questions:    map[core.QuestionID]core.Question{},
		achievements: map[core.AchievementID]core.Achievement{},
		belts:        map[core.BeltID]core.Belt{},
	}
}

func (s *Store) PutCategory(_ context.Context, c core.Category) error {
	if strings.TrimSpace(string(c.ID)) == "" || strings.TrimSpace(c.Slug) == "" {
		return core.Invalid("category", "id and slug are required")
	}
	s.cat.mu.Lock()
	defer s.cat.mu.Unlock()
	s.cat.categories[c.ID] = c
	return nil
}

func (s *Store) PutQuestion(_ context.Context, q core.Question) error {
	if strings.TrimSpace(string(q.ID)) == "" {
		return core.Invalid("question.id", "empty")
	}
	s.cat.mu.Lock()
	defer s.cat.mu.Unlock()
	if _, ok := s.cat.categories[q.CategoryID]; !ok {
		return core.ErrCategoryNotFound
	}
	q.Options = append([]string(nil), q.Options...)
	s.cat.questions[q.ID] = q
	return nil
}

func (s *Store) PutAchievement(_ context.Context, a core.Achievement) error {
	if a.Criteria == nil {
		return core.Invalid("achievement.criteria", "missing")
	}
	s.cat.mu.Lock()
	defer s.cat.mu.Unlock()
	s.cat.achievements[a.ID] = a
	return nil
}

func (s *Store) PutBelt(_ context.Context, b core.Belt) error {
	if b.Criteria == nil {
		return core.Invalid("belt.criteria", "missing")
	}
	s.cat.mu.Lock()
	defer s.cat.mu.Unlock()
	s.cat.belts[b.ID] = b
	return nil
}

func (s *Store) Question(_ context.Context, id core.QuestionID) (core.Question, error) {
	s.cat.mu.RLock()
	defer s.cat.mu.RUnlock()
	q, ok := s.cat.questions[id]
	if !ok {
		return core.Question{}, core.ErrQuestionNotFound
	}
	q.Options = append([]string(nil), q.Options...)
	return q, nil
}

func (s *Store) Questions(_ context.Context, f engine.QuestionFilter) ([]core.Question, error) {
	s.cat.mu.RLock()
	defer s.cat.mu.RUnlock()
	out := make([]core.Question, 0, len(s.cat.questions))
	for _, q := range s.cat.questions {
		if f.ActiveOnly && !q.Active {
			continue
		}
		if f.CategoryID != "" && q.CategoryID != f.CategoryID {
			continue
		}
		if f.Difficulty != "" && q.Difficulty != f.Difficulty {
			continue
		}
		q.Options = append([]string(nil), q.Options...)
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Category(_ context.Context, id core.CategoryID) (core.Category, error) {
	s.cat.mu.RLock()
	defer s.cat.mu.RUnlock()
	c, ok := s.cat.categories[id]
	if !ok {
		return core.Category{}, core.ErrCategoryNotFound
	}
	return c, nil
}

func (s *Store) CategoryBySlug(_ context.Context, slug string) (core.Category, error) {
	s.cat.mu.RLock()
	defer s.cat.mu.RUnlock()
	for _, c := range s.cat.categories {
		if c.Slug == slug {
			return c, nil
		}
	}
	return core.Category{}, core.ErrCategoryNotFound
}

func (s *Store) Categories(_ context.Context) ([]core.Category, error) {
	s.cat.mu.RLock()
	defer s.cat.mu.RUnlock()
	out := make([]core.Category, 0, len(s.cat.categories))
	for _, c := range s.cat.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (s *Store) ActiveQuestionCounts(_ context.Context) (map[core.CategoryID]int64, error) {
	s.cat.mu.RLock()
	defer s.cat.mu.RUnlock()
	out := make(map[core.CategoryID]int64, len(s.cat.categories))
	for _, q := range s.cat.questions {
		if q.Active {
			out[q.CategoryID]++
		}
	}
	return out, nil
}

func (s *Store) Achievements(_ context.Context) ([]core.Achievement, error) {
	s.cat.mu.RLock()
	defer s.cat.mu.RUnlock()
	out := make([]core.Achievement, 0, len(s.cat.achievements))
	for _, a := range s.cat.achievements {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Belts(_ context.Context) ([]core.Belt, error) {
	s.cat.mu.RLock()
	defer s.cat.mu.RUnlock()
	out := make([]core.Belt, 0, len(s.cat.belts))
	for _, b := range s.cat.belts {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
