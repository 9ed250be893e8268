package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"triviakit/core"
	"triviakit/engine"
)

// Store is a concurrent in-memory engine.Store. Each user has its own mutex;
// WithUser works on a staged copy that replaces the live state only on success.
type Store struct {
	cat   catalog
	users sync.Map // map[core.UserID]*userRecord

	chMu       sync.Mutex
	challenges map[core.ChallengeID]core.DailyChallenge
	byDay      map[string]core.ChallengeID
}

type userRecord struct {
	mu    sync.Mutex
	state UserState
}

// UserState is everything stored for one user. Exported for snapshots.
type UserState struct {
	Progress     core.UserProgress                              `json:"progress"`
	Categories   map[core.CategoryID]core.CategoryProgress      `json:"categories"`
	Answers      map[core.QuestionID]core.AnswerEvent           `json:"answers"`
	AnswerOrder  []core.QuestionID                              `json:"answer_order"`
	Achievements map[core.AchievementID]core.AchievementUnlock `json:"achievements"`
	Belts        map[core.BeltID]core.BeltUnlock                `json:"belts"`
	Challenges   map[core.ChallengeID]core.ChallengeResult      `json:"challenges"`
}

func newUserState(p core.UserProgress) UserState {
	return UserState{
		Progress:     p,
		Categories:   map[core.CategoryID]core.CategoryProgress{},
		Answers:      map[core.QuestionID]core.AnswerEvent{},
		Achievements: map[core.AchievementID]core.AchievementUnlock{},
		Belts:        map[core.BeltID]core.BeltUnlock{},
		Challenges:   map[core.ChallengeID]core.ChallengeResult{},
	}
}

// Clone returns a deep copy.
func (u UserState) Clone() UserState {
	cp := newUserState(u.Progress)
	maps.Copy(cp.Categories, u.Categories)
	maps.Copy(cp.Answers, u.Answers)
	maps.Copy(cp.Achievements, u.Achievements)
	maps.Copy(cp.Belts, u.Belts)
	maps.Copy(cp.Challenges, u.Challenges)
	cp.AnswerOrder = append([]core.QuestionID(nil), u.AnswerOrder...)
	return cp
}

func New() *Store {
	return &Store{
		cat:        newCatalog(),
		challenges: map[core.ChallengeID]core.DailyChallenge{},
		byDay:      map[string]core.ChallengeID{},
	}
}

func dayKey(t time.Time) string { return t.Format("2006-01-02") }

func (s *Store) CreateUser(_ context.Context, id core.UserID, now time.Time) (core.UserProgress, error) {
	rec := &userRecord{state: newUserState(core.NewUserProgress(id, now))}
	actual, _ := s.users.LoadOrStore(id, rec)
	r := actual.(*userRecord)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Progress, nil
}

func (s *Store) Users(_ context.Context) ([]core.UserProgress, error) {
	var out []core.UserProgress
	s.users.Range(func(_, v any) bool {
		r := v.(*userRecord)
		r.mu.Lock()
		out = append(out, r.state.Progress)
		r.mu.Unlock()
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *Store) WithUser(_ context.Context, id core.UserID, fn func(engine.UserTx) error) error {
	v, ok := s.users.Load(id)
	if !ok {
		return core.ErrUserNotFound
	}
	rec := v.(*userRecord)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	staged := rec.state.Clone()
	if err := fn(&userTx{st: &staged}); err != nil {
		return err
	}
	rec.state = staged
	return nil
}

func (s *Store) DailyChallenge(_ context.Context, day time.Time) (core.DailyChallenge, error) {
	s.chMu.Lock()
	defer s.chMu.Unlock()
	id, ok := s.byDay[dayKey(day)]
	if !ok {
		return core.DailyChallenge{}, core.ErrChallengeNotFound
	}
	return s.challenges[id], nil
}

func (s *Store) CreateDailyChallenge(_ context.Context, c core.DailyChallenge) (core.DailyChallenge, error) {
	s.chMu.Lock()
	defer s.chMu.Unlock()
	if id, ok := s.byDay[dayKey(c.Date)]; ok {
		return s.challenges[id], nil
	}
	c.QuestionIDs = append([]core.QuestionID(nil), c.QuestionIDs...)
	s.challenges[c.ID] = c
	s.byDay[dayKey(c.Date)] = c.ID
	return c, nil
}

func (s *Store) Challenge(_ context.Context, id core.ChallengeID) (core.DailyChallenge, error) {
	s.chMu.Lock()
	defer s.chMu.Unlock()
	c, ok := s.challenges[id]
	if !ok {
		return core.DailyChallenge{}, core.ErrChallengeNotFound
	}
	return c, nil
}

// Snapshot is the persisted form of all user state and challenges.
type Snapshot struct {
	Users      map[core.UserID]UserState `json:"users"`
	Challenges []core.DailyChallenge     `json:"challenges"`
}

// Snapshot copies every user and challenge. Each user is copied under its own lock.
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{Users: map[core.UserID]UserState{}}
	s.users.Range(func(k, v any) bool {
		r := v.(*userRecord)
		r.mu.Lock()
		snap.Users[k.(core.UserID)] = r.state.Clone()
		r.mu.Unlock()
		return true
	})
	s.chMu.Lock()
	for _, c := range s.challenges {
		snap.Challenges = append(snap.Challenges, c)
	}
	s.chMu.Unlock()
	sort.Slice(snap.Challenges, func(i, j int) bool { return snap.Challenges[i].Date.Before(snap.Challenges[j].Date) })
	return snap
}

// Restore loads snap, replacing users and challenges with the same keys.
func (s *Store) Restore(snap Snapshot) {
	for id, st := range snap.Users {
		s.users.Store(id, &userRecord{state: st.Clone()})
	}
	s.chMu.Lock()
	defer s.chMu.Unlock()
	for _, c := range snap.Challenges {
		s.challenges[c.ID] = c
		s.byDay[dayKey(c.Date)] = c.ID
	}
}

var _ engine.Store = (*Store)(nil)
var _ engine.CatalogWriter = (*Store)(nil)
