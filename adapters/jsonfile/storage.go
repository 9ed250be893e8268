package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"triviakit/adapters/memory"
	"triviakit/core"
	"triviakit/engine"
)

// Store persists user progress and challenges to a single JSON file. The
// catalog lives in memory and is seeded at startup. Suitable for demos and
// small deployments.
type Store struct {
	*memory.Store
	path string
	mu   sync.Mutex
}

func New(path string) (*Store, error) {
	s := &Store{Store: memory.New(), path: path}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	return s, nil
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var snap memory.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return err
	}
	s.Restore(snap)
	return nil
}

// persist writes a fresh snapshot via a temp file and rename so readers never
// see a partial file.
func (s *Store) persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) CreateUser(ctx context.Context, id core.UserID, now time.Time) (core.UserProgress, error) {
	p, err := s.Store.CreateUser(ctx, id, now)
	if err != nil {
		return p, err
	}
	return p, s.persist()
}

// WithUser commits to memory first and then rewrites the file. A failed write
// is reported but the in-memory state stays committed.
func (s *Store) WithUser(ctx context.Context, id core.UserID, fn func(engine.UserTx) error) error {
	wrote := false
	err := s.Store.WithUser(ctx, id, func(tx engine.UserTx) error {
		return fn(&trackingTx{UserTx: tx, wrote: &wrote})
	})
	if err != nil || !wrote {
		return err
	}
	if err := s.persist(); err != nil {
		return fmt.Errorf("persist %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) CreateDailyChallenge(ctx context.Context, c core.DailyChallenge) (core.DailyChallenge, error) {
	out, err := s.Store.CreateDailyChallenge(ctx, c)
	if err != nil {
		return out, err
	}
	return out, s.persist()
}

// trackingTx notes whether a unit of work wrote anything so read-only calls
// skip the file rewrite.
type trackingTx struct {
	engine.UserTx
	wrote *bool
}

func (t *trackingTx) mark(err error) error {
	if err == nil {
		*t.wrote = true
	}
	return err
}

func (t *trackingTx) SaveProgress(ctx context.Context, p core.UserProgress) error {
	return t.mark(t.UserTx.SaveProgress(ctx, p))
}

func (t *trackingTx) InsertAnswer(ctx context.Context, a core.AnswerEvent) error {
	return t.mark(t.UserTx.InsertAnswer(ctx, a))
}

func (t *trackingTx) SaveCategoryProgress(ctx context.Context, cp core.CategoryProgress) error {
	return t.mark(t.UserTx.SaveCategoryProgress(ctx, cp))
}

func (t *trackingTx) InsertAchievementUnlock(ctx context.Context, u core.AchievementUnlock) error {
	return t.mark(t.UserTx.InsertAchievementUnlock(ctx, u))
}

func (t *trackingTx) InsertBeltUnlock(ctx context.Context, u core.BeltUnlock) error {
	return t.mark(t.UserTx.InsertBeltUnlock(ctx, u))
}

func (t *trackingTx) SetAchievementEquipped(ctx context.Context, id core.AchievementID, on bool) error {
	return t.mark(t.UserTx.SetAchievementEquipped(ctx, id, on))
}

func (t *trackingTx) SetBeltDisplayed(ctx context.Context, id core.BeltID, on bool) error {
	return t.mark(t.UserTx.SetBeltDisplayed(ctx, id, on))
}

func (t *trackingTx) InsertChallengeResult(ctx context.Context, r core.ChallengeResult) error {
	return t.mark(t.UserTx.InsertChallengeResult(ctx, r))
}

var _ engine.Store = (*Store)(nil)
