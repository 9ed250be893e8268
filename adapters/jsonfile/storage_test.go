package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"triviakit/core"
	"triviakit/engine"
)

func TestStorePersistAndLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	store, err := New(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.CreateUser(ctx, "alice", time.Now()); err != nil {
		t.Fatalf("create user: %v", err)
	}
	err = store.WithUser(ctx, "alice", func(tx engine.UserTx) error {
		p, err := tx.Progress(ctx)
		if err != nil {
			return err
		}
		p.TotalXP, p.Level, p.CurrentStreak, p.LongestStreak = 600, 2, 1, 1
		if err := tx.SaveProgress(ctx, p); err != nil {
			return err
		}
		if err := tx.InsertAnswer(ctx, core.AnswerEvent{ID: "a1", UserID: "alice", QuestionID: "q1", IsCorrect: true}); err != nil {
			return err
		}
		return tx.InsertAchievementUnlock(ctx, core.AchievementUnlock{UserID: "alice", AchievementID: "first-bell"})
	})
	if err != nil {
		t.Fatalf("with user: %v", err)
	}

	// ensure file written
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file at %s", path)
	}

	reloaded, err := New(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	err = reloaded.WithUser(ctx, "alice", func(tx engine.UserTx) error {
		p, _ := tx.Progress(ctx)
		if p.TotalXP != 600 || p.Level != 2 {
			t.Fatalf("progress %+v", p)
		}
		if _, ok, _ := tx.PriorAnswer(ctx, "q1"); !ok {
			t.Fatal("answer missing after reload")
		}
		unlocks, _ := tx.AchievementUnlocks(ctx)
		if len(unlocks) != 1 {
			t.Fatalf("unlocks %+v", unlocks)
		}
		// a second insert must still be rejected after reload
		if err := tx.InsertAnswer(ctx, core.AnswerEvent{QuestionID: "q1"}); err != core.ErrAlreadyAnswered {
			t.Fatalf("got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("reloaded with user: %v", err)
	}
}

func TestReadOnlyUnitOfWorkSkipsWrite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = store.CreateUser(ctx, "bob", time.Now())
	info, _ := os.Stat(path)
	before := info.ModTime()
	time.Sleep(20 * time.Millisecond)
	_ = store.WithUser(ctx, "bob", func(tx engine.UserTx) error {
		_, err := tx.Progress(ctx)
		return err
	})
	info, _ = os.Stat(path)
	if !info.ModTime().Equal(before) {
		t.Fatal("read-only access rewrote the file")
	}
}

func TestNewFailsOnCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(path); err == nil {
		t.Fatal("expected error for corrupt file")
	}
}
