package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"triviakit/core"
	"triviakit/engine"
)

func TestWithUserCommitsOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, err := s.CreateUser(ctx, "u", time.Now()); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("boom")
	err := s.WithUser(ctx, "u", func(tx engine.UserTx) error {
		p, _ := tx.Progress(ctx)
		p.TotalXP = 999
		_ = tx.SaveProgress(ctx, p)
		_ = tx.InsertAnswer(ctx, core.AnswerEvent{QuestionID: "q1"})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
	_ = s.WithUser(ctx, "u", func(tx engine.UserTx) error {
		p, _ := tx.Progress(ctx)
		if p.TotalXP != 0 {
			t.Fatalf("rolled back xp leaked: %d", p.TotalXP)
		}
		if _, ok, _ := tx.PriorAnswer(ctx, "q1"); ok {
			t.Fatal("rolled back answer leaked")
		}
		return nil
	})
}

func TestWithUserUnknownUser(t *testing.T) {
	err := New().WithUser(context.Background(), "ghost", func(engine.UserTx) error { return nil })
	if !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestInsertAnswerRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _ = s.CreateUser(ctx, "u", time.Now())
	err := s.WithUser(ctx, "u", func(tx engine.UserTx) error {
		if err := tx.InsertAnswer(ctx, core.AnswerEvent{QuestionID: "q1", IsCorrect: true}); err != nil {
			return err
		}
		return tx.InsertAnswer(ctx, core.AnswerEvent{QuestionID: "q1"})
	})
	if !errors.Is(err, core.ErrAlreadyAnswered) {
		t.Fatalf("got %v", err)
	}
}

func TestAnswerSummaryNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _ = s.CreateUser(ctx, "u", time.Now())
	_ = s.WithUser(ctx, "u", func(tx engine.UserTx) error {
		_ = tx.InsertAnswer(ctx, core.AnswerEvent{QuestionID: "a", IsCorrect: true, TimeTaken: 3})
		_ = tx.InsertAnswer(ctx, core.AnswerEvent{QuestionID: "b", IsCorrect: false, TimeTaken: 4})
		_ = tx.InsertAnswer(ctx, core.AnswerEvent{QuestionID: "c", IsCorrect: true, TimeTaken: 3})
		return nil
	})
	_ = s.WithUser(ctx, "u", func(tx engine.UserTx) error {
		sum, _ := tx.AnswerSummary(ctx, 2)
		if sum.Total != 3 || sum.Correct != 2 || sum.CorrectByTime[3] != 2 {
			t.Fatalf("unexpected %+v", sum)
		}
		if len(sum.Recent) != 2 || !sum.Recent[0] || sum.Recent[1] {
			t.Fatalf("recent %v", sum.Recent)
		}
		return nil
	})
}

func TestWithUserSerializesPerUser(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _ = s.CreateUser(ctx, "u", time.Now())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithUser(ctx, "u", func(tx engine.UserTx) error {
				p, _ := tx.Progress(ctx)
				p.TotalXP++
				return tx.SaveProgress(ctx, p)
			})
		}()
	}
	wg.Wait()
	users, _ := s.Users(ctx)
	if len(users) != 1 || users[0].TotalXP != 50 {
		t.Fatalf("lost updates: %+v", users)
	}
}

func TestDailyChallengeCreateIsIdempotentPerDay(t *testing.T) {
	ctx := context.Background()
	s := New()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	first, _ := s.CreateDailyChallenge(ctx, core.DailyChallenge{ID: "c1", Date: day, BonusXP: 250})
	second, _ := s.CreateDailyChallenge(ctx, core.DailyChallenge{ID: "c2", Date: day, BonusXP: 250})
	if first.ID != "c1" || second.ID != "c1" {
		t.Fatalf("got %s and %s", first.ID, second.ID)
	}
	if _, err := s.DailyChallenge(ctx, day.AddDate(0, 0, 1)); !errors.Is(err, core.ErrChallengeNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestCatalogCounts(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.PutCategory(ctx, core.Category{ID: "c1", Slug: "wwe"})
	_ = s.PutQuestion(ctx, core.Question{ID: "q1", CategoryID: "c1", Active: true})
	_ = s.PutQuestion(ctx, core.Question{ID: "q2", CategoryID: "c1", Active: false})
	if err := s.PutQuestion(ctx, core.Question{ID: "q3", CategoryID: "nope"}); !errors.Is(err, core.ErrCategoryNotFound) {
		t.Fatalf("got %v", err)
	}
	counts, _ := s.ActiveQuestionCounts(ctx)
	if counts["c1"] != 1 {
		t.Fatalf("counts %v", counts)
	}
	qs, _ := s.Questions(ctx, engine.QuestionFilter{ActiveOnly: true})
	if len(qs) != 1 {
		t.Fatalf("questions %v", qs)
	}
}
