package engine_test

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	mem "triviakit/adapters/memory"
	"triviakit/core"
	"triviakit/engine"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type harness struct {
	store *mem.Store
	bus   *engine.EventBus
	svc   *engine.ProgressionService
	clock *fakeClock
}

// newHarness seeds two categories ("wwe" with 10 easy questions, "wcw" with 5
// hard ones) and a small achievement and belt catalog.
func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	store := mem.New()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(store.PutCategory(ctx, core.Category{ID: "cat-wwe", Slug: "wwe", Name: "WWE"}))
	must(store.PutCategory(ctx, core.Category{ID: "cat-wcw", Slug: "wcw", Name: "WCW"}))
	for i := 1; i <= 10; i++ {
		must(store.PutQuestion(ctx, core.Question{
			ID: core.QuestionID(fmt.Sprintf("wwe-%02d", i)), CategoryID: "cat-wwe", Text: "Who?",
			Difficulty: core.DifficultyEasy, Options: []string{"A", "B", "C", "D"}, CorrectAnswer: "A",
			Explanation: "Because A.", XPReward: 50, TimeLimit: 15, Active: true,
		}))
	}
	for i := 1; i <= 5; i++ {
		must(store.PutQuestion(ctx, core.Question{
			ID: core.QuestionID(fmt.Sprintf("wcw-%02d", i)), CategoryID: "cat-wcw", Text: "Who?",
			Difficulty: core.DifficultyHard, Options: []string{"A", "B", "C", "D"}, CorrectAnswer: "B",
			XPReward: 150, TimeLimit: 30, Active: true,
		}))
	}
	must(store.PutQuestion(ctx, core.Question{ID: "retired", CategoryID: "cat-wwe", CorrectAnswer: "A", Active: false}))

	must(store.PutAchievement(ctx, core.Achievement{ID: "first-bell", Name: "First Bell", Criteria: core.FirstQuiz{}, XPReward: 100}))
	must(store.PutAchievement(ctx, core.Achievement{ID: "five-correct", Name: "Five Count", Criteria: core.TotalCorrect{Min: 5}, XPReward: 200}))
	must(store.PutAchievement(ctx, core.Achievement{ID: "streak-3", Name: "Three Days", Criteria: core.MinStreak{Days: 3}, XPReward: 50}))
	must(store.PutBelt(ctx, core.Belt{ID: "wcw-title", Name: "WCW Title", CategoryID: "cat-wcw", Criteria: core.CategoryComplete{Category: "wcw"}}))
	must(store.PutBelt(ctx, core.Belt{ID: "collector", Name: "Collector", Criteria: core.TotalBelts{Min: 1}}))

	clock := &fakeClock{t: time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)}
	bus := engine.NewEventBus(engine.DispatchSync)
	svc := engine.NewProgressionService(store, bus,
		engine.WithClock(clock.Now),
		engine.WithRand(rand.New(rand.NewPCG(1, 2))),
	)
	return &harness{store: store, bus: bus, svc: svc, clock: clock}
}

func (h *harness) user(t *testing.T, id core.UserID) {
	t.Helper()
	if _, err := h.svc.CreateUser(context.Background(), id); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) answer(t *testing.T, user core.UserID, q core.QuestionID, answer string, took int64) engine.AnswerResult {
	t.Helper()
	res, err := h.svc.SubmitAnswer(context.Background(), engine.SubmitAnswer{UserID: user, QuestionID: q, Answer: answer, TimeTaken: took})
	if err != nil {
		t.Fatalf("submit %s: %v", q, err)
	}
	return res
}
