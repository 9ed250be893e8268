package trivia

import (
	"context"
	"testing"
	"time"

	"triviakit/catalog"
	"triviakit/engine"
	"triviakit/leaderboard"
)

func newKit(t *testing.T, opts ...Option) *Kit {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatal(err)
	}
	opts = append([]Option{WithCatalog(cat), WithDispatchMode(engine.DispatchSync)}, opts...)
	k, err := New(context.Background(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(k.Close)
	return k
}

func TestNewWiresHubBoardsAndAnalytics(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	k := newKit(t, WithServiceOptions(engine.WithClock(func() time.Time { return now })))

	_, ch := k.Hub.Subscribe(32, "alice")
	if _, err := k.Service.CreateUser(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	res, err := k.Service.SubmitAnswer(ctx, engine.SubmitAnswer{UserID: "alice", QuestionID: "golden-001", Answer: "mr. t", TimeTaken: 20})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsCorrect || len(res.NewAchievements) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	select {
	case ev := <-ch:
		if ev.UserID != "alice" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("hub received nothing")
	}

	e, ok, err := k.Boards.Rank(ctx, leaderboard.Global(), "alice")
	if err != nil || !ok {
		t.Fatalf("rank ok=%v err=%v", ok, err)
	}
	if e.Score != res.TotalXP || e.Rank != 1 {
		t.Fatalf("global entry = %+v, total xp %d", e, res.TotalXP)
	}
	if _, ok, _ := k.Boards.Rank(ctx, leaderboard.Weekly(now, time.UTC), "alice"); !ok {
		t.Fatal("weekly board not updated")
	}

	r := k.Report(now)
	if r.DailyActiveUsers != 1 || r.AnswersByDay["2024-06-10"] != 1 || r.Achievements["know-your-role"] != 1 {
		t.Fatalf("report = %+v", r)
	}
}

func TestBackfillSeedsGlobalBoard(t *testing.T) {
	ctx := context.Background()
	first := newKit(t)
	if _, err := first.Service.CreateUser(ctx, "bob"); err != nil {
		t.Fatal(err)
	}

	second, err := New(ctx, WithStore(first.Store), WithDispatchMode(engine.DispatchSync))
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()
	top, err := second.Boards.Top(ctx, leaderboard.Global(), 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 1 || top[0].User != "bob" {
		t.Fatalf("top = %+v", top)
	}
}

type readOnly struct{ engine.Store }

func TestCatalogNeedsWritableStore(t *testing.T) {
	base := newKit(t)
	cat, _ := catalog.Default()
	if _, err := New(context.Background(), WithStore(readOnly{base.Store}), WithCatalog(cat)); err == nil {
		t.Fatal("expected error for read-only store")
	}
}

func TestDefaultsAreUsable(t *testing.T) {
	k, err := New(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer k.Close()
	if k.Location() != time.UTC {
		t.Fatalf("location = %v", k.Location())
	}
	if _, err := k.Service.CreateUser(context.Background(), "carol"); err != nil {
		t.Fatal(err)
	}
}
