package sdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"triviakit/api/httpapi"
	"triviakit/catalog"
	"triviakit/core"
	"triviakit/engine"
	"triviakit/trivia"
)

func newTestServer(t *testing.T, opts httpapi.Options) (*httptest.Server, *trivia.Kit) {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatal(err)
	}
	kit, err := trivia.New(context.Background(), trivia.WithCatalog(cat), trivia.WithDispatchMode(engine.DispatchSync))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(kit.Close)
	opts.PathPrefix = "/api"
	srv := httptest.NewServer(httpapi.NewMux(kit, opts))
	t.Cleanup(srv.Close)
	return srv, kit
}

func TestClient_PlayerFlow(t *testing.T) {
	srv, _ := newTestServer(t, httpapi.Options{})
	client, err := NewClient(srv.URL + "/api/")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	p, err := client.CreateUser(ctx, "Alice")
	if err != nil || p.UserID != "alice" || p.Level != 1 {
		t.Fatalf("create user: %+v err=%v", p, err)
	}

	res, err := client.SubmitAnswer(ctx, "alice", AnswerRequest{QuestionID: "wcw-001", Answer: "Hulk Hogan", TimeTaken: 20})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.IsCorrect || res.TotalXP != 150 || len(res.NewAchievements) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	dup, err := client.SubmitAnswer(ctx, "alice", AnswerRequest{QuestionID: "wcw-001", Answer: "Sting"})
	if !errors.Is(err, ErrAlreadyAnswered) || !dup.AlreadyAnswered || !dup.IsCorrect {
		t.Fatalf("duplicate: %+v err=%v", dup, err)
	}

	hint, err := client.UseHint(ctx, "alice", "golden-001")
	if err != nil || len(hint.Eliminated) != 2 || hint.TotalXP != 125 {
		t.Fatalf("hint: %+v err=%v", hint, err)
	}

	equipped, err := client.ToggleAchievement(ctx, "alice", "know-your-role")
	if err != nil || !equipped {
		t.Fatalf("equip: %v err=%v", equipped, err)
	}

	view, err := client.GetProgress(ctx, "alice")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if view.Progress.TotalXP != 125 || len(view.Achievements) != 1 || !view.Achievements[0].Equipped {
		t.Fatalf("unexpected progress: %+v", view)
	}

	entry, err := client.Rank(ctx, "alice", "global")
	if err != nil || entry.Rank != 1 || entry.Score != 125 {
		t.Fatalf("rank: %+v err=%v", entry, err)
	}
	lb, err := client.Leaderboard(ctx, "", 0, 5)
	if err != nil || len(lb.Entries) != 1 || lb.Entries[0].User != "alice" {
		t.Fatalf("leaderboard: %+v err=%v", lb, err)
	}
}

func TestClient_Catalog(t *testing.T) {
	srv, _ := newTestServer(t, httpapi.Options{})
	client, err := NewClient(srv.URL + "/api")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	cats, err := client.Categories(ctx)
	if err != nil || len(cats) != 6 {
		t.Fatalf("categories: %d err=%v", len(cats), err)
	}
	qs, err := client.RandomQuestions(ctx, QuestionQuery{Category: "wcw-monday-nitro", Limit: 5})
	if err != nil || len(qs) != 2 {
		t.Fatalf("questions: %+v err=%v", qs, err)
	}
	achs, err := client.Achievements(ctx)
	if err != nil || len(achs) != 15 {
		t.Fatalf("achievements: %d err=%v", len(achs), err)
	}
	belts, err := client.Belts(ctx)
	if err != nil || len(belts) != 6 || belts[0].Criteria.Type == "" {
		t.Fatalf("belts: %+v err=%v", belts, err)
	}
	featured, err := client.FeaturedBelt(ctx)
	if err != nil || featured.ID == "" {
		t.Fatalf("featured: %+v err=%v", featured, err)
	}
	health, err := client.Health(ctx)
	if err != nil || health.Status != "healthy" {
		t.Fatalf("health: %+v err=%v", health, err)
	}
}

func TestClient_Errors(t *testing.T) {
	srv, _ := newTestServer(t, httpapi.Options{})
	client, err := NewClient(srv.URL + "/api")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	if _, err := client.GetProgress(ctx, ""); !errors.Is(err, ErrEmptyUserID) {
		t.Fatalf("expected ErrEmptyUserID, got %v", err)
	}
	_, err = client.GetProgress(ctx, "ghost")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "not_found" {
		t.Fatalf("expected api error, got %v", err)
	}

	if _, err := client.CreateUser(ctx, "bob"); err != nil {
		t.Fatal(err)
	}
	_, err = client.UseHint(ctx, "bob", "golden-001")
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest || apiErr.Code != "insufficient_xp" {
		t.Fatalf("expected insufficient_xp, got %v", err)
	}
	if _, err := NewClient("  "); err == nil {
		t.Fatal("expected error for empty base url")
	}
}

func TestClient_APIKey(t *testing.T) {
	srv, _ := newTestServer(t, httpapi.Options{APIKeys: []string{"k1"}})

	anon, _ := NewClient(srv.URL + "/api")
	_, err := anon.Categories(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}

	client, _ := NewClient(srv.URL+"/api", WithAPIKey("k1"))
	if _, err := client.Categories(context.Background()); err != nil {
		t.Fatalf("categories with key: %v", err)
	}
}

func TestClient_SubscribeEvents(t *testing.T) {
	srv, kit := newTestServer(t, httpapi.Options{})
	client, err := NewClient(srv.URL + "/api")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := client.CreateUser(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	events, err := client.SubscribeEvents(ctx, "alice")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	for kit.Hub.Subscribers() == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("subscriber never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if _, err := client.SubmitAnswer(ctx, "alice", AnswerRequest{QuestionID: "golden-001", Answer: "Mr. T", TimeTaken: 10}); err != nil {
		t.Fatal(err)
	}

	seen := map[core.EventType]bool{}
	for !seen[core.EventXPAwarded] {
		select {
		case evt, ok := <-events:
			if !ok {
				t.Fatal("stream closed early")
			}
			if evt.UserID != "alice" {
				t.Fatalf("unexpected event: %+v", evt)
			}
			seen[evt.Type] = true
		case <-ctx.Done():
			t.Fatalf("timed out, saw %v", seen)
		}
	}
}

func TestDeriveWSURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8080/api": "ws://localhost:8080/api/ws",
		"https://trivia.example/":   "wss://trivia.example/ws",
	}
	for in, want := range cases {
		if got := deriveWSURL(in); got != want {
			t.Fatalf("deriveWSURL(%q) = %q, want %q", in, got, want)
		}
	}
}
