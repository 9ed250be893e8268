package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mem "triviakit/adapters/memory"
	"triviakit/catalog"
	"triviakit/core"
	"triviakit/engine"
	"triviakit/trivia"
)

func newTestKit(t *testing.T, opts ...trivia.Option) *trivia.Kit {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatal(err)
	}
	opts = append([]trivia.Option{trivia.WithCatalog(cat), trivia.WithDispatchMode(engine.DispatchSync)}, opts...)
	kit, err := trivia.New(context.Background(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(kit.Close)
	return kit
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestAnswerFlow(t *testing.T) {
	h := NewMux(newTestKit(t), Options{PathPrefix: "/api"})

	if rec := do(t, h, http.MethodPost, "/api/users", `{"user_id":"Alice"}`); rec.Code != http.StatusCreated {
		t.Fatalf("create user: %d %s", rec.Code, rec.Body)
	}

	rec := do(t, h, http.MethodPost, "/api/users/alice/answers", `{"question_id":"wcw-001","answer":"Hulk Hogan","time_taken":20}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body)
	}
	var res engine.AnswerResult
	decode(t, rec, &res)
	if !res.IsCorrect || res.XPEarned != 50 || res.TotalXP != 150 {
		t.Fatalf("unexpected result: %+v", res)
	}

	rec = do(t, h, http.MethodPost, "/api/users/alice/answers", `{"question_id":"wcw-001","answer":"Sting","time_taken":3}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var dup engine.AnswerResult
	decode(t, rec, &dup)
	if !dup.AlreadyAnswered || dup.XPEarned != 0 || dup.TotalXP != 150 {
		t.Fatalf("unexpected duplicate result: %+v", dup)
	}

	rec = do(t, h, http.MethodGet, "/api/users/alice", "")
	var view engine.ProgressView
	decode(t, rec, &view)
	if view.Progress.TotalXP != 150 || len(view.Achievements) != 1 {
		t.Fatalf("unexpected progress: %+v", view)
	}

	rec = do(t, h, http.MethodGet, "/api/leaderboards/global", "")
	var board struct {
		Entries []struct {
			User  string `json:"user_id"`
			Score int64  `json:"score"`
			Rank  int64  `json:"rank"`
		} `json:"entries"`
	}
	decode(t, rec, &board)
	if len(board.Entries) != 1 || board.Entries[0].User != "alice" || board.Entries[0].Score != 150 {
		t.Fatalf("unexpected board: %s", rec.Body)
	}

	if rec := do(t, h, http.MethodGet, "/api/users/alice/rank?board=weekly", ""); rec.Code != http.StatusOK {
		t.Fatalf("weekly rank: %d %s", rec.Code, rec.Body)
	}
	if rec := do(t, h, http.MethodGet, "/api/users/alice/rank?board=monthly", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown board, got %d", rec.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	h := NewMux(newTestKit(t), Options{})
	if rec := do(t, h, http.MethodPost, "/users", `{"user_id":"bob"}`); rec.Code != http.StatusCreated {
		t.Fatalf("create: %d", rec.Code)
	}

	cases := []struct {
		name, method, path, body string
		status                   int
		code                     string
	}{
		{"unknown user", http.MethodGet, "/users/ghost", "", http.StatusNotFound, "not_found"},
		{"unknown question", http.MethodPost, "/users/bob/answers", `{"question_id":"nope","answer":"x"}`, http.StatusNotFound, "not_found"},
		{"bad body", http.MethodPost, "/users/bob/answers", `{"question":1}`, http.StatusBadRequest, "invalid_body"},
		{"negative time", http.MethodPost, "/users/bob/answers", `{"question_id":"wcw-001","answer":"x","time_taken":-1}`, http.StatusBadRequest, "invalid_input"},
		{"hint without xp", http.MethodPost, "/users/bob/hints/wcw-002", "", http.StatusBadRequest, "insufficient_xp"},
		{"equip not owned", http.MethodPost, "/users/bob/achievements/legend/equip", "", http.StatusBadRequest, "not_unlocked"},
		{"bad limit", http.MethodGet, "/questions/random?limit=x", "", http.StatusBadRequest, "invalid_limit"},
		{"unknown category", http.MethodGet, "/questions/random?category=nope", "", http.StatusNotFound, "not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, tc.method, tc.path, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d %s", tc.status, rec.Code, rec.Body)
			}
			var e apiError
			decode(t, rec, &e)
			if e.Code != tc.code {
				t.Fatalf("expected code %q, got %q", tc.code, e.Code)
			}
		})
	}
}

func TestCatalogRoutes(t *testing.T) {
	h := NewMux(newTestKit(t), Options{})

	rec := do(t, h, http.MethodGet, "/questions/random?category=ecw-hardcore&limit=5", "")
	var qs struct {
		Questions []map[string]any `json:"questions"`
	}
	decode(t, rec, &qs)
	if len(qs.Questions) != 2 {
		t.Fatalf("expected 2 ecw questions, got %d", len(qs.Questions))
	}
	if _, leaked := qs.Questions[0]["correct_answer"]; leaked {
		t.Fatal("correct answer exposed")
	}

	rec = do(t, h, http.MethodGet, "/achievements", "")
	if !strings.Contains(rec.Body.String(), `"type":"category_accuracy"`) {
		t.Fatalf("criteria missing from achievements: %s", rec.Body)
	}
	if rec := do(t, h, http.MethodGet, "/belts/featured", ""); rec.Code != http.StatusOK {
		t.Fatalf("featured belt: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
}

type brokenStore struct{ engine.Store }

func (brokenStore) Achievements(context.Context) ([]core.Achievement, error) {
	return nil, errors.New("connection reset")
}

func TestInternalErrorsAreHidden(t *testing.T) {
	kit, err := trivia.New(context.Background(), trivia.WithStore(brokenStore{mem.New()}), trivia.WithDispatchMode(engine.DispatchSync))
	if err != nil {
		t.Fatal(err)
	}
	defer kit.Close()
	rec := do(t, NewMux(kit, Options{}), http.MethodGet, "/achievements", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection reset") {
		t.Fatalf("internal detail leaked: %s", rec.Body)
	}
}

func TestAuth(t *testing.T) {
	secret := []byte("jwt-secret")
	h := NewMux(newTestKit(t), Options{APIKeys: []string{"admin-key"}, JWTSecret: secret, AllowCORSOrigin: "*"})
	aliceToken, err := IssueToken(secret, "alice", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	expired, _ := IssueToken(secret, "alice", -time.Minute)

	if rec := do(t, h, http.MethodGet, "/categories", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/users", `{"user_id":"alice"}`, "Authorization", "Bearer "+aliceToken); rec.Code != http.StatusCreated {
		t.Fatalf("player creating self: %d %s", rec.Code, rec.Body)
	}
	if rec := do(t, h, http.MethodGet, "/users/alice", "", "Authorization", "Bearer "+aliceToken); rec.Code != http.StatusOK {
		t.Fatalf("player reading self: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/users/bob", "", "Authorization", "Bearer "+aliceToken); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another user, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/users/alice", "", "Authorization", "Bearer "+expired); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/admin/analytics", "", "Authorization", "Bearer "+aliceToken); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for player on admin route, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/admin/analytics", "", "X-API-Key", "admin-key"); rec.Code != http.StatusOK {
		t.Fatalf("admin analytics: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodOptions, "/users/alice", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("preflight: %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	h := NewMux(newTestKit(t), Options{
		APIKeys:          []string{"k"},
		RateLimitEnabled: true,
		RateLimitRPM:     1,
		RateLimitBurst:   1,
	})
	if rec := do(t, h, http.MethodGet, "/categories", "", "X-API-Key", "k"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 first request, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/categories", "", "X-API-Key", "k"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestRateLimiterRefills(t *testing.T) {
	l := newRateLimiter(60, 1)
	now := time.Now()
	if !l.allow("a", now) || l.allow("a", now) {
		t.Fatal("burst of one not enforced")
	}
	if !l.allow("a", now.Add(time.Second)) {
		t.Fatal("token not refilled after a second at 60 rpm")
	}
}
