package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	wsadapter "triviakit/adapters/websocket"
	"triviakit/core"
	"triviakit/engine"
	"triviakit/leaderboard"
	"triviakit/trivia"
)

const maxBodyBytes = 1 << 20

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys are admin credentials accepted via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// JWTSecret, if set, accepts HS256 player tokens whose subject is the user id.
	JWTSecret []byte
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
	Logger         *slog.Logger
}

type api struct {
	kit *trivia.Kit
	svc *engine.ProgressionService
	log *slog.Logger
}

// NewMux builds an http.Handler exposing the trivia REST API and WebSocket stream.
// Routes:
//   - GET  {prefix}/healthz
//   - POST {prefix}/users
//   - GET  {prefix}/users/{id}
//   - POST {prefix}/users/{id}/answers
//   - POST {prefix}/users/{id}/hints/{question}
//   - GET  {prefix}/users/{id}/challenge
//   - POST {prefix}/users/{id}/challenge/{challenge}/complete
//   - POST {prefix}/users/{id}/achievements/{achievement}/equip
//   - POST {prefix}/users/{id}/belts/{belt}/display
//   - GET  {prefix}/users/{id}/rank?board=global
//   - GET  {prefix}/questions/random?category=&difficulty=&limit=
//   - GET  {prefix}/categories, {prefix}/achievements, {prefix}/belts
//   - GET  {prefix}/belts/featured
//   - GET  {prefix}/leaderboards/{board}?offset=&limit=
//   - GET  {prefix}/admin/analytics
//   - WS   {prefix}/ws?user=
func NewMux(kit *trivia.Kit, opts Options) http.Handler {
	a := &api{kit: kit, svc: kit.Service, log: opts.Logger}
	if a.log == nil {
		a.log = slog.Default()
	}
	mux := http.NewServeMux()
	route := func(method, path string, h http.HandlerFunc) {
		mux.HandleFunc(method+" "+withPrefix(opts.PathPrefix, path), h)
	}

	route(http.MethodGet, "/healthz", a.health)
	route(http.MethodPost, "/users", a.createUser)
	route(http.MethodGet, "/users/{id}", a.user(a.progress))
	route(http.MethodPost, "/users/{id}/answers", a.user(a.submitAnswer))
	route(http.MethodPost, "/users/{id}/hints/{question}", a.user(a.useHint))
	route(http.MethodGet, "/users/{id}/challenge", a.user(a.challenge))
	route(http.MethodPost, "/users/{id}/challenge/{challenge}/complete", a.user(a.completeChallenge))
	route(http.MethodPost, "/users/{id}/achievements/{achievement}/equip", a.user(a.equipAchievement))
	route(http.MethodPost, "/users/{id}/belts/{belt}/display", a.user(a.displayBelt))
	route(http.MethodGet, "/users/{id}/rank", a.user(a.rank))
	route(http.MethodGet, "/questions/random", a.randomQuestions)
	route(http.MethodGet, "/categories", a.categories)
	route(http.MethodGet, "/achievements", a.achievements)
	route(http.MethodGet, "/belts", a.belts)
	route(http.MethodGet, "/belts/featured", a.featuredBelt)
	route(http.MethodGet, "/leaderboards/{board}", a.leaderboard)
	route(http.MethodGet, "/admin/analytics", a.analytics)

	if kit.Hub != nil {
		mux.Handle(withPrefix(opts.PathPrefix, "/ws"), wsadapter.Handler(kit.Hub, streamUser, a.log))
	}

	var handler http.Handler = mux
	if len(opts.APIKeys) > 0 || len(opts.JWTSecret) > 0 {
		handler = withAuth(handler, opts.APIKeys, opts.JWTSecret)
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		handler = withRateLimit(handler, opts.RateLimitRPM, opts.RateLimitBurst)
	}
	if opts.AllowCORSOrigin != "" {
		handler = withCORS(handler, opts.AllowCORSOrigin)
	}
	return handler
}

// streamUser restricts player connections to their own events. Admins and
// open deployments may pick any user, or none for the full stream.
func streamUser(r *http.Request) core.UserID {
	if p, ok := PrincipalFrom(r.Context()); ok && !p.Admin {
		return p.User
	}
	id, err := core.NormalizeUserID(core.UserID(r.URL.Query().Get("user")))
	if err != nil {
		return ""
	}
	return id
}

type userHandler func(w http.ResponseWriter, r *http.Request, user core.UserID)

// user validates the {id} path value and checks the caller may act for it.
func (a *api) user(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := core.NormalizeUserID(core.UserID(r.PathValue("id")))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_user", err.Error(), nil)
			return
		}
		if !authorizeUser(r, id) {
			writeError(w, http.StatusForbidden, "forbidden", "token does not belong to this user", nil)
			return
		}
		next(w, r, id)
	}
}

// health verifies the store answers a catalog read.
func (a *api) health(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "healthy", "checks": map[string]any{"storage": "ok"}}
	code := http.StatusOK
	if _, err := a.kit.Store.Categories(r.Context()); err != nil {
		a.log.Warn("health check failed", slog.Any("error", err))
		code = http.StatusServiceUnavailable
		status["status"] = "unhealthy"
		status["checks"] = map[string]any{"storage": "failed"}
	}
	writeJSONStatus(w, code, status)
}

func (a *api) createUser(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID core.UserID `json:"user_id"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	id, err := core.NormalizeUserID(in.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_user", err.Error(), nil)
		return
	}
	if !authorizeUser(r, id) {
		writeError(w, http.StatusForbidden, "forbidden", "token does not belong to this user", nil)
		return
	}
	p, err := a.svc.CreateUser(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, p)
}

func (a *api) progress(w http.ResponseWriter, r *http.Request, user core.UserID) {
	v, err := a.svc.Progress(r.Context(), user)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, v)
}

func (a *api) submitAnswer(w http.ResponseWriter, r *http.Request, user core.UserID) {
	var in struct {
		QuestionID core.QuestionID `json:"question_id"`
		Answer     string          `json:"answer"`
		TimeTaken  int64           `json:"time_taken"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	res, err := a.svc.SubmitAnswer(r.Context(), engine.SubmitAnswer{
		UserID: user, QuestionID: in.QuestionID, Answer: in.Answer, TimeTaken: in.TimeTaken,
	})
	if errors.Is(err, core.ErrAlreadyAnswered) {
		writeJSONStatus(w, http.StatusConflict, res)
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (a *api) useHint(w http.ResponseWriter, r *http.Request, user core.UserID) {
	res, err := a.svc.UseHint(r.Context(), user, core.QuestionID(r.PathValue("question")))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (a *api) challenge(w http.ResponseWriter, r *http.Request, user core.UserID) {
	v, err := a.svc.DailyChallenge(r.Context(), user)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, v)
}

func (a *api) completeChallenge(w http.ResponseWriter, r *http.Request, user core.UserID) {
	res, err := a.svc.CompleteChallenge(r.Context(), user, core.ChallengeID(r.PathValue("challenge")))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (a *api) equipAchievement(w http.ResponseWriter, r *http.Request, user core.UserID) {
	on, err := a.svc.ToggleAchievementEquip(r.Context(), user, core.AchievementID(r.PathValue("achievement")))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"equipped": on})
}

func (a *api) displayBelt(w http.ResponseWriter, r *http.Request, user core.UserID) {
	on, err := a.svc.ToggleBeltDisplay(r.Context(), user, core.BeltID(r.PathValue("belt")))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"displayed": on})
}

func (a *api) rank(w http.ResponseWriter, r *http.Request, user core.UserID) {
	board, err := leaderboard.ParseBoard(r.URL.Query().Get("board"), time.Now(), a.kit.Location())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	e, ok, err := a.kit.Boards.Rank(r.Context(), board, user)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "user is not ranked on "+string(board), nil)
		return
	}
	writeJSON(w, e)
}

func (a *api) randomQuestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, ok := queryInt(w, q.Get("limit"), "limit")
	if !ok {
		return
	}
	qs, err := a.svc.RandomQuestions(r.Context(), engine.QuestionQuery{
		CategorySlug: q.Get("category"),
		Difficulty:   core.Difficulty(q.Get("difficulty")),
		Limit:        limit,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"questions": qs})
}

func (a *api) categories(w http.ResponseWriter, r *http.Request) {
	cats, err := a.kit.Store.Categories(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"categories": cats})
}

type achievementView struct {
	core.Achievement
	Criteria core.CriteriaSpec `json:"criteria"`
}

type beltView struct {
	core.Belt
	Criteria core.CriteriaSpec `json:"criteria"`
}

func (a *api) achievements(w http.ResponseWriter, r *http.Request) {
	list, err := a.kit.Store.Achievements(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]achievementView, 0, len(list))
	for _, ach := range list {
		out = append(out, achievementView{Achievement: ach, Criteria: ach.Criteria.Spec()})
	}
	writeJSON(w, map[string]any{"achievements": out})
}

func (a *api) belts(w http.ResponseWriter, r *http.Request) {
	list, err := a.kit.Store.Belts(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]beltView, 0, len(list))
	for _, b := range list {
		out = append(out, beltView{Belt: b, Criteria: b.Criteria.Spec()})
	}
	writeJSON(w, map[string]any{"belts": out})
}

func (a *api) featuredBelt(w http.ResponseWriter, r *http.Request) {
	b, err := a.svc.FeaturedBelt(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, beltView{Belt: b, Criteria: b.Criteria.Spec()})
}

func (a *api) leaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	board, err := leaderboard.ParseBoard(r.PathValue("board"), time.Now(), a.kit.Location())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	offset, ok := queryInt(w, q.Get("offset"), "offset")
	if !ok {
		return
	}
	limit, ok := queryInt(w, q.Get("limit"), "limit")
	if !ok {
		return
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	entries, err := a.kit.Boards.Top(r.Context(), board, offset, limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"board": board, "entries": entries})
}

func (a *api) analytics(w http.ResponseWriter, r *http.Request) {
	if !authorizeAdmin(r) {
		writeError(w, http.StatusForbidden, "forbidden", "admin credentials required", nil)
		return
	}
	writeJSON(w, a.kit.Report(time.Now()))
}

// fail maps domain errors to HTTP statuses. Unexpected errors are logged and
// hidden behind a generic message.
func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, core.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
	case errors.Is(err, core.ErrInsufficientXP):
		writeError(w, http.StatusBadRequest, "insufficient_xp", err.Error(), nil)
	case errors.Is(err, core.ErrDisplayLimit):
		writeError(w, http.StatusBadRequest, "display_limit", err.Error(), nil)
	case errors.Is(err, core.ErrNotUnlocked):
		writeError(w, http.StatusBadRequest, "not_unlocked", err.Error(), nil)
	case errors.Is(err, core.ErrChallengeCompleted):
		writeError(w, http.StatusConflict, "challenge_completed", err.Error(), nil)
	default:
		a.log.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("user_id", r.PathValue("id")),
			slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return false
	}
	return true
}

func queryInt(w http.ResponseWriter, s, name string) (int, bool) {
	if s == "" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a non-negative integer", nil)
		return 0, false
	}
	return n, true
}

func withPrefix(prefix, path string) string {
	if prefix == "" || prefix == "/" {
		return path
	}
	if prefix[len(prefix)-1] == '/' {
		return prefix[:len(prefix)-1] + path
	}
	return prefix + path
}

func writeJSON(w http.ResponseWriter, v any) { writeJSONStatus(w, http.StatusOK, v) }

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	writeJSONStatus(w, status, apiError{Code: code, Message: msg, Details: details})
}

// withCORS wraps a handler with a minimal CORS policy.
func withCORS(next http.Handler, origin string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-API-Key")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
