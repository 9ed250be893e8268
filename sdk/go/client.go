package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"triviakit/core"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the trivia HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// CreateUser registers a player. Creating an existing player returns its progress.
func (c *Client) CreateUser(ctx context.Context, userID string) (core.UserProgress, error) {
	if strings.TrimSpace(userID) == "" {
		return core.UserProgress{}, ErrEmptyUserID
	}
	var p core.UserProgress
	err := c.do(ctx, http.MethodPost, "/users", nil, map[string]string{"user_id": userID}, &p)
	return p, err
}

// GetProgress fetches the player's progress, category mastery and collection.
func (c *Client) GetProgress(ctx context.Context, userID string) (Progress, error) {
	var v Progress
	err := c.userCall(ctx, http.MethodGet, userID, "", nil, &v)
	return v, err
}

// SubmitAnswer records an answer. A repeated answer returns the originally
// recorded result together with ErrAlreadyAnswered.
func (c *Client) SubmitAnswer(ctx context.Context, userID string, in AnswerRequest) (AnswerResult, error) {
	var res AnswerResult
	err := c.userCall(ctx, http.MethodPost, userID, "/answers", in, &res)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
		res.AlreadyAnswered = true
		return res, ErrAlreadyAnswered
	}
	return res, err
}

// UseHint spends XP to eliminate wrong options on a question.
func (c *Client) UseHint(ctx context.Context, userID string, question core.QuestionID) (HintResult, error) {
	var res HintResult
	err := c.userCall(ctx, http.MethodPost, userID, "/hints/"+url.PathEscape(string(question)), nil, &res)
	return res, err
}

// DailyChallenge returns today's challenge and whether the player finished it.
func (c *Client) DailyChallenge(ctx context.Context, userID string) (ChallengeView, error) {
	var v ChallengeView
	err := c.userCall(ctx, http.MethodGet, userID, "/challenge", nil, &v)
	return v, err
}

// CompleteChallenge scores the player's answers to a challenge.
func (c *Client) CompleteChallenge(ctx context.Context, userID string, challenge core.ChallengeID) (ChallengeResult, error) {
	var res ChallengeResult
	err := c.userCall(ctx, http.MethodPost, userID, "/challenge/"+url.PathEscape(string(challenge))+"/complete", nil, &res)
	return res, err
}

// ToggleAchievement flips the equipped flag and returns the new state.
func (c *Client) ToggleAchievement(ctx context.Context, userID string, id core.AchievementID) (bool, error) {
	var body struct {
		Equipped bool `json:"equipped"`
	}
	err := c.userCall(ctx, http.MethodPost, userID, "/achievements/"+url.PathEscape(string(id))+"/equip", nil, &body)
	return body.Equipped, err
}

// ToggleBelt flips the displayed flag and returns the new state.
func (c *Client) ToggleBelt(ctx context.Context, userID string, id core.BeltID) (bool, error) {
	var body struct {
		Displayed bool `json:"displayed"`
	}
	err := c.userCall(ctx, http.MethodPost, userID, "/belts/"+url.PathEscape(string(id))+"/display", nil, &body)
	return body.Displayed, err
}

// Rank returns the player's position on a board ("global", "weekly" or "category:<id>").
func (c *Client) Rank(ctx context.Context, userID, board string) (LeaderboardEntry, error) {
	var e LeaderboardEntry
	path := "/rank"
	if board != "" {
		path += "?board=" + url.QueryEscape(board)
	}
	err := c.userCall(ctx, http.MethodGet, userID, path, nil, &e)
	return e, err
}

// RandomQuestions draws questions without their answers.
func (c *Client) RandomQuestions(ctx context.Context, q QuestionQuery) ([]Question, error) {
	v := url.Values{}
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	if q.Difficulty != "" {
		v.Set("difficulty", string(q.Difficulty))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	var body struct {
		Questions []Question `json:"questions"`
	}
	err := c.do(ctx, http.MethodGet, "/questions/random", v, nil, &body)
	return body.Questions, err
}

// Categories lists the trivia categories.
func (c *Client) Categories(ctx context.Context) ([]core.Category, error) {
	var body struct {
		Categories []core.Category `json:"categories"`
	}
	err := c.do(ctx, http.MethodGet, "/categories", nil, nil, &body)
	return body.Categories, err
}

// Achievements lists the achievement catalog.
func (c *Client) Achievements(ctx context.Context) ([]Achievement, error) {
	var body struct {
		Achievements []Achievement `json:"achievements"`
	}
	err := c.do(ctx, http.MethodGet, "/achievements", nil, nil, &body)
	return body.Achievements, err
}

// Belts lists the belt catalog.
func (c *Client) Belts(ctx context.Context) ([]Belt, error) {
	var body struct {
		Belts []Belt `json:"belts"`
	}
	err := c.do(ctx, http.MethodGet, "/belts", nil, nil, &body)
	return body.Belts, err
}

// FeaturedBelt returns the belt promoted today.
func (c *Client) FeaturedBelt(ctx context.Context) (Belt, error) {
	var b Belt
	err := c.do(ctx, http.MethodGet, "/belts/featured", nil, nil, &b)
	return b, err
}

// Leaderboard fetches one page of a board.
func (c *Client) Leaderboard(ctx context.Context, board string, offset, limit int) (Leaderboard, error) {
	if board == "" {
		board = "global"
	}
	v := url.Values{}
	if offset > 0 {
		v.Set("offset", strconv.Itoa(offset))
	}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	var lb Leaderboard
	err := c.do(ctx, http.MethodGet, "/leaderboards/"+url.PathEscape(board), v, nil, &lb)
	return lb, err
}

// Health probes /healthz and returns status + storage check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var hs HealthStatus
	err := c.do(ctx, http.MethodGet, "/healthz", nil, nil, &hs)
	return hs, err
}

// SubscribeEvents connects to the WebSocket stream and emits core.Event values.
// A non-empty userID narrows the stream to that player. The returned channel
// closes when ctx is done or the connection drops.
func (c *Client) SubscribeEvents(ctx context.Context, userID string) (<-chan core.Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	target := c.wsURL
	if userID != "" {
		target += "?user=" + url.QueryEscape(userID)
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, target, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Event, 32)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var evt core.Event
			if err := conn.ReadJSON(&evt); err != nil {
				return
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) userCall(ctx context.Context, method, userID, suffix string, in, out any) error {
	if strings.TrimSpace(userID) == "" {
		return ErrEmptyUserID
	}
	path := "/users/" + url.PathEscape(userID) + suffix
	var query url.Values
	if i := strings.IndexByte(path, '?'); i >= 0 {
		q, err := url.ParseQuery(path[i+1:])
		if err != nil {
			return err
		}
		path, query = path[:i], q
	}
	return c.do(ctx, method, path, query, in, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict && out != nil {
		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		if apiErr.Code != "" {
			return apiErr
		}
		// repeated answers carry the recorded result instead of an error body
		if err := json.Unmarshal(raw, out); err != nil {
			return apiErr
		}
		apiErr.Code = "already_answered"
		return apiErr
	}
	return decodeJSON(resp, out)
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
