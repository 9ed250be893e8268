package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"triviakit/core"
	"triviakit/engine"
	"triviakit/leaderboard"
)

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string         `json:"status"`
	Checks map[string]any `json:"checks"`
}

// AnswerRequest is the body of a submitted answer. TimeTaken is in seconds.
type AnswerRequest struct {
	QuestionID core.QuestionID `json:"question_id"`
	Answer     string          `json:"answer"`
	TimeTaken  int64           `json:"time_taken"`
}

// QuestionQuery filters RandomQuestions. Zero values mean "any".
type QuestionQuery struct {
	Category   string
	Difficulty core.Difficulty
	Limit      int
}

// Achievement is a catalog achievement with its unlock rule.
type Achievement struct {
	core.Achievement
	Criteria core.CriteriaSpec `json:"criteria"`
}

// Belt is a catalog belt with its unlock rule.
type Belt struct {
	core.Belt
	Criteria core.CriteriaSpec `json:"criteria"`
}

// Leaderboard is one page of a ranking.
type Leaderboard struct {
	Board   leaderboard.BoardID `json:"board"`
	Entries []leaderboard.Entry `json:"entries"`
}

// Re-exported response shapes.
type (
	Progress         = engine.ProgressView
	AnswerResult     = engine.AnswerResult
	HintResult       = engine.HintResult
	ChallengeView    = engine.ChallengeView
	ChallengeResult  = core.ChallengeResult
	Question         = engine.PublicQuestion
	LeaderboardEntry = leaderboard.Entry
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed: status %d", e.Status)
	}
	return fmt.Sprintf("request failed: status %d: %s: %s", e.Status, e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

var (
	// ErrEmptyUserID is returned when user id is empty.
	ErrEmptyUserID = errors.New("user id is required")
	// ErrAlreadyAnswered accompanies the recorded result of a repeated answer.
	ErrAlreadyAnswered = errors.New("question already answered")
)
