package sqlx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	libsqlx "github.com/jmoiron/sqlx"

	"triviakit/core"
	"triviakit/engine"
)

// userTx runs every statement inside the transaction opened by WithUser.
type userTx struct {
	s    *Store
	tx   *libsqlx.Tx
	user core.UserID
}

func (t *userTx) Progress(ctx context.Context) (core.UserProgress, error) {
	var row userRow
	err := t.tx.GetContext(ctx, &row, t.tx.Rebind("SELECT "+userCols+" FROM users WHERE id = ?"), string(t.user))
	if errors.Is(err, sql.ErrNoRows) {
		return core.UserProgress{}, core.ErrUserNotFound
	}
	if err != nil {
		return core.UserProgress{}, err
	}
	return row.progress(), nil
}

func (t *userTx) SaveProgress(ctx context.Context, p core.UserProgress) error {
	var last any
	if !p.LastPlayed.IsZero() {
		last = p.LastPlayed.UTC()
	}
	q := t.tx.Rebind(`UPDATE users SET total_xp = ?, level = ?, current_streak = ?, longest_streak = ?,
		last_played = ?, updated_at = ? WHERE id = ?`)
	_, err := t.tx.ExecContext(ctx, q, p.TotalXP, p.Level, p.CurrentStreak, p.LongestStreak, last, p.Updated.UTC(), string(t.user))
	return err
}

type answerRow struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	QuestionID string    `db:"question_id"`
	CategoryID string    `db:"category_id"`
	Answer     string    `db:"answer"`
	IsCorrect  bool      `db:"is_correct"`
	TimeTaken  int64     `db:"time_taken"`
	XPEarned   int64     `db:"xp_earned"`
	AnsweredAt time.Time `db:"answered_at"`
}

const answerCols = "id, user_id, question_id, category_id, answer, is_correct, time_taken, xp_earned, answered_at"

func (t *userTx) PriorAnswer(ctx context.Context, q core.QuestionID) (core.AnswerEvent, bool, error) {
	var r answerRow
	err := t.tx.GetContext(ctx, &r, t.tx.Rebind("SELECT "+answerCols+" FROM answers WHERE user_id = ? AND question_id = ?"),
		string(t.user), string(q))
	if errors.Is(err, sql.ErrNoRows) {
		return core.AnswerEvent{}, false, nil
	}
	if err != nil {
		return core.AnswerEvent{}, false, err
	}
	return core.AnswerEvent{
		ID: r.ID, UserID: core.UserID(r.UserID), QuestionID: core.QuestionID(r.QuestionID),
		CategoryID: core.CategoryID(r.CategoryID), Answer: r.Answer, IsCorrect: r.IsCorrect,
		TimeTaken: r.TimeTaken, XPEarned: r.XPEarned, AnsweredAt: r.AnsweredAt.UTC(),
	}, true, nil
}

func (t *userTx) InsertAnswer(ctx context.Context, a core.AnswerEvent) error {
	ph := strings.TrimSuffix(strings.Repeat("?, ", 9), ", ")
	q := t.tx.Rebind("INSERT INTO answers (" + answerCols + ") VALUES (" + ph + ")")
	_, err := t.tx.ExecContext(ctx, q, a.ID, string(t.user), string(a.QuestionID), string(a.CategoryID),
		a.Answer, a.IsCorrect, a.TimeTaken, a.XPEarned, a.AnsweredAt.UTC())
	if isUniqueViolation(err) {
		return core.ErrAlreadyAnswered
	}
	return err
}

func (t *userTx) AnswerSummary(ctx context.Context, recent int) (engine.AnswerSummary, error) {
	sum := engine.AnswerSummary{CorrectByTime: map[int64]int64{}}
	var totals struct {
		Total   int64         `db:"total"`
		Correct sql.NullInt64 `db:"correct"`
	}
	q := t.tx.Rebind(`SELECT COUNT(*) AS total, SUM(CASE WHEN is_correct THEN 1 ELSE 0 END) AS correct
		FROM answers WHERE user_id = ?`)
	if err := t.tx.GetContext(ctx, &totals, q, string(t.user)); err != nil {
		return sum, fmt.Errorf("answer totals: %w", err)
	}
	sum.Total, sum.Correct = totals.Total, totals.Correct.Int64

	var byTime []struct {
		TimeTaken int64 `db:"time_taken"`
		N         int64 `db:"n"`
	}
	q = t.tx.Rebind(`SELECT time_taken, COUNT(*) AS n FROM answers
		WHERE user_id = ? AND is_correct = ? GROUP BY time_taken`)
	if err := t.tx.SelectContext(ctx, &byTime, q, string(t.user), true); err != nil {
		return sum, fmt.Errorf("answers by time: %w", err)
	}
	for _, r := range byTime {
		sum.CorrectByTime[r.TimeTaken] = r.N
	}

	if recent > 0 {
		q = t.tx.Rebind(`SELECT is_correct FROM answers WHERE user_id = ?
			ORDER BY answered_at DESC, seq DESC LIMIT ?`)
		if err := t.tx.SelectContext(ctx, &sum.Recent, q, string(t.user), recent); err != nil {
			return sum, fmt.Errorf("recent answers: %w", err)
		}
	}
	return sum, nil
}

type categoryProgressRow struct {
	UserID            string    `db:"user_id"`
	CategoryID        string    `db:"category_id"`
	QuestionsAnswered int64     `db:"questions_answered"`
	QuestionsCorrect  int64     `db:"questions_correct"`
	CategoryXP        int64     `db:"category_xp"`
	MasteryLevel      int       `db:"mastery_level"`
	LastAttempted     time.Time `db:"last_attempted"`
}

func (r categoryProgressRow) progress() core.CategoryProgress {
	return core.CategoryProgress{
		UserID: core.UserID(r.UserID), CategoryID: core.CategoryID(r.CategoryID),
		QuestionsAnswered: r.QuestionsAnswered, QuestionsCorrect: r.QuestionsCorrect,
		CategoryXP: r.CategoryXP, MasteryLevel: r.MasteryLevel, LastAttempted: r.LastAttempted.UTC(),
	}
}

const categoryProgressCols = "user_id, category_id, questions_answered, questions_correct, category_xp, mastery_level, last_attempted"

func (t *userTx) CategoryProgress(ctx context.Context, c core.CategoryID) (core.CategoryProgress, bool, error) {
	var r categoryProgressRow
	q := t.tx.Rebind("SELECT " + categoryProgressCols + " FROM category_progress WHERE user_id = ? AND category_id = ?")
	err := t.tx.GetContext(ctx, &r, q, string(t.user), string(c))
	if errors.Is(err, sql.ErrNoRows) {
		return core.CategoryProgress{}, false, nil
	}
	if err != nil {
		return core.CategoryProgress{}, false, err
	}
	return r.progress(), true, nil
}

func (t *userTx) CategoryProgressList(ctx context.Context) ([]core.CategoryProgress, error) {
	var rows []categoryProgressRow
	q := t.tx.Rebind("SELECT " + categoryProgressCols + " FROM category_progress WHERE user_id = ? ORDER BY category_id")
	if err := t.tx.SelectContext(ctx, &rows, q, string(t.user)); err != nil {
		return nil, err
	}
	out := make([]core.CategoryProgress, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.progress())
	}
	return out, nil
}

func (t *userTx) SaveCategoryProgress(ctx context.Context, cp core.CategoryProgress) error {
	q := t.s.upsert("category_progress", strings.Split(categoryProgressCols, ", "), []string{"user_id", "category_id"})
	_, err := t.tx.ExecContext(ctx, q, string(t.user), string(cp.CategoryID), cp.QuestionsAnswered, cp.QuestionsCorrect,
		cp.CategoryXP, cp.MasteryLevel, cp.LastAttempted.UTC())
	return err
}

func (t *userTx) AchievementUnlocks(ctx context.Context) ([]core.AchievementUnlock, error) {
	var rows []struct {
		AchievementID string    `db:"achievement_id"`
		UnlockedAt    time.Time `db:"unlocked_at"`
		Equipped      bool      `db:"equipped"`
		BonusXP       int64     `db:"bonus_xp"`
	}
	q := t.tx.Rebind(`SELECT achievement_id, unlocked_at, equipped, bonus_xp FROM achievement_unlocks
		WHERE user_id = ? ORDER BY achievement_id`)
	if err := t.tx.SelectContext(ctx, &rows, q, string(t.user)); err != nil {
		return nil, err
	}
	out := make([]core.AchievementUnlock, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.AchievementUnlock{
			UserID: t.user, AchievementID: core.AchievementID(r.AchievementID),
			UnlockedAt: r.UnlockedAt.UTC(), Equipped: r.Equipped, BonusXP: r.BonusXP,
		})
	}
	return out, nil
}

func (t *userTx) BeltUnlocks(ctx context.Context) ([]core.BeltUnlock, error) {
	var rows []struct {
		BeltID     string    `db:"belt_id"`
		UnlockedAt time.Time `db:"unlocked_at"`
		Displayed  bool      `db:"displayed"`
	}
	q := t.tx.Rebind("SELECT belt_id, unlocked_at, displayed FROM belt_unlocks WHERE user_id = ? ORDER BY belt_id")
	if err := t.tx.SelectContext(ctx, &rows, q, string(t.user)); err != nil {
		return nil, err
	}
	out := make([]core.BeltUnlock, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.BeltUnlock{
			UserID: t.user, BeltID: core.BeltID(r.BeltID), UnlockedAt: r.UnlockedAt.UTC(), Displayed: r.Displayed,
		})
	}
	return out, nil
}

func (t *userTx) InsertAchievementUnlock(ctx context.Context, u core.AchievementUnlock) error {
	q := t.s.insertIgnore("achievement_unlocks", []string{"user_id", "achievement_id", "unlocked_at", "equipped", "bonus_xp"},
		[]string{"user_id", "achievement_id"})
	_, err := t.tx.ExecContext(ctx, q, string(t.user), string(u.AchievementID), u.UnlockedAt.UTC(), u.Equipped, u.BonusXP)
	return err
}

func (t *userTx) InsertBeltUnlock(ctx context.Context, u core.BeltUnlock) error {
	q := t.s.insertIgnore("belt_unlocks", []string{"user_id", "belt_id", "unlocked_at", "displayed"},
		[]string{"user_id", "belt_id"})
	_, err := t.tx.ExecContext(ctx, q, string(t.user), string(u.BeltID), u.UnlockedAt.UTC(), u.Displayed)
	return err
}

// setFlag updates one boolean column of an owned unlock row. MySQL reports
// matched rows only with clientFoundRows, so ownership is checked by select.
func (t *userTx) setFlag(ctx context.Context, table, keyCol, flagCol, key string, on bool) error {
	var n int64
	q := t.tx.Rebind(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE user_id = ? AND %s = ?", table, keyCol))
	if err := t.tx.GetContext(ctx, &n, q, string(t.user), key); err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotUnlocked
	}
	q = t.tx.Rebind(fmt.Sprintf("UPDATE %s SET %s = ? WHERE user_id = ? AND %s = ?", table, flagCol, keyCol))
	_, err := t.tx.ExecContext(ctx, q, on, string(t.user), key)
	return err
}

func (t *userTx) SetAchievementEquipped(ctx context.Context, id core.AchievementID, on bool) error {
	return t.setFlag(ctx, "achievement_unlocks", "achievement_id", "equipped", string(id), on)
}

func (t *userTx) SetBeltDisplayed(ctx context.Context, id core.BeltID, on bool) error {
	return t.setFlag(ctx, "belt_unlocks", "belt_id", "displayed", string(id), on)
}

const challengeResultCols = "user_id, challenge_id, score, correct_count, total_questions, bonus_xp_earned, completed_at"

func (t *userTx) ChallengeResult(ctx context.Context, id core.ChallengeID) (core.ChallengeResult, bool, error) {
	var r struct {
		UserID         string    `db:"user_id"`
		ChallengeID    string    `db:"challenge_id"`
		Score          int64     `db:"score"`
		CorrectCount   int64     `db:"correct_count"`
		TotalQuestions int64     `db:"total_questions"`
		BonusXPEarned  int64     `db:"bonus_xp_earned"`
		CompletedAt    time.Time `db:"completed_at"`
	}
	q := t.tx.Rebind("SELECT " + challengeResultCols + " FROM challenge_results WHERE user_id = ? AND challenge_id = ?")
	err := t.tx.GetContext(ctx, &r, q, string(t.user), string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.ChallengeResult{}, false, nil
	}
	if err != nil {
		return core.ChallengeResult{}, false, err
	}
	return core.ChallengeResult{
		UserID: t.user, ChallengeID: core.ChallengeID(r.ChallengeID), Score: r.Score,
		CorrectCount: r.CorrectCount, TotalQuestions: r.TotalQuestions,
		BonusXPEarned: r.BonusXPEarned, CompletedAt: r.CompletedAt.UTC(),
	}, true, nil
}

func (t *userTx) InsertChallengeResult(ctx context.Context, r core.ChallengeResult) error {
	ph := strings.TrimSuffix(strings.Repeat("?, ", 7), ", ")
	q := t.tx.Rebind("INSERT INTO challenge_results (" + challengeResultCols + ") VALUES (" + ph + ")")
	_, err := t.tx.ExecContext(ctx, q, string(t.user), string(r.ChallengeID), r.Score, r.CorrectCount,
		r.TotalQuestions, r.BonusXPEarned, r.CompletedAt.UTC())
	if isUniqueViolation(err) {
		return core.ErrChallengeCompleted
	}
	return err
}

var _ engine.UserTx = (*userTx)(nil)
