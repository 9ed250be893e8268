package sqlx_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	libsqlx "github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	storage "triviakit/adapters/sqlx"
	"triviakit/core"
	"triviakit/engine"
)

func newMockStore(t *testing.T, driver string) (*storage.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return storage.NewWithDB(libsqlx.NewDb(db, driver), driver), mock
}

func expectLock(mock sqlmock.Sqlmock, user string) {
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM users WHERE id = \$1 FOR UPDATE`).
		WithArgs(user).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(user))
}

func TestSQLMock_CreateUser(t *testing.T) {
	store, mock := newMockStore(t, storage.DriverPostgres)
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO users .* ON CONFLICT \(id\) DO NOTHING`).
		WithArgs("u1", 0, 1, 0, 0, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT id, total_xp, level, .* FROM users WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "total_xp", "level", "current_streak", "longest_streak", "last_played", "created_at", "updated_at"}).
			AddRow("u1", 0, 1, 0, 0, nil, now, now))

	p, err := store.CreateUser(context.Background(), "u1", now)
	require.NoError(t, err)
	require.Equal(t, core.UserID("u1"), p.UserID)
	require.Equal(t, int64(1), p.Level)
	require.True(t, p.LastPlayed.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_WithUser_UnknownUser(t *testing.T) {
	store, mock := newMockStore(t, storage.DriverPostgres)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM users WHERE id = \$1 FOR UPDATE`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	called := false
	err := store.WithUser(context.Background(), "ghost", func(engine.UserTx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, core.ErrUserNotFound)
	require.False(t, called)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_InsertAnswer_DuplicateRollsBack(t *testing.T) {
	store, mock := newMockStore(t, storage.DriverPostgres)

	expectLock(mock, "u1")
	mock.ExpectExec(`INSERT INTO answers`).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := store.WithUser(context.Background(), "u1", func(tx engine.UserTx) error {
		return tx.InsertAnswer(context.Background(), core.AnswerEvent{ID: "a1", QuestionID: "q1", CategoryID: "c1"})
	})
	require.ErrorIs(t, err, core.ErrAlreadyAnswered)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_AnswerSummary(t *testing.T) {
	store, mock := newMockStore(t, storage.DriverPostgres)

	expectLock(mock, "u1")
	mock.ExpectQuery(`SELECT COUNT\(\*\) AS total`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"total", "correct"}).AddRow(4, 3))
	mock.ExpectQuery(`SELECT time_taken, COUNT\(\*\) AS n FROM answers`).
		WithArgs("u1", true).
		WillReturnRows(sqlmock.NewRows([]string{"time_taken", "n"}).AddRow(3, 2).AddRow(9, 1))
	mock.ExpectQuery(`SELECT is_correct FROM answers .* LIMIT \$2`).
		WithArgs("u1", 10).
		WillReturnRows(sqlmock.NewRows([]string{"is_correct"}).AddRow(true).AddRow(false).AddRow(true))
	mock.ExpectCommit()

	var sum engine.AnswerSummary
	err := store.WithUser(context.Background(), "u1", func(tx engine.UserTx) error {
		var err error
		sum, err = tx.AnswerSummary(context.Background(), 10)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, int64(4), sum.Total)
	require.Equal(t, int64(3), sum.Correct)
	require.Equal(t, map[int64]int64{3: 2, 9: 1}, sum.CorrectByTime)
	require.Equal(t, []bool{true, false, true}, sum.Recent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_SetBeltDisplayed_NotOwned(t *testing.T) {
	store, mock := newMockStore(t, storage.DriverPostgres)

	expectLock(mock, "u1")
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM belt_unlocks`).
		WithArgs("u1", "b1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectRollback()

	err := store.WithUser(context.Background(), "u1", func(tx engine.UserTx) error {
		return tx.SetBeltDisplayed(context.Background(), "b1", true)
	})
	require.ErrorIs(t, err, core.ErrNotUnlocked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_MySQLUpsertSyntax(t *testing.T) {
	store, mock := newMockStore(t, storage.DriverMySQL)

	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO categories (id, slug, name) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE slug = VALUES(slug), name = VALUES(name)")).
		WithArgs("cat-wwe", "wwe", "WWE").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.PutCategory(context.Background(), core.Category{ID: "cat-wwe", Slug: "wwe", Name: "WWE"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_DailyChallengeNotFound(t *testing.T) {
	store, mock := newMockStore(t, storage.DriverPostgres)

	mock.ExpectQuery(`FROM daily_challenges WHERE challenge_date = \$1`).
		WithArgs("2024-06-10").
		WillReturnRows(sqlmock.NewRows([]string{"id", "challenge_date", "question_ids", "bonus_xp"}))

	_, err := store.DailyChallenge(context.Background(), time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, core.ErrChallengeNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSchemaUnknownDriver(t *testing.T) {
	_, err := storage.Schema("oracle")
	require.Error(t, err)
	for _, d := range []string{storage.DriverPostgres, storage.DriverMySQL, storage.DriverSQLite} {
		ddl, err := storage.Schema(d)
		require.NoError(t, err)
		require.Contains(t, ddl, "UNIQUE (user_id, question_id)")
	}
}
