package sqlx

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	libsqlx "github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"triviakit/core"
	"triviakit/engine"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

//go:embed schema/*.sql
var schemaFS embed.FS

func init() {
	libsqlx.BindDriver(DriverSQLite, libsqlx.QUESTION)
}

// Schema returns the DDL for driver.
func Schema(driver string) (string, error) {
	switch driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		return "", fmt.Errorf("unsupported sql driver %q", driver)
	}
	b, err := schemaFS.ReadFile("schema/" + driver + ".sql")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Store is an engine.Store on top of PostgreSQL, MySQL or SQLite. Per-user
// units of work run in one database transaction that first locks the user row.
type Store struct {
	db     *libsqlx.DB
	driver string
}

// Options tunes the connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to dsn with driver and pings the database.
func Open(ctx context.Context, driver, dsn string, opts Options) (*Store, error) {
	if _, err := Schema(driver); err != nil {
		return nil, err
	}
	db, err := libsqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// a single connection serialises writers and keeps :memory: databases shared
		db.SetMaxOpenConns(1)
	} else {
		if opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			db.SetMaxIdleConns(opts.MaxIdleConns)
		}
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return NewWithDB(db, driver), nil
}

// NewWithDB wraps an existing connection.
func NewWithDB(db *libsqlx.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *libsqlx.DB { return s.db }

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	ddl, err := Schema(s.driver)
	if err != nil {
		return err
	}
	for _, stmt := range strings.Split(ddl, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// insertIgnore builds an INSERT that silently skips rows violating keys.
func (s *Store) insertIgnore(table string, cols, keys []string) string {
	ph := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	if s.driver == DriverMySQL {
		return s.db.Rebind(fmt.Sprintf("INSERT IGNORE INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), ph))
	}
	return s.db.Rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		table, strings.Join(cols, ", "), ph, strings.Join(keys, ", ")))
}

// upsert builds an INSERT that overwrites the non-key columns on conflict.
func (s *Store) upsert(table string, cols, keys []string) string {
	ph := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	isKey := map[string]bool{}
	for _, k := range keys {
		isKey[k] = true
	}
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		if isKey[c] {
			continue
		}
		if s.driver == DriverMySQL {
			sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", c, c))
		} else {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ", table, strings.Join(cols, ", "), ph)
	if s.driver == DriverMySQL {
		q += "ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	} else {
		q += fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(keys, ", "), strings.Join(sets, ", "))
	}
	return s.db.Rebind(q)
}

// isUniqueViolation recognises duplicate-key errors of every supported driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

type userRow struct {
	ID            string       `db:"id"`
	TotalXP       int64        `db:"total_xp"`
	Level         int64        `db:"level"`
	CurrentStreak int64        `db:"current_streak"`
	LongestStreak int64        `db:"longest_streak"`
	LastPlayed    sql.NullTime `db:"last_played"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
}

func (r userRow) progress() core.UserProgress {
	p := core.UserProgress{
		UserID: core.UserID(r.ID), TotalXP: r.TotalXP, Level: r.Level,
		CurrentStreak: r.CurrentStreak, LongestStreak: r.LongestStreak,
		Created: r.CreatedAt.UTC(), Updated: r.UpdatedAt.UTC(),
	}
	if r.LastPlayed.Valid {
		p.LastPlayed = r.LastPlayed.Time
	}
	return p
}

const userCols = "id, total_xp, level, current_streak, longest_streak, last_played, created_at, updated_at"

func (s *Store) CreateUser(ctx context.Context, id core.UserID, now time.Time) (core.UserProgress, error) {
	q := s.insertIgnore("users", strings.Split(userCols, ", "), []string{"id"})
	if _, err := s.db.ExecContext(ctx, q, string(id), 0, 1, 0, 0, nil, now.UTC(), now.UTC()); err != nil {
		return core.UserProgress{}, fmt.Errorf("create user: %w", err)
	}
	var row userRow
	if err := s.db.GetContext(ctx, &row, s.db.Rebind("SELECT "+userCols+" FROM users WHERE id = ?"), string(id)); err != nil {
		return core.UserProgress{}, fmt.Errorf("create user: %w", err)
	}
	return row.progress(), nil
}

func (s *Store) Users(ctx context.Context) ([]core.UserProgress, error) {
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT "+userCols+" FROM users ORDER BY id"); err != nil {
		return nil, err
	}
	out := make([]core.UserProgress, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.progress())
	}
	return out, nil
}

// WithUser locks the user row for the duration of one transaction. SQLite has
// no row locks; its single connection serialises transactions instead.
func (s *Store) WithUser(ctx context.Context, id core.UserID, fn func(engine.UserTx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	lock := "SELECT id FROM users WHERE id = ?"
	if s.driver != DriverSQLite {
		lock += " FOR UPDATE"
	}
	var got string
	if err = tx.GetContext(ctx, &got, tx.Rebind(lock), string(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrUserNotFound
		}
		return fmt.Errorf("lock user: %w", err)
	}
	if err = fn(&userTx{s: s, tx: tx, user: id}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type challengeRow struct {
	ID          string `db:"id"`
	Date        string `db:"challenge_date"`
	QuestionIDs string `db:"question_ids"`
	BonusXP     int64  `db:"bonus_xp"`
}

func (r challengeRow) challenge() (core.DailyChallenge, error) {
	day, err := time.Parse(time.DateOnly, r.Date)
	if err != nil {
		return core.DailyChallenge{}, err
	}
	var ids []core.QuestionID
	if err := decodeJSON(r.QuestionIDs, &ids); err != nil {
		return core.DailyChallenge{}, err
	}
	return core.DailyChallenge{ID: core.ChallengeID(r.ID), Date: day, QuestionIDs: ids, BonusXP: r.BonusXP}, nil
}

const challengeCols = "id, challenge_date, question_ids, bonus_xp"

func (s *Store) challengeWhere(ctx context.Context, where string, arg any) (core.DailyChallenge, error) {
	var row challengeRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind("SELECT "+challengeCols+" FROM daily_challenges WHERE "+where+" = ?"), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return core.DailyChallenge{}, core.ErrChallengeNotFound
	}
	if err != nil {
		return core.DailyChallenge{}, err
	}
	return row.challenge()
}

func (s *Store) DailyChallenge(ctx context.Context, day time.Time) (core.DailyChallenge, error) {
	return s.challengeWhere(ctx, "challenge_date", day.Format(time.DateOnly))
}

func (s *Store) Challenge(ctx context.Context, id core.ChallengeID) (core.DailyChallenge, error) {
	return s.challengeWhere(ctx, "id", string(id))
}

func (s *Store) CreateDailyChallenge(ctx context.Context, c core.DailyChallenge) (core.DailyChallenge, error) {
	ids, err := encodeJSON(c.QuestionIDs)
	if err != nil {
		return core.DailyChallenge{}, err
	}
	q := s.insertIgnore("daily_challenges", strings.Split(challengeCols, ", "), []string{"challenge_date"})
	if _, err := s.db.ExecContext(ctx, q, string(c.ID), c.Date.Format(time.DateOnly), ids, c.BonusXP); err != nil {
		return core.DailyChallenge{}, fmt.Errorf("create challenge: %w", err)
	}
	return s.DailyChallenge(ctx, c.Date)
}

var _ engine.Store = (*Store)(nil)
var _ engine.CatalogWriter = (*Store)(nil)
