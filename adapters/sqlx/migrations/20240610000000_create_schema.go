package migrations

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	storage "triviakit/adapters/sqlx"
)

// Migrations is the PostgreSQL migration set applied by `triviakit migrate`.
var Migrations = migrate.NewMigrations()

// dropOrder lists tables children first.
var dropOrder = []string{
	"challenge_results", "daily_challenges", "belt_unlocks", "achievement_unlocks",
	"answers", "category_progress", "users", "belts", "achievements", "questions", "categories",
}

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			ddl, err := storage.Schema(storage.DriverPostgres)
			if err != nil {
				return err
			}
			_, err = db.ExecContext(ctx, ddl)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			for _, table := range dropOrder {
				if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
					return err
				}
			}
			return nil
		},
	)
}
