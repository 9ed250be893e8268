package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"golang.org/x/sync/errgroup"

	sqlxAdapter "triviakit/adapters/sqlx"
	"triviakit/adapters/sqlx/migrations"
	"triviakit/api/httpapi"
	"triviakit/catalog"
	"triviakit/config"
	"triviakit/core"
)

func newRootCmd() *cobra.Command {
	flags := &Flags{
		ConfigPath: os.Getenv("TRIVIAKIT_CONFIG"),
		Port:       os.Getenv("PORT"),
	}

	cmd := &cobra.Command{
		Use:           "triviakit",
		Short:         "Wrestling trivia progression server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *flags)
		},
	}
	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", flags.ConfigPath, "path to YAML or JSON config")
	cmd.PersistentFlags().StringVar(&flags.Port, "port", flags.Port, "port to listen on, overriding server.address")
	cmd.PersistentFlags().StringSliceVar(&flags.EnvFiles, "env-file", nil, "dotenv files to load before reading config")

	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newMigrateCmd(flags))
	cmd.AddCommand(newCatalogCmd())
	cmd.AddCommand(newTokenCmd(flags))
	return cmd
}

func newServeCmd(flags *Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *flags)
		},
	}
}

func runServer(parent context.Context, flags Flags) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := BuildApp(ctx, flags)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}
	defer cleanup()

	cfg := app.Config
	app.Logger.Info("starting triviakit server",
		slog.String("environment", string(cfg.Environment)),
		slog.String("profile", cfg.Profile),
		slog.String("address", cfg.Server.Address),
		slog.String("storage_adapter", cfg.Storage.Adapter),
		slog.String("leaderboard", cfg.Leaderboard.Backend))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.Logger.Info("server listening", slog.String("address", cfg.Server.Address))
		if err := app.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		app.Logger.Info("shutting down server", slog.Duration("timeout", cfg.Server.ShutdownTimeout))
		return app.shutdown(cfg.Server.ShutdownTimeout)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	app.Logger.Info("server stopped")
	return nil
}

func newMigrateCmd(flags *Flags) *cobra.Command {
	var rollback bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the SQL schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(flags.EnvFiles...); err != nil {
				return err
			}
			cfg, err := config.Load(flags.ConfigPath)
			if err != nil {
				return err
			}
			return runMigrations(cmd.Context(), cfg.SQL, rollback, cmd)
		},
	}
	cmd.Flags().BoolVar(&rollback, "rollback", false, "roll back the last migration group (postgres only)")
	return cmd
}

// runMigrations tracks PostgreSQL migrations with bun; the other drivers apply
// the idempotent embedded schema directly.
func runMigrations(ctx context.Context, cfg config.SQLConfig, rollback bool, cmd *cobra.Command) error {
	if cfg.DSN == "" {
		return errors.New("sql dsn not configured")
	}
	if cfg.Driver != sqlxAdapter.DriverPostgres {
		if rollback {
			return fmt.Errorf("rollback is not supported for %s", cfg.Driver)
		}
		store, err := sqlxAdapter.Open(ctx, cfg.Driver, cfg.DSN, cfg.Options())
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		cmd.Printf("schema applied (%s)\n", cfg.Driver)
		return nil
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return err
	}
	if rollback {
		group, err := migrator.Rollback(ctx)
		if err != nil {
			return err
		}
		cmd.Printf("rolled back %s\n", group)
		return nil
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}
	if group.IsZero() {
		cmd.Println("no new migrations")
		return nil
	}
	cmd.Printf("migrated to %s\n", group)
	return nil
}

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect trivia catalogs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a YAML or JSON catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(args[0])
			if err != nil {
				return err
			}
			cmd.Printf("%s: %d categories, %d questions, %d achievements, %d belts\n",
				args[0], len(cat.Categories), len(cat.Questions), len(cat.Achievements), len(cat.Belts))
			return nil
		},
	})
	return cmd
}

func newTokenCmd(flags *Flags) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <user>",
		Short: "Issue a player JWT signed with security.jwt_secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(flags.EnvFiles...); err != nil {
				return err
			}
			cfg, err := config.Load(flags.ConfigPath)
			if err != nil {
				return err
			}
			if cfg.Security.JWTSecret == "" {
				return errors.New("security.jwt_secret is not configured")
			}
			tok, err := httpapi.IssueToken([]byte(cfg.Security.JWTSecret), core.UserID(args[0]), ttl)
			if err != nil {
				return err
			}
			cmd.Println(tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
