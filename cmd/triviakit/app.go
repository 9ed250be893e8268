package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"triviakit/adapters/jsonfile"
	mem "triviakit/adapters/memory"
	redisAdapter "triviakit/adapters/redis"
	sqlxAdapter "triviakit/adapters/sqlx"
	"triviakit/api/httpapi"
	"triviakit/catalog"
	"triviakit/config"
	"triviakit/engine"
	"triviakit/integrations/webhook"
	"triviakit/leaderboard"
	"triviakit/observability"
	"triviakit/trivia"
)

// Flags are the command-line inputs every command shares.
type Flags struct {
	ConfigPath string
	Port       string
	EnvFiles   []string
}

// App aggregates the assembled server components.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Tracing observability.ShutdownFunc
	Kit     *trivia.Kit
	Handler http.Handler
	Server  *http.Server
}

func provideConfig(flags Flags) (*config.Config, error) {
	if err := config.LoadDotEnv(flags.EnvFiles...); err != nil {
		return nil, err
	}
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return nil, err
	}
	if flags.Port != "" {
		host, _, err := net.SplitHostPort(cfg.Server.Address)
		if err != nil {
			host = ""
		}
		cfg.Server.Address = net.JoinHostPort(host, flags.Port)
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return observability.NewLogger(cfg.Logging, nil)
}

func provideTracing(ctx context.Context, cfg *config.Config, log *slog.Logger) (observability.ShutdownFunc, error) {
	return observability.SetupTracing(ctx, cfg.Tracing, string(cfg.Environment), nil, log)
}

// provideRedis returns nil when Redis is disabled.
func provideRedis(ctx context.Context, cfg *config.Config, log *slog.Logger) (*goredis.Client, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	client, err := redisAdapter.NewClient(ctx, cfg.Redis.ClientConfig())
	if err != nil {
		return nil, nil, err
	}
	log.Info("redis connected", slog.String("addr", cfg.Redis.Addr))
	return client, func() { _ = client.Close() }, nil
}

func provideCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if !cfg.Progression.SeedCatalog {
		return nil, nil
	}
	if cfg.Progression.CatalogPath != "" {
		return catalog.Load(cfg.Progression.CatalogPath)
	}
	return catalog.Default()
}

// provideStore opens the configured store and seeds the catalog into it
// before any cache wraps it.
func provideStore(ctx context.Context, cfg *config.Config, cat *catalog.Catalog, rdb *goredis.Client, log *slog.Logger) (engine.Store, func(), error) {
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	if cat != nil {
		w, ok := store.(engine.CatalogWriter)
		if !ok {
			closeStore()
			return nil, nil, fmt.Errorf("store %T cannot be seeded", store)
		}
		if err := catalog.Seed(ctx, w, cat); err != nil {
			closeStore()
			return nil, nil, fmt.Errorf("seed catalog: %w", err)
		}
		log.Info("catalog seeded",
			slog.Int("categories", len(cat.Categories)),
			slog.Int("questions", len(cat.Questions)),
			slog.Int("achievements", len(cat.Achievements)),
			slog.Int("belts", len(cat.Belts)))
	}
	if rdb != nil && cfg.Redis.CountCacheTTL > 0 {
		cache := redisAdapter.NewCountCache(store, rdb, cfg.Redis.KeyPrefix, cfg.Redis.CountCacheTTL)
		if err := cache.Invalidate(ctx); err != nil {
			log.Warn("count cache invalidation failed", slog.Any("error", err))
		}
		return cache, closeStore, nil
	}
	return store, closeStore, nil
}

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (engine.Store, func(), error) {
	switch cfg.Storage.Adapter {
	case "memory":
		return mem.New(), func() {}, nil
	case "file":
		s, err := jsonfile.New(cfg.Storage.File.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	case "sql":
		s, err := sqlxAdapter.Open(ctx, cfg.SQL.Driver, cfg.SQL.DSN, cfg.SQL.Options())
		if err != nil {
			return nil, nil, err
		}
		if cfg.SQL.AutoMigrate {
			if err := s.Migrate(ctx); err != nil {
				_ = s.Close()
				return nil, nil, err
			}
			log.Info("sql schema applied", slog.String("driver", cfg.SQL.Driver))
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}

func provideBoards(cfg *config.Config, rdb *goredis.Client) leaderboard.Boards {
	if cfg.Leaderboard.Backend == "redis" && rdb != nil {
		return redisAdapter.NewLeaderboard(rdb, cfg.Redis.KeyPrefix)
	}
	return leaderboard.NewMemory()
}

// provideWebhook returns nil when no endpoints are configured.
func provideWebhook(cfg *config.Config, log *slog.Logger) *webhook.Sink {
	if len(cfg.Webhooks.Endpoints) == 0 {
		return nil
	}
	return webhook.New(cfg.Webhooks.Endpoints,
		webhook.WithClient(&http.Client{Timeout: cfg.Webhooks.Timeout}),
		webhook.WithSecret(cfg.Webhooks.Secret),
		webhook.WithLogger(log),
	)
}

func provideKit(ctx context.Context, cfg *config.Config, log *slog.Logger, store engine.Store, boards leaderboard.Boards, sink *webhook.Sink) (*trivia.Kit, func(), error) {
	loc, err := cfg.Progression.Location()
	if err != nil {
		return nil, nil, err
	}
	mode := engine.DispatchAsync
	if cfg.Progression.Dispatch == "sync" {
		mode = engine.DispatchSync
	}
	opts := []trivia.Option{
		trivia.WithStore(store),
		trivia.WithLeaderboards(boards),
		trivia.WithDispatchMode(mode),
		trivia.WithWorkers(cfg.Progression.Workers),
		trivia.WithLocation(loc),
		trivia.WithLogger(log),
		trivia.WithServiceOptions(engine.WithSettings(cfg.Progression.Settings())),
	}
	if sink != nil {
		opts = append(opts, trivia.WithWebhook(sink, cfg.Webhooks.EventTypes()...))
	}
	kit, err := trivia.New(ctx, opts...)
	if err != nil {
		return nil, nil, err
	}
	return kit, kit.Close, nil
}

func provideHandler(cfg *config.Config, kit *trivia.Kit, log *slog.Logger) http.Handler {
	var secret []byte
	if cfg.Security.JWTSecret != "" {
		secret = []byte(cfg.Security.JWTSecret)
	}
	return httpapi.NewMux(kit, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		JWTSecret:        secret,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
		Logger:           log,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// shutdown stops accepting requests, drains the event bus and flushes spans.
func (a *App) shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := a.Server.Shutdown(ctx)
	if a.Tracing != nil {
		if terr := a.Tracing(ctx); terr != nil {
			a.Logger.Warn("tracer shutdown failed", slog.Any("error", terr))
		}
	}
	return err
}
