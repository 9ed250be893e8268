// Package trivia assembles a ready-to-use progression service together with
// its event bus, realtime hub, leaderboards and analytics hooks.
package trivia

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"triviakit/adapters/memory"
	"triviakit/analytics"
	"triviakit/catalog"
	"triviakit/core"
	"triviakit/engine"
	"triviakit/integrations/webhook"
	"triviakit/leaderboard"
	"triviakit/realtime"
)

// Option configures the builder.
type Option func(*config)

type config struct {
	store    engine.Store
	mode     engine.DispatchMode
	workers  int
	hub      *realtime.Hub
	boards   leaderboard.Boards
	catalog  *catalog.Catalog
	webhook  *webhook.Sink
	hookOn   []core.EventType
	loc      *time.Location
	logger   *slog.Logger
	svcOpts  []engine.Option
	backfill bool
}

// WithStore sets the persistence adapter.
func WithStore(s engine.Store) Option { return func(c *config) { c.store = s } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithWorkers sets the number of async dispatch workers.
func WithWorkers(n int) Option { return func(c *config) { c.workers = n } }

// WithRealtime wires a realtime hub to receive all engine events.
func WithRealtime(h *realtime.Hub) Option { return func(c *config) { c.hub = h } }

// WithLeaderboards replaces the in-memory boards.
func WithLeaderboards(b leaderboard.Boards) Option { return func(c *config) { c.boards = b } }

// WithCatalog seeds cat into the store. The store must implement engine.CatalogWriter.
func WithCatalog(cat *catalog.Catalog) Option { return func(c *config) { c.catalog = cat } }

// WithWebhook forwards the given event types (webhook.DefaultEvents when empty) to s.
func WithWebhook(s *webhook.Sink, types ...core.EventType) Option {
	return func(c *config) {
		c.webhook = s
		c.hookOn = types
	}
}

// WithLocation sets the timezone of calendar days and week keys.
func WithLocation(loc *time.Location) Option { return func(c *config) { c.loc = loc } }

func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

// WithServiceOptions passes extra options to the progression service.
func WithServiceOptions(opts ...engine.Option) Option {
	return func(c *config) { c.svcOpts = append(c.svcOpts, opts...) }
}

// WithoutBackfill skips seeding the global leaderboard from stored users.
func WithoutBackfill() Option { return func(c *config) { c.backfill = false } }

// Kit is the assembled runtime.
type Kit struct {
	Service *engine.ProgressionService
	Bus     *engine.EventBus
	Store   engine.Store
	Hub     *realtime.Hub
	Boards  leaderboard.Boards
	Metrics *analytics.Metrics
	DAU     *analytics.DAU

	loc     *time.Location
	updater *leaderboard.Updater
	detach  []func()
}

// New builds a Kit. If not provided, defaults are used:
//   - store: in-memory
//   - leaderboards: in-memory skip lists
//   - dispatch: async
//   - location: UTC
func New(ctx context.Context, opts ...Option) (*Kit, error) {
	cfg := &config{mode: engine.DispatchAsync, loc: time.UTC, backfill: true}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.store == nil {
		cfg.store = memory.New()
	}
	if cfg.boards == nil {
		cfg.boards = leaderboard.NewMemory()
	}
	if cfg.hub == nil {
		cfg.hub = realtime.NewHub()
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	if cfg.catalog != nil {
		w, ok := cfg.store.(engine.CatalogWriter)
		if !ok {
			return nil, fmt.Errorf("store %T cannot be seeded", cfg.store)
		}
		if err := catalog.Seed(ctx, w, cfg.catalog); err != nil {
			return nil, err
		}
	}

	busOpts := []engine.BusOption{engine.WithBusLogger(cfg.logger)}
	if cfg.workers > 0 {
		busOpts = append(busOpts, engine.WithWorkers(cfg.workers))
	}
	bus := engine.NewEventBus(cfg.mode, busOpts...)

	svcOpts := append([]engine.Option{
		engine.WithLocation(cfg.loc),
		engine.WithLogger(cfg.logger),
	}, cfg.svcOpts...)
	k := &Kit{
		Service: engine.NewProgressionService(cfg.store, bus, svcOpts...),
		Bus:     bus,
		Store:   cfg.store,
		Hub:     cfg.hub,
		Boards:  cfg.boards,
		Metrics: analytics.NewMetrics(),
		DAU:     analytics.NewDAU(),
		loc:     cfg.loc,
	}

	k.updater = leaderboard.NewUpdater(cfg.boards, bus, cfg.loc, cfg.logger)
	k.detach = append(k.detach,
		cfg.hub.Attach(bus),
		analytics.NewBridge(k.Metrics, k.DAU).Attach(bus),
	)
	if cfg.webhook != nil {
		k.detach = append(k.detach, cfg.webhook.Attach(bus, cfg.hookOn...))
	}

	if cfg.backfill {
		users, err := cfg.store.Users(ctx)
		if err == nil {
			err = k.updater.Backfill(ctx, users)
		}
		if err != nil {
			k.Close()
			return nil, fmt.Errorf("backfill leaderboard: %w", err)
		}
	}
	return k, nil
}

// Location is the timezone used for calendar days and week keys.
func (k *Kit) Location() *time.Location { return k.loc }

// Report snapshots the analytics counters.
func (k *Kit) Report(now time.Time) analytics.Report { return k.Metrics.Report(k.DAU, now) }

// Close drains the bus and then detaches every listener.
func (k *Kit) Close() {
	k.Bus.Close()
	for _, d := range k.detach {
		d()
	}
	k.detach = nil
	if k.updater != nil {
		k.updater.Close()
	}
}
