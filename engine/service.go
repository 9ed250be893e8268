package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"triviakit/core"
)

// Settings holds the tunable numbers of the progression rules.
type Settings struct {
	HintCost          int64
	HintEliminates    int
	ChallengeSize     int
	ChallengeBonusXP  int64
	MaxRandomQuestion int
	DisplayLimit      int
}

// DefaultSettings returns the stock tuning.
func DefaultSettings() Settings {
	return Settings{
		HintCost:          25,
		HintEliminates:    2,
		ChallengeSize:     10,
		ChallengeBonusXP:  250,
		MaxRandomQuestion: 20,
		DisplayLimit:      3,
	}
}

// Option customises a ProgressionService.
type Option func(*ProgressionService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *ProgressionService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the timezone that defines calendar days for streaks and challenges.
func WithLocation(loc *time.Location) Option {
	return func(s *ProgressionService) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *ProgressionService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithSettings(st Settings) Option {
	return func(s *ProgressionService) { s.settings = st }
}

// WithRand makes shuffles deterministic. r is wrapped so that concurrent
// requests can share it.
func WithRand(r *rand.Rand) Option {
	return func(s *ProgressionService) {
		if r != nil {
			s.rng = rand.New(&lockedSource{src: r})
		}
	}
}

// lockedSource serialises access to a *rand.Rand.
type lockedSource struct {
	mu  sync.Mutex
	src *rand.Rand
}

func (l *lockedSource) Uint64() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Uint64()
}

func WithTracer(t trace.Tracer) Option {
	return func(s *ProgressionService) {
		if t != nil {
			s.tracer = t
		}
	}
}

// ProgressionService applies the progression rules on top of a Store and
// publishes the resulting events on a bus.
type ProgressionService struct {
	store    Store
	bus      *EventBus
	settings Settings
	now      func() time.Time
	loc      *time.Location
	logger   *slog.Logger
	tracer   trace.Tracer
	rng      *rand.Rand
}

func NewProgressionService(store Store, bus *EventBus, opts ...Option) *ProgressionService {
	if store == nil || bus == nil {
		panic("NewProgressionService requires non-nil store and bus")
	}
	s := &ProgressionService{
		store:    store,
		bus:      bus,
		settings: DefaultSettings(),
		now:      time.Now,
		loc:      time.UTC,
		logger:   slog.Default(),
		tracer:   otel.Tracer("triviakit/engine"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe convenience method.
func (s *ProgressionService) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	return s.bus.Subscribe(typ, handler)
}

func (s *ProgressionService) Bus() *EventBus { return s.bus }

func (s *ProgressionService) Store() Store { return s.store }

// Location is the timezone defining calendar days.
func (s *ProgressionService) Location() *time.Location { return s.loc }

func (s *ProgressionService) Close() { s.bus.Close() }

func (s *ProgressionService) publish(ctx context.Context, evs []core.Event) {
	for _, ev := range evs {
		s.bus.Publish(ctx, ev)
	}
}

func (s *ProgressionService) clock() time.Time { return s.now().UTC() }

func newID() string { return uuid.NewString() }

func (s *ProgressionService) startSpan(ctx context.Context, name string, user core.UserID) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("user_id", string(user))))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CreateUser registers a user with level 1 and no XP. Registering twice is harmless.
func (s *ProgressionService) CreateUser(ctx context.Context, user core.UserID) (core.UserProgress, error) {
	id, err := core.NormalizeUserID(user)
	if err != nil {
		return core.UserProgress{}, err
	}
	return s.store.CreateUser(ctx, id, s.clock())
}

// ProgressView is the read model behind the profile screen.
type ProgressView struct {
	Progress     core.UserProgress        `json:"progress"`
	Level        core.LevelProgress       `json:"level"`
	Categories   []core.CategoryProgress  `json:"categories"`
	Achievements []core.AchievementUnlock `json:"achievements"`
	Belts        []core.BeltUnlock        `json:"belts"`
}

// Progress returns a user's current progression.
func (s *ProgressionService) Progress(ctx context.Context, user core.UserID) (ProgressView, error) {
	id, err := core.NormalizeUserID(user)
	if err != nil {
		return ProgressView{}, err
	}
	var v ProgressView
	err = s.store.WithUser(ctx, id, func(tx UserTx) error {
		var err error
		if v.Progress, err = tx.Progress(ctx); err != nil {
			return err
		}
		if v.Categories, err = tx.CategoryProgressList(ctx); err != nil {
			return err
		}
		if v.Achievements, err = tx.AchievementUnlocks(ctx); err != nil {
			return err
		}
		v.Belts, err = tx.BeltUnlocks(ctx)
		return err
	})
	if err != nil {
		return ProgressView{}, fmt.Errorf("progress %s: %w", id, err)
	}
	v.Level = core.ProgressForXP(v.Progress.TotalXP)
	return v, nil
}
