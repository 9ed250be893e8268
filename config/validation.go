package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"triviakit/adapters/sqlx"
	"triviakit/core"
)

func oneOf(field, value string, allowed ...string) string {
	if slices.Contains(allowed, value) {
		return ""
	}
	return fmt.Sprintf("%s must be one of: %s", field, strings.Join(allowed, ", "))
}

func joinErrs(errs []string) error {
	var out []string
	for _, e := range errs {
		if e != "" {
			out = append(out, e)
		}
	}
	if len(out) > 0 {
		return errors.New(strings.Join(out, "; "))
	}
	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	var errs []string
	if s.Address == "" {
		errs = append(errs, "address cannot be empty")
	}
	for name, d := range map[string]time.Duration{
		"read_timeout":        s.ReadTimeout,
		"write_timeout":       s.WriteTimeout,
		"idle_timeout":        s.IdleTimeout,
		"read_header_timeout": s.ReadHeaderTimeout,
		"shutdown_timeout":    s.ShutdownTimeout,
	} {
		if d <= 0 {
			errs = append(errs, name+" must be positive")
		}
	}
	slices.Sort(errs)
	return joinErrs(errs)
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	errs := []string{oneOf("adapter", s.Adapter, "memory", "file", "sql")}
	if s.Adapter == "file" && s.File.Path == "" {
		errs = append(errs, "file config: path cannot be empty")
	}
	return joinErrs(errs)
}

// Validate validates sql configuration
func (s *SQLConfig) Validate() error {
	errs := []string{oneOf("driver", s.Driver, sqlx.DriverPostgres, sqlx.DriverMySQL, sqlx.DriverSQLite)}
	if s.DSN == "" {
		errs = append(errs, "dsn cannot be empty")
	}
	if s.MaxOpenConns < 0 || s.MaxIdleConns < 0 {
		errs = append(errs, "pool sizes cannot be negative")
	}
	return joinErrs(errs)
}

// Validate validates redis configuration
func (r *RedisConfig) Validate() error {
	var errs []string
	if r.Addr == "" {
		errs = append(errs, "addr cannot be empty")
	}
	if r.DB < 0 {
		errs = append(errs, "db cannot be negative")
	}
	if r.CountCacheTTL < 0 {
		errs = append(errs, "count_cache_ttl cannot be negative")
	}
	return joinErrs(errs)
}

// Validate validates progression tuning
func (p *ProgressionConfig) Validate() error {
	var errs []string
	if _, err := p.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("timezone %q: %v", p.Timezone, err))
	}
	if p.HintCost < 0 {
		errs = append(errs, "hint_cost cannot be negative")
	}
	if p.HintEliminates < 1 {
		errs = append(errs, "hint_eliminates must be at least 1")
	}
	if p.ChallengeSize < 1 {
		errs = append(errs, "challenge_size must be at least 1")
	}
	if p.ChallengeBonusXP < 0 {
		errs = append(errs, "challenge_bonus_xp cannot be negative")
	}
	if p.MaxRandomQuestions < 1 {
		errs = append(errs, "max_random_questions must be at least 1")
	}
	if p.DisplayLimit < 1 {
		errs = append(errs, "display_limit must be at least 1")
	}
	errs = append(errs, oneOf("dispatch", p.Dispatch, "async", "sync"))
	if p.Workers < 0 {
		errs = append(errs, "workers cannot be negative")
	}
	return joinErrs(errs)
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	return joinErrs([]string{
		oneOf("level", l.Level, "debug", "info", "warn", "error"),
		oneOf("format", l.Format, "json", "text"),
		oneOf("output", l.Output, "stdout", "stderr"),
	})
}

// Validate validates tracing configuration
func (t *TracingConfig) Validate() error {
	if !t.Enabled {
		return nil
	}
	errs := []string{oneOf("exporter", t.Exporter, "stdout", "otlp")}
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		errs = append(errs, "sample_ratio must be between 0 and 1")
	}
	if t.ServiceName == "" {
		errs = append(errs, "service_name cannot be empty")
	}
	return joinErrs(errs)
}

// Validate validates security settings.
func (s *SecurityConfig) Validate() error {
	var errs []string
	if s.EnableRateLimit {
		if s.RateLimit.RequestsPerMinute <= 0 {
			errs = append(errs, "rate_limit.requests_per_minute must be > 0 when rate limiting is enabled")
		}
		if s.RateLimit.BurstSize <= 0 {
			errs = append(errs, "rate_limit.burst_size must be > 0 when rate limiting is enabled")
		}
	}
	for i, key := range s.APIKeys {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, fmt.Sprintf("api_keys[%d] is empty", i))
		}
	}
	if s.JWTSecret != "" && len(s.JWTSecret) < 16 {
		errs = append(errs, "jwt_secret must be at least 16 bytes")
	}
	return joinErrs(errs)
}

// Validate validates webhook settings.
func (w *WebhookConfig) Validate() error {
	var errs []string
	for i, e := range w.Endpoints {
		u, err := url.Parse(e)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("endpoints[%d] is not an http(s) URL", i))
		}
	}
	for _, ev := range w.Events {
		if !slices.Contains(core.AllEventTypes, core.EventType(ev)) {
			errs = append(errs, fmt.Sprintf("unknown event type %q", ev))
		}
	}
	if len(w.Endpoints) > 0 && w.Timeout <= 0 {
		errs = append(errs, "timeout must be positive")
	}
	return joinErrs(errs)
}

// EventTypes converts Events for webhook.Sink.Attach.
func (w WebhookConfig) EventTypes() []core.EventType {
	out := make([]core.EventType, 0, len(w.Events))
	for _, e := range w.Events {
		out = append(out, core.EventType(e))
	}
	return out
}
