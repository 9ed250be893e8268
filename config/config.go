package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"triviakit/adapters/redis"
	"triviakit/adapters/sqlx"
	"triviakit/engine"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

const redacted = "[REDACTED]"

// Config holds the complete application configuration
type Config struct {
	// Environment and profile settings
	Environment Environment `json:"environment" yaml:"environment" env:"TRIVIAKIT_ENV"`
	Profile     string      `json:"profile" yaml:"profile" env:"TRIVIAKIT_PROFILE"`

	Server      ServerConfig      `json:"server" yaml:"server"`
	Storage     StorageConfig     `json:"storage" yaml:"storage"`
	SQL         SQLConfig         `json:"sql" yaml:"sql"`
	Redis       RedisConfig       `json:"redis" yaml:"redis"`
	Leaderboard LeaderboardConfig `json:"leaderboard" yaml:"leaderboard"`
	Progression ProgressionConfig `json:"progression" yaml:"progression"`
	Logging     LoggingConfig     `json:"logging" yaml:"logging"`
	Tracing     TracingConfig     `json:"tracing" yaml:"tracing"`
	Security    SecurityConfig    `json:"security" yaml:"security"`
	Webhooks    WebhookConfig     `json:"webhooks" yaml:"webhooks"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address           string        `json:"address" yaml:"address" env:"TRIVIAKIT_SERVER_ADDR"`
	PathPrefix        string        `json:"path_prefix" yaml:"path_prefix" env:"TRIVIAKIT_SERVER_PATH_PREFIX"`
	CORSOrigin        string        `json:"cors_origin" yaml:"cors_origin" env:"TRIVIAKIT_SERVER_CORS_ORIGIN"`
	ReadTimeout       time.Duration `json:"read_timeout" yaml:"read_timeout" env:"TRIVIAKIT_SERVER_READ_TIMEOUT"`
	WriteTimeout      time.Duration `json:"write_timeout" yaml:"write_timeout" env:"TRIVIAKIT_SERVER_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `json:"idle_timeout" yaml:"idle_timeout" env:"TRIVIAKIT_SERVER_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" yaml:"read_header_timeout" env:"TRIVIAKIT_SERVER_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"TRIVIAKIT_SERVER_SHUTDOWN_TIMEOUT"`
}

// StorageConfig selects the progression store: memory, file or sql.
type StorageConfig struct {
	Adapter string     `json:"adapter" yaml:"adapter" env:"TRIVIAKIT_STORAGE_ADAPTER"`
	File    FileConfig `json:"file" yaml:"file"`
}

// FileConfig holds JSON file storage configuration
type FileConfig struct {
	Path string `json:"path" yaml:"path" env:"TRIVIAKIT_STORAGE_FILE_PATH"`
}

// SQLConfig configures the sql adapter.
type SQLConfig struct {
	Driver          string        `json:"driver" yaml:"driver" env:"TRIVIAKIT_SQL_DRIVER"`
	DSN             string        `json:"dsn" yaml:"dsn" env:"TRIVIAKIT_SQL_DSN"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns" env:"TRIVIAKIT_SQL_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns" env:"TRIVIAKIT_SQL_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime" env:"TRIVIAKIT_SQL_CONN_MAX_LIFETIME"`
	// AutoMigrate applies the embedded schema on startup.
	AutoMigrate bool `json:"auto_migrate" yaml:"auto_migrate" env:"TRIVIAKIT_SQL_AUTO_MIGRATE"`
}

// Options converts the pool settings for sqlx.Open.
func (s SQLConfig) Options() sqlx.Options {
	return sqlx.Options{MaxOpenConns: s.MaxOpenConns, MaxIdleConns: s.MaxIdleConns, ConnMaxLifetime: s.ConnMaxLifetime}
}

// RedisConfig configures the shared Redis client used by leaderboards and the
// catalog count cache.
type RedisConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled" env:"TRIVIAKIT_REDIS_ENABLED"`
	Addr      string `json:"addr" yaml:"addr" env:"TRIVIAKIT_REDIS_ADDR"`
	Password  string `json:"password,omitempty" yaml:"password,omitempty" env:"TRIVIAKIT_REDIS_PASSWORD"`
	DB        int    `json:"db" yaml:"db" env:"TRIVIAKIT_REDIS_DB"`
	PoolSize  int    `json:"pool_size" yaml:"pool_size" env:"TRIVIAKIT_REDIS_POOL_SIZE"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix" env:"TRIVIAKIT_REDIS_KEY_PREFIX"`
	// CountCacheTTL caches active question counts; zero disables the cache.
	CountCacheTTL time.Duration `json:"count_cache_ttl" yaml:"count_cache_ttl" env:"TRIVIAKIT_REDIS_COUNT_CACHE_TTL"`
}

// ClientConfig converts to the adapter's connection settings.
func (r RedisConfig) ClientConfig() redis.Config {
	c := redis.DefaultConfig()
	c.Addr = r.Addr
	c.Password = r.Password
	c.DB = r.DB
	if r.PoolSize > 0 {
		c.PoolSize = r.PoolSize
	}
	if r.KeyPrefix != "" {
		c.KeyPrefix = r.KeyPrefix
	}
	return c
}

// LeaderboardConfig picks where boards live: memory or redis.
type LeaderboardConfig struct {
	Backend string `json:"backend" yaml:"backend" env:"TRIVIAKIT_LEADERBOARD_BACKEND"`
}

// ProgressionConfig tunes the rules engine.
type ProgressionConfig struct {
	// Timezone is an IANA name defining calendar days for streaks and challenges.
	Timezone           string `json:"timezone" yaml:"timezone" env:"TRIVIAKIT_TIMEZONE"`
	HintCost           int64  `json:"hint_cost" yaml:"hint_cost" env:"TRIVIAKIT_HINT_COST"`
	HintEliminates     int    `json:"hint_eliminates" yaml:"hint_eliminates" env:"TRIVIAKIT_HINT_ELIMINATES"`
	ChallengeSize      int    `json:"challenge_size" yaml:"challenge_size" env:"TRIVIAKIT_CHALLENGE_SIZE"`
	ChallengeBonusXP   int64  `json:"challenge_bonus_xp" yaml:"challenge_bonus_xp" env:"TRIVIAKIT_CHALLENGE_BONUS_XP"`
	MaxRandomQuestions int    `json:"max_random_questions" yaml:"max_random_questions" env:"TRIVIAKIT_MAX_RANDOM_QUESTIONS"`
	DisplayLimit       int    `json:"display_limit" yaml:"display_limit" env:"TRIVIAKIT_DISPLAY_LIMIT"`
	// CatalogPath is a YAML or JSON catalog seeded on startup. Empty seeds the built-in catalog.
	CatalogPath string `json:"catalog_path" yaml:"catalog_path" env:"TRIVIAKIT_CATALOG_PATH"`
	SeedCatalog bool   `json:"seed_catalog" yaml:"seed_catalog" env:"TRIVIAKIT_SEED_CATALOG"`
	// Dispatch is "async" or "sync".
	Dispatch string `json:"dispatch" yaml:"dispatch" env:"TRIVIAKIT_DISPATCH"`
	Workers  int    `json:"workers" yaml:"workers" env:"TRIVIAKIT_DISPATCH_WORKERS"`
}

// Location resolves Timezone.
func (p ProgressionConfig) Location() (*time.Location, error) {
	if p.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(p.Timezone)
}

// Settings converts the tuning knobs for the engine.
func (p ProgressionConfig) Settings() engine.Settings {
	return engine.Settings{
		HintCost:          p.HintCost,
		HintEliminates:    p.HintEliminates,
		ChallengeSize:     p.ChallengeSize,
		ChallengeBonusXP:  p.ChallengeBonusXP,
		MaxRandomQuestion: p.MaxRandomQuestions,
		DisplayLimit:      p.DisplayLimit,
	}
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string            `json:"level" yaml:"level" env:"TRIVIAKIT_LOG_LEVEL"`
	Format     string            `json:"format" yaml:"format" env:"TRIVIAKIT_LOG_FORMAT"`
	Output     string            `json:"output" yaml:"output" env:"TRIVIAKIT_LOG_OUTPUT"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty" env:"TRIVIAKIT_LOG_ATTRIBUTES"`
}

// TracingConfig controls OpenTelemetry export.
type TracingConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" env:"TRIVIAKIT_TRACING_ENABLED"`
	// Exporter is "stdout" or "otlp".
	Exporter    string  `json:"exporter" yaml:"exporter" env:"TRIVIAKIT_TRACING_EXPORTER"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint" env:"TRIVIAKIT_TRACING_ENDPOINT"`
	Insecure    bool    `json:"insecure" yaml:"insecure" env:"TRIVIAKIT_TRACING_INSECURE"`
	ServiceName string  `json:"service_name" yaml:"service_name" env:"TRIVIAKIT_TRACING_SERVICE_NAME"`
	SampleRatio float64 `json:"sample_ratio" yaml:"sample_ratio" env:"TRIVIAKIT_TRACING_SAMPLE_RATIO"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRateLimit bool            `json:"enable_rate_limit" yaml:"enable_rate_limit" env:"TRIVIAKIT_SECURITY_RATE_LIMIT_ENABLED"`
	RateLimit       RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	APIKeys         []string        `json:"api_keys,omitempty" yaml:"api_keys,omitempty" env:"TRIVIAKIT_SECURITY_API_KEYS"`
	JWTSecret       string          `json:"jwt_secret,omitempty" yaml:"jwt_secret,omitempty" env:"TRIVIAKIT_SECURITY_JWT_SECRET"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute" env:"TRIVIAKIT_SECURITY_RATE_LIMIT_RPM"`
	BurstSize         int `json:"burst_size" yaml:"burst_size" env:"TRIVIAKIT_SECURITY_RATE_LIMIT_BURST"`
}

// WebhookConfig lists endpoints notified of unlocks and level-ups.
type WebhookConfig struct {
	Endpoints []string      `json:"endpoints,omitempty" yaml:"endpoints,omitempty" env:"TRIVIAKIT_WEBHOOK_ENDPOINTS"`
	Secret    string        `json:"secret,omitempty" yaml:"secret,omitempty" env:"TRIVIAKIT_WEBHOOK_SECRET"`
	Events    []string      `json:"events,omitempty" yaml:"events,omitempty" env:"TRIVIAKIT_WEBHOOK_EVENTS"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout" env:"TRIVIAKIT_WEBHOOK_TIMEOUT"`
}

// Load builds the configuration: defaults (or the profile named by
// TRIVIAKIT_PROFILE), then the optional file at path, then environment
// variables. The result is validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if name := os.Getenv("TRIVIAKIT_PROFILE"); name != "" {
		p, err := LoadProfile(name)
		if err != nil {
			return nil, err
		}
		cfg = p
	}
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads defaults overlaid by the file at path and the environment.
func LoadFromFile(path string) (*Config, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}
	return Load(path)
}

// validateConfigPath validates that the config file path is safe
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("config file path cannot be empty")
	}
	cleanPath := filepath.Clean(path)
	switch strings.ToLower(filepath.Ext(cleanPath)) {
	case ".json", ".yaml", ".yml":
	default:
		return errors.New("config file must have .json, .yaml or .yml extension")
	}
	if _, err := os.Stat(cleanPath); err != nil {
		return fmt.Errorf("config file not accessible: %w", err)
	}
	return nil
}

// decodeFile overlays the file onto cfg. JSON is a subset of YAML, so both
// go through the YAML decoder, which also accepts durations like "10s".
func decodeFile(path string, cfg *Config) error {
	if err := validateConfigPath(path); err != nil {
		return fmt.Errorf("invalid config file path: %w", err)
	}
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// DefaultConfig returns a configuration with sensible defaults for development
func DefaultConfig() *Config {
	st := engine.DefaultSettings()
	return &Config{
		Environment: EnvDevelopment,
		Profile:     "default",
		Server: ServerConfig{
			Address:           ":8080",
			PathPrefix:        "/api",
			CORSOrigin:        "*",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Storage: StorageConfig{
			Adapter: "memory",
			File:    FileConfig{Path: "./data/triviakit.json"},
		},
		SQL: SQLConfig{
			Driver:          sqlx.DriverSQLite,
			DSN:             "file:./data/triviakit.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			AutoMigrate:     true,
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			PoolSize:      10,
			KeyPrefix:     "triviakit",
			CountCacheTTL: time.Minute,
		},
		Leaderboard: LeaderboardConfig{Backend: "memory"},
		Progression: ProgressionConfig{
			Timezone:           "UTC",
			HintCost:           st.HintCost,
			HintEliminates:     st.HintEliminates,
			ChallengeSize:      st.ChallengeSize,
			ChallengeBonusXP:   st.ChallengeBonusXP,
			MaxRandomQuestions: st.MaxRandomQuestion,
			DisplayLimit:       st.DisplayLimit,
			SeedCatalog:        true,
			Dispatch:           "async",
			Workers:            4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			ServiceName: "triviakit",
			SampleRatio: 1,
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				BurstSize:         10,
			},
			APIKeys: []string{},
		},
		Webhooks: WebhookConfig{Timeout: 2 * time.Second},
	}
}

// Validate validates the configuration and returns detailed error messages
func (c *Config) Validate() error {
	var errs []string

	if c.Environment == "" {
		errs = append(errs, "environment cannot be empty")
	}
	sections := []struct {
		name string
		v    interface{ Validate() error }
	}{
		{"server", &c.Server},
		{"storage", &c.Storage},
		{"logging", &c.Logging},
		{"progression", &c.Progression},
		{"tracing", &c.Tracing},
		{"security", &c.Security},
		{"webhooks", &c.Webhooks},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("%s config: %v", s.name, err))
		}
	}
	if c.Storage.Adapter == "sql" {
		if err := c.SQL.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("sql config: %v", err))
		}
	}
	if c.Redis.Enabled {
		if err := c.Redis.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("redis config: %v", err))
		}
	}
	switch c.Leaderboard.Backend {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			errs = append(errs, "leaderboard config: backend redis requires redis.enabled")
		}
	default:
		errs = append(errs, "leaderboard config: backend must be one of: memory, redis")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// String returns a JSON representation of the config (with secrets redacted)
func (c *Config) String() string {
	cfg := *c
	if cfg.SQL.DSN != "" {
		cfg.SQL.DSN = redacted
	}
	if cfg.Redis.Password != "" {
		cfg.Redis.Password = redacted
	}
	if cfg.Security.JWTSecret != "" {
		cfg.Security.JWTSecret = redacted
	}
	if cfg.Webhooks.Secret != "" {
		cfg.Webhooks.Secret = redacted
	}
	if len(cfg.Security.APIKeys) > 0 {
		keys := make([]string, len(cfg.Security.APIKeys))
		for i := range keys {
			keys[i] = redacted
		}
		cfg.Security.APIKeys = keys
	}
	data, _ := json.MarshalIndent(cfg, "", "  ")
	return string(data)
}
