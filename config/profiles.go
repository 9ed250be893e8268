package config

import (
	"fmt"
	"time"
)

// LoadProfile returns the defaults tuned for a named deployment environment.
func LoadProfile(name string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Profile = name
	switch Environment(name) {
	case EnvDevelopment:
		cfg.Environment = EnvDevelopment
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "text"
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = "stdout"
	case EnvTesting:
		cfg.Environment = EnvTesting
		cfg.Server.Address = "127.0.0.1:0"
		cfg.Storage.Adapter = "memory"
		cfg.Progression.Dispatch = "sync"
		cfg.Logging.Level = "warn"
	case EnvStaging:
		cfg.Environment = EnvStaging
		cfg.Storage.Adapter = "sql"
		cfg.SQL.Driver = "postgres"
		cfg.SQL.DSN = ""
		cfg.Redis.Enabled = true
		cfg.Leaderboard.Backend = "redis"
		cfg.Security.EnableRateLimit = true
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = "otlp"
		cfg.Tracing.SampleRatio = 0.5
	case EnvProduction:
		cfg.Environment = EnvProduction
		cfg.Server.CORSOrigin = ""
		cfg.Server.ShutdownTimeout = 45 * time.Second
		cfg.Storage.Adapter = "sql"
		cfg.SQL.Driver = "postgres"
		cfg.SQL.DSN = ""
		cfg.SQL.AutoMigrate = false
		cfg.SQL.MaxOpenConns = 50
		cfg.Redis.Enabled = true
		cfg.Leaderboard.Backend = "redis"
		cfg.Progression.SeedCatalog = false
		cfg.Security.EnableRateLimit = true
		cfg.Security.RateLimit = RateLimitConfig{RequestsPerMinute: 120, BurstSize: 20}
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = "otlp"
		cfg.Tracing.SampleRatio = 0.1
	default:
		return nil, fmt.Errorf("unknown profile %q", name)
	}
	return cfg, nil
}
