package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "memory", cfg.Storage.Adapter)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, int64(25), cfg.Progression.HintCost)
	assert.Equal(t, 10, cfg.Progression.ChallengeSize)
	assert.Equal(t, "memory", cfg.Leaderboard.Backend)
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := writeFile(t, "triviakit.yaml", `
environment: testing
server:
  address: ":9090"
  read_timeout: 3s
storage:
  adapter: sql
sql:
  driver: sqlite
  dsn: "file::memory:"
progression:
  timezone: America/New_York
  hint_cost: 40
`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, EnvTesting, cfg.Environment)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, 3*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.WriteTimeout, "unset fields keep defaults")
	assert.Equal(t, "sql", cfg.Storage.Adapter)
	assert.Equal(t, int64(40), cfg.Progression.Settings().HintCost)

	loc, err := cfg.Progression.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())
}

func TestLoadFromJSONFile(t *testing.T) {
	path := writeFile(t, "triviakit.json", `{"environment": "staging", "server": {"shutdown_timeout": "1m"}}`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, EnvStaging, cfg.Environment)
	assert.Equal(t, time.Minute, cfg.Server.ShutdownTimeout)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "bad.yaml", "server:\n  adress: \":1\"\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "triviakit.yml", "logging:\n  level: warn\n")
	t.Setenv("TRIVIAKIT_LOG_LEVEL", "debug")
	t.Setenv("TRIVIAKIT_SECURITY_API_KEYS", "a, b,")
	t.Setenv("TRIVIAKIT_LOG_ATTRIBUTES", "service=trivia,region=eu")
	t.Setenv("TRIVIAKIT_CHALLENGE_BONUS_XP", "500")
	t.Setenv("TRIVIAKIT_WEBHOOK_TIMEOUT", "5s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, []string{"a", "b"}, cfg.Security.APIKeys)
	assert.Equal(t, map[string]string{"service": "trivia", "region": "eu"}, cfg.Logging.Attributes)
	assert.Equal(t, int64(500), cfg.Progression.ChallengeBonusXP)
	assert.Equal(t, 5*time.Second, cfg.Webhooks.Timeout)
}

func TestEnvInvalidValue(t *testing.T) {
	t.Setenv("TRIVIAKIT_SERVER_READ_TIMEOUT", "soon")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRIVIAKIT_SERVER_READ_TIMEOUT")
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "TRIVIAKIT_TEST_DOTENV=from-file\n")
	t.Setenv("TRIVIAKIT_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("TRIVIAKIT_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("TRIVIAKIT_TEST_DOTENV"))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid config", func(*Config) {}, ""},
		{"invalid environment", func(c *Config) { c.Environment = "" }, "environment cannot be empty"},
		{"invalid server timeout", func(c *Config) { c.Server.ReadTimeout = 0 }, "read_timeout must be positive"},
		{"unknown adapter", func(c *Config) { c.Storage.Adapter = "mongo" }, "adapter must be one of"},
		{"sql without dsn", func(c *Config) { c.Storage.Adapter = "sql"; c.SQL.DSN = "" }, "dsn cannot be empty"},
		{"bad timezone", func(c *Config) { c.Progression.Timezone = "Mars/Olympus" }, "timezone"},
		{"redis board without redis", func(c *Config) { c.Leaderboard.Backend = "redis" }, "requires redis.enabled"},
		{"short jwt secret", func(c *Config) { c.Security.JWTSecret = "short" }, "jwt_secret"},
		{"bad webhook", func(c *Config) { c.Webhooks.Endpoints = []string{"ftp://x"} }, "endpoints[0]"},
		{"unknown webhook event", func(c *Config) { c.Webhooks.Events = []string{"points_added"} }, "unknown event type"},
		{"rate limit without rpm", func(c *Config) {
			c.Security.EnableRateLimit = true
			c.Security.RateLimit.RequestsPerMinute = 0
		}, "requests_per_minute"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "loud"
	cfg.Progression.ChallengeSize = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging config")
	assert.Contains(t, err.Error(), "progression config")
}

func TestProfiles(t *testing.T) {
	tests := []struct {
		name         string
		profileName  string
		expectConfig bool
		environment  Environment
	}{
		{"development", "development", true, EnvDevelopment},
		{"testing", "testing", true, EnvTesting},
		{"staging", "staging", true, EnvStaging},
		{"production", "production", true, EnvProduction},
		{"unknown", "unknown", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadProfile(tt.profileName)
			if tt.expectConfig {
				require.NoError(t, err)
				require.NotNil(t, cfg)
				assert.Equal(t, tt.environment, cfg.Environment)
			} else {
				assert.Error(t, err)
				assert.Nil(t, cfg)
			}
		})
	}
}

func TestProfileFromEnv(t *testing.T) {
	t.Setenv("TRIVIAKIT_PROFILE", "production")
	t.Setenv("TRIVIAKIT_SQL_DSN", "postgres://trivia:secret@db/trivia")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, EnvProduction, cfg.Environment)
	assert.Equal(t, "redis", cfg.Leaderboard.Backend)
	assert.False(t, cfg.Progression.SeedCatalog)
}

func TestStringRedactsSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SQL.DSN = "postgres://user:hunter2@db/trivia"
	cfg.Redis.Password = "redis-pass"
	cfg.Security.APIKeys = []string{"key-1"}
	cfg.Security.JWTSecret = "0123456789abcdef-secret"
	cfg.Webhooks.Secret = "hook-secret"

	out := cfg.String()
	for _, secret := range []string{"hunter2", "redis-pass", "key-1", "0123456789abcdef-secret", "hook-secret"} {
		assert.False(t, strings.Contains(out, secret), "leaked %q", secret)
	}
	assert.Equal(t, []string{"key-1"}, cfg.Security.APIKeys, "String must not mutate the config")
}

func TestValidateConfigPath(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "c.json")
	txtPath := filepath.Join(dir, "c.txt")
	require.NoError(t, os.WriteFile(jsonPath, []byte("{}"), 0o600))
	require.NoError(t, os.WriteFile(txtPath, []byte("{}"), 0o600))

	assert.NoError(t, validateConfigPath(jsonPath))
	assert.Error(t, validateConfigPath(""))
	assert.Error(t, validateConfigPath(txtPath))
	assert.Error(t, validateConfigPath(filepath.Join(dir, "missing.yaml")))
}
