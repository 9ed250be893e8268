package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sqlxAdapter "triviakit/adapters/sqlx"
	"triviakit/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCatalogValidateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
categories:
  - {id: cat-nxt, slug: nxt, name: NXT}
questions:
  - id: nxt-1
    category: nxt
    text: Who won the first NXT Championship?
    difficulty: easy
    options: [Seth Rollins, Big E]
    correct_answer: Seth Rollins
`), 0o600))

	out, err := execute(t, "catalog", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "1 categories, 1 questions, 0 achievements, 0 belts")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("questions:\n  - {id: q, category: nope, text: x, difficulty: easy, options: [a, b], correct_answer: a}\n"), 0o600))
	_, err = execute(t, "catalog", "validate", bad)
	require.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("TRIVIAKIT_SECURITY_JWT_SECRET", "0123456789abcdef0123")
	out, err := execute(t, "token", "alice", "--ttl", "1h")
	require.NoError(t, err)
	assert.Equal(t, 3, len(strings.Split(strings.TrimSpace(out), ".")))
}

func TestTokenCommandRequiresSecret(t *testing.T) {
	_, err := execute(t, "token", "alice")
	require.Error(t, err)
}

func TestMigrateSQLite(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "trivia.db")
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)

	cfg := config.SQLConfig{Driver: sqlxAdapter.DriverSQLite, DSN: dsn}
	require.NoError(t, runMigrations(context.Background(), cfg, false, cmd))
	assert.Contains(t, out.String(), "schema applied (sqlite)")

	require.Error(t, runMigrations(context.Background(), cfg, true, cmd))
	require.Error(t, runMigrations(context.Background(), config.SQLConfig{Driver: "sqlite"}, false, cmd))
}

func TestProvideConfigPortOverride(t *testing.T) {
	cfg, err := provideConfig(Flags{Port: "9999", EnvFiles: []string{filepath.Join(t.TempDir(), "none.env")}})
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Address)
}

func TestBuildAppServesAPI(t *testing.T) {
	t.Setenv("TRIVIAKIT_PROFILE", "testing")
	app, cleanup, err := BuildApp(context.Background(), Flags{EnvFiles: []string{filepath.Join(t.TempDir(), "none.env")}})
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, config.EnvTesting, app.Config.Environment)
	srv := httptest.NewServer(app.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/categories")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBuildAppFileStore(t *testing.T) {
	t.Setenv("TRIVIAKIT_PROFILE", "testing")
	t.Setenv("TRIVIAKIT_STORAGE_ADAPTER", "file")
	t.Setenv("TRIVIAKIT_STORAGE_FILE_PATH", filepath.Join(t.TempDir(), "trivia.json"))
	app, cleanup, err := BuildApp(context.Background(), Flags{EnvFiles: []string{filepath.Join(t.TempDir(), "none.env")}})
	require.NoError(t, err)
	defer cleanup()

	users, err := app.Kit.Store.Users(context.Background())
	require.NoError(t, err)
	assert.Empty(t, users)
}
