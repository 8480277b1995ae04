package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/rezervator/internal/model"
)

// inTempDir runs the test from an empty directory so no stray rezervator.yaml
// or .env is picked up.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestDefaults(t *testing.T) {
	inTempDir(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, "rezervator.sqlite3", cfg.SQLite.Path)
	assert.Equal(t, 50, cfg.Sheets.RateLimit.Calls)
	assert.Equal(t, time.Minute, cfg.Sheets.RateLimit.Period)
	assert.Equal(t, 5, cfg.Sheets.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Sheets.Retry.InitialDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Sheets.Retry.MaxJitter)
	assert.Equal(t, 30*time.Second, cfg.Sheets.CacheTTL)
	assert.Equal(t, 10*time.Second, cfg.Redis.LockTTL)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 256, cfg.Audit.QueueSize)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestFileAndEnvironment(t *testing.T) {
	dir := inTempDir(t)
	yaml := `
backend: postgres
postgres:
  host: db.internal
  dbname: rezervator
  sslmode: disable
sheets:
  cache_ttl: 45s
server:
  cors_origins:
    - https://app.example.com
log:
  level: debug
  environment: production
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rezervator.yaml"), []byte(yaml), 0o644))
	t.Setenv("REZERVATOR_POSTGRES_PORT", "6543")
	t.Setenv("REZERVATOR_SERVER_ADDR", ":9090")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendPostgres, cfg.Backend)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, "rezervator", cfg.Postgres.DBName)
	assert.Equal(t, "disable", cfg.Postgres.SSLMode)
	assert.Equal(t, 6543, cfg.Postgres.Port)
	assert.Equal(t, 45*time.Second, cfg.Sheets.CacheTTL)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "production", cfg.Log.Environment)
}

func TestDotEnv(t *testing.T) {
	dir := inTempDir(t)
	env := "REZERVATOR_BACKEND=sheets\nREZERVATOR_SHEETS_WORKBOOK=rezervator.xlsx\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("REZERVATOR_BACKEND")
		os.Unsetenv("REZERVATOR_SHEETS_WORKBOOK")
	})

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendSheets, cfg.Backend)
	assert.Equal(t, "rezervator.xlsx", cfg.Sheets.Workbook)
}

func TestExplicitFileMustExist(t *testing.T) {
	inTempDir(t)
	_, err := Load("missing.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	inTempDir(t)
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name string
		edit func(*Config)
		key  string
	}{
		{"unknown backend", func(c *Config) { c.Backend = "mongo" }, "backend"},
		{"postgres without host", func(c *Config) { c.Backend = BackendPostgres; c.Postgres.DBName = "x" }, "postgres.host"},
		{"sheets without url", func(c *Config) { c.Backend = BackendSheets }, "sheets.base_url"},
		{"sheets without token", func(c *Config) {
			c.Backend = BackendSheets
			c.Sheets.BaseURL = "https://sheets.example.com"
		}, "sheets.token"},
		{"zero rate limit", func(c *Config) {
			c.Backend = BackendSheets
			c.Sheets.Workbook = "book.xlsx"
			c.Sheets.RateLimit.Calls = 0
		}, "sheets.rate_limit"},
		{"too many retries", func(c *Config) {
			c.Backend = BackendSheets
			c.Sheets.Workbook = "book.xlsx"
			c.Sheets.Retry.MaxAttempts = 6
		}, "sheets.retry.max_attempts"},
		{"empty audit queue", func(c *Config) { c.Audit.QueueSize = 0 }, "audit.queue_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.edit(&cfg)
			err := cfg.Validate()
			var cerr *model.ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.key, cerr.Key)
			assert.Equal(t, model.RemedyCheckConfig, model.RemedyFor(err))
		})
	}
}
