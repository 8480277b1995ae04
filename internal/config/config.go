// Package config loads the service configuration from rezervator.yaml, an
// optional .env file and REZERVATOR_* environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/erazemk/rezervator/internal/hosted"
	"github.com/erazemk/rezervator/internal/logging"
	"github.com/erazemk/rezervator/internal/model"
	"github.com/erazemk/rezervator/internal/resilience"
)

// EnvPrefix prefixes environment overrides: sheets.cache_ttl is read from
// REZERVATOR_SHEETS_CACHE_TTL.
const EnvPrefix = "REZERVATOR"

// Backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendSheets   = "sheets"
)

// Config holds all configuration.
type Config struct {
	Backend    string         `mapstructure:"backend"`
	SQLite     SQLiteConfig   `mapstructure:"sqlite"`
	Postgres   hosted.Config  `mapstructure:"postgres"`
	Sheets     SheetsConfig   `mapstructure:"sheets"`
	Redis      RedisConfig    `mapstructure:"redis"`
	Categories string         `mapstructure:"categories"`
	Log        logging.Config `mapstructure:"log"`
	Server     ServerConfig   `mapstructure:"server"`
	Audit      AuditConfig    `mapstructure:"audit"`
}

// SQLiteConfig holds the local database settings.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// SheetsConfig holds the quota-limited sheet backend settings. Either Workbook
// or BaseURL with Token must be set.
type SheetsConfig struct {
	BaseURL   string          `mapstructure:"base_url"`
	Token     string          `mapstructure:"token"`
	Workbook  string          `mapstructure:"workbook"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Retry     RetryConfig     `mapstructure:"retry"`
	CacheTTL  time.Duration   `mapstructure:"cache_ttl"`
}

// RateLimitConfig allows Calls requests per Period.
type RateLimitConfig struct {
	Calls  int           `mapstructure:"calls"`
	Period time.Duration `mapstructure:"period"`
}

// RetryConfig controls retries of quota errors.
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxJitter    time.Duration `mapstructure:"max_jitter"`
}

// RedisConfig enables the cross-process item lock when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	JWTSecret   string   `mapstructure:"jwt_secret"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// AuditConfig sizes the audit queue.
type AuditConfig struct {
	QueueSize int `mapstructure:"queue_size"`
}

var defaults = map[string]any{
	"backend":                    BackendSQLite,
	"sqlite.path":                "rezervator.sqlite3",
	"postgres.host":              "",
	"postgres.port":              5432,
	"postgres.user":              "",
	"postgres.password":          "",
	"postgres.dbname":            "",
	"postgres.sslmode":           "require",
	"sheets.base_url":            "",
	"sheets.token":               "",
	"sheets.workbook":            "",
	"sheets.rate_limit.calls":    50,
	"sheets.rate_limit.period":   "60s",
	"sheets.retry.max_attempts":  5,
	"sheets.retry.initial_delay": "1s",
	"sheets.retry.max_jitter":    "500ms",
	"sheets.cache_ttl":           "30s",
	"redis.addr":                 "",
	"redis.password":             "",
	"redis.lock_ttl":             "10s",
	"categories":                 "",
	"log.level":                  "info",
	"log.environment":            "development",
	"server.addr":                ":8080",
	"server.jwt_secret":          "",
	"server.cors_origins":        []string{},
	"audit.queue_size":           256,
}

// Load reads the configuration. file names an explicit config file; when it is
// empty rezervator.yaml is looked up in the working directory and is optional.
// A .env file in the working directory, if present, is loaded into the
// environment first.
func Load(file string) (Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return Config{}, fmt.Errorf("loading .env: %w", err)
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("rezervator")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings of the selected backend and the limits that
// must be positive.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendSQLite:
		if strings.TrimSpace(c.SQLite.Path) == "" {
			return &model.ConfigError{Key: "sqlite.path", Hint: "set the database file path"}
		}
	case BackendPostgres:
		if _, err := c.Postgres.DSN(); err != nil {
			return err
		}
	case BackendSheets:
		if c.Sheets.Workbook == "" {
			if c.Sheets.BaseURL == "" {
				return &model.ConfigError{Key: "sheets.base_url", Hint: "set the sheet service URL or sheets.workbook"}
			}
			if c.Sheets.Token == "" {
				return &model.ConfigError{Key: "sheets.token", Hint: "set the sheet service access token"}
			}
		}
		if c.Sheets.RateLimit.Calls < 1 || c.Sheets.RateLimit.Period <= 0 {
			return &model.ConfigError{Key: "sheets.rate_limit", Hint: "calls and period must be positive"}
		}
		if c.Sheets.Retry.MaxAttempts < 1 || c.Sheets.Retry.MaxAttempts > resilience.MaxAttemptsCeiling {
			return &model.ConfigError{
				Key:  "sheets.retry.max_attempts",
				Hint: fmt.Sprintf("must be between 1 and %d", resilience.MaxAttemptsCeiling),
			}
		}
	default:
		return &model.ConfigError{
			Key:  "backend",
			Hint: fmt.Sprintf("%q is not one of %s, %s, %s", c.Backend, BackendSQLite, BackendPostgres, BackendSheets),
		}
	}
	if c.Audit.QueueSize < 1 {
		return &model.ConfigError{Key: "audit.queue_size", Hint: "must be at least 1"}
	}
	return nil
}
