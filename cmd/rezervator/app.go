package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/erazemk/rezervator/internal/audit"
	"github.com/erazemk/rezervator/internal/catalog"
	"github.com/erazemk/rezervator/internal/config"
	"github.com/erazemk/rezervator/internal/db"
	"github.com/erazemk/rezervator/internal/engine"
	"github.com/erazemk/rezervator/internal/hosted"
	"github.com/erazemk/rezervator/internal/inventory"
	"github.com/erazemk/rezervator/internal/lock"
	"github.com/erazemk/rezervator/internal/logging"
	"github.com/erazemk/rezervator/internal/metrics"
	"github.com/erazemk/rezervator/internal/resilience"
	"github.com/erazemk/rezervator/internal/sheets"
	"github.com/erazemk/rezervator/internal/store"
)

// app holds everything a command needs, built from one Config.
type app struct {
	cfg      config.Config
	log      *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	backend  store.Backend
	recorder *audit.Recorder
	engine   *engine.Engine

	// jwtSecret is the configured secret, or the one stored in the SQLite
	// database when none is configured.
	jwtSecret string

	closers []func() error
}

// newApp loads the configuration and opens the backend. The caller must call
// close.
func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setting up logging: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &app{
		cfg:       cfg,
		log:       log,
		registry:  reg,
		metrics:   metrics.New(reg),
		jwtSecret: cfg.Server.JWTSecret,
	}
	a.closers = append(a.closers, func() error {
		_ = log.Sync()
		return nil
	})

	if err := a.open(ctx); err != nil {
		a.close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) open(ctx context.Context) error {
	var schemas catalog.Provider
	if a.cfg.Categories != "" {
		static, err := catalog.LoadFile(a.cfg.Categories)
		if err != nil {
			return err
		}
		schemas = static
		a.log.Info("categories loaded", zap.Strings("categories", static.Categories()))
	}

	locker, err := a.openLocker(ctx)
	if err != nil {
		return err
	}

	backend, err := a.openBackend(ctx, locker)
	if err != nil {
		return err
	}
	a.backend = backend

	a.recorder = audit.New(backend, audit.Options{
		QueueSize: a.cfg.Audit.QueueSize,
		Logger:    a.log,
		Metrics:   a.metrics,
	})

	repo := inventory.New(backend, inventory.Options{
		Schemas: schemas,
		Locker:  locker,
		Auditor: a.recorder,
		Logger:  a.log,
		Metrics: a.metrics,
	})
	a.engine = engine.New(repo, a.recorder)

	a.log.Info("backend ready", zap.String("backend", backend.Name()))
	return nil
}

func (a *app) openBackend(ctx context.Context, locker lock.Locker) (store.Backend, error) {
	switch a.cfg.Backend {
	case config.BackendSQLite:
		database, err := db.Open(a.cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, database.Close)
		if err := db.Migrate(database); err != nil {
			return nil, err
		}
		if a.jwtSecret == "" {
			secret, err := store.EnsureSecret(ctx, database, store.SettingJWTSecret)
			if err != nil {
				return nil, fmt.Errorf("loading token secret: %w", err)
			}
			a.jwtSecret = secret
		}
		return store.NewSQLite(database), nil

	case config.BackendPostgres:
		gdb, err := hosted.Open(a.cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if sqlDB, err := gdb.DB(); err == nil {
			a.closers = append(a.closers, sqlDB.Close)
		}
		return hosted.New(gdb), nil

	case config.BackendSheets:
		return a.openSheets(ctx, locker)
	}
	return nil, fmt.Errorf("unknown backend %q", a.cfg.Backend)
}

// openSheets shares locker with the store, which serializes its row writes
// under the same lock as the other processes.
func (a *app) openSheets(ctx context.Context, locker lock.Locker) (store.Backend, error) {
	sc := a.cfg.Sheets
	opts := resilience.Options{Logger: a.log, Metrics: a.metrics}

	var client sheets.Client
	if sc.Workbook != "" {
		wb, err := sheets.OpenWorkbook(sc.Workbook)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, wb.Close)
		client = wb
	} else {
		hc, err := sheets.NewHTTPClient(sc.BaseURL, sc.Token)
		if err != nil {
			return nil, err
		}
		client = sheets.NewResilient(hc,
			resilience.NewLimiter(sc.RateLimit.Calls, sc.RateLimit.Period, opts),
			resilience.NewRetrier(resilience.RetryConfig{
				MaxAttempts:  sc.Retry.MaxAttempts,
				InitialDelay: sc.Retry.InitialDelay,
				MaxJitter:    sc.Retry.MaxJitter,
			}, opts),
		)
	}

	s := sheets.New(client, sheets.Options{CacheTTL: sc.CacheTTL, Resilience: opts, Locker: locker})
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if a.cfg.Redis.Addr == "" {
		a.log.Warn("sheets backend without redis: capacity checks are only serialized within this process")
	}
	return s, nil
}

func (a *app) openLocker(ctx context.Context) (lock.Locker, error) {
	if a.cfg.Redis.Addr == "" {
		return lock.NewLocal(), nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
	})
	a.closers = append(a.closers, rdb.Close)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", a.cfg.Redis.Addr, err)
	}
	a.log.Info("using redis item locks", zap.String("addr", a.cfg.Redis.Addr))
	return lock.NewRedis(rdb, a.cfg.Redis.LockTTL, a.log), nil
}

// close drains the audit queue and releases the backend in reverse order of
// opening.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.recorder != nil {
		if err := a.recorder.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flushing audit log: %w", err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
