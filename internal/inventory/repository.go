// Package inventory applies the business rules of items and commitments on top
// of any store.Backend: validation, duplicate detection, the capacity check,
// compensation of partial writes and audit hooks.
package inventory

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/erazemk/rezervator/internal/audit"
	"github.com/erazemk/rezervator/internal/catalog"
	"github.com/erazemk/rezervator/internal/dates"
	"github.com/erazemk/rezervator/internal/lock"
	"github.com/erazemk/rezervator/internal/metrics"
	"github.com/erazemk/rezervator/internal/model"
	"github.com/erazemk/rezervator/internal/store"
)

// Auditor receives a record of every successful mutation. *audit.Recorder
// satisfies it.
type Auditor interface {
	Record(action model.AuditAction, table, entityID string, before, after any, actor string)
}

// Options configures a Repository. Zero values get defaults.
type Options struct {
	// Schemas provides category attribute schemas. Nil means no category has one.
	Schemas catalog.Provider
	// Locker serializes mutations per item. Defaults to an in-process lock.
	Locker  lock.Locker
	Auditor Auditor
	Clock   dates.Clock
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Repository is the single place where items and commitments are mutated.
type Repository struct {
	backend store.Backend
	schemas catalog.Provider
	locker  lock.Locker
	auditor Auditor
	clock   dates.Clock
	log     *zap.Logger
	metrics *metrics.Metrics
}

// New returns a Repository over backend.
func New(backend store.Backend, opts Options) *Repository {
	if opts.Locker == nil {
		opts.Locker = lock.NewLocal()
	}
	if opts.Auditor == nil {
		opts.Auditor = nopAuditor{}
	}
	if opts.Clock == nil {
		opts.Clock = dates.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Repository{
		backend: backend,
		schemas: opts.Schemas,
		locker:  opts.Locker,
		auditor: opts.Auditor,
		clock:   opts.Clock,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}
}

type nopAuditor struct{}

func (nopAuditor) Record(model.AuditAction, string, string, any, any, string) {}

// Backend returns the storage the repository writes to.
func (r *Repository) Backend() store.Backend { return r.backend }

// Lock keys. The catalog key guards name and uniqueness-key checks across
// items; item keys guard the capacity of one item.
const catalogKey = "catalog"

func itemKey(id string) string { return "item:" + id }

// lockItems locks the given items in a fixed order so that two callers locking
// the same pair cannot deadlock.
func (r *Repository) lockItems(ctx context.Context, ids ...string) (func(), error) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, itemKey(id))
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)
	return r.lockKeys(ctx, keys...)
}

func (r *Repository) lockKeys(ctx context.Context, keys ...string) (func(), error) {
	var unlocks []func()
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, key := range keys {
		unlock, err := r.locker.Lock(ctx, key)
		if err != nil {
			release()
			return nil, fmt.Errorf("locking %s: %w", key, err)
		}
		unlocks = append(unlocks, unlock)
	}
	// Another process may have written under these locks since our cache
	// was filled; check-then-act must see its writes.
	if c, ok := r.backend.(store.Cached); ok {
		c.InvalidateCache()
	}
	return release, nil
}

func (r *Repository) schema(category string) (catalog.Schema, bool) {
	if r.schemas == nil {
		return catalog.Schema{}, false
	}
	return r.schemas.Schema(category)
}

func (r *Repository) today() dates.Date { return dates.Today(r.clock) }

func (r *Repository) record(ctx context.Context, action model.AuditAction, table, id string, before, after any) {
	r.auditor.Record(action, table, id, before, after, audit.ActorFrom(ctx))
}
