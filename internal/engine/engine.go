// Package engine is the entry point callers use: item and commitment
// management plus availability queries, composed from the inventory
// repository, the availability calculator and the audit history.
package engine

import (
	"context"
	"fmt"

	"github.com/erazemk/rezervator/internal/availability"
	"github.com/erazemk/rezervator/internal/dates"
	"github.com/erazemk/rezervator/internal/inventory"
	"github.com/erazemk/rezervator/internal/model"
)

// History reads the audit trail. *audit.Recorder satisfies it.
type History interface {
	History(ctx context.Context, table, entityID string) ([]model.AuditEntry, error)
}

// Engine is safe for concurrent use.
type Engine struct {
	repo    *inventory.Repository
	history History
}

// New returns an Engine over repo. history may be nil, in which case History
// returns an empty trail.
func New(repo *inventory.Repository, history History) *Engine {
	return &Engine{repo: repo, history: history}
}

func (e *Engine) CreateItem(ctx context.Context, spec model.ItemSpec) (model.Item, error) {
	return e.repo.CreateItem(ctx, spec)
}

func (e *Engine) UpdateItem(ctx context.Context, id string, spec model.ItemSpec) (model.Item, error) {
	return e.repo.UpdateItem(ctx, id, spec)
}

func (e *Engine) DeleteItem(ctx context.Context, id string) error {
	return e.repo.DeleteItem(ctx, id)
}

// ListItems returns all items, or only those of category when it is not empty.
func (e *Engine) ListItems(ctx context.Context, category string) ([]model.Item, error) {
	return e.repo.ListItems(ctx, category)
}

func (e *Engine) GetItem(ctx context.Context, id string) (model.Item, error) {
	return e.repo.GetItem(ctx, id)
}

func (e *Engine) CreateCommitment(ctx context.Context, spec model.CommitmentSpec) (model.Commitment, error) {
	return e.repo.CreateCommitment(ctx, spec)
}

func (e *Engine) UpdateCommitment(ctx context.Context, id string, spec model.CommitmentSpec) (model.Commitment, error) {
	return e.repo.UpdateCommitment(ctx, id, spec)
}

func (e *Engine) DeleteCommitment(ctx context.Context, id string) error {
	return e.repo.DeleteCommitment(ctx, id)
}

func (e *Engine) ListCommitments(ctx context.Context, f inventory.CommitmentFilter) ([]model.Commitment, error) {
	return e.repo.ListCommitments(ctx, f)
}

func (e *Engine) GetCommitment(ctx context.Context, id string) (model.Commitment, error) {
	return e.repo.GetCommitment(ctx, id)
}

// CheckAvailability reports how much of an item is committed and free on day,
// optionally counting only commitments at one location.
func (e *Engine) CheckAvailability(ctx context.Context, itemID string, day dates.Date, filter *model.Location) (availability.Point, error) {
	item, err := e.repo.GetItem(ctx, itemID)
	if err != nil {
		return availability.Point{}, err
	}
	commitments, err := e.repo.ListCommitments(ctx, inventory.CommitmentFilter{ItemID: itemID, ActiveOn: day})
	if err != nil {
		return availability.Point{}, err
	}
	return availability.PointInTime([]model.Item{item}, itemID, commitments, day, normalizeFilter(filter))
}

// CheckAvailabilityOverPeriod reports the busiest day of an item over
// [start, end]. excludeID leaves one commitment out, for re-validating an edit.
func (e *Engine) CheckAvailabilityOverPeriod(ctx context.Context, itemID string, start, end dates.Date, excludeID string) (availability.Peak, error) {
	if start.IsZero() || end.IsZero() {
		return availability.Peak{}, model.Invalid("period", "start and end are required")
	}
	item, err := e.repo.GetItem(ctx, itemID)
	if err != nil {
		return availability.Peak{}, err
	}
	commitments, err := e.repo.ListCommitments(ctx, inventory.CommitmentFilter{ItemID: itemID})
	if err != nil {
		return availability.Peak{}, err
	}
	return availability.PeriodPeak([]model.Item{item}, itemID, commitments, start, end, excludeID)
}

// CheckAvailabilityAllItems reports every item on day from a single listing of
// items and commitments.
func (e *Engine) CheckAvailabilityAllItems(ctx context.Context, day dates.Date, filter *model.Location) ([]availability.Point, error) {
	items, err := e.repo.ListItems(ctx, "")
	if err != nil {
		return nil, err
	}
	commitments, err := e.repo.ListCommitments(ctx, inventory.CommitmentFilter{ActiveOn: day})
	if err != nil {
		return nil, err
	}
	return availability.Snapshot(items, commitments, day, normalizeFilter(filter)), nil
}

// History returns the audit trail of one item or commitment, most recent first.
func (e *Engine) History(ctx context.Context, table, id string) ([]model.AuditEntry, error) {
	if table != model.TableItems && table != model.TableCommitments {
		return nil, model.Invalid("table", "must be %s or %s", model.TableItems, model.TableCommitments)
	}
	if e.history == nil {
		return []model.AuditEntry{}, nil
	}
	entries, err := e.history.History(ctx, table, id)
	if err != nil {
		return nil, fmt.Errorf("reading history of %s %s: %w", table, id, err)
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	return entries, nil
}

// normalizeFilter drops an empty filter so that it does not restrict anything.
func normalizeFilter(f *model.Location) *model.Location {
	if f == nil || f.IsZero() {
		return nil
	}
	n := f.Normalize()
	return &n
}
