package inventory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/erazemk/rezervator/internal/availability"
	"github.com/erazemk/rezervator/internal/dates"
	"github.com/erazemk/rezervator/internal/model"
)

// Commitment outcomes reported to metrics.
const (
	outcomeAccepted = "accepted"
	outcomeCapacity = "insufficient_capacity"
	outcomeInvalid  = "invalid"
	outcomeError    = "error"
)

// CommitmentFilter narrows ListCommitments. Zero fields do not filter.
type CommitmentFilter struct {
	ItemID   string
	ActiveOn dates.Date
}

// ListCommitments returns the commitments matching f with item names resolved,
// ordered by start date.
func (r *Repository) ListCommitments(ctx context.Context, f CommitmentFilter) ([]model.Commitment, error) {
	commitments, err := r.backend.ListCommitments(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing commitments: %w", err)
	}
	items, err := r.backend.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	names := make(map[string]string, len(items))
	for _, it := range items {
		names[it.ID] = it.Name
	}

	out := make([]model.Commitment, 0, len(commitments))
	for _, c := range commitments {
		if f.ItemID != "" && c.ItemID != f.ItemID {
			continue
		}
		if !f.ActiveOn.IsZero() && !c.ActiveOn(f.ActiveOn) {
			continue
		}
		c.ItemName = names[c.ItemID]
		out = append(out, c)
	}
	sortCommitments(out)
	return out, nil
}

// GetCommitment returns one commitment with its item name resolved.
func (r *Repository) GetCommitment(ctx context.Context, id string) (model.Commitment, error) {
	c, err := r.backend.GetCommitment(ctx, id)
	if err != nil {
		return model.Commitment{}, fmt.Errorf("getting commitment: %w", err)
	}
	item, err := r.backend.GetItem(ctx, c.ItemID)
	switch {
	case err == nil:
		c.ItemName = item.Name
	case !errors.Is(err, model.ErrItemNotFound):
		return model.Commitment{}, fmt.Errorf("getting item of commitment %s: %w", id, err)
	}
	return c, nil
}

// CreateCommitment reserves capacity of an item. The capacity check and the
// write happen under the item's lock, so concurrent reservations of the same
// item cannot together exceed its total.
func (r *Repository) CreateCommitment(ctx context.Context, spec model.CommitmentSpec) (model.Commitment, error) {
	spec = spec.Normalize()
	if err := validateCommitment(spec); err != nil {
		r.metrics.CommitmentOutcome("create", outcomeInvalid)
		return model.Commitment{}, err
	}

	unlock, err := r.lockItems(ctx, spec.ItemID)
	if err != nil {
		return model.Commitment{}, err
	}
	defer unlock()

	item, err := r.checkCapacity(ctx, "create", spec, "")
	if err != nil {
		return model.Commitment{}, err
	}

	created, err := r.backend.InsertCommitment(ctx, spec.Apply(model.Commitment{}))
	if err != nil {
		r.metrics.CommitmentOutcome("create", outcomeError)
		return model.Commitment{}, fmt.Errorf("creating commitment: %w", err)
	}
	created.ItemName = item.Name

	r.metrics.CommitmentOutcome("create", outcomeAccepted)
	r.record(ctx, model.AuditCreate, model.TableCommitments, created.ID, nil, created)
	return created, nil
}

// UpdateCommitment replaces commitment id with spec after re-checking capacity
// without the commitment's own current footprint. An empty spec.ItemID keeps
// the current item.
func (r *Repository) UpdateCommitment(ctx context.Context, id string, spec model.CommitmentSpec) (model.Commitment, error) {
	current, err := r.backend.GetCommitment(ctx, id)
	if err != nil {
		return model.Commitment{}, fmt.Errorf("getting commitment: %w", err)
	}
	spec = spec.Normalize()
	if spec.ItemID == "" {
		spec.ItemID = current.ItemID
	}
	if err := validateCommitment(spec); err != nil {
		r.metrics.CommitmentOutcome("update", outcomeInvalid)
		return model.Commitment{}, err
	}

	unlock, err := r.lockItems(ctx, current.ItemID, spec.ItemID)
	if err != nil {
		return model.Commitment{}, err
	}
	defer unlock()

	// Re-read under the lock; another writer may have changed or removed it.
	existing, err := r.GetCommitment(ctx, id)
	if err != nil {
		return model.Commitment{}, err
	}
	if existing.ItemID != current.ItemID {
		return model.Commitment{}, fmt.Errorf("commitment %s moved to another item concurrently, retry the update", id)
	}

	item, err := r.checkCapacity(ctx, "update", spec, id)
	if err != nil {
		return model.Commitment{}, err
	}

	row := spec.Apply(existing)
	row.ItemName = ""
	updated, err := r.backend.UpdateCommitment(ctx, row)
	if err != nil {
		r.metrics.CommitmentOutcome("update", outcomeError)
		return model.Commitment{}, fmt.Errorf("updating commitment: %w", err)
	}
	updated.ItemName = item.Name

	r.metrics.CommitmentOutcome("update", outcomeAccepted)
	r.record(ctx, model.AuditUpdate, model.TableCommitments, id, existing, updated)
	return updated, nil
}

// DeleteCommitment removes a commitment, freeing its capacity at once.
func (r *Repository) DeleteCommitment(ctx context.Context, id string) error {
	current, err := r.backend.GetCommitment(ctx, id)
	if err != nil {
		return fmt.Errorf("getting commitment: %w", err)
	}

	unlock, err := r.lockItems(ctx, current.ItemID)
	if err != nil {
		return err
	}
	defer unlock()

	existing, err := r.GetCommitment(ctx, id)
	if err != nil {
		return err
	}
	if err := r.backend.DeleteCommitment(ctx, id); err != nil {
		return fmt.Errorf("deleting commitment: %w", err)
	}
	r.record(ctx, model.AuditDelete, model.TableCommitments, id, existing, nil)
	return nil
}

// checkCapacity resolves the item of spec and verifies that spec.Quantity fits
// on every day of the period, ignoring commitment excludeID. The caller must
// hold the item's lock.
func (r *Repository) checkCapacity(ctx context.Context, op string, spec model.CommitmentSpec, excludeID string) (model.Item, error) {
	item, err := r.backend.GetItem(ctx, spec.ItemID)
	if err != nil {
		r.metrics.CommitmentOutcome(op, outcomeInvalid)
		return model.Item{}, fmt.Errorf("getting item: %w", err)
	}
	commitments, err := r.backend.ListCommitments(ctx)
	if err != nil {
		r.metrics.CommitmentOutcome(op, outcomeError)
		return model.Item{}, fmt.Errorf("listing commitments: %w", err)
	}

	peak, err := availability.PeriodPeak([]model.Item{item}, item.ID, commitments, spec.StartDate, spec.EndDate, excludeID)
	if err != nil {
		r.metrics.CommitmentOutcome(op, outcomeInvalid)
		return model.Item{}, err
	}
	if !peak.Fits(spec.Quantity) {
		r.metrics.CommitmentOutcome(op, outcomeCapacity)
		r.log.Info("commitment rejected, insufficient capacity",
			zap.String("item_id", item.ID),
			zap.Int("requested", spec.Quantity),
			zap.Int("min_available", peak.MinAvailable),
			zap.Stringer("start", spec.StartDate),
			zap.Stringer("end", spec.EndDate),
		)
		return model.Item{}, &model.InsufficientCapacityError{
			ItemID:       item.ID,
			Requested:    spec.Quantity,
			MinAvailable: peak.MinAvailable,
			Start:        spec.StartDate,
			End:          spec.EndDate,
		}
	}
	return item, nil
}

// compensateTimeout bounds a compensating write.
const compensateTimeout = 30 * time.Second

// compensate runs undo to reverse a partial write. It runs even when the
// request context is already cancelled, and its failure is only logged so the
// caller can return the original error.
func (r *Repository) compensate(what, id string, undo func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), compensateTimeout)
	defer cancel()

	r.log.Warn(what, zap.String("id", id))
	if err := undo(ctx); err != nil {
		r.log.Error("compensating write failed, manual cleanup may be needed",
			zap.String("id", id), zap.String("step", what), zap.Error(err))
	}
}

// span returns the first start and last end of the commitments of itemID.
func span(commitments []model.Commitment, itemID string) (start, end dates.Date, ok bool) {
	for _, c := range commitments {
		if c.ItemID != itemID {
			continue
		}
		if !ok || c.StartDate.Before(start) {
			start = c.StartDate
		}
		if !ok || c.EndDate.After(end) {
			end = c.EndDate
		}
		ok = true
	}
	return start, end, ok
}

func sortCommitments(cs []model.Commitment) {
	slices.SortFunc(cs, func(a, b model.Commitment) int {
		return cmp.Or(a.StartDate.Compare(b.StartDate), a.EndDate.Compare(b.EndDate), cmp.Compare(a.ID, b.ID))
	})
}
