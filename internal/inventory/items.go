package inventory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/erazemk/rezervator/internal/availability"
	"github.com/erazemk/rezervator/internal/catalog"
	"github.com/erazemk/rezervator/internal/model"
)

// ListItems returns all items, or those of one category when category is not
// empty, with their attributes resolved. Items are ordered by name.
func (r *Repository) ListItems(ctx context.Context, category string) ([]model.Item, error) {
	items, err := r.backend.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}

	category = strings.TrimSpace(category)
	if category != "" {
		items = slices.DeleteFunc(items, func(it model.Item) bool {
			return !strings.EqualFold(it.Category, category)
		})
	}

	// One attribute fetch per category, not per item.
	attrs := make(map[string]map[string]model.Attributes)
	for i, it := range items {
		key := strings.ToLower(it.Category)
		byItem, ok := attrs[key]
		if !ok {
			byItem, err = r.backend.ListAttributes(ctx, it.Category)
			if err != nil {
				return nil, fmt.Errorf("listing attributes of %s: %w", it.Category, err)
			}
			attrs[key] = byItem
		}
		items[i].Attributes = byItem[it.ID]
	}

	slices.SortFunc(items, func(a, b model.Item) int {
		return cmp.Or(
			cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return items, nil
}

// GetItem returns one item with its attributes.
func (r *Repository) GetItem(ctx context.Context, id string) (model.Item, error) {
	item, err := r.backend.GetItem(ctx, id)
	if err != nil {
		return model.Item{}, fmt.Errorf("getting item: %w", err)
	}
	item.Attributes, err = r.backend.GetAttributes(ctx, item.ID, item.Category)
	if err != nil {
		return model.Item{}, fmt.Errorf("getting attributes of item %s: %w", id, err)
	}
	return item, nil
}

// CreateItem validates spec and stores a new item with its attribute record.
func (r *Repository) CreateItem(ctx context.Context, spec model.ItemSpec) (model.Item, error) {
	spec = spec.Normalize()
	schema, hasSchema, err := r.validateItem(spec)
	if err != nil {
		return model.Item{}, err
	}

	unlock, err := r.lockKeys(ctx, catalogKey)
	if err != nil {
		return model.Item{}, err
	}
	defer unlock()

	if err := r.checkDuplicates(ctx, spec, schema, hasSchema, ""); err != nil {
		return model.Item{}, err
	}

	created, err := r.backend.InsertItem(ctx, spec.Apply(model.Item{}))
	if err != nil {
		return model.Item{}, fmt.Errorf("creating item: %w", err)
	}

	// The attribute record is a second write; undo the item row if it fails.
	if len(spec.Attributes) > 0 {
		if err := r.backend.PutAttributes(ctx, created.ID, created.Category, schema.FieldNames(), spec.Attributes); err != nil {
			r.compensate("removing item after failed attribute write", created.ID, func(ctx context.Context) error {
				if err := r.backend.DeleteAttributes(ctx, created.ID, created.Category); err != nil {
					return err
				}
				return r.backend.DeleteItem(ctx, created.ID)
			})
			return model.Item{}, fmt.Errorf("storing attributes of item %s: %w", created.ID, err)
		}
	}
	created.Attributes = spec.Attributes.Clone()

	r.log.Info("item created", zap.String("item_id", created.ID), zap.String("name", created.Name))
	r.record(ctx, model.AuditCreate, model.TableItems, created.ID, nil, created)
	return created, nil
}

// UpdateItem replaces the fields of item id with spec. The new total must still
// cover the busiest day of the item's commitments.
func (r *Repository) UpdateItem(ctx context.Context, id string, spec model.ItemSpec) (model.Item, error) {
	spec = spec.Normalize()
	schema, hasSchema, err := r.validateItem(spec)
	if err != nil {
		return model.Item{}, err
	}

	unlock, err := r.lockKeys(ctx, catalogKey, itemKey(id))
	if err != nil {
		return model.Item{}, err
	}
	defer unlock()

	existing, err := r.GetItem(ctx, id)
	if err != nil {
		return model.Item{}, err
	}
	if err := r.checkDuplicates(ctx, spec, schema, hasSchema, id); err != nil {
		return model.Item{}, err
	}

	// Check the new total against the item's existing reservations.
	commitments, err := r.backend.ListCommitments(ctx)
	if err != nil {
		return model.Item{}, fmt.Errorf("listing commitments: %w", err)
	}
	if start, end, ok := span(commitments, id); ok {
		resized := existing
		resized.TotalQuantity = spec.TotalQuantity
		peak, err := availability.PeriodPeak([]model.Item{resized}, id, commitments, start, end, "")
		if err != nil {
			return model.Item{}, err
		}
		if peak.MinAvailable < 0 {
			return model.Item{}, &model.InsufficientCapacityError{
				ItemID:       id,
				Requested:    peak.PeakCommitted,
				MinAvailable: spec.TotalQuantity,
				Start:        peak.PeakDay,
				End:          peak.PeakDay,
			}
		}
	}

	row := spec.Apply(existing)
	row.Attributes = nil
	updated, err := r.backend.UpdateItem(ctx, row)
	if err != nil {
		return model.Item{}, fmt.Errorf("updating item: %w", err)
	}

	if err := r.replaceAttributes(ctx, existing, updated, schema, spec.Attributes); err != nil {
		previous := existing
		previous.Attributes = nil
		r.compensate("restoring item after failed attribute write", id, func(ctx context.Context) error {
			if _, err := r.backend.UpdateItem(ctx, previous); err != nil {
				return err
			}
			if !strings.EqualFold(existing.Category, updated.Category) {
				if err := r.backend.DeleteAttributes(ctx, id, updated.Category); err != nil {
					return err
				}
			}
			if len(existing.Attributes) == 0 {
				return r.backend.DeleteAttributes(ctx, id, existing.Category)
			}
			oldSchema, _ := r.schema(existing.Category)
			return r.backend.PutAttributes(ctx, id, existing.Category, oldSchema.FieldNames(), existing.Attributes)
		})
		return model.Item{}, fmt.Errorf("storing attributes of item %s: %w", id, err)
	}
	updated.Attributes = spec.Attributes.Clone()

	r.record(ctx, model.AuditUpdate, model.TableItems, id, existing, updated)
	return updated, nil
}

// replaceAttributes writes the attribute record of an updated item, moving it
// when the category changed.
func (r *Repository) replaceAttributes(ctx context.Context, before, after model.Item, schema catalog.Schema, attrs model.Attributes) error {
	moved := !strings.EqualFold(before.Category, after.Category)
	if len(attrs) > 0 {
		if err := r.backend.PutAttributes(ctx, after.ID, after.Category, schema.FieldNames(), attrs); err != nil {
			return err
		}
	} else if !moved && len(before.Attributes) > 0 {
		if err := r.backend.DeleteAttributes(ctx, after.ID, after.Category); err != nil {
			return err
		}
	}
	if moved && len(before.Attributes) > 0 {
		return r.backend.DeleteAttributes(ctx, before.ID, before.Category)
	}
	return nil
}

// DeleteItem removes an item together with its commitments and attributes. It
// refuses while any commitment of the item ends today or later.
func (r *Repository) DeleteItem(ctx context.Context, id string) error {
	unlock, err := r.lockItems(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	item, err := r.GetItem(ctx, id)
	if err != nil {
		return err
	}

	commitments, err := r.backend.ListCommitments(ctx)
	if err != nil {
		return fmt.Errorf("listing commitments: %w", err)
	}
	today := r.today()
	var owned []model.Commitment
	future := 0
	for _, c := range commitments {
		if c.ItemID != id {
			continue
		}
		owned = append(owned, c)
		if !c.EndDate.Before(today) {
			future++
		}
	}
	if future > 0 {
		return &model.HasFutureCommitmentsError{ItemID: id, Count: future}
	}

	// Cascade: commitments, attributes, then the item row.
	for _, c := range owned {
		if err := r.backend.DeleteCommitment(ctx, c.ID); err != nil && !model.IsNotFound(err) {
			return fmt.Errorf("deleting commitment %s of item %s: %w", c.ID, id, err)
		}
		c.ItemName = item.Name
		r.record(ctx, model.AuditDelete, model.TableCommitments, c.ID, c, nil)
	}
	if err := r.backend.DeleteAttributes(ctx, id, item.Category); err != nil {
		return fmt.Errorf("deleting attributes of item %s: %w", id, err)
	}
	if err := r.backend.DeleteItem(ctx, id); err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}

	r.log.Info("item deleted", zap.String("item_id", id), zap.Int("commitments", len(owned)))
	r.record(ctx, model.AuditDelete, model.TableItems, id, item, nil)
	return nil
}

// checkDuplicates rejects a spec whose name and category, or whose unique
// attribute, is already used by an item other than self.
func (r *Repository) checkDuplicates(ctx context.Context, spec model.ItemSpec, schema catalog.Schema, hasSchema bool, self string) error {
	items, err := r.backend.ListItems(ctx)
	if err != nil {
		return fmt.Errorf("listing items: %w", err)
	}
	for _, it := range items {
		if it.ID != self && strings.EqualFold(it.Name, spec.Name) && strings.EqualFold(it.Category, spec.Category) {
			return &model.DuplicateError{Field: "name", Value: spec.Name + " (" + spec.Category + ")"}
		}
	}

	if !hasSchema || schema.Unique == "" {
		return nil
	}
	value := spec.Attributes[schema.Unique]
	if value == "" {
		return nil
	}
	records, err := r.backend.ListAttributes(ctx, spec.Category)
	if err != nil {
		return fmt.Errorf("listing attributes of %s: %w", spec.Category, err)
	}
	for itemID, attrs := range records {
		if itemID != self && strings.EqualFold(attrs[schema.Unique], value) {
			return &model.DuplicateError{Field: "attributes." + schema.Unique, Value: value}
		}
	}
	return nil
}
