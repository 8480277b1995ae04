// Package store defines the row-level storage contract every backend of record
// implements, and the local SQLite backend.
//
// Backends store and load rows. They do not validate business rules, check
// capacity or write audit entries; inventory.Repository does that once for all
// of them.
package store

import (
	"context"

	"github.com/erazemk/rezervator/internal/model"
)

// Backend is the storage of items, commitments, category attributes and the
// audit log.
//
// Get and Delete methods return errors wrapping model.ErrItemNotFound or
// model.ErrCommitmentNotFound for unknown ids. Insert methods assign the id and
// timestamps and return the stored row.
type Backend interface {
	// Name identifies the backend in logs and errors.
	Name() string

	ListItems(ctx context.Context) ([]model.Item, error)
	GetItem(ctx context.Context, id string) (model.Item, error)
	InsertItem(ctx context.Context, item model.Item) (model.Item, error)
	UpdateItem(ctx context.Context, item model.Item) (model.Item, error)
	DeleteItem(ctx context.Context, id string) error

	// GetAttributes returns nil when the item has no attribute record in category.
	GetAttributes(ctx context.Context, itemID, category string) (model.Attributes, error)
	// ListAttributes returns every attribute record of category keyed by item id.
	ListAttributes(ctx context.Context, category string) (map[string]model.Attributes, error)
	// PutAttributes replaces the attribute record of an item. fields is the
	// category's field order, used by backends with a fixed column layout.
	PutAttributes(ctx context.Context, itemID, category string, fields []string, attrs model.Attributes) error
	// DeleteAttributes is a no-op when there is no record.
	DeleteAttributes(ctx context.Context, itemID, category string) error

	ListCommitments(ctx context.Context) ([]model.Commitment, error)
	GetCommitment(ctx context.Context, id string) (model.Commitment, error)
	InsertCommitment(ctx context.Context, c model.Commitment) (model.Commitment, error)
	UpdateCommitment(ctx context.Context, c model.Commitment) (model.Commitment, error)
	DeleteCommitment(ctx context.Context, id string) error

	// AppendAudit stores e and returns its sequence id.
	AppendAudit(ctx context.Context, e model.AuditEntry) (int64, error)
	// ListAudit returns the entries of one entity, most recent first.
	ListAudit(ctx context.Context, table, entityID string) ([]model.AuditEntry, error)
}

// Cached is implemented by backends that serve reads from a cache which writes
// made by other processes do not clear.
type Cached interface {
	InvalidateCache()
}
