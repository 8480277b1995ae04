package store

import (
	"context"
	"database/sql"

	"github.com/erazemk/rezervator/internal/model"
)

// SQLite is the local relational Backend.
type SQLite struct {
	db *sql.DB
}

// NewSQLite wraps an open, migrated database.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

var _ Backend = (*SQLite)(nil)

// DB exposes the underlying handle for settings and health checks.
func (s *SQLite) DB() *sql.DB { return s.db }

func (s *SQLite) Name() string { return "sqlite" }

func (s *SQLite) ListItems(ctx context.Context) ([]model.Item, error) {
	return ListItems(ctx, s.db)
}

func (s *SQLite) GetItem(ctx context.Context, id string) (model.Item, error) {
	return GetItem(ctx, s.db, id)
}

func (s *SQLite) InsertItem(ctx context.Context, item model.Item) (model.Item, error) {
	return CreateItem(ctx, s.db, item)
}

func (s *SQLite) UpdateItem(ctx context.Context, item model.Item) (model.Item, error) {
	return UpdateItem(ctx, s.db, item)
}

func (s *SQLite) DeleteItem(ctx context.Context, id string) error {
	return DeleteItem(ctx, s.db, id)
}

func (s *SQLite) GetAttributes(ctx context.Context, itemID, category string) (model.Attributes, error) {
	return GetAttributes(ctx, s.db, itemID, category)
}

func (s *SQLite) ListAttributes(ctx context.Context, category string) (map[string]model.Attributes, error) {
	return ListAttributes(ctx, s.db, category)
}

func (s *SQLite) PutAttributes(ctx context.Context, itemID, category string, _ []string, attrs model.Attributes) error {
	return PutAttributes(ctx, s.db, itemID, category, attrs)
}

func (s *SQLite) DeleteAttributes(ctx context.Context, itemID, category string) error {
	return DeleteAttributes(ctx, s.db, itemID, category)
}

func (s *SQLite) ListCommitments(ctx context.Context) ([]model.Commitment, error) {
	return ListCommitments(ctx, s.db)
}

func (s *SQLite) GetCommitment(ctx context.Context, id string) (model.Commitment, error) {
	return GetCommitment(ctx, s.db, id)
}

func (s *SQLite) InsertCommitment(ctx context.Context, c model.Commitment) (model.Commitment, error) {
	return CreateCommitment(ctx, s.db, c)
}

func (s *SQLite) UpdateCommitment(ctx context.Context, c model.Commitment) (model.Commitment, error) {
	return UpdateCommitment(ctx, s.db, c)
}

func (s *SQLite) DeleteCommitment(ctx context.Context, id string) error {
	return DeleteCommitment(ctx, s.db, id)
}

func (s *SQLite) AppendAudit(ctx context.Context, e model.AuditEntry) (int64, error) {
	return AppendAudit(ctx, s.db, e)
}

func (s *SQLite) ListAudit(ctx context.Context, table, entityID string) ([]model.AuditEntry, error) {
	return ListAudit(ctx, s.db, table, entityID)
}
