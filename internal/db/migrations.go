package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS items (
    id             INTEGER PRIMARY KEY,
    name           TEXT NOT NULL,
    category       TEXT NOT NULL,
    total_quantity INTEGER NOT NULL CHECK (total_quantity >= 1),
    city           TEXT NOT NULL,
    region_code    TEXT NOT NULL,
    address        TEXT,
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_items_name_category
    ON items(name COLLATE NOCASE, category COLLATE NOCASE);

CREATE TABLE IF NOT EXISTS item_attributes (
    item_id  INTEGER NOT NULL REFERENCES items(id),
    category TEXT NOT NULL,
    name     TEXT NOT NULL,
    value    TEXT NOT NULL,
    PRIMARY KEY (item_id, category, name)
);

CREATE TABLE IF NOT EXISTS commitments (
    id           INTEGER PRIMARY KEY,
    item_id      INTEGER NOT NULL REFERENCES items(id),
    quantity     INTEGER NOT NULL CHECK (quantity >= 1),
    start_date   TEXT NOT NULL,
    end_date     TEXT NOT NULL CHECK (end_date >= start_date),
    description  TEXT,
    city         TEXT NOT NULL,
    region_code  TEXT NOT NULL,
    address      TEXT,
    counterparty TEXT,
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_commitments_item ON commitments(item_id, end_date);

CREATE TABLE IF NOT EXISTS audit_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    action      TEXT NOT NULL CHECK (action IN ('CREATE', 'UPDATE', 'DELETE')),
    table_name  TEXT NOT NULL,
    entity_id   TEXT NOT NULL,
    actor       TEXT NOT NULL,
    timestamp   DATETIME NOT NULL,
    before_data TEXT,
    after_data  TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(table_name, entity_id, id);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: availability snapshots scan commitments by date across all
	// items, which the per-item index does not cover.
	`CREATE INDEX IF NOT EXISTS idx_commitments_dates ON commitments(start_date, end_date)`,
}

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Migrate creates the schema and runs the migrations.
func Migrate(db *sql.DB) error {
	if err := EnsureSchema(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
