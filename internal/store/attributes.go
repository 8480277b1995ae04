package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/rezervator/internal/model"
)

// GetAttributes returns the category attributes of an item, or nil if it has none.
func GetAttributes(ctx context.Context, db *sql.DB, itemID, category string) (model.Attributes, error) {
	n, ok := parseID(itemID)
	if !ok {
		return nil, nil
	}
	rows, err := db.QueryContext(ctx,
		`SELECT name, value FROM item_attributes WHERE item_id = ? AND category = ?`,
		n, category,
	)
	if err != nil {
		return nil, fmt.Errorf("getting attributes: %w", err)
	}
	defer rows.Close()

	var attrs model.Attributes
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scanning attribute: %w", err)
		}
		if attrs == nil {
			attrs = model.Attributes{}
		}
		attrs[name] = value
	}
	return attrs, rows.Err()
}

// ListAttributes returns all attribute records of a category keyed by item id.
func ListAttributes(ctx context.Context, db *sql.DB, category string) (map[string]model.Attributes, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT item_id, name, value FROM item_attributes WHERE category = ?`, category,
	)
	if err != nil {
		return nil, fmt.Errorf("listing attributes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]model.Attributes)
	for rows.Next() {
		var itemID int64
		var name, value string
		if err := rows.Scan(&itemID, &name, &value); err != nil {
			return nil, fmt.Errorf("scanning attribute: %w", err)
		}
		id := formatID(itemID)
		if out[id] == nil {
			out[id] = model.Attributes{}
		}
		out[id][name] = value
	}
	return out, rows.Err()
}

// PutAttributes replaces the attribute record of an item in one transaction.
func PutAttributes(ctx context.Context, db *sql.DB, itemID, category string, attrs model.Attributes) error {
	n, ok := parseID(itemID)
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrItemNotFound, itemID)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM item_attributes WHERE item_id = ? AND category = ?`, n, category,
	); err != nil {
		return fmt.Errorf("clearing attributes: %w", err)
	}
	for name, value := range attrs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO item_attributes (item_id, category, name, value) VALUES (?, ?, ?, ?)`,
			n, category, name, value,
		); err != nil {
			return fmt.Errorf("storing attribute %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing attributes: %w", err)
	}
	return nil
}

// DeleteAttributes removes the attribute record of an item.
func DeleteAttributes(ctx context.Context, db *sql.DB, itemID, category string) error {
	n, ok := parseID(itemID)
	if !ok {
		return nil
	}
	_, err := db.ExecContext(ctx,
		`DELETE FROM item_attributes WHERE item_id = ? AND category = ?`, n, category,
	)
	if err != nil {
		return fmt.Errorf("deleting attributes: %w", err)
	}
	return nil
}
