package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/erazemk/rezervator/internal/model"
)

const itemColumns = `id, name, category, total_quantity, city, region_code, address, created_at, updated_at`

// CreateItem inserts an item and returns it with its new id.
func CreateItem(ctx context.Context, db *sql.DB, item model.Item) (model.Item, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO items (name, category, total_quantity, city, region_code, address)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		item.Name, item.Category, item.TotalQuantity, item.City, item.Region, item.Address,
	)
	if err != nil {
		return model.Item{}, fmt.Errorf("creating item: %w", uniqueViolation(err, "name", item.Name))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return model.Item{}, fmt.Errorf("getting item id: %w", err)
	}

	return GetItem(ctx, db, formatID(id))
}

// GetItem returns an item by ID.
func GetItem(ctx context.Context, db *sql.DB, id string) (model.Item, error) {
	n, ok := parseID(id)
	if !ok {
		return model.Item{}, fmt.Errorf("%w: %s", model.ErrItemNotFound, id)
	}
	item, err := scanItem(db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ?`, n,
	))
	if err == sql.ErrNoRows {
		return model.Item{}, fmt.Errorf("%w: %s", model.ErrItemNotFound, id)
	}
	if err != nil {
		return model.Item{}, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ListItems returns all items ordered by name.
func ListItems(ctx context.Context, db *sql.DB) ([]model.Item, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items ORDER BY name, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateItem overwrites an item's fields.
func UpdateItem(ctx context.Context, db *sql.DB, item model.Item) (model.Item, error) {
	n, ok := parseID(item.ID)
	if !ok {
		return model.Item{}, fmt.Errorf("%w: %s", model.ErrItemNotFound, item.ID)
	}
	result, err := db.ExecContext(ctx,
		`UPDATE items SET name = ?, category = ?, total_quantity = ?, city = ?, region_code = ?,
		        address = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		item.Name, item.Category, item.TotalQuantity, item.City, item.Region, item.Address, n,
	)
	if err != nil {
		return model.Item{}, fmt.Errorf("updating item: %w", uniqueViolation(err, "name", item.Name))
	}
	if err := expectRow(result, model.ErrItemNotFound, item.ID); err != nil {
		return model.Item{}, err
	}
	return GetItem(ctx, db, item.ID)
}

// DeleteItem removes an item row. Commitments and attributes must be gone first.
func DeleteItem(ctx context.Context, db *sql.DB, id string) error {
	n, ok := parseID(id)
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrItemNotFound, id)
	}
	result, err := db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, n)
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	return expectRow(result, model.ErrItemNotFound, id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (model.Item, error) {
	var item model.Item
	var id int64
	var address sql.NullString
	err := s.Scan(&id, &item.Name, &item.Category, &item.TotalQuantity, &item.City, &item.Region,
		&address, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return model.Item{}, err
	}
	item.ID = formatID(id)
	item.Address = address.String
	return item, nil
}

func parseID(id string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	return n, err == nil && n > 0
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func expectRow(result sql.Result, notFound error, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return nil
}

// uniqueViolation turns a SQLite unique constraint failure into a DuplicateError.
func uniqueViolation(err error, field, value string) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return &model.DuplicateError{Field: field, Value: value}
	}
	return err
}
