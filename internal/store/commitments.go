package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/rezervator/internal/model"
)

const commitmentColumns = `c.id, c.item_id, c.quantity, c.start_date, c.end_date, c.description,
	c.city, c.region_code, c.address, c.counterparty, c.created_at, c.updated_at, i.name`

// CreateCommitment inserts a commitment and returns it with its new id.
func CreateCommitment(ctx context.Context, db *sql.DB, c model.Commitment) (model.Commitment, error) {
	itemID, ok := parseID(c.ItemID)
	if !ok {
		return model.Commitment{}, fmt.Errorf("%w: %s", model.ErrItemNotFound, c.ItemID)
	}
	result, err := db.ExecContext(ctx,
		`INSERT INTO commitments (item_id, quantity, start_date, end_date, description, city,
		                          region_code, address, counterparty)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		itemID, c.Quantity, c.StartDate, c.EndDate, c.Description, c.City, c.Region, c.Address, c.Counterparty,
	)
	if err != nil {
		return model.Commitment{}, fmt.Errorf("creating commitment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return model.Commitment{}, fmt.Errorf("getting commitment id: %w", err)
	}

	return GetCommitment(ctx, db, formatID(id))
}

// GetCommitment returns a commitment by ID, with the name of its item.
func GetCommitment(ctx context.Context, db *sql.DB, id string) (model.Commitment, error) {
	n, ok := parseID(id)
	if !ok {
		return model.Commitment{}, fmt.Errorf("%w: %s", model.ErrCommitmentNotFound, id)
	}
	c, err := scanCommitment(db.QueryRowContext(ctx,
		`SELECT `+commitmentColumns+`
		 FROM commitments c
		 JOIN items i ON i.id = c.item_id
		 WHERE c.id = ?`, n,
	))
	if err == sql.ErrNoRows {
		return model.Commitment{}, fmt.Errorf("%w: %s", model.ErrCommitmentNotFound, id)
	}
	if err != nil {
		return model.Commitment{}, fmt.Errorf("getting commitment: %w", err)
	}
	return c, nil
}

// ListCommitments returns all commitments ordered by start date.
func ListCommitments(ctx context.Context, db *sql.DB) ([]model.Commitment, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+commitmentColumns+`
		 FROM commitments c
		 JOIN items i ON i.id = c.item_id
		 ORDER BY c.start_date, c.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing commitments: %w", err)
	}
	defer rows.Close()

	var out []model.Commitment
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning commitment: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCommitment overwrites a commitment's fields.
func UpdateCommitment(ctx context.Context, db *sql.DB, c model.Commitment) (model.Commitment, error) {
	n, ok := parseID(c.ID)
	if !ok {
		return model.Commitment{}, fmt.Errorf("%w: %s", model.ErrCommitmentNotFound, c.ID)
	}
	itemID, ok := parseID(c.ItemID)
	if !ok {
		return model.Commitment{}, fmt.Errorf("%w: %s", model.ErrItemNotFound, c.ItemID)
	}
	result, err := db.ExecContext(ctx,
		`UPDATE commitments SET item_id = ?, quantity = ?, start_date = ?, end_date = ?, description = ?,
		        city = ?, region_code = ?, address = ?, counterparty = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		itemID, c.Quantity, c.StartDate, c.EndDate, c.Description, c.City, c.Region, c.Address, c.Counterparty, n,
	)
	if err != nil {
		return model.Commitment{}, fmt.Errorf("updating commitment: %w", err)
	}
	if err := expectRow(result, model.ErrCommitmentNotFound, c.ID); err != nil {
		return model.Commitment{}, err
	}
	return GetCommitment(ctx, db, c.ID)
}

// DeleteCommitment removes a commitment.
func DeleteCommitment(ctx context.Context, db *sql.DB, id string) error {
	n, ok := parseID(id)
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrCommitmentNotFound, id)
	}
	result, err := db.ExecContext(ctx, `DELETE FROM commitments WHERE id = ?`, n)
	if err != nil {
		return fmt.Errorf("deleting commitment: %w", err)
	}
	return expectRow(result, model.ErrCommitmentNotFound, id)
}

func scanCommitment(s scanner) (model.Commitment, error) {
	var c model.Commitment
	var id, itemID int64
	var description, address, counterparty sql.NullString
	err := s.Scan(&id, &itemID, &c.Quantity, &c.StartDate, &c.EndDate, &description,
		&c.City, &c.Region, &address, &counterparty, &c.CreatedAt, &c.UpdatedAt, &c.ItemName)
	if err != nil {
		return model.Commitment{}, err
	}
	c.ID = formatID(id)
	c.ItemID = formatID(itemID)
	c.Description = description.String
	c.Address = address.String
	c.Counterparty = counterparty.String
	return c, nil
}
