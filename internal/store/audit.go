package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/erazemk/rezervator/internal/model"
)

// AppendAudit stores an audit entry and returns its sequence id.
func AppendAudit(ctx context.Context, db *sql.DB, e model.AuditEntry) (int64, error) {
	before, err := encodeSnapshot(e.Before)
	if err != nil {
		return 0, err
	}
	after, err := encodeSnapshot(e.After)
	if err != nil {
		return 0, err
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO audit_log (action, table_name, entity_id, actor, timestamp, before_data, after_data)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(e.Action), e.Table, e.EntityID, e.Actor, e.Timestamp.UTC(), before, after,
	)
	if err != nil {
		return 0, fmt.Errorf("appending audit entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting audit id: %w", err)
	}
	return id, nil
}

// ListAudit returns the audit entries of one entity, most recent first.
func ListAudit(ctx context.Context, db *sql.DB, table, entityID string) ([]model.AuditEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, action, table_name, entity_id, actor, timestamp, before_data, after_data
		 FROM audit_log
		 WHERE table_name = ? AND entity_id = ?
		 ORDER BY id DESC`, table, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var action string
		var before, after sql.NullString
		if err := rows.Scan(&e.ID, &action, &e.Table, &e.EntityID, &e.Actor, &e.Timestamp, &before, &after); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Action = model.AuditAction(action)
		if e.Before, err = decodeSnapshot(before); err != nil {
			return nil, err
		}
		if e.After, err = decodeSnapshot(after); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func encodeSnapshot(m map[string]string) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding snapshot: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeSnapshot(s sql.NullString) (map[string]string, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return m, nil
}
