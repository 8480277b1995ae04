package sheets

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/erazemk/rezervator/internal/dates"
	"github.com/erazemk/rezervator/internal/model"
)

// table is one sheet as read: a header row and every row including it.
type table struct {
	header []string
	rows   [][]string
}

// records returns the data rows, skipping the header.
func (t table) records() [][]string {
	if len(t.rows) < 2 {
		return nil
	}
	return t.rows[1:]
}

func (t table) get(row []string, column string) string {
	i := slices.Index(t.header, column)
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// find returns the sheet index of the first row whose column equals value, or -1.
func (t table) find(column, value string) int {
	if value == "" {
		return -1
	}
	for i := 1; i < len(t.rows); i++ {
		if t.get(t.rows[i], column) == value {
			return i
		}
	}
	return -1
}

func (t table) item(row []string) (model.Item, error) {
	qty, err := strconv.Atoi(t.get(row, "total_quantity"))
	if err != nil {
		return model.Item{}, fmt.Errorf("total_quantity: %w", err)
	}
	return model.Item{
		ID:            t.get(row, "id"),
		Name:          t.get(row, "name"),
		Category:      t.get(row, "category"),
		TotalQuantity: qty,
		City:          t.get(row, "city"),
		Region:        t.get(row, "region_code"),
		Address:       t.get(row, "address"),
		CreatedAt:     parseTime(t.get(row, "created_at")),
		UpdatedAt:     parseTime(t.get(row, "updated_at")),
	}, nil
}

func (t table) commitment(row []string) (model.Commitment, error) {
	qty, err := strconv.Atoi(t.get(row, "quantity"))
	if err != nil {
		return model.Commitment{}, fmt.Errorf("quantity: %w", err)
	}
	start, err := dates.Parse(t.get(row, "start_date"))
	if err != nil {
		return model.Commitment{}, fmt.Errorf("start_date: %w", err)
	}
	end, err := dates.Parse(t.get(row, "end_date"))
	if err != nil {
		return model.Commitment{}, fmt.Errorf("end_date: %w", err)
	}
	return model.Commitment{
		ID:           t.get(row, "id"),
		ItemID:       t.get(row, "item_id"),
		Quantity:     qty,
		StartDate:    start,
		EndDate:      end,
		Description:  t.get(row, "description"),
		City:         t.get(row, "city"),
		Region:       t.get(row, "region_code"),
		Address:      t.get(row, "address"),
		Counterparty: t.get(row, "counterparty"),
		CreatedAt:    parseTime(t.get(row, "created_at")),
		UpdatedAt:    parseTime(t.get(row, "updated_at")),
	}, nil
}

func (t table) audit(row []string) (model.AuditEntry, error) {
	id, err := strconv.ParseInt(t.get(row, "id"), 10, 64)
	if err != nil {
		return model.AuditEntry{}, fmt.Errorf("id: %w", err)
	}
	e := model.AuditEntry{
		ID:        id,
		Action:    model.AuditAction(t.get(row, "action")),
		Table:     t.get(row, "table_name"),
		EntityID:  t.get(row, "entity_id"),
		Actor:     t.get(row, "actor"),
		Timestamp: parseTime(t.get(row, "timestamp")),
	}
	if e.Before, err = unsnapshot(t.get(row, "before")); err != nil {
		return model.AuditEntry{}, err
	}
	if e.After, err = unsnapshot(t.get(row, "after")); err != nil {
		return model.AuditEntry{}, err
	}
	return e, nil
}

// encode lays values out in header order.
func encode(header []string, values map[string]string) []string {
	row := make([]string, len(header))
	for i, col := range header {
		row[i] = values[col]
	}
	return row
}

func itemValues(it model.Item) map[string]string {
	return map[string]string{
		"id":             it.ID,
		"name":           it.Name,
		"category":       it.Category,
		"total_quantity": strconv.Itoa(it.TotalQuantity),
		"city":           it.City,
		"region_code":    it.Region,
		"address":        it.Address,
		"created_at":     formatTime(it.CreatedAt),
		"updated_at":     formatTime(it.UpdatedAt),
	}
}

func commitmentValues(c model.Commitment) map[string]string {
	return map[string]string{
		"id":           c.ID,
		"item_id":      c.ItemID,
		"quantity":     strconv.Itoa(c.Quantity),
		"start_date":   c.StartDate.String(),
		"end_date":     c.EndDate.String(),
		"description":  c.Description,
		"city":         c.City,
		"region_code":  c.Region,
		"address":      c.Address,
		"counterparty": c.Counterparty,
		"created_at":   formatTime(c.CreatedAt),
		"updated_at":   formatTime(c.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func snapshot(m map[string]string) (string, error) {
	if m == nil {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}
	return string(b), nil
}

func unsnapshot(s string) (map[string]string, error) {
	if s == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return m, nil
}
