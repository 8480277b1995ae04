// Package hosted is the Backend on a hosted PostgreSQL database, accessed
// through gorm.
package hosted

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/erazemk/rezervator/internal/dates"
	"github.com/erazemk/rezervator/internal/model"
	"github.com/erazemk/rezervator/internal/store"
)

const backendName = "postgres"

const connHint = "check postgres.host, postgres.port and postgres credentials"

// Table names are prefixed so the schema can share a database.
const (
	ItemTable       = "rezervator_items"
	AttributeTable  = "rezervator_item_attributes"
	CommitmentTable = "rezervator_commitments"
	AuditTable      = "rezervator_audit_log"
)

// Config holds connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN builds a libpq connection string. Host and database name are required.
func (c Config) DSN() (string, error) {
	if strings.TrimSpace(c.Host) == "" {
		return "", &model.ConfigError{Key: "postgres.host", Hint: "set the hosted database host"}
	}
	if strings.TrimSpace(c.DBName) == "" {
		return "", &model.ConfigError{Key: "postgres.dbname", Hint: "set the hosted database name"}
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "require"
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		c.Host, c.User, c.Password, c.DBName, port, sslmode), nil
}

type itemRow struct {
	ID            string `gorm:"type:text;primaryKey"`
	Name          string `gorm:"size:200;not null"`
	Category      string `gorm:"size:100;not null;index"`
	TotalQuantity int    `gorm:"not null;check:chk_items_total_quantity,total_quantity >= 1"`
	City          string `gorm:"size:120;not null"`
	Region        string `gorm:"column:region_code;size:2;not null"`
	Address       string `gorm:"size:255"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type attributeRow struct {
	ItemID   string `gorm:"type:text;primaryKey"`
	Category string `gorm:"size:100;primaryKey;index"`
	Name     string `gorm:"size:100;primaryKey"`
	Value    string `gorm:"not null"`
}

type commitmentRow struct {
	ID           string     `gorm:"type:text;primaryKey"`
	ItemID       string     `gorm:"type:text;index;not null"`
	Quantity     int        `gorm:"not null;check:chk_commitments_quantity,quantity >= 1"`
	StartDate    dates.Date `gorm:"type:date;not null"`
	EndDate      dates.Date `gorm:"type:date;not null;index"`
	Description  string     `gorm:"size:500"`
	City         string     `gorm:"size:120;not null"`
	Region       string     `gorm:"column:region_code;size:2;not null"`
	Address      string     `gorm:"size:255"`
	Counterparty string     `gorm:"size:200"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type auditRow struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	Action     string    `gorm:"size:10;not null"`
	Entity     string    `gorm:"column:table_name;size:50;not null;index:idx_audit_entity,priority:1"`
	EntityID   string    `gorm:"size:100;not null;index:idx_audit_entity,priority:2"`
	Actor      string    `gorm:"size:200;not null"`
	Timestamp  time.Time `gorm:"not null"`
	BeforeData *string   `gorm:"type:text"`
	AfterData  *string   `gorm:"type:text"`
}

func (itemRow) TableName() string       { return ItemTable }
func (attributeRow) TableName() string  { return AttributeTable }
func (commitmentRow) TableName() string { return CommitmentTable }
func (auditRow) TableName() string      { return AuditTable }

// Open connects to PostgreSQL and migrates the schema.
func Open(cfg Config) (*gorm.DB, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, model.Unavailable(backendName, connHint, err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the tables and indexes.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&itemRow{}, &attributeRow{}, &commitmentRow{}, &auditRow{}); err != nil {
		return classify("migrating schema", err)
	}

	// Names are unique per category regardless of case.
	if err := db.Exec(fmt.Sprintf(`
	  CREATE UNIQUE INDEX IF NOT EXISTS %s_name_category
	  ON %s (lower(name), lower(category));
	`, ItemTable, ItemTable)).Error; err != nil {
		return classify("creating name index", err)
	}
	return nil
}

// Store implements store.Backend on gorm.
type Store struct {
	db *gorm.DB
}

var _ store.Backend = (*Store)(nil)

// New wraps a migrated database handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Name() string { return backendName }

func (s *Store) ListItems(ctx context.Context) ([]model.Item, error) {
	var rows []itemRow
	if err := s.db.WithContext(ctx).Order("name, id").Find(&rows).Error; err != nil {
		return nil, classify("listing items", err)
	}
	out := make([]model.Item, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *Store) GetItem(ctx context.Context, id string) (model.Item, error) {
	var r itemRow
	err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Item{}, fmt.Errorf("%w: %s", model.ErrItemNotFound, id)
	}
	if err != nil {
		return model.Item{}, classify("getting item", err)
	}
	return r.toModel(), nil
}

func (s *Store) InsertItem(ctx context.Context, item model.Item) (model.Item, error) {
	r := itemFromModel(item)
	r.ID = uuid.NewString()
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		return model.Item{}, classify("creating item", err)
	}
	return r.toModel(), nil
}

func (s *Store) UpdateItem(ctx context.Context, item model.Item) (model.Item, error) {
	res := s.db.WithContext(ctx).Model(&itemRow{}).Where("id = ?", item.ID).Updates(map[string]any{
		"name":           item.Name,
		"category":       item.Category,
		"total_quantity": item.TotalQuantity,
		"city":           item.City,
		"region_code":    item.Region,
		"address":        item.Address,
		"updated_at":     time.Now().UTC(),
	})
	if res.Error != nil {
		return model.Item{}, classify("updating item", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.Item{}, fmt.Errorf("%w: %s", model.ErrItemNotFound, item.ID)
	}
	return s.GetItem(ctx, item.ID)
}

func (s *Store) DeleteItem(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&itemRow{}, "id = ?", id)
	if res.Error != nil {
		return classify("deleting item", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", model.ErrItemNotFound, id)
	}
	return nil
}

func (s *Store) GetAttributes(ctx context.Context, itemID, category string) (model.Attributes, error) {
	var rows []attributeRow
	if err := s.db.WithContext(ctx).Where("item_id = ? AND category = ?", itemID, category).Find(&rows).Error; err != nil {
		return nil, classify("getting attributes", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	attrs := make(model.Attributes, len(rows))
	for _, r := range rows {
		attrs[r.Name] = r.Value
	}
	return attrs, nil
}

func (s *Store) ListAttributes(ctx context.Context, category string) (map[string]model.Attributes, error) {
	var rows []attributeRow
	if err := s.db.WithContext(ctx).Where("category = ?", category).Find(&rows).Error; err != nil {
		return nil, classify("listing attributes", err)
	}
	out := make(map[string]model.Attributes)
	for _, r := range rows {
		if out[r.ItemID] == nil {
			out[r.ItemID] = model.Attributes{}
		}
		out[r.ItemID][r.Name] = r.Value
	}
	return out, nil
}

func (s *Store) PutAttributes(ctx context.Context, itemID, category string, _ []string, attrs model.Attributes) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("item_id = ? AND category = ?", itemID, category).Delete(&attributeRow{}).Error; err != nil {
			return err
		}
		if len(attrs) == 0 {
			return nil
		}
		rows := make([]attributeRow, 0, len(attrs))
		for name, value := range attrs {
			rows = append(rows, attributeRow{ItemID: itemID, Category: category, Name: name, Value: value})
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return classify("storing attributes", err)
	}
	return nil
}

func (s *Store) DeleteAttributes(ctx context.Context, itemID, category string) error {
	err := s.db.WithContext(ctx).Where("item_id = ? AND category = ?", itemID, category).Delete(&attributeRow{}).Error
	if err != nil {
		return classify("deleting attributes", err)
	}
	return nil
}

func (s *Store) ListCommitments(ctx context.Context) ([]model.Commitment, error) {
	var rows []commitmentRow
	if err := s.db.WithContext(ctx).Order("start_date, id").Find(&rows).Error; err != nil {
		return nil, classify("listing commitments", err)
	}
	out := make([]model.Commitment, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *Store) GetCommitment(ctx context.Context, id string) (model.Commitment, error) {
	var r commitmentRow
	err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Commitment{}, fmt.Errorf("%w: %s", model.ErrCommitmentNotFound, id)
	}
	if err != nil {
		return model.Commitment{}, classify("getting commitment", err)
	}
	return r.toModel(), nil
}

func (s *Store) InsertCommitment(ctx context.Context, c model.Commitment) (model.Commitment, error) {
	r := commitmentFromModel(c)
	r.ID = uuid.NewString()
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		return model.Commitment{}, classify("creating commitment", err)
	}
	return r.toModel(), nil
}

func (s *Store) UpdateCommitment(ctx context.Context, c model.Commitment) (model.Commitment, error) {
	res := s.db.WithContext(ctx).Model(&commitmentRow{}).Where("id = ?", c.ID).Updates(map[string]any{
		"item_id":      c.ItemID,
		"quantity":     c.Quantity,
		"start_date":   c.StartDate,
		"end_date":     c.EndDate,
		"description":  c.Description,
		"city":         c.City,
		"region_code":  c.Region,
		"address":      c.Address,
		"counterparty": c.Counterparty,
		"updated_at":   time.Now().UTC(),
	})
	if res.Error != nil {
		return model.Commitment{}, classify("updating commitment", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.Commitment{}, fmt.Errorf("%w: %s", model.ErrCommitmentNotFound, c.ID)
	}
	return s.GetCommitment(ctx, c.ID)
}

func (s *Store) DeleteCommitment(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&commitmentRow{}, "id = ?", id)
	if res.Error != nil {
		return classify("deleting commitment", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", model.ErrCommitmentNotFound, id)
	}
	return nil
}

func (s *Store) AppendAudit(ctx context.Context, e model.AuditEntry) (int64, error) {
	r := auditRow{
		Action:    string(e.Action),
		Entity:    e.Table,
		EntityID:  e.EntityID,
		Actor:     e.Actor,
		Timestamp: e.Timestamp.UTC(),
	}
	var err error
	if r.BeforeData, err = encode(e.Before); err != nil {
		return 0, err
	}
	if r.AfterData, err = encode(e.After); err != nil {
		return 0, err
	}
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		return 0, classify("appending audit entry", err)
	}
	return r.ID, nil
}

func (s *Store) ListAudit(ctx context.Context, table, entityID string) ([]model.AuditEntry, error) {
	var rows []auditRow
	err := s.db.WithContext(ctx).
		Where("table_name = ? AND entity_id = ?", table, entityID).
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, classify("listing audit entries", err)
	}
	out := make([]model.AuditEntry, 0, len(rows))
	for _, r := range rows {
		e := model.AuditEntry{
			ID: r.ID, Action: model.AuditAction(r.Action), Table: r.Entity,
			EntityID: r.EntityID, Actor: r.Actor, Timestamp: r.Timestamp,
		}
		if e.Before, err = decode(r.BeforeData); err != nil {
			return nil, err
		}
		if e.After, err = decode(r.AfterData); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// classify maps driver errors onto the model error taxonomy.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return &model.DuplicateError{Field: pgErr.ConstraintName, Value: pgErr.Detail}
	}
	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) {
		return model.Unavailable(backendName, connHint, fmt.Errorf("%s: %w", op, err))
	}
	if errors.As(err, &pgErr) && (pgErr.Code == "28000" || pgErr.Code == "28P01") {
		return model.Unavailable(backendName, "check postgres.user and postgres.password", fmt.Errorf("%s: %w", op, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

func itemFromModel(it model.Item) itemRow {
	return itemRow{
		ID: it.ID, Name: it.Name, Category: it.Category, TotalQuantity: it.TotalQuantity,
		City: it.City, Region: it.Region, Address: it.Address,
	}
}

func (r itemRow) toModel() model.Item {
	return model.Item{
		ID: r.ID, Name: r.Name, Category: r.Category, TotalQuantity: r.TotalQuantity,
		City: r.City, Region: r.Region, Address: r.Address,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func commitmentFromModel(c model.Commitment) commitmentRow {
	return commitmentRow{
		ID: c.ID, ItemID: c.ItemID, Quantity: c.Quantity, StartDate: c.StartDate, EndDate: c.EndDate,
		Description: c.Description, City: c.City, Region: c.Region, Address: c.Address,
		Counterparty: c.Counterparty,
	}
}

func (r commitmentRow) toModel() model.Commitment {
	return model.Commitment{
		ID: r.ID, ItemID: r.ItemID, Quantity: r.Quantity, StartDate: r.StartDate, EndDate: r.EndDate,
		Description: r.Description, City: r.City, Region: r.Region, Address: r.Address,
		Counterparty: r.Counterparty, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func encode(m map[string]string) (*string, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	s := string(b)
	return &s, nil
}

func decode(s *string) (map[string]string, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(*s), &m); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return m, nil
}
