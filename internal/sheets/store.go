package sheets

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erazemk/rezervator/internal/lock"
	"github.com/erazemk/rezervator/internal/model"
	"github.com/erazemk/rezervator/internal/resilience"
	"github.com/erazemk/rezervator/internal/store"
)

var (
	itemHeader = []string{"id", "name", "category", "total_quantity", "city", "region_code", "address",
		"created_at", "updated_at"}
	commitmentHeader = []string{"id", "item_id", "quantity", "start_date", "end_date", "description", "city",
		"region_code", "address", "counterparty", "created_at", "updated_at"}
	auditHeader = []string{"id", "action", "table_name", "entity_id", "actor", "timestamp", "before", "after"}
)

const itemIDColumn = "item_id"

// Options configures a Store. Zero values get defaults.
type Options struct {
	CacheTTL   time.Duration
	Resilience resilience.Options
	// Locker serializes writes per sheet, since rows are addressed by index.
	// Processes sharing a sheet must share the Locker. Defaults to an
	// in-process lock.
	Locker lock.Locker
}

// Store implements store.Backend on a sheet Client. Listings are served from a
// short-lived cache that every successful write through this Store clears.
// Every write reads, locates and writes its row while holding the sheet's
// lock, so a row index is never used after another writer shifted the rows.
type Store struct {
	client Client
	opts   Options
	log    *zap.Logger

	items       *resilience.Cache[[]model.Item]
	commitments *resilience.Cache[[]model.Commitment]

	mu    sync.Mutex
	attrs map[string]*resilience.Cache[map[string]model.Attributes]
}

var (
	_ store.Backend = (*Store)(nil)
	_ store.Cached  = (*Store)(nil)
)

// New returns a Store over client. Call Init before first use.
func New(client Client, opts Options) *Store {
	if opts.Resilience.Clock == nil {
		opts.Resilience.Clock = resilience.RealClock()
	}
	if opts.Resilience.Logger == nil {
		opts.Resilience.Logger = zap.NewNop()
	}
	if opts.Locker == nil {
		opts.Locker = lock.NewLocal()
	}
	return &Store{
		client:      client,
		opts:        opts,
		log:         opts.Resilience.Logger,
		items:       resilience.NewCache[[]model.Item](model.TableItems, opts.CacheTTL, opts.Resilience),
		commitments: resilience.NewCache[[]model.Commitment](model.TableCommitments, opts.CacheTTL, opts.Resilience),
		attrs:       make(map[string]*resilience.Cache[map[string]model.Attributes]),
	}
}

// Init creates the item, commitment and audit sheets if they are missing.
func (s *Store) Init(ctx context.Context) error {
	for sheet, header := range map[string][]string{
		model.TableItems:       itemHeader,
		model.TableCommitments: commitmentHeader,
		model.TableAudit:       auditHeader,
	} {
		if err := s.client.EnsureSheet(ctx, sheet, header); err != nil {
			return fmt.Errorf("initialising sheets: %w", err)
		}
	}
	return nil
}

func (s *Store) Name() string { return backendName }

// InvalidateCache drops every cached listing so the next read goes to the
// sheets. Callers use it after taking a lock that other processes also write
// under.
func (s *Store) InvalidateCache() {
	s.items.Invalidate()
	s.commitments.Invalidate()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.attrs {
		c.Invalidate()
	}
}

func (s *Store) now() time.Time { return s.opts.Resilience.Clock.Now().UTC() }

// Items

func (s *Store) ListItems(ctx context.Context) ([]model.Item, error) {
	items, err := s.items.GetOrLoad(ctx, s.loadItems)
	if err != nil {
		return nil, err
	}
	return slices.Clone(items), nil
}

func (s *Store) loadItems(ctx context.Context) ([]model.Item, error) {
	t, err := s.read(ctx, model.TableItems)
	if err != nil {
		return nil, err
	}
	var out []model.Item
	for i, row := range t.records() {
		it, err := t.item(row)
		if err != nil {
			return nil, fmt.Errorf("parsing row %d of sheet %s: %w", i+1, model.TableItems, err)
		}
		out = append(out, it)
	}
	return out, nil
}

func (s *Store) GetItem(ctx context.Context, id string) (model.Item, error) {
	items, err := s.ListItems(ctx)
	if err != nil {
		return model.Item{}, err
	}
	for _, it := range items {
		if it.ID == id {
			return it, nil
		}
	}
	return model.Item{}, fmt.Errorf("%w: %s", model.ErrItemNotFound, id)
}

func (s *Store) InsertItem(ctx context.Context, item model.Item) (model.Item, error) {
	item.ID = uuid.NewString()
	item.CreatedAt = s.now()
	item.UpdatedAt = item.CreatedAt

	unlock, err := s.lockSheet(ctx, model.TableItems)
	if err != nil {
		return model.Item{}, err
	}
	defer unlock()

	defer s.items.Invalidate()
	if err := s.client.Append(ctx, model.TableItems, encode(itemHeader, itemValues(item))); err != nil {
		return model.Item{}, fmt.Errorf("creating item: %w", err)
	}
	return item, nil
}

func (s *Store) UpdateItem(ctx context.Context, item model.Item) (model.Item, error) {
	unlock, err := s.lockSheet(ctx, model.TableItems)
	if err != nil {
		return model.Item{}, err
	}
	defer unlock()

	t, err := s.read(ctx, model.TableItems)
	if err != nil {
		return model.Item{}, err
	}
	idx := t.find("id", item.ID)
	if idx < 0 {
		return model.Item{}, fmt.Errorf("%w: %s", model.ErrItemNotFound, item.ID)
	}
	existing, err := t.item(t.rows[idx])
	if err != nil {
		return model.Item{}, fmt.Errorf("parsing item %s: %w", item.ID, err)
	}
	item.CreatedAt = existing.CreatedAt
	item.UpdatedAt = s.now()

	defer s.items.Invalidate()
	if err := s.client.Update(ctx, model.TableItems, idx, encode(t.header, itemValues(item))); err != nil {
		return model.Item{}, fmt.Errorf("updating item: %w", err)
	}
	return item, nil
}

func (s *Store) DeleteItem(ctx context.Context, id string) error {
	defer s.items.Invalidate()
	return s.deleteRow(ctx, model.TableItems, "id", id, model.ErrItemNotFound)
}

// Attributes

func (s *Store) attrCache(category string) *resilience.Cache[map[string]model.Attributes] {
	sheet := SheetName(category)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.attrs[sheet]
	if !ok {
		c = resilience.NewCache[map[string]model.Attributes](sheet, s.opts.CacheTTL, s.opts.Resilience)
		s.attrs[sheet] = c
	}
	return c
}

func (s *Store) GetAttributes(ctx context.Context, itemID, category string) (model.Attributes, error) {
	all, err := s.ListAttributes(ctx, category)
	if err != nil {
		return nil, err
	}
	return all[itemID].Clone(), nil
}

func (s *Store) ListAttributes(ctx context.Context, category string) (map[string]model.Attributes, error) {
	sheet := SheetName(category)
	all, err := s.attrCache(category).GetOrLoad(ctx, func(ctx context.Context) (map[string]model.Attributes, error) {
		t, err := s.read(ctx, sheet)
		if err != nil {
			return nil, err
		}
		out := make(map[string]model.Attributes)
		for _, row := range t.records() {
			id := t.get(row, itemIDColumn)
			if id == "" {
				continue
			}
			attrs := model.Attributes{}
			for i, name := range t.header {
				if name == itemIDColumn || name == "" || i >= len(row) || row[i] == "" {
					continue
				}
				attrs[name] = row[i]
			}
			out[id] = attrs
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Attributes, len(all))
	for id, attrs := range all {
		out[id] = attrs.Clone()
	}
	return out, nil
}

// PutAttributes makes sure the category sheet exists with a column for every
// field, then writes or replaces the item's row.
func (s *Store) PutAttributes(ctx context.Context, itemID, category string, fields []string, attrs model.Attributes) error {
	sheet := SheetName(category)
	header := attributeHeader(fields, attrs)

	unlock, err := s.lockSheet(ctx, sheet)
	if err != nil {
		return err
	}
	defer unlock()
	defer s.attrCache(category).Invalidate()

	if err := s.client.EnsureSheet(ctx, sheet, header); err != nil {
		return fmt.Errorf("preparing attribute sheet: %w", err)
	}
	t, err := s.read(ctx, sheet)
	if err != nil {
		return err
	}

	if merged, grew := mergeHeader(t.header, header); grew {
		s.log.Info("extending attribute sheet header", zap.String("sheet", sheet), zap.Strings("columns", merged))
		if err := s.client.Update(ctx, sheet, 0, merged); err != nil {
			return fmt.Errorf("extending attribute sheet header: %w", err)
		}
		t.header = merged
	}

	values := map[string]string{itemIDColumn: itemID}
	for k, v := range attrs {
		values[k] = v
	}
	row := encode(t.header, values)

	if idx := t.find(itemIDColumn, itemID); idx >= 0 {
		if err := s.client.Update(ctx, sheet, idx, row); err != nil {
			return fmt.Errorf("updating attributes: %w", err)
		}
		return nil
	}
	if err := s.client.Append(ctx, sheet, row); err != nil {
		return fmt.Errorf("storing attributes: %w", err)
	}
	return nil
}

func (s *Store) DeleteAttributes(ctx context.Context, itemID, category string) error {
	defer s.attrCache(category).Invalidate()
	err := s.deleteRow(ctx, SheetName(category), itemIDColumn, itemID, errNoRow)
	if errors.Is(err, errNoRow) {
		return nil
	}
	return err
}

var errNoRow = errors.New("no such row")

// attributeHeader is item_id, the schema fields in order, then any other keys sorted.
func attributeHeader(fields []string, attrs model.Attributes) []string {
	header := append([]string{itemIDColumn}, fields...)
	var extra []string
	for k := range attrs {
		if !slices.Contains(header, k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(header, extra...)
}

// mergeHeader appends the columns of want missing from have.
func mergeHeader(have, want []string) ([]string, bool) {
	merged := slices.Clone(have)
	for _, col := range want {
		if !slices.Contains(merged, col) {
			merged = append(merged, col)
		}
	}
	return merged, len(merged) != len(have)
}

// Commitments

func (s *Store) ListCommitments(ctx context.Context) ([]model.Commitment, error) {
	cs, err := s.commitments.GetOrLoad(ctx, s.loadCommitments)
	if err != nil {
		return nil, err
	}
	return slices.Clone(cs), nil
}

func (s *Store) loadCommitments(ctx context.Context) ([]model.Commitment, error) {
	t, err := s.read(ctx, model.TableCommitments)
	if err != nil {
		return nil, err
	}
	var out []model.Commitment
	for i, row := range t.records() {
		c, err := t.commitment(row)
		if err != nil {
			return nil, fmt.Errorf("parsing row %d of sheet %s: %w", i+1, model.TableCommitments, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) GetCommitment(ctx context.Context, id string) (model.Commitment, error) {
	cs, err := s.ListCommitments(ctx)
	if err != nil {
		return model.Commitment{}, err
	}
	for _, c := range cs {
		if c.ID == id {
			return c, nil
		}
	}
	return model.Commitment{}, fmt.Errorf("%w: %s", model.ErrCommitmentNotFound, id)
}

func (s *Store) InsertCommitment(ctx context.Context, c model.Commitment) (model.Commitment, error) {
	c.ID = uuid.NewString()
	c.CreatedAt = s.now()
	c.UpdatedAt = c.CreatedAt

	unlock, err := s.lockSheet(ctx, model.TableCommitments)
	if err != nil {
		return model.Commitment{}, err
	}
	defer unlock()

	defer s.commitments.Invalidate()
	if err := s.client.Append(ctx, model.TableCommitments, encode(commitmentHeader, commitmentValues(c))); err != nil {
		return model.Commitment{}, fmt.Errorf("creating commitment: %w", err)
	}
	return c, nil
}

func (s *Store) UpdateCommitment(ctx context.Context, c model.Commitment) (model.Commitment, error) {
	unlock, err := s.lockSheet(ctx, model.TableCommitments)
	if err != nil {
		return model.Commitment{}, err
	}
	defer unlock()

	t, err := s.read(ctx, model.TableCommitments)
	if err != nil {
		return model.Commitment{}, err
	}
	idx := t.find("id", c.ID)
	if idx < 0 {
		return model.Commitment{}, fmt.Errorf("%w: %s", model.ErrCommitmentNotFound, c.ID)
	}
	existing, err := t.commitment(t.rows[idx])
	if err != nil {
		return model.Commitment{}, fmt.Errorf("parsing commitment %s: %w", c.ID, err)
	}
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = s.now()

	defer s.commitments.Invalidate()
	if err := s.client.Update(ctx, model.TableCommitments, idx, encode(t.header, commitmentValues(c))); err != nil {
		return model.Commitment{}, fmt.Errorf("updating commitment: %w", err)
	}
	return c, nil
}

func (s *Store) DeleteCommitment(ctx context.Context, id string) error {
	defer s.commitments.Invalidate()
	return s.deleteRow(ctx, model.TableCommitments, "id", id, model.ErrCommitmentNotFound)
}

// Audit

// AppendAudit numbers the entry one past the highest id in the sheet, under
// the audit sheet's lock so ids do not collide.
func (s *Store) AppendAudit(ctx context.Context, e model.AuditEntry) (int64, error) {
	unlock, err := s.lockSheet(ctx, model.TableAudit)
	if err != nil {
		return 0, err
	}
	defer unlock()

	t, err := s.read(ctx, model.TableAudit)
	if err != nil {
		return 0, err
	}
	var last int64
	for _, row := range t.records() {
		if id, err := strconv.ParseInt(t.get(row, "id"), 10, 64); err == nil && id > last {
			last = id
		}
	}
	e.ID = last + 1

	before, err := snapshot(e.Before)
	if err != nil {
		return 0, err
	}
	after, err := snapshot(e.After)
	if err != nil {
		return 0, err
	}
	header := t.header
	if len(header) == 0 {
		header = auditHeader
	}
	row := encode(header, map[string]string{
		"id":         strconv.FormatInt(e.ID, 10),
		"action":     string(e.Action),
		"table_name": e.Table,
		"entity_id":  e.EntityID,
		"actor":      e.Actor,
		"timestamp":  e.Timestamp.UTC().Format(time.RFC3339),
		"before":     before,
		"after":      after,
	})
	if err := s.client.Append(ctx, model.TableAudit, row); err != nil {
		return 0, fmt.Errorf("appending audit entry: %w", err)
	}
	return e.ID, nil
}

func (s *Store) ListAudit(ctx context.Context, table, entityID string) ([]model.AuditEntry, error) {
	t, err := s.read(ctx, model.TableAudit)
	if err != nil {
		return nil, err
	}
	var out []model.AuditEntry
	for _, row := range t.records() {
		if t.get(row, "table_name") != table || t.get(row, "entity_id") != entityID {
			continue
		}
		e, err := t.audit(row)
		if err != nil {
			return nil, fmt.Errorf("parsing audit entry: %w", err)
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// Sheet access

func (s *Store) read(ctx context.Context, sheet string) (table, error) {
	rows, err := s.client.Rows(ctx, sheet)
	if errors.Is(err, ErrSheetNotFound) {
		return table{}, nil
	}
	if err != nil {
		return table{}, err
	}
	t := table{rows: rows}
	if len(rows) > 0 {
		t.header = make([]string, len(rows[0]))
		for i, h := range rows[0] {
			t.header[i] = strings.TrimSpace(h)
		}
	}
	return t, nil
}

// lockSheet takes the write lock of sheet.
func (s *Store) lockSheet(ctx context.Context, sheet string) (func(), error) {
	unlock, err := s.opts.Locker.Lock(ctx, "sheet:"+sheet)
	if err != nil {
		return nil, fmt.Errorf("locking sheet %s: %w", sheet, err)
	}
	return unlock, nil
}

func (s *Store) deleteRow(ctx context.Context, sheet, column, id string, notFound error) error {
	unlock, err := s.lockSheet(ctx, sheet)
	if err != nil {
		return err
	}
	defer unlock()

	t, err := s.read(ctx, sheet)
	if err != nil {
		return err
	}
	idx := t.find(column, id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	if err := s.client.DeleteRow(ctx, sheet, idx); err != nil {
		return fmt.Errorf("deleting row from %s: %w", sheet, err)
	}
	return nil
}
