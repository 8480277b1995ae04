// Package storetest is a conformance suite for store.Backend implementations.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/rezervator/internal/dates"
	"github.com/erazemk/rezervator/internal/model"
	"github.com/erazemk/rezervator/internal/store"
)

// Run exercises every Backend method against fresh backends from newBackend.
func Run(t *testing.T, newBackend func(t *testing.T) store.Backend) {
	t.Run("Items", func(t *testing.T) { testItems(t, newBackend(t)) })
	t.Run("ItemNotFound", func(t *testing.T) { testItemNotFound(t, newBackend(t)) })
	t.Run("Commitments", func(t *testing.T) { testCommitments(t, newBackend(t)) })
	t.Run("CommitmentNotFound", func(t *testing.T) { testCommitmentNotFound(t, newBackend(t)) })
	t.Run("Attributes", func(t *testing.T) { testAttributes(t, newBackend(t)) })
	t.Run("Audit", func(t *testing.T) { testAudit(t, newBackend(t)) })
}

const missingID = "does-not-exist"

func item(name string) model.Item {
	return model.Item{
		Name: name, Category: "vehicle", TotalQuantity: 1,
		City: "Torino", Region: "TO", Address: "Corso Francia 10",
	}
}

func testItems(t *testing.T, b store.Backend) {
	ctx := context.Background()

	a, err := b.InsertItem(ctx, item("Van A"))
	require.NoError(t, err)
	require.NotEmpty(t, a.ID)
	assert.False(t, a.CreatedAt.IsZero())

	c, err := b.InsertItem(ctx, item("Van B"))
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, c.ID)

	got, err := b.GetItem(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Van A", got.Name)
	assert.Equal(t, "vehicle", got.Category)
	assert.Equal(t, 1, got.TotalQuantity)
	assert.Equal(t, "Corso Francia 10", got.Address)

	got.TotalQuantity = 4
	got.City = "Milano"
	got.Region = "MI"
	updated, err := b.UpdateItem(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, 4, updated.TotalQuantity)
	assert.Equal(t, "Milano", updated.City)

	items, err := b.ListItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	require.NoError(t, b.DeleteItem(ctx, a.ID))
	items, err = b.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, c.ID, items[0].ID)
}

func testItemNotFound(t *testing.T, b store.Backend) {
	ctx := context.Background()

	_, err := b.GetItem(ctx, missingID)
	assert.ErrorIs(t, err, model.ErrItemNotFound)

	ghost := item("Ghost")
	ghost.ID = missingID
	_, err = b.UpdateItem(ctx, ghost)
	assert.ErrorIs(t, err, model.ErrItemNotFound)

	assert.ErrorIs(t, b.DeleteItem(ctx, missingID), model.ErrItemNotFound)
}

func testCommitments(t *testing.T, b store.Backend) {
	ctx := context.Background()

	it, err := b.InsertItem(ctx, item("Generator"))
	require.NoError(t, err)

	in := model.Commitment{
		ItemID: it.ID, Quantity: 1,
		StartDate: dates.MustParse("2024-06-01"), EndDate: dates.MustParse("2024-06-05"),
		Description: "Festival", City: "Asti", Region: "AT", Counterparty: "Pro Loco",
	}
	c, err := b.InsertCommitment(ctx, in)
	require.NoError(t, err)
	require.NotEmpty(t, c.ID)

	got, err := b.GetCommitment(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, it.ID, got.ItemID)
	assert.Equal(t, dates.MustParse("2024-06-01"), got.StartDate)
	assert.Equal(t, dates.MustParse("2024-06-05"), got.EndDate)
	assert.Equal(t, "Festival", got.Description)
	assert.Equal(t, "Pro Loco", got.Counterparty)
	assert.Equal(t, "AT", got.Region)

	got.Quantity = 2
	got.EndDate = dates.MustParse("2024-06-07")
	updated, err := b.UpdateCommitment(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Quantity)
	assert.Equal(t, dates.MustParse("2024-06-07"), updated.EndDate)

	list, err := b.ListCommitments(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, c.ID, list[0].ID)

	require.NoError(t, b.DeleteCommitment(ctx, c.ID))
	list, err = b.ListCommitments(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testCommitmentNotFound(t *testing.T, b store.Backend) {
	ctx := context.Background()

	_, err := b.GetCommitment(ctx, missingID)
	assert.ErrorIs(t, err, model.ErrCommitmentNotFound)
	assert.ErrorIs(t, b.DeleteCommitment(ctx, missingID), model.ErrCommitmentNotFound)
}

func testAttributes(t *testing.T, b store.Backend) {
	ctx := context.Background()
	fields := []string{"plate", "brand", "model"}

	a, err := b.InsertItem(ctx, item("Van A"))
	require.NoError(t, err)
	c, err := b.InsertItem(ctx, item("Van B"))
	require.NoError(t, err)

	none, err := b.GetAttributes(ctx, a.ID, "vehicle")
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, b.PutAttributes(ctx, a.ID, "vehicle", fields, model.Attributes{"plate": "AB123CD", "brand": "Fiat", "model": "Ducato"}))
	require.NoError(t, b.PutAttributes(ctx, c.ID, "vehicle", fields, model.Attributes{"plate": "EF456GH", "brand": "Iveco", "model": "Daily"}))

	got, err := b.GetAttributes(ctx, a.ID, "vehicle")
	require.NoError(t, err)
	assert.Equal(t, "AB123CD", got["plate"])
	assert.Equal(t, "Ducato", got["model"])

	require.NoError(t, b.PutAttributes(ctx, a.ID, "vehicle", fields, model.Attributes{"plate": "ZZ999ZZ", "brand": "Fiat", "model": "Doblo"}))
	got, err = b.GetAttributes(ctx, a.ID, "vehicle")
	require.NoError(t, err)
	assert.Equal(t, "ZZ999ZZ", got["plate"])

	all, err := b.ListAttributes(ctx, "vehicle")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "EF456GH", all[c.ID]["plate"])

	require.NoError(t, b.DeleteAttributes(ctx, a.ID, "vehicle"))
	require.NoError(t, b.DeleteAttributes(ctx, a.ID, "vehicle"))
	got, err = b.GetAttributes(ctx, a.ID, "vehicle")
	require.NoError(t, err)
	assert.Empty(t, got)

	other, err := b.ListAttributes(ctx, "tent")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func testAudit(t *testing.T, b store.Backend) {
	ctx := context.Background()
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	first, err := b.AppendAudit(ctx, model.AuditEntry{
		Action: model.AuditCreate, Table: model.TableItems, EntityID: "7", Actor: "ana",
		Timestamp: at, After: map[string]string{"name": "Van"},
	})
	require.NoError(t, err)
	_, err = b.AppendAudit(ctx, model.AuditEntry{
		Action: model.AuditCreate, Table: model.TableCommitments, EntityID: "7", Actor: "ana",
		Timestamp: at, After: map[string]string{"quantity": "1"},
	})
	require.NoError(t, err)
	second, err := b.AppendAudit(ctx, model.AuditEntry{
		Action: model.AuditUpdate, Table: model.TableItems, EntityID: "7", Actor: "bor",
		Timestamp: at.Add(time.Minute),
		Before:    map[string]string{"name": "Van"}, After: map[string]string{"name": "Big van"},
	})
	require.NoError(t, err)
	assert.Greater(t, second, first)

	history, err := b.ListAudit(ctx, model.TableItems, "7")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.AuditUpdate, history[0].Action)
	assert.Equal(t, second, history[0].ID)
	assert.Equal(t, "bor", history[0].Actor)
	assert.Equal(t, "Van", history[0].Before["name"])
	assert.Equal(t, "Big van", history[0].After["name"])
	assert.True(t, history[0].Timestamp.Equal(at.Add(time.Minute)))
	assert.Nil(t, history[1].Before)

	none, err := b.ListAudit(ctx, model.TableItems, missingID)
	require.NoError(t, err)
	assert.Empty(t, none)
}
