package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbot/strategy"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func row(id string) strategy.Params {
	return strategy.Params{
		StrategyID:   id,
		StrategyType: "grid",
		Active:       "true",
		Mode:         "STOCK",
		Symbol:       "AAPL",
		Exchange:     "SMART",
		Currency:     "USD",
		InitialPrice: "100",
		Step:         "2",
		OrderQty:     "5",
		BuyOrders:    "3",
		SellOrders:   "2",
		MaxLongRisk:  "10000",
		MaxShortRisk: "10000",
	}
}

func TestUpsertAndLoadKeepsInsertionOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, row("2")))
	require.NoError(t, s.Upsert(ctx, row("1")))

	rows, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2", rows[0].StrategyID)
	assert.Equal(t, "1", rows[1].StrategyID)
}

func TestUpsertReplacesExistingRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, row("1")))
	updated := row("1")
	updated.InitialPrice = "150"
	updated.Active = "false"
	require.NoError(t, s.Upsert(ctx, updated))

	rows, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "150", rows[0].InitialPrice)
	assert.Equal(t, "false", rows[0].Active)
}

func TestDeleteRemovesRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, row("1")))
	require.NoError(t, s.Delete(ctx, "1"))
	require.NoError(t, s.Delete(ctx, "missing"))

	rows, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestConfirmStampsRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, row("1")))
	require.NoError(t, s.Confirm(ctx, "1", "1750000000"))

	rows, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1750000000", rows[0].Confirmed)
}

func TestLoadedRowsParse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, row("7")))

	rows, err := s.Load(ctx)
	require.NoError(t, err)
	snaps, errs := strategy.ParseAll(rows)
	assert.Empty(t, errs)
	require.Len(t, snaps, 1)
	assert.Equal(t, uint8(7), snaps[0].StrategyID)
}
