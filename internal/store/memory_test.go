package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folio/portfolio-engine/internal/model"
)

func newAsset(id, userID, ticker string) *model.Asset {
	return &model.Asset{
		ID:               id,
		UserID:           userID,
		Ticker:           ticker,
		Name:             ticker,
		TargetPercentage: decimal.NewFromInt(50),
	}
}

func TestMemoryStore_CreateAssetDuplicateTicker(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, ms.CreateAsset(ctx, newAsset("a1", "u1", "VOO")))
	err := ms.CreateAsset(ctx, newAsset("a2", "u1", "VOO"))
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, ms.CreateAsset(ctx, newAsset("a3", "u2", "VOO")))
}

func TestMemoryStore_ListPositionsSortedWithHoldings(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, ms.CreateAsset(ctx, newAsset("a1", "u1", "VOO")))
	require.NoError(t, ms.CreateAsset(ctx, newAsset("a2", "u1", "AAPL")))
	require.NoError(t, ms.WithTx(ctx, func(tx Tx) error {
		return tx.UpsertHolding(ctx, &model.Holding{AssetID: "a1", UserID: "u1", Quantity: decimal.NewFromInt(3)})
	}))

	positions, err := ms.ListPositions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, "AAPL", positions[0].Asset.Ticker)
	assert.Nil(t, positions[0].Holding)
	require.NotNil(t, positions[1].Holding)
	assert.Equal(t, "3", positions[1].Holding.Quantity.String())

	// Returned values are copies.
	positions[1].Holding.Quantity = decimal.NewFromInt(99)
	again, err := ms.ListPositions(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "3", again[1].Holding.Quantity.String())
}

func TestMemoryStore_WithTxRollsBackEveryWrite(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, ms.CreateAsset(ctx, newAsset("a1", "u1", "VOO")))
	require.NoError(t, ms.WithTx(ctx, func(tx Tx) error {
		return tx.UpsertHolding(ctx, &model.Holding{AssetID: "a1", UserID: "u1", Quantity: decimal.NewFromInt(1)})
	}))

	boom := errors.New("boom")
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	err := ms.WithTx(ctx, func(tx Tx) error {
		if err := tx.InsertTransaction(ctx, &model.Transaction{ID: "t1", UserID: "u1", AssetID: "a1", Type: model.TransactionBuy}); err != nil {
			return err
		}
		if err := tx.UpsertHolding(ctx, &model.Holding{AssetID: "a1", UserID: "u1", Quantity: decimal.NewFromInt(5)}); err != nil {
			return err
		}
		if err := tx.SetAssetPrice(ctx, "u1", "a1", 100, day); err != nil {
			return err
		}
		snap := &model.PortfolioSnapshot{UserID: "u1", Date: day, TotalValueCents: 500}
		if _, err := tx.UpsertSnapshot(ctx, snap); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	txs, err := ms.ListTransactions(ctx, "u1", "")
	require.NoError(t, err)
	assert.Empty(t, txs)

	positions, err := ms.ListPositions(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "1", positions[0].Holding.Quantity.String())
	assert.Nil(t, positions[0].Asset.CurrentPrice)

	snaps, err := ms.ListSnapshots(ctx, "u1", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestMemoryStore_LockHolding(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, ms.CreateAsset(ctx, newAsset("a1", "u1", "VOO")))

	require.NoError(t, ms.WithTx(ctx, func(tx Tx) error {
		h, err := tx.LockHolding(ctx, "a1")
		assert.NoError(t, err)
		assert.Nil(t, h, "no holding yet")

		_, err = tx.LockHolding(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	}))
}

func TestMemoryStore_SetAssetPriceChecksOwner(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, ms.CreateAsset(ctx, newAsset("a1", "u1", "VOO")))

	err := ms.WithTx(ctx, func(tx Tx) error {
		return tx.SetAssetPrice(ctx, "u2", "a1", 100, time.Now())
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_UpsertSnapshotPerDay(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var firstID string
	require.NoError(t, ms.WithTx(ctx, func(tx Tx) error {
		snap := &model.PortfolioSnapshot{UserID: "u1", Date: day, TotalValueCents: 100}
		created, err := tx.UpsertSnapshot(ctx, snap)
		require.NoError(t, err)
		assert.True(t, created)
		firstID = snap.ID
		return tx.ReplaceSnapshotAssets(ctx, snap.ID, []model.SnapshotAsset{{AssetID: "a1", Ticker: "VOO"}, {AssetID: "a2", Ticker: "GLD"}})
	}))

	require.NoError(t, ms.WithTx(ctx, func(tx Tx) error {
		snap := &model.PortfolioSnapshot{UserID: "u1", Date: day, TotalValueCents: 200}
		created, err := tx.UpsertSnapshot(ctx, snap)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, firstID, snap.ID)
		return tx.ReplaceSnapshotAssets(ctx, snap.ID, []model.SnapshotAsset{{AssetID: "a1", Ticker: "VOO"}})
	}))

	got, err := ms.GetSnapshot(ctx, firstID)
	require.NoError(t, err)
	assert.Equal(t, int64(200), got.TotalValueCents)
	require.Len(t, got.Assets, 1)
	assert.Equal(t, firstID, got.Assets[0].SnapshotID)
	assert.NotEmpty(t, got.Assets[0].ID)
}
