//go:build integration

// Run with a scratch database and Redis:
//
//	TEST_DATABASE_URL=postgres://... TEST_REDIS_URL=redis://... go test -tags integration ./internal/store/
package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folio/portfolio-engine/internal/model"
)

func newPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	st := NewPostgresStore(pool)
	require.NoError(t, st.Migrate(ctx))
	return st
}

// pgAsset creates an asset for a fresh user so runs never collide.
func pgAsset(t *testing.T, st *PostgresStore, ticker string) *model.Asset {
	t.Helper()
	a := newAsset(uuid.New().String(), "u-"+uuid.New().String(), ticker)
	a.CreatedAt = time.Now().UTC()
	require.NoError(t, st.CreateAsset(context.Background(), a))
	return a
}

func TestPostgres_DuplicateTicker(t *testing.T) {
	st := newPostgres(t)
	a := pgAsset(t, st, "VOO")

	dup := newAsset(uuid.New().String(), a.UserID, "VOO")
	assert.ErrorIs(t, st.CreateAsset(context.Background(), dup), ErrDuplicate)
}

func TestPostgres_LockHoldingAndCommit(t *testing.T) {
	st := newPostgres(t)
	ctx := context.Background()
	a := pgAsset(t, st, "VOO")
	now := time.Now().UTC()

	require.NoError(t, st.WithTx(ctx, func(tx Tx) error {
		h, err := tx.LockHolding(ctx, a.ID)
		require.NoError(t, err)
		assert.Nil(t, h)

		if err := tx.InsertTransaction(ctx, &model.Transaction{
			ID: uuid.New().String(), UserID: a.UserID, AssetID: a.ID, Type: model.TransactionBuy,
			Date: now, Quantity: decimal.RequireFromString("10.12345678"),
			PriceCents: 45125, TotalCents: 456820, CreatedAt: now,
		}); err != nil {
			return err
		}
		if err := tx.UpsertHolding(ctx, &model.Holding{
			AssetID: a.ID, UserID: a.UserID, Quantity: decimal.RequireFromString("10.12345678"), UpdatedAt: now,
		}); err != nil {
			return err
		}
		return tx.SetAssetPrice(ctx, a.UserID, a.ID, 45125, now)
	}))

	positions, err := st.ListPositions(ctx, a.UserID)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.NotNil(t, positions[0].Holding)
	assert.Equal(t, "10.12345678", positions[0].Holding.Quantity.String())
	require.NotNil(t, positions[0].Asset.CurrentPrice)
	assert.Equal(t, int64(45125), *positions[0].Asset.CurrentPrice)

	require.NoError(t, st.WithTx(ctx, func(tx Tx) error {
		h, err := tx.LockHolding(ctx, a.ID)
		require.NoError(t, err)
		require.NotNil(t, h)
		assert.Equal(t, "10.12345678", h.Quantity.String())
		assert.Equal(t, a.UserID, h.UserID)
		return nil
	}))

	txs, err := st.ListTransactions(ctx, a.UserID, "")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(456820), txs[0].TotalCents)
}

func TestPostgres_FailedTxRollsBack(t *testing.T) {
	st := newPostgres(t)
	ctx := context.Background()
	a := pgAsset(t, st, "VOO")

	err := st.WithTx(ctx, func(tx Tx) error {
		if err := tx.UpsertHolding(ctx, &model.Holding{
			AssetID: a.ID, UserID: a.UserID, Quantity: decimal.NewFromInt(5), UpdatedAt: time.Now(),
		}); err != nil {
			return err
		}
		return tx.SetAssetPrice(ctx, a.UserID, "missing", 1, time.Now())
	})
	require.ErrorIs(t, err, ErrNotFound)

	positions, err := st.ListPositions(ctx, a.UserID)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Nil(t, positions[0].Holding)

	err = st.WithTx(ctx, func(tx Tx) error {
		_, err := tx.LockHolding(ctx, "missing")
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgres_SnapshotUpsertAndDayRange(t *testing.T) {
	st := newPostgres(t)
	ctx := context.Background()
	userID := "u-" + uuid.New().String()
	day := func(s string) time.Time {
		d, err := time.Parse(time.DateOnly, s)
		require.NoError(t, err)
		return d
	}

	upsert := func(date string, total int64) (*model.PortfolioSnapshot, bool) {
		snap := &model.PortfolioSnapshot{
			ID: uuid.New().String(), UserID: userID, Date: day(date),
			TotalValueCents: total, CreatedAt: time.Now().UTC(),
		}
		var created bool
		require.NoError(t, st.WithTx(ctx, func(tx Tx) error {
			var err error
			if created, err = tx.UpsertSnapshot(ctx, snap); err != nil {
				return err
			}
			return tx.ReplaceSnapshotAssets(ctx, snap.ID, []model.SnapshotAsset{{
				ID: uuid.New().String(), AssetID: "a1", Ticker: "VOO", Name: "VOO",
				Quantity: decimal.NewFromInt(1), PriceCents: total, ValueCents: total,
				Percentage: decimal.NewFromInt(100), TargetPercentage: decimal.NewFromInt(100),
			}})
		}))
		return snap, created
	}

	first, created := upsert("2024-03-14", 1000)
	assert.True(t, created)
	again, created := upsert("2024-03-14", 2500)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	upsert("2024-03-15", 3000)
	upsert("2024-03-16", 4000)

	got, err := st.GetSnapshot(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), got.TotalValueCents)
	assert.Equal(t, "2024-03-14", got.Date.Format(time.DateOnly))
	require.Len(t, got.Assets, 1)
	assert.Equal(t, int64(2500), got.Assets[0].ValueCents)

	all, err := st.ListSnapshots(ctx, userID, nil, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2024-03-16", all[0].Date.Format(time.DateOnly))
	assert.Equal(t, "2024-03-14", all[2].Date.Format(time.DateOnly))

	from, to := day("2024-03-15"), day("2024-03-15")
	ranged, err := st.ListSnapshots(ctx, userID, &from, &to)
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, int64(3000), ranged[0].TotalValueCents)

	since, err := st.ListSnapshots(ctx, userID, &from, nil)
	require.NoError(t, err)
	assert.Len(t, since, 2)
}

func TestRedisCache_SetGetDelete(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opt)
	t.Cleanup(func() { _ = rdb.Close() })

	c := NewRedisCache(rdb)
	ctx := context.Background()
	key := "test:" + uuid.New().String()

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)

	c.Set(ctx, key, []byte(`{"v":1}`), time.Minute)
	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"v":1}`), got)

	c.Delete(ctx, key)
	_, ok = c.Get(ctx, key)
	assert.False(t, ok)
}
