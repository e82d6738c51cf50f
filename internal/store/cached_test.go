package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folio/portfolio-engine/internal/model"
)

// countingStore counts primary reads so tests can see cache hits.
type countingStore struct {
	*MemoryStore
	positionReads int
	assetReads    int
}

func (c *countingStore) ListPositions(ctx context.Context, userID string) ([]model.AssetPosition, error) {
	c.positionReads++
	return c.MemoryStore.ListPositions(ctx, userID)
}

func (c *countingStore) GetAsset(ctx context.Context, id string) (*model.Asset, error) {
	c.assetReads++
	return c.MemoryStore.GetAsset(ctx, id)
}

func newCached(t *testing.T) (*CachedStore, *countingStore) {
	t.Helper()
	primary := &countingStore{MemoryStore: NewMemoryStore()}
	return NewCachedStore(primary, NewLocalCache(time.Minute), time.Minute), primary
}

func TestCachedStore_ReadThrough(t *testing.T) {
	cs, primary := newCached(t)
	ctx := context.Background()
	require.NoError(t, cs.CreateAsset(ctx, newAsset("a1", "u1", "VOO")))

	for i := 0; i < 3; i++ {
		positions, err := cs.ListPositions(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, positions, 1)
		assert.True(t, positions[0].Asset.TargetPercentage.Equal(decimal.NewFromInt(50)))

		_, err = cs.GetAsset(ctx, "a1")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, primary.positionReads)
	assert.Equal(t, 1, primary.assetReads)
}

func TestCachedStore_CommittedTxInvalidates(t *testing.T) {
	cs, primary := newCached(t)
	ctx := context.Background()
	require.NoError(t, cs.CreateAsset(ctx, newAsset("a1", "u1", "VOO")))
	_, err := cs.ListPositions(ctx, "u1")
	require.NoError(t, err)
	_, err = cs.GetAsset(ctx, "a1")
	require.NoError(t, err)

	require.NoError(t, cs.WithTx(ctx, func(tx Tx) error {
		if err := tx.UpsertHolding(ctx, &model.Holding{AssetID: "a1", UserID: "u1", Quantity: decimal.NewFromInt(2)}); err != nil {
			return err
		}
		return tx.SetAssetPrice(ctx, "u1", "a1", 12345, time.Now())
	}))

	positions, err := cs.ListPositions(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, positions[0].Holding)
	assert.Equal(t, "2", positions[0].Holding.Quantity.String())
	assert.Equal(t, 2, primary.positionReads)

	a, err := cs.GetAsset(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, a.CurrentPrice)
	assert.Equal(t, int64(12345), *a.CurrentPrice)
	assert.Equal(t, 2, primary.assetReads)
}

func TestCachedStore_FailedTxKeepsCache(t *testing.T) {
	cs, primary := newCached(t)
	ctx := context.Background()
	require.NoError(t, cs.CreateAsset(ctx, newAsset("a1", "u1", "VOO")))
	_, err := cs.ListPositions(ctx, "u1")
	require.NoError(t, err)

	err = cs.WithTx(ctx, func(tx Tx) error {
		return tx.SetAssetPrice(ctx, "u1", "missing", 1, time.Now())
	})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = cs.ListPositions(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, primary.positionReads)
}

// interleavingStore runs afterRead once, between a primary read and the
// cache fill that follows it.
type interleavingStore struct {
	*MemoryStore
	afterRead func()
}

func (s *interleavingStore) ListPositions(ctx context.Context, userID string) ([]model.AssetPosition, error) {
	positions, err := s.MemoryStore.ListPositions(ctx, userID)
	if hook := s.afterRead; hook != nil {
		s.afterRead = nil
		hook()
	}
	return positions, err
}

func TestCachedStore_WriteDuringMissDropsStaleFill(t *testing.T) {
	ctx := context.Background()
	primary := &interleavingStore{MemoryStore: NewMemoryStore()}
	cs := NewCachedStore(primary, NewLocalCache(time.Minute), time.Minute)
	require.NoError(t, cs.CreateAsset(ctx, newAsset("a1", "u1", "VOO")))

	primary.afterRead = func() {
		require.NoError(t, cs.WithTx(ctx, func(tx Tx) error {
			return tx.UpsertHolding(ctx, &model.Holding{AssetID: "a1", UserID: "u1", Quantity: decimal.NewFromInt(2)})
		}))
	}

	stale, err := cs.ListPositions(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, stale[0].Holding)

	positions, err := cs.ListPositions(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, positions[0].Holding)
	assert.Equal(t, "2", positions[0].Holding.Quantity.String())
}

func TestCachedStore_DeleteInvalidates(t *testing.T) {
	cs, _ := newCached(t)
	ctx := context.Background()
	require.NoError(t, cs.CreateAsset(ctx, newAsset("a1", "u1", "VOO")))
	_, err := cs.GetAsset(ctx, "a1")
	require.NoError(t, err)

	require.NoError(t, cs.DeleteAsset(ctx, "u1", "a1"))
	_, err = cs.GetAsset(ctx, "a1")
	assert.ErrorIs(t, err, ErrNotFound)

	positions, err := cs.ListPositions(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestLocalCache_Expiry(t *testing.T) {
	c := NewLocalCache(time.Minute)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), 20*time.Millisecond)
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	time.Sleep(40 * time.Millisecond)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)

	c.Set(ctx, "a", []byte("1"), time.Minute)
	c.Delete(ctx, "a")
	_, ok = c.Get(ctx, "a")
	assert.False(t, ok)
}
