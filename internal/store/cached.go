package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/folio/portfolio-engine/internal/model"
)

// CachedStore wraps a primary Store with a read-through cache. Writes go to
// the primary store and invalidate the cache; reads check the cache first
// then fall back to the primary.
//
// Every key carries a local generation that invalidation bumps. A read that
// loaded from the primary before an invalidation drops its own fill, so a
// stale value is never left behind by a writer in this process. Writers in
// other processes sharing the cache are bounded by the TTL only.
type CachedStore struct {
	primary Store
	cache   Cache
	ttl     time.Duration

	mu   sync.Mutex
	gens map[string]uint64
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, cache Cache, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		cache:   cache,
		ttl:     ttl,
		gens:    make(map[string]uint64),
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateAsset(ctx context.Context, a *model.Asset) error {
	if err := s.primary.CreateAsset(ctx, a); err != nil {
		return err
	}
	s.invalidate(ctx, positionsKey(a.UserID))
	return nil
}

func (s *CachedStore) UpdateAssetTarget(ctx context.Context, userID, id string, target decimal.Decimal) error {
	if err := s.primary.UpdateAssetTarget(ctx, userID, id, target); err != nil {
		return err
	}
	s.invalidate(ctx, assetKey(id), positionsKey(userID))
	return nil
}

func (s *CachedStore) DeleteAsset(ctx context.Context, userID, id string) error {
	if err := s.primary.DeleteAsset(ctx, userID, id); err != nil {
		return err
	}
	s.invalidate(ctx, assetKey(id), positionsKey(userID))
	return nil
}

// WithTx records which keys the unit of work touches and invalidates them
// only after the primary commits.
func (s *CachedStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tracked := &trackingTx{}
	err := s.primary.WithTx(ctx, func(tx Tx) error {
		tracked.Tx = tx
		return fn(tracked)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, tracked.keys...)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetAsset(ctx context.Context, id string) (*model.Asset, error) {
	key := assetKey(id)
	var a model.Asset
	if s.load(ctx, key, &a) {
		return &a, nil
	}

	gen := s.generation(key)
	asset, err := s.primary.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, gen, asset)
	return asset, nil
}

func (s *CachedStore) ListPositions(ctx context.Context, userID string) ([]model.AssetPosition, error) {
	key := positionsKey(userID)
	var positions []model.AssetPosition
	if s.load(ctx, key, &positions) {
		return positions, nil
	}

	gen := s.generation(key)
	positions, err := s.primary.ListPositions(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, gen, positions)
	return positions, nil
}

func (s *CachedStore) GetSnapshot(ctx context.Context, id string) (*model.PortfolioSnapshot, error) {
	key := snapshotKey(id)
	var snap model.PortfolioSnapshot
	if s.load(ctx, key, &snap) {
		return &snap, nil
	}

	gen := s.generation(key)
	got, err := s.primary.GetSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, gen, got)
	return got, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListTransactions(ctx context.Context, userID, assetID string) ([]model.Transaction, error) {
	return s.primary.ListTransactions(ctx, userID, assetID)
}

func (s *CachedStore) ListSnapshots(ctx context.Context, userID string, from, to *time.Time) ([]model.PortfolioSnapshot, error) {
	return s.primary.ListSnapshots(ctx, userID, from, to)
}

// --- Cache helpers ---

func (s *CachedStore) load(ctx context.Context, key string, dst any) bool {
	data, ok := s.cache.Get(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

// store fills key with v unless the key was invalidated after gen was read.
func (s *CachedStore) store(ctx context.Context, key string, gen uint64, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.cache.Set(ctx, key, data, s.ttl)
	if s.generation(key) != gen {
		s.cache.Delete(ctx, key)
	}
}

func (s *CachedStore) generation(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[key]
}

// invalidate bumps the generation of each key before dropping it.
func (s *CachedStore) invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	s.mu.Lock()
	for _, k := range keys {
		s.gens[k]++
	}
	s.mu.Unlock()
	s.cache.Delete(ctx, keys...)
}

// trackingTx forwards to the primary Tx and collects cache keys to drop.
type trackingTx struct {
	Tx
	keys []string
}

func (t *trackingTx) InsertTransaction(ctx context.Context, tr *model.Transaction) error {
	if err := t.Tx.InsertTransaction(ctx, tr); err != nil {
		return err
	}
	t.keys = append(t.keys, positionsKey(tr.UserID))
	return nil
}

func (t *trackingTx) UpsertHolding(ctx context.Context, h *model.Holding) error {
	if err := t.Tx.UpsertHolding(ctx, h); err != nil {
		return err
	}
	t.keys = append(t.keys, positionsKey(h.UserID))
	return nil
}

func (t *trackingTx) SetAssetPrice(ctx context.Context, userID, assetID string, priceCents int64, at time.Time) error {
	if err := t.Tx.SetAssetPrice(ctx, userID, assetID, priceCents, at); err != nil {
		return err
	}
	t.keys = append(t.keys, assetKey(assetID), positionsKey(userID))
	return nil
}

func (t *trackingTx) ReplaceSnapshotAssets(ctx context.Context, snapshotID string, assets []model.SnapshotAsset) error {
	if err := t.Tx.ReplaceSnapshotAssets(ctx, snapshotID, assets); err != nil {
		return err
	}
	t.keys = append(t.keys, snapshotKey(snapshotID))
	return nil
}

func assetKey(id string) string { return fmt.Sprintf("asset:%s", id) }
func positionsKey(uid string) string { return fmt.Sprintf("positions:%s", uid) }
func snapshotKey(id string) string { return fmt.Sprintf("snapshot:%s", id) }
