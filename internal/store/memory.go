package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/folio/portfolio-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu           sync.RWMutex
	assets       map[string]*model.Asset
	holdings     map[string]*model.Holding // by asset ID
	transactions []model.Transaction
	snapshots    map[string]*model.PortfolioSnapshot
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assets:    make(map[string]*model.Asset),
		holdings:  make(map[string]*model.Holding),
		snapshots: make(map[string]*model.PortfolioSnapshot),
	}
}

func (s *MemoryStore) CreateAsset(_ context.Context, a *model.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.assets {
		if existing.UserID == a.UserID && existing.Ticker == a.Ticker {
			return fmt.Errorf("%w: ticker %s", ErrDuplicate, a.Ticker)
		}
	}

	// Store a copy to avoid external mutation.
	copy := *a
	s.assets[a.ID] = &copy
	return nil
}

func (s *MemoryStore) GetAsset(_ context.Context, id string) (*model.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assets[id]
	if !ok {
		return nil, fmt.Errorf("asset %s: %w", id, ErrNotFound)
	}
	copy := *a
	return &copy, nil
}

func (s *MemoryStore) ListPositions(_ context.Context, userID string) ([]model.AssetPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := make([]model.AssetPosition, 0)
	for _, a := range s.assets {
		if a.UserID != userID {
			continue
		}
		p := model.AssetPosition{Asset: *a}
		if h, ok := s.holdings[a.ID]; ok {
			hc := *h
			p.Holding = &hc
		}
		positions = append(positions, p)
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Asset.Ticker < positions[j].Asset.Ticker
	})
	return positions, nil
}

func (s *MemoryStore) UpdateAssetTarget(_ context.Context, userID, id string, target decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assets[id]
	if !ok || a.UserID != userID {
		return fmt.Errorf("asset %s: %w", id, ErrNotFound)
	}
	a.TargetPercentage = target
	return nil
}

func (s *MemoryStore) DeleteAsset(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assets[id]
	if !ok || a.UserID != userID {
		return fmt.Errorf("asset %s: %w", id, ErrNotFound)
	}
	delete(s.assets, id)
	delete(s.holdings, id)

	kept := s.transactions[:0]
	for _, t := range s.transactions {
		if t.AssetID != id {
			kept = append(kept, t)
		}
	}
	s.transactions = kept
	return nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, userID, assetID string) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Transaction, 0)
	for _, t := range s.transactions {
		if t.UserID != userID {
			continue
		}
		if assetID != "" && t.AssetID != assetID {
			continue
		}
		result = append(result, t)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Date.Equal(result[j].Date) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].Date.After(result[j].Date)
	})
	return result, nil
}

func (s *MemoryStore) GetSnapshot(_ context.Context, id string) (*model.PortfolioSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[id]
	if !ok {
		return nil, fmt.Errorf("snapshot %s: %w", id, ErrNotFound)
	}
	copy := cloneSnapshot(snap)
	return &copy, nil
}

func (s *MemoryStore) ListSnapshots(_ context.Context, userID string, from, to *time.Time) ([]model.PortfolioSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.PortfolioSnapshot, 0)
	for _, snap := range s.snapshots {
		if snap.UserID != userID {
			continue
		}
		if from != nil && snap.Date.Before(*from) {
			continue
		}
		if to != nil && snap.Date.After(*to) {
			continue
		}
		result = append(result, cloneSnapshot(snap))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.After(result[j].Date)
	})
	return result, nil
}

// WithTx holds the write lock for the whole unit of work. Writes are
// applied in place and undone in reverse order if fn fails.
func (s *MemoryStore) WithTx(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{s: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

type memoryTx struct {
	s    *MemoryStore
	undo []func()
}

func (tx *memoryTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (tx *memoryTx) LockHolding(_ context.Context, assetID string) (*model.Holding, error) {
	if _, ok := tx.s.assets[assetID]; !ok {
		return nil, fmt.Errorf("asset %s: %w", assetID, ErrNotFound)
	}
	h, ok := tx.s.holdings[assetID]
	if !ok {
		return nil, nil
	}
	copy := *h
	return &copy, nil
}

func (tx *memoryTx) InsertTransaction(_ context.Context, t *model.Transaction) error {
	n := len(tx.s.transactions)
	tx.s.transactions = append(tx.s.transactions, *t)
	tx.undo = append(tx.undo, func() { tx.s.transactions = tx.s.transactions[:n] })
	return nil
}

func (tx *memoryTx) UpsertHolding(_ context.Context, h *model.Holding) error {
	if _, ok := tx.s.assets[h.AssetID]; !ok {
		return fmt.Errorf("asset %s: %w", h.AssetID, ErrNotFound)
	}
	assetID := h.AssetID
	prev, existed := tx.s.holdings[assetID]
	copy := *h
	tx.s.holdings[assetID] = &copy
	tx.undo = append(tx.undo, func() {
		if existed {
			tx.s.holdings[assetID] = prev
		} else {
			delete(tx.s.holdings, assetID)
		}
	})
	return nil
}

func (tx *memoryTx) SetAssetPrice(_ context.Context, userID, assetID string, priceCents int64, at time.Time) error {
	a, ok := tx.s.assets[assetID]
	if !ok || a.UserID != userID {
		return fmt.Errorf("asset %s: %w", assetID, ErrNotFound)
	}
	prevPrice, prevAt := a.CurrentPrice, a.PriceUpdatedAt
	a.CurrentPrice = &priceCents
	a.PriceUpdatedAt = &at
	tx.undo = append(tx.undo, func() {
		a.CurrentPrice = prevPrice
		a.PriceUpdatedAt = prevAt
	})
	return nil
}

func (tx *memoryTx) UpsertSnapshot(_ context.Context, snap *model.PortfolioSnapshot) (bool, error) {
	for _, existing := range tx.s.snapshots {
		if existing.UserID == snap.UserID && existing.Date.Equal(snap.Date) {
			prevTotal := existing.TotalValueCents
			existing.TotalValueCents = snap.TotalValueCents
			snap.ID = existing.ID
			snap.CreatedAt = existing.CreatedAt
			tx.undo = append(tx.undo, func() { existing.TotalValueCents = prevTotal })
			return false, nil
		}
	}

	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	stored := model.PortfolioSnapshot{
		ID:              snap.ID,
		UserID:          snap.UserID,
		Date:            snap.Date,
		TotalValueCents: snap.TotalValueCents,
		CreatedAt:       snap.CreatedAt,
	}
	tx.s.snapshots[snap.ID] = &stored
	id := snap.ID
	tx.undo = append(tx.undo, func() { delete(tx.s.snapshots, id) })
	return true, nil
}

func (tx *memoryTx) ReplaceSnapshotAssets(_ context.Context, snapshotID string, assets []model.SnapshotAsset) error {
	snap, ok := tx.s.snapshots[snapshotID]
	if !ok {
		return fmt.Errorf("snapshot %s: %w", snapshotID, ErrNotFound)
	}
	prev := snap.Assets

	items := make([]model.SnapshotAsset, len(assets))
	for i, a := range assets {
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		a.SnapshotID = snapshotID
		items[i] = a
	}
	snap.Assets = items
	tx.undo = append(tx.undo, func() { snap.Assets = prev })
	return nil
}

func cloneSnapshot(snap *model.PortfolioSnapshot) model.PortfolioSnapshot {
	c := *snap
	c.Assets = append([]model.SnapshotAsset(nil), snap.Assets...)
	return c
}
