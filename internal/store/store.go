// Package store defines the persistence interface for the portfolio engine.
// Implementations include PostgreSQL (source of truth), a read-through cache
// wrapper (Redis or in-process), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/folio/portfolio-engine/internal/model"
)

var (
	// ErrNotFound is returned when a row does not exist (or is not owned
	// by the user named in the call).
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicate is returned when a unique constraint would be violated.
	ErrDuplicate = errors.New("store: duplicate")
)

// Store is the persistence interface. Compound writes go through WithTx so
// that they commit together or not at all.
type Store interface {
	// --- Assets ---

	// CreateAsset persists a new asset. ErrDuplicate if the ticker is taken.
	CreateAsset(ctx context.Context, asset *model.Asset) error

	// GetAsset retrieves an asset by its ID regardless of owner.
	GetAsset(ctx context.Context, id string) (*model.Asset, error)

	// ListPositions returns the user's assets joined with their holdings,
	// sorted by ticker.
	ListPositions(ctx context.Context, userID string) ([]model.AssetPosition, error)

	// UpdateAssetTarget sets the target percentage of an owned asset.
	UpdateAssetTarget(ctx context.Context, userID, id string, target decimal.Decimal) error

	// DeleteAsset removes an owned asset with its holding and transactions.
	DeleteAsset(ctx context.Context, userID, id string) error

	// --- Transactions ---

	// ListTransactions returns the user's transactions, newest first.
	// An empty assetID means all assets.
	ListTransactions(ctx context.Context, userID, assetID string) ([]model.Transaction, error)

	// --- Snapshots ---

	// GetSnapshot retrieves a snapshot with its line items.
	GetSnapshot(ctx context.Context, id string) (*model.PortfolioSnapshot, error)

	// ListSnapshots returns the user's snapshots within the inclusive day
	// range, newest first. Nil bounds are open.
	ListSnapshots(ctx context.Context, userID string, from, to *time.Time) ([]model.PortfolioSnapshot, error)

	// --- Unit of work ---

	// WithTx runs fn inside a single atomic unit. If fn returns an error,
	// none of its writes are persisted.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of writes that must happen atomically.
type Tx interface {
	// LockHolding locks the asset row and returns its holding, serializing
	// concurrent read-modify-write on the same asset. Returns (nil, nil)
	// when the asset has no holding yet and ErrNotFound when the asset
	// does not exist.
	LockHolding(ctx context.Context, assetID string) (*model.Holding, error)

	// InsertTransaction appends an immutable transaction row.
	InsertTransaction(ctx context.Context, t *model.Transaction) error

	// UpsertHolding creates or overwrites the holding for h.AssetID.
	UpsertHolding(ctx context.Context, h *model.Holding) error

	// SetAssetPrice updates the price of an owned asset. ErrNotFound if
	// the asset is missing or owned by someone else.
	SetAssetPrice(ctx context.Context, userID, assetID string, priceCents int64, at time.Time) error

	// UpsertSnapshot inserts the (user, day) snapshot or updates the total
	// of the existing one. snap.ID and snap.CreatedAt are set to the stored
	// row's values. created reports whether a new row was inserted.
	UpsertSnapshot(ctx context.Context, snap *model.PortfolioSnapshot) (created bool, err error)

	// ReplaceSnapshotAssets deletes all line items of the snapshot and
	// inserts the given ones.
	ReplaceSnapshotAssets(ctx context.Context, snapshotID string, assets []model.SnapshotAsset) error
}
