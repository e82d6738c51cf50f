// Package model defines the core domain types shared across the portfolio engine.
// Money is stored as int64 minor units (cents); quantities and percentages use
// shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the direction of a ledger event.
type TransactionType string

const (
	TransactionBuy  TransactionType = "BUY"
	TransactionSell TransactionType = "SELL"
)

// Asset is a user-owned instrument with a target share of the portfolio.
type Asset struct {
	ID               string          `json:"id" db:"id"`
	UserID           string          `json:"user_id" db:"user_id"`
	Ticker           string          `json:"ticker" db:"ticker"` // unique per user
	Name             string          `json:"name" db:"name"`
	Category         string          `json:"category" db:"category"`
	TargetPercentage decimal.Decimal `json:"target_percentage" db:"target_percentage"` // 0..100
	CurrentPrice     *int64          `json:"current_price,omitempty" db:"current_price"` // cents
	PriceUpdatedAt   *time.Time      `json:"price_updated_at,omitempty" db:"price_updated_at"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

// Holding is the current quantity of one asset. Never negative.
type Holding struct {
	AssetID   string          `json:"asset_id" db:"asset_id"`
	UserID    string          `json:"user_id" db:"user_id"`
	Quantity  decimal.Decimal `json:"quantity" db:"quantity"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// AssetPosition joins an asset with its holding, if any.
type AssetPosition struct {
	Asset   Asset    `json:"asset"`
	Holding *Holding `json:"holding,omitempty"`
}

// Transaction is an immutable buy/sell event. Once created it is never
// modified by the ledger.
type Transaction struct {
	ID              string          `json:"id" db:"id"`
	UserID          string          `json:"user_id" db:"user_id"`
	AssetID         string          `json:"asset_id" db:"asset_id"`
	Type            TransactionType `json:"type" db:"type"`
	Date            time.Time       `json:"date" db:"date"`
	Quantity        decimal.Decimal `json:"quantity" db:"quantity"`
	PriceCents      int64           `json:"price_cents" db:"price_cents"`
	CommissionCents int64           `json:"commission_cents" db:"commission_cents"`
	TotalCents      int64           `json:"total_cents" db:"total_cents"` // BUY: cost, SELL: net proceeds
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// PortfolioSnapshot is the per-day rollup of a user's portfolio value.
type PortfolioSnapshot struct {
	ID              string          `json:"id" db:"id"`
	UserID          string          `json:"user_id" db:"user_id"`
	Date            time.Time       `json:"date" db:"day"` // midnight
	TotalValueCents int64           `json:"total_value_cents" db:"total_value"`
	Assets          []SnapshotAsset `json:"assets"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// SnapshotAsset is a denormalized line item of a snapshot.
type SnapshotAsset struct {
	ID               string          `json:"id" db:"id"`
	SnapshotID       string          `json:"snapshot_id" db:"snapshot_id"`
	AssetID          string          `json:"asset_id" db:"asset_id"`
	Ticker           string          `json:"ticker" db:"ticker"`
	Name             string          `json:"name" db:"name"`
	Category         string          `json:"category" db:"category"`
	Quantity         decimal.Decimal `json:"quantity" db:"quantity"`
	PriceCents       int64           `json:"price_cents" db:"price_cents"`
	ValueCents       int64           `json:"value_cents" db:"value_cents"`
	Percentage       decimal.Decimal `json:"percentage" db:"percentage"`
	TargetPercentage decimal.Decimal `json:"target_percentage" db:"target_percentage"`
}

// Event is pushed to stream subscribers after a committed write.
type Event struct {
	Type       string `json:"type"`
	UserID     string `json:"user_id"`
	AssetID    string `json:"asset_id,omitempty"`
	Ticker     string `json:"ticker,omitempty"`
	Quantity   string `json:"quantity,omitempty"`
	Price      string `json:"price,omitempty"`
	SnapshotID string `json:"snapshot_id,omitempty"`
	TotalValue string `json:"total_value,omitempty"`
	Count      int    `json:"count,omitempty"`
}

// Event types.
const (
	EventTransactionRecorded = "transaction_recorded"
	EventPricesUpdated       = "prices_updated"
	EventSnapshotCreated     = "snapshot_created"
)
