package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/folio/portfolio-engine/internal/model"
	"github.com/folio/portfolio-engine/internal/money"
	"github.com/folio/portfolio-engine/internal/ticker"
)

// --- Inputs ---

// TransactionInput is a buy or sell request. Type is "buy" or "sell" in
// any case. A zero Date means now.
type TransactionInput struct {
	Type       string
	AssetID    string
	Date       time.Time
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Commission decimal.Decimal
}

// AssetInput describes a new asset. Name defaults to the ticker.
type AssetInput struct {
	Ticker           string
	Name             string
	Category         string
	TargetPercentage decimal.Decimal
}

// PriceUpdate sets the current price of one asset.
type PriceUpdate struct {
	AssetID string          `json:"asset_id"`
	Price   decimal.Decimal `json:"price"`
}

// TransactionFilter narrows ListTransactions. Empty fields match everything.
type TransactionFilter struct {
	AssetID string
}

// --- Views ---

// AssetRef identifies the asset a transaction belongs to.
type AssetRef struct {
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
}

// TransactionView is the external form of a transaction. Exactly one of
// TotalCost (BUY) and TotalProceeds (SELL) is set.
type TransactionView struct {
	ID            string                `json:"id"`
	AssetID       string                `json:"asset_id"`
	Type          model.TransactionType `json:"type"`
	Quantity      string                `json:"quantity"`
	Price         string                `json:"price"`
	Commission    string                `json:"commission"`
	TotalCost     *string               `json:"total_cost,omitempty"`
	TotalProceeds *string               `json:"total_proceeds,omitempty"`
	Asset         AssetRef              `json:"asset"`
	Date          time.Time             `json:"date"`
	CreatedAt     time.Time             `json:"created_at"`
}

func newTransactionView(t model.Transaction, ref AssetRef) TransactionView {
	total := money.FromMinorUnits(t.TotalCents)
	v := TransactionView{
		ID:         t.ID,
		AssetID:    t.AssetID,
		Type:       t.Type,
		Quantity:   money.FormatQuantity(t.Quantity),
		Price:      money.FromMinorUnits(t.PriceCents),
		Commission: money.FromMinorUnits(t.CommissionCents),
		Asset:      ref,
		Date:       t.Date,
		CreatedAt:  t.CreatedAt,
	}
	if t.Type == model.TransactionSell {
		v.TotalProceeds = &total
	} else {
		v.TotalCost = &total
	}
	return v
}

// AssetView is an asset with its holding. Value is nil until the asset
// has a price.
type AssetView struct {
	ID               string     `json:"id"`
	Ticker           string     `json:"ticker"`
	Exchange         string     `json:"exchange,omitempty"`
	Name             string     `json:"name"`
	Category         string     `json:"category"`
	TargetPercentage string     `json:"target_percentage"`
	CurrentPrice     *string    `json:"current_price"`
	PriceUpdatedAt   *time.Time `json:"price_updated_at"`
	Quantity         string     `json:"quantity"`
	Value            *string    `json:"value"`
	CreatedAt        time.Time  `json:"created_at"`
}

func newAssetView(p model.AssetPosition) AssetView {
	a := p.Asset
	qty := decimal.Zero
	if p.Holding != nil {
		qty = p.Holding.Quantity
	}
	v := AssetView{
		ID:               a.ID,
		Ticker:           a.Ticker,
		Exchange:         ticker.Exchange(a.Ticker),
		Name:             a.Name,
		Category:         a.Category,
		TargetPercentage: a.TargetPercentage.StringFixed(2),
		CurrentPrice:     money.FromMinorUnitsNullable(a.CurrentPrice),
		PriceUpdatedAt:   a.PriceUpdatedAt,
		Quantity:         money.FormatQuantity(qty),
		CreatedAt:        a.CreatedAt,
	}
	if a.CurrentPrice != nil {
		value := money.FormatAmount(money.Value(qty, *a.CurrentPrice))
		v.Value = &value
	}
	return v
}

// AssetList is the response of ListAssets.
type AssetList struct {
	Assets     []AssetView `json:"assets"`
	TotalValue string      `json:"total_value"`
	TargetSum  string      `json:"target_sum"`
}

// HoldingView is the response of SetHolding.
type HoldingView struct {
	AssetID   string    `json:"asset_id"`
	Ticker    string    `json:"ticker"`
	Quantity  string    `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PriceUpdateResult is the response of UpdatePrices.
type PriceUpdateResult struct {
	Updated   int       `json:"updated"`
	UpdatedAt time.Time `json:"updated_at"`
}
