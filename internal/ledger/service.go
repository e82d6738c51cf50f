// Package ledger records buy and sell transactions and keeps each asset's
// holding consistent with them. It also owns the asset bookkeeping the
// ledger depends on: creating and deleting assets, targets, explicit
// holdings and price updates.
//
// Every compound write runs in a single store unit of work, so a
// transaction row and the holding change it implies commit together or
// not at all.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/folio/portfolio-engine/internal/apperr"
	"github.com/folio/portfolio-engine/internal/metrics"
	"github.com/folio/portfolio-engine/internal/model"
	"github.com/folio/portfolio-engine/internal/money"
	"github.com/folio/portfolio-engine/internal/store"
	"github.com/folio/portfolio-engine/internal/ticker"
)

// TargetScale is the number of fractional digits a target percentage may carry.
const TargetScale int32 = 4

var hundred = decimal.NewFromInt(100)

// Notifier receives events after a write commits. Implementations must
// not block.
type Notifier interface {
	Publish(ev model.Event)
}

// Service is the portfolio ledger.
type Service struct {
	store  store.Store
	events Notifier
	now    func() time.Time
}

// NewService creates a ledger. events may be nil.
func NewService(st store.Store, events Notifier) *Service {
	return &Service{
		store:  st,
		events: events,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RecordTransaction appends a transaction and applies it to the asset's
// holding. A sell larger than the current holding is rejected with
// "Insufficient holdings"; selling exactly the full holding leaves zero.
func (s *Service) RecordTransaction(ctx context.Context, userID string, in TransactionInput) (*TransactionView, error) {
	defer observe("record_transaction", time.Now())

	typ, err := parseType(in.Type)
	if err != nil {
		return nil, err
	}
	if err := validateQuantity(in.Quantity, false); err != nil {
		return nil, err
	}
	priceCents, err := positiveCents("price", in.Price)
	if err != nil {
		return nil, err
	}
	if in.Commission.IsNegative() {
		return nil, apperr.Validation("Commission cannot be negative", map[string]any{
			"commission": in.Commission.String(),
		})
	}
	commissionCents, err := money.ToMinorUnits(in.Commission)
	if err != nil {
		return nil, outOfRange("commission", in.Commission)
	}

	asset, err := s.ownedAsset(ctx, userID, in.AssetID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	date := in.Date
	if date.IsZero() {
		date = now
	}

	gross, err := money.ValueMinorUnits(in.Quantity, priceCents)
	if err != nil {
		return nil, outOfRange("total", in.Quantity.Mul(in.Price))
	}
	total, err := money.AddMinorUnits(gross, commissionCents)
	if typ == model.TransactionSell {
		total, err = money.AddMinorUnits(gross, -commissionCents)
	}
	if err != nil {
		return nil, outOfRange("total", in.Quantity.Mul(in.Price))
	}
	t := &model.Transaction{
		ID:              uuid.New().String(),
		UserID:          userID,
		AssetID:         asset.ID,
		Type:            typ,
		Date:            date,
		Quantity:        in.Quantity,
		PriceCents:      priceCents,
		CommissionCents: commissionCents,
		TotalCents:      total,
		CreatedAt:       now,
	}

	var holding decimal.Decimal
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		h, err := tx.LockHolding(ctx, asset.ID)
		if err != nil {
			return err
		}
		available := decimal.Zero
		if h != nil {
			available = h.Quantity
		}

		holding = available.Add(in.Quantity)
		if typ == model.TransactionSell {
			if in.Quantity.GreaterThan(available) {
				return apperr.Validation("Insufficient holdings", map[string]any{
					"available": money.FormatQuantity(available),
					"requested": money.FormatQuantity(in.Quantity),
				})
			}
			holding = available.Sub(in.Quantity)
		}

		if err := tx.InsertTransaction(ctx, t); err != nil {
			return err
		}
		return tx.UpsertHolding(ctx, &model.Holding{
			AssetID:   asset.ID,
			UserID:    userID,
			Quantity:  holding,
			UpdatedAt: now,
		})
	})
	if err != nil {
		if apperr.Is(err, apperr.KindValidation) {
			metrics.InsufficientHoldingsRejections.Inc()
			slog.Warn("sell rejected", "user", userID, "asset", asset.ID, "err", err)
			return nil, err
		}
		return nil, s.writeError("failed to record transaction", err)
	}

	metrics.TransactionsTotal.WithLabelValues(string(typ)).Inc()
	slog.Info("transaction recorded",
		"id", t.ID,
		"user", userID,
		"ticker", asset.Ticker,
		"type", typ,
		"qty", in.Quantity.String(),
		"total_cents", t.TotalCents,
		"holding", holding.String(),
	)
	s.publish(model.Event{
		Type:     model.EventTransactionRecorded,
		UserID:   userID,
		AssetID:  asset.ID,
		Ticker:   asset.Ticker,
		Quantity: money.FormatQuantity(holding),
	})

	v := newTransactionView(*t, AssetRef{Ticker: asset.Ticker, Name: asset.Name})
	return &v, nil
}

// ListTransactions returns the user's transactions, newest first.
func (s *Service) ListTransactions(ctx context.Context, userID string, filter TransactionFilter) ([]TransactionView, error) {
	if filter.AssetID != "" {
		if _, err := s.ownedAsset(ctx, userID, filter.AssetID); err != nil {
			return nil, err
		}
	}

	txs, err := s.store.ListTransactions(ctx, userID, filter.AssetID)
	if err != nil {
		return nil, apperr.Internal("failed to list transactions", err)
	}
	positions, err := s.store.ListPositions(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("failed to load assets", err)
	}
	refs := make(map[string]AssetRef, len(positions))
	for _, p := range positions {
		refs[p.Asset.ID] = AssetRef{Ticker: p.Asset.Ticker, Name: p.Asset.Name}
	}

	views := make([]TransactionView, 0, len(txs))
	for _, t := range txs {
		views = append(views, newTransactionView(t, refs[t.AssetID]))
	}
	return views, nil
}

// CreateAsset registers a new asset for the user. Tickers are unique per
// user after normalization.
func (s *Service) CreateAsset(ctx context.Context, userID string, in AssetInput) (*AssetView, error) {
	symbol, err := ticker.Normalize(in.Ticker)
	if err != nil {
		return nil, apperr.Validation("Invalid ticker", map[string]any{
			"ticker": in.Ticker,
			"reason": err.Error(),
		})
	}
	if err := validateTarget(in.TargetPercentage); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = symbol
	}
	asset := &model.Asset{
		ID:               uuid.New().String(),
		UserID:           userID,
		Ticker:           symbol,
		Name:             name,
		Category:         strings.TrimSpace(in.Category),
		TargetPercentage: in.TargetPercentage,
		CreatedAt:        s.now(),
	}
	if err := s.store.CreateAsset(ctx, asset); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Validation("Ticker already exists", map[string]any{"ticker": symbol})
		}
		slog.Error("create asset failed", "user", userID, "ticker", symbol, "err", err)
		return nil, apperr.Internal("failed to create asset", err)
	}

	slog.Info("asset created", "id", asset.ID, "user", userID, "ticker", symbol, "target", in.TargetPercentage.String())
	v := newAssetView(model.AssetPosition{Asset: *asset})
	return &v, nil
}

// ListAssets returns the user's assets in ticker order with holdings and
// values.
func (s *Service) ListAssets(ctx context.Context, userID string) (*AssetList, error) {
	positions, err := s.store.ListPositions(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("failed to load assets", err)
	}

	list := &AssetList{Assets: make([]AssetView, 0, len(positions))}
	total := decimal.Zero
	targetSum := decimal.Zero
	for _, p := range positions {
		v := newAssetView(p)
		if p.Holding != nil && p.Asset.CurrentPrice != nil {
			total = total.Add(money.Value(p.Holding.Quantity, *p.Asset.CurrentPrice))
		}
		targetSum = targetSum.Add(p.Asset.TargetPercentage)
		list.Assets = append(list.Assets, v)
	}
	list.TotalValue = money.FormatAmount(total)
	list.TargetSum = targetSum.StringFixed(2)
	return list, nil
}

// UpdateTarget sets an asset's target percentage.
func (s *Service) UpdateTarget(ctx context.Context, userID, assetID string, target decimal.Decimal) (*AssetView, error) {
	if err := validateTarget(target); err != nil {
		return nil, err
	}
	asset, err := s.ownedAsset(ctx, userID, assetID)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateAssetTarget(ctx, userID, assetID, target); err != nil {
		return nil, s.writeError("failed to update target", err)
	}

	slog.Info("target updated", "user", userID, "ticker", asset.Ticker, "from", asset.TargetPercentage.String(), "to", target.String())
	asset.TargetPercentage = target
	v := newAssetView(model.AssetPosition{Asset: *asset})
	return &v, nil
}

// DeleteAsset removes an asset together with its holding and transactions.
func (s *Service) DeleteAsset(ctx context.Context, userID, assetID string) error {
	asset, err := s.ownedAsset(ctx, userID, assetID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteAsset(ctx, userID, assetID); err != nil {
		return s.writeError("failed to delete asset", err)
	}
	slog.Info("asset deleted", "id", assetID, "user", userID, "ticker", asset.Ticker)
	return nil
}

// SetHolding overwrites the holding of an asset without recording a
// transaction, e.g. when importing an existing position.
func (s *Service) SetHolding(ctx context.Context, userID, assetID string, quantity decimal.Decimal) (*HoldingView, error) {
	if err := validateQuantity(quantity, true); err != nil {
		return nil, err
	}
	asset, err := s.ownedAsset(ctx, userID, assetID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.LockHolding(ctx, assetID); err != nil {
			return err
		}
		return tx.UpsertHolding(ctx, &model.Holding{
			AssetID:   assetID,
			UserID:    userID,
			Quantity:  quantity,
			UpdatedAt: now,
		})
	})
	if err != nil {
		return nil, s.writeError("failed to set holding", err)
	}

	slog.Info("holding set", "user", userID, "ticker", asset.Ticker, "qty", quantity.String())
	return &HoldingView{
		AssetID:   assetID,
		Ticker:    asset.Ticker,
		Quantity:  money.FormatQuantity(quantity),
		UpdatedAt: now,
	}, nil
}

// UpdatePrices applies a batch of price updates. If any asset is missing
// or belongs to another user, nothing is applied.
func (s *Service) UpdatePrices(ctx context.Context, userID string, updates []PriceUpdate) (*PriceUpdateResult, error) {
	defer observe("update_prices", time.Now())

	if len(updates) == 0 {
		return nil, apperr.Validation("No price updates given", nil)
	}
	cents := make([]int64, len(updates))
	for i, u := range updates {
		c, err := positiveCents("price", u.Price)
		if err != nil {
			return nil, err
		}
		cents[i] = c
	}

	now := s.now()
	var missing string
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		for i, u := range updates {
			if err := tx.SetAssetPrice(ctx, userID, u.AssetID, cents[i], now); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					missing = u.AssetID
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		if missing != "" {
			slog.Warn("price batch rejected", "user", userID, "asset", missing)
			return nil, apperr.NotFound("Asset %s not found", missing)
		}
		slog.Error("price update failed", "user", userID, "err", err)
		return nil, apperr.Internal("failed to update prices", err)
	}

	metrics.PriceUpdatesTotal.Add(float64(len(updates)))
	slog.Info("prices updated", "user", userID, "count", len(updates))
	s.publish(model.Event{Type: model.EventPricesUpdated, UserID: userID, Count: len(updates)})
	return &PriceUpdateResult{Updated: len(updates), UpdatedAt: now}, nil
}

// ownedAsset loads an asset and checks that userID owns it.
func (s *Service) ownedAsset(ctx context.Context, userID, assetID string) (*model.Asset, error) {
	if assetID == "" {
		return nil, apperr.Validation("asset_id is required", nil)
	}
	asset, err := s.store.GetAsset(ctx, assetID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Asset not found")
	}
	if err != nil {
		return nil, apperr.Internal("failed to load asset", err)
	}
	if asset.UserID != userID {
		return nil, apperr.Forbidden("Asset belongs to another user")
	}
	return asset, nil
}

// writeError translates a failed write. An asset that vanished between the
// ownership check and the write is NotFound; apperr values pass through.
func (s *Service) writeError(msg string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("Asset not found")
	}
	slog.Error(msg, "err", err)
	return apperr.Internal(msg, err)
}

func (s *Service) publish(ev model.Event) {
	if s.events != nil {
		s.events.Publish(ev)
	}
}

func parseType(raw string) (model.TransactionType, error) {
	switch model.TransactionType(strings.ToUpper(strings.TrimSpace(raw))) {
	case model.TransactionBuy:
		return model.TransactionBuy, nil
	case model.TransactionSell:
		return model.TransactionSell, nil
	}
	return "", apperr.Validation("Type must be buy or sell", map[string]any{"type": raw})
}

// validateQuantity checks q > 0 (or q >= 0 when zero is allowed) and the
// fractional precision.
func validateQuantity(q decimal.Decimal, allowZero bool) error {
	if q.IsNegative() || (!allowZero && q.IsZero()) {
		msg := "Quantity must be positive"
		if allowZero {
			msg = "Quantity cannot be negative"
		}
		return apperr.Validation(msg, map[string]any{"quantity": q.String()})
	}
	if err := money.CheckQuantityScale(q); err != nil {
		return apperr.Validation("Quantity has more than 8 decimal places", map[string]any{"quantity": q.String()})
	}
	return nil
}

// positiveCents converts a money amount that must be at least one cent.
func positiveCents(field string, amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, apperr.Validation("Price must be positive", map[string]any{field: amount.String()})
	}
	cents, err := money.ToMinorUnits(amount)
	if err != nil {
		return 0, outOfRange(field, amount)
	}
	if cents <= 0 {
		return 0, apperr.Validation("Price must be positive", map[string]any{field: amount.String()})
	}
	return cents, nil
}

func outOfRange(field string, amount decimal.Decimal) error {
	return apperr.Validation("Amount exceeds supported range", map[string]any{field: amount.String()})
}

func validateTarget(target decimal.Decimal) error {
	if target.IsNegative() || target.GreaterThan(hundred) {
		return apperr.Validation("Target must be between 0 and 100", map[string]any{
			"target_percentage": target.String(),
		})
	}
	if !target.Equal(target.Truncate(TargetScale)) {
		return apperr.Validation("Target has more than 4 decimal places", map[string]any{
			"target_percentage": target.String(),
		})
	}
	return nil
}

func observe(op string, start time.Time) {
	metrics.OperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
