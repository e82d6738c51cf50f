// Package snapshot records one portfolio value snapshot per user per day.
//
// A snapshot copies each priced holding (ticker, quantity, price, value and
// share of the total) so that history survives later renames, price moves
// and deletions. Taking a second snapshot on the same day replaces the
// first one's numbers and line items rather than adding a row.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/folio/portfolio-engine/internal/apperr"
	"github.com/folio/portfolio-engine/internal/metrics"
	"github.com/folio/portfolio-engine/internal/model"
	"github.com/folio/portfolio-engine/internal/money"
	"github.com/folio/portfolio-engine/internal/store"
)

// PercentageScale is the number of fractional digits kept for line-item shares.
const PercentageScale int32 = 2

var hundred = decimal.NewFromInt(100)

// Notifier receives events after a snapshot commits.
type Notifier interface {
	Publish(ev model.Event)
}

// Aggregator builds and queries snapshots. Days are calendar days in loc.
type Aggregator struct {
	store  store.Store
	events Notifier
	loc    *time.Location
	now    func() time.Time
}

// NewAggregator creates an aggregator. A nil loc means time.Local; events
// may be nil.
func NewAggregator(st store.Store, events Notifier, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	return &Aggregator{
		store:  st,
		events: events,
		loc:    loc,
		now:    time.Now,
	}
}

// Day returns midnight of t's calendar day in the aggregator's location.
func (a *Aggregator) Day(t time.Time) time.Time {
	y, m, d := t.In(a.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, a.loc)
}

// ParseDay parses a YYYY-MM-DD day in the aggregator's location.
func (a *Aggregator) ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, s, a.loc)
}

// CreateSnapshot records today's snapshot for userID, replacing any
// snapshot already taken today.
func (a *Aggregator) CreateSnapshot(ctx context.Context, userID string) (*SnapshotView, error) {
	start := time.Now()
	defer func() {
		metrics.OperationLatency.WithLabelValues("create_snapshot").Observe(time.Since(start).Seconds())
	}()

	positions, err := a.store.ListPositions(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("failed to load assets", err)
	}

	now := a.now()
	items, total, err := lineItems(positions)
	if err != nil {
		slog.Warn("snapshot rejected", "user", userID, "err", err)
		return nil, apperr.Validation("Portfolio value exceeds supported range", nil)
	}
	snap := &model.PortfolioSnapshot{
		ID:              uuid.New().String(),
		UserID:          userID,
		Date:            a.Day(now),
		TotalValueCents: total,
		CreatedAt:       now,
	}

	var created bool
	err = a.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if created, err = tx.UpsertSnapshot(ctx, snap); err != nil {
			return err
		}
		return tx.ReplaceSnapshotAssets(ctx, snap.ID, items)
	})
	if err != nil {
		slog.Error("snapshot failed", "user", userID, "err", err)
		return nil, apperr.Internal("failed to save snapshot", err)
	}
	snap.Assets = items

	result := "replaced"
	if created {
		result = "created"
	}
	metrics.SnapshotsTotal.WithLabelValues(result).Inc()
	slog.Info("snapshot "+result,
		"id", snap.ID,
		"user", userID,
		"day", snap.Date.Format(time.DateOnly),
		"total_cents", total,
		"assets", len(items),
	)
	if a.events != nil {
		a.events.Publish(model.Event{
			Type:       model.EventSnapshotCreated,
			UserID:     userID,
			SnapshotID: snap.ID,
			TotalValue: money.FromMinorUnits(total),
			Count:      len(items),
		})
	}

	v := newSnapshotView(*snap)
	return &v, nil
}

// ListSnapshots returns the user's snapshots in the inclusive day range,
// newest first.
func (a *Aggregator) ListSnapshots(ctx context.Context, userID string, filter Filter) (*SnapshotList, error) {
	var from, to *time.Time
	if filter.From != nil {
		d := a.Day(*filter.From)
		from = &d
	}
	if filter.To != nil {
		d := a.Day(*filter.To)
		to = &d
	}
	if from != nil && to != nil && from.After(*to) {
		return nil, apperr.Validation("from must not be after to", map[string]any{
			"from": from.Format(time.DateOnly),
			"to":   to.Format(time.DateOnly),
		})
	}

	snaps, err := a.store.ListSnapshots(ctx, userID, from, to)
	if err != nil {
		return nil, apperr.Internal("failed to list snapshots", err)
	}

	list := &SnapshotList{Snapshots: make([]SnapshotView, 0, len(snaps)), Total: len(snaps)}
	for _, s := range snaps {
		list.Snapshots = append(list.Snapshots, newSnapshotView(s))
	}
	return list, nil
}

// GetSnapshot returns one snapshot. Snapshots of other users are reported
// as not found.
func (a *Aggregator) GetSnapshot(ctx context.Context, userID, id string) (*SnapshotView, error) {
	snap, err := a.store.GetSnapshot(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && snap.UserID != userID) {
		return nil, apperr.NotFound("Snapshot not found")
	}
	if err != nil {
		return nil, apperr.Internal("failed to load snapshot", err)
	}
	v := newSnapshotView(*snap)
	return &v, nil
}

// lineItems values every asset that has both a holding and a price. Items
// are ordered by value, largest first.
func lineItems(positions []model.AssetPosition) ([]model.SnapshotAsset, int64, error) {
	items := make([]model.SnapshotAsset, 0, len(positions))
	var total int64
	for _, p := range positions {
		if p.Holding == nil || p.Asset.CurrentPrice == nil {
			continue
		}
		price := *p.Asset.CurrentPrice
		value, err := money.ValueMinorUnits(p.Holding.Quantity, price)
		if err != nil {
			return nil, 0, fmt.Errorf("value %s: %w", p.Asset.Ticker, err)
		}
		if total, err = money.AddMinorUnits(total, value); err != nil {
			return nil, 0, fmt.Errorf("total: %w", err)
		}
		items = append(items, model.SnapshotAsset{
			ID:               uuid.New().String(),
			AssetID:          p.Asset.ID,
			Ticker:           p.Asset.Ticker,
			Name:             p.Asset.Name,
			Category:         p.Asset.Category,
			Quantity:         p.Holding.Quantity,
			PriceCents:       price,
			ValueCents:       value,
			TargetPercentage: p.Asset.TargetPercentage,
		})
	}

	for i := range items {
		items[i].Percentage = decimal.Zero
		if total > 0 {
			items[i].Percentage = decimal.NewFromInt(items[i].ValueCents).
				Div(decimal.NewFromInt(total)).
				Mul(hundred).
				Round(PercentageScale)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].ValueCents != items[j].ValueCents {
			return items[i].ValueCents > items[j].ValueCents
		}
		return items[i].Ticker < items[j].Ticker
	})
	return items, total, nil
}
