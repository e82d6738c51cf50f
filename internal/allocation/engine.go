package allocation

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/folio/portfolio-engine/internal/apperr"
	"github.com/folio/portfolio-engine/internal/metrics"
	"github.com/folio/portfolio-engine/internal/money"
	"github.com/folio/portfolio-engine/internal/store"
)

// Engine answers contribution-allocation requests from stored state. It
// only reads.
type Engine struct {
	store    store.Store
	currency string
}

// NewEngine creates an allocation engine reporting amounts in currency.
func NewEngine(st store.Store, currency string) *Engine {
	return &Engine{store: st, currency: currency}
}

// SuggestAllocation splits amount across the user's assets.
func (e *Engine) SuggestAllocation(ctx context.Context, userID string, amount decimal.Decimal) (*Suggestion, error) {
	start := time.Now()
	defer func() {
		metrics.OperationLatency.WithLabelValues("suggest_allocation").Observe(time.Since(start).Seconds())
	}()

	if !amount.IsPositive() {
		return nil, apperr.Validation("Amount must be positive", map[string]any{"amount": amount.String()})
	}

	amountCents, err := money.ToMinorUnits(amount)
	if err != nil {
		return nil, apperr.Validation("Amount exceeds supported range", map[string]any{"amount": amount.String()})
	}

	positions, err := e.store.ListPositions(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("failed to load assets", err)
	}

	suggestion, err := Compute(positions, amountCents)
	if err != nil {
		slog.Warn("allocation rejected", "user", userID, "amount", amount.String(), "err", err)
		return nil, err
	}
	suggestion.DisplayCurrency = e.currency

	metrics.AllocationSuggestions.Inc()
	slog.Info("allocation suggested",
		"user", userID,
		"amount", suggestion.Amount,
		"assets", len(suggestion.Allocations),
		"underweight", suggestion.Summary.Underweight,
		"overweight", suggestion.Summary.Overweight,
	)
	return suggestion, nil
}
