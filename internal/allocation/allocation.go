// Package allocation computes deviation-adjusted contribution suggestions:
// how to split a new contribution across a user's assets so that the
// portfolio drifts back toward its target percentages.
//
// All arithmetic uses shopspring/decimal. The final per-asset amounts are
// apportioned in whole cents so that they always add up to the contributed
// amount exactly.
package allocation

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/folio/portfolio-engine/internal/apperr"
	"github.com/folio/portfolio-engine/internal/model"
	"github.com/folio/portfolio-engine/internal/money"
)

var (
	// AdjustmentStrength scales how strongly a contribution corrects the
	// existing deviation.
	AdjustmentStrength = decimal.NewFromFloat(0.5)

	// BalanceThreshold is the deviation, in percentage points, beyond which
	// an asset is classified as under- or overweight.
	BalanceThreshold = decimal.NewFromInt(1)

	// TargetTolerance is the allowed distance of the target sum from 100.
	TargetTolerance = decimal.NewFromFloat(0.01)

	hundred = decimal.NewFromInt(100)
)

// Reason explains why an allocation differs from its base share.
type Reason string

const (
	ReasonUnderweight Reason = "underweight"
	ReasonOverweight  Reason = "overweight"
)

// Allocation is the suggestion for one asset. Actual and Deviation are nil
// when the asset has no holding or no price, or the portfolio has no value.
type Allocation struct {
	AssetID            string  `json:"asset_id"`
	Ticker             string  `json:"ticker"`
	Name               string  `json:"name"`
	TargetPercentage   string  `json:"target_percentage"`
	ActualPercentage   *string `json:"actual_percentage"`
	Deviation          *string `json:"deviation"`
	BaseAllocation     string  `json:"base_allocation"`
	AdjustedAllocation string  `json:"adjusted_allocation"`
	AdjustmentReason   *Reason `json:"adjustment_reason"`
}

// Summary counts assets by classification.
type Summary struct {
	Underweight   int    `json:"underweight"`
	Overweight    int    `json:"overweight"`
	Balanced      int    `json:"balanced"`
	TotalAdjusted string `json:"total_adjusted"`
}

// Suggestion is the full response for one contribution.
type Suggestion struct {
	Amount          string       `json:"amount"`
	DisplayCurrency string       `json:"display_currency"`
	Allocations     []Allocation `json:"allocations"`
	Summary         Summary      `json:"summary"`
}

// Compute builds a suggestion for amountCents over the given positions.
// Positions are processed in ticker order. It fails with a validation
// error if there are no positions or the targets do not sum to 100.
func Compute(positions []model.AssetPosition, amountCents int64) (*Suggestion, error) {
	if amountCents <= 0 {
		return nil, apperr.Validation("Amount must be positive", map[string]any{
			"amount": money.FromMinorUnits(amountCents),
		})
	}
	if len(positions) == 0 {
		return nil, apperr.Validation("No assets configured", nil)
	}

	targetSum := decimal.Zero
	for _, p := range positions {
		targetSum = targetSum.Add(p.Asset.TargetPercentage)
	}
	if targetSum.Sub(hundred).Abs().GreaterThan(TargetTolerance) {
		return nil, apperr.Validation("Targets must sum to 100%", map[string]any{
			"currentSum": targetSum.StringFixed(2),
		})
	}

	sorted := make([]model.AssetPosition, len(positions))
	copy(sorted, positions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Asset.Ticker < sorted[j].Asset.Ticker
	})

	amount := money.Decimal(amountCents)

	values := make([]*decimal.Decimal, len(sorted))
	totalValue := decimal.Zero
	for i, p := range sorted {
		if p.Holding == nil || p.Asset.CurrentPrice == nil {
			continue
		}
		v := p.Holding.Quantity.Mul(money.Decimal(*p.Asset.CurrentPrice))
		values[i] = &v
		totalValue = totalValue.Add(v)
	}

	allocs := make([]Allocation, len(sorted))
	adjusted := make([]decimal.Decimal, len(sorted))
	var summary Summary

	for i, p := range sorted {
		target := p.Asset.TargetPercentage
		base := target.Div(hundred).Mul(amount)

		var actual, deviation *decimal.Decimal
		if values[i] != nil && totalValue.IsPositive() {
			a := values[i].Div(totalValue).Mul(hundred)
			dev := a.Sub(target)
			actual, deviation = &a, &dev
		}

		adjustment := decimal.Zero
		if deviation != nil {
			adjustment = deviation.Neg().Mul(AdjustmentStrength).Mul(amount).Div(hundred)
		}
		adjusted[i] = decimal.Max(decimal.Zero, base.Add(adjustment))

		reason := classify(deviation)
		switch {
		case reason == nil:
			summary.Balanced++
		case *reason == ReasonUnderweight:
			summary.Underweight++
		default:
			summary.Overweight++
		}

		allocs[i] = Allocation{
			AssetID:          p.Asset.ID,
			Ticker:           p.Asset.Ticker,
			Name:             p.Asset.Name,
			TargetPercentage: target.StringFixed(2),
			ActualPercentage: money.FormatAmountNullable(actual),
			Deviation:        money.FormatAmountNullable(deviation),
			BaseAllocation:   money.FormatAmount(base),
			AdjustmentReason: reason,
		}
	}

	for i, cents := range apportion(adjusted, amountCents) {
		allocs[i].AdjustedAllocation = money.FromMinorUnits(cents)
	}

	summary.TotalAdjusted = money.FromMinorUnits(amountCents)
	return &Suggestion{
		Amount:      money.FromMinorUnits(amountCents),
		Allocations: allocs,
		Summary:     summary,
	}, nil
}

func classify(deviation *decimal.Decimal) *Reason {
	if deviation == nil {
		return nil
	}
	var r Reason
	switch {
	case deviation.LessThan(BalanceThreshold.Neg()):
		r = ReasonUnderweight
	case deviation.GreaterThan(BalanceThreshold):
		r = ReasonOverweight
	default:
		return nil
	}
	return &r
}

// apportion splits totalCents proportionally to weights using the largest
// remainder method, so the parts always sum to totalCents. If all weights
// are zero every part is zero.
func apportion(weights []decimal.Decimal, totalCents int64) []int64 {
	parts := make([]int64, len(weights))

	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(w)
	}
	if !sum.IsPositive() {
		return parts
	}

	total := decimal.NewFromInt(totalCents)
	remainders := make([]decimal.Decimal, len(weights))
	assigned := int64(0)
	for i, w := range weights {
		exact := w.Mul(total).Div(sum)
		floor := exact.Floor()
		parts[i] = floor.IntPart()
		remainders[i] = exact.Sub(floor)
		assigned += parts[i]
	}

	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]].GreaterThan(remainders[order[b]])
	})

	for k := int64(0); k < totalCents-assigned; k++ {
		parts[order[int(k)%len(order)]]++
	}
	return parts
}
