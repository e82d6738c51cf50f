package snapshot

import (
	"time"

	"github.com/folio/portfolio-engine/internal/model"
	"github.com/folio/portfolio-engine/internal/money"
)

// Filter narrows ListSnapshots to an inclusive day range. Nil bounds are open.
type Filter struct {
	From *time.Time
	To   *time.Time
}

// AssetView is one line item of a snapshot.
type AssetView struct {
	AssetID          string `json:"asset_id"`
	Ticker           string `json:"ticker"`
	Name             string `json:"name"`
	Category         string `json:"category"`
	Quantity         string `json:"quantity"`
	Price            string `json:"price"`
	Value            string `json:"value"`
	Percentage       string `json:"percentage"`
	TargetPercentage string `json:"target_percentage"`
}

// SnapshotView is the external form of a snapshot. Date is YYYY-MM-DD.
type SnapshotView struct {
	ID         string      `json:"id"`
	Date       string      `json:"date"`
	TotalValue string      `json:"total_value"`
	Assets     []AssetView `json:"assets"`
	CreatedAt  time.Time   `json:"created_at"`
}

// SnapshotList is the response of ListSnapshots.
type SnapshotList struct {
	Snapshots []SnapshotView `json:"snapshots"`
	Total     int            `json:"total"`
}

// newSnapshotView formats s. The stored day is rendered as-is: rows read
// back from Postgres carry the day at UTC midnight, in-memory rows at
// midnight in the aggregator's location, and both format to the same date.
func newSnapshotView(s model.PortfolioSnapshot) SnapshotView {
	v := SnapshotView{
		ID:         s.ID,
		Date:       s.Date.Format(time.DateOnly),
		TotalValue: money.FromMinorUnits(s.TotalValueCents),
		Assets:     make([]AssetView, 0, len(s.Assets)),
		CreatedAt:  s.CreatedAt,
	}
	for _, a := range s.Assets {
		v.Assets = append(v.Assets, AssetView{
			AssetID:          a.AssetID,
			Ticker:           a.Ticker,
			Name:             a.Name,
			Category:         a.Category,
			Quantity:         money.FormatQuantity(a.Quantity),
			Price:            money.FromMinorUnits(a.PriceCents),
			Value:            money.FromMinorUnits(a.ValueCents),
			Percentage:       a.Percentage.StringFixed(PercentageScale),
			TargetPercentage: a.TargetPercentage.StringFixed(2),
		})
	}
	return v
}
