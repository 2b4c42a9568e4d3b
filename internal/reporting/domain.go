// Package reporting serves read-side projections over the stock ledger:
// valuation, movement summaries, and waste breakdowns. Results are cached
// in Redis under versioned keys that are bumped whenever a movement posts.
package reporting

import (
	"errors"
	"time"
)

// ValuationRow is one product's stock value at a branch.
type ValuationRow struct {
	ProductID int64   `json:"product_id"`
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	Qty       float64 `json:"qty"`
	AvgCost   float64 `json:"avg_cost"`
	Value     float64 `json:"value"`
}

// ValuationReport is the per-branch stock valuation.
type ValuationReport struct {
	BranchID   int64          `json:"branch_id"`
	Rows       []ValuationRow `json:"rows"`
	TotalValue float64        `json:"total_value"`
	AsOf       time.Time      `json:"as_of"`
}

// CategoryValuationRow aggregates stock value per category.
type CategoryValuationRow struct {
	CategoryID   int64   `json:"category_id"`
	CategoryName string  `json:"category_name"`
	Value        float64 `json:"value"`
}

// MovementSummaryRow aggregates movements of one kind over a date range.
type MovementSummaryRow struct {
	Kind     string  `json:"kind"`
	QtyIn    float64 `json:"qty_in"`
	QtyOut   float64 `json:"qty_out"`
	CostIn   float64 `json:"cost_in"`
	CostOut  float64 `json:"cost_out"`
	Count    int64   `json:"count"`
}

// WasteReasonRow aggregates write-offs per reason over a date range.
type WasteReasonRow struct {
	Reason    string  `json:"reason"`
	Qty       float64 `json:"qty"`
	TotalCost float64 `json:"total_cost"`
	Count     int64   `json:"count"`
}

// Overview is the fan-out bundle served on the reporting dashboard.
type Overview struct {
	Valuation  ValuationReport        `json:"valuation"`
	Categories []CategoryValuationRow `json:"categories"`
	Movements  []MovementSummaryRow   `json:"movements"`
	Waste      []WasteReasonRow       `json:"waste"`
}

// Range is an inclusive reporting period.
type Range struct {
	From time.Time
	To   time.Time
}

// ErrValidation indicates invalid report parameters.
var ErrValidation = errors.New("reporting: invalid input")
