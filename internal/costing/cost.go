// Package costing holds the valuation arithmetic shared by every movement
// processor: VAT totals on purchase documents and weighted moving-average
// cost blending on inbound stock.
package costing

// VATAmount returns the tax amount for a base value. Rate is a fraction,
// 0.15 means 15 percent; callers holding a percentage must divide by 100
// before calling.
func VATAmount(base, rate float64) float64 {
	return base * rate
}

// TotalWithVAT returns base plus its VAT amount.
func TotalWithVAT(base, rate float64) float64 {
	return base + VATAmount(base, rate)
}

// BlendAverageCost recomputes the weighted moving-average unit cost after an
// inbound movement. Defined as 0 when both quantities are 0 so a cold ledger
// entry never divides by zero. Outbound movements do not call this; they
// consume at the current average without changing it.
func BlendAverageCost(currentQty, currentAvgCost, incomingQty, incomingCost float64) float64 {
	totalQty := currentQty + incomingQty
	if totalQty == 0 {
		return 0
	}
	return (currentQty*currentAvgCost + incomingQty*incomingCost) / totalQty
}
