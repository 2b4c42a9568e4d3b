package costing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVATAmount(t *testing.T) {
	require.InDelta(t, 7.5, VATAmount(50, 0.15), 0.0001)
	require.InDelta(t, 0, VATAmount(100, 0), 0.0001)
}

func TestTotalWithVAT(t *testing.T) {
	require.InDelta(t, 57.5, TotalWithVAT(50, 0.15), 0.0001)
	require.InDelta(t, 100, TotalWithVAT(100, 0), 0.0001)
}

func TestBlendAverageCost(t *testing.T) {
	// First receipt into an empty entry takes the incoming cost.
	require.InDelta(t, 5.0, BlendAverageCost(0, 0, 10, 5.0), 0.0001)

	// Equal quantities blend to the midpoint.
	require.InDelta(t, 5.0, BlendAverageCost(50, 4.0, 50, 6.0), 0.0001)

	// Weighted by quantity, not a plain mean.
	require.InDelta(t, 106666.6667, BlendAverageCost(10, 100000, 5, 120000), 0.1)
}

func TestBlendAverageCostZeroQuantities(t *testing.T) {
	require.Zero(t, BlendAverageCost(0, 0, 0, 0))
	require.Zero(t, BlendAverageCost(0, 0, 0, 99))

	// Adding zero quantity never moves the average, whatever cost it claims.
	require.InDelta(t, 3.25, BlendAverageCost(12, 3.25, 0, 999), 0.0001)
}
