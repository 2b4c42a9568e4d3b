package reporting

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	valuationCalls atomic.Int64
}

func (r *fakeRepo) ValuationByBranch(ctx context.Context, branchID int64) (ValuationReport, error) {
	r.valuationCalls.Add(1)
	return ValuationReport{
		BranchID: branchID,
		Rows: []ValuationRow{
			{ProductID: 1, SKU: "BEV-SOFT-AAAAAA", Name: "Cola", Qty: 100, AvgCost: 5.00, Value: 500},
			{ProductID: 2, SKU: "BEV-SOFT-BBBBBB", Name: "Water", Qty: 50, AvgCost: 1.00, Value: 50},
		},
		TotalValue: 550,
		AsOf:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}, nil
}

func (r *fakeRepo) ValuationByCategory(ctx context.Context, branchID int64) ([]CategoryValuationRow, error) {
	return []CategoryValuationRow{{CategoryID: 1, CategoryName: "Beverages", Value: 550}}, nil
}

func (r *fakeRepo) MovementSummary(ctx context.Context, branchID int64, period Range) ([]MovementSummaryRow, error) {
	return []MovementSummaryRow{{Kind: "PURCHASE", QtyIn: 150, CostIn: 550, Count: 2}}, nil
}

func (r *fakeRepo) WasteByReason(ctx context.Context, branchID int64, period Range) ([]WasteReasonRow, error) {
	return []WasteReasonRow{{Reason: "expiry", Qty: 3, TotalCost: 15, Count: 1}}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildOverviewFansOut(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(discardLogger(), repo, NewCache(nil))

	overview, err := svc.BuildOverview(context.Background(), 1, Range{
		From: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.InDelta(t, 550, overview.Valuation.TotalValue, 1e-9)
	require.Len(t, overview.Categories, 1)
	require.Len(t, overview.Movements, 1)
	require.Len(t, overview.Waste, 1)
}

func TestValuationUsesCache(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(discardLogger(), repo, newTestCache(t))
	ctx := context.Background()

	_, err := svc.Valuation(ctx, 1)
	require.NoError(t, err)
	_, err = svc.Valuation(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), repo.valuationCalls.Load())
}

func TestValuationRejectsMissingBranch(t *testing.T) {
	svc := NewService(discardLogger(), &fakeRepo{}, NewCache(nil))
	_, err := svc.Valuation(context.Background(), 0)
	require.ErrorIs(t, err, ErrValidation)
}

func TestWriteValuationCSV(t *testing.T) {
	repo := &fakeRepo{}
	report, err := repo.ValuationByBranch(context.Background(), 1)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteValuationCSV(&buf, report))

	out := buf.String()
	require.Contains(t, out, "# Report: Stock Valuation\r\n")
	require.Contains(t, out, "# Total value: 550.00")
	require.Contains(t, out, "Product ID,SKU,Name,Quantity,Average Cost,Value\r\n")
	require.Contains(t, out, "1,BEV-SOFT-AAAAAA,Cola,100.00,5.00,500.00\r\n")
	require.True(t, strings.HasSuffix(out, "\r\n"))
}

func TestWriteWasteCSV(t *testing.T) {
	var buf bytes.Buffer
	period := Range{
		From: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	rows := []WasteReasonRow{{Reason: "expiry", Qty: 3, TotalCost: 15, Count: 1}}
	require.NoError(t, WriteWasteCSV(&buf, 1, period, rows))

	out := buf.String()
	require.Contains(t, out, "# Report: Waste by Reason\r\n")
	require.Contains(t, out, "expiry,3.00,15.00,1\r\n")
}
