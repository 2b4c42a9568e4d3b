package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
)

func TestLedgerIntegrityHandlePassesWhenClean(t *testing.T) {
	job := &LedgerIntegrityJob{}
	job.scan = func(ctx context.Context, branchID int64) ([]ledgerDrift, error) {
		return nil, nil
	}

	task, err := NewLedgerIntegrityTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
}

func TestLedgerIntegrityHandleFailsOnDrift(t *testing.T) {
	job := &LedgerIntegrityJob{}
	job.scan = func(ctx context.Context, branchID int64) ([]ledgerDrift, error) {
		return []ledgerDrift{{ProductID: 1, BranchID: 2, EntryQty: 10, SumQty: 7}}, nil
	}

	task, err := NewLedgerIntegrityTask(2)
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	require.Contains(t, err.Error(), "1 entries drifted")
}

func TestLedgerIntegrityHandleScopesBranch(t *testing.T) {
	job := &LedgerIntegrityJob{}
	var seen int64
	job.scan = func(ctx context.Context, branchID int64) ([]ledgerDrift, error) {
		seen = branchID
		return nil, nil
	}

	task, err := NewLedgerIntegrityTask(7)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, int64(7), seen)
}

func TestLedgerIntegrityHandleSkipsMalformedPayload(t *testing.T) {
	job := &LedgerIntegrityJob{}
	job.scan = func(ctx context.Context, branchID int64) ([]ledgerDrift, error) {
		return nil, errors.New("should not be called")
	}

	err := job.Handle(context.Background(), asynq.NewTask(TaskLedgerIntegrity, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestLedgerIntegrityHandleRecordsRunOutcome(t *testing.T) {
	registry := prometheus.NewRegistry()
	job := &LedgerIntegrityJob{Metrics: jobmetrics.NewMetrics(registry)}
	job.scan = func(ctx context.Context, branchID int64) ([]ledgerDrift, error) {
		return nil, errors.New("scan failed")
	}

	task, err := NewLedgerIntegrityTask(0)
	require.NoError(t, err)
	require.Error(t, job.Handle(context.Background(), task))

	require.InDelta(t, 1, counterValue(t, registry, "meridian_jobs_total", TaskLedgerIntegrity), 1e-9)
	require.InDelta(t, 1, counterValue(t, registry, "meridian_jobs_failures_total", TaskLedgerIntegrity), 1e-9)

	job.scan = func(ctx context.Context, branchID int64) ([]ledgerDrift, error) {
		return nil, nil
	}
	require.NoError(t, job.Handle(context.Background(), task))

	require.InDelta(t, 2, counterValue(t, registry, "meridian_jobs_total", TaskLedgerIntegrity), 1e-9)
	require.InDelta(t, 1, counterValue(t, registry, "meridian_jobs_failures_total", TaskLedgerIntegrity), 1e-9)
}

func counterValue(t *testing.T, registry *prometheus.Registry, name, job string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "job" && label.GetValue() == job {
					total += m.GetCounter().GetValue()
				}
			}
		}
	}
	return total
}
