package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// driftTolerance absorbs float accumulation noise when comparing an entry
// against the sum of its movements.
const driftTolerance = 0.0001

// LedgerIntegrityJob rechecks the core bookkeeping invariant: each ledger
// entry must equal the sum of the movements posted against it.
type LedgerIntegrityJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics

	scan func(ctx context.Context, branchID int64) ([]ledgerDrift, error)
}

type ledgerDrift struct {
	ProductID int64
	BranchID  int64
	EntryQty  float64
	SumQty    float64
}

// NewLedgerIntegrityJob wires dependencies for the integrity handler.
func NewLedgerIntegrityJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	j := &LedgerIntegrityJob{Pool: pool, Logger: logger, Metrics: metrics}
	j.scan = j.scanDrift
	return j
}

// Handle processes ledger integrity tasks. Any drifted entry fails the run so
// the failure counter fires and the task is retried visibly.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload LedgerIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskLedgerIntegrity)
	defer func() {
		_ = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int64("branch_id", payload.BranchID))
	logger.Info("starting ledger integrity scan")

	drifts, err := j.scan(ctx, payload.BranchID)
	if err != nil {
		resultErr = err
		logger.Error("scan ledger", slog.Any("error", err))
		return resultErr
	}
	if len(drifts) == 0 {
		logger.Info("ledger consistent with movement history")
		return resultErr
	}

	for _, d := range drifts {
		logger.Error("ledger entry drifted from movement history",
			slog.Int64("product_id", d.ProductID),
			slog.Int64("drift_branch_id", d.BranchID),
			slog.Float64("entry_qty", d.EntryQty),
			slog.Float64("movement_sum", d.SumQty))
	}
	resultErr = fmt.Errorf("ledger integrity: %d entries drifted from movement history", len(drifts))
	return resultErr
}

func (j *LedgerIntegrityJob) scanDrift(ctx context.Context, branchID int64) ([]ledgerDrift, error) {
	if j.Pool == nil {
		return nil, errors.New("ledger integrity: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, `SELECT l.product_id, l.branch_id, l.qty, COALESCE(SUM(m.qty), 0) AS movement_sum
FROM stock_ledger l
LEFT JOIN stock_movements m ON m.product_id = l.product_id AND m.branch_id = l.branch_id
WHERE ($1 = 0 OR l.branch_id = $1)
GROUP BY l.product_id, l.branch_id, l.qty
ORDER BY l.branch_id, l.product_id`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drifts []ledgerDrift
	for rows.Next() {
		var d ledgerDrift
		if err := rows.Scan(&d.ProductID, &d.BranchID, &d.EntryQty, &d.SumQty); err != nil {
			return nil, err
		}
		if math.Abs(d.EntryQty-d.SumQty) > driftTolerance {
			drifts = append(drifts, d)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return drifts, nil
}

func (j *LedgerIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrity))
}

func (j *LedgerIntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
