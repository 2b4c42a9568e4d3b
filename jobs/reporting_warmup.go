package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
	"github.com/meridian-erp/meridian-erp/internal/reporting"
)

// ReportingWarmupJob pre-populates the reporting caches so the first
// dashboard request of the day does not pay for the aggregation.
type ReportingWarmupJob struct {
	Reports *reporting.Service
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReportingWarmupJob wires dependencies for the warmup handler.
func NewReportingWarmupJob(reports *reporting.Service, pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportingWarmupJob {
	return &ReportingWarmupJob{Reports: reports, Pool: pool, Logger: logger, Metrics: metrics}
}

// Handle processes reporting warmup tasks.
func (j *ReportingWarmupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil {
		return errors.New("reporting warmup: handler not configured")
	}
	var payload ReportingWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskReportingWarmup)
	defer func() {
		_ = tracker.End(resultErr)
	}()

	logger := j.logger()
	branchIDs := payload.BranchIDs
	if len(branchIDs) == 0 {
		ids, err := j.fetchBranches(ctx)
		if err != nil {
			resultErr = err
			logger.Error("load branches", slog.Any("error", err))
			return resultErr
		}
		branchIDs = ids
	}
	if len(branchIDs) == 0 {
		logger.Info("no branches to warm")
		return resultErr
	}

	// Cap each run so a slow aggregation cannot hold the worker slot.
	warmCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	if err := j.Reports.WarmCaches(warmCtx, branchIDs); err != nil {
		resultErr = err
		logger.Error("warm reporting caches", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed reporting warmup",
		slog.Int("branches", len(branchIDs)),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *ReportingWarmupJob) fetchBranches(ctx context.Context) ([]int64, error) {
	if j.Pool == nil {
		return nil, errors.New("reporting warmup: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, `SELECT id FROM branches ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (j *ReportingWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReportingWarmup))
	}
	return slog.Default().With(slog.String("job", TaskReportingWarmup))
}

func (j *ReportingWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
