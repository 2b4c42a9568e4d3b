package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueLedger carries the bookkeeping invariant checks.
	QueueLedger = "ledger"
	// QueueMaintenance carries cache warmups and table pruning.
	QueueMaintenance = "maintenance"

	// TaskLedgerIntegrity verifies that every ledger entry equals the sum
	// of its movements.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskReportingWarmup pre-populates the reporting caches per branch.
	TaskReportingWarmup = "reporting:warmup"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// QueueFor maps a task type to the queue it runs on. Integrity scans go to
// the ledger queue; everything else is maintenance.
func QueueFor(taskType string) string {
	if taskType == TaskLedgerIntegrity {
		return QueueLedger
	}
	return QueueMaintenance
}

// LedgerIntegrityPayload scopes the integrity scan. A zero branch scans all.
type LedgerIntegrityPayload struct {
	BranchID int64 `json:"branch_id"`
}

// NewLedgerIntegrityTask constructs the integrity scan task.
func NewLedgerIntegrityTask(branchID int64) (*asynq.Task, error) {
	data, err := json.Marshal(LedgerIntegrityPayload{BranchID: branchID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data), nil
}

// ReportingWarmupPayload lists the branches to warm. Empty means every branch.
type ReportingWarmupPayload struct {
	BranchIDs []int64 `json:"branch_ids,omitempty"`
}

// NewReportingWarmupTask constructs the cache warmup task.
func NewReportingWarmupTask(branchIDs []int64) (*asynq.Task, error) {
	data, err := json.Marshal(ReportingWarmupPayload{BranchIDs: branchIDs})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportingWarmup, data), nil
}

// IdempotencyCleanupPayload overrides the retention window in hours.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours,omitempty"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retentionHours int) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
