package jobs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueueForRoutesTasks(t *testing.T) {
	require.Equal(t, QueueLedger, QueueFor(TaskLedgerIntegrity))
	require.Equal(t, QueueMaintenance, QueueFor(TaskReportingWarmup))
	require.Equal(t, QueueMaintenance, QueueFor(TaskIdempotencyCleanup))
}

func TestQueueWeightsCoverEveryRoutedQueue(t *testing.T) {
	for _, taskType := range []string{TaskLedgerIntegrity, TaskReportingWarmup, TaskIdempotencyCleanup} {
		_, ok := queueWeights[QueueFor(taskType)]
		require.True(t, ok, "no weight for queue of task %s", taskType)
	}
}
