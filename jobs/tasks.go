package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskConsolidateRefresh rebuilds consolidated reports.
	TaskConsolidateRefresh = "consolidation:refresh"
	// TaskScheduleRefresh regenerates revenue recognition schedules.
	TaskScheduleRefresh = "revenue:schedule_refresh"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// ConsolidateRefreshPayload configures the scope of the consolidation refresh job.
type ConsolidateRefreshPayload struct {
	GroupID string `json:"group_id"`
	Period  string `json:"period"`
}

// NewConsolidateRefreshTask creates a task for rebuilding consolidated reports.
// An empty group refreshes every group, an empty period resolves to the latest
// loaded one at execution time.
func NewConsolidateRefreshTask(groupID, period string) (*asynq.Task, error) {
	if groupID == "" {
		groupID = "all"
	}
	if period == "" {
		period = "active"
	}
	body, err := json.Marshal(ConsolidateRefreshPayload{GroupID: groupID, Period: period})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskConsolidateRefresh, body, asynq.Queue(QueueDefault)), nil
}

// ScheduleRefreshPayload configures the scope of the schedule refresh job.
type ScheduleRefreshPayload struct {
	ContractID string `json:"contract_id"`
}

// NewScheduleRefreshTask creates a task for regenerating recognition schedules.
func NewScheduleRefreshTask(contractID string) (*asynq.Task, error) {
	if contractID == "" {
		contractID = "all"
	}
	body, err := json.Marshal(ScheduleRefreshPayload{ContractID: contractID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskScheduleRefresh, body, asynq.Queue(QueueDefault)), nil
}

// NewIdempotencyCleanupTask creates a task for pruning expired idempotency keys.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.Queue(QueueDefault))
}
