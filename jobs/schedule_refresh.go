package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-fin/meridian/internal/jobs"
	"github.com/meridian-fin/meridian/internal/revenue"
)

// RevenueService regenerates recognition schedules.
type RevenueService interface {
	GenerateSchedule(ctx context.Context, contractID int64) ([]revenue.ScheduleEntry, error)
}

// ContractLister enumerates contracts eligible for schedule regeneration.
type ContractLister interface {
	ListContractIDs(ctx context.Context) ([]int64, error)
}

// ScheduleRefreshJob regenerates recognition schedules, typically on a cron
// after period cost uploads land.
type ScheduleRefreshJob struct {
	Service RevenueService
	Repo    ContractLister
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewScheduleRefreshJob constructs the job handler.
func NewScheduleRefreshJob(service RevenueService, repo ContractLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *ScheduleRefreshJob {
	return &ScheduleRefreshJob{Service: service, Repo: repo, Logger: logger, Metrics: metrics}
}

// Handle executes the schedule refresh job.
func (j *ScheduleRefreshJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil || j.Repo == nil {
		return errors.New("schedule refresh: dependencies not configured")
	}
	var payload ScheduleRefreshPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.ContractID == "" {
		payload.ContractID = "all"
	}

	tracker := j.metrics().Track(TaskScheduleRefresh)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	contractIDs, err := j.resolveContracts(ctx, payload.ContractID)
	if err != nil {
		resultErr = err
		j.log().Error("resolve contracts", slog.String("contract", payload.ContractID), slog.Any("error", err))
		return resultErr
	}

	start := time.Now()
	refreshed := 0
	for _, contractID := range contractIDs {
		if _, err := j.Service.GenerateSchedule(ctx, contractID); err != nil {
			// Contracts that cannot produce a schedule yet, such as
			// percentage-of-completion contracts without costs or incomplete
			// completed-contract deals, must not abort the batch.
			j.log().Warn("generate schedule", slog.Int64("contract_id", contractID), slog.Any("error", err))
			continue
		}
		refreshed++
	}

	j.log().Info("regenerated recognition schedules", slog.Int("contracts", refreshed), slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *ScheduleRefreshJob) resolveContracts(ctx context.Context, contract string) ([]int64, error) {
	if contract == "" || contract == "all" {
		return j.Repo.ListContractIDs(ctx)
	}
	id, err := strconv.ParseInt(contract, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid contract id %s", contract)
	}
	if id <= 0 {
		return nil, fmt.Errorf("contract id must be positive")
	}
	return []int64{id}, nil
}

func (j *ScheduleRefreshJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *ScheduleRefreshJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskScheduleRefresh))
	}
	return slog.Default().With(slog.String("job", TaskScheduleRefresh))
}
