package jobs

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-fin/meridian/internal/consolidation"
)

type fakeConsolidation struct {
	groupIDs     []int64
	activePeriod string
	refreshErr   error

	refreshed [][2]string
}

func (f *fakeConsolidation) Refresh(ctx context.Context, groupID int64, period string) (consolidation.Report, error) {
	if f.refreshErr != nil {
		return consolidation.Report{}, f.refreshErr
	}
	f.refreshed = append(f.refreshed, [2]string{strconv.FormatInt(groupID, 10), period})
	return consolidation.Report{Period: period}, nil
}

func (f *fakeConsolidation) ListGroupIDs(ctx context.Context) ([]int64, error) {
	return f.groupIDs, nil
}

func (f *fakeConsolidation) ActivePeriod(ctx context.Context) (string, error) {
	return f.activePeriod, nil
}

func TestConsolidateRefreshAllGroupsActivePeriod(t *testing.T) {
	svc := &fakeConsolidation{groupIDs: []int64{1, 2}, activePeriod: "2024-06"}
	job := NewConsolidateRefreshJob(svc, nil, nil)

	task, err := NewConsolidateRefreshTask("", "")
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, svc.refreshed, 2)
	assert.Equal(t, "2024-06", svc.refreshed[0][1])
}

func TestConsolidateRefreshSingleGroupExplicitPeriod(t *testing.T) {
	svc := &fakeConsolidation{groupIDs: []int64{1, 2}, activePeriod: "2024-06"}
	job := NewConsolidateRefreshJob(svc, nil, nil)

	task, err := NewConsolidateRefreshTask("2", "2024-03")
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, svc.refreshed, 1)
	assert.Equal(t, "2024-03", svc.refreshed[0][1])
}

func TestConsolidateRefreshFailsWithoutActivePeriod(t *testing.T) {
	svc := &fakeConsolidation{groupIDs: []int64{1}}
	job := NewConsolidateRefreshJob(svc, nil, nil)

	task, err := NewConsolidateRefreshTask("all", "active")
	require.NoError(t, err)

	assert.Error(t, job.Handle(context.Background(), task))
}

func TestConsolidateRefreshPropagatesServiceError(t *testing.T) {
	svc := &fakeConsolidation{groupIDs: []int64{1}, activePeriod: "2024-06", refreshErr: errors.New("boom")}
	job := NewConsolidateRefreshJob(svc, nil, nil)

	task, err := NewConsolidateRefreshTask("", "")
	require.NoError(t, err)

	assert.Error(t, job.Handle(context.Background(), task))
}

func TestConsolidateRefreshMalformedPayloadSkipsRetry(t *testing.T) {
	job := NewConsolidateRefreshJob(&fakeConsolidation{}, nil, nil)
	task := asynq.NewTask(TaskConsolidateRefresh, []byte("{"))

	err := job.Handle(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
