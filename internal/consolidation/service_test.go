package consolidation

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-fin/meridian/internal/shared"
)

type fakeRepo struct {
	group        Group
	groupErr     error
	entities     []Entity
	financials   map[string]PeriodFinancials
	eliminations []Elimination
	rates        map[string]decimal.Decimal
	storedRates  []FxRateInput
	groupIDs     []int64
	activePeriod string

	financialCalls int
}

func (f *fakeRepo) GetGroup(ctx context.Context, groupID int64) (Group, error) {
	if f.groupErr != nil {
		return Group{}, f.groupErr
	}
	return f.group, nil
}

func (f *fakeRepo) Entities(ctx context.Context, groupID int64) ([]Entity, error) {
	return f.entities, nil
}

func (f *fakeRepo) Financials(ctx context.Context, groupID int64, period string) (map[string]PeriodFinancials, error) {
	f.financialCalls++
	return f.financials, nil
}

func (f *fakeRepo) Eliminations(ctx context.Context, groupID int64, period string) ([]Elimination, error) {
	return f.eliminations, nil
}

func (f *fakeRepo) Rates(ctx context.Context, period string) (map[string]decimal.Decimal, error) {
	return f.rates, nil
}

func (f *fakeRepo) UpsertFxRates(ctx context.Context, inputs []FxRateInput) error {
	f.storedRates = append(f.storedRates, inputs...)
	return nil
}

func (f *fakeRepo) ListGroupIDs(ctx context.Context) ([]int64, error) {
	return f.groupIDs, nil
}

func (f *fakeRepo) ActivePeriod(ctx context.Context) (string, error) {
	return f.activePeriod, nil
}

type fakeAudit struct {
	logs []shared.AuditLog
}

func (f *fakeAudit) Record(ctx context.Context, log shared.AuditLog) error {
	f.logs = append(f.logs, log)
	return nil
}

func newGroupRepo() *fakeRepo {
	return &fakeRepo{
		group: Group{ID: 1, Name: "Group", BaseCurrency: "USD"},
		entities: []Entity{
			subsidiary("parent", "", "USD", "100"),
			subsidiary("euro", "parent", "EUR", "100"),
		},
		financials: map[string]PeriodFinancials{
			"parent": financials("parent", "1000", "400", "5000", "2000", "3000"),
			"euro":   financials("euro", "100", "50", "500", "200", "300"),
		},
		rates: map[string]decimal.Decimal{"EUR": dec("1.10")},
	}
}

func TestServiceBuildReportComposesSnapshot(t *testing.T) {
	repo := newGroupRepo()
	svc := NewService(repo, nil, nil, nil)

	report, err := svc.BuildReport(context.Background(), 1, "2024-06")
	require.NoError(t, err)
	assert.Equal(t, "USD", report.BaseCurrency)
	assert.Equal(t, "2024-06", report.Period)
	assert.Equal(t, []string{"parent", "euro"}, report.Entities)
	assert.True(t, dec("1110.00").Equal(report.Financials.Revenue), "got %s", report.Financials.Revenue)
}

func TestServiceBuildReportRejectsBadPeriod(t *testing.T) {
	svc := NewService(newGroupRepo(), nil, nil, nil)

	_, err := svc.BuildReport(context.Background(), 1, "June 2024")
	assert.Error(t, err)
}

func TestServiceBuildReportGroupNotFound(t *testing.T) {
	repo := newGroupRepo()
	repo.groupErr = ErrGroupNotFound
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.BuildReport(context.Background(), 99, "2024-06")
	require.ErrorIs(t, err, ErrGroupNotFound)
}

func TestServiceRefreshRecordsAudit(t *testing.T) {
	repo := newGroupRepo()
	audit := &fakeAudit{}
	svc := NewService(repo, nil, audit, nil)

	_, err := svc.Refresh(context.Background(), 1, "2024-06")
	require.NoError(t, err)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, "report_refresh", audit.logs[0].Action)
}

func TestServiceStoreFxRates(t *testing.T) {
	repo := newGroupRepo()
	svc := NewService(repo, nil, nil, nil)

	err := svc.StoreFxRates(context.Background(), []FxRateInput{
		{Period: "2024-06", Currency: "EUR", Rate: dec("1.08")},
	})
	require.NoError(t, err)
	require.Len(t, repo.storedRates, 1)
	assert.Equal(t, "EUR", repo.storedRates[0].Currency)

	err = svc.StoreFxRates(context.Background(), nil)
	assert.Error(t, err)

	err = svc.StoreFxRates(context.Background(), []FxRateInput{
		{Period: "bad", Currency: "EUR", Rate: dec("1.08")},
	})
	assert.Error(t, err)
	assert.Len(t, repo.storedRates, 1, "invalid batch must not reach the repository")
}

func TestServiceJobAccessors(t *testing.T) {
	repo := newGroupRepo()
	repo.groupIDs = []int64{1, 2}
	repo.activePeriod = "2024-06"
	svc := NewService(repo, nil, nil, nil)

	ids, err := svc.ListGroupIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)

	period, err := svc.ActivePeriod(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024-06", period)
}
