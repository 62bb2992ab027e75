package revenue

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func straightLineContract(total string, start, end time.Time) Contract {
	return Contract{
		ID:         1,
		TotalValue: dec(total),
		StartDate:  start,
		EndDate:    end,
		Method:     MethodStraightLine,
		Status:     ContractActive,
	}
}

func TestStraightLineScheduleEvenSplit(t *testing.T) {
	contract := straightLineContract("24000.00", date(2024, time.January, 1), date(2024, time.December, 31))

	entries, err := GenerateSchedule(contract, ScheduleOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 12)

	for _, e := range entries {
		assert.True(t, dec("2000.00").Equal(e.Amount), "period %s got %s", e.Period, e.Amount)
	}
	assert.Equal(t, "2024-01", entries[0].Period)
	assert.Equal(t, "2024-12", entries[11].Period)
	assert.True(t, contract.TotalValue.Equal(ScheduleTotal(entries)))
}

func TestStraightLineScheduleRemainderAbsorbedByLastPeriod(t *testing.T) {
	contract := straightLineContract("10000.00", date(2024, time.January, 15), date(2024, time.March, 10))

	entries, err := GenerateSchedule(contract, ScheduleOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.True(t, dec("3333.33").Equal(entries[0].Amount))
	assert.True(t, dec("3333.33").Equal(entries[1].Amount))
	assert.True(t, dec("3333.34").Equal(entries[2].Amount), "final period absorbs the rounding remainder")
	assert.True(t, contract.TotalValue.Equal(ScheduleTotal(entries)))
}

func TestStraightLineScheduleSumInvariant(t *testing.T) {
	cases := []struct {
		total  string
		start  time.Time
		end    time.Time
		months int
	}{
		{"100.00", date(2024, time.January, 1), date(2024, time.July, 31), 7},
		{"0.07", date(2024, time.January, 1), date(2024, time.March, 31), 3},
		{"99999.99", date(2023, time.November, 1), date(2025, time.February, 28), 16},
	}
	for _, tc := range cases {
		contract := straightLineContract(tc.total, tc.start, tc.end)
		entries, err := GenerateSchedule(contract, ScheduleOptions{})
		require.NoError(t, err)
		require.Len(t, entries, tc.months)
		assert.True(t, contract.TotalValue.Equal(ScheduleTotal(entries)), "total %s", tc.total)
	}
}

func milestoneContract(total string, percentages ...string) Contract {
	contract := Contract{
		ID:         2,
		TotalValue: dec(total),
		StartDate:  date(2024, time.January, 1),
		EndDate:    date(2024, time.December, 31),
		Method:     MethodMilestone,
		Status:     ContractActive,
	}
	for _, p := range percentages {
		contract.Milestones = append(contract.Milestones, Milestone{Description: "m" + p, Percentage: dec(p)})
	}
	return contract
}

func TestMilestoneScheduleQuarterSplit(t *testing.T) {
	contract := milestoneContract("100000", "25", "50", "75", "100")

	entries, err := GenerateSchedule(contract, ScheduleOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 4)
	for _, e := range entries {
		assert.True(t, dec("25000").Equal(e.Amount), "milestone %s got %s", e.Label, e.Amount)
	}
}

func TestMilestoneScheduleRejectsBadSequences(t *testing.T) {
	cases := []struct {
		name        string
		percentages []string
	}{
		{"not strictly increasing", []string{"25", "25", "100"}},
		{"decreasing", []string{"50", "25", "100"}},
		{"final not 100", []string{"25", "50", "90"}},
		{"exceeds 100", []string{"50", "120"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			contract := milestoneContract("100000", tc.percentages...)
			_, err := GenerateSchedule(contract, ScheduleOptions{})
			assert.ErrorIs(t, err, ErrInvalidMilestoneSequence)
		})
	}
}

func TestMilestoneScheduleLastEntryAbsorbsRounding(t *testing.T) {
	contract := milestoneContract("100.00", "33.33", "66.66", "100")

	entries, err := GenerateSchedule(contract, ScheduleOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, contract.TotalValue.Equal(ScheduleTotal(entries)))
}

func TestPercentageOfCompletionSchedule(t *testing.T) {
	contract := Contract{
		ID:           3,
		TotalValue:   dec("120000"),
		StartDate:    date(2024, time.January, 1),
		EndDate:      date(2024, time.December, 31),
		Method:       MethodPercentageOfCompletion,
		CostEstimate: dec("60000"),
		Status:       ContractActive,
	}
	costs := []PeriodCost{
		{Period: "2024-01", Cost: dec("15000")},
		{Period: "2024-02", Cost: dec("15000")},
	}

	entries, err := GenerateSchedule(contract, ScheduleOptions{PeriodCosts: costs})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, dec("30000").Equal(entries[0].Amount))
	assert.True(t, dec("30000").Equal(entries[1].Amount))
}

func TestPercentageOfCompletionClampsAtTotalValue(t *testing.T) {
	contract := Contract{
		ID:           3,
		TotalValue:   dec("120000"),
		StartDate:    date(2024, time.January, 1),
		EndDate:      date(2024, time.December, 31),
		Method:       MethodPercentageOfCompletion,
		CostEstimate: dec("60000"),
		Status:       ContractActive,
	}
	// 70000 of costs against a 60000 estimate is >100% complete.
	costs := []PeriodCost{{Period: "2024-01", Cost: dec("70000")}}

	entries, err := GenerateSchedule(contract, ScheduleOptions{PeriodCosts: costs})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, contract.TotalValue.Equal(entries[0].Amount), "recognised amount clamped to total value")
}

func TestPercentageOfCompletionZeroEstimate(t *testing.T) {
	contract := Contract{
		ID:           3,
		TotalValue:   dec("120000"),
		StartDate:    date(2024, time.January, 1),
		EndDate:      date(2024, time.December, 31),
		Method:       MethodPercentageOfCompletion,
		CostEstimate: decimal.Zero,
		Status:       ContractActive,
	}
	_, err := GenerateSchedule(contract, ScheduleOptions{})
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestCompletedContractSchedule(t *testing.T) {
	completion := date(2024, time.June, 15)
	contract := Contract{
		ID:             4,
		TotalValue:     dec("50000"),
		StartDate:      date(2024, time.January, 1),
		EndDate:        date(2024, time.June, 30),
		Method:         MethodCompletedContract,
		Status:         ContractCompleted,
		CompletionDate: &completion,
	}

	entries, err := GenerateSchedule(contract, ScheduleOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "2024-06", entries[0].Period)
	assert.True(t, contract.TotalValue.Equal(entries[0].Amount))
}

func TestCompletedContractRequiresCompletion(t *testing.T) {
	contract := Contract{
		ID:         4,
		TotalValue: dec("50000"),
		StartDate:  date(2024, time.January, 1),
		EndDate:    date(2024, time.June, 30),
		Method:     MethodCompletedContract,
		Status:     ContractActive,
	}
	_, err := GenerateSchedule(contract, ScheduleOptions{})
	assert.ErrorIs(t, err, ErrContractNotComplete)
}

func TestValidateCumulativeDetectsOverRecognition(t *testing.T) {
	contract := straightLineContract("24000.00", date(2024, time.January, 1), date(2024, time.December, 31))
	existing := []RecognitionEntry{
		{RecognizedAmount: dec("12000.00"), Status: StatusRecognized},
		{RecognizedAmount: dec("10000.00"), Status: StatusApproved},
	}

	err := ValidateCumulative(contract, existing, dec("3000.00"))
	var overErr *OverRecognitionError
	require.ErrorAs(t, err, &overErr)
	assert.True(t, dec("1000.00").Equal(overErr.Amount), "got %s", overErr.Amount)
}

func TestValidateCumulativeIgnoresReversedAndDeferred(t *testing.T) {
	contract := straightLineContract("24000.00", date(2024, time.January, 1), date(2024, time.December, 31))
	existing := []RecognitionEntry{
		{RecognizedAmount: dec("20000.00"), Status: StatusReversed},
		{RecognizedAmount: dec("20000.00"), Status: StatusDeferred},
		{RecognizedAmount: dec("2000.00"), Status: StatusPending},
	}

	require.NoError(t, ValidateCumulative(contract, existing, dec("22000.00")))
}

func TestValidateCumulativeExactBoundary(t *testing.T) {
	contract := straightLineContract("24000.00", date(2024, time.January, 1), date(2024, time.December, 31))
	existing := []RecognitionEntry{{RecognizedAmount: dec("23999.99"), Status: StatusRecognized}}

	require.NoError(t, ValidateCumulative(contract, existing, dec("0.01")))

	err := ValidateCumulative(contract, existing, dec("0.02"))
	var overErr *OverRecognitionError
	require.ErrorAs(t, err, &overErr)
	assert.True(t, dec("0.01").Equal(overErr.Amount))
}
