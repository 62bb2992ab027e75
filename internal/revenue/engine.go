package revenue

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// GenerateSchedule produces a recognition schedule for the contract snapshot.
// The computation is pure: inputs are never mutated and every call allocates
// fresh output, so callers may run it concurrently.
func GenerateSchedule(contract Contract, opts ScheduleOptions) ([]ScheduleEntry, error) {
	if err := contract.Validate(); err != nil {
		return nil, err
	}
	switch contract.Method {
	case MethodStraightLine:
		return straightLineSchedule(contract), nil
	case MethodMilestone:
		return milestoneSchedule(contract)
	case MethodPercentageOfCompletion:
		return completionSchedule(contract, opts.PeriodCosts)
	case MethodCompletedContract:
		return completedContractSchedule(contract)
	}
	return nil, fmt.Errorf("revenue: unknown recognition method %q", contract.Method)
}

// straightLineSchedule divides the total evenly across the whole-month span,
// with the final period absorbing the rounding remainder so the schedule sums
// exactly to the contract value.
func straightLineSchedule(contract Contract) []ScheduleEntry {
	periods := monthSpan(contract.StartDate, contract.EndDate)
	count := decimal.NewFromInt(int64(len(periods)))
	per := contract.TotalValue.Div(count).Round(2)

	entries := make([]ScheduleEntry, len(periods))
	running := decimal.Zero
	for i, period := range periods {
		amount := per
		if i == len(periods)-1 {
			amount = contract.TotalValue.Sub(running)
		}
		entries[i] = ScheduleEntry{Period: period, Amount: amount}
		running = running.Add(amount)
	}
	return entries
}

// milestoneSchedule emits one entry per milestone. The amount for milestone i
// is the delta between its cumulative percentage and the previous one, with
// the last milestone absorbing the rounding remainder.
func milestoneSchedule(contract Contract) ([]ScheduleEntry, error) {
	previous := decimal.Zero
	entries := make([]ScheduleEntry, len(contract.Milestones))
	running := decimal.Zero
	for i, ms := range contract.Milestones {
		if !ms.Percentage.GreaterThan(previous) {
			return nil, ErrInvalidMilestoneSequence
		}
		if ms.Percentage.GreaterThan(hundred) {
			return nil, ErrInvalidMilestoneSequence
		}
		amount := contract.TotalValue.Mul(ms.Percentage.Sub(previous)).Div(hundred).Round(2)
		if i == len(contract.Milestones)-1 {
			if !ms.Percentage.Equal(hundred) {
				return nil, ErrInvalidMilestoneSequence
			}
			amount = contract.TotalValue.Sub(running)
		}
		entries[i] = ScheduleEntry{Label: ms.Description, Amount: amount}
		previous = ms.Percentage
		running = running.Add(amount)
	}
	return entries, nil
}

// completionSchedule recognises revenue proportional to costs incurred versus
// the total cost estimate, clamped so cumulative recognition never exceeds the
// contract value.
func completionSchedule(contract Contract, costs []PeriodCost) ([]ScheduleEntry, error) {
	if contract.CostEstimate.IsZero() {
		return nil, ErrDivisionByZero
	}
	entries := make([]ScheduleEntry, 0, len(costs))
	recognised := decimal.Zero
	for _, pc := range costs {
		completion := pc.Cost.Div(contract.CostEstimate)
		amount := contract.TotalValue.Mul(completion).Round(2)
		if recognised.Add(amount).GreaterThan(contract.TotalValue) {
			amount = contract.TotalValue.Sub(recognised)
		}
		entries = append(entries, ScheduleEntry{Period: pc.Period, Amount: amount})
		recognised = recognised.Add(amount)
	}
	return entries, nil
}

// completedContractSchedule emits a single entry dated at the completion month.
func completedContractSchedule(contract Contract) ([]ScheduleEntry, error) {
	if contract.Status != ContractCompleted || contract.CompletionDate == nil {
		return nil, ErrContractNotComplete
	}
	return []ScheduleEntry{{
		Period: contract.CompletionDate.Format("2006-01"),
		Amount: contract.TotalValue,
	}}, nil
}

// ValidateCumulative checks that recognising newAmount would not push the
// contract past its ceiling. Entries in pending, approved or recognized state
// count toward the total; deferred and reversed entries do not. The comparison
// is exact decimal arithmetic, no epsilon.
func ValidateCumulative(contract Contract, entries []RecognitionEntry, newAmount decimal.Decimal) error {
	sum := decimal.Zero
	for _, entry := range entries {
		switch entry.Status {
		case StatusPending, StatusApproved, StatusRecognized:
			sum = sum.Add(entry.RecognizedAmount)
		}
	}
	total := sum.Add(newAmount)
	if total.GreaterThan(contract.TotalValue) {
		return &OverRecognitionError{Amount: total.Sub(contract.TotalValue)}
	}
	return nil
}

// ScheduleTotal sums a schedule; by construction it equals the contract value
// for straight-line and milestone methods.
func ScheduleTotal(entries []ScheduleEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total
}

// monthSpan enumerates YYYY-MM periods from start to end inclusive.
func monthSpan(start, end time.Time) []string {
	cursor := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
	var periods []string
	for !cursor.After(last) {
		periods = append(periods, cursor.Format("2006-01"))
		cursor = cursor.AddDate(0, 1, 0)
	}
	return periods
}
