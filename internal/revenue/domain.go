package revenue

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RecognitionMethod enumerates supported revenue recognition policies.
type RecognitionMethod string

const (
	// MethodStraightLine spreads the contract value evenly over its month span.
	MethodStraightLine RecognitionMethod = "straight_line"
	// MethodMilestone recognises revenue per contractual milestone.
	MethodMilestone RecognitionMethod = "milestone"
	// MethodPercentageOfCompletion recognises revenue proportional to costs incurred.
	MethodPercentageOfCompletion RecognitionMethod = "percentage_of_completion"
	// MethodCompletedContract recognises the full value once the contract completes.
	MethodCompletedContract RecognitionMethod = "completed_contract"
)

// ContractStatus enumerates contract lifecycle values.
type ContractStatus string

const (
	// ContractActive indicates an in-flight contract.
	ContractActive ContractStatus = "active"
	// ContractCompleted indicates all performance obligations are met.
	ContractCompleted ContractStatus = "completed"
	// ContractCancelled indicates the contract was terminated.
	ContractCancelled ContractStatus = "cancelled"
)

// Milestone describes a contractual milestone with a cumulative percentage.
type Milestone struct {
	Description string          `json:"description"`
	Percentage  decimal.Decimal `json:"percentage"`
	Amount      decimal.Decimal `json:"amount"`
}

// Contract is an immutable snapshot of a revenue contract. The engine never
// mutates it; persistence is the caller's concern.
type Contract struct {
	ID             int64
	Code           string
	TotalValue     decimal.Decimal
	StartDate      time.Time
	EndDate        time.Time
	Method         RecognitionMethod
	Milestones     []Milestone
	CostEstimate   decimal.Decimal
	Status         ContractStatus
	CompletionDate *time.Time
}

// Validate checks the structural invariants a contract must satisfy before
// any schedule can be generated for it.
func (c Contract) Validate() error {
	if !c.TotalValue.IsPositive() {
		return errors.New("revenue: total value must be positive")
	}
	if !c.EndDate.After(c.StartDate) {
		return errors.New("revenue: end date must be after start date")
	}
	switch c.Method {
	case MethodStraightLine, MethodCompletedContract:
	case MethodMilestone:
		if len(c.Milestones) == 0 {
			return errors.New("revenue: milestone contracts require milestones")
		}
	case MethodPercentageOfCompletion:
		if c.CostEstimate.IsZero() {
			return ErrDivisionByZero
		}
	default:
		return fmt.Errorf("revenue: unknown recognition method %q", c.Method)
	}
	return nil
}

// EntryStatus enumerates recognition entry lifecycle values.
type EntryStatus string

const (
	// StatusPending is the initial state of every entry.
	StatusPending EntryStatus = "pending"
	// StatusApproved indicates the entry passed review.
	StatusApproved EntryStatus = "approved"
	// StatusRecognized indicates the revenue was booked.
	StatusRecognized EntryStatus = "recognized"
	// StatusDeferred indicates recognition was postponed pending re-evaluation.
	StatusDeferred EntryStatus = "deferred"
	// StatusReversed is terminal; the booked revenue was backed out.
	StatusReversed EntryStatus = "reversed"
)

// RecognitionEntry records recognised revenue for a contract period.
type RecognitionEntry struct {
	ID                    int64           `json:"id"`
	ContractID            int64           `json:"contract_id"`
	Period                string          `json:"period"`
	RecognizedAmount      decimal.Decimal `json:"recognized_amount"`
	Status                EntryStatus     `json:"status"`
	IsPerformanceComplete bool            `json:"is_performance_complete"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// ScheduleEntry is one line of a generated recognition schedule.
type ScheduleEntry struct {
	Period string          `json:"period"`
	Label  string          `json:"label,omitempty"`
	Amount decimal.Decimal `json:"amount"`
}

// ScheduleOptions carries per-invocation inputs that are not part of the
// contract snapshot itself.
type ScheduleOptions struct {
	// PeriodCosts feeds percentage-of-completion schedules: actual costs
	// incurred per period, in contract order.
	PeriodCosts []PeriodCost
}

// PeriodCost pairs a period with the costs incurred during it.
type PeriodCost struct {
	Period string          `json:"period"`
	Cost   decimal.Decimal `json:"cost"`
}

// Typed engine errors. All are normal return values scoped to one call.
var (
	// ErrInvalidMilestoneSequence indicates milestone percentages are not
	// strictly increasing or do not end at 100.
	ErrInvalidMilestoneSequence = errors.New("revenue: milestone percentages must increase strictly and end at 100")
	// ErrDivisionByZero indicates a zero cost estimate on a percentage-of-completion contract.
	ErrDivisionByZero = errors.New("revenue: cost estimate must be non-zero")
	// ErrContractNotComplete indicates a completed-contract schedule was requested early.
	ErrContractNotComplete = errors.New("revenue: contract is not complete")
	// ErrContractNotFound indicates the contract is missing.
	ErrContractNotFound = errors.New("revenue: contract not found")
	// ErrEntryNotFound indicates the recognition entry is missing.
	ErrEntryNotFound = errors.New("revenue: recognition entry not found")
)

// OverRecognitionError reports an attempt to recognise beyond the contract ceiling.
type OverRecognitionError struct {
	Amount decimal.Decimal
}

func (e *OverRecognitionError) Error() string {
	return fmt.Sprintf("revenue: over-recognition by %s", e.Amount.StringFixed(2))
}

// StatusTransitionError reports an illegal entry status transition.
type StatusTransitionError struct {
	From EntryStatus
	To   EntryStatus
}

func (e *StatusTransitionError) Error() string {
	return fmt.Sprintf("revenue: illegal status transition %s -> %s", e.From, e.To)
}

// ParseMethod normalises a recognition method string.
func ParseMethod(raw string) (RecognitionMethod, error) {
	method := RecognitionMethod(strings.ToLower(strings.TrimSpace(raw)))
	switch method {
	case MethodStraightLine, MethodMilestone, MethodPercentageOfCompletion, MethodCompletedContract:
		return method, nil
	}
	return "", fmt.Errorf("revenue: unknown recognition method %q", raw)
}
