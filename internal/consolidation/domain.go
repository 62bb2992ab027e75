package consolidation

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Entity is an immutable snapshot of a consolidation group member.
type Entity struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	OwnershipPercent decimal.Decimal `json:"ownership_percent"`
	Currency         string          `json:"currency"`
	Consolidated     bool            `json:"consolidated"`
	ParentID         string          `json:"parent_entity_id,omitempty"`
}

// PeriodFinancials holds one entity's figures for a single period, in the
// entity's local currency.
type PeriodFinancials struct {
	EntityID    string          `json:"entity_id"`
	Revenue     decimal.Decimal `json:"revenue"`
	Expenses    decimal.Decimal `json:"expenses"`
	Assets      decimal.Decimal `json:"assets"`
	Liabilities decimal.Decimal `json:"liabilities"`
	Equity      decimal.Decimal `json:"equity"`
}

// EliminationType selects the aggregate bucket an elimination nets against.
type EliminationType string

const (
	// EliminateRevenue nets intercompany sales out of consolidated revenue.
	EliminateRevenue EliminationType = "revenue"
	// EliminateAsset nets intercompany receivables out of total assets.
	EliminateAsset EliminationType = "asset"
	// EliminateLiability nets intercompany payables out of total liabilities.
	EliminateLiability EliminationType = "liability"
	// EliminateEquity nets cross-holdings out of consolidated equity.
	EliminateEquity EliminationType = "equity"
)

// Elimination removes an intercompany transaction from consolidated totals.
type Elimination struct {
	ID               string          `json:"id"`
	AffectedEntities []string        `json:"affected_entities"`
	Amount           decimal.Decimal `json:"amount"`
	Type             EliminationType `json:"elimination_type"`
	// Rate optionally fixes the conversion rate for cross-currency
	// eliminations. When zero the first affected entity's rate applies.
	Rate decimal.Decimal `json:"rate,omitempty"`
}

// AppliedElimination reports the outcome of one elimination. Eliminations
// touching excluded entities are skipped, never silently dropped.
type AppliedElimination struct {
	Elimination
	Skipped         bool            `json:"skipped"`
	ConvertedAmount decimal.Decimal `json:"converted_amount"`
}

// Aggregates summarises consolidated financials in the base currency.
type Aggregates struct {
	Revenue          decimal.Decimal `json:"revenue"`
	Expenses         decimal.Decimal `json:"expenses"`
	NetIncome        decimal.Decimal `json:"net_income"`
	TotalAssets      decimal.Decimal `json:"total_assets"`
	TotalLiabilities decimal.Decimal `json:"total_liabilities"`
	Equity           decimal.Decimal `json:"equity"`
}

// MinorityInterest is the share of a subsidiary's net assets not owned by the parent.
type MinorityInterest struct {
	EntityID      string          `json:"entity_id"`
	MinorityShare decimal.Decimal `json:"minority_share"`
	Amount        decimal.Decimal `json:"amount"`
}

// Report is the consolidated output for one group and period.
type Report struct {
	BaseCurrency      string               `json:"base_currency"`
	Period            string               `json:"period"`
	Entities          []string             `json:"entities"`
	Financials        Aggregates           `json:"consolidated_financials"`
	MinorityInterests []MinorityInterest   `json:"minority_interests"`
	Eliminations      []AppliedElimination `json:"eliminations_applied"`
	GeneratedAt       time.Time            `json:"generated_at"`
}

// Input is the full snapshot a consolidation runs over. The engine never
// mutates it and every invocation is independent.
type Input struct {
	BaseCurrency string
	Period       string
	Entities     []Entity
	Financials   map[string]PeriodFinancials
	Eliminations []Elimination
	Rates        map[string]decimal.Decimal
}

// MissingRateError indicates an included entity's currency has no exchange rate.
type MissingRateError struct {
	Currency string
}

func (e *MissingRateError) Error() string {
	return fmt.Sprintf("consolidation: missing exchange rate for %s", e.Currency)
}

// CircularOwnershipError indicates a cycle in parent links.
type CircularOwnershipError struct {
	EntityID string
}

func (e *CircularOwnershipError) Error() string {
	return fmt.Sprintf("consolidation: circular ownership at entity %s", e.EntityID)
}

// Repository sentinel errors.
var (
	// ErrGroupNotFound indicates the consolidation group is missing.
	ErrGroupNotFound = errors.New("consolidation: group not found")
	// ErrRateNotFound indicates the stored FX rate for a currency/period is missing.
	ErrRateNotFound = errors.New("consolidation: fx rate not found")
)
