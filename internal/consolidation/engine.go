package consolidation

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Consolidate produces a consolidated report from the input snapshot. The
// computation is pure and single threaded; callers may invoke it concurrently
// since inputs are immutable value objects and the output is freshly allocated.
func Consolidate(input Input) (Report, error) {
	base := strings.ToUpper(strings.TrimSpace(input.BaseCurrency))

	byID := make(map[string]Entity, len(input.Entities))
	for _, entity := range input.Entities {
		byID[entity.ID] = entity
	}
	if err := detectCycles(input.Entities, byID); err != nil {
		return Report{}, err
	}

	// An entity with zero ownership cannot consolidate regardless of its flag,
	// and unconsolidated investees are excluded entirely, not zero-weighted.
	included := make(map[string]struct{})
	var order []string
	for _, entity := range input.Entities {
		if !entity.Consolidated || !entity.OwnershipPercent.IsPositive() {
			continue
		}
		included[entity.ID] = struct{}{}
		order = append(order, entity.ID)
	}

	converted := make(map[string]PeriodFinancials, len(order))
	var agg Aggregates
	for _, id := range order {
		entity := byID[id]
		rate, err := rateFor(entity.Currency, base, input.Rates)
		if err != nil {
			return Report{}, err
		}
		fin := convertFinancials(input.Financials[id], rate)
		converted[id] = fin
		agg.Revenue = agg.Revenue.Add(fin.Revenue)
		agg.Expenses = agg.Expenses.Add(fin.Expenses)
		agg.TotalAssets = agg.TotalAssets.Add(fin.Assets)
		agg.TotalLiabilities = agg.TotalLiabilities.Add(fin.Liabilities)
		agg.Equity = agg.Equity.Add(fin.Equity)
	}

	applied := make([]AppliedElimination, 0, len(input.Eliminations))
	for _, elim := range input.Eliminations {
		if !allIncluded(elim.AffectedEntities, included) {
			applied = append(applied, AppliedElimination{Elimination: elim, Skipped: true})
			continue
		}
		amount, err := eliminationAmount(elim, byID, base, input.Rates)
		if err != nil {
			return Report{}, err
		}
		switch elim.Type {
		case EliminateRevenue:
			agg.Revenue = agg.Revenue.Sub(amount)
		case EliminateAsset:
			agg.TotalAssets = agg.TotalAssets.Sub(amount)
		case EliminateLiability:
			agg.TotalLiabilities = agg.TotalLiabilities.Sub(amount)
		case EliminateEquity:
			agg.Equity = agg.Equity.Sub(amount)
		}
		applied = append(applied, AppliedElimination{Elimination: elim, ConvertedAmount: amount})
	}

	agg.NetIncome = agg.Revenue.Sub(agg.Expenses)

	var minorities []MinorityInterest
	for _, id := range order {
		entity := byID[id]
		if !entity.OwnershipPercent.LessThan(hundred) || entity.ParentID == "" {
			continue
		}
		if _, ok := included[entity.ParentID]; !ok {
			continue
		}
		fin := converted[id]
		share := hundred.Sub(entity.OwnershipPercent)
		amount := share.Div(hundred).Mul(fin.Assets.Sub(fin.Liabilities)).Round(2)
		minorities = append(minorities, MinorityInterest{
			EntityID:      id,
			MinorityShare: share,
			Amount:        amount,
		})
	}

	return Report{
		BaseCurrency:      base,
		Period:            input.Period,
		Entities:          order,
		Financials:        agg,
		MinorityInterests: minorities,
		Eliminations:      applied,
		GeneratedAt:       time.Now().UTC(),
	}, nil
}

// detectCycles walks every parent chain before any filtering so that a cycle
// among excluded entities still fails the run.
func detectCycles(entities []Entity, byID map[string]Entity) error {
	for _, entity := range entities {
		seen := map[string]struct{}{entity.ID: {}}
		current := entity.ParentID
		for current != "" {
			if _, ok := seen[current]; ok {
				return &CircularOwnershipError{EntityID: current}
			}
			seen[current] = struct{}{}
			parent, ok := byID[current]
			if !ok {
				break
			}
			current = parent.ParentID
		}
	}
	return nil
}

// rateFor resolves the conversion rate into the base currency. Rates are
// expressed as units of base currency per one unit of foreign currency.
func rateFor(currency, base string, rates map[string]decimal.Decimal) (decimal.Decimal, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == base {
		return decimal.NewFromInt(1), nil
	}
	rate, ok := rates[currency]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, &MissingRateError{Currency: currency}
	}
	return rate, nil
}

func convertFinancials(fin PeriodFinancials, rate decimal.Decimal) PeriodFinancials {
	return PeriodFinancials{
		EntityID:    fin.EntityID,
		Revenue:     fin.Revenue.Mul(rate).Round(2),
		Expenses:    fin.Expenses.Mul(rate).Round(2),
		Assets:      fin.Assets.Mul(rate).Round(2),
		Liabilities: fin.Liabilities.Mul(rate).Round(2),
		Equity:      fin.Equity.Mul(rate).Round(2),
	}
}

func allIncluded(ids []string, included map[string]struct{}) bool {
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if _, ok := included[id]; !ok {
			return false
		}
	}
	return true
}

// eliminationAmount converts an elimination into the base currency, using the
// explicit cross-currency rate when provided, otherwise the first affected
// entity's own rate.
func eliminationAmount(elim Elimination, byID map[string]Entity, base string, rates map[string]decimal.Decimal) (decimal.Decimal, error) {
	if elim.Rate.IsPositive() {
		return elim.Amount.Mul(elim.Rate).Round(2), nil
	}
	entity := byID[elim.AffectedEntities[0]]
	rate, err := rateFor(entity.Currency, base, rates)
	if err != nil {
		return decimal.Zero, err
	}
	return elim.Amount.Mul(rate).Round(2), nil
}
