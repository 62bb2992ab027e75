package consolidation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func subsidiary(id, parent, currency string, ownership string) Entity {
	return Entity{
		ID:               id,
		Name:             id,
		OwnershipPercent: dec(ownership),
		Currency:         currency,
		Consolidated:     true,
		ParentID:         parent,
	}
}

func financials(id, revenue, expenses, assets, liabilities, equity string) PeriodFinancials {
	return PeriodFinancials{
		EntityID:    id,
		Revenue:     dec(revenue),
		Expenses:    dec(expenses),
		Assets:      dec(assets),
		Liabilities: dec(liabilities),
		Equity:      dec(equity),
	}
}

func TestConsolidateSingleEntityBaseCurrencyRoundTrip(t *testing.T) {
	input := Input{
		BaseCurrency: "USD",
		Period:       "2024-06",
		Entities:     []Entity{subsidiary("parent", "", "USD", "100")},
		Financials: map[string]PeriodFinancials{
			"parent": financials("parent", "1000.50", "400.25", "5000", "2000", "3000"),
		},
	}

	report, err := Consolidate(input)
	require.NoError(t, err)
	assert.Equal(t, []string{"parent"}, report.Entities)
	assert.True(t, dec("1000.50").Equal(report.Financials.Revenue))
	assert.True(t, dec("400.25").Equal(report.Financials.Expenses))
	assert.True(t, dec("600.25").Equal(report.Financials.NetIncome))
	assert.True(t, dec("5000").Equal(report.Financials.TotalAssets))
	assert.True(t, dec("2000").Equal(report.Financials.TotalLiabilities))
	assert.True(t, dec("3000").Equal(report.Financials.Equity))
}

func TestConsolidateExcludesUnconsolidatedEntities(t *testing.T) {
	investee := subsidiary("investee", "parent", "USD", "30")
	investee.Consolidated = false
	input := Input{
		BaseCurrency: "USD",
		Period:       "2024-06",
		Entities: []Entity{
			subsidiary("parent", "", "USD", "100"),
			investee,
		},
		Financials: map[string]PeriodFinancials{
			"parent":   financials("parent", "1000", "400", "5000", "2000", "3000"),
			"investee": financials("investee", "999", "999", "999", "999", "999"),
		},
	}

	report, err := Consolidate(input)
	require.NoError(t, err)
	assert.Equal(t, []string{"parent"}, report.Entities)
	assert.True(t, dec("1000").Equal(report.Financials.Revenue), "excluded entity contributes nothing")
	assert.True(t, dec("5000").Equal(report.Financials.TotalAssets))
}

func TestConsolidateZeroOwnershipExcludedDespiteFlag(t *testing.T) {
	orphan := subsidiary("orphan", "parent", "USD", "0")
	input := Input{
		BaseCurrency: "USD",
		Period:       "2024-06",
		Entities: []Entity{
			subsidiary("parent", "", "USD", "100"),
			orphan,
		},
		Financials: map[string]PeriodFinancials{
			"parent": financials("parent", "100", "50", "10", "5", "5"),
			"orphan": financials("orphan", "777", "777", "777", "777", "777"),
		},
	}

	report, err := Consolidate(input)
	require.NoError(t, err)
	assert.Equal(t, []string{"parent"}, report.Entities)
	assert.True(t, dec("100").Equal(report.Financials.Revenue))
}

func TestConsolidateCurrencyConversion(t *testing.T) {
	input := Input{
		BaseCurrency: "USD",
		Period:       "2024-06",
		Entities: []Entity{
			subsidiary("parent", "", "USD", "100"),
			subsidiary("euro", "parent", "EUR", "100"),
		},
		Financials: map[string]PeriodFinancials{
			"parent": financials("parent", "1000", "0", "0", "0", "0"),
			"euro":   financials("euro", "100", "0", "0", "0", "0"),
		},
		Rates: map[string]decimal.Decimal{"EUR": dec("1.10")},
	}

	report, err := Consolidate(input)
	require.NoError(t, err)
	assert.True(t, dec("1110.00").Equal(report.Financials.Revenue), "got %s", report.Financials.Revenue)
}

func TestConsolidateMissingExchangeRate(t *testing.T) {
	input := Input{
		BaseCurrency: "USD",
		Period:       "2024-06",
		Entities:     []Entity{subsidiary("tokyo", "", "JPY", "100")},
		Financials:   map[string]PeriodFinancials{},
	}

	_, err := Consolidate(input)
	var missing *MissingRateError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "JPY", missing.Currency)
}

func TestConsolidateMissingFinancialsTreatedAsZero(t *testing.T) {
	input := Input{
		BaseCurrency: "USD",
		Period:       "2024-06",
		Entities: []Entity{
			subsidiary("parent", "", "USD", "100"),
			subsidiary("shell", "parent", "USD", "100"),
		},
		Financials: map[string]PeriodFinancials{
			"parent": financials("parent", "500", "100", "50", "20", "30"),
		},
	}

	report, err := Consolidate(input)
	require.NoError(t, err)
	assert.Equal(t, []string{"parent", "shell"}, report.Entities)
	assert.True(t, dec("500").Equal(report.Financials.Revenue))
}

func TestConsolidateAppliesEliminations(t *testing.T) {
	input := Input{
		BaseCurrency: "USD",
		Period:       "2024-06",
		Entities: []Entity{
			subsidiary("parent", "", "USD", "100"),
			subsidiary("sub", "parent", "USD", "100"),
		},
		Financials: map[string]PeriodFinancials{
			"parent": financials("parent", "1000", "0", "800", "0", "0"),
			"sub":    financials("sub", "500", "0", "200", "300", "0"),
		},
		Eliminations: []Elimination{
			{ID: "e1", AffectedEntities: []string{"parent", "sub"}, Amount: dec("250"), Type: EliminateRevenue},
			{ID: "e2", AffectedEntities: []string{"parent", "sub"}, Amount: dec("100"), Type: EliminateAsset},
		},
	}

	report, err := Consolidate(input)
	require.NoError(t, err)
	assert.True(t, dec("1250").Equal(report.Financials.Revenue))
	assert.True(t, dec("900").Equal(report.Financials.TotalAssets))
	assert.True(t, dec("1250").Equal(report.Financials.NetIncome), "net income reflects post-elimination revenue")
	require.Len(t, report.Eliminations, 2)
	assert.False(t, report.Eliminations[0].Skipped)
	assert.True(t, dec("250").Equal(report.Eliminations[0].ConvertedAmount))
}

func TestConsolidateSkipsEliminationTouchingExcludedEntity(t *testing.T) {
	investee := subsidiary("investee", "parent", "USD", "40")
	investee.Consolidated = false
	input := Input{
		BaseCurrency: "USD",
		Period:       "2024-06",
		Entities: []Entity{
			subsidiary("parent", "", "USD", "100"),
			investee,
		},
		Financials: map[string]PeriodFinancials{
			"parent": financials("parent", "1000", "0", "800", "0", "0"),
		},
		Eliminations: []Elimination{
			{ID: "e1", AffectedEntities: []string{"parent", "investee"}, Amount: dec("250"), Type: EliminateRevenue},
		},
	}

	report, err := Consolidate(input)
	require.NoError(t, err)
	assert.True(t, dec("1000").Equal(report.Financials.Revenue), "skipped elimination must not alter aggregates")
	require.Len(t, report.Eliminations, 1)
	assert.True(t, report.Eliminations[0].Skipped, "skipped, not dropped")
}

func TestConsolidateCrossCurrencyEliminationUsesExplicitRate(t *testing.T) {
	input := Input{
		BaseCurrency: "USD",
		Period:       "2024-06",
		Entities: []Entity{
			subsidiary("parent", "", "USD", "100"),
			subsidiary("euro", "parent", "EUR", "100"),
		},
		Financials: map[string]PeriodFinancials{
			"parent": financials("parent", "1000", "0", "0", "0", "0"),
			"euro":   financials("euro", "1000", "0", "0", "0", "0"),
		},
		Rates: map[string]decimal.Decimal{"EUR": dec("1.10")},
		Eliminations: []Elimination{
			{ID: "e1", AffectedEntities: []string{"euro", "parent"}, Amount: dec("100"), Type: EliminateRevenue, Rate: dec("1.20")},
			{ID: "e2", AffectedEntities: []string{"euro", "parent"}, Amount: dec("100"), Type: EliminateRevenue},
		},
	}

	report, err := Consolidate(input)
	require.NoError(t, err)
	// 1000 + 1100 - 120 (explicit rate) - 110 (entity rate).
	assert.True(t, dec("1870.00").Equal(report.Financials.Revenue), "got %s", report.Financials.Revenue)
}

func TestConsolidateMinorityInterests(t *testing.T) {
	input := Input{
		BaseCurrency: "USD",
		Period:       "2024-06",
		Entities: []Entity{
			subsidiary("parent", "", "USD", "100"),
			subsidiary("sub", "parent", "USD", "80"),
		},
		Financials: map[string]PeriodFinancials{
			"parent": financials("parent", "0", "0", "1000", "400", "600"),
			"sub":    financials("sub", "0", "0", "500", "200", "300"),
		},
	}

	report, err := Consolidate(input)
	require.NoError(t, err)
	require.Len(t, report.MinorityInterests, 1)
	mi := report.MinorityInterests[0]
	assert.Equal(t, "sub", mi.EntityID)
	assert.True(t, dec("20").Equal(mi.MinorityShare))
	// 20% of (500 - 200) converted net assets.
	assert.True(t, dec("60.00").Equal(mi.Amount), "got %s", mi.Amount)
}

func TestConsolidateMinorityInterestRequiresIncludedParent(t *testing.T) {
	outside := subsidiary("outside", "", "USD", "100")
	outside.Consolidated = false
	input := Input{
		BaseCurrency: "USD",
		Period:       "2024-06",
		Entities: []Entity{
			outside,
			subsidiary("sub", "outside", "USD", "80"),
		},
		Financials: map[string]PeriodFinancials{
			"sub": financials("sub", "0", "0", "500", "200", "300"),
		},
	}

	report, err := Consolidate(input)
	require.NoError(t, err)
	assert.Empty(t, report.MinorityInterests)
}

func TestConsolidateDetectsCircularOwnership(t *testing.T) {
	input := Input{
		BaseCurrency: "USD",
		Period:       "2024-06",
		Entities: []Entity{
			subsidiary("a", "b", "USD", "100"),
			subsidiary("b", "a", "USD", "100"),
		},
		Financials: map[string]PeriodFinancials{},
	}

	_, err := Consolidate(input)
	var circular *CircularOwnershipError
	require.ErrorAs(t, err, &circular)
}

func TestConsolidateSelfParentIsCircular(t *testing.T) {
	input := Input{
		BaseCurrency: "USD",
		Period:       "2024-06",
		Entities:     []Entity{subsidiary("a", "a", "USD", "100")},
		Financials:   map[string]PeriodFinancials{},
	}

	_, err := Consolidate(input)
	var circular *CircularOwnershipError
	require.ErrorAs(t, err, &circular)
	assert.Equal(t, "a", circular.EntityID)
}
