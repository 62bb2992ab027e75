package consolidation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository provides persistence helpers for consolidation workloads.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a consolidation repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Group is the stored metadata for a consolidation group.
type Group struct {
	ID           int64
	Name         string
	BaseCurrency string
}

// FxRateInput represents a single FX quote to be stored. Rate is units of the
// group base currency per one unit of Currency.
type FxRateInput struct {
	Period   string
	Currency string
	Rate     decimal.Decimal
}

// GetGroup fetches metadata for a consolidation group.
func (r *Repository) GetGroup(ctx context.Context, groupID int64) (Group, error) {
	var zero Group
	if r == nil || r.pool == nil {
		return zero, fmt.Errorf("consolidation repo not initialised")
	}
	const query = `SELECT id, name, base_currency FROM consolidation_groups WHERE id = $1`
	var g Group
	if err := r.pool.QueryRow(ctx, query, groupID).Scan(&g.ID, &g.Name, &g.BaseCurrency); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, ErrGroupNotFound
		}
		return zero, err
	}
	g.BaseCurrency = strings.ToUpper(strings.TrimSpace(g.BaseCurrency))
	return g, nil
}

// Entities returns every member of the group, included or not. Filtering is
// the engine's concern.
func (r *Repository) Entities(ctx context.Context, groupID int64) ([]Entity, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("consolidation repo not initialised")
	}
	const query = `
SELECT entity_id, name, ownership_percent, currency, consolidated, COALESCE(parent_entity_id, '')
FROM consolidation_entities
WHERE group_id = $1
ORDER BY entity_id`
	rows, err := r.pool.Query(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entities []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.OwnershipPercent, &e.Currency, &e.Consolidated, &e.ParentID); err != nil {
			return nil, err
		}
		e.Currency = strings.ToUpper(strings.TrimSpace(e.Currency))
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// Financials loads per-entity figures for one period, keyed by entity id.
// Entities with no row are simply absent; the engine treats them as zeros.
func (r *Repository) Financials(ctx context.Context, groupID int64, period string) (map[string]PeriodFinancials, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("consolidation repo not initialised")
	}
	const query = `
SELECT ef.entity_id, ef.revenue, ef.expenses, ef.assets, ef.liabilities, ef.equity
FROM entity_financials ef
JOIN consolidation_entities ce ON ce.entity_id = ef.entity_id AND ce.group_id = $1
WHERE ef.period = $2`
	rows, err := r.pool.Query(ctx, query, groupID, period)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	financials := make(map[string]PeriodFinancials)
	for rows.Next() {
		var f PeriodFinancials
		if err := rows.Scan(&f.EntityID, &f.Revenue, &f.Expenses, &f.Assets, &f.Liabilities, &f.Equity); err != nil {
			return nil, err
		}
		financials[f.EntityID] = f
	}
	return financials, rows.Err()
}

// Eliminations loads the intercompany eliminations configured for one period.
func (r *Repository) Eliminations(ctx context.Context, groupID int64, period string) ([]Elimination, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("consolidation repo not initialised")
	}
	const query = `
SELECT elimination_id, affected_entities, amount, elimination_type, COALESCE(rate, 0)
FROM eliminations
WHERE group_id = $1 AND period = $2
ORDER BY elimination_id`
	rows, err := r.pool.Query(ctx, query, groupID, period)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var eliminations []Elimination
	for rows.Next() {
		var e Elimination
		if err := rows.Scan(&e.ID, &e.AffectedEntities, &e.Amount, &e.Type, &e.Rate); err != nil {
			return nil, err
		}
		eliminations = append(eliminations, e)
	}
	return eliminations, rows.Err()
}

// Rates loads the FX quotes stored for one period, keyed by currency code.
func (r *Repository) Rates(ctx context.Context, period string) (map[string]decimal.Decimal, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("consolidation repo not initialised")
	}
	const query = `SELECT currency, rate FROM fx_rates WHERE period = $1`
	rows, err := r.pool.Query(ctx, query, period)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	rates := make(map[string]decimal.Decimal)
	for rows.Next() {
		var currency string
		var rate decimal.Decimal
		if err := rows.Scan(&currency, &rate); err != nil {
			return nil, err
		}
		rates[strings.ToUpper(strings.TrimSpace(currency))] = rate
	}
	return rates, rows.Err()
}

// UpsertFxRates persists FX quotes, replacing existing rows when necessary.
func (r *Repository) UpsertFxRates(ctx context.Context, inputs []FxRateInput) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("consolidation repo not initialised")
	}
	if len(inputs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	const query = `
INSERT INTO fx_rates (period, currency, rate)
VALUES ($1, $2, $3)
ON CONFLICT (period, currency)
DO UPDATE SET rate = EXCLUDED.rate`
	for _, in := range inputs {
		currency := strings.ToUpper(strings.TrimSpace(in.Currency))
		if currency == "" {
			return fmt.Errorf("fx currency required")
		}
		if in.Period == "" {
			return fmt.Errorf("fx period required for %s", currency)
		}
		if !in.Rate.IsPositive() {
			return fmt.Errorf("fx rate must be positive for %s %s", currency, in.Period)
		}
		batch.Queue(query, in.Period, currency, in.Rate)
	}
	results := r.pool.SendBatch(ctx, batch)
	for range inputs {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return results.Close()
}

// ListGroupIDs returns the identifiers for all consolidation groups.
func (r *Repository) ListGroupIDs(ctx context.Context) ([]int64, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("consolidation repo not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id FROM consolidation_groups ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ActivePeriod returns the most recent period with stored financials, or ""
// when no figures have been loaded yet.
func (r *Repository) ActivePeriod(ctx context.Context) (string, error) {
	if r == nil || r.pool == nil {
		return "", fmt.Errorf("consolidation repo not initialised")
	}
	const query = `SELECT period FROM entity_financials ORDER BY period DESC LIMIT 1`
	var period string
	if err := r.pool.QueryRow(ctx, query).Scan(&period); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return period, nil
}
