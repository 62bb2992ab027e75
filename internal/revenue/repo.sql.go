package revenue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-fin/meridian/internal/platform/db"
)

// Repository provides persistence helpers for revenue recognition workloads.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a revenue repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetContract loads a contract snapshot by id.
func (r *Repository) GetContract(ctx context.Context, id int64) (Contract, error) {
	var zero Contract
	if r == nil || r.pool == nil {
		return zero, fmt.Errorf("revenue repo not initialised")
	}
	const query = `
SELECT id, code, total_value, start_date, end_date, method, milestones, cost_estimate, status, completion_date
FROM revenue_contracts
WHERE id = $1`
	var (
		contract       Contract
		milestonesJSON []byte
		completionDate *time.Time
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&contract.ID,
		&contract.Code,
		&contract.TotalValue,
		&contract.StartDate,
		&contract.EndDate,
		&contract.Method,
		&milestonesJSON,
		&contract.CostEstimate,
		&contract.Status,
		&completionDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, ErrContractNotFound
		}
		return zero, err
	}
	if len(milestonesJSON) > 0 {
		if err := json.Unmarshal(milestonesJSON, &contract.Milestones); err != nil {
			return zero, fmt.Errorf("revenue: decode milestones: %w", err)
		}
	}
	contract.CompletionDate = completionDate
	return contract, nil
}

// ListEntries returns all recognition entries for a contract ordered by period.
func (r *Repository) ListEntries(ctx context.Context, contractID int64) ([]RecognitionEntry, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("revenue repo not initialised")
	}
	const query = `
SELECT id, contract_id, period, recognized_amount, status, is_performance_complete, created_at, updated_at
FROM revenue_entries
WHERE contract_id = $1
ORDER BY period, id`
	rows, err := r.pool.Query(ctx, query, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []RecognitionEntry
	for rows.Next() {
		var e RecognitionEntry
		if err := rows.Scan(&e.ID, &e.ContractID, &e.Period, &e.RecognizedAmount, &e.Status, &e.IsPerformanceComplete, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetEntry loads a single recognition entry.
func (r *Repository) GetEntry(ctx context.Context, id int64) (RecognitionEntry, error) {
	var zero RecognitionEntry
	if r == nil || r.pool == nil {
		return zero, fmt.Errorf("revenue repo not initialised")
	}
	const query = `
SELECT id, contract_id, period, recognized_amount, status, is_performance_complete, created_at, updated_at
FROM revenue_entries
WHERE id = $1`
	var e RecognitionEntry
	err := r.pool.QueryRow(ctx, query, id).Scan(&e.ID, &e.ContractID, &e.Period, &e.RecognizedAmount, &e.Status, &e.IsPerformanceComplete, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, ErrEntryNotFound
		}
		return zero, err
	}
	return e, nil
}

// InsertEntry stores a new recognition entry in its initial state.
func (r *Repository) InsertEntry(ctx context.Context, contractID int64, period string, amount decimal.Decimal) (RecognitionEntry, error) {
	var zero RecognitionEntry
	if r == nil || r.pool == nil {
		return zero, fmt.Errorf("revenue repo not initialised")
	}
	const query = `
INSERT INTO revenue_entries (contract_id, period, recognized_amount, status, is_performance_complete, created_at, updated_at)
VALUES ($1, $2, $3, $4, FALSE, NOW(), NOW())
RETURNING id, contract_id, period, recognized_amount, status, is_performance_complete, created_at, updated_at`
	var e RecognitionEntry
	err := r.pool.QueryRow(ctx, query, contractID, period, amount, InitialStatus).Scan(
		&e.ID, &e.ContractID, &e.Period, &e.RecognizedAmount, &e.Status, &e.IsPerformanceComplete, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return zero, err
	}
	return e, nil
}

// UpdateEntryStatus persists a status transition. Last write wins by design;
// concurrent transitions are serialised by the caller-visible state machine,
// not by the database.
func (r *Repository) UpdateEntryStatus(ctx context.Context, id int64, status EntryStatus, performanceComplete bool) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("revenue repo not initialised")
	}
	tag, err := r.pool.Exec(ctx, `
UPDATE revenue_entries
SET status = $2, is_performance_complete = $3, updated_at = NOW()
WHERE id = $1`, id, status, performanceComplete)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// ReplaceSchedule swaps the generated schedule for a contract atomically.
func (r *Repository) ReplaceSchedule(ctx context.Context, contractID int64, entries []ScheduleEntry) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("revenue repo not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM revenue_schedules WHERE contract_id = $1`, contractID); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		const insert = `
INSERT INTO revenue_schedules (contract_id, seq, period, label, amount)
VALUES ($1, $2, $3, $4, $5)`
		for i, entry := range entries {
			batch.Queue(insert, contractID, i+1, entry.Period, entry.Label, entry.Amount)
		}
		results := tx.SendBatch(ctx, batch)
		for range entries {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return err
			}
		}
		return results.Close()
	})
}

// Schedule loads the stored schedule for a contract.
func (r *Repository) Schedule(ctx context.Context, contractID int64) ([]ScheduleEntry, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("revenue repo not initialised")
	}
	const query = `
SELECT period, label, amount
FROM revenue_schedules
WHERE contract_id = $1
ORDER BY seq`
	rows, err := r.pool.Query(ctx, query, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []ScheduleEntry
	for rows.Next() {
		var e ScheduleEntry
		if err := rows.Scan(&e.Period, &e.Label, &e.Amount); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PeriodCosts loads actual costs per period for percentage-of-completion contracts.
func (r *Repository) PeriodCosts(ctx context.Context, contractID int64) ([]PeriodCost, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("revenue repo not initialised")
	}
	const query = `
SELECT period, cost
FROM contract_period_costs
WHERE contract_id = $1
ORDER BY period`
	rows, err := r.pool.Query(ctx, query, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var costs []PeriodCost
	for rows.Next() {
		var pc PeriodCost
		if err := rows.Scan(&pc.Period, &pc.Cost); err != nil {
			return nil, err
		}
		costs = append(costs, pc)
	}
	return costs, rows.Err()
}

// ListContractIDs returns every contract id, used by the schedule refresh job.
func (r *Repository) ListContractIDs(ctx context.Context) ([]int64, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("revenue repo not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id FROM revenue_contracts WHERE status <> 'cancelled' ORDER BY id`)
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
