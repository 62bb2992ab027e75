package revenue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-fin/meridian/internal/shared"
)

// DBRepository defines the required persistence behaviour for the service.
type DBRepository interface {
	GetContract(ctx context.Context, id int64) (Contract, error)
	ListEntries(ctx context.Context, contractID int64) ([]RecognitionEntry, error)
	GetEntry(ctx context.Context, id int64) (RecognitionEntry, error)
	InsertEntry(ctx context.Context, contractID int64, period string, amount decimal.Decimal) (RecognitionEntry, error)
	UpdateEntryStatus(ctx context.Context, id int64, status EntryStatus, performanceComplete bool) error
	ReplaceSchedule(ctx context.Context, contractID int64, entries []ScheduleEntry) error
	Schedule(ctx context.Context, contractID int64) ([]ScheduleEntry, error)
	PeriodCosts(ctx context.Context, contractID int64) ([]PeriodCost, error)
}

// AuditRecorder captures audit events.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates revenue recognition operations.
type Service struct {
	repo   DBRepository
	audit  AuditRecorder
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a revenue service instance.
func NewService(repo DBRepository, audit AuditRecorder, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		audit:  audit,
		logger: logger,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// WithClock overrides the clock for deterministic tests.
func (s *Service) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// GenerateSchedule recomputes and persists the recognition schedule for a contract.
func (s *Service) GenerateSchedule(ctx context.Context, contractID int64) ([]ScheduleEntry, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("revenue service not initialised")
	}
	contract, err := s.repo.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	var opts ScheduleOptions
	if contract.Method == MethodPercentageOfCompletion {
		costs, err := s.repo.PeriodCosts(ctx, contractID)
		if err != nil {
			return nil, err
		}
		opts.PeriodCosts = costs
	}
	entries, err := GenerateSchedule(contract, opts)
	if err != nil {
		return nil, err
	}
	if err := s.repo.ReplaceSchedule(ctx, contractID, entries); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "schedule_generate", contract, map[string]any{
		"method":  string(contract.Method),
		"periods": len(entries),
		"total":   ScheduleTotal(entries).StringFixed(2),
	})
	s.log().Info("generated recognition schedule",
		slog.Int64("contract_id", contractID),
		slog.String("method", string(contract.Method)),
		slog.Int("periods", len(entries)))
	return entries, nil
}

// GetSchedule returns the stored schedule for a contract.
func (s *Service) GetSchedule(ctx context.Context, contractID int64) ([]ScheduleEntry, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("revenue service not initialised")
	}
	if _, err := s.repo.GetContract(ctx, contractID); err != nil {
		return nil, err
	}
	return s.repo.Schedule(ctx, contractID)
}

// CreateEntryInput captures recognition entry creation input.
type CreateEntryInput struct {
	ContractID int64
	Period     string
	Amount     decimal.Decimal
}

// Validate ensures correctness.
func (in CreateEntryInput) Validate() error {
	if in.ContractID == 0 {
		return fmt.Errorf("revenue: contract required")
	}
	if _, err := time.Parse("2006-01", in.Period); err != nil {
		return fmt.Errorf("revenue: period must be YYYY-MM")
	}
	if in.Amount.IsNegative() {
		return fmt.Errorf("revenue: amount must not be negative")
	}
	return nil
}

// CreateEntry records new recognised revenue after enforcing the contract
// ceiling over all non-reversed, non-deferred entries.
func (s *Service) CreateEntry(ctx context.Context, input CreateEntryInput) (RecognitionEntry, error) {
	if s == nil || s.repo == nil {
		return RecognitionEntry{}, fmt.Errorf("revenue service not initialised")
	}
	if err := input.Validate(); err != nil {
		return RecognitionEntry{}, err
	}
	contract, err := s.repo.GetContract(ctx, input.ContractID)
	if err != nil {
		return RecognitionEntry{}, err
	}
	existing, err := s.repo.ListEntries(ctx, input.ContractID)
	if err != nil {
		return RecognitionEntry{}, err
	}
	if err := ValidateCumulative(contract, existing, input.Amount); err != nil {
		return RecognitionEntry{}, err
	}
	entry, err := s.repo.InsertEntry(ctx, input.ContractID, input.Period, input.Amount)
	if err != nil {
		return RecognitionEntry{}, err
	}
	s.recordAudit(ctx, "entry_create", contract, map[string]any{
		"entry_id": entry.ID,
		"period":   entry.Period,
		"amount":   entry.RecognizedAmount.StringFixed(2),
	})
	return entry, nil
}

// TransitionEntry applies the status state machine to an entry.
func (s *Service) TransitionEntry(ctx context.Context, entryID int64, target EntryStatus) (RecognitionEntry, error) {
	if s == nil || s.repo == nil {
		return RecognitionEntry{}, fmt.Errorf("revenue service not initialised")
	}
	entry, err := s.repo.GetEntry(ctx, entryID)
	if err != nil {
		return RecognitionEntry{}, err
	}
	if err := Transition(entry.Status, target); err != nil {
		return RecognitionEntry{}, err
	}
	performanceComplete := entry.IsPerformanceComplete || target == StatusRecognized
	if err := s.repo.UpdateEntryStatus(ctx, entryID, target, performanceComplete); err != nil {
		return RecognitionEntry{}, err
	}
	previous := entry.Status
	entry.Status = target
	entry.IsPerformanceComplete = performanceComplete
	entry.UpdatedAt = s.now()
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  shared.ActorFromContext(ctx),
			Action:   "entry_transition",
			Entity:   "revenue_entries",
			EntityID: fmt.Sprintf("%d", entryID),
			Meta: map[string]any{
				"from": string(previous),
				"to":   string(target),
			},
			At: s.now(),
		})
	}
	return entry, nil
}

func (s *Service) recordAudit(ctx context.Context, action string, contract Contract, meta map[string]any) {
	if s == nil || s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "revenue_contracts",
		EntityID: fmt.Sprintf("%d", contract.ID),
		Meta:     meta,
		At:       s.now(),
	})
}

func (s *Service) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger.With(slog.String("component", "revenue_service"))
	}
	return slog.Default().With(slog.String("component", "revenue_service"))
}
