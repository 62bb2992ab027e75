package consolidation

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
	GetGroup(ctx context.Context, groupID int64) (Group, error)
	Entities(ctx context.Context, groupID int64) ([]Entity, error)
	Financials(ctx context.Context, groupID int64, period string) (map[string]PeriodFinancials, error)
	Eliminations(ctx context.Context, groupID int64, period string) ([]Elimination, error)
	Rates(ctx context.Context, period string) (map[string]decimal.Decimal, error)
	UpsertFxRates(ctx context.Context, inputs []FxRateInput) error
	ListGroupIDs(ctx context.Context) ([]int64, error)
	ActivePeriod(ctx context.Context) (string, error)
}

// AuditRecorder captures audit events.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates consolidated reporting on top of the engine, the
// repository snapshot and the versioned cache.
type Service struct {
	repo   DBRepository
	cache  *Cache
	audit  AuditRecorder
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a consolidation service instance.
func NewService(repo DBRepository, cache *Cache, audit AuditRecorder, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		audit:  audit,
		logger: logger,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// BuildReport returns the consolidated report for one group and period,
// serving from cache when a current version exists.
func (s *Service) BuildReport(ctx context.Context, groupID int64, period string) (Report, error) {
	if s == nil || s.repo == nil {
		return Report{}, fmt.Errorf("consolidation service not initialised")
	}
	if _, err := time.Parse("2006-01", period); err != nil {
		return Report{}, fmt.Errorf("consolidation: period must be YYYY-MM")
	}
	key, err := s.cache.ReportKey(ctx, groupID, period)
	if err != nil {
		return Report{}, err
	}
	var report Report
	err = s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (interface{}, error) {
		return s.buildFresh(ctx, groupID, period)
	})
	if err != nil {
		return Report{}, err
	}
	return report, nil
}

func (s *Service) buildFresh(ctx context.Context, groupID int64, period string) (Report, error) {
	group, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		return Report{}, err
	}
	entities, err := s.repo.Entities(ctx, groupID)
	if err != nil {
		return Report{}, err
	}
	financials, err := s.repo.Financials(ctx, groupID, period)
	if err != nil {
		return Report{}, err
	}
	eliminations, err := s.repo.Eliminations(ctx, groupID, period)
	if err != nil {
		return Report{}, err
	}
	rates, err := s.repo.Rates(ctx, period)
	if err != nil {
		return Report{}, err
	}
	report, err := Consolidate(Input{
		BaseCurrency: group.BaseCurrency,
		Period:       period,
		Entities:     entities,
		Financials:   financials,
		Eliminations: eliminations,
		Rates:        rates,
	})
	if err != nil {
		return Report{}, err
	}
	s.log().Info("built consolidated report",
		slog.Int64("group_id", groupID),
		slog.String("period", period),
		slog.Int("entities", len(report.Entities)),
		slog.Int("eliminations", len(report.Eliminations)))
	return report, nil
}

// Refresh rebuilds the report for one group and period and invalidates every
// cached version first so readers observe the new snapshot.
func (s *Service) Refresh(ctx context.Context, groupID int64, period string) (Report, error) {
	if s == nil || s.repo == nil {
		return Report{}, fmt.Errorf("consolidation service not initialised")
	}
	if err := s.cache.Bump(ctx); err != nil {
		return Report{}, err
	}
	report, err := s.BuildReport(ctx, groupID, period)
	if err != nil {
		return Report{}, err
	}
	s.recordAudit(ctx, "report_refresh", groupID, map[string]any{
		"period":   period,
		"entities": len(report.Entities),
	})
	return report, nil
}

// StoreFxRates validates and persists FX quotes, then invalidates cached
// reports since converted figures may have changed.
func (s *Service) StoreFxRates(ctx context.Context, inputs []FxRateInput) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("consolidation service not initialised")
	}
	if len(inputs) == 0 {
		return fmt.Errorf("consolidation: at least one rate required")
	}
	for _, in := range inputs {
		if _, err := time.Parse("2006-01", in.Period); err != nil {
			return fmt.Errorf("consolidation: period must be YYYY-MM")
		}
	}
	if err := s.repo.UpsertFxRates(ctx, inputs); err != nil {
		return err
	}
	if err := s.cache.Bump(ctx); err != nil {
		return err
	}
	s.recordAudit(ctx, "fx_rates_store", 0, map[string]any{"count": len(inputs)})
	return nil
}

// ListGroupIDs exposes group enumeration for the background refresh job.
func (s *Service) ListGroupIDs(ctx context.Context) ([]int64, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("consolidation service not initialised")
	}
	return s.repo.ListGroupIDs(ctx)
}

// ActivePeriod exposes the latest loaded period for the background refresh job.
func (s *Service) ActivePeriod(ctx context.Context) (string, error) {
	if s == nil || s.repo == nil {
		return "", fmt.Errorf("consolidation service not initialised")
	}
	return s.repo.ActivePeriod(ctx)
}

func (s *Service) recordAudit(ctx context.Context, action string, groupID int64, meta map[string]any) {
	if s == nil || s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "consolidation_groups",
		EntityID: fmt.Sprintf("%d", groupID),
		Meta:     meta,
		At:       s.now(),
	})
}

func (s *Service) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger.With(slog.String("component", "consolidation_service"))
	}
	return slog.Default().With(slog.String("component", "consolidation_service"))
}
