package consolhttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-fin/meridian/internal/consolidation"
	"github.com/meridian-fin/meridian/internal/platform/httpx"
)

// RefreshEnqueuer schedules a background report rebuild.
type RefreshEnqueuer interface {
	EnqueueConsolidateRefresh(ctx context.Context, groupID int64, period string) error
}

// Handler wires consolidation JSON endpoints. Concurrent report requests for
// the same group/period collapse onto one build via singleflight.
type Handler struct {
	logger   *slog.Logger
	service  *consolidation.Service
	enqueuer RefreshEnqueuer
	validate *validator.Validate
	group    singleflight.Group
}

// NewHandler constructs the handler. The enqueuer may be nil, in which case
// refresh requests rebuild synchronously.
func NewHandler(logger *slog.Logger, service *consolidation.Service, enqueuer RefreshEnqueuer) *Handler {
	return &Handler{logger: logger, service: service, enqueuer: enqueuer, validate: validator.New()}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/groups/{id}/report", h.getReport)
	r.Post("/groups/{id}/refresh", h.refresh)
	r.Put("/fx-rates", h.putFxRates)
}

func (h *Handler) getReport(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Group ID", err.Error())
		return
	}
	period := r.URL.Query().Get("period")
	if !validPeriod(period) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "period query parameter must be YYYY-MM")
		return
	}
	key := fmt.Sprintf("%d:%s", groupID, period)
	value, err, _ := h.group.Do(key, func() (interface{}, error) {
		return h.service.BuildReport(r.Context(), groupID, period)
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, value)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Group ID", err.Error())
		return
	}
	period := r.URL.Query().Get("period")
	if h.enqueuer != nil {
		if err := h.enqueuer.EnqueueConsolidateRefresh(r.Context(), groupID, period); err != nil {
			h.respondError(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]any{
			"group_id": groupID,
			"period":   period,
			"status":   "queued",
		})
		return
	}
	if !validPeriod(period) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "period query parameter must be YYYY-MM")
		return
	}
	report, err := h.service.Refresh(r.Context(), groupID, period)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

type fxRateRequest struct {
	Period   string `json:"period" validate:"required,len=7"`
	Currency string `json:"currency" validate:"required,len=3"`
	Rate     string `json:"rate" validate:"required"`
}

type fxRatesRequest struct {
	Rates []fxRateRequest `json:"rates" validate:"required,min=1,dive"`
}

func (h *Handler) putFxRates(w http.ResponseWriter, r *http.Request) {
	var req fxRatesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	inputs := make([]consolidation.FxRateInput, 0, len(req.Rates))
	for _, in := range req.Rates {
		rate, err := decimal.NewFromString(in.Rate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "rate must be a decimal string")
			return
		}
		inputs = append(inputs, consolidation.FxRateInput{
			Period:   in.Period,
			Currency: in.Currency,
			Rate:     rate,
		})
	}
	if err := h.service.StoreFxRates(r.Context(), inputs); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"stored": len(inputs)})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var missingRate *consolidation.MissingRateError
	var circular *consolidation.CircularOwnershipError
	switch {
	case errors.Is(err, consolidation.ErrGroupNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &missingRate):
		httpx.JSON(w, http.StatusUnprocessableEntity, map[string]any{
			"title":    "Missing Exchange Rate",
			"status":   http.StatusUnprocessableEntity,
			"detail":   err.Error(),
			"currency": missingRate.Currency,
		})
	case errors.As(err, &circular):
		httpx.JSON(w, http.StatusUnprocessableEntity, map[string]any{
			"title":     "Circular Ownership",
			"status":    http.StatusUnprocessableEntity,
			"detail":    err.Error(),
			"entity_id": circular.EntityID,
		})
	default:
		if h.logger != nil {
			h.logger.Error("consolidation handler", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func validPeriod(period string) bool {
	_, err := time.Parse("2006-01", period)
	return err == nil
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
