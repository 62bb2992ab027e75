package revenuehttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-fin/meridian/internal/platform/httpx"
	"github.com/meridian-fin/meridian/internal/revenue"
	"github.com/meridian-fin/meridian/internal/shared"
)

// IdempotencyStore guards duplicate entry submissions.
type IdempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Handler wires revenue recognition JSON endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *revenue.Service
	idempotency IdempotencyStore
	validate    *validator.Validate
}

// NewHandler constructs the handler. The idempotency store may be nil, in
// which case the Idempotency-Key header is ignored.
func NewHandler(logger *slog.Logger, service *revenue.Service, idempotency IdempotencyStore) *Handler {
	return &Handler{logger: logger, service: service, idempotency: idempotency, validate: validator.New()}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/contracts/{id}/schedule", h.generateSchedule)
	r.Get("/contracts/{id}/schedule", h.getSchedule)
	r.Post("/contracts/{id}/entries", h.createEntry)
	r.Post("/entries/{id}/status", h.transitionEntry)
}

type scheduleResponse struct {
	ContractID int64                   `json:"contract_id"`
	Entries    []scheduleEntryResponse `json:"entries"`
	Total      string                  `json:"total"`
}

type scheduleEntryResponse struct {
	Period string `json:"period,omitempty"`
	Label  string `json:"label,omitempty"`
	Amount string `json:"amount"`
}

func (h *Handler) generateSchedule(w http.ResponseWriter, r *http.Request) {
	contractID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Contract ID", err.Error())
		return
	}
	entries, err := h.service.GenerateSchedule(r.Context(), contractID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toScheduleResponse(contractID, entries))
}

func (h *Handler) getSchedule(w http.ResponseWriter, r *http.Request) {
	contractID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Contract ID", err.Error())
		return
	}
	entries, err := h.service.GetSchedule(r.Context(), contractID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toScheduleResponse(contractID, entries))
}

type createEntryRequest struct {
	Period string `json:"period" validate:"required,len=7"`
	Amount string `json:"amount" validate:"required"`
}

func (h *Handler) createEntry(w http.ResponseWriter, r *http.Request) {
	contractID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Contract ID", err.Error())
		return
	}
	var req createEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a decimal string")
		return
	}
	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), idemKey, "revenue_entries"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Duplicate Request", "entry already submitted with this idempotency key")
				return
			}
			h.respondError(w, r, err)
			return
		}
	}
	entry, err := h.service.CreateEntry(r.Context(), revenue.CreateEntryInput{
		ContractID: contractID,
		Period:     req.Period,
		Amount:     amount,
	})
	if err != nil {
		if idemKey != "" && h.idempotency != nil {
			_ = h.idempotency.Delete(r.Context(), idemKey)
		}
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

type transitionRequest struct {
	Status string `json:"status" validate:"required,oneof=pending approved recognized deferred reversed"`
}

func (h *Handler) transitionEntry(w http.ResponseWriter, r *http.Request) {
	entryID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Entry ID", err.Error())
		return
	}
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry, err := h.service.TransitionEntry(r.Context(), entryID, revenue.EntryStatus(req.Status))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var overErr *revenue.OverRecognitionError
	var statusErr *revenue.StatusTransitionError
	switch {
	case errors.Is(err, revenue.ErrContractNotFound), errors.Is(err, revenue.ErrEntryNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &overErr):
		httpx.JSON(w, http.StatusUnprocessableEntity, map[string]any{
			"title":                   "Over Recognition",
			"status":                  http.StatusUnprocessableEntity,
			"detail":                  err.Error(),
			"over_recognition_amount": overErr.Amount.StringFixed(2),
		})
	case errors.As(err, &statusErr):
		httpx.JSON(w, http.StatusConflict, map[string]any{
			"title":  "Invalid Status Transition",
			"status": http.StatusConflict,
			"detail": err.Error(),
			"from":   string(statusErr.From),
			"to":     string(statusErr.To),
		})
	case errors.Is(err, revenue.ErrInvalidMilestoneSequence),
		errors.Is(err, revenue.ErrDivisionByZero),
		errors.Is(err, revenue.ErrContractNotComplete):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable Contract", err.Error())
	default:
		if h.logger != nil {
			h.logger.Error("revenue handler", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func toScheduleResponse(contractID int64, entries []revenue.ScheduleEntry) scheduleResponse {
	out := scheduleResponse{ContractID: contractID, Entries: make([]scheduleEntryResponse, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, scheduleEntryResponse{
			Period: e.Period,
			Label:  e.Label,
			Amount: e.Amount.StringFixed(2),
		})
	}
	out.Total = revenue.ScheduleTotal(entries).StringFixed(2)
	return out
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
