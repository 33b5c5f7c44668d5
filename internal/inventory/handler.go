package inventory

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// ProblemStatus maps inventory errors onto HTTP status codes.
var ProblemStatus = []httpx.Status{
	{Err: ErrInsufficientStock, Code: http.StatusUnprocessableEntity},
	{Err: ErrInvalidQuantity, Code: http.StatusBadRequest},
	{Err: ErrInvalidUnitCost, Code: http.StatusBadRequest},
	{Err: ErrLayerExists, Code: http.StatusConflict},
	{Err: ErrMovementNotDraft, Code: http.StatusConflict},
	{Err: ErrMovementMismatch, Code: http.StatusUnprocessableEntity},
	{Err: ErrMovementLineNotFound, Code: http.StatusNotFound},
	{Err: shared.ErrPeriodClosed, Code: http.StatusConflict},
}

// Handler wires HTTP endpoints for the cost layer engine.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/movements", h.postMovement)
	r.Get("/remaining", h.remaining)
}

func (h *Handler) postMovement(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input MovementInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.ActorID = actor
	result, err := h.service.PostMovement(r.Context(), input)
	if err != nil {
		h.logger.Warn("post inventory movement", slog.Int64("movement_id", input.ID), slog.Any("error", err))
		httpx.RespondError(w, err, ProblemStatus...)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) remaining(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var ids [3]int64
	for i, key := range []string{"company_id", "warehouse_id", "product_id"} {
		v, err := strconv.ParseInt(q.Get(key), 10, 64)
		if err != nil || v <= 0 {
			httpx.RespondError(w, fmt.Errorf("%w: %s must be a positive integer", httpx.ErrValidation, key))
			return
		}
		ids[i] = v
	}
	qty, err := h.service.RemainingQty(r.Context(), ids[0], ids[1], ids[2])
	if err != nil {
		h.logger.Error("inventory remaining qty", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"company_id":    ids[0],
		"warehouse_id":  ids[1],
		"product_id":    ids[2],
		"qty_remaining": qty.StringFixed(2),
	})
}
