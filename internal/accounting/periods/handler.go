package periods

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

var problemStatus = []httpx.Status{
	{Err: shared.ErrPeriodNotFound, Code: http.StatusNotFound},
	{Err: shared.ErrPeriodExists, Code: http.StatusConflict},
	{Err: internalShared.ErrInvalidPeriodTransition, Code: http.StatusConflict},
}

// Handler exposes the period lifecycle over JSON.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers period routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/close", h.close)
	r.Post("/{id}/reopen", h.reopen)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input CreatePeriodInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.ActorID = actor
	period, err := h.service.CreatePeriod(r.Context(), input)
	if err != nil {
		h.fail(w, "create period", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, period)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	period, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, period)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.ClosePeriod)
}

func (h *Handler) reopen(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.ReopenPeriod)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, periodID, actorID int64) (Period, error)) {
	actor, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	period, err := fn(r.Context(), id, actor)
	if err != nil {
		h.fail(w, "period transition", err)
		return
	}
	httpx.JSON(w, http.StatusOK, period)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err, problemStatus...)
}
