package journals

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// ProblemStatus maps accounting errors onto HTTP status codes.
var ProblemStatus = []httpx.Status{
	{Err: shared.ErrJournalNotFound, Code: http.StatusNotFound},
	{Err: shared.ErrPeriodNotFound, Code: http.StatusNotFound},
	{Err: shared.ErrTooFewLines, Code: http.StatusBadRequest},
	{Err: shared.ErrPeriodClosed, Code: http.StatusConflict},
	{Err: shared.ErrInvalidStatus, Code: http.StatusConflict},
	{Err: shared.ErrDuplicateJournalNumber, Code: http.StatusConflict},
	{Err: shared.ErrSourceAlreadyLinked, Code: http.StatusConflict},
	{Err: shared.ErrUnbalanced, Code: http.StatusUnprocessableEntity},
	{Err: shared.ErrMissingAccount, Code: http.StatusUnprocessableEntity},
	{Err: shared.ErrAccountNotPostable, Code: http.StatusUnprocessableEntity},
}

// Handler exposes the journal API used by commercial document services.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers journal routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createDraft)
	r.Post("/post", h.postFromSource)
	r.Get("/{id}", h.get)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/post", h.post)
	r.Post("/{id}/reverse", h.reverse)
}

func (h *Handler) createDraft(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input CreateDraftInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.ActorID = actor
	journal, err := h.service.CreateDraft(r.Context(), input)
	if err != nil {
		h.fail(w, "create draft journal", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, journal)
}

func (h *Handler) postFromSource(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input SourcePostingInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.ActorID = actor
	journal, err := h.service.PostFromSource(r.Context(), input)
	if err != nil {
		h.fail(w, "post journal from source", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, journal)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	journal, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, journal)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.target(w, r)
	if !ok {
		return
	}
	journal, err := h.service.Approve(r.Context(), id, actor)
	if err != nil {
		h.fail(w, "approve journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, journal)
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.target(w, r)
	if !ok {
		return
	}
	journal, err := h.service.Post(r.Context(), id, actor)
	if err != nil {
		h.fail(w, "post journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, journal)
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.target(w, r)
	if !ok {
		return
	}
	var body struct {
		Description string `json:"description"`
	}
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	journal, err := h.service.Reverse(r.Context(), ReverseInput{JournalID: id, ActorID: actor, Description: body.Description})
	if err != nil {
		h.fail(w, "reverse journal", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, journal)
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	actor, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return 0, 0, false
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return 0, 0, false
	}
	return id, actor, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err, ProblemStatus...)
}
