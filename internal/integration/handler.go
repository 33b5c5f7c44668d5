package integration

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// ProblemStatus maps integration errors onto HTTP status codes. Journal
// errors surfaced through the ledger keep their own mapping.
var ProblemStatus = append([]httpx.Status{
	{Err: ErrInvoiceNotFound, Code: http.StatusNotFound},
	{Err: ErrInvoiceNotPosted, Code: http.StatusConflict},
	{Err: ErrDuplicateCogsJournal, Code: http.StatusConflict},
	{Err: ErrMissingValuation, Code: http.StatusUnprocessableEntity},
	{Err: ErrNonPositiveCogs, Code: http.StatusUnprocessableEntity},
}, journals.ProblemStatus...)

// Handler exposes COGS generation and document hooks.
type Handler struct {
	logger *slog.Logger
	cogs   *COGSGenerator
	hooks  *Hooks
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, cogs *COGSGenerator, hooks *Hooks) *Handler {
	return &Handler{logger: logger, cogs: cogs, hooks: hooks}
}

// MountRoutes registers integration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/cogs", h.generateCOGS)
	r.Post("/hooks/{kind}", h.hook)
}

func (h *Handler) generateCOGS(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input GenerateCOGSInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.ActorID = actor
	journal, err := h.cogs.GenerateCOGS(r.Context(), input)
	if err != nil {
		h.logger.Warn("generate cogs", slog.Int64("invoice_id", input.InvoiceID), slog.Any("error", err))
		httpx.RespondError(w, err, ProblemStatus...)
		return
	}
	httpx.JSON(w, http.StatusCreated, journal)
}

func (h *Handler) hook(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	kind := chi.URLParam(r, "kind")
	run, err := h.decodeHook(r, kind, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := run(r.Context()); err != nil {
		h.logger.Warn("integration hook", slog.String("kind", kind), slog.Any("error", err))
		httpx.RespondError(w, err, ProblemStatus...)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeHook(r *http.Request, kind string, actor int64) (func(context.Context) error, error) {
	switch kind {
	case "sales-invoice":
		var evt SalesInvoicePosted
		if err := httpx.DecodeJSON(r, &evt); err != nil {
			return nil, err
		}
		evt.ActorID = actor
		return func(ctx context.Context) error { return h.hooks.HandleSalesInvoicePosted(ctx, evt) }, nil
	case "vendor-invoice":
		var evt VendorInvoicePosted
		if err := httpx.DecodeJSON(r, &evt); err != nil {
			return nil, err
		}
		evt.ActorID = actor
		return func(ctx context.Context) error { return h.hooks.HandleVendorInvoicePosted(ctx, evt) }, nil
	case "customer-payment", "vendor-payment":
		var evt PaymentPosted
		if err := httpx.DecodeJSON(r, &evt); err != nil {
			return nil, err
		}
		evt.ActorID = actor
		if kind == "customer-payment" {
			return func(ctx context.Context) error { return h.hooks.HandleCustomerPaymentPosted(ctx, evt) }, nil
		}
		return func(ctx context.Context) error { return h.hooks.HandleVendorPaymentPosted(ctx, evt) }, nil
	default:
		return nil, fmt.Errorf("%w: unknown hook %q", httpx.ErrNotFound, kind)
	}
}
