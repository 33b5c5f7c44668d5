package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// SalesInvoicePosted is raised by the sales module once an invoice is posted.
type SalesInvoicePosted struct {
	CompanyID int64           `json:"company_id" validate:"required,gt=0"`
	InvoiceID int64           `json:"invoice_id" validate:"required,gt=0"`
	Number    string          `json:"number" validate:"required"`
	Date      time.Time       `json:"date" validate:"required"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
	ActorID   int64           `json:"-" validate:"required,gt=0"`
}

// VendorInvoicePosted is raised by the purchasing module once a vendor bill is
// posted. Stock bills debit inventory, all others debit expense.
type VendorInvoicePosted struct {
	CompanyID int64           `json:"company_id" validate:"required,gt=0"`
	InvoiceID int64           `json:"invoice_id" validate:"required,gt=0"`
	Number    string          `json:"number" validate:"required"`
	Date      time.Time       `json:"date" validate:"required"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
	Stock     bool            `json:"stock"`
	ActorID   int64           `json:"-" validate:"required,gt=0"`
}

// PaymentPosted is raised when a customer receipt or vendor payment is posted.
type PaymentPosted struct {
	CompanyID int64           `json:"company_id" validate:"required,gt=0"`
	PaymentID int64           `json:"payment_id" validate:"required,gt=0"`
	Number    string          `json:"number" validate:"required"`
	Date      time.Time       `json:"date" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
	ActorID   int64           `json:"-" validate:"required,gt=0"`
}

// Hooks wires domain events from operational modules into the general ledger.
type Hooks struct {
	ledger Ledger
	codes  AccountCodes
	logger *slog.Logger
}

// NewHooks constructs integration hooks.
func NewHooks(ledger Ledger, codes AccountCodes, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{ledger: ledger, codes: codes, logger: logger}
}

// post creates and posts the journal. Replayed events are a no-op.
func (h *Hooks) post(ctx context.Context, input journals.SourcePostingInput) error {
	_, err := h.ledger.PostFromSource(ctx, input)
	if errors.Is(err, shared.ErrSourceAlreadyLinked) {
		h.logger.Info("source already posted", slog.String("source_type", input.SourceType), slog.Int64("source_id", *input.SourceID))
		return nil
	}
	return err
}

func sourceInput(companyID, actorID int64, date time.Time, sourceType string, sourceID int64, description string, lines []journals.SourceLineInput) journals.SourcePostingInput {
	return journals.SourcePostingInput{
		CompanyID:    companyID,
		Date:         date,
		Description:  description,
		SourceType:   sourceType,
		SourceID:     &sourceID,
		UniqueSource: true,
		ActorID:      actorID,
		Lines:        lines,
	}
}

// HandleSalesInvoicePosted books Dr AR / Cr Revenue / Cr Output VAT.
func (h *Hooks) HandleSalesInvoicePosted(ctx context.Context, evt SalesInvoicePosted) error {
	if h == nil || h.ledger == nil {
		return nil
	}
	if err := validate.Struct(evt); err != nil {
		return err
	}
	subtotal := shared.RoundMoney(evt.Subtotal)
	tax := shared.RoundMoney(evt.TaxAmount)
	total := subtotal.Add(tax)
	if !total.IsPositive() {
		return nil
	}
	lines := []journals.SourceLineInput{{AccountCode: h.codes.AR, Debit: total}}
	if subtotal.IsPositive() {
		lines = append(lines, journals.SourceLineInput{AccountCode: h.codes.Revenue, Credit: subtotal})
	}
	if tax.IsPositive() {
		lines = append(lines, journals.SourceLineInput{AccountCode: h.codes.OutputVAT, Credit: tax})
	}
	return h.post(ctx, sourceInput(evt.CompanyID, evt.ActorID, evt.Date, SourceTypeSalesInvoice, evt.InvoiceID,
		fmt.Sprintf("Sales invoice %s", evt.Number), lines))
}

// HandleVendorInvoicePosted books Dr Inventory or Expense / Dr Input VAT / Cr AP.
func (h *Hooks) HandleVendorInvoicePosted(ctx context.Context, evt VendorInvoicePosted) error {
	if h == nil || h.ledger == nil {
		return nil
	}
	if err := validate.Struct(evt); err != nil {
		return err
	}
	subtotal := shared.RoundMoney(evt.Subtotal)
	tax := shared.RoundMoney(evt.TaxAmount)
	total := subtotal.Add(tax)
	if !total.IsPositive() {
		return nil
	}
	debit := h.codes.Expense
	if evt.Stock {
		debit = h.codes.Inventory
	}
	var lines []journals.SourceLineInput
	if subtotal.IsPositive() {
		lines = append(lines, journals.SourceLineInput{AccountCode: debit, Debit: subtotal})
	}
	if tax.IsPositive() {
		lines = append(lines, journals.SourceLineInput{AccountCode: h.codes.InputVAT, Debit: tax})
	}
	lines = append(lines, journals.SourceLineInput{AccountCode: h.codes.AP, Credit: total})
	return h.post(ctx, sourceInput(evt.CompanyID, evt.ActorID, evt.Date, SourceTypePurchaseInvoice, evt.InvoiceID,
		fmt.Sprintf("Vendor invoice %s", evt.Number), lines))
}

// HandleCustomerPaymentPosted books Dr Cash / Cr AR.
func (h *Hooks) HandleCustomerPaymentPosted(ctx context.Context, evt PaymentPosted) error {
	if h == nil {
		return nil
	}
	return h.payment(ctx, evt, SourceTypeSalesPayment, h.codes.Cash, h.codes.AR, "Customer payment")
}

// HandleVendorPaymentPosted books Dr AP / Cr Cash.
func (h *Hooks) HandleVendorPaymentPosted(ctx context.Context, evt PaymentPosted) error {
	if h == nil {
		return nil
	}
	return h.payment(ctx, evt, SourceTypePurchasePayment, h.codes.AP, h.codes.Cash, "Vendor payment")
}

func (h *Hooks) payment(ctx context.Context, evt PaymentPosted, sourceType, debit, credit, label string) error {
	if h.ledger == nil {
		return nil
	}
	if err := validate.Struct(evt); err != nil {
		return err
	}
	amount := shared.RoundMoney(evt.Amount)
	if !amount.IsPositive() {
		return nil
	}
	return h.post(ctx, sourceInput(evt.CompanyID, evt.ActorID, evt.Date, sourceType, evt.PaymentID,
		fmt.Sprintf("%s %s", label, evt.Number), []journals.SourceLineInput{
			{AccountCode: debit, Debit: amount},
			{AccountCode: credit, Credit: amount},
		}))
}
