package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Source types written by the ledger integration.
const (
	SourceTypeCOGS            = "inventory.cogs"
	SourceTypeSalesInvoice    = "sales.invoice"
	SourceTypePurchaseInvoice = "purchase.invoice"
	SourceTypeSalesPayment    = "sales.payment"
	SourceTypePurchasePayment = "purchase.payment"
)

var (
	// ErrInvoiceNotFound indicates the invoice does not exist for the company.
	ErrInvoiceNotFound = errors.New("integration: sales invoice not found")
	// ErrInvoiceNotPosted indicates COGS was requested for an unposted invoice.
	ErrInvoiceNotPosted = errors.New("integration: sales invoice is not posted")
	// ErrMissingValuation indicates a stock product has no valued outbound cost.
	ErrMissingValuation = errors.New("integration: missing cost valuation")
	// ErrDuplicateCogsJournal indicates the invoice already has a COGS journal.
	ErrDuplicateCogsJournal = errors.New("integration: cogs journal already exists")
	// ErrNonPositiveCogs indicates the computed COGS total is not positive.
	ErrNonPositiveCogs = errors.New("integration: cogs total must be positive")
)

var validate = validator.New()

// Ledger exposes journal posting operations required by integrations.
type Ledger interface {
	PostFromSource(ctx context.Context, input journals.SourcePostingInput) (journals.Journal, error)
}

// AccountCodes is the chart of accounts code convention used for generated journals.
type AccountCodes struct {
	Cash      string
	AR        string
	Inventory string
	InputVAT  string
	AP        string
	OutputVAT string
	Revenue   string
	COGS      string
	Expense   string
}

// DefaultAccountCodes returns the standard code convention.
func DefaultAccountCodes() AccountCodes {
	return AccountCodes{
		Cash:      "1100",
		AR:        "1200",
		Inventory: "1300",
		InputVAT:  "1400",
		AP:        "2100",
		OutputVAT: "2200",
		Revenue:   "4100",
		COGS:      "5100",
		Expense:   "6100",
	}
}

// GenerateCOGSInput requests the COGS journal of one sales invoice.
type GenerateCOGSInput struct {
	CompanyID int64 `json:"company_id" validate:"required,gt=0"`
	InvoiceID int64 `json:"invoice_id" validate:"required,gt=0"`
	ActorID   int64 `json:"-" validate:"required,gt=0"`
}

// COGSGenerator builds COGS journals from FIFO valued outbound movements.
type COGSGenerator struct {
	source SourceRepository
	ledger Ledger
	codes  AccountCodes
	logger *slog.Logger
}

// NewCOGSGenerator constructs the generator.
func NewCOGSGenerator(source SourceRepository, ledger Ledger, codes AccountCodes, logger *slog.Logger) *COGSGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &COGSGenerator{source: source, ledger: ledger, codes: codes, logger: logger}
}

// GenerateCOGS posts Dr COGS / Cr Inventory for the valued cost of the invoice's goods.
func (g *COGSGenerator) GenerateCOGS(ctx context.Context, input GenerateCOGSInput) (journals.Journal, error) {
	if err := validate.Struct(input); err != nil {
		return journals.Journal{}, err
	}
	invoice, err := g.source.GetSalesInvoice(ctx, input.CompanyID, input.InvoiceID)
	if err != nil {
		return journals.Journal{}, err
	}
	if !invoice.IsPosted() {
		return journals.Journal{}, fmt.Errorf("%w: %s is %s", ErrInvoiceNotPosted, invoice.Number, invoice.Status)
	}
	expected, err := g.source.StockProducts(ctx, invoice.ID)
	if err != nil {
		return journals.Journal{}, err
	}
	costs, found, err := g.source.OutboundCosts(ctx, invoice.CompanyID, invoice.ID)
	if err != nil {
		return journals.Journal{}, err
	}
	if !found && len(expected) > 0 {
		return journals.Journal{}, fmt.Errorf("%w: no posted outbound movement for invoice %s", ErrMissingValuation, invoice.Number)
	}
	total := decimal.Zero
	for _, productID := range expected {
		cost, ok := costs.ByProduct[productID]
		if !ok {
			return journals.Journal{}, fmt.Errorf("%w: product %d on invoice %s", ErrMissingValuation, productID, invoice.Number)
		}
		total = total.Add(cost)
	}
	total = shared.RoundMoney(total)
	if !total.IsPositive() {
		return journals.Journal{}, fmt.Errorf("%w: invoice %s", ErrNonPositiveCogs, invoice.Number)
	}

	description := fmt.Sprintf("COGS for invoice %s", invoice.Number)
	journal, err := g.ledger.PostFromSource(ctx, journals.SourcePostingInput{
		CompanyID:    invoice.CompanyID,
		Date:         invoice.Date,
		Description:  description,
		SourceType:   SourceTypeCOGS,
		SourceID:     &invoice.ID,
		UniqueSource: true,
		ActorID:      input.ActorID,
		Lines: []journals.SourceLineInput{
			{AccountCode: g.codes.COGS, Description: description, Debit: total},
			{AccountCode: g.codes.Inventory, Description: description, Credit: total},
		},
	})
	if errors.Is(err, shared.ErrSourceAlreadyLinked) {
		return journals.Journal{}, fmt.Errorf("%w: invoice %s", ErrDuplicateCogsJournal, invoice.Number)
	}
	if err != nil {
		return journals.Journal{}, err
	}
	g.logger.Info("cogs journal posted",
		slog.Int64("invoice_id", invoice.ID),
		slog.Int64("journal_id", journal.ID),
		slog.String("amount", total.StringFixed(2)))
	return journal, nil
}
