package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

var feb3 = time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type fakeSource struct {
	invoices map[int64]SalesInvoice
	products map[int64][]int64
	costs    map[int64]OutboundCosts
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		invoices: make(map[int64]SalesInvoice),
		products: make(map[int64][]int64),
		costs:    make(map[int64]OutboundCosts),
	}
}

func (f *fakeSource) GetSalesInvoice(ctx context.Context, companyID, invoiceID int64) (SalesInvoice, error) {
	inv, ok := f.invoices[invoiceID]
	if !ok || inv.CompanyID != companyID {
		return SalesInvoice{}, ErrInvoiceNotFound
	}
	return inv, nil
}

func (f *fakeSource) StockProducts(ctx context.Context, invoiceID int64) ([]int64, error) {
	return f.products[invoiceID], nil
}

func (f *fakeSource) OutboundCosts(ctx context.Context, companyID, invoiceID int64) (OutboundCosts, bool, error) {
	c, ok := f.costs[invoiceID]
	return c, ok, nil
}

// fakeLedger records postings and enforces one journal per unique source.
type fakeLedger struct {
	posted []journals.SourcePostingInput
	err    error
}

func (l *fakeLedger) PostFromSource(ctx context.Context, input journals.SourcePostingInput) (journals.Journal, error) {
	if l.err != nil {
		return journals.Journal{}, l.err
	}
	if input.UniqueSource {
		for _, p := range l.posted {
			if p.CompanyID == input.CompanyID && p.SourceType == input.SourceType && *p.SourceID == *input.SourceID {
				return journals.Journal{}, fmt.Errorf("%w: %s %d", shared.ErrSourceAlreadyLinked, input.SourceType, *input.SourceID)
			}
		}
	}
	if err := input.Validate(); err != nil {
		return journals.Journal{}, err
	}
	l.posted = append(l.posted, input)
	j := journals.Journal{
		ID:          int64(len(l.posted)),
		CompanyID:   input.CompanyID,
		Date:        input.Date,
		Description: input.Description,
		SourceType:  input.SourceType,
		SourceID:    input.SourceID,
		Status:      journals.JournalStatusPosted,
	}
	for idx, line := range input.Lines {
		j.Lines = append(j.Lines, journals.JournalLine{LineNo: idx + 1, Description: line.Description, Debit: line.Debit, Credit: line.Credit})
	}
	return j, nil
}

func (l *fakeLedger) last() journals.SourcePostingInput {
	return l.posted[len(l.posted)-1]
}
