package journals

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// JournalStatus enumerates journal lifecycle values.
type JournalStatus string

const (
	JournalStatusDraft    JournalStatus = "DRAFT"
	JournalStatusApproved JournalStatus = "APPROVED"
	JournalStatusPosted   JournalStatus = "POSTED"
	JournalStatusReversed JournalStatus = "REVERSED"
)

// SourceTypeReversal marks journals generated by Reverse.
const SourceTypeReversal = "reversal"

// Journal is the header of a double-entry record.
type Journal struct {
	ID                  int64         `json:"id"`
	CompanyID           int64         `json:"company_id"`
	Number              string        `json:"journal_number"`
	PeriodID            int64         `json:"period_id"`
	Date                time.Time     `json:"journal_date"`
	Description         string        `json:"description"`
	SourceType          string        `json:"source_type,omitempty"`
	SourceID            *int64        `json:"source_id,omitempty"`
	Status              JournalStatus `json:"status"`
	CreatedBy           int64         `json:"created_by"`
	ApprovedBy          *int64        `json:"approved_by,omitempty"`
	ApprovedAt          *time.Time    `json:"approved_at,omitempty"`
	PostedBy            *int64        `json:"posted_by,omitempty"`
	PostedAt            *time.Time    `json:"posted_at,omitempty"`
	ReversedBy          *int64        `json:"reversed_by,omitempty"`
	ReversedAt          *time.Time    `json:"reversed_at,omitempty"`
	ReversalOfJournalID *int64        `json:"reversal_of_journal_id,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
	Lines               []JournalLine `json:"lines"`
}

// JournalLine stores debit or credit amount for an account.
type JournalLine struct {
	ID           int64           `json:"id"`
	JournalID    int64           `json:"journal_id"`
	LineNo       int             `json:"line_no"`
	AccountID    int64           `json:"account_id"`
	Description  string          `json:"description,omitempty"`
	Debit        decimal.Decimal `json:"debit"`
	Credit       decimal.Decimal `json:"credit"`
	DepartmentID *int64          `json:"department_id,omitempty"`
	ProjectID    *int64          `json:"project_id,omitempty"`
}

// Totals sums debit and credit at two decimal places.
func (j Journal) Totals() (decimal.Decimal, decimal.Decimal) {
	debit, credit := decimal.Zero, decimal.Zero
	for _, line := range j.Lines {
		debit = debit.Add(shared.RoundMoney(line.Debit))
		credit = credit.Add(shared.RoundMoney(line.Credit))
	}
	return shared.RoundMoney(debit), shared.RoundMoney(credit)
}

// IsBalanced reports whether debits equal credits.
func (j Journal) IsBalanced() bool {
	debit, credit := j.Totals()
	return debit.Equal(credit)
}

// IsImmutable reports whether the journal can no longer change.
func (j Journal) IsImmutable() bool {
	return j.Status == JournalStatusPosted || j.Status == JournalStatusReversed
}
