package journals

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

var validate = validator.New()

// LineInput describes a journal line by account id.
type LineInput struct {
	AccountID    int64           `json:"account_id" validate:"required,gt=0"`
	Description  string          `json:"description"`
	Debit        decimal.Decimal `json:"debit"`
	Credit       decimal.Decimal `json:"credit"`
	DepartmentID *int64          `json:"department_id"`
	ProjectID    *int64          `json:"project_id"`
}

// CreateDraftInput groups fields required to create a draft journal.
type CreateDraftInput struct {
	CompanyID   int64       `json:"company_id" validate:"required,gt=0"`
	Number      string      `json:"journal_number" validate:"omitempty,max=64"`
	Date        time.Time   `json:"journal_date" validate:"required"`
	Description string      `json:"description" validate:"max=500"`
	SourceType  string      `json:"source_type" validate:"max=64"`
	SourceID    *int64      `json:"source_id"`
	ActorID     int64       `json:"-" validate:"required,gt=0"`
	Lines       []LineInput `json:"lines" validate:"dive"`
}

// Validate checks structure and line amounts. Balance is not required for drafts.
func (in CreateDraftInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return err
	}
	for idx, line := range in.Lines {
		if err := validateAmounts(idx, line.Debit, line.Credit); err != nil {
			return err
		}
	}
	return nil
}

// PostingInput creates and posts a journal in one transaction.
type PostingInput struct {
	CreateDraftInput
	// UniqueSource rejects a second journal for the same source document.
	UniqueSource bool `json:"unique_source"`
	// ApproverID records an upstream approval when auto-approval is disabled.
	ApproverID *int64 `json:"-"`
}

// Validate ensures posting input meets minimum criteria.
func (in PostingInput) Validate() error {
	if err := in.CreateDraftInput.Validate(); err != nil {
		return err
	}
	if len(in.Lines) < 2 {
		return shared.ErrTooFewLines
	}
	if err := validateSource(in.UniqueSource, in.SourceType, in.SourceID); err != nil {
		return err
	}
	debit, credit := decimal.Zero, decimal.Zero
	for _, line := range in.Lines {
		debit = debit.Add(shared.RoundMoney(line.Debit))
		credit = credit.Add(shared.RoundMoney(line.Credit))
	}
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: debit %s credit %s", shared.ErrUnbalanced, debit.StringFixed(2), credit.StringFixed(2))
	}
	return nil
}

// SourceLineInput describes a journal line by account code.
type SourceLineInput struct {
	AccountCode  string          `json:"account_code" validate:"required"`
	Description  string          `json:"description"`
	Debit        decimal.Decimal `json:"debit"`
	Credit       decimal.Decimal `json:"credit"`
	DepartmentID *int64          `json:"department_id"`
	ProjectID    *int64          `json:"project_id"`
}

// SourcePostingInput is the boundary used by commercial document flows.
type SourcePostingInput struct {
	CompanyID    int64             `json:"company_id" validate:"required,gt=0"`
	Date         time.Time         `json:"journal_date" validate:"required"`
	Description  string            `json:"description" validate:"max=500"`
	SourceType   string            `json:"source_type" validate:"required,max=64"`
	SourceID     *int64            `json:"source_id"`
	UniqueSource bool              `json:"unique_source"`
	ActorID      int64             `json:"-" validate:"required,gt=0"`
	ApproverID   *int64            `json:"-"`
	Lines        []SourceLineInput `json:"lines" validate:"min=2,dive"`
}

// Validate checks the source posting request before account resolution.
func (in SourcePostingInput) Validate() error {
	if len(in.Lines) < 2 {
		return shared.ErrTooFewLines
	}
	if err := validate.Struct(in); err != nil {
		return err
	}
	for idx, line := range in.Lines {
		if err := validateAmounts(idx, line.Debit, line.Credit); err != nil {
			return err
		}
	}
	return validateSource(in.UniqueSource, in.SourceType, in.SourceID)
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	JournalID   int64  `json:"-" validate:"required,gt=0"`
	ActorID     int64  `json:"-" validate:"required,gt=0"`
	Description string `json:"description" validate:"max=500"`
}

func validateAmounts(idx int, debit, credit decimal.Decimal) error {
	if debit.IsNegative() || credit.IsNegative() {
		return fmt.Errorf("accounting: line %d negative amount", idx)
	}
	if debit.IsPositive() && credit.IsPositive() {
		return fmt.Errorf("accounting: line %d cannot be both debit and credit", idx)
	}
	return nil
}

func validateSource(unique bool, sourceType string, sourceID *int64) error {
	if unique && (sourceType == "" || sourceID == nil) {
		return errors.New("accounting: unique source requires source type and id")
	}
	return nil
}
