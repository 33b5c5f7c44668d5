package shared

import "errors"

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("accounting: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("accounting: journal requires at least two lines")
	// ErrPeriodClosed indicates the effective date is not covered by an open period.
	ErrPeriodClosed = errors.New("accounting: period is not open")
	// ErrPeriodNotFound indicates missing period.
	ErrPeriodNotFound = errors.New("accounting: period not found")
	// ErrPeriodExists indicates the company already has a period for the month.
	ErrPeriodExists = errors.New("accounting: period already exists")
	// ErrSourceAlreadyLinked indicates idempotency conflict.
	ErrSourceAlreadyLinked = errors.New("accounting: source already linked")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("accounting: journal not found")
	// ErrInvalidStatus indicates action can't proceed.
	ErrInvalidStatus = errors.New("accounting: invalid status transition")
	// ErrDuplicateJournalNumber indicates the number is taken within the company.
	ErrDuplicateJournalNumber = errors.New("accounting: journal number already used")
	// ErrMissingAccount indicates an unknown chart of account.
	ErrMissingAccount = errors.New("accounting: chart of account not found")
	// ErrAccountNotPostable indicates a header/summary account.
	ErrAccountNotPostable = errors.New("accounting: account is not postable")
)
