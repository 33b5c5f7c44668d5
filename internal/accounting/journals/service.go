package journals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Event names published by the journal service.
const (
	EventJournalCreated  = "journal.created"
	EventJournalApproved = "journal.approved"
	EventJournalPosted   = "journal.posted"
	EventJournalReversed = "journal.reversed"
)

const maxReversalSuffix = 99

// Config holds posting policy.
type Config struct {
	// AutoApproveOnPost lets Post approve a draft with the posting actor.
	// Disable it to require a separate approval step.
	AutoApproveOnPost bool
}

// DefaultConfig returns the default posting policy.
func DefaultConfig() Config {
	return Config{AutoApproveOnPost: true}
}

// Service drives the journal state machine.
type Service struct {
	repo   Repository
	events internalShared.EventPublisher
	logger *slog.Logger
	cfg    Config
	now    func() time.Time
}

// NewService builds the journal posting service.
func NewService(repo Repository, events internalShared.EventPublisher, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, events: events, logger: logger, cfg: cfg, now: time.Now}
}

// WithNow overrides the clock.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Get returns a journal with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Journal, error) {
	if id == 0 {
		return Journal{}, errors.New("accounting: journal id required")
	}
	return s.repo.Get(ctx, id)
}

// CreateDraft persists a draft journal. Lines need not balance yet.
func (s *Service) CreateDraft(ctx context.Context, input CreateDraftInput) (Journal, error) {
	if err := input.Validate(); err != nil {
		return Journal{}, err
	}
	if err := s.assignNumber(ctx, &input); err != nil {
		return Journal{}, err
	}
	var created Journal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		j, err := s.createDraft(ctx, tx, input)
		if err != nil {
			return err
		}
		created = j
		return nil
	})
	if err != nil {
		return Journal{}, err
	}
	s.publish(ctx, s.event(EventJournalCreated, created, input.ActorID, nil))
	return created, nil
}

// Approve moves a draft journal to approved.
func (s *Service) Approve(ctx context.Context, journalID, actorID int64) (Journal, error) {
	if journalID == 0 || actorID == 0 {
		return Journal{}, errors.New("accounting: journal id and actor required")
	}
	var approved Journal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		j, err := tx.GetJournalForUpdate(ctx, journalID)
		if err != nil {
			return err
		}
		if j.Status != JournalStatusDraft {
			return fmt.Errorf("%w: cannot approve %s journal", shared.ErrInvalidStatus, j.Status)
		}
		if err := s.ensurePeriodOpen(ctx, tx, j); err != nil {
			return err
		}
		now := s.now().UTC()
		if _, err := tx.LockOpenPeriod(ctx, j.PeriodID); err != nil {
			return err
		}
		if err := tx.MarkApproved(ctx, j.ID, actorID, now); err != nil {
			return err
		}
		j.Status = JournalStatusApproved
		j.ApprovedBy = &actorID
		j.ApprovedAt = &now
		approved = j
		return nil
	})
	if err != nil {
		return Journal{}, err
	}
	s.publish(ctx, s.event(EventJournalApproved, approved, actorID, nil))
	return approved, nil
}

// Post finalizes a draft or approved journal.
func (s *Service) Post(ctx context.Context, journalID, actorID int64) (Journal, error) {
	if journalID == 0 || actorID == 0 {
		return Journal{}, errors.New("accounting: journal id and actor required")
	}
	var (
		posted  Journal
		pending []internalShared.Event
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		j, err := tx.GetJournalForUpdate(ctx, journalID)
		if err != nil {
			return err
		}
		posted, pending, err = s.post(ctx, tx, j, actorID, nil)
		return err
	})
	if err != nil {
		return Journal{}, err
	}
	s.publish(ctx, pending...)
	return posted, nil
}

// Reverse creates a posted mirror of a posted journal and marks the original reversed.
// It returns the reversal journal.
func (s *Service) Reverse(ctx context.Context, input ReverseInput) (Journal, error) {
	if err := validate.Struct(input); err != nil {
		return Journal{}, err
	}
	var original, reversal Journal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		j, err := tx.GetJournalForUpdate(ctx, input.JournalID)
		if err != nil {
			return err
		}
		if j.Status != JournalStatusPosted {
			return fmt.Errorf("%w: cannot reverse %s journal", shared.ErrInvalidStatus, j.Status)
		}
		if err := s.ensurePeriodOpen(ctx, tx, j); err != nil {
			return err
		}
		number, err := reversalNumber(ctx, tx, j)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		actor := input.ActorID
		sourceID := j.ID
		header := Journal{
			CompanyID:           j.CompanyID,
			Number:              number,
			PeriodID:            j.PeriodID,
			Date:                j.Date,
			Description:         defaultReversalDescription(input.Description, j.Number),
			SourceType:          SourceTypeReversal,
			SourceID:            &sourceID,
			Status:              JournalStatusPosted,
			CreatedBy:           actor,
			ApprovedBy:          &actor,
			ApprovedAt:          &now,
			PostedBy:            &actor,
			PostedAt:            &now,
			ReversalOfJournalID: &sourceID,
		}
		if _, err := tx.LockOpenPeriod(ctx, j.PeriodID); err != nil {
			return err
		}
		inserted, err := tx.InsertJournal(ctx, header)
		if err != nil {
			return err
		}
		inserted.Lines, err = tx.InsertJournalLines(ctx, inserted.ID, reverseLines(j.Lines))
		if err != nil {
			return err
		}
		if err := tx.MarkReversed(ctx, j.ID, actor, now); err != nil {
			return err
		}
		j.Status = JournalStatusReversed
		j.ReversedBy = &actor
		j.ReversedAt = &now
		original = j
		reversal = inserted
		return nil
	})
	if err != nil {
		return Journal{}, err
	}
	s.logger.Info("journal reversed",
		slog.Int64("journal_id", original.ID),
		slog.Int64("reversal_id", reversal.ID),
		slog.String("reversal_number", reversal.Number))
	s.publish(ctx,
		s.event(EventJournalReversed, original, input.ActorID, map[string]any{
			"reversal_id":     reversal.ID,
			"reversal_number": reversal.Number,
		}),
		s.event(EventJournalPosted, reversal, input.ActorID, nil),
	)
	return reversal, nil
}

// CreateAndPost drafts and posts a journal in one transaction.
func (s *Service) CreateAndPost(ctx context.Context, input PostingInput) (Journal, error) {
	if err := input.Validate(); err != nil {
		return Journal{}, err
	}
	if err := s.assignNumber(ctx, &input.CreateDraftInput); err != nil {
		return Journal{}, err
	}
	var (
		posted  Journal
		pending []internalShared.Event
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		posted, pending, err = s.createAndPost(ctx, tx, input)
		return err
	})
	if err != nil {
		return Journal{}, err
	}
	s.publish(ctx, pending...)
	return posted, nil
}

// PostFromSource resolves account codes and creates a posted journal.
func (s *Service) PostFromSource(ctx context.Context, input SourcePostingInput) (Journal, error) {
	if err := input.Validate(); err != nil {
		return Journal{}, err
	}
	number, err := s.repo.NextJournalNumber(ctx, input.CompanyID, dateOnly(input.Date))
	if err != nil {
		return Journal{}, err
	}
	var (
		posted  Journal
		pending []internalShared.Event
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lines := make([]LineInput, 0, len(input.Lines))
		for _, line := range input.Lines {
			account, err := tx.FindAccountByCode(ctx, input.CompanyID, line.AccountCode)
			if err != nil {
				return err
			}
			lines = append(lines, LineInput{
				AccountID:    account.ID,
				Description:  line.Description,
				Debit:        line.Debit,
				Credit:       line.Credit,
				DepartmentID: line.DepartmentID,
				ProjectID:    line.ProjectID,
			})
		}
		posting := PostingInput{
			CreateDraftInput: CreateDraftInput{
				CompanyID:   input.CompanyID,
				Number:      number,
				Date:        input.Date,
				Description: input.Description,
				SourceType:  input.SourceType,
				SourceID:    input.SourceID,
				ActorID:     input.ActorID,
				Lines:       lines,
			},
			UniqueSource: input.UniqueSource,
			ApproverID:   input.ApproverID,
		}
		if err := posting.Validate(); err != nil {
			return err
		}
		var err error
		posted, pending, err = s.createAndPost(ctx, tx, posting)
		return err
	})
	if err != nil {
		return Journal{}, err
	}
	s.publish(ctx, pending...)
	return posted, nil
}

func (s *Service) createAndPost(ctx context.Context, tx TxRepository, input PostingInput) (Journal, []internalShared.Event, error) {
	if input.UniqueSource {
		exists, err := tx.SourceJournalExists(ctx, input.CompanyID, input.SourceType, *input.SourceID)
		if err != nil {
			return Journal{}, nil, err
		}
		if exists {
			return Journal{}, nil, fmt.Errorf("%w: %s %d", shared.ErrSourceAlreadyLinked, input.SourceType, *input.SourceID)
		}
	}
	draft, err := s.createDraft(ctx, tx, input.CreateDraftInput)
	if err != nil {
		return Journal{}, nil, err
	}
	return s.post(ctx, tx, draft, input.ActorID, input.ApproverID)
}

// assignNumber allocates a generated number before the transaction opens, so
// the counter is never read through a stale snapshot. Numbers allocated for
// requests that later fail are skipped.
func (s *Service) assignNumber(ctx context.Context, input *CreateDraftInput) error {
	if strings.TrimSpace(input.Number) != "" {
		return nil
	}
	number, err := s.repo.NextJournalNumber(ctx, input.CompanyID, dateOnly(input.Date))
	if err != nil {
		return err
	}
	input.Number = number
	return nil
}

func (s *Service) createDraft(ctx context.Context, tx TxRepository, input CreateDraftInput) (Journal, error) {
	date := dateOnly(input.Date)
	period, err := tx.FindOpenPeriod(ctx, input.CompanyID, date)
	if err != nil {
		return Journal{}, err
	}
	lines := make([]JournalLine, 0, len(input.Lines))
	for _, line := range input.Lines {
		account, err := tx.FindAccountByID(ctx, input.CompanyID, line.AccountID)
		if err != nil {
			return Journal{}, err
		}
		if err := accounts.EnsurePostable(account); err != nil {
			return Journal{}, err
		}
		lines = append(lines, JournalLine{
			AccountID:    account.ID,
			Description:  line.Description,
			Debit:        shared.RoundMoney(line.Debit),
			Credit:       shared.RoundMoney(line.Credit),
			DepartmentID: line.DepartmentID,
			ProjectID:    line.ProjectID,
		})
	}
	number := strings.TrimSpace(input.Number)
	if number == "" {
		return Journal{}, errors.New("accounting: journal number not assigned")
	}
	exists, err := tx.JournalNumberExists(ctx, input.CompanyID, number)
	if err != nil {
		return Journal{}, err
	}
	if exists {
		return Journal{}, fmt.Errorf("%w: %s", shared.ErrDuplicateJournalNumber, number)
	}
	if _, err := tx.LockOpenPeriod(ctx, period.ID); err != nil {
		return Journal{}, err
	}
	inserted, err := tx.InsertJournal(ctx, Journal{
		CompanyID:   input.CompanyID,
		Number:      number,
		PeriodID:    period.ID,
		Date:        date,
		Description: input.Description,
		SourceType:  input.SourceType,
		SourceID:    input.SourceID,
		Status:      JournalStatusDraft,
		CreatedBy:   input.ActorID,
	})
	if err != nil {
		return Journal{}, err
	}
	inserted.Lines, err = tx.InsertJournalLines(ctx, inserted.ID, lines)
	if err != nil {
		return Journal{}, err
	}
	return inserted, nil
}

func (s *Service) post(ctx context.Context, tx TxRepository, j Journal, actorID int64, approverID *int64) (Journal, []internalShared.Event, error) {
	if j.Status != JournalStatusDraft && j.Status != JournalStatusApproved {
		return Journal{}, nil, fmt.Errorf("%w: cannot post %s journal", shared.ErrInvalidStatus, j.Status)
	}
	if err := s.ensurePeriodOpen(ctx, tx, j); err != nil {
		return Journal{}, nil, err
	}
	if len(j.Lines) < 2 {
		return Journal{}, nil, shared.ErrTooFewLines
	}
	if debit, credit := j.Totals(); !debit.Equal(credit) {
		return Journal{}, nil, fmt.Errorf("%w: debit %s credit %s", shared.ErrUnbalanced, debit.StringFixed(2), credit.StringFixed(2))
	}
	var approver int64
	if j.Status == JournalStatusDraft {
		switch {
		case approverID != nil:
			approver = *approverID
		case s.cfg.AutoApproveOnPost:
			approver = actorID
		default:
			return Journal{}, nil, fmt.Errorf("%w: journal %s requires approval before posting", shared.ErrInvalidStatus, j.Number)
		}
	}

	now := s.now().UTC()
	if _, err := tx.LockOpenPeriod(ctx, j.PeriodID); err != nil {
		return Journal{}, nil, err
	}
	var pending []internalShared.Event
	if j.Status == JournalStatusDraft {
		if err := tx.MarkApproved(ctx, j.ID, approver, now); err != nil {
			return Journal{}, nil, err
		}
		j.Status = JournalStatusApproved
		j.ApprovedBy = &approver
		j.ApprovedAt = &now
		pending = append(pending, s.event(EventJournalApproved, j, approver, map[string]any{"auto": approverID == nil}))
	}
	if err := tx.MarkPosted(ctx, j.ID, actorID, now); err != nil {
		return Journal{}, nil, err
	}
	j.Status = JournalStatusPosted
	j.PostedBy = &actorID
	j.PostedAt = &now
	pending = append(pending, s.event(EventJournalPosted, j, actorID, nil))
	s.logger.Info("journal posted",
		slog.Int64("journal_id", j.ID),
		slog.String("journal_number", j.Number),
		slog.Int64("company_id", j.CompanyID))
	return j, pending, nil
}

// ensurePeriodOpen runs the entry check: the journal's period must still be
// the open period covering its date.
func (s *Service) ensurePeriodOpen(ctx context.Context, tx TxRepository, j Journal) error {
	period, err := tx.FindOpenPeriod(ctx, j.CompanyID, j.Date)
	if err != nil {
		return err
	}
	if period.ID != j.PeriodID {
		return fmt.Errorf("%w: journal period %d", shared.ErrPeriodClosed, j.PeriodID)
	}
	return nil
}

func (s *Service) event(name string, j Journal, actorID int64, extra map[string]any) internalShared.Event {
	debit, _ := j.Totals()
	data := map[string]any{
		"journal_number": j.Number,
		"period_id":      j.PeriodID,
		"status":         string(j.Status),
		"amount":         debit.StringFixed(2),
	}
	if j.SourceType != "" {
		data["source_type"] = j.SourceType
	}
	if j.SourceID != nil {
		data["source_id"] = *j.SourceID
	}
	for k, v := range extra {
		data[k] = v
	}
	return internalShared.NewEvent(name, "journal", j.ID, j.CompanyID, actorID, s.now(), data)
}

func (s *Service) publish(ctx context.Context, events ...internalShared.Event) {
	if s.events == nil || len(events) == 0 {
		return
	}
	s.events.Publish(ctx, events...)
}

func reversalNumber(ctx context.Context, tx TxRepository, original Journal) (string, error) {
	base := original.Number + "-REV"
	candidate := base
	for n := 2; n <= maxReversalSuffix+1; n++ {
		exists, err := tx.JournalNumberExists(ctx, original.CompanyID, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
	return "", fmt.Errorf("%w: no free reversal number for %s", shared.ErrDuplicateJournalNumber, original.Number)
}

func reverseLines(lines []JournalLine) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, JournalLine{
			AccountID:    line.AccountID,
			Description:  line.Description,
			Debit:        line.Credit,
			Credit:       line.Debit,
			DepartmentID: line.DepartmentID,
			ProjectID:    line.ProjectID,
		})
	}
	return out
}

func defaultReversalDescription(description, number string) string {
	if description != "" {
		return description
	}
	return fmt.Sprintf("Reversal of %s", number)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
