package periods

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Event names published by the period ledger.
const (
	EventPeriodCreated  = "period.created"
	EventPeriodClosed   = "period.closed"
	EventPeriodReopened = "period.reopened"
)

// CreatePeriodInput describes a new accounting month.
type CreatePeriodInput struct {
	CompanyID int64 `json:"company_id" validate:"required,gt=0"`
	Year      int   `json:"year" validate:"required,gte=1900,lte=9999"`
	Month     int   `json:"month" validate:"required,gte=1,lte=12"`
	ActorID   int64 `json:"-" validate:"required,gt=0"`
}

// Service gates postings by period status and manages the period lifecycle.
type Service struct {
	repo     Repository
	events   internalShared.EventPublisher
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService builds the period service.
func NewService(repo Repository, events internalShared.EventPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, events: events, logger: logger, validate: validator.New(), now: time.Now}
}

// WithNow overrides the clock.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// FindOpenPeriod queries the open period covering date. Results are never cached.
func (s *Service) FindOpenPeriod(ctx context.Context, companyID int64, date time.Time) (Period, error) {
	return s.repo.FindOpenPeriod(ctx, companyID, date)
}

// Get loads a period by id.
func (s *Service) Get(ctx context.Context, id int64) (Period, error) {
	return s.repo.Get(ctx, id)
}

// CreatePeriod opens a new month for the company.
func (s *Service) CreatePeriod(ctx context.Context, input CreatePeriodInput) (Period, error) {
	if err := s.validate.Struct(input); err != nil {
		return Period{}, err
	}
	start, end := MonthRange(input.Year, input.Month)
	var created Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.Insert(ctx, Period{
			CompanyID: input.CompanyID,
			Year:      input.Year,
			Month:     input.Month,
			StartDate: start,
			EndDate:   end,
			Status:    PeriodStatusOpen,
		})
		if err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	s.publish(ctx, EventPeriodCreated, created, input.ActorID)
	return created, nil
}

// ClosePeriod moves an open period to closed. Journals already posted are unaffected.
func (s *Service) ClosePeriod(ctx context.Context, periodID, actorID int64) (Period, error) {
	return s.transition(ctx, periodID, actorID, PeriodStatusClosed, EventPeriodClosed)
}

// ReopenPeriod moves a closed period back to open.
func (s *Service) ReopenPeriod(ctx context.Context, periodID, actorID int64) (Period, error) {
	return s.transition(ctx, periodID, actorID, PeriodStatusOpen, EventPeriodReopened)
}

func (s *Service) transition(ctx context.Context, periodID, actorID int64, target PeriodStatus, event string) (Period, error) {
	if periodID == 0 {
		return Period{}, errors.New("accounting: period id required")
	}
	if actorID == 0 {
		return Period{}, errors.New("accounting: actor required")
	}
	var updated Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, periodID)
		if err != nil {
			return err
		}
		if err := internalShared.ValidatePeriodTransition(string(current.Status), string(target)); err != nil {
			return fmt.Errorf("%w: %s to %s", err, current.Status, target)
		}
		var (
			by *int64
			at *time.Time
		)
		if target == PeriodStatusClosed {
			now := s.now().UTC()
			by, at = &actorID, &now
		}
		if err := tx.UpdateStatus(ctx, periodID, current.Status, target, by, at); err != nil {
			return err
		}
		current.Status = target
		current.ClosedBy = by
		current.ClosedAt = at
		updated = current
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	s.logger.Info("period status changed",
		slog.Int64("period_id", periodID),
		slog.String("status", string(target)),
		slog.Int64("actor_id", actorID))
	s.publish(ctx, event, updated, actorID)
	return updated, nil
}

func (s *Service) publish(ctx context.Context, name string, p Period, actorID int64) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, internalShared.NewEvent(name, "accounting_period", p.ID, p.CompanyID, actorID, s.now(), map[string]any{
		"year":   p.Year,
		"month":  p.Month,
		"status": string(p.Status),
	}))
}
