package periods

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type memoryRepo struct {
	periods map[int64]Period
	nextID  int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{periods: make(map[int64]Period)}
}

func (r *memoryRepo) FindOpenPeriod(ctx context.Context, companyID int64, date time.Time) (Period, error) {
	return (&memoryTx{repo: r}).FindOpenPeriod(ctx, companyID, date)
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Period, error) {
	p, ok := r.periods[id]
	if !ok {
		return Period{}, shared.ErrPeriodNotFound
	}
	return p, nil
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[int64]Period, len(r.periods))
	for k, v := range r.periods {
		snapshot[k] = v
	}
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.periods = snapshot
		return err
	}
	return nil
}

func (tx *memoryTx) FindOpenPeriod(ctx context.Context, companyID int64, date time.Time) (Period, error) {
	for _, p := range tx.repo.periods {
		if p.CompanyID == companyID && p.IsOpen() && p.Covers(date) {
			return p, nil
		}
	}
	return Period{}, shared.ErrPeriodClosed
}

func (tx *memoryTx) LockOpenPeriod(ctx context.Context, periodID int64) (Period, error) {
	p, ok := tx.repo.periods[periodID]
	if !ok || !p.IsOpen() {
		return Period{}, shared.ErrPeriodClosed
	}
	return p, nil
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, id int64) (Period, error) {
	return tx.repo.Get(ctx, id)
}

func (tx *memoryTx) Insert(ctx context.Context, p Period) (Period, error) {
	for _, existing := range tx.repo.periods {
		if existing.CompanyID == p.CompanyID && existing.Year == p.Year && existing.Month == p.Month {
			return Period{}, shared.ErrPeriodExists
		}
	}
	tx.repo.nextID++
	p.ID = tx.repo.nextID
	tx.repo.periods[p.ID] = p
	return p, nil
}

func (tx *memoryTx) UpdateStatus(ctx context.Context, id int64, from, to PeriodStatus, actor *int64, at *time.Time) error {
	p, ok := tx.repo.periods[id]
	if !ok || p.Status != from {
		return internalShared.ErrInvalidPeriodTransition
	}
	p.Status = to
	p.ClosedBy = actor
	p.ClosedAt = at
	tx.repo.periods[id] = p
	return nil
}

type capturePublisher struct {
	events []internalShared.Event
}

func (c *capturePublisher) Publish(ctx context.Context, events ...internalShared.Event) {
	c.events = append(c.events, events...)
}

func TestCreatePeriodCoversWholeMonth(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	p, err := svc.CreatePeriod(ctx, CreatePeriodInput{CompanyID: 1, Year: 2024, Month: 2, ActorID: 5})
	require.NoError(t, err)
	require.Equal(t, PeriodStatusOpen, p.Status)
	require.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), p.StartDate)
	require.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), p.EndDate)

	found, err := svc.FindOpenPeriod(ctx, 1, time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, p.ID, found.ID)

	_, err = svc.FindOpenPeriod(ctx, 2, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, shared.ErrPeriodClosed)

	_, err = svc.CreatePeriod(ctx, CreatePeriodInput{CompanyID: 1, Year: 2024, Month: 2, ActorID: 5})
	require.ErrorIs(t, err, shared.ErrPeriodExists)
}

func TestCreatePeriodValidatesInput(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	_, err := svc.CreatePeriod(context.Background(), CreatePeriodInput{CompanyID: 1, Year: 2024, Month: 13, ActorID: 5})
	require.Error(t, err)
}

func TestCloseAndReopenPeriod(t *testing.T) {
	repo := newMemoryRepo()
	events := &capturePublisher{}
	svc := NewService(repo, events, nil)
	closedAt := time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC)
	svc.WithNow(func() time.Time { return closedAt })
	ctx := context.Background()

	p, err := svc.CreatePeriod(ctx, CreatePeriodInput{CompanyID: 1, Year: 2024, Month: 3, ActorID: 5})
	require.NoError(t, err)

	closed, err := svc.ClosePeriod(ctx, p.ID, 9)
	require.NoError(t, err)
	require.Equal(t, PeriodStatusClosed, closed.Status)
	require.Equal(t, int64(9), *closed.ClosedBy)
	require.Equal(t, closedAt, *closed.ClosedAt)

	_, err = svc.FindOpenPeriod(ctx, 1, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, shared.ErrPeriodClosed)

	_, err = svc.ClosePeriod(ctx, p.ID, 9)
	require.ErrorIs(t, err, internalShared.ErrInvalidPeriodTransition)

	reopened, err := svc.ReopenPeriod(ctx, p.ID, 9)
	require.NoError(t, err)
	require.Equal(t, PeriodStatusOpen, reopened.Status)
	require.Nil(t, reopened.ClosedAt)

	names := make([]string, 0, len(events.events))
	for _, evt := range events.events {
		names = append(names, evt.Name)
	}
	require.Equal(t, []string{EventPeriodCreated, EventPeriodClosed, EventPeriodReopened}, names)
}

func TestPeriodHandlerClose(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	p, err := svc.CreatePeriod(context.Background(), CreatePeriodInput{CompanyID: 1, Year: 2024, Month: 5, ActorID: 5})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Route("/ledger/periods", NewHandler(svc.logger, svc).MountRoutes)

	req := httptest.NewRequest(http.MethodPost, "/ledger/periods/1/close", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/ledger/periods/1/close", nil)
	req.Header.Set("X-Actor-ID", "4")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"CLOSED"`)
	require.Equal(t, PeriodStatusClosed, repo.periods[p.ID].Status)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/ledger/periods", strings.NewReader(`{"company_id":1,"year":2024,"month":5}`))
	req.Header.Set("X-Actor-ID", "4")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)
}
