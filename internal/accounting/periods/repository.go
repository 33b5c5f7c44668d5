package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Gate is the period check other modules run inside their own transactions.
type Gate interface {
	// FindOpenPeriod returns the open period covering date or ErrPeriodClosed.
	FindOpenPeriod(ctx context.Context, companyID int64, date time.Time) (Period, error)
	// LockOpenPeriod takes a shared row lock on the period and fails with
	// ErrPeriodClosed unless it is still open.
	LockOpenPeriod(ctx context.Context, periodID int64) (Period, error)
}

// Repository persists accounting periods.
type Repository interface {
	FindOpenPeriod(ctx context.Context, companyID int64, date time.Time) (Period, error)
	Get(ctx context.Context, id int64) (Period, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	Gate
	GetForUpdate(ctx context.Context, id int64) (Period, error)
	Insert(ctx context.Context, p Period) (Period, error)
	UpdateStatus(ctx context.Context, id int64, from, to PeriodStatus, actor *int64, at *time.Time) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) FindOpenPeriod(ctx context.Context, companyID int64, date time.Time) (Period, error) {
	return NewGate(r.pool).FindOpenPeriod(ctx, companyID, date)
}

func (r *repository) Get(ctx context.Context, id int64) (Period, error) {
	return scanPeriod(r.pool.QueryRow(ctx, selectPeriod+` WHERE id=$1`, id))
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{gate: gate{q: tx}, tx: tx})
	})
}

// NewGate returns a Gate running its queries on q, typically a pgx.Tx.
func NewGate(q db.Querier) Gate {
	return gate{q: q}
}

type gate struct {
	q db.Querier
}

const selectPeriod = `SELECT id, company_id, year, month, start_date, end_date, status, closed_at, closed_by, created_at, updated_at
FROM accounting_periods`

func (g gate) FindOpenPeriod(ctx context.Context, companyID int64, date time.Time) (Period, error) {
	p, err := scanPeriod(g.q.QueryRow(ctx, selectPeriod+`
WHERE company_id=$1 AND status='OPEN' AND $2::date BETWEEN start_date AND end_date
ORDER BY start_date LIMIT 1`, companyID, date))
	if errors.Is(err, shared.ErrPeriodNotFound) {
		return Period{}, shared.ErrPeriodClosed
	}
	return p, err
}

func (g gate) LockOpenPeriod(ctx context.Context, periodID int64) (Period, error) {
	p, err := scanPeriod(g.q.QueryRow(ctx, selectPeriod+` WHERE id=$1 FOR SHARE`, periodID))
	if err != nil {
		if errors.Is(err, shared.ErrPeriodNotFound) {
			return Period{}, shared.ErrPeriodClosed
		}
		return Period{}, err
	}
	if !p.IsOpen() {
		return Period{}, shared.ErrPeriodClosed
	}
	return p, nil
}

type txRepository struct {
	gate
	tx pgx.Tx
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Period, error) {
	return scanPeriod(r.tx.QueryRow(ctx, selectPeriod+` WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) Insert(ctx context.Context, p Period) (Period, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO accounting_periods (company_id, year, month, start_date, end_date, status)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at, updated_at`, p.CompanyID, p.Year, p.Month, p.StartDate, p.EndDate, p.Status).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_accounting_periods_month") {
			return Period{}, shared.ErrPeriodExists
		}
		return Period{}, err
	}
	return p, nil
}

func (r *txRepository) UpdateStatus(ctx context.Context, id int64, from, to PeriodStatus, actor *int64, at *time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounting_periods SET status=$3, closed_by=$4, closed_at=$5, updated_at=NOW()
WHERE id=$1 AND status=$2`, id, from, to, actor, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return internalShared.ErrInvalidPeriodTransition
	}
	return nil
}

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.CompanyID, &p.Year, &p.Month, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.ClosedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.ErrPeriodNotFound
		}
		return Period{}, err
	}
	return p, nil
}
