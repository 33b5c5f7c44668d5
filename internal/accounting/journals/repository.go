package journals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository encapsulates DB operations for journals.
type Repository interface {
	Get(ctx context.Context, id int64) (Journal, error)
	// NextJournalNumber allocates the next JV-YYYYMM-NNNN outside any
	// transaction. Allocated numbers are never handed out twice.
	NextJournalNumber(ctx context.Context, companyID int64, date time.Time) (string, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction. Financial
// fields are written only by the inserts; later updates touch status stamps
// and are guarded by the expected current status.
type TxRepository interface {
	periods.Gate
	accounts.Lookup

	JournalNumberExists(ctx context.Context, companyID int64, number string) (bool, error)
	SourceJournalExists(ctx context.Context, companyID int64, sourceType string, sourceID int64) (bool, error)
	InsertJournal(ctx context.Context, j Journal) (Journal, error)
	InsertJournalLines(ctx context.Context, journalID int64, lines []JournalLine) ([]JournalLine, error)
	GetJournalForUpdate(ctx context.Context, id int64) (Journal, error)
	MarkApproved(ctx context.Context, id, actor int64, at time.Time) error
	MarkPosted(ctx context.Context, id, actor int64, at time.Time) error
	MarkReversed(ctx context.Context, id, actor int64, at time.Time) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Get(ctx context.Context, id int64) (Journal, error) {
	return loadJournal(ctx, r.pool, id, false)
}

// nextJournalNumberSQL bumps the per company and month counter. The first
// allocation, and any later one that finds higher caller-supplied numbers,
// continues after the largest matching journal_number.
const nextJournalNumberSQL = `INSERT INTO journal_number_sequences AS s (company_id, prefix, last_value)
SELECT $1::bigint, $2::text, COALESCE(MAX(CAST(SUBSTRING(journal_number FROM $3::int) AS BIGINT)), 0) + 1
FROM journals WHERE company_id=$1::bigint AND journal_number ~ ('^' || $2::text || '[0-9]{4,}$')
ON CONFLICT (company_id, prefix) DO UPDATE SET last_value = GREATEST(s.last_value, EXCLUDED.last_value - 1) + 1, updated_at = NOW()
RETURNING last_value`

// NextJournalNumber runs as its own autocommit statement on the pool. The row
// lock on the counter serializes allocators and READ COMMITTED sees the latest value.
func (r *repository) NextJournalNumber(ctx context.Context, companyID int64, date time.Time) (string, error) {
	prefix := fmt.Sprintf("JV-%04d%02d-", date.Year(), int(date.Month()))
	var next int64
	if err := r.pool.QueryRow(ctx, nextJournalNumberSQL, companyID, prefix, len(prefix)+1).Scan(&next); err != nil {
		return "", fmt.Errorf("allocate journal number: %w", err)
	}
	return fmt.Sprintf("%s%04d", prefix, next), nil
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{
			Gate:   periods.NewGate(tx),
			Lookup: accounts.NewRepository(tx),
			tx:     tx,
		})
	})
}

type txRepository struct {
	periods.Gate
	accounts.Lookup
	tx pgx.Tx
}

func (r *txRepository) JournalNumberExists(ctx context.Context, companyID int64, number string) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM journals WHERE company_id=$1 AND journal_number=$2)`, companyID, number).Scan(&exists)
	return exists, err
}

func (r *txRepository) SourceJournalExists(ctx context.Context, companyID int64, sourceType string, sourceID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM journals WHERE company_id=$1 AND source_type=$2 AND source_id=$3)`, companyID, sourceType, sourceID).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertJournal(ctx context.Context, j Journal) (Journal, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO journals (company_id, journal_number, period_id, journal_date, description, source_type, source_id,
	status, created_by, approved_by, approved_at, posted_by, posted_at, reversal_of_journal_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING id, created_at, updated_at`,
		j.CompanyID, j.Number, j.PeriodID, j.Date, j.Description, j.SourceType, j.SourceID,
		j.Status, j.CreatedBy, j.ApprovedBy, j.ApprovedAt, j.PostedBy, j.PostedAt, j.ReversalOfJournalID).
		Scan(&j.ID, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		switch {
		case db.IsUniqueViolation(err, "uq_journals_number"):
			return Journal{}, fmt.Errorf("%w: %s", shared.ErrDuplicateJournalNumber, j.Number)
		case db.IsUniqueViolation(err, "uq_journals_cogs_source"):
			return Journal{}, shared.ErrSourceAlreadyLinked
		}
		return Journal{}, err
	}
	return j, nil
}

func (r *txRepository) InsertJournalLines(ctx context.Context, journalID int64, lines []JournalLine) ([]JournalLine, error) {
	out := make([]JournalLine, 0, len(lines))
	for idx, line := range lines {
		line.JournalID = journalID
		line.LineNo = idx + 1
		err := r.tx.QueryRow(ctx, `INSERT INTO journal_lines (journal_id, line_no, account_id, description, debit, credit, department_id, project_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`, journalID, line.LineNo, line.AccountID, line.Description,
			shared.RoundMoney(line.Debit), shared.RoundMoney(line.Credit), line.DepartmentID, line.ProjectID).Scan(&line.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, nil
}

func (r *txRepository) GetJournalForUpdate(ctx context.Context, id int64) (Journal, error) {
	return loadJournal(ctx, r.tx, id, true)
}

func (r *txRepository) MarkApproved(ctx context.Context, id, actor int64, at time.Time) error {
	return r.updateStatus(ctx, `UPDATE journals SET status='APPROVED', approved_by=$2, approved_at=$3, updated_at=NOW()
WHERE id=$1 AND status='DRAFT'`, id, actor, at)
}

func (r *txRepository) MarkPosted(ctx context.Context, id, actor int64, at time.Time) error {
	return r.updateStatus(ctx, `UPDATE journals SET status='POSTED', posted_by=$2, posted_at=$3, updated_at=NOW()
WHERE id=$1 AND status='APPROVED'`, id, actor, at)
}

func (r *txRepository) MarkReversed(ctx context.Context, id, actor int64, at time.Time) error {
	return r.updateStatus(ctx, `UPDATE journals SET status='REVERSED', reversed_by=$2, reversed_at=$3, updated_at=NOW()
WHERE id=$1 AND status='POSTED'`, id, actor, at)
}

func (r *txRepository) updateStatus(ctx context.Context, sql string, id, actor int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, sql, id, actor, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrInvalidStatus
	}
	return nil
}

func loadJournal(ctx context.Context, q db.Querier, id int64, forUpdate bool) (Journal, error) {
	query := `SELECT id, company_id, journal_number, period_id, journal_date, description, source_type, source_id, status,
	created_by, approved_by, approved_at, posted_by, posted_at, reversed_by, reversed_at, reversal_of_journal_id, created_at, updated_at
FROM journals WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var j Journal
	err := q.QueryRow(ctx, query, id).Scan(&j.ID, &j.CompanyID, &j.Number, &j.PeriodID, &j.Date, &j.Description, &j.SourceType, &j.SourceID, &j.Status,
		&j.CreatedBy, &j.ApprovedBy, &j.ApprovedAt, &j.PostedBy, &j.PostedAt, &j.ReversedBy, &j.ReversedAt, &j.ReversalOfJournalID, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Journal{}, shared.ErrJournalNotFound
		}
		return Journal{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, journal_id, line_no, account_id, description, debit, credit, department_id, project_id
FROM journal_lines WHERE journal_id=$1 ORDER BY line_no ASC, id ASC`, id)
	if err != nil {
		return Journal{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.JournalID, &line.LineNo, &line.AccountID, &line.Description, &line.Debit, &line.Credit, &line.DepartmentID, &line.ProjectID); err != nil {
			return Journal{}, err
		}
		j.Lines = append(j.Lines, line)
	}
	return j, rows.Err()
}
