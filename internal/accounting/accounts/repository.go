package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Lookup resolves chart of accounts entries for a company.
type Lookup interface {
	FindAccountByID(ctx context.Context, companyID, id int64) (Account, error)
	FindAccountByCode(ctx context.Context, companyID int64, code string) (Account, error)
}

type repository struct {
	q db.Querier
}

// NewRepository returns a Lookup running on q, either a pool or a transaction.
func NewRepository(q db.Querier) Lookup {
	return &repository{q: q}
}

const selectAccount = `SELECT id, company_id, code, name, type, normal_balance, is_postable, created_at, updated_at FROM chart_of_accounts`

func (r *repository) FindAccountByID(ctx context.Context, companyID, id int64) (Account, error) {
	a, err := scanAccount(r.q.QueryRow(ctx, selectAccount+` WHERE company_id=$1 AND id=$2`, companyID, id))
	if errors.Is(err, shared.ErrMissingAccount) {
		return Account{}, fmt.Errorf("%w: id %d", err, id)
	}
	return a, err
}

func (r *repository) FindAccountByCode(ctx context.Context, companyID int64, code string) (Account, error) {
	a, err := scanAccount(r.q.QueryRow(ctx, selectAccount+` WHERE company_id=$1 AND code=$2`, companyID, code))
	if errors.Is(err, shared.ErrMissingAccount) {
		return Account{}, fmt.Errorf("%w: code %s", err, code)
	}
	return a, err
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.IsPostable, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrMissingAccount
		}
		return Account{}, err
	}
	return a, nil
}

// EnsurePostable fails for header accounts.
func EnsurePostable(a Account) error {
	if !a.IsPostable {
		return fmt.Errorf("%w: %s", shared.ErrAccountNotPostable, a.Code)
	}
	return nil
}
