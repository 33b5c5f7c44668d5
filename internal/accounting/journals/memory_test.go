package journals

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type memoryRepo struct {
	periods  map[int64]periods.Period
	accounts map[int64]accounts.Account
	journals map[int64]Journal
	nextID   int64
	lineID   int64
	// sequences survive rollbacks, like the counter table.
	sequences map[string]int
	// beforeLock runs right before LockOpenPeriod to simulate concurrent writers.
	beforeLock func(r *memoryRepo)
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	r := &memoryRepo{
		periods:   make(map[int64]periods.Period),
		accounts:  make(map[int64]accounts.Account),
		journals:  make(map[int64]Journal),
		sequences: make(map[string]int),
	}
	start, end := periods.MonthRange(2024, 1)
	r.periods[1] = periods.Period{ID: 1, CompanyID: 1, Year: 2024, Month: 1, StartDate: start, EndDate: end, Status: periods.PeriodStatusOpen}
	start, end = periods.MonthRange(2024, 2)
	r.periods[2] = periods.Period{ID: 2, CompanyID: 1, Year: 2024, Month: 2, StartDate: start, EndDate: end, Status: periods.PeriodStatusOpen}
	r.addAccount(10, "1100", accounts.AccountTypeAsset, true)
	r.addAccount(11, "4100", accounts.AccountTypeRevenue, true)
	r.addAccount(12, "1000", accounts.AccountTypeAsset, false)
	r.addAccount(13, "1200", accounts.AccountTypeAsset, true)
	return r
}

func (r *memoryRepo) addAccount(id int64, code string, typ accounts.AccountType, postable bool) {
	r.accounts[id] = accounts.Account{ID: id, CompanyID: 1, Code: code, Name: code, Type: typ, IsPostable: postable}
}

func (r *memoryRepo) closePeriod(id int64) {
	p := r.periods[id]
	p.Status = periods.PeriodStatusClosed
	r.periods[id] = p
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Journal, error) {
	j, ok := r.journals[id]
	if !ok {
		return Journal{}, shared.ErrJournalNotFound
	}
	return j, nil
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	journals := make(map[int64]Journal, len(r.journals))
	for k, v := range r.journals {
		journals[k] = v
	}
	nextID := r.nextID
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.journals = journals
		r.nextID = nextID
		return err
	}
	return nil
}

func (tx *memoryTx) FindOpenPeriod(ctx context.Context, companyID int64, date time.Time) (periods.Period, error) {
	for _, p := range tx.repo.periods {
		if p.CompanyID == companyID && p.IsOpen() && p.Covers(date) {
			return p, nil
		}
	}
	return periods.Period{}, shared.ErrPeriodClosed
}

func (tx *memoryTx) LockOpenPeriod(ctx context.Context, periodID int64) (periods.Period, error) {
	if tx.repo.beforeLock != nil {
		tx.repo.beforeLock(tx.repo)
	}
	p, ok := tx.repo.periods[periodID]
	if !ok || !p.IsOpen() {
		return periods.Period{}, shared.ErrPeriodClosed
	}
	return p, nil
}

func (tx *memoryTx) FindAccountByID(ctx context.Context, companyID, id int64) (accounts.Account, error) {
	a, ok := tx.repo.accounts[id]
	if !ok || a.CompanyID != companyID {
		return accounts.Account{}, fmt.Errorf("%w: id %d", shared.ErrMissingAccount, id)
	}
	return a, nil
}

func (tx *memoryTx) FindAccountByCode(ctx context.Context, companyID int64, code string) (accounts.Account, error) {
	for _, a := range tx.repo.accounts {
		if a.CompanyID == companyID && a.Code == code {
			return a, nil
		}
	}
	return accounts.Account{}, fmt.Errorf("%w: code %s", shared.ErrMissingAccount, code)
}

func (r *memoryRepo) NextJournalNumber(ctx context.Context, companyID int64, date time.Time) (string, error) {
	prefix := fmt.Sprintf("JV-%04d%02d-", date.Year(), int(date.Month()))
	highest := 0
	for _, j := range r.journals {
		if j.CompanyID != companyID || !strings.HasPrefix(j.Number, prefix) {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(strings.TrimPrefix(j.Number, prefix), "%d", &n); err == nil && n > highest {
			highest = n
		}
	}
	key := fmt.Sprintf("%d:%s", companyID, prefix)
	next := max(r.sequences[key], highest) + 1
	r.sequences[key] = next
	return fmt.Sprintf("%s%04d", prefix, next), nil
}

func (tx *memoryTx) JournalNumberExists(ctx context.Context, companyID int64, number string) (bool, error) {
	for _, j := range tx.repo.journals {
		if j.CompanyID == companyID && j.Number == number {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) SourceJournalExists(ctx context.Context, companyID int64, sourceType string, sourceID int64) (bool, error) {
	for _, j := range tx.repo.journals {
		if j.CompanyID == companyID && j.SourceType == sourceType && j.SourceID != nil && *j.SourceID == sourceID {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) InsertJournal(ctx context.Context, j Journal) (Journal, error) {
	if exists, _ := tx.JournalNumberExists(ctx, j.CompanyID, j.Number); exists {
		return Journal{}, shared.ErrDuplicateJournalNumber
	}
	tx.repo.nextID++
	j.ID = tx.repo.nextID
	tx.repo.journals[j.ID] = j
	return j, nil
}

func (tx *memoryTx) InsertJournalLines(ctx context.Context, journalID int64, lines []JournalLine) ([]JournalLine, error) {
	j, ok := tx.repo.journals[journalID]
	if !ok {
		return nil, shared.ErrJournalNotFound
	}
	out := make([]JournalLine, 0, len(lines))
	for idx, line := range lines {
		tx.repo.lineID++
		line.ID = tx.repo.lineID
		line.JournalID = journalID
		line.LineNo = idx + 1
		out = append(out, line)
	}
	j.Lines = out
	tx.repo.journals[journalID] = j
	return out, nil
}

func (tx *memoryTx) GetJournalForUpdate(ctx context.Context, id int64) (Journal, error) {
	return tx.repo.Get(ctx, id)
}

func (tx *memoryTx) MarkApproved(ctx context.Context, id, actor int64, at time.Time) error {
	return tx.mark(id, JournalStatusDraft, func(j *Journal) {
		j.Status = JournalStatusApproved
		j.ApprovedBy = &actor
		j.ApprovedAt = &at
	})
}

func (tx *memoryTx) MarkPosted(ctx context.Context, id, actor int64, at time.Time) error {
	return tx.mark(id, JournalStatusApproved, func(j *Journal) {
		j.Status = JournalStatusPosted
		j.PostedBy = &actor
		j.PostedAt = &at
	})
}

func (tx *memoryTx) MarkReversed(ctx context.Context, id, actor int64, at time.Time) error {
	return tx.mark(id, JournalStatusPosted, func(j *Journal) {
		j.Status = JournalStatusReversed
		j.ReversedBy = &actor
		j.ReversedAt = &at
	})
}

func (tx *memoryTx) mark(id int64, expected JournalStatus, apply func(j *Journal)) error {
	j, ok := tx.repo.journals[id]
	if !ok || j.Status != expected {
		return shared.ErrInvalidStatus
	}
	apply(&j)
	tx.repo.journals[id] = j
	return nil
}
