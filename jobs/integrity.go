package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Violation kinds reported by the integrity check.
const (
	ViolationUnbalancedJournal = "unbalanced_journal"
	ViolationLayerDrift        = "layer_drift"
)

// Violation is one broken ledger invariant.
type Violation struct {
	Kind      string
	CompanyID int64
	EntityID  int64
	Detail    string
}

// IntegrityReport summarises an integrity run.
type IntegrityReport struct {
	CompanyID  int64
	Violations []Violation
}

// IntegrityStore runs the invariant queries. Zero companyID covers every company.
type IntegrityStore interface {
	UnbalancedJournals(ctx context.Context, companyID int64) ([]Violation, error)
	LayerDrift(ctx context.Context, companyID int64) ([]Violation, error)
}

// PGIntegrityStore implements IntegrityStore on PostgreSQL.
type PGIntegrityStore struct {
	q db.Querier
}

// NewPGIntegrityStore constructs the store.
func NewPGIntegrityStore(q db.Querier) *PGIntegrityStore {
	return &PGIntegrityStore{q: q}
}

// UnbalancedJournals finds posted or reversed journals whose lines do not balance.
func (s *PGIntegrityStore) UnbalancedJournals(ctx context.Context, companyID int64) ([]Violation, error) {
	rows, err := s.q.Query(ctx, `SELECT j.id, j.company_id, COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0), COUNT(l.id)
FROM journals j
LEFT JOIN journal_lines l ON l.journal_id = j.id
WHERE j.status IN ('POSTED', 'REVERSED') AND ($1::bigint = 0 OR j.company_id = $1)
GROUP BY j.id, j.company_id
HAVING COALESCE(SUM(l.debit), 0) <> COALESCE(SUM(l.credit), 0) OR COUNT(l.id) < 2
ORDER BY j.id`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Violation
	for rows.Next() {
		var (
			v             Violation
			debit, credit decimal.Decimal
			lines         int64
		)
		if err := rows.Scan(&v.EntityID, &v.CompanyID, &debit, &credit, &lines); err != nil {
			return nil, err
		}
		v.Kind = ViolationUnbalancedJournal
		v.Detail = fmt.Sprintf("debit %s credit %s over %d lines", debit.StringFixed(2), credit.StringFixed(2), lines)
		out = append(out, v)
	}
	return out, rows.Err()
}

// LayerDrift finds layers where received minus allocated differs from remaining.
func (s *PGIntegrityStore) LayerDrift(ctx context.Context, companyID int64) ([]Violation, error) {
	rows, err := s.q.Query(ctx, `SELECT c.id, c.company_id, c.qty_received, COALESCE(SUM(a.qty), 0), c.qty_remaining
FROM inventory_cost_layers c
LEFT JOIN inventory_cost_allocations a ON a.inventory_cost_layer_id = c.id
WHERE ($1::bigint = 0 OR c.company_id = $1)
GROUP BY c.id, c.company_id, c.qty_received, c.qty_remaining
HAVING c.qty_received - COALESCE(SUM(a.qty), 0) <> c.qty_remaining OR c.qty_remaining < 0
ORDER BY c.id`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Violation
	for rows.Next() {
		var (
			v                              Violation
			received, allocated, remaining decimal.Decimal
		)
		if err := rows.Scan(&v.EntityID, &v.CompanyID, &received, &allocated, &remaining); err != nil {
			return nil, err
		}
		v.Kind = ViolationLayerDrift
		v.Detail = fmt.Sprintf("received %s allocated %s remaining %s",
			received.StringFixed(2), allocated.StringFixed(2), remaining.StringFixed(2))
		out = append(out, v)
	}
	return out, rows.Err()
}

// IntegrityJob checks posted journals balance and cost layer arithmetic.
type IntegrityJob struct {
	store   IntegrityStore
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewIntegrityJob constructs the job.
func NewIntegrityJob(store IntegrityStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntegrityJob{store: store, logger: logger, metrics: metrics}
}

// Handle executes TaskLedgerIntegrity.
func (j *IntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.store == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload IntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode integrity payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	_, err := j.Run(ctx, payload.CompanyID)
	return err
}

// Run performs one check. Violations are logged and counted, never returned as errors.
func (j *IntegrityJob) Run(ctx context.Context, companyID int64) (report IntegrityReport, err error) {
	run := j.metrics.Start(TaskLedgerIntegrity)
	defer func() {
		err = run.Finish(err)
	}()

	report.CompanyID = companyID
	unbalanced, err := j.store.UnbalancedJournals(ctx, companyID)
	if err != nil {
		j.logger.Error("integrity: journal balance query failed", slog.Any("error", err))
		return report, err
	}
	drift, err := j.store.LayerDrift(ctx, companyID)
	if err != nil {
		j.logger.Error("integrity: cost layer query failed", slog.Any("error", err))
		return report, err
	}
	report.Violations = append(append(report.Violations, unbalanced...), drift...)

	counts := map[string]map[int64]int{
		ViolationUnbalancedJournal: {},
		ViolationLayerDrift:        {},
	}
	for _, v := range report.Violations {
		j.logger.Warn("ledger integrity violation",
			slog.String("kind", v.Kind),
			slog.Int64("company_id", v.CompanyID),
			slog.Int64("entity_id", v.EntityID),
			slog.String("detail", v.Detail))
		if counts[v.Kind] == nil {
			counts[v.Kind] = make(map[int64]int)
		}
		counts[v.Kind][v.CompanyID]++
	}
	for kind, byCompany := range counts {
		j.metrics.RecordViolations(kind, byCompany)
	}
	j.logger.Info("ledger integrity check finished",
		slog.Int64("company_id", companyID),
		slog.Int("violations", len(report.Violations)))
	return report, nil
}
