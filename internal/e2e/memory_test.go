package e2e

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
)

func openPeriods(companyID int64, year, month int) map[int64]periods.Period {
	start, end := periods.MonthRange(year, month)
	return map[int64]periods.Period{
		1: {ID: 1, CompanyID: companyID, Year: year, Month: month, StartDate: start, EndDate: end, Status: periods.PeriodStatusOpen},
	}
}

type periodGate struct {
	periods map[int64]periods.Period
}

func (g periodGate) FindOpenPeriod(ctx context.Context, companyID int64, date time.Time) (periods.Period, error) {
	for _, p := range g.periods {
		if p.CompanyID == companyID && p.IsOpen() && p.Covers(date) {
			return p, nil
		}
	}
	return periods.Period{}, shared.ErrPeriodClosed
}

func (g periodGate) LockOpenPeriod(ctx context.Context, periodID int64) (periods.Period, error) {
	p, ok := g.periods[periodID]
	if !ok || !p.IsOpen() {
		return periods.Period{}, shared.ErrPeriodClosed
	}
	return p, nil
}

// ledgerStore keeps journals in memory. Numbers allocated by
// NextJournalNumber are never reused, even when the posting rolls back.
type ledgerStore struct {
	periodGate
	accounts map[int64]accounts.Account
	journals map[int64]journals.Journal
	counters map[string]int
	nextID   int64
	lineID   int64
}

func newLedgerStore(companyID int64) *ledgerStore {
	return &ledgerStore{
		periodGate: periodGate{periods: openPeriods(companyID, 2024, 2)},
		accounts:   make(map[int64]accounts.Account),
		journals:   make(map[int64]journals.Journal),
		counters:   make(map[string]int),
	}
}

func (s *ledgerStore) addAccount(companyID, id int64, code string, typ accounts.AccountType) {
	s.accounts[id] = accounts.Account{ID: id, CompanyID: companyID, Code: code, Name: code, Type: typ, IsPostable: true}
}

func (s *ledgerStore) Get(ctx context.Context, id int64) (journals.Journal, error) {
	j, ok := s.journals[id]
	if !ok {
		return journals.Journal{}, shared.ErrJournalNotFound
	}
	return j, nil
}

func (s *ledgerStore) NextJournalNumber(ctx context.Context, companyID int64, date time.Time) (string, error) {
	prefix := fmt.Sprintf("JV-%04d%02d-", date.Year(), int(date.Month()))
	key := fmt.Sprintf("%d:%s", companyID, prefix)
	s.counters[key]++
	return fmt.Sprintf("%s%04d", prefix, s.counters[key]), nil
}

func (s *ledgerStore) WithTx(ctx context.Context, fn func(context.Context, journals.TxRepository) error) error {
	saved := make(map[int64]journals.Journal, len(s.journals))
	for k, v := range s.journals {
		saved[k] = v
	}
	nextID := s.nextID
	if err := fn(ctx, s); err != nil {
		s.journals = saved
		s.nextID = nextID
		return err
	}
	return nil
}

func (s *ledgerStore) FindAccountByID(ctx context.Context, companyID, id int64) (accounts.Account, error) {
	a, ok := s.accounts[id]
	if !ok || a.CompanyID != companyID {
		return accounts.Account{}, fmt.Errorf("%w: id %d", shared.ErrMissingAccount, id)
	}
	return a, nil
}

func (s *ledgerStore) FindAccountByCode(ctx context.Context, companyID int64, code string) (accounts.Account, error) {
	for _, a := range s.accounts {
		if a.CompanyID == companyID && a.Code == code {
			return a, nil
		}
	}
	return accounts.Account{}, fmt.Errorf("%w: code %s", shared.ErrMissingAccount, code)
}

func (s *ledgerStore) JournalNumberExists(ctx context.Context, companyID int64, number string) (bool, error) {
	for _, j := range s.journals {
		if j.CompanyID == companyID && j.Number == number {
			return true, nil
		}
	}
	return false, nil
}

func (s *ledgerStore) SourceJournalExists(ctx context.Context, companyID int64, sourceType string, sourceID int64) (bool, error) {
	for _, j := range s.journals {
		if j.CompanyID == companyID && j.SourceType == sourceType && j.SourceID != nil && *j.SourceID == sourceID {
			return true, nil
		}
	}
	return false, nil
}

func (s *ledgerStore) InsertJournal(ctx context.Context, j journals.Journal) (journals.Journal, error) {
	if exists, _ := s.JournalNumberExists(ctx, j.CompanyID, j.Number); exists {
		return journals.Journal{}, shared.ErrDuplicateJournalNumber
	}
	s.nextID++
	j.ID = s.nextID
	s.journals[j.ID] = j
	return j, nil
}

func (s *ledgerStore) InsertJournalLines(ctx context.Context, journalID int64, lines []journals.JournalLine) ([]journals.JournalLine, error) {
	j, ok := s.journals[journalID]
	if !ok {
		return nil, shared.ErrJournalNotFound
	}
	out := make([]journals.JournalLine, 0, len(lines))
	for idx, line := range lines {
		s.lineID++
		line.ID = s.lineID
		line.JournalID = journalID
		line.LineNo = idx + 1
		out = append(out, line)
	}
	j.Lines = out
	s.journals[journalID] = j
	return out, nil
}

func (s *ledgerStore) GetJournalForUpdate(ctx context.Context, id int64) (journals.Journal, error) {
	return s.Get(ctx, id)
}

func (s *ledgerStore) MarkApproved(ctx context.Context, id, actor int64, at time.Time) error {
	return s.mark(id, journals.JournalStatusDraft, func(j *journals.Journal) {
		j.Status = journals.JournalStatusApproved
		j.ApprovedBy = &actor
		j.ApprovedAt = &at
	})
}

func (s *ledgerStore) MarkPosted(ctx context.Context, id, actor int64, at time.Time) error {
	return s.mark(id, journals.JournalStatusApproved, func(j *journals.Journal) {
		j.Status = journals.JournalStatusPosted
		j.PostedBy = &actor
		j.PostedAt = &at
	})
}

func (s *ledgerStore) MarkReversed(ctx context.Context, id, actor int64, at time.Time) error {
	return s.mark(id, journals.JournalStatusPosted, func(j *journals.Journal) {
		j.Status = journals.JournalStatusReversed
		j.ReversedBy = &actor
		j.ReversedAt = &at
	})
}

func (s *ledgerStore) mark(id int64, expected journals.JournalStatus, apply func(j *journals.Journal)) error {
	j, ok := s.journals[id]
	if !ok || j.Status != expected {
		return shared.ErrInvalidStatus
	}
	apply(&j)
	s.journals[id] = j
	return nil
}

type stockLine struct {
	productID   int64
	qty         decimal.Decimal
	valuedTotal *decimal.Decimal
}

type stockMovement struct {
	companyID   int64
	warehouseID int64
	typ         inventory.MovementType
	date        time.Time
	status      string
	invoiceID   int64
	lines       map[int64]stockLine
}

// stockStore keeps movement documents and cost layers in memory.
type stockStore struct {
	periodGate
	movements map[int64]stockMovement
	layers    []inventory.CostLayer
	nextLayer int64
	nextAlloc int64
}

func newStockStore(companyID int64) *stockStore {
	return &stockStore{
		periodGate: periodGate{periods: openPeriods(companyID, 2024, 2)},
		movements:  make(map[int64]stockMovement),
	}
}

// draft stores in as an unposted movement, optionally referencing a sales invoice.
func (s *stockStore) draft(in inventory.MovementInput, invoiceID int64) inventory.MovementInput {
	lines := make(map[int64]stockLine, len(in.Lines))
	for _, line := range in.Lines {
		lines[line.ID] = stockLine{productID: line.ProductID, qty: line.Qty}
	}
	s.movements[in.ID] = stockMovement{
		companyID:   in.CompanyID,
		warehouseID: in.WarehouseID,
		typ:         in.Type,
		date:        in.Date,
		status:      "DRAFT",
		invoiceID:   invoiceID,
		lines:       lines,
	}
	return in
}

func (s *stockStore) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	movements := make(map[int64]stockMovement, len(s.movements))
	for id, m := range s.movements {
		lines := make(map[int64]stockLine, len(m.lines))
		for k, v := range m.lines {
			lines[k] = v
		}
		m.lines = lines
		movements[id] = m
	}
	layers := append([]inventory.CostLayer(nil), s.layers...)
	if err := fn(ctx, s); err != nil {
		s.movements = movements
		s.layers = layers
		return err
	}
	return nil
}

func (s *stockStore) RemainingQty(ctx context.Context, companyID, warehouseID, productID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, l := range s.layers {
		if l.CompanyID == companyID && l.WarehouseID == warehouseID && l.ProductID == productID {
			total = total.Add(l.QtyRemaining)
		}
	}
	return total, nil
}

func (s *stockStore) LockMovement(ctx context.Context, movementID, companyID int64) (inventory.StoredMovement, error) {
	m, ok := s.movements[movementID]
	if !ok || m.companyID != companyID {
		return inventory.StoredMovement{}, inventory.ErrMovementNotDraft
	}
	stored := inventory.StoredMovement{
		ID:          movementID,
		CompanyID:   m.companyID,
		WarehouseID: m.warehouseID,
		Type:        m.typ,
		Date:        m.date,
		Status:      m.status,
	}
	for id, line := range m.lines {
		stored.Lines = append(stored.Lines, inventory.StoredLine{ID: id, ProductID: line.productID, Qty: line.qty})
	}
	sort.Slice(stored.Lines, func(i, j int) bool { return stored.Lines[i].ID < stored.Lines[j].ID })
	return stored, nil
}

func (s *stockStore) MarkMovementPosted(ctx context.Context, movementID, companyID int64, typ inventory.MovementType, actorID int64, at time.Time) error {
	m, ok := s.movements[movementID]
	if !ok || m.companyID != companyID || m.typ != typ || m.status != "DRAFT" {
		return inventory.ErrMovementNotDraft
	}
	m.status = "POSTED"
	s.movements[movementID] = m
	return nil
}

func (s *stockStore) InsertLayer(ctx context.Context, layer inventory.CostLayer) (inventory.CostLayer, error) {
	for _, l := range s.layers {
		if l.SourceMovementLineID == layer.SourceMovementLineID {
			return inventory.CostLayer{}, inventory.ErrLayerExists
		}
	}
	s.nextLayer++
	layer.ID = s.nextLayer
	s.layers = append(s.layers, layer)
	return layer, nil
}

func (s *stockStore) StampInboundCost(ctx context.Context, movementID, lineID int64, unitCost decimal.Decimal) error {
	if _, ok := s.movements[movementID].lines[lineID]; !ok {
		return inventory.ErrMovementLineNotFound
	}
	return nil
}

func (s *stockStore) StampOutboundValuation(ctx context.Context, movementID, lineID int64, unitCost, totalCost decimal.Decimal) error {
	m, ok := s.movements[movementID]
	if !ok {
		return inventory.ErrMovementLineNotFound
	}
	line, ok := m.lines[lineID]
	if !ok {
		return inventory.ErrMovementLineNotFound
	}
	line.valuedTotal = &totalCost
	m.lines[lineID] = line
	return nil
}

func (s *stockStore) LockLayers(ctx context.Context, companyID, warehouseID, productID int64) ([]inventory.CostLayer, error) {
	var out []inventory.CostLayer
	for _, l := range s.layers {
		if l.CompanyID == companyID && l.WarehouseID == warehouseID && l.ProductID == productID && l.QtyRemaining.IsPositive() {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ReceivedAt.Before(out[j].ReceivedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *stockStore) ConsumeLayer(ctx context.Context, layerID int64, qty decimal.Decimal) error {
	for i := range s.layers {
		l := &s.layers[i]
		if l.ID != layerID {
			continue
		}
		if l.QtyRemaining.LessThan(qty) {
			return inventory.ErrInsufficientStock
		}
		l.QtyRemaining = l.QtyRemaining.Sub(qty)
		return nil
	}
	return inventory.ErrInsufficientStock
}

func (s *stockStore) InsertAllocation(ctx context.Context, alloc inventory.CostAllocation) (inventory.CostAllocation, error) {
	s.nextAlloc++
	alloc.ID = s.nextAlloc
	return alloc, nil
}

// invoiceSource answers the COGS generator from the stock store's valued
// outbound lines, the way the SQL repository reads stamped movement lines.
type invoiceSource struct {
	stock    *stockStore
	invoices map[int64]integration.SalesInvoice
	products map[int64][]int64
}

func (s *invoiceSource) GetSalesInvoice(ctx context.Context, companyID, invoiceID int64) (integration.SalesInvoice, error) {
	inv, ok := s.invoices[invoiceID]
	if !ok || inv.CompanyID != companyID {
		return integration.SalesInvoice{}, integration.ErrInvoiceNotFound
	}
	return inv, nil
}

func (s *invoiceSource) StockProducts(ctx context.Context, invoiceID int64) ([]int64, error) {
	return s.products[invoiceID], nil
}

func (s *invoiceSource) OutboundCosts(ctx context.Context, companyID, invoiceID int64) (integration.OutboundCosts, bool, error) {
	for id, m := range s.stock.movements {
		if m.companyID != companyID || m.invoiceID != invoiceID || m.typ != inventory.MovementTypeOut || m.status != "POSTED" {
			continue
		}
		costs := integration.OutboundCosts{MovementID: id, ByProduct: make(map[int64]decimal.Decimal)}
		for _, line := range m.lines {
			if line.valuedTotal == nil {
				continue
			}
			costs.ByProduct[line.productID] = costs.ByProduct[line.productID].Add(*line.valuedTotal)
		}
		return costs, true, nil
	}
	return integration.OutboundCosts{}, false, nil
}
