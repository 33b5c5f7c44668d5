package inventory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type memLine struct {
	productID   int64
	qty         decimal.Decimal
	unitCost    decimal.Decimal
	valuedUnit  *decimal.Decimal
	valuedTotal *decimal.Decimal
}

type memMovement struct {
	companyID   int64
	warehouseID int64
	typ         MovementType
	date        time.Time
	status      string
	postedBy    int64
	lines       map[int64]memLine
}

type memoryRepo struct {
	periods     map[int64]periods.Period
	movements   map[int64]memMovement
	layers      []CostLayer
	allocations []CostAllocation
	nextLayer   int64
	nextAlloc   int64
	beforeLock  func(r *memoryRepo)
	gateDates   []time.Time
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	r := &memoryRepo{
		periods:   make(map[int64]periods.Period),
		movements: make(map[int64]memMovement),
	}
	start, end := periods.MonthRange(2024, 1)
	r.periods[1] = periods.Period{ID: 1, CompanyID: 1, Year: 2024, Month: 1, StartDate: start, EndDate: end, Status: periods.PeriodStatusOpen}
	return r
}

// draft stores in as an unposted movement document.
func (r *memoryRepo) draft(in MovementInput) MovementInput {
	lines := make(map[int64]memLine, len(in.Lines))
	for _, line := range in.Lines {
		lines[line.ID] = memLine{productID: line.ProductID, qty: line.Qty}
	}
	r.movements[in.ID] = memMovement{
		companyID:   in.CompanyID,
		warehouseID: in.WarehouseID,
		typ:         in.Type,
		date:        dateOnly(in.Date),
		status:      movementStatusDraft,
		lines:       lines,
	}
	return in
}

func (r *memoryRepo) closePeriod(id int64) {
	p := r.periods[id]
	p.Status = periods.PeriodStatusClosed
	r.periods[id] = p
}

func (r *memoryRepo) layer(id int64) CostLayer {
	for _, l := range r.layers {
		if l.ID == id {
			return l
		}
	}
	return CostLayer{}
}

func (r *memoryRepo) snapshot() func() {
	movements := make(map[int64]memMovement, len(r.movements))
	for id, m := range r.movements {
		lines := make(map[int64]memLine, len(m.lines))
		for k, v := range m.lines {
			lines[k] = v
		}
		m.lines = lines
		movements[id] = m
	}
	layers := append([]CostLayer(nil), r.layers...)
	allocations := append([]CostAllocation(nil), r.allocations...)
	nextLayer, nextAlloc := r.nextLayer, r.nextAlloc
	return func() {
		r.movements = movements
		r.layers = layers
		r.allocations = allocations
		r.nextLayer, r.nextAlloc = nextLayer, nextAlloc
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	restore := r.snapshot()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		restore()
		return err
	}
	return nil
}

func (r *memoryRepo) RemainingQty(ctx context.Context, companyID, warehouseID, productID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, l := range r.layers {
		if l.CompanyID == companyID && l.WarehouseID == warehouseID && l.ProductID == productID {
			total = total.Add(l.QtyRemaining)
		}
	}
	return total, nil
}

func (tx *memoryTx) FindOpenPeriod(ctx context.Context, companyID int64, date time.Time) (periods.Period, error) {
	tx.repo.gateDates = append(tx.repo.gateDates, date)
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

func (tx *memoryTx) LockMovement(ctx context.Context, movementID, companyID int64) (StoredMovement, error) {
	m, ok := tx.repo.movements[movementID]
	if !ok || m.companyID != companyID {
		return StoredMovement{}, ErrMovementNotDraft
	}
	stored := StoredMovement{
		ID:          movementID,
		CompanyID:   m.companyID,
		WarehouseID: m.warehouseID,
		Type:        m.typ,
		Date:        m.date,
		Status:      m.status,
	}
	for id, line := range m.lines {
		stored.Lines = append(stored.Lines, StoredLine{ID: id, ProductID: line.productID, Qty: line.qty})
	}
	sort.Slice(stored.Lines, func(i, j int) bool { return stored.Lines[i].ID < stored.Lines[j].ID })
	return stored, nil
}

func (tx *memoryTx) MarkMovementPosted(ctx context.Context, movementID, companyID int64, typ MovementType, actorID int64, at time.Time) error {
	m, ok := tx.repo.movements[movementID]
	if !ok || m.companyID != companyID || m.typ != typ || m.status != movementStatusDraft {
		return ErrMovementNotDraft
	}
	m.status = "POSTED"
	m.postedBy = actorID
	tx.repo.movements[movementID] = m
	return nil
}

func (tx *memoryTx) InsertLayer(ctx context.Context, layer CostLayer) (CostLayer, error) {
	for _, l := range tx.repo.layers {
		if l.SourceMovementLineID == layer.SourceMovementLineID {
			return CostLayer{}, ErrLayerExists
		}
	}
	tx.repo.nextLayer++
	layer.ID = tx.repo.nextLayer
	tx.repo.layers = append(tx.repo.layers, layer)
	return layer, nil
}

func (tx *memoryTx) line(movementID, lineID int64, fn func(*memLine)) error {
	m, ok := tx.repo.movements[movementID]
	if !ok {
		return ErrMovementLineNotFound
	}
	l, ok := m.lines[lineID]
	if !ok {
		return ErrMovementLineNotFound
	}
	fn(&l)
	m.lines[lineID] = l
	return nil
}

func (tx *memoryTx) StampInboundCost(ctx context.Context, movementID, lineID int64, unitCost decimal.Decimal) error {
	return tx.line(movementID, lineID, func(l *memLine) { l.unitCost = unitCost })
}

func (tx *memoryTx) StampOutboundValuation(ctx context.Context, movementID, lineID int64, unitCost, totalCost decimal.Decimal) error {
	return tx.line(movementID, lineID, func(l *memLine) {
		l.valuedUnit = &unitCost
		l.valuedTotal = &totalCost
	})
}

func (tx *memoryTx) LockLayers(ctx context.Context, companyID, warehouseID, productID int64) ([]CostLayer, error) {
	var out []CostLayer
	for _, l := range tx.repo.layers {
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

func (tx *memoryTx) ConsumeLayer(ctx context.Context, layerID int64, qty decimal.Decimal) error {
	for i := range tx.repo.layers {
		l := &tx.repo.layers[i]
		if l.ID != layerID {
			continue
		}
		if l.QtyRemaining.LessThan(qty) {
			return ErrInsufficientStock
		}
		l.QtyRemaining = l.QtyRemaining.Sub(qty)
		return nil
	}
	return ErrInsufficientStock
}

func (tx *memoryTx) InsertAllocation(ctx context.Context, alloc CostAllocation) (CostAllocation, error) {
	tx.repo.nextAlloc++
	alloc.ID = tx.repo.nextAlloc
	tx.repo.allocations = append(tx.repo.allocations, alloc)
	return alloc, nil
}
