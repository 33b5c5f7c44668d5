package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	RemainingQty(ctx context.Context, companyID, warehouseID, productID int64) (decimal.Decimal, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	periods.Gate

	// LockMovement reads the movement header and lines for update.
	LockMovement(ctx context.Context, movementID, companyID int64) (StoredMovement, error)
	MarkMovementPosted(ctx context.Context, movementID, companyID int64, typ MovementType, actorID int64, at time.Time) error
	InsertLayer(ctx context.Context, layer CostLayer) (CostLayer, error)
	StampInboundCost(ctx context.Context, movementID, lineID int64, unitCost decimal.Decimal) error
	// LockLayers returns layers with stock left, oldest first, locked for update.
	LockLayers(ctx context.Context, companyID, warehouseID, productID int64) ([]CostLayer, error)
	// ConsumeLayer decrements qty_remaining only when enough is left.
	ConsumeLayer(ctx context.Context, layerID int64, qty decimal.Decimal) error
	InsertAllocation(ctx context.Context, alloc CostAllocation) (CostAllocation, error)
	StampOutboundValuation(ctx context.Context, movementID, lineID int64, unitCost, totalCost decimal.Decimal) error
}

// Repository persists cost layers in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{Gate: periods.NewGate(tx), tx: tx})
	})
}

// RemainingQty sums open layers for a scope.
func (r *Repository) RemainingQty(ctx context.Context, companyID, warehouseID, productID int64) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(qty_remaining), 0) FROM inventory_cost_layers
WHERE company_id=$1 AND warehouse_id=$2 AND product_id=$3`, companyID, warehouseID, productID).Scan(&qty)
	return qty, err
}

type txRepo struct {
	periods.Gate
	tx pgx.Tx
}

func (r *txRepo) LockMovement(ctx context.Context, movementID, companyID int64) (StoredMovement, error) {
	m := StoredMovement{ID: movementID, CompanyID: companyID}
	var typ string
	err := r.tx.QueryRow(ctx, `SELECT warehouse_id, movement_type, movement_date, status FROM inventory_movements
WHERE id=$1 AND company_id=$2 FOR UPDATE`, movementID, companyID).Scan(&m.WarehouseID, &typ, &m.Date, &m.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return StoredMovement{}, ErrMovementNotDraft
	}
	if err != nil {
		return StoredMovement{}, err
	}
	m.Type = MovementType(typ)

	rows, err := r.tx.Query(ctx, `SELECT id, product_id, qty FROM inventory_movement_lines
WHERE movement_id=$1 ORDER BY id FOR UPDATE`, movementID)
	if err != nil {
		return StoredMovement{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line StoredLine
		if err := rows.Scan(&line.ID, &line.ProductID, &line.Qty); err != nil {
			return StoredMovement{}, err
		}
		m.Lines = append(m.Lines, line)
	}
	return m, rows.Err()
}

func (r *txRepo) MarkMovementPosted(ctx context.Context, movementID, companyID int64, typ MovementType, actorID int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE inventory_movements SET status='POSTED', posted_by=$4, posted_at=$5
WHERE id=$1 AND company_id=$2 AND movement_type=$3 AND status='DRAFT'`, movementID, companyID, typ, actorID, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrMovementNotDraft
	}
	return nil
}

func (r *txRepo) InsertLayer(ctx context.Context, layer CostLayer) (CostLayer, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_cost_layers
	(company_id, warehouse_id, product_id, source_movement_line_id, received_at, unit_cost, qty_received, qty_remaining)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		layer.CompanyID, layer.WarehouseID, layer.ProductID, layer.SourceMovementLineID, layer.ReceivedAt,
		layer.UnitCost, layer.QtyReceived, layer.QtyRemaining).Scan(&layer.ID)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_cost_layers_source_line") {
			return CostLayer{}, ErrLayerExists
		}
		return CostLayer{}, err
	}
	return layer, nil
}

func (r *txRepo) StampInboundCost(ctx context.Context, movementID, lineID int64, unitCost decimal.Decimal) error {
	return r.stamp(ctx, `UPDATE inventory_movement_lines SET unit_cost=$3 WHERE id=$2 AND movement_id=$1`, movementID, lineID, unitCost)
}

func (r *txRepo) StampOutboundValuation(ctx context.Context, movementID, lineID int64, unitCost, totalCost decimal.Decimal) error {
	return r.stamp(ctx, `UPDATE inventory_movement_lines SET valued_unit_cost=$3, valued_total_cost=$4 WHERE id=$2 AND movement_id=$1`, movementID, lineID, unitCost, totalCost)
}

func (r *txRepo) stamp(ctx context.Context, sql string, args ...any) error {
	cmd, err := r.tx.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrMovementLineNotFound
	}
	return nil
}

func (r *txRepo) LockLayers(ctx context.Context, companyID, warehouseID, productID int64) ([]CostLayer, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, company_id, warehouse_id, product_id, source_movement_line_id, received_at, unit_cost, qty_received, qty_remaining
FROM inventory_cost_layers
WHERE company_id=$1 AND warehouse_id=$2 AND product_id=$3 AND qty_remaining > 0
ORDER BY received_at ASC, id ASC
FOR UPDATE`, companyID, warehouseID, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var layers []CostLayer
	for rows.Next() {
		var l CostLayer
		if err := rows.Scan(&l.ID, &l.CompanyID, &l.WarehouseID, &l.ProductID, &l.SourceMovementLineID, &l.ReceivedAt, &l.UnitCost, &l.QtyReceived, &l.QtyRemaining); err != nil {
			return nil, err
		}
		layers = append(layers, l)
	}
	return layers, rows.Err()
}

func (r *txRepo) ConsumeLayer(ctx context.Context, layerID int64, qty decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE inventory_cost_layers SET qty_remaining = qty_remaining - $2
WHERE id=$1 AND qty_remaining >= $2`, layerID, qty)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInsufficientStock
	}
	return nil
}

func (r *txRepo) InsertAllocation(ctx context.Context, alloc CostAllocation) (CostAllocation, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_cost_allocations (out_movement_line_id, inventory_cost_layer_id, qty, unit_cost, total_cost)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, alloc.OutMovementLineID, alloc.CostLayerID, alloc.Qty, alloc.UnitCost, alloc.TotalCost).Scan(&alloc.ID)
	if err != nil {
		return CostAllocation{}, err
	}
	return alloc, nil
}
