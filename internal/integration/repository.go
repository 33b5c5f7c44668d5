package integration

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// SalesInvoice is the part of a sales invoice the ledger integration reads.
type SalesInvoice struct {
	ID        int64
	CompanyID int64
	Number    string
	Date      time.Time
	Status    string
	Subtotal  decimal.Decimal
	TaxAmount decimal.Decimal
	Total     decimal.Decimal
}

// IsPosted reports whether the invoice has been posted by its owning module.
func (i SalesInvoice) IsPosted() bool {
	return i.Status == "POSTED"
}

// OutboundCosts is the valued cost of the posted OUT movement referencing an invoice.
type OutboundCosts struct {
	MovementID int64
	ByProduct  map[int64]decimal.Decimal
}

// SourceRepository reads commercial documents owned by other modules.
type SourceRepository interface {
	GetSalesInvoice(ctx context.Context, companyID, invoiceID int64) (SalesInvoice, error)
	// StockProducts lists distinct stock item products on the invoice.
	StockProducts(ctx context.Context, invoiceID int64) ([]int64, error)
	// OutboundCosts returns ok=false when no posted OUT movement references the invoice.
	OutboundCosts(ctx context.Context, companyID, invoiceID int64) (OutboundCosts, bool, error)
}

// Repository implements SourceRepository on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetSalesInvoice loads an invoice header.
func (r *Repository) GetSalesInvoice(ctx context.Context, companyID, invoiceID int64) (SalesInvoice, error) {
	var inv SalesInvoice
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, invoice_number, invoice_date, status, subtotal, tax_amount, total
FROM sales_invoices WHERE id=$1 AND company_id=$2`, invoiceID, companyID).
		Scan(&inv.ID, &inv.CompanyID, &inv.Number, &inv.Date, &inv.Status, &inv.Subtotal, &inv.TaxAmount, &inv.Total)
	if errors.Is(err, pgx.ErrNoRows) {
		return SalesInvoice{}, ErrInvoiceNotFound
	}
	return inv, err
}

// StockProducts lists distinct stock products sold on the invoice.
func (r *Repository) StockProducts(ctx context.Context, invoiceID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT l.product_id
FROM sales_invoice_lines l
JOIN products p ON p.id = l.product_id
WHERE l.invoice_id=$1 AND p.product_type='STOCK'
ORDER BY l.product_id`, invoiceID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// OutboundCosts sums valued costs per product for the invoice's posted OUT movement.
func (r *Repository) OutboundCosts(ctx context.Context, companyID, invoiceID int64) (OutboundCosts, bool, error) {
	var movementID int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM inventory_movements
WHERE company_id=$1 AND ref_type=$2 AND ref_id=$3 AND movement_type='OUT' AND status='POSTED'
ORDER BY id LIMIT 1`, companyID, SourceTypeSalesInvoice, invoiceID).Scan(&movementID)
	if errors.Is(err, pgx.ErrNoRows) {
		return OutboundCosts{}, false, nil
	}
	if err != nil {
		return OutboundCosts{}, false, err
	}
	rows, err := r.pool.Query(ctx, `SELECT product_id, SUM(valued_total_cost)
FROM inventory_movement_lines
WHERE movement_id=$1 AND valued_total_cost IS NOT NULL
GROUP BY product_id`, movementID)
	if err != nil {
		return OutboundCosts{}, false, err
	}
	defer rows.Close()
	costs := OutboundCosts{MovementID: movementID, ByProduct: make(map[int64]decimal.Decimal)}
	for rows.Next() {
		var (
			productID int64
			total     decimal.Decimal
		)
		if err := rows.Scan(&productID, &total); err != nil {
			return OutboundCosts{}, false, err
		}
		costs.ByProduct[productID] = total
	}
	return costs, true, rows.Err()
}
