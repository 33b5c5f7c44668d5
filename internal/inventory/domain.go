package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// MovementType enumerates supported inventory movements.
type MovementType string

const (
	// MovementTypeIn represents an inbound movement that creates cost layers.
	MovementTypeIn MovementType = "IN"
	// MovementTypeOut represents an outbound movement that consumes cost layers.
	MovementTypeOut MovementType = "OUT"
)

var validate = validator.New()

// MovementLineInput is one product line of a movement document.
type MovementLineInput struct {
	ID        int64           `json:"id" validate:"required,gt=0"`
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Qty       decimal.Decimal `json:"qty"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

// MovementInput requests posting of a draft movement document.
type MovementInput struct {
	ID          int64               `json:"id" validate:"required,gt=0"`
	CompanyID   int64               `json:"company_id" validate:"required,gt=0"`
	WarehouseID int64               `json:"warehouse_id" validate:"required,gt=0"`
	Type        MovementType        `json:"movement_type" validate:"required,oneof=IN OUT"`
	Date        time.Time           `json:"movement_date" validate:"required"`
	ActorID     int64               `json:"-" validate:"required,gt=0"`
	Lines       []MovementLineInput `json:"lines" validate:"required,min=1,dive"`
}

// Validate checks the movement at the boundary.
func (in MovementInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return err
	}
	seen := make(map[int64]struct{}, len(in.Lines))
	for idx, line := range in.Lines {
		if _, dup := seen[line.ID]; dup {
			return fmt.Errorf("inventory: line %d repeats movement line %d", idx, line.ID)
		}
		seen[line.ID] = struct{}{}
		if !line.Qty.IsPositive() {
			return fmt.Errorf("%w: line %d", ErrInvalidQuantity, idx)
		}
		if !line.Qty.Equal(line.Qty.Round(2)) {
			return fmt.Errorf("%w: line %d has more than two decimals", ErrInvalidQuantity, idx)
		}
		if in.Type == MovementTypeIn && line.UnitCost.IsNegative() {
			return fmt.Errorf("%w: line %d", ErrInvalidUnitCost, idx)
		}
	}
	return nil
}

const movementStatusDraft = "DRAFT"

// StoredMovement is the persisted movement document, read under lock before posting.
type StoredMovement struct {
	ID          int64
	CompanyID   int64
	WarehouseID int64
	Type        MovementType
	Date        time.Time
	Status      string
	Lines       []StoredLine
}

// StoredLine is one persisted movement line.
type StoredLine struct {
	ID        int64
	ProductID int64
	Qty       decimal.Decimal
}

// check rejects a posting request that disagrees with the stored draft. Every
// stored line must be posted with its own product and quantity.
func (m StoredMovement) check(in MovementInput) error {
	if m.Status != movementStatusDraft || m.Type != in.Type {
		return ErrMovementNotDraft
	}
	if m.WarehouseID != in.WarehouseID {
		return fmt.Errorf("%w: warehouse %d, stored %d", ErrMovementMismatch, in.WarehouseID, m.WarehouseID)
	}
	if !dateOnly(m.Date).Equal(dateOnly(in.Date)) {
		return fmt.Errorf("%w: date %s, stored %s", ErrMovementMismatch, in.Date.Format(time.DateOnly), m.Date.Format(time.DateOnly))
	}
	stored := make(map[int64]StoredLine, len(m.Lines))
	for _, line := range m.Lines {
		stored[line.ID] = line
	}
	for _, line := range in.Lines {
		s, ok := stored[line.ID]
		if !ok {
			return fmt.Errorf("%w: line %d", ErrMovementLineNotFound, line.ID)
		}
		if s.ProductID != line.ProductID {
			return fmt.Errorf("%w: line %d product %d, stored %d", ErrMovementMismatch, line.ID, line.ProductID, s.ProductID)
		}
		if !s.Qty.Equal(line.Qty) {
			return fmt.Errorf("%w: line %d qty %s, stored %s", ErrMovementMismatch, line.ID, line.Qty.StringFixed(2), s.Qty.StringFixed(2))
		}
	}
	if len(in.Lines) != len(m.Lines) {
		return fmt.Errorf("%w: %d of %d lines posted", ErrMovementMismatch, len(in.Lines), len(m.Lines))
	}
	return nil
}

// CostLayer is the remaining quantity of one inbound receipt at its own unit cost.
type CostLayer struct {
	ID                   int64           `json:"id"`
	CompanyID            int64           `json:"company_id"`
	WarehouseID          int64           `json:"warehouse_id"`
	ProductID            int64           `json:"product_id"`
	SourceMovementLineID int64           `json:"source_movement_line_id"`
	ReceivedAt           time.Time       `json:"received_at"`
	UnitCost             decimal.Decimal `json:"unit_cost"`
	QtyReceived          decimal.Decimal `json:"qty_received"`
	QtyRemaining         decimal.Decimal `json:"qty_remaining"`
}

// CostAllocation records a slice of a layer consumed by an outbound line.
type CostAllocation struct {
	ID                int64           `json:"id"`
	OutMovementLineID int64           `json:"out_movement_line_id"`
	CostLayerID       int64           `json:"cost_layer_id"`
	Qty               decimal.Decimal `json:"qty"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	TotalCost         decimal.Decimal `json:"total_cost"`
	// LayerRemaining is the layer balance right after this slice.
	LayerRemaining decimal.Decimal `json:"layer_qty_remaining"`
}

// LineValuation is the cost stamped onto an outbound movement line.
type LineValuation struct {
	MovementLineID int64            `json:"movement_line_id"`
	ProductID      int64            `json:"product_id"`
	Qty            decimal.Decimal  `json:"qty"`
	UnitCost       decimal.Decimal  `json:"valued_unit_cost"`
	TotalCost      decimal.Decimal  `json:"valued_total_cost"`
	Allocations    []CostAllocation `json:"allocations"`
}

// MovementResult summarises a posted movement.
type MovementResult struct {
	MovementID int64           `json:"movement_id"`
	Type       MovementType    `json:"movement_type"`
	Layers     []CostLayer     `json:"layers,omitempty"`
	Valuations []LineValuation `json:"valuations,omitempty"`
}

var (
	// ErrInsufficientStock indicates remaining layers cannot cover an outbound quantity.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrLayerExists indicates a layer was already created for the inbound line.
	ErrLayerExists = errors.New("inventory: cost layer already exists for movement line")
	// ErrMovementNotDraft indicates the movement is missing, already posted, or of another type.
	ErrMovementNotDraft = errors.New("inventory: movement is not a postable draft")
	// ErrMovementMismatch indicates the request disagrees with the stored movement.
	ErrMovementMismatch = errors.New("inventory: movement does not match stored draft")
	// ErrMovementLineNotFound indicates the line does not belong to the movement.
	ErrMovementLineNotFound = errors.New("inventory: movement line not found")
	// ErrInvalidQuantity indicates invalid qty.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrInvalidUnitCost indicates invalid cost value.
	ErrInvalidUnitCost = errors.New("inventory: unit cost must be >= 0")
)
