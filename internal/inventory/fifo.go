package inventory

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// allocate consumes qty from layers in slice order, decrementing QtyRemaining
// in place so later lines of the same movement see the running balance.
// layers must already be in FIFO order (received_at, id).
func allocate(layers []CostLayer, outLineID int64, qty decimal.Decimal) ([]CostAllocation, error) {
	remaining := qty
	var out []CostAllocation
	for i := range layers {
		if !remaining.IsPositive() {
			break
		}
		layer := &layers[i]
		if !layer.QtyRemaining.IsPositive() {
			continue
		}
		take := decimal.Min(layer.QtyRemaining, remaining)
		layer.QtyRemaining = layer.QtyRemaining.Sub(take)
		remaining = remaining.Sub(take)
		out = append(out, CostAllocation{
			OutMovementLineID: outLineID,
			CostLayerID:       layer.ID,
			Qty:               take,
			UnitCost:          layer.UnitCost,
			TotalCost:         shared.RoundMoney(take.Mul(layer.UnitCost)),
			LayerRemaining:    layer.QtyRemaining,
		})
	}
	if remaining.IsPositive() {
		return nil, fmt.Errorf("%w: short by %s", ErrInsufficientStock, remaining.StringFixed(2))
	}
	return out, nil
}

// available sums the remaining quantity of layers.
func available(layers []CostLayer) decimal.Decimal {
	total := decimal.Zero
	for _, layer := range layers {
		total = total.Add(layer.QtyRemaining)
	}
	return total
}

// valuation totals allocations for an outbound line.
func valuation(lineID, productID int64, qty decimal.Decimal, allocs []CostAllocation) LineValuation {
	total := decimal.Zero
	for _, a := range allocs {
		total = total.Add(a.TotalCost)
	}
	total = shared.RoundMoney(total)
	return LineValuation{
		MovementLineID: lineID,
		ProductID:      productID,
		Qty:            qty,
		UnitCost:       total.DivRound(qty, shared.UnitCostScale),
		TotalCost:      total,
		Allocations:    allocs,
	}
}
