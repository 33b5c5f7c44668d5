package inventory

import (
	"time"

	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Event names published by the cost layer engine.
const (
	EventCostLayerCreated  = "cost_layer.created"
	EventCostLayerConsumed = "cost_layer.consumed"
)

const eventEntity = "inventory_cost_layer"

func layerCreatedEvent(layer CostLayer, movementID, actorID int64, at time.Time) internalShared.Event {
	return internalShared.NewEvent(EventCostLayerCreated, eventEntity, layer.ID, layer.CompanyID, actorID, at, map[string]any{
		"movement_id":             movementID,
		"source_movement_line_id": layer.SourceMovementLineID,
		"warehouse_id":            layer.WarehouseID,
		"product_id":              layer.ProductID,
		"qty":                     layer.QtyReceived.StringFixed(2),
		"unit_cost":               layer.UnitCost.StringFixed(6),
	})
}

func layerConsumedEvent(alloc CostAllocation, layer CostLayer, movementID, actorID int64, at time.Time) internalShared.Event {
	return internalShared.NewEvent(EventCostLayerConsumed, eventEntity, alloc.CostLayerID, layer.CompanyID, actorID, at, map[string]any{
		"movement_id":          movementID,
		"out_movement_line_id": alloc.OutMovementLineID,
		"allocation_id":        alloc.ID,
		"warehouse_id":         layer.WarehouseID,
		"product_id":           layer.ProductID,
		"qty":                  alloc.Qty.StringFixed(2),
		"unit_cost":            alloc.UnitCost.StringFixed(6),
		"total_cost":           alloc.TotalCost.StringFixed(2),
		"qty_remaining":        alloc.LayerRemaining.StringFixed(2),
	})
}
