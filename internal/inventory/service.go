package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Service runs the FIFO cost layer engine.
type Service struct {
	repo   RepositoryPort
	events internalShared.EventPublisher
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, events internalShared.EventPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, events: events, logger: logger, now: time.Now}
}

// WithNow overrides the clock.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// RemainingQty returns the unconsumed quantity for a warehouse and product.
func (s *Service) RemainingQty(ctx context.Context, companyID, warehouseID, productID int64) (decimal.Decimal, error) {
	if companyID == 0 || warehouseID == 0 || productID == 0 {
		return decimal.Zero, errors.New("inventory: company, warehouse and product required")
	}
	return s.repo.RemainingQty(ctx, companyID, warehouseID, productID)
}

// PostMovement posts a draft movement. The request must match the stored
// draft line for line. IN lines create one layer each; OUT lines consume
// layers oldest first. The whole movement commits or nothing does.
func (s *Service) PostMovement(ctx context.Context, input MovementInput) (MovementResult, error) {
	if err := input.Validate(); err != nil {
		return MovementResult{}, err
	}
	var (
		result  MovementResult
		pending []internalShared.Event
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stored, err := tx.LockMovement(ctx, input.ID, input.CompanyID)
		if err != nil {
			return err
		}
		if err := stored.check(input); err != nil {
			return err
		}
		period, err := tx.FindOpenPeriod(ctx, input.CompanyID, dateOnly(input.Date))
		if err != nil {
			return err
		}
		switch input.Type {
		case MovementTypeIn:
			result, pending, err = s.receive(ctx, tx, input, period)
		case MovementTypeOut:
			result, pending, err = s.issue(ctx, tx, input, period)
		default:
			err = fmt.Errorf("inventory: unsupported movement type %q", input.Type)
		}
		return err
	})
	if err != nil {
		return MovementResult{}, err
	}
	s.logger.Info("inventory movement posted",
		slog.Int64("movement_id", input.ID),
		slog.String("type", string(input.Type)),
		slog.Int("lines", len(input.Lines)))
	if s.events != nil && len(pending) > 0 {
		s.events.Publish(ctx, pending...)
	}
	return result, nil
}

func (s *Service) receive(ctx context.Context, tx TxRepository, input MovementInput, period periods.Period) (MovementResult, []internalShared.Event, error) {
	now := s.now().UTC()
	received := dateOnly(input.Date)
	if _, err := tx.LockOpenPeriod(ctx, period.ID); err != nil {
		return MovementResult{}, nil, err
	}
	if err := tx.MarkMovementPosted(ctx, input.ID, input.CompanyID, MovementTypeIn, input.ActorID, now); err != nil {
		return MovementResult{}, nil, err
	}
	result := MovementResult{MovementID: input.ID, Type: MovementTypeIn}
	var pending []internalShared.Event
	for _, line := range input.Lines {
		qty := shared.RoundQty(line.Qty)
		unitCost := shared.RoundUnitCost(line.UnitCost)
		layer, err := tx.InsertLayer(ctx, CostLayer{
			CompanyID:            input.CompanyID,
			WarehouseID:          input.WarehouseID,
			ProductID:            line.ProductID,
			SourceMovementLineID: line.ID,
			ReceivedAt:           received,
			UnitCost:             unitCost,
			QtyReceived:          qty,
			QtyRemaining:         qty,
		})
		if err != nil {
			return MovementResult{}, nil, fmt.Errorf("movement line %d: %w", line.ID, err)
		}
		if err := tx.StampInboundCost(ctx, input.ID, line.ID, unitCost); err != nil {
			return MovementResult{}, nil, fmt.Errorf("movement line %d: %w", line.ID, err)
		}
		result.Layers = append(result.Layers, layer)
		pending = append(pending, layerCreatedEvent(layer, input.ID, input.ActorID, now))
	}
	return result, pending, nil
}

func (s *Service) issue(ctx context.Context, tx TxRepository, input MovementInput, period periods.Period) (MovementResult, []internalShared.Event, error) {
	requested := make(map[int64]decimal.Decimal)
	for _, line := range input.Lines {
		requested[line.ProductID] = requested[line.ProductID].Add(shared.RoundQty(line.Qty))
	}
	products := make([]int64, 0, len(requested))
	for productID := range requested {
		products = append(products, productID)
	}
	// fixed lock order across concurrent movements
	sort.Slice(products, func(i, j int) bool { return products[i] < products[j] })

	candidates := make(map[int64][]CostLayer, len(products))
	for _, productID := range products {
		layers, err := tx.LockLayers(ctx, input.CompanyID, input.WarehouseID, productID)
		if err != nil {
			return MovementResult{}, nil, err
		}
		candidates[productID] = layers
	}
	for _, productID := range products {
		if have := available(candidates[productID]); have.LessThan(requested[productID]) {
			return MovementResult{}, nil, fmt.Errorf("%w: product %d requested %s available %s",
				ErrInsufficientStock, productID, requested[productID].StringFixed(2), have.StringFixed(2))
		}
	}

	result := MovementResult{MovementID: input.ID, Type: MovementTypeOut}
	for _, line := range input.Lines {
		qty := shared.RoundQty(line.Qty)
		allocs, err := allocate(candidates[line.ProductID], line.ID, qty)
		if err != nil {
			return MovementResult{}, nil, fmt.Errorf("product %d: %w", line.ProductID, err)
		}
		result.Valuations = append(result.Valuations, valuation(line.ID, line.ProductID, qty, allocs))
	}

	now := s.now().UTC()
	if _, err := tx.LockOpenPeriod(ctx, period.ID); err != nil {
		return MovementResult{}, nil, err
	}
	if err := tx.MarkMovementPosted(ctx, input.ID, input.CompanyID, MovementTypeOut, input.ActorID, now); err != nil {
		return MovementResult{}, nil, err
	}

	layerByID := make(map[int64]CostLayer)
	for _, layers := range candidates {
		for _, layer := range layers {
			layerByID[layer.ID] = layer
		}
	}
	// allocations carry the per-slice balance; layerByID only supplies scope
	var pending []internalShared.Event
	for vi := range result.Valuations {
		v := &result.Valuations[vi]
		for ai := range v.Allocations {
			alloc := v.Allocations[ai]
			if err := tx.ConsumeLayer(ctx, alloc.CostLayerID, alloc.Qty); err != nil {
				return MovementResult{}, nil, fmt.Errorf("layer %d: %w", alloc.CostLayerID, err)
			}
			saved, err := tx.InsertAllocation(ctx, alloc)
			if err != nil {
				return MovementResult{}, nil, err
			}
			v.Allocations[ai] = saved
			pending = append(pending, layerConsumedEvent(saved, layerByID[saved.CostLayerID], input.ID, input.ActorID, now))
		}
		if err := tx.StampOutboundValuation(ctx, input.ID, v.MovementLineID, v.UnitCost, v.TotalCost); err != nil {
			return MovementResult{}, nil, fmt.Errorf("movement line %d: %w", v.MovementLineID, err)
		}
	}
	return result, pending, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
