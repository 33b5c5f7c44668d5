package shared

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a structured domain event emitted after a transaction commits.
type Event struct {
	ID         uuid.UUID      `json:"id"`
	Name       string         `json:"name"`
	CompanyID  int64          `json:"company_id"`
	ActorID    int64          `json:"actor_id"`
	Entity     string         `json:"entity"`
	EntityID   string         `json:"entity_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

// NewEvent builds an Event with a fresh id.
func NewEvent(name, entity string, entityID, companyID, actorID int64, at time.Time, data map[string]any) Event {
	return Event{
		ID:         uuid.New(),
		Name:       name,
		CompanyID:  companyID,
		ActorID:    actorID,
		Entity:     entity,
		EntityID:   strconv.FormatInt(entityID, 10),
		OccurredAt: at.UTC(),
		Data:       data,
	}
}

// EventHandler consumes an event.
type EventHandler func(ctx context.Context, evt Event) error

// EventPublisher abstracts event fan-out for services.
type EventPublisher interface {
	Publish(ctx context.Context, events ...Event)
}

// EventBus dispatches events synchronously to subscribers. Handler failures are
// logged and never propagated to the publisher.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
	all      []EventHandler
	logger   *slog.Logger
}

// NewEventBus constructs an EventBus.
func NewEventBus(logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{handlers: make(map[string][]EventHandler), logger: logger}
}

// Subscribe registers h for events named name.
func (b *EventBus) Subscribe(name string, h EventHandler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// SubscribeAll registers h for every event.
func (b *EventBus) SubscribeAll(h EventHandler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish delivers events in order.
func (b *EventBus) Publish(ctx context.Context, events ...Event) {
	if b == nil {
		return
	}
	for _, evt := range events {
		b.mu.RLock()
		handlers := make([]EventHandler, 0, len(b.all)+len(b.handlers[evt.Name]))
		handlers = append(handlers, b.handlers[evt.Name]...)
		handlers = append(handlers, b.all...)
		b.mu.RUnlock()
		for _, h := range handlers {
			if err := h(ctx, evt); err != nil {
				b.logger.Warn("event handler failed",
					slog.String("event", evt.Name),
					slog.String("entity_id", evt.EntityID),
					slog.Any("error", err))
			}
		}
	}
}
