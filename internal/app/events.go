package app

import (
	"log/slog"

	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// EventSinks are the subscribers available to the API process.
type EventSinks struct {
	Metrics *observability.LedgerMetrics
	Audit   shared.EventHandler
	Forward shared.EventHandler
}

// NewEventBus subscribes metrics plus either the queue forwarder or the inline
// audit writer, depending on EVENTS_ASYNC.
func NewEventBus(cfg *Config, logger *slog.Logger, sinks EventSinks) *shared.EventBus {
	bus := shared.NewEventBus(logger)
	if sinks.Metrics != nil {
		bus.SubscribeAll(sinks.Metrics.Handle)
	}
	async := cfg != nil && cfg.EventsAsync && sinks.Forward != nil
	if async {
		bus.SubscribeAll(sinks.Forward)
	} else if sinks.Audit != nil {
		bus.SubscribeAll(sinks.Audit)
	}
	if logger != nil {
		logger.Info("event bus ready", slog.Bool("async", async))
	}
	return bus
}
