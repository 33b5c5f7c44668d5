package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// LedgerMetrics counts ledger and costing activity from domain events.
type LedgerMetrics struct {
	journals      *prometheus.CounterVec
	layers        *prometheus.CounterVec
	cogsJournals  prometheus.Counter
	periodChanges *prometheus.CounterVec
}

// NewLedgerMetrics registers the collectors on registerer.
func NewLedgerMetrics(registerer prometheus.Registerer) *LedgerMetrics {
	journalsVec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_journals_total",
		Help: "Journal lifecycle transitions by event and source type.",
	}, []string{"event", "source_type"})
	layers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_inventory_cost_layer_events_total",
		Help: "FIFO cost layers created and consumed.",
	}, []string{"event"})
	cogs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_ledger_cogs_journals_total",
		Help: "COGS journals posted.",
	})
	periodChanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_period_transitions_total",
		Help: "Accounting period transitions by event.",
	}, []string{"event"})
	registerer.MustRegister(journalsVec, layers, cogs, periodChanges)
	return &LedgerMetrics{journals: journalsVec, layers: layers, cogsJournals: cogs, periodChanges: periodChanges}
}

// Handle is an event bus subscriber.
func (m *LedgerMetrics) Handle(ctx context.Context, evt shared.Event) error {
	if m == nil {
		return nil
	}
	switch evt.Name {
	case journals.EventJournalCreated, journals.EventJournalApproved, journals.EventJournalPosted, journals.EventJournalReversed:
		sourceType, _ := evt.Data["source_type"].(string)
		m.journals.WithLabelValues(evt.Name, sourceType).Inc()
		if evt.Name == journals.EventJournalPosted && sourceType == integration.SourceTypeCOGS {
			m.cogsJournals.Inc()
		}
	case inventory.EventCostLayerCreated, inventory.EventCostLayerConsumed:
		m.layers.WithLabelValues(evt.Name).Inc()
	case periods.EventPeriodCreated, periods.EventPeriodClosed, periods.EventPeriodReopened:
		m.periodChanges.WithLabelValues(evt.Name).Inc()
	}
	return nil
}
