package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerEvent carries a committed domain event to the worker.
	TaskLedgerEvent = "ledger:event"
	// TaskLedgerIntegrity runs the ledger and cost layer integrity check.
	TaskLedgerIntegrity = "ledger:integrity"
)

// IntegrityPayload scopes an integrity run. Zero CompanyID checks every company.
type IntegrityPayload struct {
	CompanyID int64 `json:"company_id,omitempty"`
}

// NewLedgerEventTask serialises evt into a task.
func NewLedgerEventTask(evt shared.Event) (*asynq.Task, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerEvent, data), nil
}

// NewIntegrityTask constructs the integrity task.
func NewIntegrityTask(payload IntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data), nil
}

// HandleLedgerEvent decodes TaskLedgerEvent tasks and hands the event to sink.
func HandleLedgerEvent(sink shared.EventHandler) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var evt shared.Event
		if err := json.Unmarshal(t.Payload(), &evt); err != nil {
			return fmt.Errorf("decode ledger event: %v: %w", err, asynq.SkipRetry)
		}
		if evt.Name == "" {
			return fmt.Errorf("ledger event without name: %w", asynq.SkipRetry)
		}
		if sink == nil {
			return errors.New("ledger event: sink not configured")
		}
		return sink(ctx, evt)
	}
}
