package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Enqueuer is the part of the asynq client used to submit tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EventForwarder subscribes to the event bus and queues every event for the
// worker. The event id is the task id, so a republished event is queued once.
type EventForwarder struct {
	enqueuer Enqueuer
	logger   *slog.Logger
	maxRetry int
}

// NewEventForwarder constructs the forwarder.
func NewEventForwarder(enqueuer Enqueuer, logger *slog.Logger) *EventForwarder {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventForwarder{enqueuer: enqueuer, logger: logger, maxRetry: 10}
}

// Handle is an event bus subscriber.
func (f *EventForwarder) Handle(ctx context.Context, evt shared.Event) error {
	if f == nil || f.enqueuer == nil {
		return nil
	}
	task, err := NewLedgerEventTask(evt)
	if err != nil {
		return err
	}
	_, err = f.enqueuer.EnqueueContext(ctx, task,
		asynq.Queue(QueueDefault),
		asynq.TaskID(evt.ID.String()),
		asynq.MaxRetry(f.maxRetry),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		f.logger.Debug("ledger event already queued", slog.String("event_id", evt.ID.String()))
		return nil
	}
	return err
}
