package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// JobsCLI drives manual job runs and queue inspection from the command line.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI connects the enqueue client and inspector to redisAddr.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	if redisAddr == "" {
		return nil, errors.New("jobs cli: redis address required")
	}
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	client, err := jobs.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("jobs cli: %w", err)
	}
	return &JobsCLI{client: client, inspector: asynq.NewInspector(opts)}, nil
}

// Close releases the client and inspector connections.
func (c *JobsCLI) Close() error {
	var errs []error
	if c.inspector != nil {
		errs = append(errs, c.inspector.Close())
	}
	if c.client != nil {
		errs = append(errs, c.client.Close())
	}
	return errors.Join(errs...)
}

// Trigger enqueues a job by task name. For ledger:integrity a zero
// companyID scans every company.
func (c *JobsCLI) Trigger(ctx context.Context, name string, companyID int64) (*asynq.TaskInfo, error) {
	if name != jobs.TaskLedgerIntegrity {
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
	if companyID < 0 {
		return nil, fmt.Errorf("jobs cli: invalid company id %d", companyID)
	}
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	return c.client.TriggerIntegrity(ctx, jobs.IntegrityPayload{CompanyID: companyID})
}

// QueueStats is a snapshot of the default queue.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
	Processed int
	Failed    int
	Latency   time.Duration
	Paused    bool
}

// InspectQueue snapshots the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	if err := ctx.Err(); err != nil {
		return QueueStats{}, err
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, fmt.Errorf("jobs cli: queue info: %w", err)
	}
	return queueStats(info), nil
}

func queueStats(info *asynq.QueueInfo) QueueStats {
	if info == nil {
		return QueueStats{Queue: jobs.QueueDefault}
	}
	return QueueStats{
		Queue:     info.Queue,
		Pending:   info.Pending,
		Active:    info.Active,
		Scheduled: info.Scheduled,
		Retry:     info.Retry,
		Archived:  info.Archived,
		Processed: info.Processed,
		Failed:    info.Failed,
		Latency:   info.Latency,
		Paused:    info.Paused,
	}
}
