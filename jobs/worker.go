package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	defaultConcurrency     = 5
	defaultShutdownTimeout = 8 * time.Second
)

// TaskHandler binds a task type to its handler. A positive Timeout bounds
// each invocation on top of any deadline asynq already applies.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
	Timeout time.Duration
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// Worker consumes ledger tasks and, when cron entries are configured, runs
// the scheduler that enqueues periodic integrity checks.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
	types     []string
	cronIDs   []string
}

// NewWorker validates cfg and prepares the server, mux and scheduler.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "worker"))

	w := &Worker{mux: asynq.NewServeMux(), logger: logger}
	w.mux.Use(w.logTask)
	seen := make(map[string]struct{}, len(cfg.Handlers))
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		if _, dup := seen[h.Type]; dup {
			return nil, fmt.Errorf("worker: duplicate handler for %q", h.Type)
		}
		seen[h.Type] = struct{}{}
		w.mux.Handle(h.Type, withTimeout(h.Handler, h.Timeout))
		w.types = append(w.types, h.Type)
	}
	if len(w.types) == 0 {
		return nil, errors.New("worker: no task handlers")
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	w.server = asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency:     concurrency,
		Queues:          map[string]int{QueueDefault: 1},
		ShutdownTimeout: defaultShutdownTimeout,
		// SkipRetry marks a permanently bad payload, not a broken worker.
		IsFailure: func(err error) bool { return !errors.Is(err, asynq.SkipRetry) },
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Error("task failed",
				slog.String("type", task.Type()),
				slog.Int("retry", retried),
				slog.Int("max_retry", maxRetry),
				slog.Any("error", err))
		}),
	})

	if err := w.registerCron(cfg.RedisOpts, cfg.Cron); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Worker) registerCron(opts asynq.RedisClientOpt, entries []CronRegistration) error {
	for _, entry := range entries {
		if entry.Spec == "" || entry.Task == nil {
			continue
		}
		if w.scheduler == nil {
			w.scheduler = asynq.NewScheduler(opts, &asynq.SchedulerOpts{Location: time.UTC})
		}
		id, err := w.scheduler.Register(entry.Spec, entry.Task, entry.Options...)
		if err != nil {
			return fmt.Errorf("worker: register cron %q for %s: %w", entry.Spec, entry.Task.Type(), err)
		}
		w.cronIDs = append(w.cronIDs, id)
	}
	return nil
}

// Run processes tasks until ctx is cancelled and returns ctx.Err() after a
// graceful stop. A failure to start either component is returned directly.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return errors.New("worker: not configured")
	}
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("worker: start server: %w", err)
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return fmt.Errorf("worker: start scheduler: %w", err)
		}
	}
	w.logger.Info("worker started", slog.Any("task_types", w.types), slog.Int("cron_entries", len(w.cronIDs)))

	<-ctx.Done()
	w.logger.Info("worker stopping")
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
	return ctx.Err()
}

func (w *Worker) logTask(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
		started := time.Now()
		err := next.ProcessTask(ctx, task)
		attrs := []any{
			slog.String("type", task.Type()),
			slog.Duration("took", time.Since(started)),
		}
		if id, ok := asynq.GetTaskID(ctx); ok {
			attrs = append(attrs, slog.String("task_id", id))
		}
		if err == nil {
			w.logger.Debug("task done", attrs...)
		}
		return err
	})
}

func withTimeout(h asynq.HandlerFunc, timeout time.Duration) asynq.Handler {
	if timeout <= 0 {
		return h
	}
	return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return h(ctx, task)
	})
}
