package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

const usage = `usage: odyssey [serve | migrate | jobs trigger <name> [company_id] | jobs stats]`

func main() {
	if app.SkipStartup(nil, "odyssey") {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	switch command {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "migrate":
		err = migrate(ctx, cfg, logger)
	case "jobs":
		err = runJobs(ctx, cfg, args)
	default:
		err = errors.New(usage)
	}
	if err != nil {
		logger.Error("odyssey "+command, slog.Any("error", err))
		os.Exit(1)
	}
}

func migrate(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, MaxConnLifetime: cfg.PGConnLifetime})
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := db.Migrate(ctx, pool)
	if err != nil {
		return err
	}
	logger.Info("migrations applied", slog.Int("count", len(applied)), slog.Any("files", applied))
	return nil
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer jobsCLI.Close()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return errors.New(usage)
		}
		var companyID int64
		if len(args) > 2 {
			companyID, err = strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("company id: %w", err)
			}
		}
		info, err := jobsCLI.Trigger(ctx, args[1], companyID)
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s paused=%t pending=%d active=%d scheduled=%d retry=%d archived=%d processed=%d failed=%d latency=%s\n",
			stats.Queue, stats.Paused, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived,
			stats.Processed, stats.Failed, stats.Latency)
	default:
		return errors.New(usage)
	}
	return nil
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, MaxConnLifetime: cfg.PGConnLifetime})
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	bus := app.NewEventBus(cfg, logger, app.EventSinks{
		Metrics: observability.NewLedgerMetrics(metrics.Registerer()),
		Audit:   shared.NewAuditLogger(pool).Handle,
		Forward: jobs.NewEventForwarder(jobClient, logger).Handle,
	})

	periodService := periods.NewService(periods.NewRepository(pool), bus, logger)
	journalService := journals.NewService(journals.NewRepository(pool), bus, logger, cfg.JournalConfig())
	inventoryService := inventory.NewService(inventory.NewRepository(pool), bus, logger)

	codes := cfg.AccountCodes()
	cogs := integration.NewCOGSGenerator(integration.NewRepository(pool), journalService, codes, logger)
	hooks := integration.NewHooks(journalService, codes, logger)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		PeriodsHandler:     periods.NewHandler(logger, periodService),
		JournalsHandler:    journals.NewHandler(logger, journalService),
		InventoryHandler:   inventory.NewHandler(logger, inventoryService),
		IntegrationHandler: integration.NewHandler(logger, cogs, hooks),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
		HealthChecks: map[string]app.HealthCheck{
			"postgres": app.PostgresCheck(pool),
			"redis":    app.RedisCheck(redisClient),
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}
