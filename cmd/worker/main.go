package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockbill/internal/app"
	jobmetrics "github.com/odyssey-erp/stockbill/internal/jobs"
	"github.com/odyssey-erp/stockbill/internal/stock"
	"github.com/odyssey-erp/stockbill/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	repo, closeStore, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("connect store", slog.String("driver", cfg.StoreDriver), slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	stockService := stock.NewService(repo, stock.ServiceConfig{Logger: logger})
	auditJob := jobs.NewStockAuditJob(stockService, cfg.AuditDatasets, cfg.LowStockThreshold, logger, jobmetrics.NewMetrics(nil))

	auditTask, err := jobs.NewStockAuditTask(jobs.StockAuditPayload{RequestedAt: time.Now().UTC()})
	if err != nil {
		logger.Error("build audit task", slog.Any("error", err))
		os.Exit(1)
	}

	var cron []jobs.CronRegistration
	if cfg.AuditCron != "" {
		cron = append(cron, jobs.CronRegistration{Spec: cfg.AuditCron, Task: auditTask, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskStockAudit, Handler: auditJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.Any("audit_datasets", cfg.AuditDatasets), slog.String("audit_cron", cfg.AuditCron))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
