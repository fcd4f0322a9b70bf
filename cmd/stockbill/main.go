package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockbill/internal/app"
	"github.com/odyssey-erp/stockbill/internal/bills"
	"github.com/odyssey-erp/stockbill/internal/observability"
	"github.com/odyssey-erp/stockbill/internal/platform/cache"
	"github.com/odyssey-erp/stockbill/internal/shared"
	"github.com/odyssey-erp/stockbill/internal/stock"
	"github.com/odyssey-erp/stockbill/internal/view"
	"github.com/odyssey-erp/stockbill/jobs"
	"github.com/odyssey-erp/stockbill/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.String("addr", cfg.RedisAddr), slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	stockService := stock.NewService(repo, stock.ServiceConfig{Observer: metrics, Logger: logger})
	if _, err := stockService.EnsureDataset(ctx, cfg.DefaultDataset); err != nil {
		logger.Error("ensure default dataset", slog.String("dataset", cfg.DefaultDataset), slog.Any("error", err))
		os.Exit(1)
	}
	stockHandler := stock.NewHandler(logger, stockService, templates, csrfManager, cfg.DefaultDataset, cfg.PageSize)

	reportClient := report.NewClient(cfg.GotenbergURL)
	reportHandler := report.NewHandler(reportClient, logger)
	billRenderer, err := bills.NewRenderer(templates, reportClient)
	if err != nil {
		logger.Error("init bill renderer", slog.Any("error", err))
		os.Exit(1)
	}
	billsHandler := bills.NewHandler(logger, bills.NewService(stockService, nil), templates, csrfManager, billRenderer, cfg.DefaultDataset)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		StockHandler:   stockHandler,
		BillsHandler:   billsHandler,
		ReportHandler:  reportHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("driver", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
