package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stockplus/stockplus/internal/app"
	"github.com/stockplus/stockplus/internal/catalog"
	"github.com/stockplus/stockplus/internal/events"
	"github.com/stockplus/stockplus/internal/invoices"
	"github.com/stockplus/stockplus/internal/notify"
	"github.com/stockplus/stockplus/internal/numbering"
	"github.com/stockplus/stockplus/internal/observability"
	"github.com/stockplus/stockplus/internal/platform/cache"
	"github.com/stockplus/stockplus/internal/platform/db"
	"github.com/stockplus/stockplus/internal/sales"
	"github.com/stockplus/stockplus/internal/shared"
	"github.com/stockplus/stockplus/jobs"
	"github.com/stockplus/stockplus/migrations"
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

	schemaChanged := false
	if cfg.PGAutoMigrate {
		schemaChanged, err = migrations.Up(cfg.PGDSN)
		if err != nil {
			logger.Error("apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("migrations applied", slog.Bool("changed", schemaChanged))
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	// Redis backs the catalog cache and the invoice sequence; both degrade without it.
	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Warn("redis unavailable, running without cache and invoice sequence", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaSalesTopic))
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				logger.Warn("kafka close", slog.Any("error", err))
			}
		}()
		publisher = kafkaPublisher
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
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
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	var sequence numbering.Sequence
	if redisClient != nil {
		sequence = numbering.NewRedisSequence(redisClient)
	}
	generator := numbering.NewGenerator(numbering.Options{
		Sequence:    sequence,
		MaxAttempts: cfg.InvoiceMaxAttempts,
		Logger:      logger,
	})

	salesRepo := sales.NewRepository(dbpool, db.TxOptions{LockTimeout: cfg.SalesLockTimeout})
	ledger := sales.NewLedger(salesRepo, generator, sales.LedgerConfig{
		Retry: db.RetryPolicy{MaxAttempts: cfg.SalesTxRetries, BaseBackoff: 25 * time.Millisecond},
	})

	invoiceService := invoices.NewService(invoices.NewRepository(dbpool), auditLogger, publisher, logger)
	catalogReader := catalog.NewCache(redisClient, catalog.NewRepository(dbpool), cfg.CatalogCacheTTL, logger)
	if schemaChanged {
		if err := catalogReader.Bump(ctx); err != nil {
			logger.Warn("catalog cache bump", slog.Any("error", err))
		}
	}

	salesService := sales.NewService(sales.Deps{
		Ledger:      ledger,
		Catalog:     catalogReader,
		Cache:       catalogReader,
		Invoices:    invoiceService,
		Idempotency: idempotencyStore,
		Audit:       auditLogger,
		Notifier:    notify.NewDispatcher(jobClient, logger),
		Events:      publisher,
		Metrics:     sales.NewMetrics(metrics.Registerer()),
		Logger:      logger,
	}, sales.ServiceConfig{CheckoutAttempts: cfg.SalesCheckoutAttempts})

	checks := map[string]app.Pinger{"postgres": dbpool}
	if redisClient != nil {
		checks["redis"] = app.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		SalesHandler:    sales.NewHandler(logger, salesService),
		InvoicesHandler: invoices.NewHandler(logger, invoiceService),
		JobHandler:      jobs.NewHandler(inspector, logger),
		Metrics:         metrics,
		Checks:          checks,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", slog.Any("error", err))
	}
}
