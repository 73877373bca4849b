package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crm_bridge_backend/internal/alerts"
	"crm_bridge_backend/internal/archive"
	"crm_bridge_backend/internal/audit"
	"crm_bridge_backend/internal/bitrix"
	"crm_bridge_backend/internal/events"
	"crm_bridge_backend/internal/hotmart"
	apphttp "crm_bridge_backend/internal/http"
	"crm_bridge_backend/internal/http/router"
	"crm_bridge_backend/internal/idempotency"
	"crm_bridge_backend/internal/jelou"
	"crm_bridge_backend/internal/pipeline"
	"crm_bridge_backend/platform/config"
	"crm_bridge_backend/platform/db"
	"crm_bridge_backend/platform/logger"
	"crm_bridge_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Duplicate-delivery guard, disabled without redis
	guard, err := idempotency.New(cfg.GetRedisURL(), idempotency.DefaultTTL)
	if err != nil {
		log.Error("failed to initialize idempotency guard", "error", err)
		panic("failed to initialize idempotency guard: " + err.Error())
	}
	if guard == nil {
		log.Warn("REDIS_URL not configured; duplicate webhook deliveries will be reprocessed")
	} else {
		defer func() { _ = guard.Close() }()
	}

	// Raw payload archive, disabled without MinIO
	archiveStore, err := archive.New(cfg, log)
	if err != nil {
		log.Error("failed to initialize webhook archive", "error", err)
		panic("failed to initialize webhook archive: " + err.Error())
	}
	var payloadArchive hotmart.PayloadArchive
	if archiveStore != nil {
		if err := withRetry(ctx, log, "ensure archive bucket", 5, 2*time.Second, func() error {
			return archiveStore.EnsureBucketExists(ctx)
		}); err != nil {
			log.Error("failed to ensure archive bucket exists", "error", err)
			panic("failed to ensure archive bucket exists: " + err.Error())
		}
		payloadArchive = archiveStore
		log.Info("webhook archive initialized", "bucket", cfg.GetMinioBucketWebhookArchive())
	}

	// Operational alert emails for webhook failures
	if cfg.GetAlertsEnabled() {
		notifier := alerts.NewNotifier(alerts.NewSMTPMailer(cfg), log)
		notifier.Subscribe(eventBus)
		log.Info("alert notifier subscribed", "to", cfg.GetAlertToAddress())
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	bitrixClient := bitrix.NewClient(cfg, log)
	crm := bitrix.NewGateway(bitrixClient, cfg, log)

	pipelines, err := pipeline.LoadFile(cfg.GetPipelinesFile())
	if err != nil {
		log.Error("failed to load pipeline bindings", "error", err, "file", cfg.GetPipelinesFile())
		panic("failed to load pipeline bindings: " + err.Error())
	}

	jelouClient := jelou.NewClient(cfg, log)

	auditModule := audit.NewModule(pool, log)
	hotmartModule := hotmart.NewModule(crm, pipelines, auditModule.Service(), guard, payloadArchive, eventBus, cfg, log)
	jelouModule := jelou.NewModule(crm, jelouClient, pipelines, val, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			hotmartModule,
			jelouModule,
			auditModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
