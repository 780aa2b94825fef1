package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apppricing "github.com/blingsync/backend/internal/application/pricing"
	appsync "github.com/blingsync/backend/internal/application/sync"
	apptoken "github.com/blingsync/backend/internal/application/token"
	appwebhook "github.com/blingsync/backend/internal/application/webhook"
	"github.com/blingsync/backend/internal/domain/job"
	"github.com/blingsync/backend/internal/domain/pricing"
	"github.com/blingsync/backend/internal/domain/shared"
	"github.com/blingsync/backend/internal/domain/webhook"
	"github.com/blingsync/backend/internal/infrastructure/auth"
	"github.com/blingsync/backend/internal/infrastructure/bling"
	"github.com/blingsync/backend/internal/infrastructure/cache"
	"github.com/blingsync/backend/internal/infrastructure/config"
	"github.com/blingsync/backend/internal/infrastructure/event"
	"github.com/blingsync/backend/internal/infrastructure/jobs"
	"github.com/blingsync/backend/internal/infrastructure/logger"
	"github.com/blingsync/backend/internal/infrastructure/persistence"
	"github.com/blingsync/backend/internal/interfaces/http/handler"
	"github.com/blingsync/backend/internal/interfaces/http/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting blingsync backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("error closing database", zap.Error(err))
		}
	}()

	if err := persistence.AutoMigrate(db.DB); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Repositories
	jobRepo := persistence.NewGormJobRepository(db.DB)
	eventRepo := persistence.NewGormEventRecordRepository(db.DB)
	webhookRepo := persistence.NewGormWebhookRepository(db.DB)
	connectionRepo := persistence.NewGormConnectionRepository(db.DB)
	tokenRepo := persistence.NewGormTokenRepository(db.DB)
	priceRepo := persistence.NewGormPriceRepository(db.DB)
	historyRepo := persistence.NewGormPriceHistoryRepository(db.DB)
	ruleRepo := persistence.NewGormPriceRuleRepository(db.DB)

	// Idempotency store: Redis when reachable, in-memory otherwise
	var idempotencyStore shared.IdempotencyStore
	if redisStore, err := cache.NewRedisIdempotencyStore(&cfg.Redis); err != nil {
		log.Warn("redis unavailable, using in-memory idempotency store", zap.Error(err))
		idempotencyStore = cache.NewInMemoryIdempotencyStore()
	} else {
		idempotencyStore = redisStore
	}
	defer func() { _ = idempotencyStore.Close() }()

	// Event bus and distributor
	serializer := event.NewEventSerializer()
	serializer.Register(job.EventTypeJobCompleted, &job.CompletedEvent{})
	serializer.Register(job.EventTypeJobFailed, &job.FailedEvent{})
	serializer.Register(pricing.EventTypePriceChanged, &pricing.PriceChangedEvent{})
	serializer.Register(pricing.EventTypePriceConflict, &pricing.PriceConflictEvent{})
	serializer.Register(webhook.EventTypeProductUpdated, &webhook.ProductUpdatedEvent{})
	serializer.Register(webhook.EventTypeOrderCreated, &webhook.OrderCreatedEvent{})
	serializer.Register(webhook.EventTypeStockUpdated, &webhook.StockUpdatedEvent{})

	bus := event.NewBus(eventRepo, serializer, log, cfg.Event.QueueSize)
	bus.SetMaxRetries(cfg.Event.MaxRetries)
	bus.SetEventPriority(pricing.EventTypePriceConflict, shared.PriorityHigh)
	bus.SetEventPriority(job.EventTypeJobFailed, shared.PriorityHigh)
	bus.SetEventPriority(webhook.EventTypeOrderCreated, shared.PriorityLow)

	distributor := event.NewDistributor(bus, event.DistributorConfig{
		BatchSize:        cfg.Event.BatchSize,
		PollInterval:     cfg.Event.PollInterval,
		HandlerTimeout:   cfg.Event.HandlerTimeout,
		MaxConcurrency:   cfg.Event.MaxConcurrency,
		DeadRetryEnabled: cfg.Event.DeadRetryEnabled,
		DeadRetryWindow:  cfg.Event.DeadRetryWindow,
		CleanupEnabled:   cfg.Event.CleanupEnabled,
		CleanupRetention: cfg.Event.CleanupRetention,
	}, log)

	// Token coordinator and ERP client; the client consumes the coordinator
	// as its token source and the coordinator refreshes through the client
	tokenService := apptoken.NewService(tokenRepo, connectionRepo, &cfg.Token, log)
	blingClient := bling.NewClient(&cfg.Bling, tokenService, log)
	tokenService.SetRefresher(blingClient)

	// Price synchronization engine
	priceCache := cache.NewPriceCache(cfg.PriceSync.CacheTTL, 10000)
	priceSync := apppricing.NewSyncService(priceRepo, historyRepo, ruleRepo, connectionRepo,
		blingClient, bus, priceCache, &cfg.PriceSync, log)

	// Webhook ingestion
	webhookService := appwebhook.NewService(connectionRepo, webhookRepo, idempotencyStore,
		bus, &cfg.Webhook, log)

	// Job orchestrator with its handler set
	orchestrator := jobs.NewOrchestrator(jobRepo, bus, jobs.Config{
		QueueSize:         cfg.Jobs.QueueSize,
		MaxConcurrentJobs: cfg.Jobs.MaxConcurrentJobs,
		TickInterval:      cfg.Jobs.TickInterval,
		DefaultTimeout:    cfg.Jobs.DefaultTimeout,
		MaxRetries:        cfg.Jobs.MaxRetries,
		RetryBaseDelay:    cfg.Jobs.RetryBaseDelay,
		RetryFactor:       cfg.Jobs.RetryFactor,
		ShutdownGrace:     cfg.Jobs.ShutdownGrace,
	}, log)
	appsync.NewHandlers(priceSync, blingClient, webhookService, bus,
		eventRepo, webhookRepo, historyRepo, jobRepo,
		&cfg.Event, &cfg.Jobs, log).RegisterAll(orchestrator)

	// Incoming product and stock events feed the price pipeline
	bus.Subscribe(appsync.NewProductEventHandler(priceSync, log))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := distributor.Start(ctx); err != nil {
		log.Fatal("failed to start event distributor", zap.Error(err))
	}
	if err := orchestrator.Start(ctx); err != nil {
		log.Fatal("failed to start job orchestrator", zap.Error(err))
	}
	tokenService.Start()
	webhookService.Start()
	priceSync.Start()

	// HTTP server
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := router.Setup(router.Config{
		HTTP:       &cfg.HTTP,
		JWTService: auth.NewJWTService(cfg.JWT),
		Logger:     log,
		System:     handler.NewSystemHandler(db, distributor),
		Webhook:    handler.NewWebhookHandler(webhookService),
		Jobs:       handler.NewJobHandler(orchestrator),
		PriceSync:  handler.NewPriceSyncHandler(priceSync),
	})

	server := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", zap.Error(err))
	}

	// stop intake before the pipelines draining behind it
	priceSync.Stop()
	webhookService.Stop()
	if err := orchestrator.Stop(shutdownCtx); err != nil {
		log.Error("job orchestrator shutdown failed", zap.Error(err))
	}
	if err := distributor.Stop(shutdownCtx); err != nil {
		log.Error("event distributor shutdown failed", zap.Error(err))
	}
	tokenService.Stop()

	log.Info("shutdown complete")
}
