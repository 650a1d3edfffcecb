package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"escrow-ledger/config"
	httpHandler "escrow-ledger/internal/adapter/http/handler"
	pgStorage "escrow-ledger/internal/adapter/storage/postgres"
	redisStorage "escrow-ledger/internal/adapter/storage/redis"
	"escrow-ledger/internal/core/ports"
	"escrow-ledger/internal/service"
	"escrow-ledger/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("ESC_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	gin.SetMode(cfg.Server.Mode)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting escrow ledger")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	if cfg.Database.AutoMigrate {
		if err := pgStorage.Migrate(ctx, pool, log); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply schema")
		}
	}

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Repositories
	walletRepo := pgStorage.NewWalletRepo(pool)
	ledgerRepo := pgStorage.NewLedgerRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)
	transactor := pgStorage.NewTransactor(pool, cfg.Database.StatementTimeout)

	// Redis stores
	balanceCache := redisStorage.NewBalanceCache(rdb)
	replayCache := redisStorage.NewIdempotencyCache(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := service.NewMetrics(registry)

	// Core services
	sigSvc := service.NewHMACSignatureService()
	keyring := service.NewStaticKeyring(cfg.Webhook.Secrets, cfg.Webhook.ActiveKeyID)
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	auditSvc := service.NewAuditService(auditRepo, logger.Component(log, "audit"))

	mutator := service.NewWalletMutator(
		transactor,
		walletRepo,
		ledgerRepo,
		balanceCache,
		metrics,
		service.RetryPolicy{
			MaxAttempts:    cfg.Wallet.MaxAttempts,
			InitialBackoff: cfg.Wallet.InitialBackoff,
			MaxBackoff:     cfg.Wallet.MaxBackoff,
		},
		logger.Component(log, "mutator"),
	)
	lifecycleSvc := service.NewLifecycleService(mutator, auditSvc, logger.Component(log, "lifecycle"))
	walletSvc := service.NewWalletService(walletRepo, ledgerRepo, balanceCache, auditSvc, cfg.Wallet.DefaultCurrency, logger.Component(log, "wallet"))
	balanceSvc := service.NewBalanceService(walletRepo, balanceCache, cfg.Balance.CacheTTL, logger.Component(log, "balance"))
	adjustmentSvc := service.NewAdjustmentService(walletRepo, mutator, lifecycleSvc, auditSvc, logger.Component(log, "adjustment"))
	webhookSvc := service.NewWebhookProcessor(
		keyring,
		sigSvc,
		walletRepo,
		ledgerRepo,
		replayCache,
		mutator,
		lifecycleSvc,
		auditSvc,
		metrics,
		logger.Component(log, "webhook"),
	)
	reconcileSvc := service.NewReconcileService(
		mutator, auditSvc, metrics, cfg.Reconcile.Concurrency, cfg.Reconcile.Heal, logger.Component(log, "reconcile"),
	)

	openAPI, err := os.ReadFile("docs/api/openapi.yaml")
	if err != nil {
		log.Warn().Err(err).Msg("OpenAPI document not found, /swagger disabled")
	}

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	}

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		WalletSvc:      walletSvc,
		BalanceSvc:     balanceSvc,
		WebhookSvc:     webhookSvc,
		AdjustmentSvc:  adjustmentSvc,
		LifecycleSvc:   lifecycleSvc,
		ReconcileSvc:   reconcileSvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgStorage.NewHealthCheck(pool), redisStorage.NewHealthCheck(rdb)},
		AuditSvc:       auditSvc,
		MetricsHandler: metricsHandler,
		MetricsPath:    cfg.Metrics.Path,
		OpenAPISpec:    openAPI,
		Webhook: httpHandler.WebhookHeaders{
			Signature: cfg.Webhook.SignatureHeader,
			KeyID:     cfg.Webhook.KeyIDHeader,
		},
		Logger: log,
	})

	reconcileDone := make(chan struct{})
	go func() {
		defer close(reconcileDone)
		runReconcileLoop(ctx, reconcileSvc, cfg.Reconcile.Interval, log)
	}()

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	<-reconcileDone
	auditSvc.Wait()

	log.Info().Msg("Server exited")
}

// runReconcileLoop reconciles every wallet on each tick until ctx is done.
// A zero interval disables the loop.
func runReconcileLoop(ctx context.Context, reconciler ports.Reconciler, interval time.Duration, log zerolog.Logger) {
	if interval <= 0 {
		log.Info().Msg("Periodic reconciliation disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := reconciler.ReconcileAll(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Periodic reconciliation failed")
			}
		}
	}
}
