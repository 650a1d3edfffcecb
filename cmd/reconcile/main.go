// Command reconcile runs one reconciliation pass and exits. It is meant for
// cron or manual investigation; the API server runs the same pass on a ticker.
//
// Exit status is 0 when every wallet matches its ledger (or was healed),
// 1 on error and 3 when drift was found and left in place.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"escrow-ledger/config"
	pgStorage "escrow-ledger/internal/adapter/storage/postgres"
	redisStorage "escrow-ledger/internal/adapter/storage/redis"
	"escrow-ledger/internal/core/ports"
	"escrow-ledger/internal/service"
	"escrow-ledger/pkg/logger"

	"github.com/google/uuid"
)

const exitDrift = 3

func main() {
	configPath := flag.String("config", "", "path to config file")
	walletFlag := flag.String("wallet", "", "reconcile a single wallet id")
	heal := flag.Bool("heal", false, "correct drifted balances (overrides reconcile.heal)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	var walletID uuid.UUID
	if *walletFlag != "" {
		if walletID, err = uuid.Parse(*walletFlag); err != nil {
			log.Fatal().Str("wallet", *walletFlag).Msg("-wallet must be a UUID")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// Cache invalidation after a heal is best-effort; run without Redis if it is down.
	var cache ports.BalanceCache
	if rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log); err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, balance cache will not be invalidated")
	} else {
		defer rdb.Close()
		cache = redisStorage.NewBalanceCache(rdb)
	}

	auditSvc := service.NewAuditService(pgStorage.NewAuditRepo(pool), logger.Component(log, "audit"))
	mutator := service.NewWalletMutator(
		pgStorage.NewTransactor(pool, cfg.Database.StatementTimeout),
		pgStorage.NewWalletRepo(pool),
		pgStorage.NewLedgerRepo(pool),
		cache,
		nil,
		service.RetryPolicy{
			MaxAttempts:    cfg.Wallet.MaxAttempts,
			InitialBackoff: cfg.Wallet.InitialBackoff,
			MaxBackoff:     cfg.Wallet.MaxBackoff,
		},
		logger.Component(log, "mutator"),
	)
	reconciler := service.NewReconcileService(
		mutator, auditSvc, nil, cfg.Reconcile.Concurrency, cfg.Reconcile.Heal || *heal, logger.Component(log, "reconcile"),
	)

	code := run(ctx, reconciler, walletID, os.Stdout)
	auditSvc.Wait()
	os.Exit(code)
}

func run(ctx context.Context, reconciler ports.Reconciler, walletID uuid.UUID, out io.Writer) int {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	if walletID != uuid.Nil {
		report, err := reconciler.ReconcileWallet(ctx, walletID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reconcile %s: %v\n", walletID, err)
			return 1
		}
		_ = enc.Encode(report)
		if report.Drift != 0 && !report.Healed {
			return exitDrift
		}
		return 0
	}

	summary, err := reconciler.ReconcileAll(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconcile: %v\n", err)
		return 1
	}
	_ = enc.Encode(summary)
	switch {
	case summary.Failed > 0:
		return 1
	case summary.Drifted > summary.Healed:
		return exitDrift
	}
	return 0
}
