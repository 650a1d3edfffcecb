package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"escrow-ledger/internal/core/domain"
	"escrow-ledger/internal/core/ports"
	"escrow-ledger/pkg/apperror"
	"escrow-ledger/pkg/logger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const snapshotAttempts = 3

// reconcileHealType labels healing CAS outcomes in metrics.
const reconcileHealType domain.EntryType = "reconcile_heal"

// ReconcileService implements ports.Reconciler.
type ReconcileService struct {
	mutator     *WalletMutator
	audit       ports.AuditService
	metrics     *Metrics
	concurrency int
	heal        bool
	log         zerolog.Logger
}

// NewReconcileService creates a reconciler. When heal is set, drifted
// balances are reset to the ledger sum.
func NewReconcileService(mutator *WalletMutator, audit ports.AuditService, metrics *Metrics, concurrency int, heal bool, log zerolog.Logger) *ReconcileService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ReconcileService{
		mutator:     mutator,
		audit:       audit,
		metrics:     metrics,
		concurrency: concurrency,
		heal:        heal,
		log:         log,
	}
}

// ReconcileWallet recomputes one wallet's balance from its ledger.
func (s *ReconcileService) ReconcileWallet(ctx context.Context, walletID uuid.UUID) (*ports.ReconcileReport, error) {
	w, sum, err := s.snapshot(ctx, walletID)
	if err != nil {
		return nil, err
	}

	report := &ports.ReconcileReport{
		WalletID:  w.ID,
		ProjectID: w.ProjectID,
		Balance:   w.Balance,
		LedgerSum: sum,
		Drift:     sum - w.Balance,
		CheckedAt: time.Now().UTC(),
	}
	if report.Drift == 0 {
		s.metrics.reconciled(w.ID.String(), 0, "ok")
		return report, nil
	}

	logger.Alert(s.log.Error()).
		Err(apperror.ErrReconciliationAnomaly(w.ID.String(), report.Drift)).
		Str("wallet_id", w.ID.String()).
		Str("project_id", w.ProjectID).
		Int64("balance", w.Balance).
		Int64("ledger_sum", sum).
		Int64("drift", report.Drift).
		Msg("ledger drift detected")
	s.auditReport(ctx, domain.AuditActionReconcileDrift, report, w.Version)

	outcome := "drift"
	if s.heal {
		healed, err := s.applyHeal(ctx, w, report.Drift)
		switch {
		case err != nil:
			return nil, err
		case healed != nil:
			report.Healed = true
			outcome = "healed"
			s.mutator.invalidate(ctx, w.ProjectID)
			s.auditReport(ctx, domain.AuditActionReconcileHeal, report, healed.Version)
			s.log.Info().
				Str("wallet_id", w.ID.String()).
				Int64("balance", healed.Balance).
				Msg("wallet balance healed from ledger")
		}
	}
	s.metrics.reconciled(w.ID.String(), report.Drift, outcome)
	return report, nil
}

// ReconcileAll checks every wallet with bounded concurrency. A failure on
// one wallet is counted and logged without stopping the pass.
func (s *ReconcileService) ReconcileAll(ctx context.Context) (*ports.ReconcileSummary, error) {
	start := time.Now()
	ids, err := s.mutator.wallets.ListIDs(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}

	var (
		mu      sync.Mutex
		summary = &ports.ReconcileSummary{Reports: []ports.ReconcileReport{}}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			report, err := s.ReconcileWallet(gctx, id)

			mu.Lock()
			defer mu.Unlock()
			summary.Checked++
			if err != nil {
				summary.Failed++
				s.metrics.reconciled(id.String(), 0, "failed")
				s.log.Warn().Err(err).Str("wallet_id", id.String()).Msg("wallet reconciliation failed")
				return nil
			}
			if report.Drift != 0 {
				summary.Drifted++
				summary.Reports = append(summary.Reports, *report)
			}
			if report.Healed {
				summary.Healed++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	summary.Duration = time.Since(start)

	ev := s.log.Info()
	if summary.Drifted > 0 {
		ev = logger.Alert(s.log.Warn())
	}
	ev.Int("checked", summary.Checked).
		Int("drifted", summary.Drifted).
		Int("healed", summary.Healed).
		Int("failed", summary.Failed).
		Dur("duration", summary.Duration).
		Msg("reconciliation pass complete")

	return summary, nil
}

// snapshot reads balance and ledger sum such that both belong to the same
// wallet version. The wallet is re-read after summing; a version change in
// between means a mutation raced the sum and the read is repeated.
func (s *ReconcileService) snapshot(ctx context.Context, walletID uuid.UUID) (*domain.Wallet, int64, error) {
	for i := 0; i < snapshotAttempts; i++ {
		before, err := s.mutator.wallets.GetByID(ctx, walletID)
		if err != nil {
			return nil, 0, apperror.ErrDatabaseError(err)
		}
		if before == nil {
			return nil, 0, apperror.ErrWalletNotFound()
		}
		sum, err := s.mutator.ledger.SumForWallet(ctx, walletID)
		if err != nil {
			return nil, 0, apperror.ErrDatabaseError(err)
		}
		after, err := s.mutator.wallets.GetByID(ctx, walletID)
		if err != nil {
			return nil, 0, apperror.ErrDatabaseError(err)
		}
		if after != nil && after.Version == before.Version {
			return after, sum, nil
		}
	}
	return nil, 0, apperror.ErrContention(fmt.Errorf("wallet %s kept changing during reconciliation", walletID))
}

// applyHeal moves the balance by drift if the wallet is still at the
// snapshot version. Returns nil, nil when a concurrent mutation won; the
// next pass re-evaluates.
func (s *ReconcileService) applyHeal(ctx context.Context, w *domain.Wallet, drift int64) (*domain.Wallet, error) {
	tx, err := s.mutator.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer rollback(ctx, tx)

	healed, err := s.mutator.wallets.ApplyDelta(ctx, tx, w.ID, drift, w.Version)
	if err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			s.metrics.contended(reconcileHealType)
			s.log.Warn().Str("wallet_id", w.ID.String()).Msg("wallet changed during heal, deferring to next pass")
			return nil, nil
		}
		return nil, apperror.InternalError(fmt.Errorf("heal wallet: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit heal: %w", err))
	}
	return healed, nil
}

func (s *ReconcileService) auditReport(ctx context.Context, action domain.AuditAction, r *ports.ReconcileReport, version int64) {
	details, _ := json.Marshal(map[string]any{
		"balance":    r.Balance,
		"ledger_sum": r.LedgerSum,
		"drift":      r.Drift,
		"version":    version,
	})
	id := r.WalletID
	s.audit.Log(ctx, domain.NewAuditLog(action, &id, domain.ActorReconciler, string(details)))
}
