package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"escrow-ledger/internal/core/domain"
	"escrow-ledger/internal/core/ports"
	"escrow-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

// statusChangeType labels status CAS retries in metrics.
const statusChangeType domain.EntryType = "status_change"

// LifecycleService implements ports.LifecycleManager.
type LifecycleService struct {
	mutator *WalletMutator
	audit   ports.AuditService
	log     zerolog.Logger
}

// NewLifecycleService creates a lifecycle manager on top of the mutator's
// transactor, stores and retry policy.
func NewLifecycleService(mutator *WalletMutator, audit ports.AuditService, log zerolog.Logger) *LifecycleService {
	return &LifecycleService{mutator: mutator, audit: audit, log: log}
}

func (s *LifecycleService) CanTransition(from, to domain.WalletStatus) bool {
	return domain.CanTransition(from, to)
}

// Validate returns IllegalTransition unless from -> to is an edge of the state machine.
func (s *LifecycleService) Validate(from, to domain.WalletStatus) error {
	if !domain.CanTransition(from, to) {
		return apperror.ErrIllegalTransition(string(from), string(to))
	}
	return nil
}

func (s *LifecycleService) CanAdjust(status domain.WalletStatus) bool {
	return status.Adjustable()
}

func (s *LifecycleService) CanDeposit(status domain.WalletStatus) bool {
	return status.AcceptsDeposits()
}

func (s *LifecycleService) CanWithdraw(status domain.WalletStatus) bool {
	return status == domain.WalletStatusActive
}

// TransitionStatus applies an administrative freeze, unfreeze or close.
// Activation of a pending wallet only happens through its first deposit.
func (s *LifecycleService) TransitionStatus(ctx context.Context, req ports.StatusChangeRequest) (*domain.Wallet, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	switch {
	case !req.To.Valid() || req.To == domain.WalletStatusNotCreated:
		return nil, apperror.InvalidRequest("unknown target status")
	case req.Reason == "":
		return nil, apperror.InvalidRequest("reason is required")
	case req.ActorID == "":
		return nil, apperror.InvalidRequest("actor is required")
	}

	var (
		from    domain.WalletStatus
		updated *domain.Wallet
	)
	_, err := s.mutator.retry(ctx, statusChangeType, func(ctx context.Context) error {
		tx, err := s.mutator.transactor.Begin(ctx)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
		}
		defer rollback(ctx, tx)

		w, err := s.mutator.wallets.GetByIDTx(ctx, tx, req.WalletID)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("read wallet: %w", err))
		}
		if w == nil {
			return apperror.ErrWalletNotFound()
		}
		if w.Status == domain.WalletStatusPending && req.To == domain.WalletStatusActive {
			return apperror.ErrIllegalTransition(string(w.Status), string(req.To))
		}
		if err := s.Validate(w.Status, req.To); err != nil {
			return err
		}

		out, err := s.mutator.wallets.SetStatus(ctx, tx, w.ID, req.To, w.Version)
		if err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				return err
			}
			return apperror.InternalError(fmt.Errorf("set status: %w", err))
		}
		if err := tx.Commit(ctx); err != nil {
			return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
		}
		from, updated = w.Status, out
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.mutator.invalidate(ctx, updated.ProjectID)

	details, _ := json.Marshal(map[string]any{
		"from":    from,
		"to":      req.To,
		"reason":  req.Reason,
		"version": updated.Version,
	})
	entry := domain.NewAuditLog(domain.AuditActionWalletStatus, &updated.ID, req.ActorID, string(details))
	entry.IPAddress = req.ClientIP
	s.audit.Log(ctx, entry)

	s.log.Info().
		Str("wallet_id", updated.ID.String()).
		Str("from", string(from)).
		Str("to", string(req.To)).
		Str("actor_id", req.ActorID).
		Msg("wallet status changed")

	return updated, nil
}
