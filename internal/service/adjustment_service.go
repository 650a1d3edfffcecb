package service

import (
	"context"
	"encoding/json"
	"strings"

	"escrow-ledger/internal/core/domain"
	"escrow-ledger/internal/core/ports"
	"escrow-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AdjustmentService implements ports.AdjustmentService.
type AdjustmentService struct {
	wallets   ports.WalletRepository
	mutator   *WalletMutator
	lifecycle ports.LifecycleManager
	audit     ports.AuditService
	log       zerolog.Logger
}

// NewAdjustmentService creates the administrative adjustment service.
func NewAdjustmentService(
	wallets ports.WalletRepository,
	mutator *WalletMutator,
	lifecycle ports.LifecycleManager,
	audit ports.AuditService,
	log zerolog.Logger,
) *AdjustmentService {
	return &AdjustmentService{
		wallets:   wallets,
		mutator:   mutator,
		lifecycle: lifecycle,
		audit:     audit,
		log:       log,
	}
}

// Adjust applies a signed administrative correction to an active wallet.
// Debits below zero are refused unless AllowNegative is set.
func (s *AdjustmentService) Adjust(ctx context.Context, req ports.AdjustmentRequest) (*ports.MutationResult, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	switch {
	case req.Amount == 0:
		return nil, apperror.InvalidRequest("amount must be non-zero")
	case req.Reason == "":
		return nil, apperror.InvalidRequest("reason is required")
	case req.ActorID == "":
		return nil, apperror.InvalidRequest("actor is required")
	}

	walletID, err := s.resolveWallet(ctx, req.WalletID, req.ProjectID)
	if err != nil {
		return nil, err
	}

	entryType := domain.EntryTypeCreditAdjustment
	if req.Amount < 0 {
		entryType = domain.EntryTypeDebitAdjustment
	}

	res, err := s.mutator.Apply(ctx, Mutation{
		WalletID: walletID,
		EventID:  "adj_" + uuid.NewString(),
		Type:     entryType,
		Reason:   req.Reason,
		Actor:    req.ActorID,
		Plan: func(w *domain.Wallet) (MutationPlan, error) {
			if !s.lifecycle.CanAdjust(w.Status) {
				return MutationPlan{}, apperror.ErrWalletNotAdjustable(string(w.Status))
			}
			if req.Amount < 0 && !req.AllowNegative && w.Balance+req.Amount < 0 {
				return MutationPlan{}, apperror.ErrInsufficientFunds()
			}
			return MutationPlan{Amount: req.Amount}, nil
		},
	})
	if err != nil {
		return nil, err
	}

	if res.Wallet.Balance < 0 {
		s.log.Warn().
			Str("wallet_id", walletID.String()).
			Int64("balance", res.Wallet.Balance).
			Str("actor_id", req.ActorID).
			Msg("adjustment left wallet with negative balance")
	}

	s.record(ctx, domain.AuditActionWalletAdjust, res, req.ActorID, req.Reason, req.ClientIP, map[string]any{
		"allow_negative": req.AllowNegative,
	})
	return res, nil
}

// Withdraw disburses Amount from an active wallet. It never overdraws.
func (s *AdjustmentService) Withdraw(ctx context.Context, req ports.WithdrawalRequest) (*ports.MutationResult, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	switch {
	case req.Amount <= 0:
		return nil, apperror.InvalidRequest("amount must be positive")
	case req.WalletID == uuid.Nil:
		return nil, apperror.InvalidRequest("wallet_id is required")
	case req.Reason == "":
		return nil, apperror.InvalidRequest("reason is required")
	case req.ActorID == "":
		return nil, apperror.InvalidRequest("actor is required")
	}

	res, err := s.mutator.Apply(ctx, Mutation{
		WalletID: req.WalletID,
		EventID:  "wd_" + uuid.NewString(),
		Type:     domain.EntryTypeWithdrawal,
		Reason:   req.Reason,
		Actor:    req.ActorID,
		Plan: func(w *domain.Wallet) (MutationPlan, error) {
			if !s.lifecycle.CanWithdraw(w.Status) {
				return MutationPlan{}, apperror.ErrWalletNotAdjustable(string(w.Status))
			}
			if w.Balance < req.Amount {
				return MutationPlan{}, apperror.ErrInsufficientFunds()
			}
			return MutationPlan{Amount: -req.Amount}, nil
		},
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, domain.AuditActionWalletWithdraw, res, req.ActorID, req.Reason, req.ClientIP, nil)
	return res, nil
}

func (s *AdjustmentService) resolveWallet(ctx context.Context, walletID uuid.UUID, projectID string) (uuid.UUID, error) {
	if walletID != uuid.Nil {
		return walletID, nil
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return uuid.Nil, apperror.InvalidRequest("wallet_id or project_id is required")
	}
	w, err := s.wallets.GetByProjectID(ctx, projectID)
	if err != nil {
		return uuid.Nil, apperror.ErrDatabaseError(err)
	}
	if w == nil {
		return uuid.Nil, apperror.ErrWalletNotFound()
	}
	return w.ID, nil
}

func (s *AdjustmentService) record(ctx context.Context, action domain.AuditAction, res *ports.MutationResult, actorID, reason, ip string, extra map[string]any) {
	details := map[string]any{
		"event_id":          res.Entry.EventID,
		"amount":            res.Entry.Amount,
		"resulting_balance": res.Entry.ResultingBalance,
		"reason":            reason,
	}
	for k, v := range extra {
		details[k] = v
	}
	raw, _ := json.Marshal(details)

	entry := domain.NewAuditLog(action, &res.Wallet.ID, actorID, string(raw))
	entry.IPAddress = ip
	s.audit.Log(ctx, entry)
}
