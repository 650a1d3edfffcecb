package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"escrow-ledger/internal/core/domain"
	"escrow-ledger/internal/core/ports"
	"escrow-ledger/pkg/apperror"
	"escrow-ledger/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// RetryPolicy bounds the optimistic concurrency loop.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy is 5 attempts starting at 20ms, capped at 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, InitialBackoff: 20 * time.Millisecond, MaxBackoff: 500 * time.Millisecond}
}

// backoff returns the jittered delay before retry number attempt (1-based).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.InitialBackoff
	for i := 1; i < attempt && d < p.MaxBackoff; i++ {
		d *= 2
	}
	if d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	if d <= 0 {
		return 0
	}
	half := d / 2
	return half + time.Duration(rand.Int64N(int64(half)+1))
}

// MutationPlan is what a mutation does to the wallet it just read.
type MutationPlan struct {
	Amount     int64               // signed delta
	NextStatus domain.WalletStatus // optional status change in the same transaction
}

// Mutation is one balance-affecting event to record and apply.
// Plan is called on every attempt with the freshly read wallet and returns
// an apperror to reject the mutation.
type Mutation struct {
	WalletID uuid.UUID
	EventID  string
	Type     domain.EntryType
	Reason   string
	Actor    string
	Plan     func(w *domain.Wallet) (MutationPlan, error)
}

// WalletMutator records ledger entries and applies wallet deltas.
// Each attempt is one transaction: read wallet, plan, append entry,
// compare-and-set the balance, optionally change status, commit. A lost
// compare-and-set rolls the whole attempt back, so the ledger and the
// balance always move together.
type WalletMutator struct {
	transactor ports.DBTransactor
	wallets    ports.WalletRepository
	ledger     ports.LedgerRepository
	cache      ports.BalanceCache
	metrics    *Metrics
	policy     RetryPolicy
	log        zerolog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewWalletMutator creates a mutator. cache and metrics may be nil.
func NewWalletMutator(
	transactor ports.DBTransactor,
	wallets ports.WalletRepository,
	ledger ports.LedgerRepository,
	cache ports.BalanceCache,
	metrics *Metrics,
	policy RetryPolicy,
	log zerolog.Logger,
) *WalletMutator {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &WalletMutator{
		transactor: transactor,
		wallets:    wallets,
		ledger:     ledger,
		cache:      cache,
		metrics:    metrics,
		policy:     policy,
		log:        log,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Apply records and applies m, retrying lost compare-and-sets.
// An event id that is already in the ledger returns the recorded entry with
// Replayed set and changes nothing.
func (s *WalletMutator) Apply(ctx context.Context, m Mutation) (*ports.MutationResult, error) {
	var result *ports.MutationResult

	attempts, err := s.retry(ctx, m.Type, func(ctx context.Context) error {
		res, err := s.attempt(ctx, m)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateEvent) {
			return s.replay(ctx, m)
		}
		if apperror.HasCode(err, apperror.CodeContention) {
			s.log.Warn().
				Str("wallet_id", m.WalletID.String()).
				Str("event_id", m.EventID).
				Int("attempts", attempts).
				Msg("wallet mutation abandoned after retries")
		}
		return nil, err
	}
	result.Attempts = attempts

	s.invalidate(ctx, result.Wallet.ProjectID)
	s.metrics.mutationApplied(m.Type, result.Entry.Amount)

	s.log.Info().
		Str("wallet_id", result.Wallet.ID.String()).
		Str("project_id", result.Wallet.ProjectID).
		Str("event_id", m.EventID).
		Str("type", string(m.Type)).
		Int64("amount", result.Entry.Amount).
		Int64("balance", result.Wallet.Balance).
		Int64("version", result.Wallet.Version).
		Int("attempts", attempts).
		Msg("wallet mutation applied")

	return result, nil
}

// retry runs fn until it stops returning domain.ErrVersionConflict or the
// policy is exhausted, which yields apperror Contention. Other errors,
// including domain.ErrDuplicateEvent, are returned as is.
func (s *WalletMutator) retry(ctx context.Context, t domain.EntryType, fn func(ctx context.Context) error) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return attempt, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return attempt, err
		}
		lastErr = err

		if attempt == s.policy.MaxAttempts {
			break
		}
		s.metrics.casRetried(t)
		if err := s.sleep(ctx, s.policy.backoff(attempt)); err != nil {
			return attempt, apperror.ErrContention(fmt.Errorf("retry aborted: %w", err))
		}
	}

	s.metrics.contended(t)
	return s.policy.MaxAttempts, apperror.ErrContention(lastErr)
}

func (s *WalletMutator) attempt(ctx context.Context, m Mutation) (*ports.MutationResult, error) {
	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer rollback(ctx, tx)

	w, err := s.wallets.GetByIDTx(ctx, tx, m.WalletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("read wallet: %w", err))
	}
	if w == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	plan, err := m.Plan(w)
	if err != nil {
		return nil, err
	}
	if plan.Amount == 0 {
		return nil, apperror.InvalidRequest("amount must be non-zero")
	}
	next, err := w.Apply(plan.Amount)
	if err != nil {
		return nil, apperror.InvalidRequest(err.Error())
	}

	entry := &domain.LedgerEntry{
		ID:               uuid.New(),
		EventID:          m.EventID,
		WalletID:         w.ID,
		Type:             m.Type,
		Amount:           plan.Amount,
		ResultingBalance: next.Balance,
		Reason:           m.Reason,
		Actor:            m.Actor,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.ledger.Append(ctx, tx, entry); err != nil {
		if errors.Is(err, domain.ErrDuplicateEvent) {
			return nil, err
		}
		return nil, apperror.InternalError(fmt.Errorf("append ledger entry: %w", err))
	}

	updated, err := s.wallets.ApplyDelta(ctx, tx, w.ID, plan.Amount, w.Version)
	if err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return nil, err
		}
		return nil, apperror.InternalError(fmt.Errorf("apply delta: %w", err))
	}

	if plan.NextStatus != "" && plan.NextStatus != updated.Status {
		updated, err = s.wallets.SetStatus(ctx, tx, w.ID, plan.NextStatus, updated.Version)
		if err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				return nil, err
			}
			return nil, apperror.InternalError(fmt.Errorf("set status: %w", err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	return &ports.MutationResult{Wallet: updated, Entry: entry}, nil
}

func (s *WalletMutator) replay(ctx context.Context, m Mutation) (*ports.MutationResult, error) {
	entry, err := s.ledger.GetByEventID(ctx, m.EventID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load recorded entry: %w", err))
	}
	if entry == nil {
		return nil, apperror.InternalError(fmt.Errorf("event %s reported duplicate but not found", m.EventID))
	}
	if entry.WalletID != m.WalletID {
		logger.SecurityReview(s.log.Warn()).
			Str("event_id", m.EventID).
			Str("recorded_wallet_id", entry.WalletID.String()).
			Str("requested_wallet_id", m.WalletID.String()).
			Msg("event id reused for a different wallet")
	}

	w, err := s.wallets.GetByID(ctx, entry.WalletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load wallet for replay: %w", err))
	}

	s.metrics.replayed("ledger")
	s.log.Info().
		Str("event_id", m.EventID).
		Str("wallet_id", entry.WalletID.String()).
		Msg("duplicate event, returning recorded entry")

	return &ports.MutationResult{Wallet: w, Entry: entry, Replayed: true}, nil
}

func (s *WalletMutator) invalidate(ctx context.Context, projectID string) {
	if s.cache == nil || projectID == "" {
		return
	}
	if err := s.cache.Invalidate(ctx, projectID); err != nil {
		s.log.Warn().Err(err).Str("project_id", projectID).Msg("failed to invalidate balance cache")
	}
}

// rollback is deferred after Begin; it is a no-op once the tx is committed.
func rollback(ctx context.Context, tx pgx.Tx) {
	_ = tx.Rollback(context.WithoutCancel(ctx))
}
