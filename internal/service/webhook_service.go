package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"escrow-ledger/internal/core/domain"
	"escrow-ledger/internal/core/ports"
	"escrow-ledger/pkg/apperror"
	"escrow-ledger/pkg/logger"

	"github.com/rs/zerolog"
)

const depositReplayTTL = 24 * time.Hour

// cachedDeposit is the replay fast-path record stored per event id.
type cachedDeposit struct {
	Wallet *domain.Wallet      `json:"wallet"`
	Entry  *domain.LedgerEntry `json:"entry"`
}

// WebhookProcessor implements ports.WebhookProcessor.
type WebhookProcessor struct {
	keyring   ports.SecretProvider
	sigSvc    ports.SignatureService
	wallets   ports.WalletRepository
	ledger    ports.LedgerRepository
	replay    ports.IdempotencyCache
	mutator   *WalletMutator
	lifecycle ports.LifecycleManager
	audit     ports.AuditService
	metrics   *Metrics
	log       zerolog.Logger
}

// NewWebhookProcessor creates the deposit notification processor. replay and metrics may be nil.
func NewWebhookProcessor(
	keyring ports.SecretProvider,
	sigSvc ports.SignatureService,
	wallets ports.WalletRepository,
	ledger ports.LedgerRepository,
	replay ports.IdempotencyCache,
	mutator *WalletMutator,
	lifecycle ports.LifecycleManager,
	audit ports.AuditService,
	metrics *Metrics,
	log zerolog.Logger,
) *WebhookProcessor {
	return &WebhookProcessor{
		keyring:   keyring,
		sigSvc:    sigSvc,
		wallets:   wallets,
		ledger:    ledger,
		replay:    replay,
		mutator:   mutator,
		lifecycle: lifecycle,
		audit:     audit,
		metrics:   metrics,
		log:       log,
	}
}

// ProcessDeposit verifies, de-duplicates and applies one deposit notification.
//
// Flow:
//  1. Verify HMAC-SHA256 over the raw body with the named key, or any live key
//  2. Parse and validate the event
//  3. Replay check: Redis fast path, then the ledger's unique event id
//  4. Resolve the wallet and check currency and lifecycle
//  5. Record and apply the credit (pending wallets activate in the same tx)
//  6. Cache the result for replays
func (s *WebhookProcessor) ProcessDeposit(ctx context.Context, n ports.DepositNotification) (*ports.MutationResult, error) {
	// 1. Signature
	if !s.verify(n) {
		s.metrics.depositRejected(apperror.CodeInvalidSignature)
		logger.SecurityReview(s.log.Warn()).
			Str("ip", n.ClientIP).
			Str("key_id", n.KeyID).
			Int("body_bytes", len(n.RawBody)).
			Msg("deposit webhook signature rejected")
		return nil, apperror.ErrInvalidSignature()
	}

	// 2. Parse
	evt, err := parseDepositEvent(n.RawBody)
	if err != nil {
		s.metrics.depositRejected(apperror.CodeInvalidRequest)
		s.log.Warn().Err(err).Str("ip", n.ClientIP).Msg("malformed deposit webhook")
		return nil, err
	}

	// 3a. Redis fast path
	if res := s.cachedResult(ctx, evt); res != nil {
		return res, nil
	}

	// 3b. Ledger
	recorded, err := s.ledger.GetByEventID(ctx, evt.EventID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if recorded != nil {
		return s.replayRecorded(ctx, evt, recorded)
	}

	// 4. Wallet
	w, err := s.wallets.GetByProjectID(ctx, evt.ProjectID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if w == nil {
		s.reject(ctx, evt, nil, apperror.CodeWalletNotFound, n.ClientIP)
		return nil, apperror.ErrWalletNotFound()
	}
	if w.Currency != evt.Currency {
		s.metrics.depositRejected(apperror.CodeCurrencyMismatch)
		s.log.Warn().
			Str("event_id", evt.EventID).
			Str("wallet_currency", w.Currency).
			Str("currency", evt.Currency).
			Msg("deposit currency mismatch")
		return nil, apperror.ErrCurrencyMismatch(w.Currency, evt.Currency)
	}

	// 5. Apply
	res, err := s.mutator.Apply(ctx, Mutation{
		WalletID: w.ID,
		EventID:  evt.EventID,
		Type:     domain.EntryTypeDeposit,
		Reason:   "processor deposit",
		Actor:    domain.ActorPaymentProcessor,
		Plan: func(cur *domain.Wallet) (MutationPlan, error) {
			if !s.lifecycle.CanDeposit(cur.Status) {
				return MutationPlan{}, apperror.ErrWalletNotAdjustable(string(cur.Status))
			}
			plan := MutationPlan{Amount: evt.Amount}
			if cur.Status == domain.WalletStatusPending {
				if err := s.lifecycle.Validate(cur.Status, domain.WalletStatusActive); err != nil {
					return MutationPlan{}, err
				}
				plan.NextStatus = domain.WalletStatusActive
			}
			return plan, nil
		},
	})
	if err != nil {
		if apperror.HasCode(err, apperror.CodeWalletNotAdjustable) {
			s.reject(ctx, evt, w, apperror.CodeWalletNotAdjustable, n.ClientIP)
		}
		return nil, err
	}

	if res.Replayed {
		if res.Entry.Amount != evt.Amount {
			s.warnAmountMismatch(evt, res.Entry)
		}
	} else if w.Status == domain.WalletStatusPending && res.Wallet.Status == domain.WalletStatusActive {
		s.log.Info().Str("wallet_id", w.ID.String()).Msg("wallet activated by first deposit")
	}

	// 6. Cache
	s.remember(ctx, evt.EventID, res)

	return res, nil
}

func (s *WebhookProcessor) verify(n ports.DepositNotification) bool {
	if n.Signature == "" || len(n.RawBody) == 0 {
		return false
	}
	if n.KeyID != "" {
		secret, ok := s.keyring.Secret(n.KeyID)
		return ok && s.sigSvc.Verify(secret, n.RawBody, n.Signature)
	}
	for _, secret := range s.keyring.All() {
		if s.sigSvc.Verify(secret, n.RawBody, n.Signature) {
			return true
		}
	}
	return false
}

func parseDepositEvent(body []byte) (*ports.DepositEvent, error) {
	var evt ports.DepositEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, apperror.InvalidRequest("malformed deposit payload")
	}
	evt.EventID = strings.TrimSpace(evt.EventID)
	evt.ProjectID = strings.TrimSpace(evt.ProjectID)

	switch {
	case evt.EventID == "":
		return nil, apperror.InvalidRequest("event_id is required")
	case evt.ProjectID == "":
		return nil, apperror.InvalidRequest("project_id is required")
	case evt.Amount <= 0:
		return nil, apperror.InvalidRequest("amount must be positive")
	}

	cur, ok := normalizeCurrency(evt.Currency)
	if !ok {
		return nil, apperror.InvalidRequest("currency must be a 3-letter ISO code")
	}
	evt.Currency = cur
	return &evt, nil
}

func (s *WebhookProcessor) cachedResult(ctx context.Context, evt *ports.DepositEvent) *ports.MutationResult {
	if s.replay == nil {
		return nil
	}
	raw, err := s.replay.Get(ctx, evt.EventID)
	if err != nil {
		s.log.Warn().Err(err).Str("event_id", evt.EventID).Msg("deposit replay cache unavailable")
		return nil
	}
	if raw == nil {
		return nil
	}
	var cached cachedDeposit
	if err := json.Unmarshal(raw, &cached); err != nil || cached.Entry == nil || cached.Wallet == nil {
		return nil
	}
	if cached.Entry.Amount != evt.Amount {
		s.warnAmountMismatch(evt, cached.Entry)
	}
	s.metrics.replayed("cache")
	s.log.Info().Str("event_id", evt.EventID).Msg("duplicate deposit served from cache")
	return &ports.MutationResult{Wallet: cached.Wallet, Entry: cached.Entry, Replayed: true}
}

func (s *WebhookProcessor) replayRecorded(ctx context.Context, evt *ports.DepositEvent, entry *domain.LedgerEntry) (*ports.MutationResult, error) {
	if entry.Amount != evt.Amount {
		s.warnAmountMismatch(evt, entry)
	}
	w, err := s.wallets.GetByID(ctx, entry.WalletID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	s.metrics.replayed("ledger")
	s.log.Info().Str("event_id", evt.EventID).Str("wallet_id", entry.WalletID.String()).Msg("duplicate deposit, returning recorded entry")

	res := &ports.MutationResult{Wallet: w, Entry: entry, Replayed: true}
	s.remember(ctx, evt.EventID, res)
	return res, nil
}

func (s *WebhookProcessor) warnAmountMismatch(evt *ports.DepositEvent, entry *domain.LedgerEntry) {
	logger.SecurityReview(s.log.Warn()).
		Str("event_id", evt.EventID).
		Int64("recorded_amount", entry.Amount).
		Int64("replayed_amount", evt.Amount).
		Msg("deposit replay with different amount, keeping recorded entry")
}

// reject logs and audits a verified deposit that could not be applied.
// The processor still gets an acknowledgement; funds need manual follow-up.
func (s *WebhookProcessor) reject(ctx context.Context, evt *ports.DepositEvent, w *domain.Wallet, code, ip string) {
	s.metrics.depositRejected(code)

	ev := logger.ManualReconciliation(s.log.Warn()).
		Str("event_id", evt.EventID).
		Str("project_id", evt.ProjectID).
		Int64("amount", evt.Amount).
		Str("currency", evt.Currency).
		Str("reason", code)
	if w != nil {
		ev = ev.Str("wallet_id", w.ID.String()).Str("status", string(w.Status))
	}
	ev.Msg("deposit not applied")

	details, _ := json.Marshal(map[string]any{
		"event_id":   evt.EventID,
		"project_id": evt.ProjectID,
		"amount":     evt.Amount,
		"currency":   evt.Currency,
		"reason":     code,
	})
	entry := domain.NewAuditLog(domain.AuditActionDepositRejected, nil, domain.ActorPaymentProcessor, string(details))
	if w != nil {
		entry.WalletID = &w.ID
	}
	entry.IPAddress = ip
	s.audit.Log(ctx, entry)
}

func (s *WebhookProcessor) remember(ctx context.Context, eventID string, res *ports.MutationResult) {
	if s.replay == nil {
		return
	}
	raw, err := json.Marshal(cachedDeposit{Wallet: res.Wallet, Entry: res.Entry})
	if err != nil {
		return
	}
	if err := s.replay.Set(ctx, eventID, raw, depositReplayTTL); err != nil {
		s.log.Warn().Err(fmt.Errorf("cache deposit result: %w", err)).Str("event_id", eventID).Send()
	}
}
