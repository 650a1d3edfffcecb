package service

import (
	"context"
	"sync"
	"time"

	"escrow-ledger/internal/core/domain"
	"escrow-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

const auditPersistTimeout = 5 * time.Second

// AuditService implements ports.AuditService.
type AuditService struct {
	repo ports.AuditRepository
	log  zerolog.Logger
	wg   sync.WaitGroup
}

// NewAuditService creates a new audit service.
// If repo is nil, audit logs are only written to the logger.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) *AuditService {
	return &AuditService{repo: repo, log: log}
}

// Log records an audit entry asynchronously (fire-and-forget).
func (s *AuditService) Log(_ context.Context, entry *domain.AuditLog) {
	if entry == nil {
		return
	}

	ev := s.log.Info().
		Str("audit_id", entry.ID.String()).
		Str("action", string(entry.Action)).
		Str("actor_id", entry.ActorID).
		Str("ip", entry.IPAddress)
	if entry.WalletID != nil {
		ev = ev.Str("wallet_id", entry.WalletID.String())
	}
	if entry.Details != "" {
		ev = ev.RawJSON("details", []byte(entry.Details))
	}
	ev.Msg("audit")

	if s.repo == nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), auditPersistTimeout)
		defer cancel()
		if err := s.repo.Create(ctx, entry); err != nil {
			s.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("failed to persist audit log")
		}
	}()
}

// Wait blocks until in-flight audit writes finish. Called on shutdown.
func (s *AuditService) Wait() {
	s.wg.Wait()
}
