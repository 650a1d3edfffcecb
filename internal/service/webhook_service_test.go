package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"escrow-ledger/internal/core/domain"
	"escrow-ledger/internal/core/ports"
	"escrow-ledger/internal/core/ports/mocks"
	"escrow-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testWebhookSecret = "whsec_test"

type webhookTestDeps struct {
	*mutatorTestDeps
	svc     *WebhookProcessor
	sigSvc  *HMACSignatureService
	replay  *mocks.MockIdempotencyCache
	audit   *mocks.MockAuditService
	keyring *StaticKeyring
}

func setupWebhook(t *testing.T) *webhookTestDeps {
	m := setupMutator(t)
	d := &webhookTestDeps{
		mutatorTestDeps: m,
		sigSvc:          NewHMACSignatureService(),
		replay:          mocks.NewMockIdempotencyCache(m.ctrl),
		audit:           mocks.NewMockAuditService(m.ctrl),
		keyring:         NewStaticKeyring(map[string]string{"k1": testWebhookSecret, "k0": "whsec_old"}, "k1"),
	}
	lifecycle := NewLifecycleService(m.mutator, d.audit, newTestLogger())
	d.svc = NewWebhookProcessor(d.keyring, d.sigSvc, m.walletRepo, m.ledgerRepo, d.replay,
		m.mutator, lifecycle, d.audit, m.metrics, newTestLogger())
	return d
}

func (d *webhookTestDeps) notification(t *testing.T, evt ports.DepositEvent, secret string) ports.DepositNotification {
	body, err := json.Marshal(evt)
	require.NoError(t, err)
	return ports.DepositNotification{
		RawBody:   body,
		Signature: d.sigSvc.Sign(secret, body),
		ClientIP:  "10.0.0.1",
	}
}

func TestWebhookProcessor_ProcessDeposit_ActivatesPendingWallet(t *testing.T) {
	d := setupWebhook(t)
	ctx := context.Background()
	w := activeWallet(0, 0)
	w.Status = domain.WalletStatusPending
	afterDelta := applied(*w, 50000)
	activated := afterDelta
	activated.Status, activated.Version = domain.WalletStatusActive, 2
	tx := &mockTx{}

	n := d.notification(t, ports.DepositEvent{EventID: "evt_100", ProjectID: "P1", Amount: 50000, Currency: "inr"}, testWebhookSecret)

	d.replay.EXPECT().Get(ctx, "evt_100").Return(nil, nil)
	d.ledgerRepo.EXPECT().GetByEventID(ctx, "evt_100").Return(nil, nil)
	d.walletRepo.EXPECT().GetByProjectID(ctx, "P1").Return(w, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDTx(ctx, tx, w.ID).Return(w, nil)
	d.ledgerRepo.EXPECT().Append(ctx, tx, gomock.Any()).Return(nil)
	d.walletRepo.EXPECT().ApplyDelta(ctx, tx, w.ID, int64(50000), int64(0)).Return(&afterDelta, nil)
	d.walletRepo.EXPECT().SetStatus(ctx, tx, w.ID, domain.WalletStatusActive, int64(1)).Return(&activated, nil)
	d.cache.EXPECT().Invalidate(ctx, "P1").Return(nil)
	d.replay.EXPECT().Set(ctx, "evt_100", gomock.Any(), depositReplayTTL).Return(nil)

	res, err := d.svc.ProcessDeposit(ctx, n)
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, domain.WalletStatusActive, res.Wallet.Status)
	assert.Equal(t, int64(50000), res.Wallet.Balance)
	assert.Equal(t, domain.EntryTypeDeposit, res.Entry.Type)
}

func TestWebhookProcessor_ProcessDeposit_InvalidSignature(t *testing.T) {
	d := setupWebhook(t)
	n := d.notification(t, ports.DepositEvent{EventID: "evt_1", ProjectID: "P1", Amount: 1, Currency: "INR"}, "wrong")

	_, err := d.svc.ProcessDeposit(context.Background(), n)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidSignature))
}

func TestWebhookProcessor_ProcessDeposit_TamperedBody(t *testing.T) {
	d := setupWebhook(t)
	n := d.notification(t, ports.DepositEvent{EventID: "evt_1", ProjectID: "P1", Amount: 1, Currency: "INR"}, testWebhookSecret)
	n.RawBody = []byte(`{"event_id":"evt_1","project_id":"P1","amount":100000,"currency":"INR"}`)

	_, err := d.svc.ProcessDeposit(context.Background(), n)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidSignature))
}

func TestWebhookProcessor_ProcessDeposit_KeyRotation(t *testing.T) {
	t.Run("old key without key id", func(t *testing.T) {
		d := setupWebhook(t)
		ctx := context.Background()
		n := d.notification(t, ports.DepositEvent{EventID: "evt_rot", ProjectID: "P9", Amount: 10, Currency: "INR"}, "whsec_old")

		d.replay.EXPECT().Get(ctx, "evt_rot").Return(nil, nil)
		d.ledgerRepo.EXPECT().GetByEventID(ctx, "evt_rot").Return(nil, nil)
		d.walletRepo.EXPECT().GetByProjectID(ctx, "P9").Return(nil, nil)
		d.audit.EXPECT().Log(ctx, gomock.Any())

		_, err := d.svc.ProcessDeposit(ctx, n)
		assert.True(t, apperror.HasCode(err, apperror.CodeWalletNotFound))
	})

	t.Run("named key must match", func(t *testing.T) {
		d := setupWebhook(t)
		n := d.notification(t, ports.DepositEvent{EventID: "evt_rot", ProjectID: "P9", Amount: 10, Currency: "INR"}, "whsec_old")
		n.KeyID = "k1"

		_, err := d.svc.ProcessDeposit(context.Background(), n)
		assert.True(t, apperror.HasCode(err, apperror.CodeInvalidSignature))
	})

	t.Run("unknown key id", func(t *testing.T) {
		d := setupWebhook(t)
		n := d.notification(t, ports.DepositEvent{EventID: "evt_rot", ProjectID: "P9", Amount: 10, Currency: "INR"}, testWebhookSecret)
		n.KeyID = "k7"

		_, err := d.svc.ProcessDeposit(context.Background(), n)
		assert.True(t, apperror.HasCode(err, apperror.CodeInvalidSignature))
	})
}

func TestWebhookProcessor_ProcessDeposit_InvalidPayload(t *testing.T) {
	tests := []struct {
		name string
		evt  ports.DepositEvent
	}{
		{"missing event id", ports.DepositEvent{ProjectID: "P1", Amount: 1, Currency: "INR"}},
		{"missing project", ports.DepositEvent{EventID: "e", Amount: 1, Currency: "INR"}},
		{"zero amount", ports.DepositEvent{EventID: "e", ProjectID: "P1", Currency: "INR"}},
		{"negative amount", ports.DepositEvent{EventID: "e", ProjectID: "P1", Amount: -5, Currency: "INR"}},
		{"bad currency", ports.DepositEvent{EventID: "e", ProjectID: "P1", Amount: 1, Currency: "RUPEE"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupWebhook(t)
			_, err := d.svc.ProcessDeposit(context.Background(), d.notification(t, tt.evt, testWebhookSecret))
			assert.True(t, apperror.HasCode(err, apperror.CodeInvalidRequest))
		})
	}

	t.Run("not json", func(t *testing.T) {
		d := setupWebhook(t)
		body := []byte("amount=5")
		n := ports.DepositNotification{RawBody: body, Signature: d.sigSvc.Sign(testWebhookSecret, body)}
		_, err := d.svc.ProcessDeposit(context.Background(), n)
		assert.True(t, apperror.HasCode(err, apperror.CodeInvalidRequest))
	})
}

func TestWebhookProcessor_ProcessDeposit_CacheReplay(t *testing.T) {
	d := setupWebhook(t)
	ctx := context.Background()
	w := activeWallet(50000, 2)
	entry := &domain.LedgerEntry{ID: uuid.New(), EventID: "evt_200", WalletID: w.ID, Amount: 50000, ResultingBalance: 50000}
	raw, _ := json.Marshal(cachedDeposit{Wallet: w, Entry: entry})

	n := d.notification(t, ports.DepositEvent{EventID: "evt_200", ProjectID: "P1", Amount: 50000, Currency: "INR"}, testWebhookSecret)
	d.replay.EXPECT().Get(ctx, "evt_200").Return(raw, nil)

	res, err := d.svc.ProcessDeposit(ctx, n)
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Equal(t, entry.ID, res.Entry.ID)
}

func TestWebhookProcessor_ProcessDeposit_LedgerReplayDifferentAmount(t *testing.T) {
	d := setupWebhook(t)
	ctx := context.Background()
	w := activeWallet(50000, 2)
	entry := &domain.LedgerEntry{ID: uuid.New(), EventID: "evt_300", WalletID: w.ID, Amount: 50000, ResultingBalance: 50000}

	n := d.notification(t, ports.DepositEvent{EventID: "evt_300", ProjectID: "P1", Amount: 99999, Currency: "INR"}, testWebhookSecret)

	d.replay.EXPECT().Get(ctx, "evt_300").Return(nil, errors.New("redis down"))
	d.ledgerRepo.EXPECT().GetByEventID(ctx, "evt_300").Return(entry, nil)
	d.walletRepo.EXPECT().GetByID(ctx, w.ID).Return(w, nil)
	d.replay.EXPECT().Set(ctx, "evt_300", gomock.Any(), depositReplayTTL).Return(nil)

	res, err := d.svc.ProcessDeposit(ctx, n)
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Equal(t, int64(50000), res.Entry.Amount)
	assert.Equal(t, int64(50000), res.Wallet.Balance)
}

func TestWebhookProcessor_ProcessDeposit_CurrencyMismatch(t *testing.T) {
	d := setupWebhook(t)
	ctx := context.Background()
	w := activeWallet(0, 1)

	n := d.notification(t, ports.DepositEvent{EventID: "evt_400", ProjectID: "P1", Amount: 100, Currency: "USD"}, testWebhookSecret)
	d.replay.EXPECT().Get(ctx, "evt_400").Return(nil, nil)
	d.ledgerRepo.EXPECT().GetByEventID(ctx, "evt_400").Return(nil, nil)
	d.walletRepo.EXPECT().GetByProjectID(ctx, "P1").Return(w, nil)

	_, err := d.svc.ProcessDeposit(ctx, n)
	assert.True(t, apperror.HasCode(err, apperror.CodeCurrencyMismatch))
}

func TestWebhookProcessor_ProcessDeposit_ClosedWallet(t *testing.T) {
	d := setupWebhook(t)
	ctx := context.Background()
	w := activeWallet(100, 5)
	w.Status = domain.WalletStatusClosed
	tx := &mockTx{}

	n := d.notification(t, ports.DepositEvent{EventID: "evt_500", ProjectID: "P1", Amount: 100, Currency: "INR"}, testWebhookSecret)
	d.replay.EXPECT().Get(ctx, "evt_500").Return(nil, nil)
	d.ledgerRepo.EXPECT().GetByEventID(ctx, "evt_500").Return(nil, nil)
	d.walletRepo.EXPECT().GetByProjectID(ctx, "P1").Return(w, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDTx(ctx, tx, w.ID).Return(w, nil)
	d.audit.EXPECT().Log(ctx, gomock.Any()).Do(func(_ context.Context, e *domain.AuditLog) {
		assert.Equal(t, domain.AuditActionDepositRejected, e.Action)
		assert.Equal(t, &w.ID, e.WalletID)
	})

	_, err := d.svc.ProcessDeposit(ctx, n)
	assert.True(t, apperror.HasCode(err, apperror.CodeWalletNotAdjustable))
	assert.Equal(t, int32(0), tx.commits.Load())
}

func TestWebhookProcessor_ProcessDeposit_FrozenWalletStaysFrozen(t *testing.T) {
	d := setupWebhook(t)
	ctx := context.Background()
	w := activeWallet(100, 5)
	w.Status = domain.WalletStatusFrozen
	updated := applied(*w, 250)

	n := d.notification(t, ports.DepositEvent{EventID: "evt_600", ProjectID: "P1", Amount: 250, Currency: "INR"}, testWebhookSecret)
	d.replay.EXPECT().Get(ctx, "evt_600").Return(nil, nil)
	d.ledgerRepo.EXPECT().GetByEventID(ctx, "evt_600").Return(nil, nil)
	d.walletRepo.EXPECT().GetByProjectID(ctx, "P1").Return(w, nil)
	d.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil)
	d.walletRepo.EXPECT().GetByIDTx(ctx, gomock.Any(), w.ID).Return(w, nil)
	d.ledgerRepo.EXPECT().Append(ctx, gomock.Any(), gomock.Any()).Return(nil)
	d.walletRepo.EXPECT().ApplyDelta(ctx, gomock.Any(), w.ID, int64(250), int64(5)).Return(&updated, nil)
	d.cache.EXPECT().Invalidate(ctx, "P1").Return(nil)
	d.replay.EXPECT().Set(ctx, "evt_600", gomock.Any(), depositReplayTTL).Return(nil)

	res, err := d.svc.ProcessDeposit(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, domain.WalletStatusFrozen, res.Wallet.Status)
	assert.Equal(t, int64(350), res.Wallet.Balance)
}

func TestWebhookProcessor_ProcessDeposit_ConcurrentDuplicateLosesToLedger(t *testing.T) {
	d := setupWebhook(t)
	ctx := context.Background()
	w := activeWallet(0, 1)
	recorded := &domain.LedgerEntry{ID: uuid.New(), EventID: "evt_700", WalletID: w.ID, Amount: 10}
	credited := applied(*w, 10)

	n := d.notification(t, ports.DepositEvent{EventID: "evt_700", ProjectID: "P1", Amount: 10, Currency: "INR"}, testWebhookSecret)
	d.replay.EXPECT().Get(ctx, "evt_700").Return(nil, nil)
	gomock.InOrder(
		d.ledgerRepo.EXPECT().GetByEventID(ctx, "evt_700").Return(nil, nil),
		d.ledgerRepo.EXPECT().GetByEventID(ctx, "evt_700").Return(recorded, nil),
	)
	d.walletRepo.EXPECT().GetByProjectID(ctx, "P1").Return(w, nil)
	d.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil)
	d.walletRepo.EXPECT().GetByIDTx(ctx, gomock.Any(), w.ID).Return(w, nil)
	d.ledgerRepo.EXPECT().Append(ctx, gomock.Any(), gomock.Any()).Return(domain.ErrDuplicateEvent)
	d.walletRepo.EXPECT().GetByID(ctx, w.ID).Return(&credited, nil)
	d.replay.EXPECT().Set(ctx, "evt_700", gomock.Any(), depositReplayTTL).Return(nil)

	res, err := d.svc.ProcessDeposit(ctx, n)
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Equal(t, recorded.ID, res.Entry.ID)
}
