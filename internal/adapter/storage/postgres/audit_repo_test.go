package postgres

import (
	"context"
	"errors"
	"testing"

	"escrow-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAuditRepo(mock)
	walletID := uuid.New()
	entry := domain.NewAuditLog(domain.AuditActionWalletAdjust, &walletID, "ops-1", `{"amount":-500}`)
	entry.IPAddress = "10.0.0.1"

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(entry.ID, entry.WalletID, "ops-1", "WALLET_ADJUST", `{"amount":-500}`, "10.0.0.1", entry.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepo_Create_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAuditRepo(mock)
	entry := domain.NewAuditLog(domain.AuditActionReconcileDrift, nil, domain.ActorReconciler, "")

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(anyArgs(7)...).
		WillReturnError(errors.New("disk full"))

	err = repo.Create(context.Background(), entry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}
