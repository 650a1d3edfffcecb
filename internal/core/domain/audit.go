package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionWalletCreate    AuditAction = "WALLET_CREATE"
	AuditActionWalletAdjust    AuditAction = "WALLET_ADJUST"
	AuditActionWalletWithdraw  AuditAction = "WALLET_WITHDRAW"
	AuditActionWalletStatus    AuditAction = "WALLET_STATUS"
	AuditActionDepositRejected AuditAction = "DEPOSIT_REJECTED"
	AuditActionReconcileDrift  AuditAction = "RECONCILE_DRIFT"
	AuditActionReconcileHeal   AuditAction = "RECONCILE_HEAL"
	AuditActionAccessDenied    AuditAction = "ACCESS_DENIED"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID        uuid.UUID   `json:"id"`
	WalletID  *uuid.UUID  `json:"wallet_id,omitempty"`
	ActorID   string      `json:"actor_id"`
	Action    AuditAction `json:"action"`
	Details   string      `json:"details,omitempty"` // JSON string
	IPAddress string      `json:"ip_address,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewAuditLog builds an audit entry stamped with a fresh id and the current time.
func NewAuditLog(action AuditAction, walletID *uuid.UUID, actorID, details string) *AuditLog {
	return &AuditLog{
		ID:        uuid.New(),
		WalletID:  walletID,
		ActorID:   actorID,
		Action:    action,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
}
