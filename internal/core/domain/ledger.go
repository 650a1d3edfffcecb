package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntryType is the kind of balance-affecting event.
type EntryType string

const (
	EntryTypeDeposit          EntryType = "deposit"
	EntryTypeCreditAdjustment EntryType = "credit_adjustment"
	EntryTypeDebitAdjustment  EntryType = "debit_adjustment"
	EntryTypeWithdrawal       EntryType = "withdrawal"
)

// ActorPaymentProcessor identifies deposits applied from processor webhooks.
const ActorPaymentProcessor = "system:payment-processor"

// LedgerEntry is an immutable record of one accepted balance-affecting event.
// EventID is unique across the ledger.
type LedgerEntry struct {
	ID               uuid.UUID `json:"id"`
	EventID          string    `json:"event_id"`
	WalletID         uuid.UUID `json:"wallet_id"`
	Type             EntryType `json:"type"`
	Amount           int64     `json:"amount"` // signed, minor units
	ResultingBalance int64     `json:"resulting_balance"`
	Reason           string    `json:"reason,omitempty"`
	Actor            string    `json:"actor"`
	CreatedAt        time.Time `json:"created_at"`
}

// IsCredit returns true if the entry increases the balance.
func (e *LedgerEntry) IsCredit() bool {
	return e.Amount > 0
}
