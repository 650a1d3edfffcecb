package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from WalletStatus
		to   WalletStatus
		want bool
	}{
		{"pending to active", WalletStatusPending, WalletStatusActive, true},
		{"active to frozen", WalletStatusActive, WalletStatusFrozen, true},
		{"frozen to active", WalletStatusFrozen, WalletStatusActive, true},
		{"active to closed", WalletStatusActive, WalletStatusClosed, true},
		{"frozen to closed", WalletStatusFrozen, WalletStatusClosed, true},
		{"pending to frozen", WalletStatusPending, WalletStatusFrozen, false},
		{"pending to closed", WalletStatusPending, WalletStatusClosed, false},
		{"active to pending", WalletStatusActive, WalletStatusPending, false},
		{"closed to active", WalletStatusClosed, WalletStatusActive, false},
		{"closed to frozen", WalletStatusClosed, WalletStatusFrozen, false},
		{"active to active", WalletStatusActive, WalletStatusActive, false},
		{"not_created to pending", WalletStatusNotCreated, WalletStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestWalletStatus_Gates(t *testing.T) {
	tests := []struct {
		status     WalletStatus
		adjustable bool
		deposits   bool
		terminal   bool
	}{
		{WalletStatusPending, false, true, false},
		{WalletStatusActive, true, true, false},
		{WalletStatusFrozen, false, true, false},
		{WalletStatusClosed, false, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.adjustable, tt.status.Adjustable())
			assert.Equal(t, tt.deposits, tt.status.AcceptsDeposits())
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestWalletStatus_Valid(t *testing.T) {
	assert.True(t, WalletStatusFrozen.Valid())
	assert.False(t, WalletStatus("suspended").Valid())
}

func TestNewWallet(t *testing.T) {
	quote := int64(1500000)
	w := NewWallet("P1", "INR", &quote)

	assert.Equal(t, "P1", w.ProjectID)
	assert.Equal(t, "INR", w.Currency)
	assert.Equal(t, int64(0), w.Balance)
	assert.Equal(t, int64(0), w.Version)
	assert.Equal(t, WalletStatusPending, w.Status)
	assert.Equal(t, &quote, w.QuoteAmount)
}

func TestWallet_Apply(t *testing.T) {
	w := Wallet{Balance: 1000, Version: 3}

	credited, err := w.Apply(500)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), credited.Balance)
	assert.Equal(t, int64(500), credited.Metadata.TotalDeposited)
	assert.Equal(t, int64(4), credited.Version)

	debited, err := credited.Apply(-200)
	require.NoError(t, err)
	assert.Equal(t, int64(1300), debited.Balance)
	assert.Equal(t, int64(200), debited.Metadata.TotalWithdrawn)
	assert.Equal(t, debited.Balance, debited.Metadata.TotalDeposited-debited.Metadata.TotalWithdrawn+1000)

	// Apply works on a copy.
	assert.Equal(t, int64(1000), w.Balance)
}

func TestWallet_Apply_Overflow(t *testing.T) {
	tests := []struct {
		name   string
		wallet Wallet
		amount int64
	}{
		{"min int64 amount", Wallet{Balance: 10}, math.MinInt64},
		{"balance above max", Wallet{Balance: math.MaxInt64}, 1},
		{"balance below min", Wallet{Balance: math.MinInt64 + 1}, -2},
		{"deposited total", Wallet{Balance: 0, Metadata: WalletMetadata{TotalDeposited: math.MaxInt64}}, 1},
		{"withdrawn total", Wallet{Balance: 0, Metadata: WalletMetadata{TotalWithdrawn: math.MaxInt64}}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := tt.wallet.Apply(tt.amount)
			assert.ErrorIs(t, err, ErrBalanceOverflow)
			assert.Equal(t, Wallet{}, next)
		})
	}
}

func TestEntryType_Constants(t *testing.T) {
	assert.Equal(t, EntryType("deposit"), EntryTypeDeposit)
	assert.Equal(t, EntryType("credit_adjustment"), EntryTypeCreditAdjustment)
	assert.Equal(t, EntryType("debit_adjustment"), EntryTypeDebitAdjustment)
	assert.Equal(t, EntryType("withdrawal"), EntryTypeWithdrawal)
}

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleAdmin.Valid())
	assert.True(t, RoleViewer.Valid())
	assert.False(t, Role("root").Valid())
}
