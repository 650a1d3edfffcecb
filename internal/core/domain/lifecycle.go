package domain

// transitions lists every legal status edge. pending -> active is only
// reachable through a first deposit; closed has no outgoing edges.
var transitions = map[WalletStatus][]WalletStatus{
	WalletStatusPending: {WalletStatusActive},
	WalletStatusActive:  {WalletStatusFrozen, WalletStatusClosed},
	WalletStatusFrozen:  {WalletStatusActive, WalletStatusClosed},
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to WalletStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for statuses with no outgoing transitions.
func (s WalletStatus) IsTerminal() bool {
	return s == WalletStatusClosed
}

// Adjustable reports whether administrative credits and debits are allowed.
func (s WalletStatus) Adjustable() bool {
	return s == WalletStatusActive
}

// AcceptsDeposits reports whether processor deposits may be recorded.
// Frozen wallets still record received funds.
func (s WalletStatus) AcceptsDeposits() bool {
	return s == WalletStatusPending || s == WalletStatusActive || s == WalletStatusFrozen
}
