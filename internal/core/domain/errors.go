package domain

import "errors"

// Store-level sentinels. Services translate these into apperror values.
var (
	ErrWalletExists    = errors.New("wallet already exists for project")
	ErrVersionConflict = errors.New("wallet version conflict")
	ErrDuplicateEvent  = errors.New("ledger event already recorded")
	ErrBalanceOverflow = errors.New("amount overflows wallet balance")
)
