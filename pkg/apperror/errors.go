package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes. Callers and tests assert on these rather than HTTP status.
const (
	CodeInvalidRequest        = "VAL_001"
	CodePayloadTooLarge       = "VAL_002"
	CodeInsufficientFunds     = "PAY_001"
	CodeInvalidSignature      = "SEC_002"
	CodeInvalidToken          = "AUTH_003"
	CodeForbidden             = "AUTH_005"
	CodeWalletNotFound        = "WAL_001"
	CodeWalletExists          = "WAL_002"
	CodeWalletNotAdjustable   = "WAL_003"
	CodeIllegalTransition     = "WAL_004"
	CodeVersionConflict       = "WAL_005"
	CodeContention            = "WAL_006"
	CodeCurrencyMismatch      = "WAL_007"
	CodeReconciliationAnomaly = "REC_001"
	CodeRateLimitExceeded     = "RATE_001"
	CodeInternal              = "SYS_001"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// HasCode reports whether err is (or wraps) an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// ---- Validation (VAL / PAY) ----

// InvalidRequest returns a synchronous input validation error.
func InvalidRequest(message string) *AppError {
	return New(CodeInvalidRequest, message, http.StatusBadRequest)
}

func ErrPayloadTooLarge(limit int64) *AppError {
	return New(CodePayloadTooLarge, fmt.Sprintf("Request body exceeds %d bytes", limit), http.StatusRequestEntityTooLarge)
}

func ErrInsufficientFunds() *AppError {
	return New(CodeInsufficientFunds, "Insufficient balance in wallet", http.StatusUnprocessableEntity)
}

func ErrCurrencyMismatch(walletCurrency, got string) *AppError {
	return New(CodeCurrencyMismatch,
		fmt.Sprintf("Currency %s does not match wallet currency %s", got, walletCurrency),
		http.StatusBadRequest)
}

// ---- Security & Authentication (SEC / AUTH) ----

func ErrInvalidSignature() *AppError {
	return New(CodeInvalidSignature, "Invalid signature", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New(CodeInvalidToken, "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New(CodeForbidden, "Insufficient privileges", http.StatusForbidden)
}

// ---- Wallet state (WAL) ----

func ErrWalletNotFound() *AppError {
	return New(CodeWalletNotFound, "Wallet not found", http.StatusNotFound)
}

func ErrWalletExists() *AppError {
	return New(CodeWalletExists, "Wallet already exists for project", http.StatusConflict)
}

func ErrWalletNotAdjustable(status string) *AppError {
	return New(CodeWalletNotAdjustable,
		fmt.Sprintf("Wallet in status %s does not accept this operation", status),
		http.StatusConflict)
}

func ErrIllegalTransition(from, to string) *AppError {
	return New(CodeIllegalTransition,
		fmt.Sprintf("Illegal status transition from %s to %s", from, to),
		http.StatusConflict)
}

func ErrVersionConflict(err error) *AppError {
	return Wrap(CodeVersionConflict, "Wallet was modified concurrently", http.StatusConflict, err)
}

func ErrContention(err error) *AppError {
	return Wrap(CodeContention, "Wallet is busy, retry later", http.StatusServiceUnavailable, err)
}

// ---- Reconciliation (REC) ----

func ErrReconciliationAnomaly(walletID string, drift int64) *AppError {
	return New(CodeReconciliationAnomaly,
		fmt.Sprintf("Ledger sum differs from balance for wallet %s by %d", walletID, drift),
		http.StatusInternalServerError)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimitExceeded, "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap(CodeInternal, "Internal database error", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}
