package service

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"escrow-ledger/internal/core/domain"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// mockTx implements pgx.Tx for testing
type mockTx struct {
	pgx.Tx
	commits   atomic.Int32
	rollbacks atomic.Int32
}

func (m *mockTx) Rollback(_ context.Context) error { m.rollbacks.Add(1); return nil }
func (m *mockTx) Commit(_ context.Context) error   { m.commits.Add(1); return nil }

// noSleep skips retry backoff in tests.
func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

// applied returns w moved by amount; fixtures never overflow.
func applied(w domain.Wallet, amount int64) domain.Wallet {
	next, err := w.Apply(amount)
	if err != nil {
		panic(err)
	}
	return next
}
