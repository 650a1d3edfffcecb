package integration

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConcurrentDeposits fires distinct deposits at one wallet at the same
// time. Every deposit must land exactly once and the balance must equal the
// ledger sum afterwards.
func TestConcurrentDeposits(t *testing.T) {
	app := newTestApp(t)
	w := app.createWallet(t, "P1")

	concurrency := 100
	amount := int64(2500)

	var wg sync.WaitGroup
	var successCount atomic.Int64
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			resp := app.deposit(t, fmt.Sprintf("evt_concurrent_%d", idx), "P1", amount, "INR")
			if resp.Status == http.StatusOK {
				successCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	t.Logf("Results: %d/%d deposits applied, %d version conflicts retried", successCount.Load(), concurrency, app.store.conflicts.Load())
	assert.Equal(t, int64(concurrency), successCount.Load())

	view := app.balance(t, "P1")
	assert.Equal(t, int64(concurrency)*amount, view.Balance)
	assert.Equal(t, int64(concurrency)*amount, view.Metadata.TotalDeposited)

	entries := app.store.entries(parseID(t, w.ID))
	assert.Len(t, entries, concurrency)
}

// TestConcurrentDuplicateDeliveries redelivers one event from many goroutines.
// Exactly one delivery credits the wallet; the rest replay it.
func TestConcurrentDuplicateDeliveries(t *testing.T) {
	app := newTestApp(t)
	w := app.createWallet(t, "P1")

	concurrency := 50
	var wg sync.WaitGroup
	var applied, replayed, failed atomic.Int64

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := app.deposit(t, "evt_dup", "P1", 7000, "INR")
			if resp.Status != http.StatusOK {
				failed.Add(1)
				return
			}
			if decode[mutationBody](t, resp.Data).Replayed {
				replayed.Add(1)
			} else {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()

	t.Logf("Results: applied=%d replayed=%d failed=%d", applied.Load(), replayed.Load(), failed.Load())
	assert.Equal(t, int64(1), applied.Load())
	assert.Equal(t, int64(concurrency-1), replayed.Load())
	assert.Zero(t, failed.Load())

	assert.Equal(t, int64(7000), app.balance(t, "P1").Balance)
	assert.Len(t, app.store.entries(parseID(t, w.ID)), 1)
}

// TestConcurrentWithdrawals_NoOverdraw races withdrawals that together exceed
// the balance. The committed total never goes below zero.
func TestConcurrentWithdrawals_NoOverdraw(t *testing.T) {
	app := newTestApp(t)
	w := app.createWallet(t, "P1")
	require.Equal(t, http.StatusOK, app.deposit(t, "evt_fund", "P1", 1000, "INR").Status)

	concurrency := 20
	var wg sync.WaitGroup
	var successCount, insufficientCount atomic.Int64

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			body := []byte(fmt.Sprintf(`{"amount":100,"reason":"payout %d"}`, idx))
			resp := app.call(t, http.MethodPost, "/wallet/"+w.ID+"/withdraw", app.adminToken, body, nil)
			switch resp.Status {
			case http.StatusOK:
				successCount.Add(1)
			case http.StatusUnprocessableEntity:
				insufficientCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	t.Logf("Results: %d success, %d insufficient", successCount.Load(), insufficientCount.Load())
	assert.Equal(t, int64(10), successCount.Load())
	assert.Equal(t, int64(10), insufficientCount.Load())

	view := app.balance(t, "P1")
	assert.Equal(t, int64(0), view.Balance)
	assert.Equal(t, int64(1000), view.Metadata.TotalWithdrawn)
}

// TestConcurrentDeposits_SurviveVersionConflicts injects compare-and-set
// failures while deposits race. Retries must converge on the right balance.
func TestConcurrentDeposits_SurviveVersionConflicts(t *testing.T) {
	app := newTestApp(t)
	w := app.createWallet(t, "P1")
	app.store.casFailures.Store(15)

	concurrency := 20
	var wg sync.WaitGroup
	var successCount atomic.Int64
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if app.deposit(t, fmt.Sprintf("evt_cas_%d", idx), "P1", 100, "INR").Status == http.StatusOK {
				successCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(concurrency), successCount.Load())
	assert.LessOrEqual(t, app.store.casFailures.Load(), int32(0))
	assert.Equal(t, int64(concurrency)*100, app.balance(t, "P1").Balance)

	resp := app.call(t, http.MethodPost, "/wallet/reconcile?wallet_id="+w.ID, app.adminToken, nil, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, string(resp.Data), `"drift":0`)
}
