package service

import (
	"testing"

	"escrow-ledger/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.mutationApplied(domain.EntryTypeDeposit, 50000)
	m.mutationApplied(domain.EntryTypeDebitAdjustment, -2000)
	m.casRetried(domain.EntryTypeDeposit)
	m.contended(domain.EntryTypeDeposit)
	m.replayed("ledger")
	m.depositRejected("WAL_001")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.mutations.WithLabelValues("deposit")))
	assert.Equal(t, 2000.0, testutil.ToFloat64(m.amount.WithLabelValues("debit_adjustment")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.casRetries.WithLabelValues("deposit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.contention.WithLabelValues("deposit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.replays.WithLabelValues("ledger")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejections.WithLabelValues("WAL_001")))
}

func TestMetrics_ReconcileDriftGauge(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.reconciled("w-1", 40, "healed")
	assert.Equal(t, 40.0, testutil.ToFloat64(m.reconcileDrift.WithLabelValues("w-1")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.reconcileDrift))

	m.reconciled("w-1", 0, "clean")
	assert.Equal(t, 0, testutil.CollectAndCount(m.reconcileDrift))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconcileRuns.WithLabelValues("clean")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.mutationApplied(domain.EntryTypeDeposit, 1)
		m.casRetried(domain.EntryTypeDeposit)
		m.contended(domain.EntryTypeDeposit)
		m.replayed("cache")
		m.depositRejected("SEC_002")
		m.reconciled("w", 1, "drift")
	})
}
