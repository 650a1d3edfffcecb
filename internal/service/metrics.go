package service

import (
	"escrow-ledger/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the ledger's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	mutations      *prometheus.CounterVec
	amount         *prometheus.CounterVec
	replays        *prometheus.CounterVec
	casRetries     *prometheus.CounterVec
	contention     *prometheus.CounterVec
	rejections     *prometheus.CounterVec
	reconcileDrift *prometheus.GaugeVec
	reconcileRuns  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "escrow", Name: "ledger_mutations_total",
			Help: "Applied balance mutations by entry type.",
		}, []string{"type"}),
		amount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "escrow", Name: "ledger_amount_minor_total",
			Help: "Absolute minor-unit amount applied by entry type.",
		}, []string{"type"}),
		replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "escrow", Name: "ledger_replays_total",
			Help: "Mutations answered from an already recorded event.",
		}, []string{"source"}),
		casRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "escrow", Name: "wallet_cas_retries_total",
			Help: "Version conflicts that were retried.",
		}, []string{"type"}),
		contention: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "escrow", Name: "wallet_contention_total",
			Help: "Mutations abandoned after exhausting retries.",
		}, []string{"type"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "escrow", Name: "deposit_rejections_total",
			Help: "Deposit notifications not applied, by reason code.",
		}, []string{"code"}),
		reconcileDrift: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "escrow", Name: "reconcile_drift_minor",
			Help: "Ledger sum minus balance found by the last check of a drifted wallet.",
		}, []string{"wallet_id"}),
		reconcileRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "escrow", Name: "reconcile_checks_total",
			Help: "Wallet reconciliation checks by outcome.",
		}, []string{"outcome"}),
	}

	if reg != nil {
		reg.MustRegister(m.mutations, m.amount, m.replays, m.casRetries,
			m.contention, m.rejections, m.reconcileDrift, m.reconcileRuns)
	}
	return m
}

func (m *Metrics) mutationApplied(t domain.EntryType, amount int64) {
	if m == nil {
		return
	}
	if amount < 0 {
		amount = -amount
	}
	m.mutations.WithLabelValues(string(t)).Inc()
	m.amount.WithLabelValues(string(t)).Add(float64(amount))
}

func (m *Metrics) replayed(source string) {
	if m == nil {
		return
	}
	m.replays.WithLabelValues(source).Inc()
}

func (m *Metrics) casRetried(t domain.EntryType) {
	if m == nil {
		return
	}
	m.casRetries.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) contended(t domain.EntryType) {
	if m == nil {
		return
	}
	m.contention.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) depositRejected(code string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(code).Inc()
}

func (m *Metrics) reconciled(walletID string, drift int64, outcome string) {
	if m == nil {
		return
	}
	m.reconcileRuns.WithLabelValues(outcome).Inc()
	if drift != 0 {
		m.reconcileDrift.WithLabelValues(walletID).Set(float64(drift))
	} else {
		m.reconcileDrift.DeleteLabelValues(walletID)
	}
}
