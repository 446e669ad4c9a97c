package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/motforex/merchant"
)

const (
	outcomeCreated     = "created"
	outcomeReturned    = "returned"
	outcomeRegenerated = "regenerated"
	outcomeExpired     = "expired"
	outcomeExecuted    = "executed"
	outcomeExecFailed  = "execution_failed"
	outcomeFailed      = "failed"
	outcomeUnchanged   = "unchanged"
	outcomeLostRace    = "lost_race"
	outcomeProviderErr = "provider_error"
)

// Metrics counts reconciliation outcomes per merchant method.
type Metrics struct {
	mOutcomes *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		mOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "merchant_reconciler_outcomes_total",
			Help: "Outcomes of invoice reconciliation operations.",
		}, []string{"method", "operation", "outcome"}),
	}
}

func (m *Metrics) inc(method merchant.MerchantMethod, operation, outcome string) {
	if m == nil {
		return
	}
	m.mOutcomes.WithLabelValues(string(method), operation, outcome).Inc()
}

func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.mOutcomes.Describe(ch)
}

func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.mOutcomes.Collect(ch)
}

// check interfaces
var (
	_ prometheus.Collector = (*Metrics)(nil)
)
