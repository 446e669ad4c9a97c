package provider

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts processor calls by provider and response class.
type Metrics struct {
	mRequests *prometheus.CounterVec
	mDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		mRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "merchant_provider_requests_total",
			Help: "Requests sent to payment processors.",
		}, []string{"provider", "code"}),
		mDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "merchant_provider_request_duration_seconds",
			Help:    "Duration of a single processor request.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 8),
		}, []string{"provider"}),
	}
}

func (m *Metrics) observe(ex *Exchange) {
	code := "error"
	if ex.StatusCode != 0 {
		code = strconv.Itoa(ex.StatusCode)
	}
	m.mRequests.WithLabelValues(string(ex.Provider), code).Inc()
	m.mDuration.WithLabelValues(string(ex.Provider)).Observe(ex.Duration.Seconds())
}

func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.mRequests.Describe(ch)
	m.mDuration.Describe(ch)
}

func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.mRequests.Collect(ch)
	m.mDuration.Collect(ch)
}

// check interfaces
var (
	_ prometheus.Collector = (*Metrics)(nil)
)
