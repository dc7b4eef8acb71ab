package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics instruments the verify/settle endpoints.
type metrics struct {
	registry *prometheus.Registry

	verifyTotal   *prometheus.CounterVec
	settleTotal   *prometheus.CounterVec
	requestLength *prometheus.HistogramVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		verifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "x402",
			Name:      "verify_total",
			Help:      "Verification requests by outcome.",
		}, []string{"network", "result"}),
		settleTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "x402",
			Name:      "settle_total",
			Help:      "Settlement requests by outcome.",
		}, []string{"network", "result"}),
		requestLength: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "x402",
			Name:      "request_duration_seconds",
			Help:      "Facilitator endpoint latency.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"endpoint"}),
	}

	m.registry.MustRegister(m.verifyTotal, m.settleTotal, m.requestLength)
	return m
}

func (m *metrics) observeVerify(network string, valid bool, elapsed time.Duration) {
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.verifyTotal.WithLabelValues(network, result).Inc()
	m.requestLength.WithLabelValues("verify").Observe(elapsed.Seconds())
}

func (m *metrics) observeSettle(network string, success bool, elapsed time.Duration) {
	result := "failed"
	if success {
		result = "success"
	}
	m.settleTotal.WithLabelValues(network, result).Inc()
	m.requestLength.WithLabelValues("settle").Observe(elapsed.Seconds())
}
