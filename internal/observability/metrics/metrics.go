package metrics

import "github.com/prometheus/client_golang/prometheus"

// UpstreamMetrics exposes counters/histograms for calls to the external
// clinical API.
type UpstreamMetrics struct {
	callsTotal  *prometheus.CounterVec
	callLatency *prometheus.HistogramVec
}

func NewUpstreamMetrics(reg prometheus.Registerer) *UpstreamMetrics {
	m := &UpstreamMetrics{
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salus",
			Subsystem: "endotools",
			Name:      "calls_total",
			Help:      "Total calls to the Endotools API",
		}, []string{"operation", "outcome"}),
		callLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "salus",
			Subsystem: "endotools",
			Name:      "call_latency_seconds",
			Help:      "Latency of Endotools API calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.callsTotal, m.callLatency)
	return m
}

func (m *UpstreamMetrics) ObserveCall(operation, outcome string) {
	if m == nil {
		return
	}
	m.callsTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *UpstreamMetrics) ObserveLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.callLatency.WithLabelValues(operation).Observe(seconds)
}
