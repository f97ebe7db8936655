package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics exposes counters/histograms for credential resolution and upstream calls.
type GatewayMetrics struct {
	credentialTotal *prometheus.CounterVec
	upstreamTotal   *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	velocityBlocked *prometheus.CounterVec
}

func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	m := &GatewayMetrics{
		credentialTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "bff",
			Name:      "credential_resolutions_total",
			Help:      "Inbound requests by the credential source that authenticated them",
		}, []string{"source"}),
		upstreamTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "bff",
			Name:      "upstream_requests_total",
			Help:      "Outbound backend calls by endpoint and status class",
		}, []string{"backend", "endpoint", "status_class"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "telehealth",
			Subsystem: "bff",
			Name:      "upstream_latency_seconds",
			Help:      "Latency of outbound backend calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),
		velocityBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "payments",
			Name:      "velocity_blocked_total",
			Help:      "Payment operations rejected by velocity limits",
		}, []string{"check"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.credentialTotal, m.upstreamTotal, m.upstreamLatency, m.velocityBlocked)
	return m
}

// ObserveCredentialSource implements auth.SourceObserver.
func (m *GatewayMetrics) ObserveCredentialSource(source string) {
	if m == nil {
		return
	}
	m.credentialTotal.WithLabelValues(source).Inc()
}

// ObserveUpstream records one backend call. status 0 means the call never got a response.
func (m *GatewayMetrics) ObserveUpstream(backend, endpoint string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.upstreamTotal.WithLabelValues(backend, endpoint, statusClass(status)).Inc()
	m.upstreamLatency.WithLabelValues(backend).Observe(seconds)
}

func (m *GatewayMetrics) ObserveVelocityBlocked(check string) {
	if m == nil {
		return
	}
	m.velocityBlocked.WithLabelValues(check).Inc()
}

func statusClass(status int) string {
	if status <= 0 {
		return "transport_error"
	}
	return strconv.Itoa(status/100) + "xx"
}
