package router

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors exposed by the router.
type Metrics struct {
	requests    *prometheus.CounterVec
	requestErrs *prometheus.CounterVec
	members     prometheus.Gauge
}

// NewMetrics registers router metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ringkv_router_requests_total",
			Help: "Client requests forwarded by the router, by op and owning shard.",
		}, []string{"op", "shard"}),
		requestErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ringkv_router_request_errors_total",
			Help: "Forwarded requests that returned an error.",
		}, []string{"op", "shard"}),
		members: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ringkv_router_ring_members",
			Help: "Current number of shards in the ring.",
		}),
	}
	reg.MustRegister(m.requests, m.requestErrs, m.members)
	return m
}

// ObserveRequest records one forwarded request.
func (m *Metrics) ObserveRequest(op, shardID string, ok bool) {
	m.requests.WithLabelValues(op, shardID).Inc()
	if !ok {
		m.requestErrs.WithLabelValues(op, shardID).Inc()
	}
}

// SetMembers records the current ring member count.
func (m *Metrics) SetMembers(n int) {
	m.members.Set(float64(n))
}
