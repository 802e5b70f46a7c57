package shard

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors exposed by a shard. All metrics
// are labeled by shard id so a single registry can host many shards.
type Metrics struct {
	ops           *prometheus.CounterVec
	opErrors      *prometheus.CounterVec
	flushDuration *prometheus.HistogramVec
	flushFailures *prometheus.CounterVec
	keyCount      *prometheus.GaugeVec
}

// NewMetrics registers shard metrics against reg and returns the handle used
// to record them. reg is typically a process-wide *prometheus.Registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ringkv_shard_ops_total",
			Help: "Operations served by a shard, by operation kind.",
		}, []string{"shard", "op"}),
		opErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ringkv_shard_op_errors_total",
			Help: "Operations that returned an error, by operation kind.",
		}, []string{"shard", "op"}),
		flushDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ringkv_shard_flush_duration_seconds",
			Help:    "Time taken to write a snapshot to disk.",
			Buckets: prometheus.DefBuckets,
		}, []string{"shard"}),
		flushFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ringkv_shard_flush_failures_total",
			Help: "Snapshot flushes that failed.",
		}, []string{"shard"}),
		keyCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ringkv_shard_keys",
			Help: "Current number of keys held by a shard.",
		}, []string{"shard"}),
	}

	reg.MustRegister(m.ops, m.opErrors, m.flushDuration, m.flushFailures, m.keyCount)
	return m
}

// ObserveOp records one operation of the given kind against shard id.
func (m *Metrics) ObserveOp(shardID, op string, ok bool) {
	m.ops.WithLabelValues(shardID, op).Inc()
	if !ok {
		m.opErrors.WithLabelValues(shardID, op).Inc()
	}
}

// ObserveFlush records the duration and outcome of a snapshot flush.
func (m *Metrics) ObserveFlush(shardID string, d time.Duration, ok bool) {
	m.flushDuration.WithLabelValues(shardID).Observe(d.Seconds())
	if !ok {
		m.flushFailures.WithLabelValues(shardID).Inc()
	}
}

// SetKeyCount records the current key count for shard id.
func (m *Metrics) SetKeyCount(shardID string, n int) {
	m.keyCount.WithLabelValues(shardID).Set(float64(n))
}
