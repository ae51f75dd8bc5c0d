// Package promcollector exports undolog metrics to Prometheus.
package promcollector

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/undolog"
)

// Collector implements undolog.MetricsCollector with Prometheus metrics.
type Collector struct {
	finalizeLatency *prometheus.HistogramVec
	actions         *prometheus.CounterVec
	purgedBytes     prometheus.Counter
	purges          prometheus.Counter
	outOfMemory     prometheus.Counter

	openQuanta    *prometheus.GaugeVec
	undoBytes     *prometheus.GaugeVec
	reservedBytes *prometheus.GaugeVec
}

var _ undolog.MetricsCollector = (*Collector)(nil)

// New creates a Collector and registers its metrics with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		finalizeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "undolog_quantum_finalize_seconds",
			Help:    "Latency of quantum commit and rollback",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		}, []string{"outcome"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "undolog_actions_total",
			Help: "Undo actions finalized",
		}, []string{"outcome"}),
		purgedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "undolog_arena_purged_bytes_total",
			Help: "Arena bytes reclaimed by purges",
		}),
		purges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "undolog_arena_purges_total",
			Help: "Arena purges",
		}),
		outOfMemory: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "undolog_out_of_memory_total",
			Help: "Chunk acquisitions refused for lack of memory",
		}),
		openQuanta: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "undolog_open_quanta",
			Help: "Open undo quanta per partition",
		}, []string{"partition"}),
		undoBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "undolog_undo_bytes",
			Help: "Arena bytes held by open quanta per partition",
		}, []string{"partition"}),
		reservedBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "undolog_pool_reserved_bytes",
			Help: "Slab bytes reserved by pools per partition",
		}, []string{"partition"}),
	}

	for _, m := range []prometheus.Collector{
		c.finalizeLatency, c.actions, c.purgedBytes, c.purges, c.outOfMemory,
		c.openQuanta, c.undoBytes, c.reservedBytes,
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RecordCommit implements undolog.MetricsCollector.
func (c *Collector) RecordCommit(actions int, d time.Duration) {
	c.finalizeLatency.WithLabelValues("commit").Observe(d.Seconds())
	c.actions.WithLabelValues("commit").Add(float64(actions))
}

// RecordRollback implements undolog.MetricsCollector.
func (c *Collector) RecordRollback(actions int, d time.Duration) {
	c.finalizeLatency.WithLabelValues("rollback").Observe(d.Seconds())
	c.actions.WithLabelValues("rollback").Add(float64(actions))
}

// RecordPurge implements undolog.MetricsCollector.
func (c *Collector) RecordPurge(bytes int64) {
	c.purges.Inc()
	c.purgedBytes.Add(float64(bytes))
}

// RecordOutOfMemory implements undolog.MetricsCollector.
func (c *Collector) RecordOutOfMemory() {
	c.outOfMemory.Inc()
}

// ObservePartition publishes a partition snapshot as gauges.
func (c *Collector) ObservePartition(st undolog.Stats) {
	id := strconv.Itoa(int(st.Partition))
	c.openQuanta.WithLabelValues(id).Set(float64(st.OpenQuanta))
	c.undoBytes.WithLabelValues(id).Set(float64(st.UndoBytes))
	c.reservedBytes.WithLabelValues(id).Set(float64(st.BytesReserved))
}
