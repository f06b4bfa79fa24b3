// Package gvmetrics exposes cost.OperationCost as Prometheus metrics: a
// histogram per resource dimension, registered on an explicit registry
// rather than the global one, so a process can run more than one grove
// (or none at all) without metric collisions.
package gvmetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dashpay/grovedb-sub006/cost"
)

// Collector records one grove.DB's operation costs as Prometheus
// histograms, one per cost.OperationCost dimension.
type Collector struct {
	seeks          prometheus.Histogram
	addedBytes     prometheus.Histogram
	replacedBytes  prometheus.Histogram
	removedBytes   prometheus.Histogram
	loadedBytes    prometheus.Histogram
	hashCalls      prometheus.Histogram
	sinsemillaOps  prometheus.Histogram
	batchesApplied prometheus.Counter
}

// NewCollector builds a Collector and registers its metrics on reg under
// the grovedb_ namespace, with the given subsystem label (e.g. the grove
// instance's name) distinguishing multiple groves sharing one registry.
func NewCollector(reg prometheus.Registerer, subsystem string) *Collector {
	opts := func(name, help string) prometheus.HistogramOpts {
		return prometheus.HistogramOpts{
			Namespace: "grovedb",
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
			Buckets:   prometheus.ExponentialBuckets(1, 4, 12),
		}
	}

	c := &Collector{
		seeks:         prometheus.NewHistogram(opts("seek_count", "storage seeks per operation")),
		addedBytes:    prometheus.NewHistogram(opts("added_bytes", "bytes added per operation")),
		replacedBytes: prometheus.NewHistogram(opts("replaced_bytes", "bytes replaced per operation")),
		removedBytes:  prometheus.NewHistogram(opts("removed_bytes", "bytes removed per operation")),
		loadedBytes:   prometheus.NewHistogram(opts("loaded_bytes", "bytes loaded from storage per operation")),
		hashCalls:     prometheus.NewHistogram(opts("hash_node_calls", "hash primitive invocations per operation")),
		sinsemillaOps: prometheus.NewHistogram(opts("sinsemilla_hash_calls", "external hash invocations per operation")),
		batchesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grovedb",
			Subsystem: subsystem,
			Name:      "batches_applied_total",
			Help:      "number of batches successfully applied",
		}),
	}

	reg.MustRegister(c.seeks, c.addedBytes, c.replacedBytes, c.removedBytes,
		c.loadedBytes, c.hashCalls, c.sinsemillaOps, c.batchesApplied)
	return c
}

// Observe records one completed operation's accumulated cost.
func (c *Collector) Observe(oc cost.OperationCost) {
	c.seeks.Observe(float64(oc.SeekCount))
	c.addedBytes.Observe(float64(oc.AddedBytes))
	c.replacedBytes.Observe(float64(oc.ReplacedBytes))
	c.removedBytes.Observe(float64(oc.RemovedBytes.NormalBytes + oc.RemovedBytes.TreeBytes + oc.RemovedBytes.NonMerkBytes))
	c.loadedBytes.Observe(float64(oc.StorageLoadedBytes))
	c.hashCalls.Observe(float64(oc.HashNodeCalls))
	c.sinsemillaOps.Observe(float64(oc.SinsemillaHashCalls))
}

// BatchApplied increments the applied-batch counter.
func (c *Collector) BatchApplied() { c.batchesApplied.Inc() }
