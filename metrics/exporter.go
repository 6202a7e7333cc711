package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Default histogram buckets for operation latency (in seconds).
var defaultBuckets = []float64{
	.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
}

// PrometheusMetricsExporter implements Exporter using Prometheus metrics.
// Several exporters may share one registerer as long as their names differ.
type PrometheusMetricsExporter struct {
	hits        *prometheus.CounterVec
	misses      *prometheus.CounterVec
	evictions   *prometheus.CounterVec
	expirations *prometheus.CounterVec
	size        *prometheus.GaugeVec

	poolCreated   *prometheus.CounterVec
	poolDiscarded *prometheus.CounterVec
	poolIdle      *prometheus.GaugeVec
	poolInUse     *prometheus.GaugeVec

	batches    *prometheus.CounterVec
	batchItems *prometheus.HistogramVec

	operations *prometheus.HistogramVec

	// local mirrors every observation for GetSnapshot
	local *CacheMetrics

	labels prometheus.Labels
}

// NewPrometheusMetricsExporter creates a Prometheus exporter and registers its collectors with reg.
// A nil reg selects prometheus.DefaultRegisterer. Only the "service" entry of labels is used;
// it defaults to "perfkit".
func NewPrometheusMetricsExporter(reg prometheus.Registerer, name string, labels map[string]string) (*PrometheusMetricsExporter, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	service := labels["service"]
	if service == "" {
		service = "perfkit"
	}

	e := &PrometheusMetricsExporter{
		local:  NewCacheMetrics(),
		labels: prometheus.Labels{"service": service, "name": name},
	}
	base := []string{"service", "name"}

	var err error
	if e.hits, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "perfkit_cache_hits_total",
		Help: "Total number of cache hits",
	}, base)); err != nil {
		return nil, err
	}
	if e.misses, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "perfkit_cache_misses_total",
		Help: "Total number of cache misses",
	}, base)); err != nil {
		return nil, err
	}
	if e.evictions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "perfkit_cache_evictions_total",
		Help: "Total number of capacity evictions",
	}, base)); err != nil {
		return nil, err
	}
	if e.expirations, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "perfkit_cache_expirations_total",
		Help: "Total number of entries dropped after their TTL elapsed",
	}, base)); err != nil {
		return nil, err
	}
	if e.size, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "perfkit_cache_size",
		Help: "Current number of live entries in the cache",
	}, base)); err != nil {
		return nil, err
	}
	if e.poolCreated, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "perfkit_pool_created_total",
		Help: "Total number of connections created by the pool factory",
	}, base)); err != nil {
		return nil, err
	}
	if e.poolDiscarded, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "perfkit_pool_discarded_total",
		Help: "Total number of connections discarded by the pool",
	}, base)); err != nil {
		return nil, err
	}
	if e.poolIdle, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "perfkit_pool_idle",
		Help: "Idle connections held by the pool",
	}, base)); err != nil {
		return nil, err
	}
	if e.poolInUse, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "perfkit_pool_in_use",
		Help: "Connections currently checked out of the pool",
	}, base)); err != nil {
		return nil, err
	}
	if e.batches, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "perfkit_batches_total",
		Help: "Total number of batches delivered, by outcome",
	}, append(base, "outcome"))); err != nil {
		return nil, err
	}
	if e.batchItems, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "perfkit_batch_items",
		Help:    "Number of items per delivered batch",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, base)); err != nil {
		return nil, err
	}
	if e.operations, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "perfkit_operation_duration_seconds",
		Help:    "Duration of measured operations",
		Buckets: defaultBuckets,
	}, append(base, "operation", "outcome"))); err != nil {
		return nil, err
	}

	return e, nil
}

// register registers c, reusing an identical collector that is already registered
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (e *PrometheusMetricsExporter) with(extra ...string) prometheus.Labels {
	l := prometheus.Labels{"service": e.labels["service"], "name": e.labels["name"]}
	for i := 0; i+1 < len(extra); i += 2 {
		l[extra[i]] = extra[i+1]
	}
	return l
}

// RecordHit implements Exporter
func (e *PrometheusMetricsExporter) RecordHit() {
	e.hits.With(e.labels).Inc()
	e.local.RecordHit()
}

// RecordMiss implements Exporter
func (e *PrometheusMetricsExporter) RecordMiss() {
	e.misses.With(e.labels).Inc()
	e.local.RecordMiss()
}

// RecordEviction implements Exporter
func (e *PrometheusMetricsExporter) RecordEviction() {
	e.evictions.With(e.labels).Inc()
	e.local.RecordEviction()
}

// RecordExpiration implements Exporter
func (e *PrometheusMetricsExporter) RecordExpiration() {
	e.expirations.With(e.labels).Inc()
	e.local.RecordExpiration()
}

// UpdateSize implements Exporter
func (e *PrometheusMetricsExporter) UpdateSize(size int64) {
	e.size.With(e.labels).Set(float64(size))
	e.local.UpdateSize(size)
}

// RecordPoolCreated implements Exporter
func (e *PrometheusMetricsExporter) RecordPoolCreated() {
	e.poolCreated.With(e.labels).Inc()
	e.local.RecordPoolCreated()
}

// RecordPoolDiscarded implements Exporter
func (e *PrometheusMetricsExporter) RecordPoolDiscarded() {
	e.poolDiscarded.With(e.labels).Inc()
	e.local.RecordPoolDiscarded()
}

// UpdatePoolUsage implements Exporter
func (e *PrometheusMetricsExporter) UpdatePoolUsage(idle, inUse int64) {
	e.poolIdle.With(e.labels).Set(float64(idle))
	e.poolInUse.With(e.labels).Set(float64(inUse))
	e.local.UpdatePoolUsage(idle, inUse)
}

// RecordBatch implements Exporter
func (e *PrometheusMetricsExporter) RecordBatch(size int, err error) {
	e.batches.With(e.with("outcome", outcome(err))).Inc()
	e.batchItems.With(e.labels).Observe(float64(size))
	e.local.RecordBatch(size, err)
}

// ObserveOperation implements Exporter
func (e *PrometheusMetricsExporter) ObserveOperation(name string, d time.Duration, err error) {
	e.operations.With(e.with("operation", name, "outcome", outcome(err))).Observe(d.Seconds())
	e.local.ObserveOperation(name, d, err)
}

// GetSnapshot implements Exporter
func (e *PrometheusMetricsExporter) GetSnapshot() MetricsSnapshot {
	return e.local.GetSnapshot()
}

// Reset implements Exporter. Only the snapshot counters are reset;
// Prometheus counters stay cumulative.
func (e *PrometheusMetricsExporter) Reset() {
	e.local.Reset()
}

// NewMetricsExporter creates a new metrics exporter based on the specified type
func NewMetricsExporter(exporterType ExporterType, reg prometheus.Registerer, name string, labels map[string]string) (Exporter, error) {
	switch exporterType {
	case PrometheusExporterType:
		return NewPrometheusMetricsExporter(reg, name, labels)
	default:
		return NewCacheMetrics(), nil
	}
}

var _ Exporter = (*PrometheusMetricsExporter)(nil)
