// Package metrics provides functionality for collecting and reporting toolkit performance metrics.
package metrics

import (
	"sync/atomic"
	"time"
)

// ExporterType defines the type of metrics exporter
type ExporterType string

const (
	// StandardExporter keeps counters in process memory
	StandardExporter ExporterType = "standard"
	// PrometheusExporterType publishes counters through a Prometheus registerer
	PrometheusExporterType ExporterType = "prometheus"
)

// Exporter receives observations from every toolkit component.
// Implementations must be safe for concurrent use.
type Exporter interface {
	// RecordHit records a cache hit
	RecordHit()
	// RecordMiss records a cache miss
	RecordMiss()
	// RecordEviction records a capacity eviction
	RecordEviction()
	// RecordExpiration records an entry dropped because its TTL elapsed
	RecordExpiration()
	// UpdateSize updates the current cache size
	UpdateSize(size int64)

	// RecordPoolCreated records a connection built by a pool factory
	RecordPoolCreated()
	// RecordPoolDiscarded records a connection dropped by a pool
	RecordPoolDiscarded()
	// UpdatePoolUsage updates the idle and checked-out connection gauges
	UpdatePoolUsage(idle, inUse int64)

	// RecordBatch records one batch delivery of size items
	RecordBatch(size int, err error)

	// ObserveOperation records one measured operation
	ObserveOperation(name string, d time.Duration, err error)

	// GetSnapshot returns a thread-safe copy of current metrics
	GetSnapshot() MetricsSnapshot
	// Reset resets all metrics to zero
	Reset()
}

// CacheMetrics is the standard in-memory Exporter
type CacheMetrics struct {
	// Cache
	Size              atomic.Int64
	Hits              atomic.Int64
	Misses            atomic.Int64
	Evictions         atomic.Int64
	Expirations       atomic.Int64
	LastOperationTime atomic.Value // time.Time

	// Batch
	BatchOperations    atomic.Int64
	BatchItems         atomic.Int64
	BatchErrors        atomic.Int64
	LastBatchOperation atomic.Value // time.Time

	// Pool
	PoolCreated   atomic.Int64
	PoolDiscarded atomic.Int64
	PoolIdle      atomic.Int64
	PoolInUse     atomic.Int64

	// Monitor
	Operations      atomic.Int64
	OperationErrors atomic.Int64
	OperationNanos  atomic.Int64
}

// MetricsSnapshot is a thread-safe copy of metrics
type MetricsSnapshot struct {
	Size              int64
	Hits              int64
	Misses            int64
	Evictions         int64
	Expirations       int64
	LastOperationTime time.Time

	BatchOperations    int64
	BatchItems         int64
	BatchErrors        int64
	LastBatchOperation time.Time

	PoolCreated   int64
	PoolDiscarded int64
	PoolIdle      int64
	PoolInUse     int64

	Operations      int64
	OperationErrors int64
	OperationTime   time.Duration
}

// HitRatio returns hits / (hits + misses), or 0 before the first lookup
func (s MetricsSnapshot) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// NewCacheMetrics creates a new CacheMetrics instance
func NewCacheMetrics() *CacheMetrics {
	m := &CacheMetrics{}
	m.LastOperationTime.Store(time.Time{})
	m.LastBatchOperation.Store(time.Time{})
	return m
}

// GetSnapshot returns a thread-safe copy of current metrics
func (m *CacheMetrics) GetSnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Size:               m.Size.Load(),
		Hits:               m.Hits.Load(),
		Misses:             m.Misses.Load(),
		Evictions:          m.Evictions.Load(),
		Expirations:        m.Expirations.Load(),
		LastOperationTime:  m.LastOperationTime.Load().(time.Time),
		BatchOperations:    m.BatchOperations.Load(),
		BatchItems:         m.BatchItems.Load(),
		BatchErrors:        m.BatchErrors.Load(),
		LastBatchOperation: m.LastBatchOperation.Load().(time.Time),
		PoolCreated:        m.PoolCreated.Load(),
		PoolDiscarded:      m.PoolDiscarded.Load(),
		PoolIdle:           m.PoolIdle.Load(),
		PoolInUse:          m.PoolInUse.Load(),
		Operations:         m.Operations.Load(),
		OperationErrors:    m.OperationErrors.Load(),
		OperationTime:      time.Duration(m.OperationNanos.Load()),
	}
}

// RecordHit records a cache hit
func (m *CacheMetrics) RecordHit() {
	m.Hits.Add(1)
	m.LastOperationTime.Store(time.Now())
}

// RecordMiss records a cache miss
func (m *CacheMetrics) RecordMiss() {
	m.Misses.Add(1)
	m.LastOperationTime.Store(time.Now())
}

// RecordEviction records a cache eviction
func (m *CacheMetrics) RecordEviction() {
	m.Evictions.Add(1)
}

// RecordExpiration records a TTL expiry
func (m *CacheMetrics) RecordExpiration() {
	m.Expirations.Add(1)
}

// UpdateSize updates the current cache size
func (m *CacheMetrics) UpdateSize(size int64) {
	m.Size.Store(size)
}

func (m *CacheMetrics) RecordPoolCreated() {
	m.PoolCreated.Add(1)
}

func (m *CacheMetrics) RecordPoolDiscarded() {
	m.PoolDiscarded.Add(1)
}

func (m *CacheMetrics) UpdatePoolUsage(idle, inUse int64) {
	m.PoolIdle.Store(idle)
	m.PoolInUse.Store(inUse)
}

// RecordBatch records one batch delivery
func (m *CacheMetrics) RecordBatch(size int, err error) {
	m.BatchOperations.Add(1)
	m.BatchItems.Add(int64(size))
	if err != nil {
		m.BatchErrors.Add(1)
	}
	m.LastBatchOperation.Store(time.Now())
}

// ObserveOperation records one measured operation
func (m *CacheMetrics) ObserveOperation(_ string, d time.Duration, err error) {
	m.Operations.Add(1)
	m.OperationNanos.Add(int64(d))
	if err != nil {
		m.OperationErrors.Add(1)
	}
}

// Reset resets all metrics to zero
func (m *CacheMetrics) Reset() {
	m.Size.Store(0)
	m.Hits.Store(0)
	m.Misses.Store(0)
	m.Evictions.Store(0)
	m.Expirations.Store(0)
	m.LastOperationTime.Store(time.Time{})
	m.BatchOperations.Store(0)
	m.BatchItems.Store(0)
	m.BatchErrors.Store(0)
	m.LastBatchOperation.Store(time.Time{})
	m.PoolCreated.Store(0)
	m.PoolDiscarded.Store(0)
	m.PoolIdle.Store(0)
	m.PoolInUse.Store(0)
	m.Operations.Store(0)
	m.OperationErrors.Store(0)
	m.OperationNanos.Store(0)
}

var _ Exporter = (*CacheMetrics)(nil)
