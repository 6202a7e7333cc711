package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetricsExporter(t *testing.T) {
	registry := prometheus.NewRegistry()

	exporter, err := NewPrometheusMetricsExporter(registry, "test-cache", map[string]string{
		"service": "test-service",
	})
	require.NoError(t, err)

	labels := prometheus.Labels{"service": "test-service", "name": "test-cache"}

	t.Run("RecordHit", func(t *testing.T) {
		exporter.RecordHit()
		assert.Equal(t, int64(1), exporter.GetSnapshot().Hits)
		assert.Equal(t, 1.0, testutil.ToFloat64(exporter.hits.With(labels)))
	})

	t.Run("RecordMiss", func(t *testing.T) {
		exporter.RecordMiss()
		assert.Equal(t, int64(1), exporter.GetSnapshot().Misses)
		assert.Equal(t, 1.0, testutil.ToFloat64(exporter.misses.With(labels)))
	})

	t.Run("RecordEviction", func(t *testing.T) {
		exporter.RecordEviction()
		exporter.RecordExpiration()
		assert.Equal(t, int64(1), exporter.GetSnapshot().Evictions)
		assert.Equal(t, 1.0, testutil.ToFloat64(exporter.expirations.With(labels)))
	})

	t.Run("UpdateSize", func(t *testing.T) {
		exporter.UpdateSize(100)
		assert.Equal(t, int64(100), exporter.GetSnapshot().Size)
		assert.Equal(t, 100.0, testutil.ToFloat64(exporter.size.With(labels)))
	})

	t.Run("Pool", func(t *testing.T) {
		exporter.RecordPoolCreated()
		exporter.RecordPoolDiscarded()
		exporter.UpdatePoolUsage(3, 4)
		assert.Equal(t, 1.0, testutil.ToFloat64(exporter.poolCreated.With(labels)))
		assert.Equal(t, 3.0, testutil.ToFloat64(exporter.poolIdle.With(labels)))
		assert.Equal(t, 4.0, testutil.ToFloat64(exporter.poolInUse.With(labels)))
	})

	t.Run("Batch", func(t *testing.T) {
		exporter.RecordBatch(5, nil)
		exporter.RecordBatch(1, errors.New("boom"))
		assert.Equal(t, 1.0, testutil.ToFloat64(exporter.batches.With(exporter.with("outcome", "success"))))
		assert.Equal(t, 1.0, testutil.ToFloat64(exporter.batches.With(exporter.with("outcome", "error"))))
		assert.Equal(t, int64(6), exporter.GetSnapshot().BatchItems)
	})

	t.Run("ObserveOperation", func(t *testing.T) {
		exporter.ObserveOperation("fetch", 20*time.Millisecond, nil)
		assert.Equal(t, 1, testutil.CollectAndCount(exporter.operations, "perfkit_operation_duration_seconds"))
		assert.Equal(t, int64(1), exporter.GetSnapshot().Operations)
	})

	t.Run("Reset", func(t *testing.T) {
		exporter.Reset()
		snapshot := exporter.GetSnapshot()
		assert.Equal(t, int64(0), snapshot.Hits)
		assert.Equal(t, int64(0), snapshot.Size)
		// Prometheus counters stay cumulative
		assert.Equal(t, 1.0, testutil.ToFloat64(exporter.hits.With(labels)))
	})
}

func TestPrometheusExportersShareRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()

	first, err := NewPrometheusMetricsExporter(registry, "first", nil)
	require.NoError(t, err)
	second, err := NewPrometheusMetricsExporter(registry, "second", nil)
	require.NoError(t, err)

	first.RecordHit()
	second.RecordHit()
	second.RecordHit()

	require.Same(t, first.hits, second.hits)
	require.Equal(t, 1.0, testutil.ToFloat64(first.hits.With(first.labels)))
	require.Equal(t, 2.0, testutil.ToFloat64(second.hits.With(second.labels)))
	require.Equal(t, "perfkit", first.labels["service"])
}
