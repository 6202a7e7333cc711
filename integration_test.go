package perfkit_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/gozephyr/perfkit"
	"github.com/gozephyr/perfkit/config"
	"github.com/gozephyr/perfkit/diag"
	"github.com/gozephyr/perfkit/monitor"
)

const integrationYAML = `
cache:
  max_size: 2
  store:
    type: memory
pool:
  max_connections: 2
batch:
  size: 2
  timeout: 1m
metrics:
  exporter: prometheus
  name: integration
`

type conn struct{ queries int }

func TestComponentsTogether(t *testing.T) {
	ctx := context.Background()
	cfg, err := config.LoadFromBytes([]byte(integrationYAML))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	exporter, err := config.NewExporter(cfg.Metrics, reg)
	require.NoError(t, err)

	mon := config.NewMonitor(cfg.Monitor, monitor.WithObserver(exporter))

	pool, err := config.NewPool(cfg.Pool, func(context.Context) (*conn, error) { return &conn{}, nil },
		perfkit.WithPoolMetrics[*conn](exporter))
	require.NoError(t, err)
	defer func() { _ = pool.Close() }()

	cache, err := config.NewCache[string, string](ctx, cfg.Cache, perfkit.WithMetrics[string, string](exporter))
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()

	var (
		mu      sync.Mutex
		flushed [][]string
	)
	batch, err := config.NewBatchProcessor(cfg.Batch, func(ctx context.Context, items []string) error {
		return mon.MeasureOperation(ctx, "batch.write", func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			flushed = append(flushed, items)
			return nil
		})
	}, perfkit.WithBatchMetrics(exporter))
	require.NoError(t, err)

	load := func(key string) (string, error) {
		return cache.GetOrLoad(ctx, key, func(ctx context.Context) (string, error) {
			return monitor.MeasureOperationValue(ctx, mon, "db.load", func(ctx context.Context) (string, error) {
				c, err := pool.Acquire(ctx)
				if err != nil {
					return "", err
				}
				defer func() { _ = pool.Release(c) }()
				c.queries++
				return fmt.Sprintf("row:%s", key), nil
			})
		})
	}

	for _, key := range []string{"a", "b", "a", "c", "a"} {
		v, err := load(key)
		require.NoError(t, err)
		require.Equal(t, "row:"+key, v)
		require.NoError(t, batch.Add(ctx, key))
	}
	require.NoError(t, batch.Close(ctx))

	// a, b and c each loaded once; "a" was served from memory twice
	stats, ok := mon.GetOperationStats("db.load")
	require.True(t, ok)
	require.Equal(t, 3, stats.Count)
	require.Equal(t, 2, cache.Size())
	require.Equal(t, int64(1), pool.Stats().Created)
	require.Equal(t, [][]string{{"a", "b"}, {"a", "c"}, {"a"}}, flushed)

	snap := exporter.GetSnapshot()
	require.Equal(t, int64(2), snap.Hits)
	require.Equal(t, int64(3), snap.BatchOperations)
	require.Equal(t, int64(5), snap.BatchItems)

	expected := `
# HELP perfkit_cache_hits_total Total number of cache hits
# TYPE perfkit_cache_hits_total counter
perfkit_cache_hits_total{name="integration",service="perfkit"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "perfkit_cache_hits_total"))
	n, err := testutil.GatherAndCount(reg, "perfkit_operation_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	srv := diag.NewServer(mon, diag.WithGatherer(reg))
	srv.Register("cache", func() any { return cache.Stats() })
	srv.Register("pool", func() any { return pool.Stats() })
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/debug/perf/components/pool")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ps perfkit.PoolStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ps))
	require.Equal(t, 1, ps.Idle)
	require.Equal(t, 2, ps.Max)
}
