package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gozephyr/perfkit"
	"github.com/gozephyr/perfkit/errors"
	"github.com/gozephyr/perfkit/metrics"
	"github.com/gozephyr/perfkit/monitor"
	"github.com/gozephyr/perfkit/policy"
	"github.com/gozephyr/perfkit/store"
	"github.com/gozephyr/perfkit/stream"
)

// NewExporter builds the configured metrics exporter. reg is only used by the prometheus exporter
// and defaults to prometheus.DefaultRegisterer.
func NewExporter(c MetricsConfig, reg prometheus.Registerer) (metrics.Exporter, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return metrics.NewMetricsExporter(c.Exporter, reg, c.Name, c.Labels)
}

// NewStore builds the configured second-tier store, or returns nil when none is configured
func NewStore[K comparable, V any](ctx context.Context, c StoreConfig) (store.Store[K, V], error) {
	codec := store.DefaultCodecConfig()
	switch {
	case c.CompressMinSize > 0:
		codec.CompressMinSize = c.CompressMinSize
	case c.CompressMinSize < 0:
		codec.CompressMinSize = 0
	}

	switch c.Type {
	case StoreNone:
		return nil, nil
	case StoreMemory:
		return store.NewMemoryStore[K, V](), nil
	case StoreFreeCache:
		return store.NewFreeCacheStore[K, V](store.FreeCacheConfig{
			SizeBytes: c.SizeMB * 1024 * 1024,
			Codec:     codec,
		}, nil), nil
	case StoreBigCache:
		return store.NewBigCacheStore[K, V](ctx, store.BigCacheConfig{
			LifeWindow:         c.LifeWindow,
			HardMaxCacheSizeMB: c.SizeMB,
			Codec:              codec,
		}, nil)
	default:
		return nil, errors.WrapError("NewStore", nil, fmt.Errorf("%w: unknown store %q", errors.ErrInvalidConfig, c.Type))
	}
}

// CacheOptions translates c into cache options. The configured store, if any, is created here
// and closed by the cache.
func CacheOptions[K comparable, V any](ctx context.Context, c CacheConfig) ([]perfkit.Option[K, V], error) {
	p, err := policy.New[K](c.Policy)
	if err != nil {
		return nil, errors.WrapError("CacheOptions", nil, fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err))
	}
	opts := []perfkit.Option[K, V]{
		perfkit.WithMaxSize[K, V](c.MaxSize),
		perfkit.WithPolicy[K, V](p),
		perfkit.WithTTLConfig[K, V](c.TTL),
		perfkit.WithCleanupInterval[K, V](c.CleanupInterval),
	}

	s, err := NewStore[K, V](ctx, c.Store)
	if err != nil {
		return nil, err
	}
	if s != nil {
		opts = append(opts, perfkit.WithStore[K, V](s))
	}
	return opts, nil
}

// NewCache builds a MemoryCache from c. extra options are applied after the configured ones.
func NewCache[K comparable, V any](ctx context.Context, c CacheConfig, extra ...perfkit.Option[K, V]) (*perfkit.MemoryCache[K, V], error) {
	opts, err := CacheOptions[K, V](ctx, c)
	if err != nil {
		return nil, err
	}
	return perfkit.NewMemoryCache(append(opts, extra...)...)
}

// NewPool builds a ConnectionPool from c
func NewPool[T comparable](c PoolConfig, factory func(context.Context) (T, error), opts ...perfkit.PoolOption[T]) (*perfkit.ConnectionPool[T], error) {
	return perfkit.NewConnectionPool(c.MaxConnections, factory, opts...)
}

// NewBatchProcessor builds a BatchProcessor from c
func NewBatchProcessor[T any](c BatchConfig, handler func(context.Context, []T) error, opts ...perfkit.BatchOption) (*perfkit.BatchProcessor[T], error) {
	return perfkit.NewBatchProcessor(c.Size, c.Timeout, handler, opts...)
}

// NewMonitor builds a Monitor from c. extra options are applied after the configured ones.
func NewMonitor(c MonitorConfig, extra ...monitor.Option) *monitor.Monitor {
	opts := make([]monitor.Option, 0, len(extra)+1)
	if c.SlowThreshold > 0 {
		opts = append(opts, monitor.WithSlowThreshold(c.SlowThreshold))
	}
	return monitor.New(append(opts, extra...)...)
}

// Shape applies the configured throttle and then the debounce to in.
// Operators with a zero duration are skipped.
func Shape[T any](ctx context.Context, c StreamConfig, in <-chan T) <-chan T {
	out := in
	if c.ThrottlePeriod > 0 {
		out = stream.Throttle(ctx, out, c.ThrottlePeriod)
	}
	if c.DebounceWindow > 0 {
		out = stream.Debounce(ctx, out, c.DebounceWindow)
	}
	return out
}

// LogValue reports the effective settings for structured logging
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("cache_max_size", c.Cache.MaxSize),
		slog.String("cache_policy", string(c.Cache.Policy)),
		slog.String("cache_store", c.Cache.Store.Type),
		slog.Int("pool_max_connections", c.Pool.MaxConnections),
		slog.Int("batch_size", c.Batch.Size),
		slog.Duration("batch_timeout", c.Batch.Timeout),
		slog.String("metrics_exporter", string(c.Metrics.Exporter)),
	)
}
