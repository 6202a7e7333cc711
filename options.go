package perfkit

import (
	"log/slog"
	"time"

	"github.com/gozephyr/perfkit/internal"
	"github.com/gozephyr/perfkit/metrics"
	"github.com/gozephyr/perfkit/policy"
	"github.com/gozephyr/perfkit/store"
	"github.com/gozephyr/perfkit/ttl"
)

// Options represents cache configuration options
type Options[K comparable, V any] struct {
	// MaxSize is the maximum number of live entries the cache holds
	MaxSize int

	// TTLConfig is the configuration for TTL behavior
	TTLConfig ttl.Config

	// Policy orders keys for eviction. Nil selects LRU.
	Policy policy.Policy[K]

	// Store is an optional second tier consulted on memory misses
	Store store.Store[K, V]

	// LoadKey names the GetOrLoad group of a key; keys with the same name share one loader call.
	// Nil deduplicates string, integer and bool keys by type and value and leaves other keys alone.
	LoadKey func(K) string

	// CleanupInterval is the period of the background expiry sweep. Zero disables it.
	CleanupInterval time.Duration

	// Metrics receives hit, miss, eviction and size observations
	Metrics metrics.Exporter

	Logger *slog.Logger

	// Now is the time source used for TTL deadlines
	Now func() time.Time
}

// Option is a function that configures cache options
type Option[K comparable, V any] func(*Options[K, V])

// WithMaxSize sets the maximum size of the cache
func WithMaxSize[K comparable, V any](size int) Option[K, V] {
	return func(o *Options[K, V]) {
		o.MaxSize = size
	}
}

// WithTTLConfig sets the TTL configuration
func WithTTLConfig[K comparable, V any](config ttl.Config) Option[K, V] {
	return func(o *Options[K, V]) {
		o.TTLConfig = config
	}
}

// WithPolicy sets the eviction policy
func WithPolicy[K comparable, V any](p policy.Policy[K]) Option[K, V] {
	return func(o *Options[K, V]) {
		o.Policy = p
	}
}

// WithStore sets the second-tier storage backend
func WithStore[K comparable, V any](s store.Store[K, V]) Option[K, V] {
	return func(o *Options[K, V]) {
		o.Store = s
	}
}

// WithLoadKey sets the function grouping concurrent GetOrLoad calls
func WithLoadKey[K comparable, V any](fn func(K) string) Option[K, V] {
	return func(o *Options[K, V]) {
		o.LoadKey = fn
	}
}

// WithCleanupInterval sets the cleanup interval for the cache
func WithCleanupInterval[K comparable, V any](interval time.Duration) Option[K, V] {
	return func(o *Options[K, V]) {
		o.CleanupInterval = interval
	}
}

// WithMetrics sets the metrics exporter
func WithMetrics[K comparable, V any](m metrics.Exporter) Option[K, V] {
	return func(o *Options[K, V]) {
		o.Metrics = m
	}
}

// WithLogger sets the structured logger
func WithLogger[K comparable, V any](l *slog.Logger) Option[K, V] {
	return func(o *Options[K, V]) {
		o.Logger = l
	}
}

// WithClock sets the time source used for expiry
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(o *Options[K, V]) {
		o.Now = now
	}
}

// DefaultOptions returns the default cache options
func DefaultOptions[K comparable, V any]() *Options[K, V] {
	return &Options[K, V]{
		MaxSize:   1000,
		TTLConfig: ttl.DefaultConfig(),
	}
}

// PutOption configures a single Put
type PutOption func(*putOptions)

type putOptions struct {
	ttl    time.Duration
	hasTTL bool
}

// WithTTL sets a per-entry time to live. A ttl of zero or less expires the entry on its next read.
func WithTTL(ttl time.Duration) PutOption {
	return func(o *putOptions) {
		o.ttl = ttl
		o.hasTTL = true
	}
}

// PoolOptions represents connection pool configuration
type PoolOptions[T comparable] struct {
	// Validator reports whether an idle connection may be handed out again. Nil means always valid.
	Validator func(T) bool

	// Closer releases a connection the pool drops. Nil means connections are simply forgotten.
	Closer func(T) error

	Metrics metrics.Exporter
	Logger  *slog.Logger
}

// PoolOption is a function that configures pool options
type PoolOption[T comparable] func(*PoolOptions[T])

// WithValidator sets the connection validator run before reuse
func WithValidator[T comparable](fn func(T) bool) PoolOption[T] {
	return func(o *PoolOptions[T]) {
		o.Validator = fn
	}
}

// WithCloser sets the function invoked on discarded connections
func WithCloser[T comparable](fn func(T) error) PoolOption[T] {
	return func(o *PoolOptions[T]) {
		o.Closer = fn
	}
}

// WithPoolMetrics sets the pool metrics exporter
func WithPoolMetrics[T comparable](m metrics.Exporter) PoolOption[T] {
	return func(o *PoolOptions[T]) {
		o.Metrics = m
	}
}

// WithPoolLogger sets the pool logger
func WithPoolLogger[T comparable](l *slog.Logger) PoolOption[T] {
	return func(o *PoolOptions[T]) {
		o.Logger = l
	}
}

// BatchOptions represents batch processor configuration
type BatchOptions struct {
	// Scheduler arms the batch timeout. Nil selects the runtime timers.
	Scheduler internal.Scheduler

	// ErrorHandler receives handler failures from timeout-triggered deliveries.
	// Without one they are logged at warn level.
	ErrorHandler func(error)

	Metrics metrics.Exporter
	Logger  *slog.Logger
}

// BatchOption is a function that configures batch processor options
type BatchOption func(*BatchOptions)

// WithScheduler sets the timer source
func WithScheduler(s internal.Scheduler) BatchOption {
	return func(o *BatchOptions) {
		o.Scheduler = s
	}
}

// WithErrorHandler sets the sink for errors from timer-driven deliveries
func WithErrorHandler(fn func(error)) BatchOption {
	return func(o *BatchOptions) {
		o.ErrorHandler = fn
	}
}

// WithBatchMetrics sets the batch metrics exporter
func WithBatchMetrics(m metrics.Exporter) BatchOption {
	return func(o *BatchOptions) {
		o.Metrics = m
	}
}

// WithBatchLogger sets the batch processor logger
func WithBatchLogger(l *slog.Logger) BatchOption {
	return func(o *BatchOptions) {
		o.Logger = l
	}
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
