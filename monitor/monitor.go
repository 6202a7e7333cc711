// Package monitor records the latency of named operations and aggregates it into
// per-operation statistics.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/gozephyr/perfkit/metrics"
)

// OperationStats aggregates every sample recorded for one operation name
type OperationStats struct {
	Name    string        `json:"name" yaml:"name"`
	Count   int           `json:"count" yaml:"count"`
	Min     time.Duration `json:"min" yaml:"min"`
	Max     time.Duration `json:"max" yaml:"max"`
	Average time.Duration `json:"average" yaml:"average"`
	Median  time.Duration `json:"median" yaml:"median"`
	P95     time.Duration `json:"p95" yaml:"p95"`
	Total   time.Duration `json:"total" yaml:"total"`
}

// Monitor measures operations and keeps their durations until ClearStats.
// It is safe for concurrent use.
type Monitor struct {
	mu      sync.RWMutex
	samples map[string][]time.Duration

	observer metrics.Exporter
	logger   *slog.Logger
	slow     time.Duration
	now      func() time.Time
}

// Option configures a Monitor
type Option func(*Monitor)

// WithObserver forwards every sample to an exporter, e.g. a Prometheus histogram
func WithObserver(e metrics.Exporter) Option {
	return func(m *Monitor) {
		m.observer = e
	}
}

// WithLogger sets the logger used for slow-operation warnings
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = l
	}
}

// WithSlowThreshold logs a warning for every operation taking at least d. Zero disables it.
func WithSlowThreshold(d time.Duration) Option {
	return func(m *Monitor) {
		m.slow = d
	}
}

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// New creates a Monitor
func New(opts ...Option) *Monitor {
	m := &Monitor{
		samples: make(map[string][]time.Duration),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "monitor")
	return m
}

// Measure runs fn and records its duration under name, whether fn returns, fails or panics.
// fn's error is returned unchanged and a panic is re-raised after recording.
func (m *Monitor) Measure(name string, fn func() error) (err error) {
	start := m.now()
	defer m.finish(name, start, &err)
	return fn()
}

// MeasureValue is Measure for functions producing a value
func MeasureValue[T any](m *Monitor, name string, fn func() (T, error)) (value T, err error) {
	start := m.now()
	defer m.finish(name, start, &err)
	return fn()
}

// MeasureOperation runs a context-aware operation and records the time until it completes
func (m *Monitor) MeasureOperation(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	start := m.now()
	defer m.finish(name, start, &err)
	return fn(ctx)
}

// MeasureOperationValue is MeasureOperation for operations producing a value
func MeasureOperationValue[T any](ctx context.Context, m *Monitor, name string, fn func(context.Context) (T, error)) (value T, err error) {
	start := m.now()
	defer m.finish(name, start, &err)
	return fn(ctx)
}

// finish is deferred by the Measure variants
func (m *Monitor) finish(name string, start time.Time, errp *error) {
	d := m.now().Sub(start)
	r := recover()

	outcome := *errp
	if r != nil {
		outcome = fmt.Errorf("panic: %v", r)
	}
	m.record(name, d, outcome)

	if r != nil {
		panic(r)
	}
}

// Record adds a sample measured elsewhere
func (m *Monitor) Record(name string, d time.Duration) {
	m.record(name, d, nil)
}

func (m *Monitor) record(name string, d time.Duration, err error) {
	m.mu.Lock()
	m.samples[name] = append(m.samples[name], d)
	m.mu.Unlock()

	if m.observer != nil {
		m.observer.ObserveOperation(name, d, err)
	}
	if m.slow > 0 && d >= m.slow {
		m.logger.Warn("slow operation", "operation", name, "duration", d, "threshold", m.slow)
	}
}

// GetOperationStats returns the statistics for name, or false if nothing was recorded
func (m *Monitor) GetOperationStats(name string) (OperationStats, bool) {
	m.mu.RLock()
	samples := append([]time.Duration(nil), m.samples[name]...)
	m.mu.RUnlock()

	if len(samples) == 0 {
		return OperationStats{}, false
	}
	return computeStats(name, samples), true
}

// GetAllStats returns one entry per recorded operation, sorted by name
func (m *Monitor) GetAllStats() []OperationStats {
	m.mu.RLock()
	copied := make(map[string][]time.Duration, len(m.samples))
	for name, samples := range m.samples {
		copied[name] = append([]time.Duration(nil), samples...)
	}
	m.mu.RUnlock()

	all := make([]OperationStats, 0, len(copied))
	for name, samples := range copied {
		all = append(all, computeStats(name, samples))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// ClearStats discards every recorded sample
func (m *Monitor) ClearStats() {
	m.mu.Lock()
	m.samples = make(map[string][]time.Duration)
	m.mu.Unlock()
}

// computeStats sorts samples in place
func computeStats(name string, samples []time.Duration) OperationStats {
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	n := len(samples)
	var total time.Duration
	for _, d := range samples {
		total += d
	}

	median := samples[n/2]
	if n%2 == 0 {
		median = (samples[n/2-1] + samples[n/2]) / 2
	}

	// nearest-rank percentile
	rank := int(math.Ceil(0.95*float64(n))) - 1

	return OperationStats{
		Name:    name,
		Count:   n,
		Min:     samples[0],
		Max:     samples[n-1],
		Average: total / time.Duration(n),
		Median:  median,
		P95:     samples[rank],
		Total:   total,
	}
}
