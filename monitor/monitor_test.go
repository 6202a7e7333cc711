package monitor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gozephyr/perfkit/metrics"
)

// stepClock advances by the next step on every read after the first of each pair
type stepClock struct {
	mu    sync.Mutex
	now   time.Time
	steps []time.Duration
	calls int
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls%2 == 1 && len(c.steps) > 0 {
		c.now = c.now.Add(c.steps[0])
		c.steps = c.steps[1:]
	}
	c.calls++
	return c.now
}

func TestMeasureSleep(t *testing.T) {
	m := New()
	err := m.Measure("op", func() error {
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	stats, ok := m.GetOperationStats("op")
	require.True(t, ok)
	require.Equal(t, 1, stats.Count)
	require.GreaterOrEqual(t, stats.Average, 50*time.Millisecond)
}

func TestMeasureAggregates(t *testing.T) {
	m := New()
	for _, d := range []time.Duration{10, 20, 30} {
		require.NoError(t, m.Measure("op", func() error {
			time.Sleep(d * time.Millisecond)
			return nil
		}))
	}

	stats, ok := m.GetOperationStats("op")
	require.True(t, ok)
	require.Equal(t, 3, stats.Count)
	require.GreaterOrEqual(t, stats.Min, 10*time.Millisecond)
	require.Less(t, stats.Min, 20*time.Millisecond)
	require.GreaterOrEqual(t, stats.Max, 30*time.Millisecond)
	require.Less(t, stats.Max, 60*time.Millisecond)
}

func TestStatsWithClock(t *testing.T) {
	clock := &stepClock{
		now:   time.Unix(0, 0),
		steps: []time.Duration{40, 10, 30, 20},
	}
	m := New(WithClock(clock.Now))
	for i := 0; i < 4; i++ {
		require.NoError(t, m.Measure("fetch", func() error { return nil }))
	}

	stats, ok := m.GetOperationStats("fetch")
	require.True(t, ok)
	require.Equal(t, OperationStats{
		Name:    "fetch",
		Count:   4,
		Min:     10,
		Max:     40,
		Average: 25,
		Median:  25,
		P95:     40,
		Total:   100,
	}, stats)
}

func TestComputeStatsOddCount(t *testing.T) {
	stats := computeStats("x", []time.Duration{5, 1, 3})
	require.Equal(t, time.Duration(3), stats.Median)
	require.Equal(t, time.Duration(3), stats.Average)
	require.Equal(t, time.Duration(5), stats.P95)
}

func TestMeasureErrorsAndPanics(t *testing.T) {
	m := New()
	boom := errors.New("connection reset")

	err := m.Measure("failing", func() error { return boom })
	require.Same(t, boom, err)

	_, err = MeasureValue(m, "failing", func() (int, error) { return 0, boom })
	require.Same(t, boom, err)

	require.PanicsWithValue(t, "kaboom", func() {
		_ = m.Measure("panicking", func() error { panic("kaboom") })
	})

	stats, ok := m.GetOperationStats("failing")
	require.True(t, ok)
	require.Equal(t, 2, stats.Count)

	stats, ok = m.GetOperationStats("panicking")
	require.True(t, ok)
	require.Equal(t, 1, stats.Count)
}

func TestMeasureOperation(t *testing.T) {
	m := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v, err := MeasureOperationValue(ctx, m, "load", func(ctx context.Context) (string, error) {
		select {
		case <-time.After(5 * time.Millisecond):
			return "done", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
	require.NoError(t, err)
	require.Equal(t, "done", v)

	cancel()
	err = m.MeasureOperation(ctx, "load", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)

	stats, ok := m.GetOperationStats("load")
	require.True(t, ok)
	require.Equal(t, 2, stats.Count)
}

func TestGetAllStatsAndClear(t *testing.T) {
	m := New()
	m.Record("b", time.Millisecond)
	m.Record("a", 2*time.Millisecond)
	m.Record("b", 3*time.Millisecond)

	all := m.GetAllStats()
	require.Len(t, all, 2)
	require.Equal(t, "a", all[0].Name)
	require.Equal(t, "b", all[1].Name)
	require.Equal(t, 2, all[1].Count)

	m.ClearStats()
	require.Empty(t, m.GetAllStats())
	_, ok := m.GetOperationStats("a")
	require.False(t, ok)
}

func TestObserverAndSlowLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	observer := metrics.NewCacheMetrics()

	m := New(
		WithObserver(observer),
		WithLogger(logger),
		WithSlowThreshold(time.Millisecond),
	)
	m.Record("quick", time.Microsecond)
	m.Record("sluggish", 5*time.Millisecond)
	_ = m.Measure("broken", func() error { return errors.New("x") })

	snap := observer.GetSnapshot()
	require.Equal(t, int64(3), snap.Operations)
	require.Equal(t, int64(1), snap.OperationErrors)

	require.Contains(t, buf.String(), "slow operation")
	require.Contains(t, buf.String(), "operation=sluggish")
	require.NotContains(t, buf.String(), "operation=quick")
}

func TestConcurrentRecording(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				m.Record("shared", time.Duration(i))
				_ = m.GetAllStats()
			}
		}()
	}
	wg.Wait()

	stats, ok := m.GetOperationStats("shared")
	require.True(t, ok)
	require.Equal(t, 1000, stats.Count)
}

func TestGlobal(t *testing.T) {
	require.Same(t, Global(), Global())
	Global().ClearStats()
	defer Global().ClearStats()

	require.NoError(t, Measure("global-op", func() error { return nil }))
	require.NoError(t, MeasureOperation(context.Background(), "global-op", func(context.Context) error { return nil }))

	stats, ok := Global().GetOperationStats("global-op")
	require.True(t, ok)
	require.Equal(t, 2, stats.Count)
}
