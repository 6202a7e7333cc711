package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// collect drains out in the background and returns a function that waits for it to close
func collect[T any](out <-chan T) func() []T {
	done := make(chan []T, 1)
	go func() {
		var got []T
		for v := range out {
			got = append(got, v)
		}
		done <- got
	}()
	return func() []T {
		select {
		case got := <-done:
			return got
		case <-time.After(2 * time.Second):
			panic("stream did not close")
		}
	}
}

func TestDebounceBurst(t *testing.T) {
	ctx := context.Background()
	in := make(chan int)
	out := Debounce(ctx, in, 100*time.Millisecond)

	for i := 1; i <= 5; i++ {
		in <- i
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case v := <-out:
		require.Equal(t, 5, v)
	case <-time.After(150 * time.Millisecond):
		t.Fatal("debounced value not emitted after the quiet window")
	}

	close(in)
	_, ok := <-out
	require.False(t, ok)
}

func TestDebounceSeparatedValues(t *testing.T) {
	ctx := context.Background()
	in := make(chan string)
	wait := collect(Debounce(ctx, in, 20*time.Millisecond))

	in <- "a"
	time.Sleep(80 * time.Millisecond)
	in <- "b"
	in <- "c"
	time.Sleep(80 * time.Millisecond)
	close(in)

	require.Equal(t, []string{"a", "c"}, wait())
}

func TestDebounceFlushesOnClose(t *testing.T) {
	ctx := context.Background()
	in := make(chan int)
	wait := collect(Debounce(ctx, in, time.Hour))

	in <- 1
	in <- 2
	close(in)

	require.Equal(t, []int{2}, wait())
}

func TestDebounceZeroWindow(t *testing.T) {
	ctx := context.Background()
	in := make(chan int)
	wait := collect(Debounce(ctx, in, 0))

	for i := 1; i <= 4; i++ {
		in <- i
	}
	close(in)

	require.Equal(t, []int{1, 2, 3, 4}, wait())
}

func TestDebounceCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan int)
	wait := collect(Debounce(ctx, in, time.Hour))

	in <- 1
	cancel()

	require.Empty(t, wait())
}

func TestThrottleLeadingEdge(t *testing.T) {
	ctx := context.Background()
	in := make(chan int)
	wait := collect(Throttle(ctx, in, 50*time.Millisecond))

	start := time.Now()
	sendAt := func(v int, at time.Duration) {
		time.Sleep(time.Until(start.Add(at)))
		in <- v
	}
	sendAt(1, 0)
	sendAt(2, 10*time.Millisecond)
	sendAt(3, 20*time.Millisecond)
	sendAt(4, 30*time.Millisecond)
	sendAt(5, 150*time.Millisecond)
	close(in)

	require.Equal(t, []int{1, 5}, wait())
}

func TestThrottleWithClock(t *testing.T) {
	ctx := context.Background()
	base := time.Unix(0, 0)
	offsets := []time.Duration{0, 10, 49, 50, 60, 99, 100, 300}
	i := 0
	now := func() time.Time {
		at := base.Add(offsets[i] * time.Millisecond)
		i++
		return at
	}

	in := make(chan int)
	wait := collect(throttle(ctx, in, 50*time.Millisecond, now))
	for v := range offsets {
		in <- v
	}
	close(in)

	// emits at 0, 50, 100 and 300; dropped values do not restart the period
	require.Equal(t, []int{0, 3, 6, 7}, wait())
}

func TestThrottleSlowSourcePassesThrough(t *testing.T) {
	ctx := context.Background()
	base := time.Unix(0, 0)
	i := 0
	now := func() time.Time {
		at := base.Add(time.Duration(i) * time.Second)
		i++
		return at
	}

	in := make(chan string)
	wait := collect(throttle(ctx, in, 500*time.Millisecond, now))
	for _, v := range []string{"a", "b", "c"} {
		in <- v
	}
	close(in)

	require.Equal(t, []string{"a", "b", "c"}, wait())
}

func TestThrottleZeroPeriod(t *testing.T) {
	ctx := context.Background()
	in := make(chan int)
	wait := collect(Throttle(ctx, in, 0))
	in <- 1
	in <- 2
	close(in)
	require.Equal(t, []int{1, 2}, wait())
}

func TestThrottleCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan int)
	out := Throttle(ctx, in, time.Millisecond)
	cancel()

	select {
	case _, ok := <-out:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("output not closed after cancel")
	}
}
