package internal

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRealScheduler(t *testing.T) {
	s := RealScheduler()
	fired := make(chan struct{})
	s.AfterFunc(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("callback did not fire")
	}

	var calls atomic.Int32
	timer := s.AfterFunc(50*time.Millisecond, func() { calls.Add(1) })
	require.True(t, timer.Stop())
	time.Sleep(80 * time.Millisecond)
	require.Equal(t, int32(0), calls.Load())
}

func TestFakeScheduler(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("Fires in deadline order", func(t *testing.T) {
		s := NewFakeScheduler(start)
		var order []int
		s.AfterFunc(30*time.Millisecond, func() { order = append(order, 3) })
		s.AfterFunc(10*time.Millisecond, func() { order = append(order, 1) })
		s.AfterFunc(20*time.Millisecond, func() { order = append(order, 2) })
		require.Equal(t, 3, s.Pending())

		s.Advance(15 * time.Millisecond)
		require.Equal(t, []int{1}, order)

		s.Advance(time.Second)
		require.Equal(t, []int{1, 2, 3}, order)
		require.Equal(t, 0, s.Pending())
		require.Equal(t, start.Add(time.Second+15*time.Millisecond), s.Now())
	})

	t.Run("Stop cancels", func(t *testing.T) {
		s := NewFakeScheduler(start)
		fired := false
		timer := s.AfterFunc(time.Millisecond, func() { fired = true })
		require.True(t, timer.Stop())
		require.False(t, timer.Stop())

		s.Advance(time.Second)
		require.False(t, fired)
	})

	t.Run("Callbacks may rearm", func(t *testing.T) {
		s := NewFakeScheduler(start)
		count := 0
		var rearm func()
		rearm = func() {
			count++
			if count < 3 {
				s.AfterFunc(time.Millisecond, rearm)
			}
		}
		s.AfterFunc(time.Millisecond, rearm)

		s.Advance(time.Millisecond)
		s.Advance(time.Millisecond)
		s.Advance(time.Millisecond)
		require.Equal(t, 3, count)
	})
}
