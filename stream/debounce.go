// Package stream provides rate-shaping operators over channels.
//
// Every operator owns the channel it returns and closes it when the source channel is closed
// or the context is done. Values are never reordered.
package stream

import (
	"context"
	"time"
)

// Debounce emits a value only once window has passed without a newer value arriving, so a
// burst collapses to its last value. When in closes, a value still waiting is flushed.
// A window of zero or less forwards every value unchanged.
//
// Cancelling ctx stops the pending timer and drops the waiting value.
func Debounce[T any](ctx context.Context, in <-chan T, window time.Duration) <-chan T {
	out := make(chan T)
	if window <= 0 {
		go forward(ctx, in, out)
		return out
	}

	go func() {
		defer close(out)

		var (
			timer   *time.Timer
			fire    <-chan time.Time
			pending T
			waiting bool
		)
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-in:
				if !ok {
					if waiting {
						send(ctx, out, pending)
					}
					return
				}
				pending, waiting = v, true
				if timer == nil {
					timer = time.NewTimer(window)
				} else {
					timer.Reset(window)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				waiting = false
				if !send(ctx, out, pending) {
					return
				}
			}
		}
	}()
	return out
}

func forward[T any](ctx context.Context, in <-chan T, out chan<- T) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-in:
			if !ok || !send(ctx, out, v) {
				return
			}
		}
	}
}

// send delivers v unless ctx is done first
func send[T any](ctx context.Context, out chan<- T, v T) bool {
	select {
	case out <- v:
		return true
	case <-ctx.Done():
		return false
	}
}
