package stream

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle forwards the first value it sees and then drops everything arriving during the
// following period. The first value after the period passes through immediately and starts a
// new period. Dropped values are not buffered. A period of zero or less forwards every value.
func Throttle[T any](ctx context.Context, in <-chan T, period time.Duration) <-chan T {
	return throttle(ctx, in, period, time.Now)
}

func throttle[T any](ctx context.Context, in <-chan T, period time.Duration, now func() time.Time) <-chan T {
	out := make(chan T)
	if period <= 0 {
		go forward(ctx, in, out)
		return out
	}

	// one token per period and a bucket of one: a value passes iff a full period has elapsed
	// since the last one that passed, and rejected values leave the bucket untouched
	gate := rate.NewLimiter(rate.Every(period), 1)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-in:
				if !ok {
					return
				}
				if !gate.AllowN(now(), 1) {
					continue
				}
				if !send(ctx, out, v) {
					return
				}
			}
		}
	}()
	return out
}
