package monitor

import (
	"context"
	"sync"
)

// Global returns the process-wide Monitor, created on first use
var Global = sync.OnceValue(func() *Monitor {
	return New()
})

// Measure records fn under name on the global monitor
func Measure(name string, fn func() error) error {
	return Global().Measure(name, fn)
}

// MeasureOperation records a context-aware operation on the global monitor
func MeasureOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	return Global().MeasureOperation(ctx, name, fn)
}
