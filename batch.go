package perfkit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gozephyr/perfkit/errors"
	"github.com/gozephyr/perfkit/internal"
	"github.com/gozephyr/perfkit/metrics"
)

// BatchHandler consumes one delivered batch. The slice is owned by the handler.
type BatchHandler[T any] func(ctx context.Context, batch []T) error

// BatchProcessor accumulates items and hands them to a handler once batchSize items are
// pending or timeout has elapsed since the first item of the batch, whichever comes first.
//
// Items are delivered in insertion order, in contiguous batches, and deliveries never overlap.
// A failed delivery is not retried. The handler must not call back into the processor.
type BatchProcessor[T any] struct {
	mu      sync.Mutex
	pending []T
	seq     uint64 // identifies the accumulating batch for its timer
	timer   internal.Timer
	closed  bool

	// deliverMu is taken before mu is released, so batches reach the handler in order
	deliverMu sync.Mutex

	batchSize int
	timeout   time.Duration
	handler   BatchHandler[T]
	scheduler internal.Scheduler
	onError   func(error)
	metrics   metrics.Exporter
	logger    *slog.Logger
}

// NewBatchProcessor creates a processor delivering batches of at most batchSize items
func NewBatchProcessor[T any](batchSize int, timeout time.Duration, handler func(context.Context, []T) error, opts ...BatchOption) (*BatchProcessor[T], error) {
	if batchSize <= 0 {
		return nil, errors.WrapError("NewBatchProcessor", nil, errors.ErrInvalidSize)
	}
	if timeout <= 0 {
		return nil, errors.WrapError("NewBatchProcessor", nil, errors.ErrInvalidTimeout)
	}
	if handler == nil {
		return nil, errors.WrapError("NewBatchProcessor", nil, errors.ErrNilFunc)
	}

	options := &BatchOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.Scheduler == nil {
		options.Scheduler = internal.RealScheduler()
	}
	if options.Metrics == nil {
		options.Metrics = metrics.NewCacheMetrics()
	}

	return &BatchProcessor[T]{
		pending:   make([]T, 0, batchSize),
		batchSize: batchSize,
		timeout:   timeout,
		handler:   handler,
		scheduler: options.Scheduler,
		onError:   options.ErrorHandler,
		metrics:   options.Metrics,
		logger:    loggerOrDefault(options.Logger).With("component", "batch"),
	}, nil
}

// Add appends item to the pending batch. When the batch reaches batchSize it is delivered
// before Add returns, and the handler's error, if any, is returned.
func (p *BatchProcessor[T]) Add(ctx context.Context, item T) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapError("Add", nil, err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.WrapError("Add", nil, errors.ErrProcessorClosed)
	}

	p.pending = append(p.pending, item)
	if len(p.pending) >= p.batchSize {
		batch := p.takeLocked()
		p.deliverMu.Lock()
		p.mu.Unlock()
		defer p.deliverMu.Unlock()
		return p.deliver(ctx, batch, "size")
	}

	if len(p.pending) == 1 {
		seq := p.seq
		p.timer = p.scheduler.AfterFunc(p.timeout, func() { p.onTimeout(seq) })
	}
	p.mu.Unlock()
	return nil
}

// takeLocked detaches the pending batch and disarms its timer. Must be called with p.mu held.
func (p *BatchProcessor[T]) takeLocked() []T {
	batch := p.pending
	p.pending = make([]T, 0, p.batchSize)
	p.seq++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	return batch
}

func (p *BatchProcessor[T]) onTimeout(seq uint64) {
	p.mu.Lock()
	if seq != p.seq || len(p.pending) == 0 {
		p.mu.Unlock()
		return
	}
	batch := p.takeLocked()
	p.deliverMu.Lock()
	p.mu.Unlock()
	defer p.deliverMu.Unlock()

	if err := p.deliver(context.Background(), batch, "timeout"); err != nil {
		if p.onError != nil {
			p.onError(err)
			return
		}
		p.logger.Warn("batch handler failed", "size", len(batch), "error", err)
	}
}

// deliver runs the handler. Must be called with p.deliverMu held.
func (p *BatchProcessor[T]) deliver(ctx context.Context, batch []T, trigger string) error {
	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	err := p.handler(ctx, batch)
	p.metrics.RecordBatch(len(batch), err)
	p.logger.Debug("delivered batch",
		"size", len(batch),
		"trigger", trigger,
		"duration", time.Since(start),
		"failed", err != nil,
	)
	if err != nil {
		return errors.WrapError("Deliver", nil, fmt.Errorf("%w: %w", errors.ErrHandlerFailed, err))
	}
	return nil
}

// Flush delivers the pending batch immediately if it is not empty
func (p *BatchProcessor[T]) Flush(ctx context.Context) error {
	p.mu.Lock()
	if len(p.pending) == 0 {
		p.mu.Unlock()
		return nil
	}
	batch := p.takeLocked()
	p.deliverMu.Lock()
	p.mu.Unlock()
	defer p.deliverMu.Unlock()

	return p.deliver(ctx, batch, "flush")
}

// Close flushes the pending batch and rejects further Add calls. Closing twice is a no-op.
func (p *BatchProcessor[T]) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	batch := p.takeLocked()
	p.deliverMu.Lock()
	p.mu.Unlock()
	defer p.deliverMu.Unlock()

	return p.deliver(ctx, batch, "close")
}

// Pending returns the number of items waiting for delivery
func (p *BatchProcessor[T]) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
