package perfkit

import (
	"context"
	"log/slog"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/gozephyr/perfkit/errors"
	"github.com/gozephyr/perfkit/metrics"
)

// PoolStats is a point-in-time view of a connection pool
type PoolStats struct {
	Idle      int
	InUse     int
	Created   int64
	Discarded int64
	Max       int
}

// pooled tracks one connection the pool manages
type pooled[T comparable] struct {
	id         string
	conn       T
	generation uint64
}

// ConnectionPool is a bounded pool of reusable connections built by a factory.
// Idle connections are handed out oldest first and validated before reuse.
// idle + checked-out never exceeds the configured maximum.
//
// Connections are tracked by value, so the factory must return distinct values
// (typically pointers).
type ConnectionPool[T comparable] struct {
	mu         sync.Mutex
	idle       []*pooled[T]
	inUse      map[T]*pooled[T]
	creating   int
	generation uint64
	created    int64
	discarded  int64
	closed     bool

	// changed is closed and replaced whenever a slot may have become available
	changed chan struct{}

	maxConnections int
	factory        func(context.Context) (T, error)
	validator      func(T) bool
	closer         func(T) error
	metrics        metrics.Exporter
	logger         *slog.Logger
}

// NewConnectionPool creates a pool holding at most maxConnections live connections
func NewConnectionPool[T comparable](maxConnections int, factory func(context.Context) (T, error), opts ...PoolOption[T]) (*ConnectionPool[T], error) {
	if maxConnections <= 0 {
		return nil, errors.WrapError("NewConnectionPool", nil, errors.ErrInvalidSize)
	}
	if factory == nil {
		return nil, errors.WrapError("NewConnectionPool", nil, errors.ErrNilFunc)
	}

	options := &PoolOptions[T]{}
	for _, opt := range opts {
		opt(options)
	}
	if options.Validator == nil {
		options.Validator = func(T) bool { return true }
	}
	if options.Metrics == nil {
		options.Metrics = metrics.NewCacheMetrics()
	}

	return &ConnectionPool[T]{
		inUse:          make(map[T]*pooled[T]),
		changed:        make(chan struct{}),
		maxConnections: maxConnections,
		factory:        factory,
		validator:      options.Validator,
		closer:         options.Closer,
		metrics:        options.Metrics,
		logger:         loggerOrDefault(options.Logger).With("component", "pool"),
	}, nil
}

// live returns the number of connections counted against the maximum. Must be called with p.mu held.
func (p *ConnectionPool[T]) live() int {
	return len(p.idle) + len(p.inUse) + p.creating
}

// notifyLocked wakes every waiter. Must be called with p.mu held.
func (p *ConnectionPool[T]) notifyLocked() {
	close(p.changed)
	p.changed = make(chan struct{})
	p.metrics.UpdatePoolUsage(int64(len(p.idle)), int64(len(p.inUse)))
}

// Acquire returns an idle connection that passes validation or, while below the maximum,
// a new one from the factory. At the maximum it waits until a connection is released,
// invalidated or cleared, or until ctx is done.
//
// The validator and the factory run without the pool lock held and may call back into the pool.
func (p *ConnectionPool[T]) Acquire(ctx context.Context) (T, error) {
	var zero T
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return zero, errors.WrapError("Acquire", nil, errors.ErrPoolClosed)
		}

		if len(p.idle) > 0 {
			pc := p.idle[0]
			p.idle[0] = nil
			p.idle = p.idle[1:]
			// the candidate keeps its slot reserved while it is validated
			p.creating++
			gen := p.generation
			p.mu.Unlock()

			if conn, done, err := p.reuse(ctx, pc, gen); done {
				return conn, err
			}
			continue
		}

		if p.live() < p.maxConnections {
			p.creating++
			gen := p.generation
			p.mu.Unlock()
			return p.create(ctx, gen)
		}

		wait := p.changed
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, errors.WrapError("Acquire", nil, ctx.Err())
		case <-wait:
		}
	}
}

// unreserveLocked returns a slot reserved under gen. Must be called with p.mu held.
func (p *ConnectionPool[T]) unreserveLocked(gen uint64) {
	if p.generation == gen {
		p.creating--
	}
	p.notifyLocked()
}

// unreserveOnPanic returns the slot reserved under gen unless *settled is set
func (p *ConnectionPool[T]) unreserveOnPanic(gen uint64, settled *bool) {
	if *settled {
		return
	}
	p.mu.Lock()
	p.unreserveLocked(gen)
	p.mu.Unlock()
}

// reuse validates an idle candidate holding a reserved slot. An invalid candidate is discarded
// and its slot goes to a replacement from the factory. done is false when the pool was cleared
// during validation and Acquire has to start over.
func (p *ConnectionPool[T]) reuse(ctx context.Context, pc *pooled[T], gen uint64) (conn T, done bool, err error) {
	settled := false
	defer p.unreserveOnPanic(gen, &settled)
	valid := p.validator(pc.conn)
	settled = true

	p.mu.Lock()
	if p.generation != gen {
		p.discarded++
		p.notifyLocked()
		p.mu.Unlock()
		p.metrics.RecordPoolDiscarded()
		p.closeConn(pc)
		return conn, false, nil
	}

	if valid {
		p.creating--
		p.inUse[pc.conn] = pc
		p.notifyLocked()
		p.mu.Unlock()
		p.logger.Debug("reused connection", "id", pc.id)
		return pc.conn, true, nil
	}

	p.discarded++
	p.notifyLocked()
	p.mu.Unlock()
	p.metrics.RecordPoolDiscarded()
	p.logger.Debug("discarded invalid connection", "id", pc.id)
	p.closeConn(pc)

	conn, err = p.create(ctx, gen)
	return conn, true, err
}

// create runs the factory for a slot reserved by Acquire. A connection whose slot was
// reserved before a Clear is returned to the caller but not tracked.
func (p *ConnectionPool[T]) create(ctx context.Context, gen uint64) (T, error) {
	var zero T
	settled := false
	defer p.unreserveOnPanic(gen, &settled)
	conn, err := p.factory(ctx)
	settled = true

	p.mu.Lock()
	current := p.generation == gen
	if err != nil {
		p.unreserveLocked(gen)
		p.mu.Unlock()
		return zero, errors.WrapError("Acquire", nil, err)
	}
	if current {
		p.creating--
	}

	pc := &pooled[T]{id: gonanoid.Must(), conn: conn, generation: gen}
	if p.closed {
		p.notifyLocked()
		p.mu.Unlock()
		p.closeConn(pc)
		return zero, errors.WrapError("Acquire", nil, errors.ErrPoolClosed)
	}

	p.created++
	if current {
		p.inUse[conn] = pc
	}
	p.notifyLocked()
	live := p.live()
	p.mu.Unlock()

	p.metrics.RecordPoolCreated()
	p.logger.Debug("created connection", "id", pc.id, "live", live, "max", p.maxConnections)
	return conn, nil
}

// Release returns a checked-out connection to the idle set. Connections the pool does not
// track, including those handed out before the last Clear, are ignored.
func (p *ConnectionPool[T]) Release(conn T) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pc, ok := p.inUse[conn]
	if !ok || pc.generation != p.generation {
		p.logger.Debug("ignored release of unmanaged connection")
		return nil
	}
	delete(p.inUse, conn)
	p.idle = append(p.idle, pc)
	p.notifyLocked()
	return nil
}

// Invalidate drops a checked-out connection without returning it to the idle set,
// freeing its slot. The closer, if any, is called.
func (p *ConnectionPool[T]) Invalidate(conn T) {
	p.mu.Lock()
	pc, ok := p.inUse[conn]
	if !ok || pc.generation != p.generation {
		p.mu.Unlock()
		return
	}
	delete(p.inUse, conn)
	p.discarded++
	p.notifyLocked()
	p.mu.Unlock()

	p.metrics.RecordPoolDiscarded()
	p.logger.Debug("invalidated connection", "id", pc.id)
	p.closeConn(pc)
}

// Clear discards every idle connection and resets the live count. Checked-out connections are
// left with their holders; releasing them later is a no-op.
func (p *ConnectionPool[T]) Clear() {
	p.mu.Lock()
	idle := p.clearLocked()
	p.mu.Unlock()

	for _, pc := range idle {
		p.closeConn(pc)
	}
}

func (p *ConnectionPool[T]) clearLocked() []*pooled[T] {
	idle := p.idle
	p.idle = nil
	p.inUse = make(map[T]*pooled[T])
	p.creating = 0
	p.generation++
	p.discarded += int64(len(idle))
	p.notifyLocked()
	for range idle {
		p.metrics.RecordPoolDiscarded()
	}
	p.logger.Debug("cleared pool", "idle_discarded", len(idle), "generation", p.generation)
	return idle
}

// Close clears the pool and rejects further Acquire calls with ErrPoolClosed
func (p *ConnectionPool[T]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.clearLocked()
	p.mu.Unlock()

	for _, pc := range idle {
		p.closeConn(pc)
	}
	return nil
}

// Stats returns a snapshot of the pool counters
func (p *ConnectionPool[T]) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Idle:      len(p.idle),
		InUse:     len(p.inUse),
		Created:   p.created,
		Discarded: p.discarded,
		Max:       p.maxConnections,
	}
}

func (p *ConnectionPool[T]) closeConn(pc *pooled[T]) {
	if p.closer == nil {
		return
	}
	if err := p.closer(pc.conn); err != nil {
		p.logger.Warn("closing connection failed", "id", pc.id, "error", err)
	}
}
