// Package perfkit provides in-process performance and resource management primitives:
// a bounded LRU+TTL memory cache, a validating connection pool and a size/time batching queue.
// Stream rate shaping lives in package stream and latency instrumentation in package monitor.
package perfkit

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gozephyr/perfkit/errors"
	"github.com/gozephyr/perfkit/metrics"
	"github.com/gozephyr/perfkit/policy"
	"github.com/gozephyr/perfkit/store"
	"github.com/gozephyr/perfkit/ttl"
)

// CacheEventType represents the type of cache event
type CacheEventType int

const (
	EventTypeSet CacheEventType = iota
	EventTypeDelete
	EventTypeEviction
	EventTypeExpiration
)

func (t CacheEventType) String() string {
	switch t {
	case EventTypeSet:
		return "set"
	case EventTypeDelete:
		return "delete"
	case EventTypeEviction:
		return "eviction"
	case EventTypeExpiration:
		return "expiration"
	default:
		return fmt.Sprintf("CacheEventType(%d)", int(t))
	}
}

// CacheEvent represents an event that occurred in the cache
type CacheEvent[K comparable, V any] struct {
	Type      CacheEventType
	Key       K
	Value     V
	Timestamp time.Time
}

// CacheCallback is a function that handles cache events.
// Callbacks run after the cache lock is released and may call back into the cache.
type CacheCallback[K comparable, V any] func(CacheEvent[K, V])

// CacheStats is a point-in-time copy of the cache counters
type CacheStats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	Expirations int64
	Size        int
	MaxSize     int
}

// HitRatio returns hits / (hits + misses), or 0 before the first lookup
func (s CacheStats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// item represents a cache entry with its timestamps. A zero expiresAt never expires.
type item[V any] struct {
	value      V
	createdAt  time.Time
	lastAccess time.Time
	expiresAt  time.Time
}

// MemoryCache is a bounded, thread-safe key/value cache with pluggable eviction order
// (LRU by default) and optional per-entry TTL.
//
// The entry map and the policy index are guarded by one mutex, so eviction and
// access-order updates are atomic with the Put or Get that triggers them.
type MemoryCache[K comparable, V any] struct {
	mu        sync.Mutex
	items     map[K]*item[V]
	policy    policy.Policy[K]
	maxSize   int
	ttlConfig ttl.Config
	store     store.Store[K, V]
	metrics   metrics.Exporter
	logger    *slog.Logger
	now       func() time.Time
	loads     singleflight.Group
	loadKey   func(K) (string, bool)

	callbacks   []CacheCallback[K, V]
	callbacksMu sync.RWMutex

	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64

	cleanupInterval time.Duration
	cleanupStop     chan struct{}
	cleanupDone     chan struct{}
	closeOnce       sync.Once
	closed          atomic.Bool
}

// NewMemoryCache creates a new cache with the given options.
// A negative maximum size is rejected; a maximum size of zero retains nothing.
func NewMemoryCache[K comparable, V any](opts ...Option[K, V]) (*MemoryCache[K, V], error) {
	options := DefaultOptions[K, V]()
	for _, opt := range opts {
		opt(options)
	}

	if options.MaxSize < 0 {
		return nil, errors.WrapError("NewMemoryCache", nil, errors.ErrInvalidSize)
	}
	if err := ttl.Validate(options.TTLConfig); err != nil {
		return nil, err
	}
	if options.Policy == nil {
		options.Policy = policy.NewLRU[K]()
	}
	if options.Metrics == nil {
		options.Metrics = metrics.NewCacheMetrics()
	}
	if options.Now == nil {
		options.Now = time.Now
	}

	c := &MemoryCache[K, V]{
		items:           make(map[K]*item[V]),
		policy:          options.Policy,
		maxSize:         options.MaxSize,
		ttlConfig:       options.TTLConfig,
		store:           options.Store,
		metrics:         options.Metrics,
		logger:          loggerOrDefault(options.Logger).With("component", "cache"),
		now:             options.Now,
		loadKey:         scalarLoadKey[K],
		cleanupInterval: options.CleanupInterval,
	}
	if fn := options.LoadKey; fn != nil {
		c.loadKey = func(key K) (string, bool) { return fn(key), true }
	}

	if c.cleanupInterval > 0 {
		c.cleanupStop = make(chan struct{})
		c.cleanupDone = make(chan struct{})
		go c.cleanup()
	}

	return c, nil
}

// OnEvent registers a callback function for cache events
func (c *MemoryCache[K, V]) OnEvent(callback CacheCallback[K, V]) {
	c.callbacksMu.Lock()
	defer c.callbacksMu.Unlock()
	c.callbacks = append(c.callbacks, callback)
}

func (c *MemoryCache[K, V]) emit(events []CacheEvent[K, V]) {
	if len(events) == 0 {
		return
	}
	c.callbacksMu.RLock()
	callbacks := c.callbacks
	c.callbacksMu.RUnlock()

	for _, ev := range events {
		for _, cb := range callbacks {
			cb(ev)
		}
	}
}

// Put inserts or overwrites key and marks it most recently used. When a new key would push the
// cache past its maximum size, the policy's victim is evicted first.
// Without WithTTL the configured default TTL applies.
func (c *MemoryCache[K, V]) Put(key K, value V, opts ...PutOption) {
	if c.closed.Load() {
		return
	}

	var po putOptions
	for _, opt := range opts {
		opt(&po)
	}

	now := c.now()
	expiresAt := ttl.DefaultExpiration(now, c.ttlConfig)
	if po.hasTTL {
		expiresAt = ttl.ExpirationFor(now, po.ttl, c.ttlConfig)
	}

	c.mu.Lock()
	events := c.insertLocked(key, value, now, expiresAt)
	size := len(c.items)
	c.mu.Unlock()

	c.metrics.UpdateSize(int64(size))
	c.emit(events)
	c.writeThrough(key, value, now, expiresAt)
}

// insertLocked stores the entry and evicts as needed. Must be called with c.mu held.
func (c *MemoryCache[K, V]) insertLocked(key K, value V, now, expiresAt time.Time) []CacheEvent[K, V] {
	events := []CacheEvent[K, V]{{Type: EventTypeSet, Key: key, Value: value, Timestamp: now}}

	if c.maxSize == 0 {
		c.evictions.Add(1)
		c.metrics.RecordEviction()
		return append(events, CacheEvent[K, V]{Type: EventTypeEviction, Key: key, Value: value, Timestamp: now})
	}

	if it, ok := c.items[key]; ok {
		it.value = value
		it.lastAccess = now
		it.expiresAt = expiresAt
		c.policy.OnSet(key)
		return events
	}

	for len(c.items) >= c.maxSize {
		victim, ok := c.policy.Evict()
		if !ok {
			break
		}
		evicted, ok := c.items[victim]
		if !ok {
			continue
		}
		delete(c.items, victim)
		c.evictions.Add(1)
		c.metrics.RecordEviction()
		c.logger.Debug("evicted entry", "key", victim, "size", len(c.items))
		events = append(events, CacheEvent[K, V]{Type: EventTypeEviction, Key: victim, Value: evicted.value, Timestamp: now})
	}

	c.items[key] = &item[V]{value: value, createdAt: now, lastAccess: now, expiresAt: expiresAt}
	c.policy.OnSet(key)
	return events
}

func (c *MemoryCache[K, V]) writeThrough(key K, value V, now, expiresAt time.Time) {
	if c.store == nil {
		return
	}
	ctx := context.Background()

	var err error
	switch left, ok := ttl.Remaining(now, expiresAt); {
	case !ok:
		err = c.store.Set(ctx, key, value, 0)
	case left <= 0:
		c.dropFromStore(key)
	default:
		err = c.store.Set(ctx, key, value, left)
	}
	if err != nil {
		c.logger.Warn("store write failed", "key", key, "error", err)
	}
}

// Get returns the live value for key. Expired entries are removed and reported absent.
// On a memory miss the store, if any, is consulted and a hit there is promoted into memory.
func (c *MemoryCache[K, V]) Get(key K) (V, bool) {
	var zero V
	if c.closed.Load() {
		return zero, false
	}

	now := c.now()
	var events []CacheEvent[K, V]

	c.mu.Lock()
	if it, ok := c.items[key]; ok {
		if !ttl.IsExpired(now, it.expiresAt) {
			it.lastAccess = now
			c.policy.OnGet(key)
			value := it.value
			c.mu.Unlock()
			c.hits.Add(1)
			c.metrics.RecordHit()
			return value, true
		}
		events = append(events, c.expireLocked(key, it, now))
	}
	size := len(c.items)
	c.mu.Unlock()

	if len(events) > 0 {
		c.metrics.UpdateSize(int64(size))
		c.emit(events)
		c.dropFromStore(key)
	} else if value, ok := c.fromStore(key, now); ok {
		return value, true
	}

	c.misses.Add(1)
	c.metrics.RecordMiss()
	return zero, false
}

func (c *MemoryCache[K, V]) fromStore(key K, now time.Time) (V, bool) {
	var zero V
	if c.store == nil {
		return zero, false
	}
	e, ok, err := c.store.GetEntry(context.Background(), key)
	if err != nil {
		c.logger.Warn("store read failed", "key", key, "error", err)
		return zero, false
	}
	if !ok {
		return zero, false
	}
	value := e.Value

	// the entry keeps the deadline it was written with
	var expiresAt time.Time
	if e.TTL > 0 {
		expiresAt = now.Add(e.TTL)
	}

	c.mu.Lock()
	events := c.insertLocked(key, value, now, expiresAt)
	size := len(c.items)
	c.mu.Unlock()

	c.hits.Add(1)
	c.metrics.RecordHit()
	c.metrics.UpdateSize(int64(size))
	c.emit(events)
	return value, true
}

// expireLocked drops an expired entry. Must be called with c.mu held.
func (c *MemoryCache[K, V]) expireLocked(key K, it *item[V], now time.Time) CacheEvent[K, V] {
	delete(c.items, key)
	c.policy.OnDelete(key)
	c.expirations.Add(1)
	c.metrics.RecordExpiration()
	return CacheEvent[K, V]{Type: EventTypeExpiration, Key: key, Value: it.value, Timestamp: now}
}

// GetOrLoad returns the cached value for key or loads it. Concurrent callers asking for the same
// missing key share one loader invocation. Loader errors are returned and nothing is cached.
//
// Calls are grouped by WithLoadKey when set, otherwise by type and value for string, integer
// and bool keys. Other keys load independently.
func (c *MemoryCache[K, V]) GetOrLoad(ctx context.Context, key K, loader func(context.Context) (V, error), opts ...PutOption) (V, error) {
	var zero V
	if loader == nil {
		return zero, errors.WrapError("GetOrLoad", key, errors.ErrNilFunc)
	}
	if c.closed.Load() {
		return zero, errors.WrapError("GetOrLoad", key, errors.ErrCacheClosed)
	}
	if value, ok := c.Get(key); ok {
		return value, nil
	}

	load := func() (any, error) {
		if value, ok := c.peek(key); ok {
			return value, nil
		}
		value, err := loader(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.Put(key, value, opts...)
		return value, nil
	}

	var ch <-chan singleflight.Result
	if group, ok := c.loadKey(key); ok {
		ch = c.loads.DoChan(group, load)
	} else {
		res := make(chan singleflight.Result, 1)
		go func() {
			value, err := load()
			res <- singleflight.Result{Val: value, Err: err}
		}()
		ch = res
	}

	select {
	case <-ctx.Done():
		return zero, errors.WrapError("GetOrLoad", key, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return zero, errors.WrapError("GetOrLoad", key, res.Err)
		}
		value, _ := res.Val.(V)
		return value, nil
	}
}

// scalarLoadKey groups keys whose dynamic type has a string, integer or bool kind.
// Other keys are not grouped, since distinct values can print alike.
func scalarLoadKey[K comparable](key K) (string, bool) {
	v := reflect.ValueOf(any(key))
	var text string
	switch v.Kind() {
	case reflect.String:
		text = v.String()
	case reflect.Bool:
		text = strconv.FormatBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		text = strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		text = strconv.FormatUint(v.Uint(), 10)
	default:
		return "", false
	}
	return v.Type().String() + ":" + text, true
}

// peek returns a live in-memory value without touching counters or access order
func (c *MemoryCache[K, V]) peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if it, ok := c.items[key]; ok && !ttl.IsExpired(c.now(), it.expiresAt) {
		return it.value, true
	}
	var zero V
	return zero, false
}

// Remove deletes key from memory and the store. It reports whether a live entry was removed.
func (c *MemoryCache[K, V]) Remove(key K) bool {
	if c.closed.Load() {
		return false
	}

	now := c.now()
	var events []CacheEvent[K, V]
	removed := false

	c.mu.Lock()
	if it, ok := c.items[key]; ok {
		if ttl.IsExpired(now, it.expiresAt) {
			events = append(events, c.expireLocked(key, it, now))
		} else {
			delete(c.items, key)
			c.policy.OnDelete(key)
			removed = true
			events = append(events, CacheEvent[K, V]{Type: EventTypeDelete, Key: key, Value: it.value, Timestamp: now})
		}
	}
	size := len(c.items)
	c.mu.Unlock()

	c.metrics.UpdateSize(int64(size))
	c.emit(events)

	c.dropFromStore(key)
	return removed
}

func (c *MemoryCache[K, V]) dropFromStore(key K) {
	if c.store == nil {
		return
	}
	if err := c.store.Delete(context.Background(), key); err != nil {
		c.logger.Warn("store delete failed", "key", key, "error", err)
	}
}

// Clear removes every entry from memory and the store
func (c *MemoryCache[K, V]) Clear() {
	if c.closed.Load() {
		return
	}

	c.mu.Lock()
	c.items = make(map[K]*item[V])
	c.policy.OnClear()
	c.mu.Unlock()

	c.metrics.UpdateSize(0)
	if c.store != nil {
		if err := c.store.Clear(context.Background()); err != nil {
			c.logger.Warn("store clear failed", "error", err)
		}
	}
}

// Size returns the number of live entries. Expired entries are purged first.
func (c *MemoryCache[K, V]) Size() int {
	size, events := c.purgeExpired()
	c.emit(events)
	return size
}

// Keys returns the live keys, most recently used first for the LRU policy.
// In general the next eviction victim comes last.
func (c *MemoryCache[K, V]) Keys() []K {
	_, events := c.purgeExpired()
	c.emit(events)

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policy.Keys()
}

// Stats returns a snapshot of the cache counters
func (c *MemoryCache[K, V]) Stats() CacheStats {
	c.mu.Lock()
	size := len(c.items)
	c.mu.Unlock()

	return CacheStats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
		Size:        size,
		MaxSize:     c.maxSize,
	}
}

func (c *MemoryCache[K, V]) purgeExpired() (int, []CacheEvent[K, V]) {
	now := c.now()
	var events []CacheEvent[K, V]

	c.mu.Lock()
	for key, it := range c.items {
		if ttl.IsExpired(now, it.expiresAt) {
			events = append(events, c.expireLocked(key, it, now))
		}
	}
	size := len(c.items)
	c.mu.Unlock()

	if len(events) > 0 {
		c.metrics.UpdateSize(int64(size))
		c.logger.Debug("purged expired entries", "count", len(events), "size", size)
	}
	return size, events
}

// cleanup periodically removes expired entries
func (c *MemoryCache[K, V]) cleanup() {
	defer close(c.cleanupDone)

	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, events := c.purgeExpired()
			c.emit(events)
		case <-c.cleanupStop:
			return
		}
	}
}

// Close stops the background sweep and closes the store. Later calls are no-ops
// and the cache behaves as empty afterwards.
func (c *MemoryCache[K, V]) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		if c.cleanupStop != nil {
			close(c.cleanupStop)
			<-c.cleanupDone
		}

		c.mu.Lock()
		c.items = make(map[K]*item[V])
		c.policy.OnClear()
		c.mu.Unlock()

		c.callbacksMu.Lock()
		c.callbacks = nil
		c.callbacksMu.Unlock()

		if c.store != nil {
			err = c.store.Close(context.Background())
		}
	})
	return err
}
