package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gozephyr/perfkit/errors"
	"github.com/gozephyr/perfkit/ttl"
)

// entry represents a stored value with its deadline
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Stats tracks store statistics
type Stats struct {
	Hits    atomic.Int64
	Misses  atomic.Int64
	Sets    atomic.Int64
	Deletes atomic.Int64
	Clears  atomic.Int64
}

// memoryStore implements Store with an unbounded map. Expired entries are dropped on read.
type memoryStore[K comparable, V any] struct {
	mu     sync.RWMutex
	items  map[K]*entry[V]
	now    func() time.Time
	stats  Stats
	closed atomic.Bool
}

// NewMemoryStore creates a new memory store
func NewMemoryStore[K comparable, V any]() Store[K, V] {
	return &memoryStore[K, V]{
		items: make(map[K]*entry[V]),
		now:   time.Now,
	}
}

// Get retrieves a value from the store
func (m *memoryStore[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	e, ok, err := m.GetEntry(ctx, key)
	return e.Value, ok, err
}

// GetEntry retrieves a value and its remaining TTL
func (m *memoryStore[K, V]) GetEntry(ctx context.Context, key K) (Entry[V], bool, error) {
	if err := m.check(ctx, "Get", key); err != nil {
		return Entry[V]{}, false, err
	}

	m.mu.RLock()
	e, exists := m.items[key]
	m.mu.RUnlock()
	if !exists {
		m.stats.Misses.Add(1)
		return Entry[V]{}, false, nil
	}

	now := m.now()
	if ttl.IsExpired(now, e.expiresAt) {
		m.stats.Misses.Add(1)
		m.mu.Lock()
		if cur, ok := m.items[key]; ok && cur == e {
			delete(m.items, key)
		}
		m.mu.Unlock()
		return Entry[V]{}, false, nil
	}

	m.stats.Hits.Add(1)
	left, _ := ttl.Remaining(now, e.expiresAt)
	return Entry[V]{Value: e.value, TTL: left}, true, nil
}

// Set stores a value in the store
func (m *memoryStore[K, V]) Set(ctx context.Context, key K, value V, ttlDuration time.Duration) error {
	if err := m.check(ctx, "Set", key); err != nil {
		return err
	}

	e := &entry[V]{value: value}
	if ttlDuration > 0 {
		e.expiresAt = m.now().Add(ttlDuration)
	}

	m.mu.Lock()
	m.items[key] = e
	m.mu.Unlock()
	m.stats.Sets.Add(1)
	return nil
}

// Delete removes a value from the store
func (m *memoryStore[K, V]) Delete(ctx context.Context, key K) error {
	if err := m.check(ctx, "Delete", key); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	m.stats.Deletes.Add(1)
	return nil
}

// Clear removes all values from the store
func (m *memoryStore[K, V]) Clear(ctx context.Context) error {
	if err := m.check(ctx, "Clear", nil); err != nil {
		return err
	}

	m.mu.Lock()
	m.items = make(map[K]*entry[V])
	m.mu.Unlock()
	m.stats.Clears.Add(1)
	return nil
}

// Len returns the number of stored entries, expired ones included until they are read
func (m *memoryStore[K, V]) Len(context.Context) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Close releases the map
func (m *memoryStore[K, V]) Close(context.Context) error {
	if m.closed.Swap(true) {
		return nil
	}
	m.mu.Lock()
	m.items = make(map[K]*entry[V])
	m.mu.Unlock()
	return nil
}

func (m *memoryStore[K, V]) check(ctx context.Context, op string, key any) error {
	if m.closed.Load() {
		return errors.WrapError(op, key, errors.ErrStoreError)
	}
	if err := ctx.Err(); err != nil {
		return errors.WrapError(op, key, err)
	}
	return nil
}
