// Package store provides second-tier storage backends for the memory cache.
//
// A store sits behind a MemoryCache: writes go through to it and memory misses fall back to it.
// The byte-oriented backends (freecache, bigcache) keep values outside the Go heap's object graph
// and encode them with a Codec.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/gozephyr/perfkit/ttl"
)

// Entry is a value read back from a store together with its remaining lifetime
type Entry[V any] struct {
	Value V
	// TTL is the time left before the entry expires, measured by the store's clock at read time.
	// Zero means the entry never expires.
	TTL time.Duration
}

// Store defines the interface for cache storage backends.
// Entries whose TTL has elapsed are reported absent and deleted on read.
type Store[K comparable, V any] interface {
	// Get retrieves a value from the store
	Get(ctx context.Context, key K) (V, bool, error)

	// GetEntry retrieves a value and its remaining TTL
	GetEntry(ctx context.Context, key K) (Entry[V], bool, error)

	// Set stores a value. A ttl of zero means the backend default (usually no expiry).
	Set(ctx context.Context, key K, value V, ttl time.Duration) error

	// Delete removes a value from the store
	Delete(ctx context.Context, key K) error

	// Clear removes all values from the store
	Clear(ctx context.Context) error

	// Len returns the number of items in the store
	Len(ctx context.Context) int

	// Close releases any resources used by the store
	Close(ctx context.Context) error
}

// envelope is the encoded form used by the byte-oriented backends. ExpiresAt is zero for
// entries without expiry.
type envelope[V any] struct {
	Value     V
	ExpiresAt time.Time
}

func sealed[V any](now time.Time, value V, ttlDuration time.Duration) envelope[V] {
	env := envelope[V]{Value: value}
	if ttlDuration > 0 {
		env.ExpiresAt = now.Add(ttlDuration)
	}
	return env
}

// entryAt converts env into an Entry as seen at now. ok is false once env has expired.
func entryAt[V any](now time.Time, env envelope[V]) (Entry[V], bool) {
	left, hasTTL := ttl.Remaining(now, env.ExpiresAt)
	if hasTTL && left <= 0 {
		return Entry[V]{}, false
	}
	return Entry[V]{Value: env.Value, TTL: left}, true
}

// KeyFunc renders a cache key as the string a byte-oriented backend indexes by
type KeyFunc[K comparable] func(K) string

// DefaultKeyFunc formats keys with fmt. Keys whose %v forms collide must supply their own KeyFunc.
func DefaultKeyFunc[K comparable](key K) string {
	return fmt.Sprint(key)
}
