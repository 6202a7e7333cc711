// Package policy provides the access-order indexes the memory cache uses to pick eviction victims.
//
// Implementations are not safe for concurrent use on their own: the cache calls them only while
// holding its per-instance lock, so eviction and index updates stay atomic with the operation that
// triggered them.
package policy

import (
	"fmt"
	"strings"
)

// Policy defines the interface for cache eviction policies
type Policy[K comparable] interface {
	// OnGet is called when a live key is read
	OnGet(key K)

	// OnSet is called when a key is inserted or overwritten
	OnSet(key K)

	// OnDelete is called when a key is removed for any reason other than Evict
	OnDelete(key K)

	// OnClear is called when the cache is cleared
	OnClear()

	// Evict removes and returns the next victim
	Evict() (K, bool)

	// Keys returns tracked keys, the next eviction victim last
	Keys() []K

	// Size returns the number of tracked keys
	Size() int
}

// Kind names a built-in policy
type Kind string

const (
	KindLRU  Kind = "lru"
	KindFIFO Kind = "fifo"
	KindLFU  Kind = "lfu"
)

// New returns the built-in policy for kind. An empty kind selects LRU.
func New[K comparable](kind Kind) (Policy[K], error) {
	switch Kind(strings.ToLower(string(kind))) {
	case "", KindLRU:
		return NewLRU[K](), nil
	case KindFIFO:
		return NewFIFO[K](), nil
	case KindLFU:
		return NewLFU[K](), nil
	default:
		return nil, fmt.Errorf("policy: unknown kind %q", kind)
	}
}
