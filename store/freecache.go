package store

import (
	"context"
	stderrors "errors"
	"math"
	"time"

	"github.com/coocood/freecache"

	"github.com/gozephyr/perfkit/errors"
)

// FreeCacheConfig configures a freecache-backed store
type FreeCacheConfig struct {
	// SizeBytes is the segment memory preallocated by freecache (minimum 512KB)
	SizeBytes int
	Codec     CodecConfig
}

// DefaultFreeCacheConfig returns a 32MB store configuration
func DefaultFreeCacheConfig() FreeCacheConfig {
	return FreeCacheConfig{
		SizeBytes: 32 * 1024 * 1024,
		Codec:     DefaultCodecConfig(),
	}
}

// freeCacheStore keeps encoded values in a freecache ring buffer. Freecache evicts on its own when
// the segment fills up, so a Get may miss for a value that was Set earlier.
type freeCacheStore[K comparable, V any] struct {
	cache *freecache.Cache
	codec *Codec[envelope[V]]
	key   KeyFunc[K]
	now   func() time.Time
}

// NewFreeCacheStore creates a store backed by github.com/coocood/freecache.
// A nil keyFunc selects DefaultKeyFunc.
func NewFreeCacheStore[K comparable, V any](config FreeCacheConfig, keyFunc KeyFunc[K]) Store[K, V] {
	if keyFunc == nil {
		keyFunc = DefaultKeyFunc[K]
	}
	return &freeCacheStore[K, V]{
		cache: freecache.NewCache(config.SizeBytes),
		codec: NewCodec[envelope[V]](config.Codec),
		key:   keyFunc,
		now:   time.Now,
	}
}

func (s *freeCacheStore[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	e, ok, err := s.GetEntry(ctx, key)
	return e.Value, ok, err
}

func (s *freeCacheStore[K, V]) GetEntry(ctx context.Context, key K) (Entry[V], bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry[V]{}, false, errors.WrapError("Get", key, err)
	}
	k := []byte(s.key(key))
	data, err := s.cache.Get(k)
	if stderrors.Is(err, freecache.ErrNotFound) {
		return Entry[V]{}, false, nil
	}
	if err != nil {
		return Entry[V]{}, false, errors.WrapError("Get", key, errors.ErrStoreError)
	}
	env, err := s.codec.Decode(data)
	if err != nil {
		return Entry[V]{}, false, err
	}
	// freecache expires in whole seconds; the envelope deadline is exact
	e, ok := entryAt(s.now(), env)
	if !ok {
		s.cache.Del(k)
	}
	return e, ok, nil
}

func (s *freeCacheStore[K, V]) Set(ctx context.Context, key K, value V, ttlDuration time.Duration) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapError("Set", key, err)
	}
	data, err := s.codec.Encode(sealed(s.now(), value, ttlDuration))
	if err != nil {
		return err
	}
	if err := s.cache.Set([]byte(s.key(key)), data, expireSeconds(ttlDuration)); err != nil {
		return errors.WrapError("Set", key, stderrors.Join(errors.ErrStoreError, err))
	}
	return nil
}

func (s *freeCacheStore[K, V]) Delete(ctx context.Context, key K) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapError("Delete", key, err)
	}
	s.cache.Del([]byte(s.key(key)))
	return nil
}

func (s *freeCacheStore[K, V]) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapError("Clear", nil, err)
	}
	s.cache.Clear()
	return nil
}

func (s *freeCacheStore[K, V]) Len(context.Context) int {
	return int(s.cache.EntryCount())
}

func (s *freeCacheStore[K, V]) Close(context.Context) error {
	s.cache.Clear()
	return nil
}

// expireSeconds converts ttl to freecache's whole-second expiry, rounding up. Zero means no expiry.
func expireSeconds(ttlDuration time.Duration) int {
	if ttlDuration <= 0 {
		return 0
	}
	return int(math.Ceil(ttlDuration.Seconds()))
}
