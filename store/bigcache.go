package store

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/gozephyr/perfkit/errors"
)

// BigCacheConfig configures a bigcache-backed store
type BigCacheConfig struct {
	// LifeWindow is the store-wide upper bound on entry lifetime
	LifeWindow time.Duration
	// HardMaxCacheSizeMB bounds the memory used by the shards. Zero means unbounded.
	HardMaxCacheSizeMB int
	Codec              CodecConfig
}

// DefaultBigCacheConfig returns a ten-minute, 64MB store configuration
func DefaultBigCacheConfig() BigCacheConfig {
	return BigCacheConfig{
		LifeWindow:         10 * time.Minute,
		HardMaxCacheSizeMB: 64,
		Codec:              DefaultCodecConfig(),
	}
}

// bigCacheStore keeps encoded values in github.com/allegro/bigcache shards. Entries are dropped
// by bigcache after LifeWindow and by the store once their own TTL elapses, whichever is first.
type bigCacheStore[K comparable, V any] struct {
	cache *bigcache.BigCache
	codec *Codec[envelope[V]]
	key   KeyFunc[K]
	now   func() time.Time
}

// NewBigCacheStore creates a store backed by bigcache. ctx bounds bigcache's cleanup goroutine.
// A nil keyFunc selects DefaultKeyFunc.
func NewBigCacheStore[K comparable, V any](ctx context.Context, config BigCacheConfig, keyFunc KeyFunc[K]) (Store[K, V], error) {
	if keyFunc == nil {
		keyFunc = DefaultKeyFunc[K]
	}
	bcConfig := bigcache.DefaultConfig(config.LifeWindow)
	bcConfig.HardMaxCacheSize = config.HardMaxCacheSizeMB
	bcConfig.Verbose = false
	bcConfig.Logger = nil

	cache, err := bigcache.New(ctx, bcConfig)
	if err != nil {
		return nil, errors.WrapError("NewBigCacheStore", nil, stderrors.Join(errors.ErrStoreError, err))
	}
	return &bigCacheStore[K, V]{
		cache: cache,
		codec: NewCodec[envelope[V]](config.Codec),
		key:   keyFunc,
		now:   time.Now,
	}, nil
}

func (s *bigCacheStore[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	e, ok, err := s.GetEntry(ctx, key)
	return e.Value, ok, err
}

func (s *bigCacheStore[K, V]) GetEntry(ctx context.Context, key K) (Entry[V], bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry[V]{}, false, errors.WrapError("Get", key, err)
	}
	k := s.key(key)
	data, err := s.cache.Get(k)
	if stderrors.Is(err, bigcache.ErrEntryNotFound) {
		return Entry[V]{}, false, nil
	}
	if err != nil {
		return Entry[V]{}, false, errors.WrapError("Get", key, stderrors.Join(errors.ErrStoreError, err))
	}
	env, err := s.codec.Decode(data)
	if err != nil {
		return Entry[V]{}, false, err
	}
	e, ok := entryAt(s.now(), env)
	if !ok {
		_ = s.cache.Delete(k)
	}
	return e, ok, nil
}

// Set stores value. The per-entry deadline travels in the payload and is enforced on read.
func (s *bigCacheStore[K, V]) Set(ctx context.Context, key K, value V, ttlDuration time.Duration) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapError("Set", key, err)
	}
	data, err := s.codec.Encode(sealed(s.now(), value, ttlDuration))
	if err != nil {
		return err
	}
	if err := s.cache.Set(s.key(key), data); err != nil {
		return errors.WrapError("Set", key, stderrors.Join(errors.ErrStoreError, err))
	}
	return nil
}

func (s *bigCacheStore[K, V]) Delete(ctx context.Context, key K) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapError("Delete", key, err)
	}
	err := s.cache.Delete(s.key(key))
	if err != nil && !stderrors.Is(err, bigcache.ErrEntryNotFound) {
		return errors.WrapError("Delete", key, stderrors.Join(errors.ErrStoreError, err))
	}
	return nil
}

func (s *bigCacheStore[K, V]) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapError("Clear", nil, err)
	}
	if err := s.cache.Reset(); err != nil {
		return errors.WrapError("Clear", nil, stderrors.Join(errors.ErrStoreError, err))
	}
	return nil
}

func (s *bigCacheStore[K, V]) Len(context.Context) int {
	return s.cache.Len()
}

func (s *bigCacheStore[K, V]) Close(context.Context) error {
	return s.cache.Close()
}
