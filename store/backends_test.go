package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type quote struct {
	Symbol string
	Price  float64
}

func exerciseStore(t *testing.T, s Store[string, quote]) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, "AAPL", quote{Symbol: "AAPL", Price: 189.5}, 0))
	require.NoError(t, s.Set(ctx, "MSFT", quote{Symbol: "MSFT", Price: 410.25}, time.Minute))

	got, ok, err := s.Get(ctx, "AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, quote{Symbol: "AAPL", Price: 189.5}, got)
	require.Equal(t, 2, s.Len(ctx))

	require.NoError(t, s.Delete(ctx, "AAPL"))
	require.NoError(t, s.Delete(ctx, "AAPL"))
	_, ok, err = s.Get(ctx, "AAPL")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Clear(ctx))
	require.Equal(t, 0, s.Len(ctx))
}

// exerciseTTL drives s with a fake clock installed through setClock
func exerciseTTL(t *testing.T, s Store[string, quote], setClock func(func() time.Time)) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	setClock(func() time.Time { return now })

	require.NoError(t, s.Set(ctx, "short", quote{Symbol: "short"}, 100*time.Millisecond))
	require.NoError(t, s.Set(ctx, "forever", quote{Symbol: "forever"}, 0))

	e, ok, err := s.GetEntry(ctx, "short")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "short", e.Value.Symbol)
	require.Equal(t, 100*time.Millisecond, e.TTL)

	now = now.Add(40 * time.Millisecond)
	e, ok, err = s.GetEntry(ctx, "short")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 60*time.Millisecond, e.TTL)

	now = now.Add(60 * time.Millisecond)
	_, ok, err = s.GetEntry(ctx, "short")
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = s.Get(ctx, "short")
	require.NoError(t, err)
	require.False(t, ok)

	e, ok, err = s.GetEntry(ctx, "forever")
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, e.TTL)
	require.Equal(t, 1, s.Len(ctx))
}

func TestFreeCacheStore(t *testing.T) {
	s := NewFreeCacheStore[string, quote](DefaultFreeCacheConfig(), nil)
	defer s.Close(context.Background())
	exerciseStore(t, s)

	t.Run("TTL", func(t *testing.T) {
		s := NewFreeCacheStore[string, quote](DefaultFreeCacheConfig(), nil)
		defer s.Close(context.Background())
		exerciseTTL(t, s, func(now func() time.Time) {
			s.(*freeCacheStore[string, quote]).now = now
		})
	})
}

func TestBigCacheStore(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := NewBigCacheStore[string, quote](ctx, DefaultBigCacheConfig(), nil)
	require.NoError(t, err)
	defer s.Close(ctx)
	exerciseStore(t, s)

	t.Run("TTL", func(t *testing.T) {
		s, err := NewBigCacheStore[string, quote](ctx, DefaultBigCacheConfig(), nil)
		require.NoError(t, err)
		defer s.Close(ctx)
		exerciseTTL(t, s, func(now func() time.Time) {
			s.(*bigCacheStore[string, quote]).now = now
		})
	})
}

func TestMemoryStoreTTL(t *testing.T) {
	s := NewMemoryStore[string, quote]()
	defer s.Close(context.Background())
	exerciseTTL(t, s, func(now func() time.Time) {
		s.(*memoryStore[string, quote]).now = now
	})
}

func TestCustomKeyFunc(t *testing.T) {
	type pair struct{ A, B int }
	ctx := context.Background()
	s := NewFreeCacheStore[pair, string](DefaultFreeCacheConfig(), func(p pair) string {
		return "pair:" + DefaultKeyFunc(p.A) + ":" + DefaultKeyFunc(p.B)
	})
	defer s.Close(ctx)

	require.NoError(t, s.Set(ctx, pair{1, 2}, "x", 0))
	v, ok, err := s.Get(ctx, pair{1, 2})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "x", v)
}

func TestExpireSeconds(t *testing.T) {
	require.Equal(t, 0, expireSeconds(0))
	require.Equal(t, 0, expireSeconds(-time.Second))
	require.Equal(t, 1, expireSeconds(100*time.Millisecond))
	require.Equal(t, 2, expireSeconds(1500*time.Millisecond))
	require.Equal(t, 60, expireSeconds(time.Minute))
}
