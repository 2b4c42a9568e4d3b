package reporting

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client)
}

func TestCacheRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	report := ValuationReport{BranchID: 1, TotalValue: 42.5}
	require.NoError(t, cache.Set(ctx, 1, "valuation", report))

	var got ValuationReport
	hit, err := cache.Get(ctx, 1, "valuation", &got)
	require.NoError(t, err)
	require.True(t, hit)
	require.InDelta(t, 42.5, got.TotalValue, 1e-9)
}

func TestCacheBumpInvalidates(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, 1, "valuation", ValuationReport{BranchID: 1, TotalValue: 10}))
	require.NoError(t, cache.Bump(ctx, 1))

	var got ValuationReport
	hit, err := cache.Get(ctx, 1, "valuation", &got)
	require.NoError(t, err)
	require.False(t, hit)

	// Other branches are untouched.
	require.NoError(t, cache.Set(ctx, 2, "valuation", ValuationReport{BranchID: 2, TotalValue: 7}))
	require.NoError(t, cache.Bump(ctx, 1))
	hit, err = cache.Get(ctx, 2, "valuation", &got)
	require.NoError(t, err)
	require.True(t, hit)
}

func TestCacheNilClientIsNoop(t *testing.T) {
	cache := NewCache(nil)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, 1, "valuation", ValuationReport{}))
	require.NoError(t, cache.Bump(ctx, 1))
	var got ValuationReport
	hit, err := cache.Get(ctx, 1, "valuation", &got)
	require.NoError(t, err)
	require.False(t, hit)
}
