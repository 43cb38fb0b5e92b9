package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetRoundTrip(t *testing.T) {
	c := New(time.Hour)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v"))
	val, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", val)
}

func TestGetMissingKey(t *testing.T) {
	c := New(time.Hour)
	defer c.Close()

	val, ok, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, val)
}

func TestSetExpires(t *testing.T) {
	c := New(time.Hour)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.SetEx(ctx, "k", "v", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "expired key must not be returned even before the sweep runs")
}

func TestDelete(t *testing.T) {
	c := New(time.Hour)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v"))
	deleted, err := c.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = c.Delete(ctx, "k")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestExists(t *testing.T) {
	c := New(time.Hour)
	defer c.Close()
	ctx := context.Background()

	exists, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, c.Set(ctx, "k", 1))
	exists, err = c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestTTLNoExpiry(t *testing.T) {
	c := New(time.Hour)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", 1))
	ttl, ok, err := c.TTL(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Duration(-1), ttl)
}

func TestTTLWithExpiry(t *testing.T) {
	c := New(time.Hour)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.SetEx(ctx, "k", 1, time.Minute))
	ttl, ok, err := c.TTL(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, ttl > 0 && ttl <= time.Minute)
}

func TestExpireAndPersist(t *testing.T) {
	c := New(time.Hour)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", 1))

	ok, err := c.Expire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ttl, _, _ := c.TTL(ctx, "k")
	assert.True(t, ttl > 0)

	persisted, err := c.Persist(ctx, "k")
	require.NoError(t, err)
	assert.True(t, persisted)

	ttl, _, _ = c.TTL(ctx, "k")
	assert.Equal(t, time.Duration(-1), ttl)
}

func TestExpireZeroDeletesImmediately(t *testing.T) {
	c := New(time.Hour)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", 1))
	ok, err := c.Expire(ctx, "k", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	_, exists, _ := c.Get(ctx, "k")
	assert.False(t, exists)
}

func TestSetNX(t *testing.T) {
	c := New(time.Hour)
	defer c.Close()
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "k", "first")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, "k", "second")
	require.NoError(t, err)
	assert.False(t, ok)

	val, _, _ := c.Get(ctx, "k")
	assert.Equal(t, "first", val)
}

func TestGetAndSet(t *testing.T) {
	c := New(time.Hour)
	defer c.Close()
	ctx := context.Background()

	prev, existed, err := c.GetAndSet(ctx, "k", "new")
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Nil(t, prev)

	prev, existed, err = c.GetAndSet(ctx, "k", "newer")
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, "new", prev)

	val, _, _ := c.Get(ctx, "k")
	assert.Equal(t, "newer", val)
}

func TestKeysSortedAndExcludesExpired(t *testing.T) {
	c := New(time.Hour)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "b", 1))
	require.NoError(t, c.Set(ctx, "a", 1))
	require.NoError(t, c.SetEx(ctx, "c", 1, time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	keys, err := c.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestClear(t *testing.T) {
	c := New(time.Hour)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", 1))
	require.NoError(t, c.Set(ctx, "b", 1))
	require.NoError(t, c.Clear(ctx))

	keys, _ := c.Keys(ctx)
	assert.Empty(t, keys)
}

func TestMGetMSetMDelete(t *testing.T) {
	c := New(time.Hour)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.MSet(ctx, map[string]any{"a": 1, "b": 2}))

	got, err := c.MGet(ctx, []string{"a", "b", "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, got)

	n, err := c.MDelete(ctx, []string{"a", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ = c.MGet(ctx, []string{"a", "b"})
	assert.Equal(t, map[string]any{"b": 2}, got)
}

func TestHealthReflectsState(t *testing.T) {
	c := New(time.Hour)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", "hello"))
	require.NoError(t, c.Set(ctx, "b", "world"))

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, h.NumKeys)
	assert.True(t, h.ApproxBytes > 0)
	assert.True(t, h.LastCleanupAt.IsZero(), "sweep has not ticked yet")
}

func TestSweepEvictsExpiredAndTracksTotals(t *testing.T) {
	c := New(5 * time.Millisecond)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.SetEx(ctx, "k", "v", time.Millisecond))

	require.Eventually(t, func() bool {
		h, _ := c.Health(ctx)
		return h.CleanedCountTotal >= 1
	}, time.Second, 5*time.Millisecond)

	h, _ := c.Health(ctx)
	assert.Equal(t, 0, h.NumKeys)
	assert.False(t, h.LastCleanupAt.IsZero())
}

func TestCloseStopsEvictionGoroutine(t *testing.T) {
	c := New(5 * time.Millisecond)
	c.Close()
	// second Close would deadlock/panic on a closed channel; this just
	// documents the single-call contract by not calling it twice.
}

func TestApproxSize(t *testing.T) {
	assert.Equal(t, int64(len("k")+len("hello")), approxSize("k", "hello"))
	assert.Equal(t, int64(len("k")+8), approxSize("k", 42))
}
