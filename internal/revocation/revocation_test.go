package revocation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client), s
}

func TestRedisEntryExpiresWithTTL(t *testing.T) {
	store, s := newRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "blacklist:token:abc", "blacklisted", 30*time.Second))

	ok, err := store.Exists(ctx, "blacklist:token:abc")
	require.NoError(t, err)
	require.True(t, ok)

	ttl := s.TTL("blacklist:token:abc")
	require.Equal(t, 30*time.Second, ttl)
	val, err := s.Get("blacklist:token:abc")
	require.NoError(t, err)
	require.Equal(t, "blacklisted", val)

	s.FastForward(31 * time.Second)
	ok, err = store.Exists(ctx, "blacklist:token:abc")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisRejectsNonPositiveTTL(t *testing.T) {
	store, s := newRedis(t)
	require.Error(t, store.Set(context.Background(), "blacklist:token:x", "blacklisted", 0))
	require.False(t, s.Exists("blacklist:token:x"))
}

func TestRedisDeleteAllAndCountByPrefix(t *testing.T) {
	store, s := newRedis(t)
	ctx := context.Background()

	for i := 0; i < 1200; i++ {
		require.NoError(t, store.Set(ctx, fmt.Sprintf("blacklist:token:%d", i), "blacklisted", time.Hour))
	}
	require.NoError(t, s.Set("session:other", "keep"))

	n, err := store.Count(ctx, "blacklist:token:")
	require.NoError(t, err)
	require.EqualValues(t, 1200, n)

	deleted, err := store.DeleteAll(ctx, "blacklist:token:")
	require.NoError(t, err)
	require.EqualValues(t, 1200, deleted)

	n, err = store.Count(ctx, "blacklist:token:")
	require.NoError(t, err)
	require.Zero(t, n)
	require.True(t, s.Exists("session:other"))
}

func TestRedisErrorsSurface(t *testing.T) {
	store, s := newRedis(t)
	s.Close()

	_, err := store.Exists(context.Background(), "blacklist:token:abc")
	require.Error(t, err)
	require.Error(t, store.Set(context.Background(), "blacklist:token:abc", "blacklisted", time.Minute))
	require.Error(t, store.Ping(context.Background()))
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestMemoryExpiry(t *testing.T) {
	clk := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemory(WithClock(clk.Now))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "blacklist:token:a", "blacklisted", time.Minute))
	require.NoError(t, store.Set(ctx, "blacklist:token:b", "blacklisted", 2*time.Minute))
	require.NoError(t, store.Set(ctx, "other:c", "x", 2*time.Minute))

	n, err := store.Count(ctx, "blacklist:token:")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	clk.Advance(time.Minute)
	ok, err := store.Exists(ctx, "blacklist:token:a")
	require.NoError(t, err)
	require.False(t, ok, "entry must not outlive its ttl")

	ok, err = store.Exists(ctx, "blacklist:token:b")
	require.NoError(t, err)
	require.True(t, ok)

	deleted, err := store.DeleteAll(ctx, "blacklist:token:")
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	ok, err = store.Exists(ctx, "other:c")
	require.NoError(t, err)
	require.True(t, ok)
}
