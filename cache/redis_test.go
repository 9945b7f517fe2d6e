package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := NewRedis(Options{Addr: mr.Addr(), Prefix: "test:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

func TestGetSetAndHashes(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)

	_, err := r.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, r.Set(ctx, "account", `{"free_cash":1}`, 0))
	v, err := r.Get(ctx, "account")
	require.NoError(t, err)
	assert.Equal(t, `{"free_cash":1}`, v)
	assert.True(t, mr.Exists("test:account"))

	require.NoError(t, r.HSet(ctx, "orders", map[string]string{"a": "1", "b": "2"}))
	got, err := r.HGetAll(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, got)

	v, err = r.HGet(ctx, "orders", "b")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
	_, err = r.HGet(ctx, "orders", "zzz")
	assert.True(t, errors.Is(err, ErrNotFound))

	empty, err := r.HGetAll(ctx, "nothing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestBatchIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRedis(t)

	require.NoError(t, r.HSet(ctx, "positions", map[string]string{"old": "x"}))

	err := r.Batch(ctx, func(b Batch) error {
		b.Del("positions")
		b.HSet("positions", map[string]string{"new": "y"})
		b.Set("account", "acct", 0)
		return nil
	})
	require.NoError(t, err)

	got, _ := r.HGetAll(ctx, "positions")
	assert.Equal(t, map[string]string{"new": "y"}, got)
	v, _ := r.Get(ctx, "account")
	assert.Equal(t, "acct", v)

	boom := errors.New("boom")
	err = r.Batch(ctx, func(b Batch) error {
		b.Del("positions")
		b.Set("account", "changed", 0)
		return boom
	})
	assert.True(t, errors.Is(err, boom))

	got, _ = r.HGetAll(ctx, "positions")
	assert.Equal(t, map[string]string{"new": "y"}, got)
	v, _ = r.Get(ctx, "account")
	assert.Equal(t, "acct", v)
}

func TestLockExclusion(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)
	opts := LockOptions{TTL: time.Minute, Wait: 30 * time.Millisecond, Poll: 5 * time.Millisecond}

	l1, err := r.Lock(ctx, "lock:reconcile", opts)
	require.NoError(t, err)

	_, err = r.Lock(ctx, "lock:reconcile", opts)
	assert.True(t, errors.Is(err, ErrLockNotAcquired))

	require.NoError(t, l1.Release(ctx))
	assert.False(t, mr.Exists("test:lock:reconcile"))

	l2, err := r.Lock(ctx, "lock:reconcile", opts)
	require.NoError(t, err)

	// A second release of the first lock must not free the new holder.
	assert.True(t, errors.Is(l1.Release(ctx), ErrLockNotHeld))
	assert.True(t, mr.Exists("test:lock:reconcile"))
	require.NoError(t, l2.Release(ctx))
}

func TestLockExpires(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)
	opts := LockOptions{TTL: time.Second, Wait: 10 * time.Millisecond, Poll: 5 * time.Millisecond}

	l1, err := r.Lock(ctx, "lock", opts)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	l2, err := r.Lock(ctx, "lock", opts)
	require.NoError(t, err)
	assert.True(t, errors.Is(l1.Release(ctx), ErrLockNotHeld))
	assert.NoError(t, l2.Release(ctx))
}

func TestNewRedisFromClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	r := NewRedisFromClient(client, "")
	t.Cleanup(func() { _ = r.Close() })

	require.NoError(t, r.Set(context.Background(), "k", "v", 0))
	v, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}
