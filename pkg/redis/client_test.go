package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	data    map[string]string
	ttls    map[string]time.Duration
	counter map[string]int64
	evals   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{data: map[string]string{}, ttls: map[string]time.Duration{}, counter: map[string]int64{}}
}

func (f *fakeBackend) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeBackend) Get(_ context.Context, k string) *redis.StringCmd {
	v, ok := f.data[k]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeBackend) SetNX(_ context.Context, k string, value any, ttl time.Duration) *redis.BoolCmd {
	if _, ok := f.data[k]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[k] = fmt.Sprint(value)
	f.ttls[k] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeBackend) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			n++
		}
		delete(f.data, k)
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeBackend) Incr(_ context.Context, k string) *redis.IntCmd {
	f.counter[k]++
	return redis.NewIntResult(f.counter[k], nil)
}

func (f *fakeBackend) ExpireNX(_ context.Context, k string, ttl time.Duration) *redis.BoolCmd {
	if _, ok := f.ttls[k]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.ttls[k] = ttl
	return redis.NewBoolResult(true, nil)
}

// Eval only understands unlockScript.
func (f *fakeBackend) Eval(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	f.evals++
	if f.data[keys[0]] != fmt.Sprint(args[0]) {
		return redis.NewCmdResult(int64(0), nil)
	}
	delete(f.data, keys[0])
	return redis.NewCmdResult(int64(1), nil)
}

func TestMarkSeenAndForget(t *testing.T) {
	ctx := context.Background()
	fake := newFakeBackend()
	c := &Client{rdb: fake}

	first, err := c.MarkSeen(ctx, "payment-webhook", "evt_1", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)
	assert.Contains(t, fake.data, "fh:seen:payment-webhook:evt_1")

	again, err := c.MarkSeen(ctx, "payment-webhook", "evt_1", time.Hour)
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, c.Forget(ctx, "payment-webhook", "evt_1"))
	first, err = c.MarkSeen(ctx, "payment-webhook", "evt_1", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)
}

func TestReplayRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := &Client{rdb: newFakeBackend()}

	_, ok, err := c.Replay(ctx, "admin|order-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Remember(ctx, "admin|order-1", `{"status":200}`, time.Minute))
	require.NoError(t, c.Remember(ctx, "admin|order-1", `{"status":500}`, time.Minute))

	got, ok, err := c.Replay(ctx, "admin|order-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"status":200}`, got, "first stored response wins")
}

func TestHitKeepsFirstWindow(t *testing.T) {
	ctx := context.Background()
	fake := newFakeBackend()
	c := &Client{rdb: fake}

	for want := int64(1); want <= 3; want++ {
		got, err := c.Hit(ctx, "order-create:u1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, time.Minute, fake.ttls["fh:hits:order-create:u1"])
}

func TestLockOwnership(t *testing.T) {
	ctx := context.Background()
	fake := newFakeBackend()
	c := &Client{rdb: fake}

	ok, err := c.TryLock(ctx, "cron-worker:prod", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.TryLock(ctx, "cron-worker:prod", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	released, err := c.Unlock(ctx, "cron-worker:prod", "b")
	require.NoError(t, err)
	assert.False(t, released)

	released, err = c.Unlock(ctx, "cron-worker:prod", "a")
	require.NoError(t, err)
	assert.True(t, released)
	assert.Equal(t, 2, fake.evals)
}

func TestUninitializedClient(t *testing.T) {
	c := &Client{}
	assert.ErrorIs(t, c.Ping(context.Background()), errNotConnected)
	_, err := c.Hit(context.Background(), "x", time.Second)
	assert.ErrorIs(t, err, errNotConnected)
	assert.NoError(t, c.Close())
}

func TestKeySkipsBlankParts(t *testing.T) {
	assert.Equal(t, "fh:seen:scope:id", key(kindSeen, "scope", "id"))
	assert.Equal(t, "fh:lock:cron", key(kindLock, " cron ", ""))
}
