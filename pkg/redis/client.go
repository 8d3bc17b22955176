package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/familyhub-backend/pkg/config"
	"github.com/angelmondragon/familyhub-backend/pkg/logger"
)

const namespace = "fh"

// Key kinds. Everything familyhub writes to Redis lives under fh:<kind>:...
const (
	kindSeen   = "seen"
	kindReplay = "replay"
	kindHits   = "hits"
	kindLock   = "lock"
)

var errNotConnected = errors.New("redis client not initialized")

// unlockScript deletes the lock only while the caller still owns it.
const unlockScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

type backend interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	ExpireNX(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Client is the Redis surface of the order engine: webhook redelivery
// dedupe, admin response replays, order-create throttling and the cron lock.
type Client struct {
	rdb    backend
	closer func() error
}

func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "redis_db", opts.DB), "redis connection established")
	}
	return &Client{rdb: rdb, closer: rdb.Close}, nil
}

func key(kind string, parts ...string) string {
	b := strings.Builder{}
	b.WriteString(namespace)
	b.WriteByte(':')
	b.WriteString(kind)
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			b.WriteByte(':')
			b.WriteString(p)
		}
	}
	return b.String()
}

// MarkSeen records id under scope and reports whether this call was the first.
func (c *Client) MarkSeen(ctx context.Context, scope, id string, ttl time.Duration) (bool, error) {
	if c.rdb == nil {
		return false, errNotConnected
	}
	return c.rdb.SetNX(ctx, key(kindSeen, scope, id), time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

// Forget drops a MarkSeen entry so the next delivery is processed again.
func (c *Client) Forget(ctx context.Context, scope, id string) error {
	if c.rdb == nil {
		return errNotConnected
	}
	return c.rdb.Del(ctx, key(kindSeen, scope, id)).Err()
}

// Replay returns a stored response for scope; ok is false when nothing is stored.
func (c *Client) Replay(ctx context.Context, scope string) (payload string, ok bool, err error) {
	if c.rdb == nil {
		return "", false, errNotConnected
	}
	payload, err = c.rdb.Get(ctx, key(kindReplay, scope)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return payload, true, nil
}

// Remember stores payload for scope unless a concurrent request already did.
func (c *Client) Remember(ctx context.Context, scope, payload string, ttl time.Duration) error {
	if c.rdb == nil {
		return errNotConnected
	}
	return c.rdb.SetNX(ctx, key(kindReplay, scope), payload, ttl).Err()
}

// Hit counts one request in bucket and returns the count for the current
// window. The window starts at the first hit.
func (c *Client) Hit(ctx context.Context, bucket string, window time.Duration) (int64, error) {
	if c.rdb == nil {
		return 0, errNotConnected
	}
	k := key(kindHits, bucket)
	count, err := c.rdb.Incr(ctx, k).Result()
	if err != nil {
		return 0, err
	}
	// NX keeps the first hit's expiry and repairs a key that lost it.
	if err := c.rdb.ExpireNX(ctx, k, window).Err(); err != nil {
		return count, err
	}
	return count, nil
}

// TryLock takes the named lock for owner if nobody holds it.
func (c *Client) TryLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	if c.rdb == nil {
		return false, errNotConnected
	}
	return c.rdb.SetNX(ctx, key(kindLock, name), owner, ttl).Result()
}

// Unlock releases the named lock if owner still holds it.
func (c *Client) Unlock(ctx context.Context, name, owner string) (bool, error) {
	if c.rdb == nil {
		return false, errNotConnected
	}
	n, err := c.rdb.Eval(ctx, unlockScript, []string{key(kindLock, name)}, owner).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c.rdb == nil {
		return errNotConnected
	}
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}
