package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rustyeddy/tradesim/pkg/id"
)

// Options configure the Redis connection.
type Options struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`
}

// Redis implements Store on a go-redis client. Every key is namespaced by
// the configured prefix.
type Redis struct {
	client *redis.Client
	prefix string
}

var _ Store = (*Redis)(nil)

// NewRedis connects and pings the server.
func NewRedis(opts Options) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: connect %s: %w", opts.Addr, err)
	}
	return NewRedisFromClient(client, opts.Prefix), nil
}

func NewRedisFromClient(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Close() error { return r.client.Close() }

func (r *Redis) key(k string) string { return r.prefix + k }

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return v, err
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *Redis) HGet(ctx context.Context, key, field string) (string, error) {
	v, err := r.client.HGet(ctx, r.key(key), field).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%s[%s]: %w", key, field, ErrNotFound)
	}
	return v, err
}

func (r *Redis) HSet(ctx context.Context, key string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	return r.client.HSet(ctx, r.key(key), flatten(values)...).Err()
}

func (r *Redis) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return r.client.HGetAll(ctx, r.key(key)).Result()
}

// Batch queues writes on a MULTI/EXEC pipeline.
func (r *Redis) Batch(ctx context.Context, fn func(Batch) error) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return fn(&redisBatch{ctx: ctx, pipe: pipe, r: r})
	})
	return err
}

type redisBatch struct {
	ctx  context.Context
	pipe redis.Pipeliner
	r    *Redis
}

func (b *redisBatch) Set(key, value string, ttl time.Duration) {
	b.pipe.Set(b.ctx, b.r.key(key), value, ttl)
}

func (b *redisBatch) HSet(key string, values map[string]string) {
	if len(values) == 0 {
		return
	}
	b.pipe.HSet(b.ctx, b.r.key(key), flatten(values)...)
}

func (b *redisBatch) Del(keys ...string) {
	if len(keys) == 0 {
		return
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = b.r.key(k)
	}
	b.pipe.Del(b.ctx, full...)
}

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`)

type redisLock struct {
	r     *Redis
	key   string
	token string
}

func (r *Redis) Lock(ctx context.Context, key string, opts LockOptions) (Lock, error) {
	if opts.Poll <= 0 {
		opts.Poll = 50 * time.Millisecond
	}
	token := id.New()
	deadline := time.Now().Add(opts.Wait)

	for {
		ok, err := r.client.SetNX(ctx, r.key(key), token, opts.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			return &redisLock{r: r, key: key, token: token}, nil
		}
		if !time.Now().Add(opts.Poll).Before(deadline) {
			return nil, fmt.Errorf("lock %s: %w", key, ErrLockNotAcquired)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.Poll):
		}
	}
}

func (l *redisLock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.r.client, []string{l.r.key(l.key)}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	if n != 1 {
		return fmt.Errorf("release %s: %w", l.key, ErrLockNotHeld)
	}
	return nil
}

func flatten(values map[string]string) []any {
	out := make([]any, 0, 2*len(values))
	for k, v := range values {
		out = append(out, k, v)
	}
	return out
}
