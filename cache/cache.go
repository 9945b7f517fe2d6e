// Package cache is the shared key/hash store used by live reconciliation.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("cache: key not found")
	ErrLockNotAcquired = errors.New("cache: lock not acquired")
	ErrLockNotHeld     = errors.New("cache: lock not held")
)

// Store is the cache collaborator.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	HGet(ctx context.Context, key, field string) (string, error)
	HSet(ctx context.Context, key string, values map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// Batch runs every write queued by fn as one atomic unit. Nothing is
	// written when fn returns an error.
	Batch(ctx context.Context, fn func(Batch) error) error

	// Lock tries to take the named lock, polling until opts.Wait elapses.
	// It returns ErrLockNotAcquired when the lock stays taken.
	Lock(ctx context.Context, key string, opts LockOptions) (Lock, error)
}

// Batch queues writes for Store.Batch.
type Batch interface {
	Set(key, value string, ttl time.Duration)
	HSet(key string, values map[string]string)
	Del(keys ...string)
}

type Lock interface {
	Release(ctx context.Context) error
}

type LockOptions struct {
	TTL  time.Duration // lock expiry if never released
	Wait time.Duration // upper bound on acquisition
	Poll time.Duration // retry interval while waiting
}
