package aggregation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrMaintenanceInProgress reports that another maintenance run already
// holds the lock. Callers should skip the run, not retry.
var ErrMaintenanceInProgress = errors.New("maintenance run already in progress")

// MaintenanceLock serializes maintenance runs. At most one holder exists at
// a time; Acquire returns false without blocking when the lock is taken.
type MaintenanceLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LocalMaintenanceLock guards against overlapping runs inside a single
// process. It is the fallback when no Redis lease is configured.
type LocalMaintenanceLock struct {
	held atomic.Bool
}

func NewLocalMaintenanceLock() *LocalMaintenanceLock {
	return &LocalMaintenanceLock{}
}

func (ml *LocalMaintenanceLock) Acquire(_ context.Context) (bool, error) {
	return ml.held.CompareAndSwap(false, true), nil
}

func (ml *LocalMaintenanceLock) Release(_ context.Context) error {
	ml.held.Store(false)
	return nil
}

// releaseScript deletes the lease only when this holder still owns it, so a
// slow run cannot release a lease that already expired and moved on.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisMaintenanceLock is a best-effort cross-instance lease. The TTL bounds
// how long a crashed holder can block other instances.
type RedisMaintenanceLock struct {
	client   *redis.Client
	key      string
	token    string
	leaseTTL time.Duration
}

func NewRedisMaintenanceLock(client *redis.Client, key string, leaseTTL time.Duration) *RedisMaintenanceLock {
	if key == "" {
		key = "monitoring:maintenance:lock"
	}
	if leaseTTL < time.Minute {
		leaseTTL = time.Minute
	}
	return &RedisMaintenanceLock{
		client:   client,
		key:      key,
		token:    uuid.NewString(),
		leaseTTL: leaseTTL,
	}
}

func (ml *RedisMaintenanceLock) Acquire(ctx context.Context) (bool, error) {
	acquired, err := ml.client.SetNX(ctx, ml.key, ml.token, ml.leaseTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire maintenance lease: %w", err)
	}
	return acquired, nil
}

func (ml *RedisMaintenanceLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, ml.client, []string{ml.key}, ml.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release maintenance lease: %w", err)
	}
	return nil
}
