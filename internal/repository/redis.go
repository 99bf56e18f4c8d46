package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hotelbook/internal/config"
	"hotelbook/internal/domain"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still belongs to the caller,
// so a holder whose lock expired cannot free a newer holder's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var errNilClient = errors.New("redis client is nil")

// NewRedisClient builds a client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

// LockKey renders lock:room:{room_id}:{checkin}:{checkout}.
func LockKey(k domain.RoomLockKey) string {
	return fmt.Sprintf("lock:room:%d:%s:%s", k.RoomID, k.Range.CheckIn, k.Range.CheckOut)
}

// RedisRoomLocker implements domain.RoomLocker with SET NX and a TTL.
// Every redis error is returned to the caller; a lock is never assumed.
type RedisRoomLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRoomLocker(client *redis.Client, ttl time.Duration) *RedisRoomLocker {
	return &RedisRoomLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *RedisRoomLocker) Acquire(ctx context.Context, key domain.RoomLockKey, owner string) (bool, error) {
	if l.client == nil {
		return false, errNilClient
	}
	ok, err := l.client.SetNX(ctx, LockKey(key), owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire room lock: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return ok, nil
}

// Release removes the lock if owner still holds it. An empty owner deletes
// unconditionally. Releasing an absent lock is a no-op.
func (l *RedisRoomLocker) Release(ctx context.Context, key domain.RoomLockKey, owner string) error {
	if l.client == nil {
		return errNilClient
	}
	k := LockKey(key)
	if owner == "" {
		if err := l.client.Del(ctx, k).Err(); err != nil {
			return fmt.Errorf("failed to release room lock: %w", err)
		}
		return nil
	}
	if err := releaseScript.Run(ctx, l.client, []string{k}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release room lock: %w", err)
	}
	return nil
}

// RedisRateLimiter counts hits per key in fixed windows.
type RedisRateLimiter struct {
	client *redis.Client
}

func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client}
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, errNilClient
	}
	k := "rate_limit:" + key
	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		if err := r.client.Expire(ctx, k, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	return count <= int64(limit), nil
}

// Ping checks the connection to Redis.
func Ping(ctx context.Context, client *redis.Client) error {
	if client == nil {
		return errNilClient
	}
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
