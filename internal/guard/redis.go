package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLeaseTTL = 30 * time.Second

// RedisLease is a Redis-backed locker for deployments where more than one
// process may enact decisions. The lease carries a TTL so a crashed holder
// cannot wedge a motion forever.
type RedisLease struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisLease connects to Redis and verifies the connection.
func NewRedisLease(redisURL string) (*RedisLease, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisLeaseWithClient(client), nil
}

// NewRedisLeaseWithClient wraps an existing Redis client.
func NewRedisLeaseWithClient(client *redis.Client) *RedisLease {
	return &RedisLease{
		client: client,
		prefix: "enact:",
		ttl:    defaultLeaseTTL,
	}
}

func (l *RedisLease) key(lockKey string) string {
	return l.prefix + lockKey
}

// Acquire takes the lease for key or fails fast with ErrLockHeld.
func (l *RedisLease) Acquire(ctx context.Context, lockKey string) (func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key(lockKey), token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire enactment lease: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Best-effort release: only drop the lease if we still hold it.
		held, err := l.client.Get(ctx, l.key(lockKey)).Result()
		if err != nil || held != token {
			return
		}
		l.client.Del(ctx, l.key(lockKey))
	}
	return release, nil
}

func (l *RedisLease) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *RedisLease) Close() error {
	return l.client.Close()
}
