package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lease guarantees that at most one worker processes the queue at a time.
type Lease interface {
	// Acquire takes or renews the lease and reports whether this holder owns it.
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// RedisLease is a lease held as a redis key with an expiry.
type RedisLease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// NewRedisLease constructs a lease. The worker renews it before every check, so the ttl
// must outlive one check or a second worker may take over.
func NewRedisLease(client *redis.Client, key string, ttl time.Duration) *RedisLease {
	return &RedisLease{client: client, key: key, token: uuid.NewString(), ttl: ttl}
}

func (l *RedisLease) Acquire(ctx context.Context) (bool, error) {
	acquired, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, err
	}
	if acquired {
		return true, nil
	}

	renewed, err := renewScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	return renewed == 1, nil
}

func (l *RedisLease) Release(ctx context.Context) error {
	err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
