package lock

import (
	"context"
	"fmt"
	"time"

	appinv "github.com/Zhima-Mochi/cafeshop/internal/application/inventory"
	dominv "github.com/Zhima-Mochi/cafeshop/internal/domain/inventory"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultKeyPrefix = "cafeshop:lock:"
	defaultRetry     = 25 * time.Millisecond
)

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis coordinates locks between processes sharing one Redis. A lock is a
// key set with NX and a TTL of hold.
type Redis struct {
	client redis.UniversalClient
	prefix string
	retry  time.Duration
}

func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Redis{client: client, prefix: prefix, retry: defaultRetry}
}

func (r *Redis) Acquire(ctx context.Context, key string, wait, hold time.Duration) (appinv.Lock, error) {
	name := r.prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
		case <-t.C:
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s: %w", dominv.ErrLockNotAcquired, key, ctx.Err())
		}

		ok, err := r.client.SetNX(ctx, name, token, hold).Result()
		if err != nil {
			return nil, fmt.Errorf("lock: redis setnx %s: %w", name, err)
		}
		if ok {
			return &redisLock{client: r.client, key: key, name: name, token: token}, nil
		}

		left := time.Until(deadline)
		if left <= 0 {
			return nil, fmt.Errorf("%w: %s after %s", dominv.ErrLockNotAcquired, key, wait)
		}
		t.Reset(min(r.retry, left))
	}
}

type redisLock struct {
	client redis.UniversalClient
	key    string
	name   string
	token  string
}

func (k *redisLock) Key() string { return k.key }

func (k *redisLock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, k.client, []string{k.name}, k.token).Int()
	if err != nil {
		return fmt.Errorf("lock: redis release %s: %w", k.name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotHeld, k.key)
	}
	return nil
}

var _ appinv.LockCoordinator = (*Redis)(nil)
