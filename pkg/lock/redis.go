package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/scheduling-core/pkg/logger"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

type RedisLocker struct {
	client        redis.Cmdable
	retryInterval time.Duration
	log           *logger.Logger
}

func NewRedisLocker(client redis.Cmdable, opts Options) *RedisLocker {
	opts = opts.withDefaults()
	return &RedisLocker{
		client:        client,
		retryInterval: opts.RetryInterval,
		log:           opts.Logger,
	}
}

var _ Locker = (*RedisLocker)(nil)

// Acquire runs SET key token NX PX ttl until it wins or wait runs out.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (string, error) {
	token := newToken()

	err := retry(ctx, wait, l.retryInterval, func(ctx context.Context) (bool, error) {
		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return false, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		return ok, nil
	})
	if err != nil {
		return "", err
	}

	l.log.Debug("lock acquired", "key", key, "ttl", ttl.String())
	return token, nil
}

// Release is a no-op when the lock expired or changed hands.
func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}

	l.log.Debug("lock released", "key", key, "released", n == 1)
	return nil
}
