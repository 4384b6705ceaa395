package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	defaultTTL   = 2 * time.Minute
	defaultRetry = 200 * time.Millisecond
	keyPrefix    = "stockpulse:lock:"
)

// releaseScript deletes the key only while it still holds our token.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// ErrNotHeld is logged when a lock expired before it was released.
var ErrNotHeld = errors.New("lock no longer held")

// Redis is a cross-process Locker built on SET NX with a TTL.
type Redis struct {
	client        redis.Cmdable
	TTL           time.Duration
	RetryInterval time.Duration
	NewToken      func() string
}

// NewRedis creates a Redis locker. A zero ttl uses the default.
func NewRedis(client redis.Cmdable, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{
		client:        client,
		TTL:           ttl,
		RetryInterval: defaultRetry,
		NewToken:      uuid.NewString,
	}
}

// Key returns the Redis key guarding name.
func Key(name string) string {
	return keyPrefix + name
}

// Lock implements Locker. It polls until the key is free or ctx is done.
func (r *Redis) Lock(ctx context.Context, name string) (func(), error) {
	key := Key(name)
	token := r.NewToken()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		log.Debug().Str("key", key).Msg("lock busy, waiting")

		timer := time.NewTimer(r.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return func() {
		if err := r.release(key, token); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to release lock")
		}
	}, nil
}

func (r *Redis) release(key, token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := r.client.Eval(ctx, releaseScript, []string{key}, token).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
