package lock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"orderflow/internal/reliability"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only when the caller still holds it.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

// DefaultLockTTL bounds how long a crashed holder can block others.
const DefaultLockTTL = 30 * time.Second

// RedisClient is the minimal client surface used by RedisLocker.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// RedisLockerConfig configures a RedisLocker.
type RedisLockerConfig struct {
	Client   RedisClient
	TTL      time.Duration
	Retry    reliability.RetryPolicy
	NewToken func() string
	Logf     func(format string, args ...any)
}

// RedisLocker serializes by key across process instances using SET NX with a
// per-holder token and a TTL. Release is compare-and-delete, so an expired
// lock reacquired by another holder is never released by the old one.
type RedisLocker struct {
	client    RedisClient
	ttl       time.Duration
	keyPrefix string
	retry     reliability.RetryPolicy
	newToken  func() string
	logf      func(format string, args ...any)
}

// NewRedisLocker constructs a RedisLocker.
func NewRedisLocker(cfg RedisLockerConfig) *RedisLocker {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	newToken := cfg.NewToken
	if newToken == nil {
		newToken = uuid.NewString
	}
	logf := cfg.Logf
	if logf == nil {
		logf = log.Printf
	}
	retry := cfg.Retry
	if retry.ShouldRetry == nil {
		retry.ShouldRetry = func(err error) bool {
			return errors.Is(err, ErrLockUnavailable)
		}
	}
	return &RedisLocker{
		client:    cfg.Client,
		ttl:       ttl,
		keyPrefix: "lock:",
		retry:     retry,
		newToken:  newToken,
		logf:      logf,
	}
}

// Acquire takes the key, retrying per policy while it is held elsewhere, or
// fails with ErrLockUnavailable. The returned release function is idempotent
// and releases only if this caller still holds the lock.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token := l.newToken()
	redisKey := l.keyPrefix + key

	err := l.retry.Do(ctx, func() error {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return err
		}
		if !ok {
			return ErrLockUnavailable
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrLockUnavailable) {
			return nil, fmt.Errorf("%w: %s", ErrLockUnavailable, key)
		}
		return nil, err
	}

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		// Release must run even when the request context is already gone.
		res, err := l.client.Eval(context.WithoutCancel(ctx), releaseScript, []string{redisKey}, token).Result()
		if err != nil {
			l.logf("[lock] release failed: key=%s err=%v", key, err)
			return
		}
		if n, ok := res.(int64); ok && n == 0 {
			l.logf("[lock] release skipped, no longer the holder: key=%s", key)
		}
	}
	return release, nil
}
