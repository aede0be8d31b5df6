package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotHeld is returned when releasing a lock that expired or was taken over
var ErrLockNotHeld = errors.New("lock not held")

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg RedisConfig, logger ectologger.Logger) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	logger.Infof("Connected to Redis at %s", addr)
	return rdb, nil
}

// Redis is a cross-process Locker using SET NX with an owner token
type Redis struct {
	rdb       *redis.Client
	logger    ectologger.Logger
	keyPrefix string
	ttl       time.Duration
	wait      time.Duration
}

// NewRedis creates a Redis locker. ttl bounds how long a crashed holder blocks
// others; wait bounds how long Lock retries per key.
func NewRedis(rdb *redis.Client, logger ectologger.Logger, keyPrefix string, ttl, wait time.Duration) *Redis {
	if keyPrefix == "" {
		keyPrefix = "pugna:lock:"
	}
	return &Redis{
		rdb:       rdb,
		logger:    logger,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		wait:      wait,
	}
}

type heldLock struct {
	key   string
	value string
}

func (l *Redis) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = Keys(keys...)
	held := make([]heldLock, 0, len(keys))

	release := func() {
		// release with a fresh context so cancellation never strands a lock
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := l.release(releaseCtx, held[i]); err != nil {
				l.logger.WithContext(ctx).WithError(err).Warnf("Failed to release lock %s", held[i].key)
			}
		}
	}

	for _, key := range keys {
		lock, err := l.acquire(ctx, key)
		if err != nil {
			release()
			return nil, err
		}
		held = append(held, lock)
	}

	done := false
	return func() {
		if done {
			return
		}
		done = true
		release()
	}, nil
}

// acquire retries SET NX with capped exponential backoff until wait elapses
func (l *Redis) acquire(ctx context.Context, key string) (heldLock, error) {
	lock := heldLock{key: l.keyPrefix + key, value: uuid.New().String()}
	deadline := time.Now().Add(l.wait)
	backoff := 10 * time.Millisecond

	for {
		ok, err := l.rdb.SetNX(ctx, lock.key, lock.value, l.ttl).Result()
		if err != nil {
			return heldLock{}, err
		}
		if ok {
			l.logger.WithContext(ctx).Debugf("Acquired lock: %s", key)
			return lock, nil
		}
		if !time.Now().Before(deadline) {
			return heldLock{}, ErrNotAcquired
		}

		select {
		case <-ctx.Done():
			return heldLock{}, ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 500*time.Millisecond {
				backoff = 500 * time.Millisecond
			}
		}
	}
}

func (l *Redis) release(ctx context.Context, lock heldLock) error {
	result, err := releaseScript.Run(ctx, l.rdb, []string{lock.key}, lock.value).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}
