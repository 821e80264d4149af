package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/retailhub/backend/internal/domain/accounting"
	"go.uber.org/zap"
)

// RedisEntityLocker implements EntityLocker on Redis so that several service
// instances serialize on the same entity.
type RedisEntityLocker struct {
	client     *redis.Client
	locker     *redislock.Client
	ttl        time.Duration
	retryDelay time.Duration
	keyPrefix  string
	logger     *zap.Logger
}

// NewRedisEntityLocker creates a locker on an existing Redis client.
// ttl bounds how long a crashed holder keeps the key; retryDelay is the polling interval.
func NewRedisEntityLocker(client *redis.Client, ttl, retryDelay time.Duration, logger *zap.Logger) *RedisEntityLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retryDelay <= 0 {
		retryDelay = 100 * time.Millisecond
	}
	return &RedisEntityLocker{
		client:     client,
		locker:     redislock.New(client),
		ttl:        ttl,
		retryDelay: retryDelay,
		keyPrefix:  "lock:",
		logger:     logger,
	}
}

// Lock polls for the key until it is obtained or ctx is done.
// Without a ctx deadline the wait is bounded by the lock TTL.
func (l *RedisEntityLocker) Lock(ctx context.Context, key string) (func(), error) {
	lock, err := l.locker.Obtain(ctx, l.keyPrefix+key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(l.retryDelay),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: %s", accounting.ErrLockNotObtained, key)
		}
		return nil, fmt.Errorf("failed to obtain redis lock %s: %w", key, err)
	}

	stopRefresh := keepAlive(lock, l.ttl, key, l.logger)

	return func() {
		stopRefresh()
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("failed to release redis lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// lockRefresher extends the TTL of a held lock
type lockRefresher interface {
	Refresh(ctx context.Context, ttl time.Duration, opt *redislock.Options) error
}

// keepAlive refreshes the lock every half TTL until the returned stop func
// is called, so a slow sale sync keeps its key. It gives up once the key is
// no longer held.
func keepAlive(lock lockRefresher, ttl time.Duration, key string, logger *zap.Logger) (stop func()) {
	if ttl <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				refreshCtx, refreshCancel := context.WithTimeout(ctx, ttl/2)
				err := lock.Refresh(refreshCtx, ttl, nil)
				refreshCancel()
				switch {
				case err == nil:
				case errors.Is(err, redislock.ErrNotObtained):
					logger.Warn("redis lock lost before release", zap.String("key", key))
					return
				case ctx.Err() != nil:
					return
				default:
					logger.Warn("failed to refresh redis lock", zap.String("key", key), zap.Error(err))
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

// Close closes the Redis client
func (l *RedisEntityLocker) Close() error {
	return l.client.Close()
}

// Ensure RedisEntityLocker implements EntityLocker
var _ accounting.EntityLocker = (*RedisEntityLocker)(nil)

// Ping reports whether Redis answers
func (l *RedisEntityLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
