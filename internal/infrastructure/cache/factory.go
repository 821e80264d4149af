package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/retailhub/backend/internal/domain/accounting"
	"github.com/retailhub/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// EntityLockerFactory creates entity lockers based on configuration
type EntityLockerFactory struct {
	redisConfig           config.RedisConfig
	lockTTL               time.Duration
	retryDelay            time.Duration
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// EntityLockerFactoryOption is a functional option for configuring the factory
type EntityLockerFactoryOption func(*EntityLockerFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) EntityLockerFactoryOption {
	return func(f *EntityLockerFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to the in-memory locker when Redis is unavailable.
// Default is true (allow fallback)
func WithInMemoryFallback(allow bool) EntityLockerFactoryOption {
	return func(f *EntityLockerFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewEntityLockerFactory creates a new factory
func NewEntityLockerFactory(redisCfg config.RedisConfig, syncCfg config.SyncConfig, opts ...EntityLockerFactoryOption) *EntityLockerFactory {
	f := &EntityLockerFactory{
		redisConfig:           redisCfg,
		lockTTL:               syncCfg.LockTTL,
		retryDelay:            syncCfg.LockRetryDelay,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateRedisLocker connects to Redis and creates a distributed locker
func (f *EntityLockerFactory) CreateRedisLocker() (*RedisEntityLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     f.redisConfig.Addr(),
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisEntityLocker(client, f.lockTTL, f.retryDelay, f.logger), nil
}

// CreateLocker returns a Redis locker when Redis is enabled and reachable, and an
// in-memory locker otherwise. The returned close func releases the Redis client.
func (f *EntityLockerFactory) CreateLocker() (accounting.EntityLocker, func() error, error) {
	noop := func() error { return nil }

	if !f.redisConfig.Enabled {
		f.logger.Info("using in-memory entity locker")
		return NewInMemoryEntityLocker(), noop, nil
	}

	locker, err := f.CreateRedisLocker()
	if err == nil {
		f.logger.Info("using Redis entity locker", zap.String("addr", f.redisConfig.Addr()))
		return locker, locker.Close, nil
	}

	if !f.allowInMemoryFallback {
		return nil, nil, fmt.Errorf("Redis required for entity locking but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory entity locker. "+
		"Replicas will not serialize syncs of the same entity.",
		zap.Error(err),
	)
	return NewInMemoryEntityLocker(), noop, nil
}
