package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/compozy/remotequery/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// RedisInterface defines the minimal interface needed by cache operations.
// This allows both real redis.Client and mock implementations to be used.
type RedisInterface interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
	Close() error
}

type Redis struct {
	client redis.UniversalClient
	opts   *RedisOptions
	once   sync.Once
	ctx    context.Context
}

const fallbackRedisPingTimeout time.Duration = 10 * time.Second

// NewRedis creates a new Redis client and verifies connectivity.
func NewRedis(ctx context.Context, opts *RedisOptions) (*Redis, error) {
	log := logger.FromContext(ctx).With("component", "infra_redis")
	ctx = logger.ContextWithLogger(ctx, log)
	if opts == nil {
		return nil, fmt.Errorf("redis config is required")
	}
	client, err := buildRedisClient(opts)
	if err != nil {
		return nil, err
	}
	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = fallbackRedisPingTimeout
	}
	if err := pingRedis(ctx, client, timeout); err != nil {
		client.Close()
		return nil, err
	}
	logRedisConnection(ctx, opts)
	return &Redis{
		client: client,
		opts:   opts,
		ctx:    ctx,
	}, nil
}

// buildRedisClient configures the Redis client from the provided options.
func buildRedisClient(opts *RedisOptions) (redis.UniversalClient, error) {
	if opts.URL != "" {
		opt, err := redis.ParseURL(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing Redis URL: %w", err)
		}
		applyConfigToOptions(opt, opts)
		return redis.NewClient(opt), nil
	}
	opt := &redis.Options{
		Addr:     net.JoinHostPort(opts.Host, opts.Port),
		Password: opts.Password,
		DB:       opts.DB,
	}
	applyConfigToOptions(opt, opts)
	return redis.NewClient(opt), nil
}

// pingRedis validates connectivity within the configured timeout.
func pingRedis(ctx context.Context, client redis.UniversalClient, timeout time.Duration) error {
	pingCtx, pingCancel := context.WithTimeout(ctx, timeout)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("pinging Redis server (timeout=%s): %w", timeout, err)
	}
	return nil
}

func logRedisConnection(ctx context.Context, opts *RedisOptions) {
	logger.FromContext(ctx).With(
		"cache_driver", "redis",
		"host", opts.Host,
		"port", opts.Port,
		"db", opts.DB,
		"pool_size", opts.PoolSize,
		"tls_enabled", opts.TLSEnabled,
	).Debug("Redis connection established")
}

// Close shuts down the Redis connection.
func (r *Redis) Close() error {
	var err error
	r.once.Do(func() {
		err = r.client.Close()
		if err != nil {
			logger.FromContext(r.ctx).Error("Redis connection close failed", "error", err)
		} else {
			logger.FromContext(r.ctx).Debug("Redis connection closed")
		}
	})
	return err
}

// Ping checks if the Redis server is reachable
func (r *Redis) Ping(ctx context.Context) *redis.StatusCmd {
	return r.client.Ping(ctx)
}

// Set stores a key-value pair with optional expiration
func (r *Redis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	return r.client.Set(ctx, key, value, expiration)
}

// Get retrieves a value by key
func (r *Redis) Get(ctx context.Context, key string) *redis.StringCmd {
	return r.client.Get(ctx, key)
}

// Del deletes one or more keys
func (r *Redis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	return r.client.Del(ctx, keys...)
}

// TTL returns the remaining time to live of a key
func (r *Redis) TTL(ctx context.Context, key string) *redis.DurationCmd {
	return r.client.TTL(ctx, key)
}

// HealthCheck round-trips a probe key.
func (r *Redis) HealthCheck(ctx context.Context) error {
	log := logger.FromContext(ctx)
	if err := r.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	testKey := string(NewKey("health_check"))
	testValue := "ok"
	if err := r.Set(ctx, testKey, testValue, 10*time.Second).Err(); err != nil {
		return fmt.Errorf("set operation failed: %w", err)
	}
	result, err := r.Get(ctx, testKey).Result()
	if err != nil {
		return fmt.Errorf("get operation failed: %w", err)
	}
	if result != testValue {
		return fmt.Errorf("get result mismatch: expected %s, got %s", testValue, result)
	}
	if err := r.Del(ctx, testKey).Err(); err != nil {
		log.Debug("failed to clean up test key", "key", testKey, "error", err)
	}
	return nil
}

// applyConfigToOptions applies configuration to Redis options
func applyConfigToOptions(opt *redis.Options, opts *RedisOptions) {
	if opts.PoolSize > 0 {
		opt.PoolSize = opts.PoolSize
	}
	if opts.DialTimeout > 0 {
		opt.DialTimeout = opts.DialTimeout
	}
	if opts.ReadTimeout > 0 {
		opt.ReadTimeout = opts.ReadTimeout
	}
	if opts.WriteTimeout > 0 {
		opt.WriteTimeout = opts.WriteTimeout
	}
	if opts.MaxRetries > 0 {
		opt.MaxRetries = opts.MaxRetries
	}
	if opts.TLSEnabled && opt.TLSConfig == nil {
		serverName := opts.Host
		if host, _, err := net.SplitHostPort(opt.Addr); err == nil {
			serverName = host
		}
		opt.TLSConfig = &tls.Config{
			ServerName: serverName,
			MinVersion: tls.VersionTLS12,
		}
	}
}
