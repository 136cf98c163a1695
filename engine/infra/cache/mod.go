package cache

import (
	"context"
	"fmt"

	"github.com/compozy/remotequery/pkg/config"
)

// Config represents the cache-specific configuration
// This combines Redis connection settings with cache behavior settings
type Config struct {
	*config.CacheConfig
	*config.RedisConfig
}

// FromAppConfig creates a cache Config from the centralized app configuration
func FromAppConfig(appConfig *config.Config) *Config {
	return &Config{
		CacheConfig: &appConfig.Cache,
		RedisConfig: &appConfig.Redis,
	}
}

// RedisOptions projects the redis section onto connection options.
func (c *Config) RedisOptions() *RedisOptions {
	return &RedisOptions{
		URL:         c.URL,
		Host:        c.Host,
		Port:        c.Port,
		Password:    c.Password.Value(),
		DB:          c.DB,
		PoolSize:    c.PoolSize,
		PingTimeout: c.PingTimeout,

		TLSEnabled:   c.TLSEnabled,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		MaxRetries:   c.MaxRetries,
	}
}

// Cache owns the store selected by cache.driver.
type Cache struct {
	Store  Store
	Redis  *Redis
	memory *MemoryStore
}

// SetupCache creates the store for the configured driver.
func SetupCache(ctx context.Context, cfg *Config) (*Cache, error) {
	if cfg == nil || cfg.CacheConfig == nil {
		return nil, fmt.Errorf("cache config cannot be nil")
	}
	switch cfg.Driver {
	case config.CacheDriverRedis:
		if cfg.RedisConfig == nil {
			return nil, fmt.Errorf("redis config is required for the redis cache driver")
		}
		client, err := NewRedis(ctx, cfg.RedisOptions())
		if err != nil {
			return nil, err
		}
		store, err := NewRedisStore(client)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return &Cache{Store: store, Redis: client}, nil
	case config.CacheDriverMemory, "":
		store, err := NewMemoryStore(cfg.MaxCost)
		if err != nil {
			return nil, err
		}
		return &Cache{Store: store, memory: store}, nil
	default:
		return nil, fmt.Errorf("unsupported cache driver %q", cfg.Driver)
	}
}

// Close gracefully shuts down the cache
func (c *Cache) Close() error {
	if c.memory != nil {
		c.memory.Close()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			return fmt.Errorf("failed to close Redis: %w", err)
		}
	}
	return nil
}

// HealthCheck performs a health check on the redis backend when present
func (c *Cache) HealthCheck(ctx context.Context) error {
	if c.Redis != nil {
		return c.Redis.HealthCheck(ctx)
	}
	return nil
}
