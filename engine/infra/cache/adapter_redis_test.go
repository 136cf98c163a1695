package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/remotequery/pkg/config"
	"github.com/compozy/remotequery/pkg/logger"
)

func newTestRedisStore(t testing.TB) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	ctx := logger.ContextWithLogger(t.Context(), logger.NewForTests())
	client, err := NewRedis(ctx, &RedisOptions{URL: "redis://" + s.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	store, err := NewRedisStore(client)
	require.NoError(t, err)
	return store, s
}

func TestRedisStore(t *testing.T) {
	ctx := t.Context()

	t.Run("Should set, get and delete values with neutral errors", func(t *testing.T) {
		store, _ := newTestRedisStore(t)
		key := NewKey("response", "users", "abc")

		_, err := store.Get(ctx, key)
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, store.Set(ctx, key, []byte(`[{"id":1}]`), time.Minute))
		v, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, `[{"id":1}]`, string(v))

		require.NoError(t, store.Delete(ctx, key))
		_, err = store.Get(ctx, key)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Should expire entries after their ttl", func(t *testing.T) {
		store, mr := newTestRedisStore(t)
		key := NewKey("token")
		require.NoError(t, store.Set(ctx, key, []byte("t"), 3500*time.Second))

		ttl, err := store.TTL(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, 3500*time.Second, ttl)

		mr.FastForward(3501 * time.Second)
		_, err = store.Get(ctx, key)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = store.TTL(ctx, key)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Should reject a nil client", func(t *testing.T) {
		_, err := NewRedisStore(nil)
		assert.Error(t, err)
	})
}

func TestNewRedis(t *testing.T) {
	t.Run("Should connect with host and port and pass health checks", func(t *testing.T) {
		mr := miniredis.RunT(t)
		ctx := logger.ContextWithLogger(t.Context(), logger.NewForTests())
		client, err := NewRedis(ctx, &RedisOptions{Host: mr.Host(), Port: mr.Port(), PoolSize: 2})
		require.NoError(t, err)
		defer client.Close()
		assert.NoError(t, client.HealthCheck(ctx))
		assert.NoError(t, client.Close())
		assert.NoError(t, client.Close())
	})

	t.Run("Should fail when the server is unreachable", func(t *testing.T) {
		ctx := logger.ContextWithLogger(t.Context(), logger.NewForTests())
		_, err := NewRedis(ctx, &RedisOptions{URL: "redis://127.0.0.1:1", PingTimeout: 200 * time.Millisecond})
		assert.Error(t, err)
	})

	t.Run("Should apply timeouts, retries and TLS from the redis config", func(t *testing.T) {
		cfg := config.Default()
		cfg.Redis.Host = "cache.internal"
		cfg.Redis.Port = "6380"
		cfg.Redis.PoolSize = 4
		cfg.Redis.TLSEnabled = true
		cfg.Redis.DialTimeout = 2 * time.Second
		cfg.Redis.ReadTimeout = 3 * time.Second
		cfg.Redis.WriteTimeout = 4 * time.Second
		cfg.Redis.MaxRetries = 5

		client, err := buildRedisClient(FromAppConfig(cfg).RedisOptions())
		require.NoError(t, err)
		defer client.Close()

		rc, ok := client.(*redis.Client)
		require.True(t, ok)
		opt := rc.Options()
		assert.Equal(t, "cache.internal:6380", opt.Addr)
		assert.Equal(t, 4, opt.PoolSize)
		assert.Equal(t, 2*time.Second, opt.DialTimeout)
		assert.Equal(t, 3*time.Second, opt.ReadTimeout)
		assert.Equal(t, 4*time.Second, opt.WriteTimeout)
		assert.Equal(t, 5, opt.MaxRetries)
		require.NotNil(t, opt.TLSConfig)
		assert.Equal(t, "cache.internal", opt.TLSConfig.ServerName)
	})

	t.Run("Should leave TLS off and go-redis defaults in place when unset", func(t *testing.T) {
		client, err := buildRedisClient(FromAppConfig(config.Default()).RedisOptions())
		require.NoError(t, err)
		defer client.Close()

		opt := client.(*redis.Client).Options()
		assert.Nil(t, opt.TLSConfig)
		assert.Equal(t, 3, opt.MaxRetries)
	})

	t.Run("Should reject malformed urls", func(t *testing.T) {
		_, err := NewRedis(t.Context(), &RedisOptions{URL: "://bad"})
		assert.Error(t, err)
	})
}
