package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := t.Context()

	t.Run("Should store and delete values", func(t *testing.T) {
		store, err := NewMemoryStore(1 << 20)
		require.NoError(t, err)
		defer store.Close()
		key := NewKey("response", "users", "fp")

		require.NoError(t, store.Set(ctx, key, []byte("payload"), time.Minute))
		v, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(v))

		require.NoError(t, store.Delete(ctx, key))
		_, err = store.Get(ctx, key)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Should expire entries", func(t *testing.T) {
		store, err := NewMemoryStore(0)
		require.NoError(t, err)
		defer store.Close()
		key := NewKey("short")
		require.NoError(t, store.Set(ctx, key, []byte("x"), 50*time.Millisecond))
		assert.Eventually(t, func() bool {
			_, err := store.Get(ctx, key)
			return err == ErrNotFound
		}, 2*time.Second, 20*time.Millisecond)
	})

	t.Run("Should report entries larger than the store as rejected", func(t *testing.T) {
		store, err := NewMemoryStore(1 << 10)
		require.NoError(t, err)
		defer store.Close()
		key := NewKey("response", "users", "big")

		err = store.Set(ctx, key, make([]byte, 4<<10), time.Minute)

		assert.ErrorIs(t, err, ErrRejected)
		_, err = store.Get(ctx, key)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Should refuse operations after close", func(t *testing.T) {
		store, err := NewMemoryStore(0)
		require.NoError(t, err)
		store.Close()
		store.Close()
		_, err = store.Get(ctx, NewKey("a"))
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, store.Set(ctx, NewKey("a"), nil, 0), ErrClosed)
		assert.ErrorIs(t, store.Delete(ctx, NewKey("a")), ErrClosed)
	})
}
