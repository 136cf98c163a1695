package cached

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/compozy/remotequery/engine/infra/cache/cachetest"
	"github.com/compozy/remotequery/engine/transport"
	"github.com/compozy/remotequery/engine/transport/transporttest"
)

func TestClient_Get(t *testing.T) {
	ctx := context.Background()
	params := transport.Params{"filter[age_gt]": "18", "sort": "-id"}

	t.Run("Should call the transport once within the ttl", func(t *testing.T) {
		inner := &transporttest.MockClient{}
		inner.On("Get", mock.Anything, "users", params).
			Return(transporttest.JSON(`[{"id":1}]`), nil).Once()
		client := New(inner, cachetest.NewStore())

		first, err := client.Get(ctx, "users", params)
		require.NoError(t, err)
		second, err := client.Get(ctx, "users", transport.Params{"sort": "-id", "filter[age_gt]": "18"})
		require.NoError(t, err)

		assert.JSONEq(t, `[{"id":1}]`, string(first.Bytes()))
		assert.JSONEq(t, string(first.Bytes()), string(second.Bytes()))
		inner.AssertNumberOfCalls(t, "Get", 1)
	})

	t.Run("Should call the transport again after expiry", func(t *testing.T) {
		inner := &transporttest.MockClient{}
		inner.On("Get", mock.Anything, "users", params).Return(transporttest.JSON(`[]`), nil)
		store := cachetest.NewStore()
		client := New(inner, store)

		_, err := client.Get(ctx, "users", params)
		require.NoError(t, err)
		store.Advance(DefaultTTL - time.Second)
		_, err = client.Get(ctx, "users", params)
		require.NoError(t, err)
		inner.AssertNumberOfCalls(t, "Get", 1)

		store.Advance(time.Second)
		_, err = client.Get(ctx, "users", params)
		require.NoError(t, err)
		inner.AssertNumberOfCalls(t, "Get", 2)
	})

	t.Run("Should honor a custom ttl", func(t *testing.T) {
		inner := &transporttest.MockClient{}
		inner.On("Get", mock.Anything, "users", transport.Params(nil)).Return(transporttest.JSON(`[]`), nil)
		store := cachetest.NewStore()
		client := New(inner, store, WithTTL(time.Minute))

		_, err := client.Get(ctx, "users", nil)
		require.NoError(t, err)
		keys := store.Keys()
		require.Len(t, keys, 1)
		ttl, _ := store.TTL(keys[0])
		assert.Equal(t, time.Minute, ttl)
		assert.Contains(t, keys[0].String(), "remoteq:response:users:0:")
	})

	t.Run("Should not cache failures", func(t *testing.T) {
		inner := &transporttest.MockClient{}
		boom := transport.NewTransportError(transport.KindREST, "GET", "users", errors.New("reset"))
		inner.On("Get", mock.Anything, "users", params).Return(nil, boom).Twice()
		client := New(inner, cachetest.NewStore())

		_, err := client.Get(ctx, "users", params)
		assert.ErrorIs(t, err, transport.ErrTransport)
		_, err = client.Get(ctx, "users", params)
		assert.ErrorIs(t, err, transport.ErrTransport)
		inner.AssertExpectations(t)
	})
}

func TestClient_Writes(t *testing.T) {
	ctx := context.Background()

	t.Run("Should pass writes through and keep serving cached reads", func(t *testing.T) {
		inner := &transporttest.MockClient{}
		inner.On("Get", mock.Anything, "users", transport.Params(nil)).Return(transporttest.JSON(`[{"id":1}]`), nil)
		inner.On("Post", mock.Anything, "users", transport.Record{"name": "B"}).Return(transport.Record{"id": 2}, nil)
		inner.On("Put", mock.Anything, "users/1", transport.Record{"name": "C"}).Return(transport.Record{"id": 1}, nil)
		inner.On("Delete", mock.Anything, "users/1").Return(nil)
		client := New(inner, cachetest.NewStore())

		_, err := client.Get(ctx, "users", nil)
		require.NoError(t, err)
		rec, err := client.Post(ctx, "users", transport.Record{"name": "B"})
		require.NoError(t, err)
		assert.Equal(t, 2, rec["id"])
		_, err = client.Put(ctx, "users/1", transport.Record{"name": "C"})
		require.NoError(t, err)
		require.NoError(t, client.Delete(ctx, "users/1"))
		_, err = client.Get(ctx, "users", nil)
		require.NoError(t, err)

		inner.AssertNumberOfCalls(t, "Get", 1)
		inner.AssertExpectations(t)
	})

	t.Run("Should invalidate reads of the written resource when enabled", func(t *testing.T) {
		inner := &transporttest.MockClient{}
		inner.On("Get", mock.Anything, "users", transport.Params(nil)).Return(transporttest.JSON(`[]`), nil)
		inner.On("Get", mock.Anything, "posts", transport.Params(nil)).Return(transporttest.JSON(`[]`), nil)
		inner.On("Post", mock.Anything, "users", transport.Record{"name": "B"}).Return(transport.Record{"id": 2}, nil)
		client := New(inner, cachetest.NewStore(), WithInvalidateOnWrite())

		_, err := client.Get(ctx, "users", nil)
		require.NoError(t, err)
		_, err = client.Get(ctx, "posts", nil)
		require.NoError(t, err)
		_, err = client.Post(ctx, "users", transport.Record{"name": "B"})
		require.NoError(t, err)
		_, err = client.Get(ctx, "users", nil)
		require.NoError(t, err)
		_, err = client.Get(ctx, "posts", nil)
		require.NoError(t, err)

		assert.Len(t, callsFor(inner, "users"), 2)
		assert.Len(t, callsFor(inner, "posts"), 1)
	})

	t.Run("Should keep the generation after failed writes", func(t *testing.T) {
		inner := &transporttest.MockClient{}
		inner.On("Get", mock.Anything, "users", transport.Params(nil)).Return(transporttest.JSON(`[]`), nil)
		inner.On("Delete", mock.Anything, "users/9").Return(errors.New("gone"))
		client := New(inner, cachetest.NewStore(), WithInvalidateOnWrite())

		_, err := client.Get(ctx, "users", nil)
		require.NoError(t, err)
		assert.Error(t, client.Delete(ctx, "users/9"))
		_, err = client.Get(ctx, "users", nil)
		require.NoError(t, err)

		inner.AssertNumberOfCalls(t, "Get", 1)
		assert.Same(t, inner, client.Unwrap())
	})
}

func callsFor(m *transporttest.MockClient, path string) []mock.Call {
	var out []mock.Call
	for _, c := range m.Calls {
		if c.Method == "Get" && c.Arguments.String(1) == path {
			out = append(out, c)
		}
	}
	return out
}
