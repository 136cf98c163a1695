package remote

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/compozy/remotequery/engine/infra/cache/cachetest"
	"github.com/compozy/remotequery/engine/query"
	"github.com/compozy/remotequery/engine/transport"
	"github.com/compozy/remotequery/engine/transport/cached"
	"github.com/compozy/remotequery/engine/transport/grpc"
	"github.com/compozy/remotequery/engine/transport/metrics"
	"github.com/compozy/remotequery/engine/transport/oauth"
	"github.com/compozy/remotequery/engine/transport/rest"
	"github.com/compozy/remotequery/pkg/config"
)

type user struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func usersServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer"}`))
	})
	mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Query().Get("aggregate") == "count" {
			_, _ = w.Write([]byte(`{"count":2}`))
			return
		}
		if auth := r.Header.Get("Authorization"); auth != "" && auth != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[{"id":1,"name":"Ada"}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestManager_REST(t *testing.T) {
	ctx := context.Background()

	t.Run("Should build the plain transport by default", func(t *testing.T) {
		var hits atomic.Int32
		cfg := config.Default()
		cfg.REST.BaseURL = usersServer(t, &hits).URL
		m, err := NewManager(ctx, cfg)
		require.NoError(t, err)
		defer m.Close()

		client, err := m.Default()
		require.NoError(t, err)
		assert.IsType(t, &rest.Client{}, client)
		again, err := m.Client(transport.KindREST)
		require.NoError(t, err)
		assert.Same(t, client, again)
	})

	t.Run("Should decorate with oauth, cache and metrics", func(t *testing.T) {
		var hits atomic.Int32
		cfg := config.Default()
		cfg.REST.BaseURL = usersServer(t, &hits).URL
		cfg.REST.OAuth = true
		cfg.OAuth.ClientID = "client"
		cfg.Cache.Enabled = true
		cfg.Metrics.Enabled = true
		reg := prometheus.NewRegistry()
		store := cachetest.NewStore()
		m, err := NewManager(ctx, cfg, WithStore(store), WithRegisterer(reg))
		require.NoError(t, err)
		defer m.Close()

		client, err := m.Client(transport.KindREST)
		require.NoError(t, err)
		require.IsType(t, &metrics.Client{}, client)
		inner := client.(transport.Wrapper).Unwrap()
		require.IsType(t, &cached.Client{}, inner)
		require.IsType(t, &oauth.Client{}, inner.(transport.Wrapper).Unwrap())
		assert.IsType(t, &rest.Client{}, transport.Innermost(client))

		b, err := Query[user](m, query.Model{Table: "users"})
		require.NoError(t, err)
		first, err := b.Get(ctx)
		require.NoError(t, err)
		second, err := b.Get(ctx)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, []user{{ID: 1, Name: "Ada"}}, first)
		assert.Equal(t, int32(1), hits.Load())
		_, ok := store.TTL(oauth.TokenKey)
		assert.True(t, ok)
		series, err := testutil.GatherAndCount(reg, "remoteq_transport_requests_total")
		require.NoError(t, err)
		assert.Equal(t, 1, series)
	})

	t.Run("Should fail without a base URL", func(t *testing.T) {
		m, err := NewManager(ctx, config.Default())
		require.NoError(t, err)

		_, err = m.Client(transport.KindREST)

		assert.ErrorContains(t, err, "rest.base_url is required")
	})
}

func startGRPC(t *testing.T, handlers grpc.Handlers) grpclib.DialOption {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpclib.NewServer()
	srv.RegisterService(grpc.NewServiceDesc(grpc.DefaultServiceName, handlers), nil)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return grpclib.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
}

func TestManager_GRPC(t *testing.T) {
	ctx := context.Background()

	t.Run("Should run SQL mode queries over RunQuery", func(t *testing.T) {
		var gotSQL string
		var gotArgs []string
		dialer := startGRPC(t, grpc.Handlers{
			grpc.MethodRunQuery: func(_ context.Context, req map[string]any) (*grpc.Reply, error) {
				gotSQL, _ = req["sql"].(string)
				gotArgs, _ = req["args"].([]string)
				return &grpc.Reply{Rows: []map[string]string{{"id": "7", "name": "Grace"}}}, nil
			},
		})
		cfg := config.Default()
		cfg.GRPC.ServerAddress = "passthrough:///bufnet"
		cfg.Metrics.Enabled = true
		m, err := NewManager(ctx, cfg, WithGRPCDialOptions(dialer), WithRegisterer(prometheus.NewRegistry()))
		require.NoError(t, err)
		defer m.Close()

		b, err := Query[user](m, query.Model{Table: "users", Mode: query.ModeSQL, Client: transport.KindGRPC})
		require.NoError(t, err)
		got, err := b.Where("name", "Grace").Get(ctx)

		require.NoError(t, err)
		assert.Equal(t, []user{{ID: 7, Name: "Grace"}}, got)
		assert.Equal(t, "SELECT * FROM users WHERE name = ?", gotSQL)
		assert.Equal(t, []string{"Grace"}, gotArgs)
	})
}

func TestManager_Lifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("Should reject unknown kinds and calls after close", func(t *testing.T) {
		m, err := NewManager(ctx, config.Default())
		require.NoError(t, err)

		_, err = m.Client("soap")
		assert.ErrorContains(t, err, `unknown client kind "soap"`)

		require.NoError(t, m.Close())
		require.NoError(t, m.Close())
		_, err = m.Client(transport.KindGRPC)
		assert.ErrorIs(t, err, ErrClosed)
	})

	t.Run("Should create and release a memory store when caching", func(t *testing.T) {
		cfg := config.Default()
		cfg.Cache.Enabled = true
		m, err := NewManager(ctx, cfg)
		require.NoError(t, err)
		require.NotNil(t, m.store)
		require.NotNil(t, m.cache)
		assert.NoError(t, m.Close())
	})

	t.Run("Should reject a nil config", func(t *testing.T) {
		_, err := NewManager(ctx, nil)
		assert.Error(t, err)
	})
}
