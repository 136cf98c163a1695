package grpc

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/compozy/remotequery/engine/transport"
	"github.com/compozy/remotequery/pkg/config"
)

const bufSize = 1 << 20

// startServer serves handlers over an in-memory listener and returns a connected client.
func startServer(t *testing.T, handlers Handlers, opts ...Option) *Client {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	srv := grpclib.NewServer()
	srv.RegisterService(NewServiceDesc(DefaultServiceName, handlers), nil)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	dialer := grpclib.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
	client, err := New("passthrough:///bufnet", append([]Option{WithDialOptions(dialer)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClient_Get(t *testing.T) {
	t.Run("Should map params onto typed request fields", func(t *testing.T) {
		var got map[string]any
		client := startServer(t, Handlers{
			MethodGet: func(_ context.Context, req map[string]any) (*Reply, error) {
				got = req
				return &Reply{Rows: []map[string]string{{"id": "1", "name": "Ada"}, {"id": "2", "name": "Bob"}}}, nil
			},
		})

		resp, err := client.Get(context.Background(), "users", transport.Params{
			"filter[age_gt]": "18",
			"filter[role]":   "admin",
			"sort":           "-id,name",
			"per_page":       "15",
		})

		require.NoError(t, err)
		assert.Equal(t, "users", got["resource"])
		assert.Equal(t, map[string]string{"age_gt": "18", "role": "admin"}, got["filters"])
		assert.Equal(t, "-id,name", got["sort"])
		assert.Equal(t, int64(15), got["per_page"])
		assert.True(t, resp.IsArray())
		records, err := resp.Records()
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "Ada", records[0]["name"])
	})

	t.Run("Should shape paginated replies as data and total", func(t *testing.T) {
		client := startServer(t, Handlers{
			MethodGet: func(_ context.Context, req map[string]any) (*Reply, error) {
				assert.Equal(t, int64(2), req["page"])
				return &Reply{Rows: []map[string]string{{"id": "16"}}, Total: 42}, nil
			},
		})

		resp, err := client.Get(context.Background(), "users", transport.Params{"page": "2", "per_page": "15"})

		require.NoError(t, err)
		assert.Equal(t, int64(42), resp.Get("total").Int())
		assert.Equal(t, "16", resp.Get("data.0.id").String())
	})

	t.Run("Should return a single object for id and aggregate requests", func(t *testing.T) {
		client := startServer(t, Handlers{
			MethodGet: func(_ context.Context, req map[string]any) (*Reply, error) {
				if req["aggregate"] == "count" {
					return &Reply{Rows: []map[string]string{{"count": "7"}}}, nil
				}
				if req["id"] == "404" {
					return &Reply{}, nil
				}
				return &Reply{Rows: []map[string]string{{"id": req["id"].(string)}}}, nil
			},
		})
		ctx := context.Background()

		one, err := client.Get(ctx, "users/5", nil)
		require.NoError(t, err)
		assert.Equal(t, "5", one.Get("id").String())

		missing, err := client.Get(ctx, "users/404", nil)
		require.NoError(t, err)
		assert.True(t, missing.IsNull())

		agg, err := client.Get(ctx, "users", transport.Params{"aggregate": "count", "column": "*"})
		require.NoError(t, err)
		assert.Equal(t, int64(7), agg.Get("count").Int())
	})

	t.Run("Should skip unknown fields unless strict", func(t *testing.T) {
		handlers := Handlers{
			MethodGet: func(context.Context, map[string]any) (*Reply, error) { return &Reply{}, nil },
		}
		lenient := startServer(t, handlers)
		_, err := lenient.Get(context.Background(), "users", transport.Params{"include": "posts"})
		require.NoError(t, err)

		strict := startServer(t, handlers, WithStrictFields())
		_, err = strict.Get(context.Background(), "users", transport.Params{"include": "posts"})
		require.Error(t, err)
		assert.ErrorIs(t, err, transport.ErrUnknownField)
	})

	t.Run("Should surface non-OK statuses with their detail", func(t *testing.T) {
		client := startServer(t, Handlers{
			MethodGet: func(context.Context, map[string]any) (*Reply, error) {
				return nil, status.Error(codes.PermissionDenied, "tenant mismatch")
			},
		})

		_, err := client.Get(context.Background(), "users", nil)

		require.Error(t, err)
		assert.ErrorIs(t, err, transport.ErrTransport)
		var te *transport.TransportError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, int(codes.PermissionDenied), te.Status)
		assert.Equal(t, "tenant mismatch", te.Detail)
	})

	t.Run("Should time out slow calls", func(t *testing.T) {
		client := startServer(t, Handlers{
			MethodGet: func(ctx context.Context, _ map[string]any) (*Reply, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		}, WithTimeout(50*time.Millisecond))

		_, err := client.Get(context.Background(), "users", nil)

		var te *transport.TransportError
		require.ErrorAs(t, err, &te)
		assert.True(t, te.Timeout())
	})

	t.Run("Should retry unavailable servers", func(t *testing.T) {
		var calls atomic.Int32
		client := startServer(t, Handlers{
			MethodGet: func(context.Context, map[string]any) (*Reply, error) {
				if calls.Add(1) < 3 {
					return nil, status.Error(codes.Unavailable, "warming up")
				}
				return &Reply{}, nil
			},
		}, WithRetryAttempts(3))

		_, err := client.Get(context.Background(), "users", nil)

		require.NoError(t, err)
		assert.Equal(t, int32(3), calls.Load())
	})
}

func TestClient_Writes(t *testing.T) {
	t.Run("Should create with the full path as resource", func(t *testing.T) {
		var got map[string]any
		client := startServer(t, Handlers{
			MethodCreate: func(_ context.Context, req map[string]any) (*Reply, error) {
				got = req
				return &Reply{Record: map[string]string{"id": "10", "name": "Ada"}}, nil
			},
		})

		rec, err := client.Post(context.Background(), "/users/", transport.Record{"name": "Ada", "age": 36})

		require.NoError(t, err)
		assert.Equal(t, "users", got["resource"])
		assert.Equal(t, map[string]string{"name": "Ada", "age": "36"}, got["attributes"])
		assert.Equal(t, transport.Record{"id": "10", "name": "Ada"}, rec)
	})

	t.Run("Should update and delete by the last path segment", func(t *testing.T) {
		var updated, deleted map[string]any
		client := startServer(t, Handlers{
			MethodUpdate: func(_ context.Context, req map[string]any) (*Reply, error) {
				updated = req
				return &Reply{Rows: []map[string]string{{"id": "7"}}}, nil
			},
			MethodDelete: func(_ context.Context, req map[string]any) (*Reply, error) {
				deleted = req
				return nil, nil
			},
		})
		ctx := context.Background()

		rec, err := client.Put(ctx, "users/7", transport.Record{"name": "B"})
		require.NoError(t, err)
		assert.Equal(t, "7", rec["id"])
		assert.Equal(t, "7", updated["id"])
		assert.Equal(t, "users", updated["resource"])

		require.NoError(t, client.Delete(ctx, "users/7"))
		assert.Equal(t, "7", deleted["id"])
		assert.Equal(t, "users", deleted["resource"])
	})

	t.Run("Should report unimplemented methods", func(t *testing.T) {
		client := startServer(t, Handlers{})
		err := client.Delete(context.Background(), "users/1")
		assert.Equal(t, int(codes.Unimplemented), transport.StatusOf(err))
	})
}

func TestClient_Run(t *testing.T) {
	t.Run("Should send SQL with stringified arguments", func(t *testing.T) {
		var got map[string]any
		client := startServer(t, Handlers{
			MethodRunQuery: func(_ context.Context, req map[string]any) (*Reply, error) {
				got = req
				return &Reply{Rows: []map[string]string{{"count": "3"}}}, nil
			},
		})

		rows, err := client.Run(context.Background(), "SELECT COUNT(*) AS count FROM users WHERE age > ?", 18)

		require.NoError(t, err)
		assert.Equal(t, "SELECT COUNT(*) AS count FROM users WHERE age > ?", got["sql"])
		assert.Equal(t, []string{"18"}, got["args"])
		assert.Equal(t, []transport.Record{{"count": "3"}}, rows)
		runner, ok := transport.AsRunner(client)
		require.True(t, ok)
		assert.Same(t, client, runner)
	})
}

func TestClient_Stubs(t *testing.T) {
	t.Run("Should cache one stub per method under concurrent first use", func(t *testing.T) {
		client, err := New("localhost:0")
		require.NoError(t, err)
		defer client.Close()

		var wg sync.WaitGroup
		stubs := make([]*stub, 16)
		for i := range stubs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s, err := client.stubFor(MethodGet)
				assert.NoError(t, err)
				stubs[i] = s
			}()
		}
		wg.Wait()
		for _, s := range stubs {
			assert.Same(t, stubs[0], s)
		}
		assert.Equal(t, "/eloquent.query.RemoteEloquentService/Get", stubs[0].fullMethod)
	})

	t.Run("Should drop stubs when the server address changes", func(t *testing.T) {
		client, err := New("localhost:1", WithServiceName("acme.Users"))
		require.NoError(t, err)
		defer client.Close()
		before, err := client.stubFor(MethodCreate)
		require.NoError(t, err)

		require.NoError(t, client.SetServerAddress("localhost:2"))

		after, err := client.stubFor(MethodCreate)
		require.NoError(t, err)
		assert.NotSame(t, before, after)
		assert.Equal(t, "localhost:2", client.ServerAddress())
		assert.Equal(t, "/acme.Users/Create", after.fullMethod)
		assert.Error(t, client.SetServerAddress(" "))
	})

	t.Run("Should fail calls after close", func(t *testing.T) {
		client, err := New("localhost:1")
		require.NoError(t, err)
		require.NoError(t, client.Close())
		_, err = client.Get(context.Background(), "users", nil)
		assert.ErrorIs(t, err, transport.ErrTransport)
	})
}

func TestNewFromConfig(t *testing.T) {
	t.Run("Should apply the grpc config section", func(t *testing.T) {
		cfg := config.Default().GRPC
		cfg.ServiceName = "acme.Remote"
		cfg.StrictFields = true
		client, err := NewFromConfig(&cfg)
		require.NoError(t, err)
		defer client.Close()
		assert.Equal(t, "acme.Remote", client.ServiceName())
		assert.True(t, client.strict)
		assert.Equal(t, "localhost:50051", client.ServerAddress())
	})

	t.Run("Should reject unknown credential types", func(t *testing.T) {
		cfg := config.Default().GRPC
		cfg.Credentials.Type = "kerberos"
		_, err := NewFromConfig(&cfg)
		assert.Error(t, err)
	})

	t.Run("Should fail on a missing CA file", func(t *testing.T) {
		_, err := TransportCredentials(config.CredentialsConfig{Type: CredentialsTLS, CAPath: "/nonexistent/ca.pem"})
		assert.Error(t, err)
		creds, err := TransportCredentials(config.CredentialsConfig{Type: CredentialsTLS})
		require.NoError(t, err)
		assert.Equal(t, "tls", creds.Info().SecurityProtocol)
	})
}

func TestSchema(t *testing.T) {
	t.Run("Should expose setters for every scalar, map and list field", func(t *testing.T) {
		get := defaultSchema.builder(defaultSchema.rpcs[MethodGet].request)
		for _, name := range []string{"resource", "id", "filters", "sort", "page", "per_page", "aggregate", "column"} {
			assert.Contains(t, get.setters, name)
		}
		query := defaultSchema.builder(defaultSchema.rpcs[MethodRunQuery].request)
		assert.Contains(t, query.setters, "args")
		assert.Equal(t, "PerPageEntry", mapEntryName("per_page"))
	})

	t.Run("Should reject non-numeric integers", func(t *testing.T) {
		get := defaultSchema.builder(defaultSchema.rpcs[MethodGet].request)
		_, err := get.build(map[string]any{"page": "two"}, false, nil)
		assert.Error(t, err)
	})
}
