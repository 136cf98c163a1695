package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/remotequery/engine/transport"
	"github.com/compozy/remotequery/pkg/config"
)

func TestClient_Get(t *testing.T) {
	t.Run("Should send filters as query params with JSON headers", func(t *testing.T) {
		var got *http.Request
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r
			_, _ = w.Write([]byte(`[{"id":1,"name":"Ada"}]`))
		}))
		defer srv.Close()
		client := New(srv.URL + "/api/")

		resp, err := client.Get(context.Background(), "/users", transport.Params{
			"filter[age_gt]": "18",
			"sort":           "-id",
		})

		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "/api/users", got.URL.Path)
		assert.Equal(t, "18", got.URL.Query().Get("filter[age_gt]"))
		assert.Equal(t, "-id", got.URL.Query().Get("sort"))
		assert.Equal(t, "application/json", got.Header.Get("Accept"))
		assert.NotEmpty(t, got.Header.Get("X-Request-ID"))
		assert.True(t, resp.IsArray())
		records, err := resp.Records()
		require.NoError(t, err)
		assert.Equal(t, "Ada", records[0]["name"])
	})

	t.Run("Should send escaped item ids as one path segment", func(t *testing.T) {
		var got *http.Request
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r
			_, _ = w.Write([]byte(`{"id":5}`))
		}))
		defer srv.Close()

		_, err := New(srv.URL).Get(context.Background(), transport.ItemPath("users", "5?filter[role]=admin"), nil)

		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "/users/5?filter[role]=admin", got.URL.Path)
		assert.Empty(t, got.URL.RawQuery)
	})

	t.Run("Should wrap non-2xx statuses with the body detail", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"message":"bad filter"}`))
		}))
		defer srv.Close()

		_, err := New(srv.URL).Get(context.Background(), "users", nil)

		require.Error(t, err)
		assert.ErrorIs(t, err, transport.ErrTransport)
		var te *transport.TransportError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, http.StatusUnprocessableEntity, te.Status)
		assert.Contains(t, te.Detail, "bad filter")
	})

	t.Run("Should surface timeouts as transport errors", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			<-release
			_, _ = w.Write([]byte(`[]`))
		}))
		defer srv.Close()
		defer close(release)

		_, err := New(srv.URL, WithTimeout(50*time.Millisecond)).Get(context.Background(), "users", nil)

		require.Error(t, err)
		var te *transport.TransportError
		require.ErrorAs(t, err, &te)
		assert.True(t, te.Timeout())
		assert.Zero(t, te.Status)
	})

	t.Run("Should reject malformed JSON", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"data":`))
		}))
		defer srv.Close()

		_, err := New(srv.URL).Get(context.Background(), "users", nil)

		assert.ErrorIs(t, err, transport.ErrDecode)
	})

	t.Run("Should retry idempotent reads on server errors", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`[]`))
		}))
		defer srv.Close()

		resp, err := New(srv.URL, WithRetryCount(3)).Get(context.Background(), "users", nil)

		require.NoError(t, err)
		assert.True(t, resp.IsArray())
		assert.Equal(t, int32(3), calls.Load())
	})
}

func TestClient_Writes(t *testing.T) {
	t.Run("Should post JSON bodies and decode the created record", func(t *testing.T) {
		var body map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &body)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":10,"name":"Ada"}`))
		}))
		defer srv.Close()

		rec, err := New(srv.URL).Post(context.Background(), "users", transport.Record{"name": "Ada"})

		require.NoError(t, err)
		assert.Equal(t, "Ada", body["name"])
		assert.Equal(t, json.Number("10"), rec["id"])
	})

	t.Run("Should not retry non-idempotent posts", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := New(srv.URL, WithRetryCount(3)).Post(context.Background(), "users", nil)

		assert.ErrorIs(t, err, transport.ErrTransport)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("Should put to the item path", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPut, r.Method)
			assert.Equal(t, "/users/7", r.URL.Path)
			_, _ = w.Write(nil)
		}))
		defer srv.Close()

		rec, err := New(srv.URL).Put(context.Background(), "users/7", transport.Record{"name": "B"})

		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("Should carry the status code of failed deletes", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodDelete, r.Method)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		err := New(srv.URL).Delete(context.Background(), "users/7")

		assert.Equal(t, http.StatusNotFound, transport.StatusOf(err))
	})
}

func TestClient_Headers(t *testing.T) {
	t.Run("Should inject bearer tokens into later calls", func(t *testing.T) {
		var auth atomic.Value
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth.Store(r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`[]`))
		}))
		defer srv.Close()
		client := New(srv.URL)
		client.SetAuthToken("tok")

		_, err := client.Get(context.Background(), "users", nil)

		require.NoError(t, err)
		assert.Equal(t, "Bearer tok", auth.Load())
	})

	t.Run("Should keep JSON content negotiation fixed", func(t *testing.T) {
		client := New("http://example.com", WithHeaders(map[string]string{"Accept": "text/html", "X-Tenant": "a"}))
		client.SetHeaders(map[string]string{"Content-Type": "text/plain", "X-Trace": "b"})
		h := client.Headers()
		assert.Equal(t, "application/json", h["Accept"])
		assert.Equal(t, "application/json", h["Content-Type"])
		assert.Equal(t, "a", h["X-Tenant"])
		assert.Equal(t, "b", h["X-Trace"])
	})

	t.Run("Should build from configuration", func(t *testing.T) {
		cfg := config.Default()
		cfg.REST.BaseURL = "https://api.example.com/"
		cfg.REST.Headers = map[string]string{"X-App": "remoteq"}
		client := NewFromConfig(&cfg.REST)
		assert.Equal(t, "https://api.example.com", client.BaseURL())
		assert.Equal(t, "remoteq", client.Headers()["X-App"])
		client.SetBaseURL("https://other.example.com//")
		assert.Equal(t, "https://other.example.com", client.BaseURL())
	})
}
