package cached

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/compozy/remotequery/engine/infra/cache"
	"github.com/compozy/remotequery/engine/transport"
	"github.com/compozy/remotequery/pkg/logger"
)

const (
	DefaultTTL = 3600 * time.Second

	initialGeneration = "0"
)

// Client memoizes Get responses by request fingerprint. Writes pass through.
// Without WithInvalidateOnWrite a read after a write may be served stale
// until the entry expires.
type Client struct {
	inner      transport.Client
	memo       *cache.Memo
	ttl        time.Duration
	invalidate bool
}

type Option func(*Client)

func WithTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithInvalidateOnWrite rotates the resource generation after each successful
// write so later reads miss.
func WithInvalidateOnWrite() Option {
	return func(c *Client) {
		c.invalidate = true
	}
}

func New(inner transport.Client, store cache.Store, opts ...Option) *Client {
	c := &Client{
		inner: inner,
		memo:  cache.NewMemo(store),
		ttl:   DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Unwrap() transport.Client {
	return c.inner
}

func (c *Client) Get(ctx context.Context, path string, params transport.Params) (*transport.Response, error) {
	log := logger.FromContext(ctx)
	resource := transport.Resource(path)
	key := cache.NewKey("response", resource, c.generation(ctx, resource), cache.Fingerprint(path, params))
	body, hit, err := c.memo.Remember(ctx, key, c.ttl, func(ctx context.Context) ([]byte, error) {
		resp, err := c.inner.Get(ctx, path, params)
		if err != nil {
			return nil, err
		}
		return resp.Bytes(), nil
	})
	if err != nil {
		return nil, err
	}
	if hit {
		log.Debug("Response cache hit", "path", path, "key", key)
	} else {
		log.Debug("Response cache miss", "path", path, "key", key)
	}
	return transport.NewResponse(body)
}

func (c *Client) Post(ctx context.Context, path string, body transport.Record) (transport.Record, error) {
	rec, err := c.inner.Post(ctx, path, body)
	if err == nil {
		c.bump(ctx, path)
	}
	return rec, err
}

func (c *Client) Put(ctx context.Context, path string, body transport.Record) (transport.Record, error) {
	rec, err := c.inner.Put(ctx, path, body)
	if err == nil {
		c.bump(ctx, path)
	}
	return rec, err
}

func (c *Client) Delete(ctx context.Context, path string) error {
	err := c.inner.Delete(ctx, path)
	if err == nil {
		c.bump(ctx, path)
	}
	return err
}

func generationKey(resource string) cache.Key {
	return cache.NewKey("generation", resource)
}

// generation returns the current token embedded in response keys of resource.
func (c *Client) generation(ctx context.Context, resource string) string {
	if !c.invalidate {
		return initialGeneration
	}
	gen, err := c.memo.Store().Get(ctx, generationKey(resource))
	switch {
	case err == nil:
		return string(gen)
	case errors.Is(err, cache.ErrNotFound):
		return initialGeneration
	default:
		logger.FromContext(ctx).Warn("Failed to read cache generation", "resource", resource, "error", err)
		return initialGeneration
	}
}

func (c *Client) bump(ctx context.Context, path string) {
	if !c.invalidate {
		return
	}
	resource := transport.Resource(path)
	// generation keys never expire
	err := c.memo.Store().Set(ctx, generationKey(resource), []byte(uuid.NewString()), 0)
	if err != nil {
		logger.FromContext(ctx).Warn("Failed to rotate cache generation", "resource", resource, "error", err)
	}
}
