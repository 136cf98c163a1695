package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	grpclib "google.golang.org/grpc"

	"github.com/compozy/remotequery/engine/infra/cache"
	"github.com/compozy/remotequery/engine/query"
	"github.com/compozy/remotequery/engine/transport"
	"github.com/compozy/remotequery/engine/transport/cached"
	"github.com/compozy/remotequery/engine/transport/grpc"
	"github.com/compozy/remotequery/engine/transport/metrics"
	"github.com/compozy/remotequery/engine/transport/oauth"
	"github.com/compozy/remotequery/engine/transport/rest"
	"github.com/compozy/remotequery/pkg/config"
	"github.com/compozy/remotequery/pkg/logger"
)

var ErrClosed = errors.New("remote manager is closed")

type Option func(*options)

type options struct {
	store       cache.Store
	registerer  prometheus.Registerer
	dialOptions []grpclib.DialOption
	restOptions []rest.Option
}

// WithStore injects the token and response store. An injected store is not
// closed by the manager.
func WithStore(store cache.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithRegisterer sets the Prometheus registerer used when metrics are enabled.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

func WithGRPCDialOptions(opts ...grpclib.DialOption) Option {
	return func(o *options) {
		o.dialOptions = append(o.dialOptions, opts...)
	}
}

func WithRESTOptions(opts ...rest.Option) Option {
	return func(o *options) {
		o.restOptions = append(o.restOptions, opts...)
	}
}

// Manager builds transports from configuration and hands out query builders.
// Transports are created on first use and shared afterwards.
type Manager struct {
	cfg        *config.Config
	opts       options
	cache      *cache.Cache
	store      cache.Store
	collectors *metrics.Collectors

	mu      sync.Mutex
	clients map[transport.Kind]transport.Client
	grpc    *grpc.Client
	closed  bool
}

// NewManager prepares the shared store and collectors. The store is created
// only when caching or OAuth needs one.
func NewManager(ctx context.Context, cfg *config.Config, opts ...Option) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	m := &Manager{cfg: cfg, clients: map[transport.Kind]transport.Client{}}
	for _, opt := range opts {
		opt(&m.opts)
	}
	m.store = m.opts.store
	if m.store == nil && (cfg.Cache.Enabled || cfg.REST.OAuth) {
		c, err := cache.SetupCache(ctx, cache.FromAppConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to set up cache: %w", err)
		}
		m.cache = c
		m.store = c.Store
	}
	if cfg.Metrics.Enabled {
		collectors, err := metrics.NewCollectors(m.opts.registerer, cfg.Metrics.Namespace)
		if err != nil {
			_ = m.closeStore()
			return nil, err
		}
		m.collectors = collectors
	}
	logger.FromContext(ctx).Debug("Remote manager ready",
		"default_client", cfg.Client.Default,
		"cache", cfg.Cache.Enabled,
		"cache_driver", cfg.Cache.Driver,
		"oauth", cfg.REST.OAuth,
		"metrics", cfg.Metrics.Enabled,
	)
	return m, nil
}

// DefaultKind is the transport configured under client.default.
func (m *Manager) DefaultKind() transport.Kind {
	if m.cfg.Client.Default == "" {
		return transport.KindREST
	}
	return transport.Kind(m.cfg.Client.Default)
}

func (m *Manager) Default() (transport.Client, error) {
	return m.Client(m.DefaultKind())
}

// Client returns the decorated transport of kind.
func (m *Manager) Client(kind transport.Kind) (transport.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if c, ok := m.clients[kind]; ok {
		return c, nil
	}
	var (
		c   transport.Client
		err error
	)
	switch kind {
	case transport.KindREST:
		c, err = m.buildREST()
	case transport.KindGRPC:
		c, err = m.buildGRPC()
	default:
		return nil, fmt.Errorf("unknown client kind %q", kind)
	}
	if err != nil {
		return nil, err
	}
	m.clients[kind] = c
	return c, nil
}

func (m *Manager) buildREST() (transport.Client, error) {
	cfg := &m.cfg.REST
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("rest.base_url is required for the rest client")
	}
	base := rest.NewFromConfig(cfg, m.opts.restOptions...)
	var c transport.Client = base
	if cfg.OAuth {
		c = oauth.NewFromConfig(base, m.store, cfg, &m.cfg.OAuth)
	}
	return m.decorate(c, transport.KindREST), nil
}

func (m *Manager) buildGRPC() (transport.Client, error) {
	var opts []grpc.Option
	if len(m.opts.dialOptions) > 0 {
		opts = append(opts, grpc.WithDialOptions(m.opts.dialOptions...))
	}
	gc, err := grpc.NewFromConfig(&m.cfg.GRPC, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client: %w", err)
	}
	m.grpc = gc
	return m.decorate(gc, transport.KindGRPC), nil
}

// decorate applies the response cache and instrumentation, outermost last.
func (m *Manager) decorate(c transport.Client, kind transport.Kind) transport.Client {
	if m.cfg.Cache.Enabled {
		opts := []cached.Option{cached.WithTTL(m.cfg.Cache.ResponseTTL)}
		if m.cfg.Cache.InvalidateOnWrite {
			opts = append(opts, cached.WithInvalidateOnWrite())
		}
		c = cached.New(c, m.store, opts...)
	}
	if m.collectors != nil {
		c = metrics.New(c, kind, m.collectors)
	}
	return c
}

// Query returns a builder for model on the model's transport, or the default
// one when the model does not pin a kind.
func Query[T any](m *Manager, model query.Model, opts ...query.Option) (*query.Builder[T], error) {
	kind := model.Client
	if kind == "" {
		kind = m.DefaultKind()
	}
	c, err := m.Client(kind)
	if err != nil {
		return nil, err
	}
	return query.New[T](c, model, opts...), nil
}

// Close releases the gRPC channel and the store the manager created.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	var errs []error
	if m.grpc != nil {
		if err := m.grpc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing grpc client: %w", err))
		}
	}
	if err := m.closeStore(); err != nil {
		errs = append(errs, err)
	}
	m.clients = map[transport.Kind]transport.Client{}
	return errors.Join(errs...)
}

func (m *Manager) closeStore() error {
	if m.cache == nil {
		return nil
	}
	if err := m.cache.Close(); err != nil {
		return fmt.Errorf("closing cache: %w", err)
	}
	return nil
}
