package grpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/compozy/remotequery/engine/transport"
	"github.com/compozy/remotequery/pkg/config"
	"github.com/compozy/remotequery/pkg/logger"
)

const (
	DefaultTimeout = 30 * time.Second

	retryBase = 100 * time.Millisecond
	retryMax  = 2 * time.Second
)

// Client is the gRPC transport. It also implements transport.QueryRunner.
type Client struct {
	mu      sync.RWMutex
	address string
	conn    *grpclib.ClientConn
	// stubs caches one stub per logical method; cleared when the channel changes
	stubs sync.Map

	service     string
	timeout     time.Duration
	retries     int
	strict      bool
	creds       credentials.TransportCredentials
	dialOptions []grpclib.DialOption
	schema      *schema
}

// stub binds a method path to the channel it was created for.
type stub struct {
	method     Method
	fullMethod string
	conn       *grpclib.ClientConn
	rpc        rpc
}

type Option func(*Client)

func WithServiceName(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.service = name
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetryAttempts retries calls failing with Unavailable using exponential backoff.
func WithRetryAttempts(n int) Option {
	return func(c *Client) {
		c.retries = n
	}
}

// WithStrictFields rejects request keys that have no matching message field.
func WithStrictFields() Option {
	return func(c *Client) {
		c.strict = true
	}
}

func WithCredentials(creds credentials.TransportCredentials) Option {
	return func(c *Client) {
		c.creds = creds
	}
}

// WithDialOptions appends raw dial options, e.g. a bufconn dialer in tests.
func WithDialOptions(opts ...grpclib.DialOption) Option {
	return func(c *Client) {
		c.dialOptions = append(c.dialOptions, opts...)
	}
}

// New creates a gRPC transport for address. The channel connects lazily.
func New(address string, opts ...Option) (*Client, error) {
	c := &Client{
		service: DefaultServiceName,
		timeout: DefaultTimeout,
		schema:  defaultSchema,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.creds == nil {
		creds, err := TransportCredentials(config.CredentialsConfig{Type: CredentialsInsecure})
		if err != nil {
			return nil, err
		}
		c.creds = creds
	}
	if err := c.SetServerAddress(address); err != nil {
		return nil, err
	}
	return c, nil
}

// NewFromConfig builds a gRPC transport from the grpc config section.
func NewFromConfig(cfg *config.GRPCConfig, opts ...Option) (*Client, error) {
	creds, err := TransportCredentials(cfg.Credentials)
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithServiceName(cfg.ServiceName),
		WithTimeout(cfg.Timeout),
		WithRetryAttempts(cfg.RetryAttempts),
		WithCredentials(creds),
	}
	if cfg.StrictFields {
		base = append(base, WithStrictFields())
	}
	return New(cfg.ServerAddress, append(base, opts...)...)
}

// SetServerAddress replaces the channel and drops every cached stub.
func (c *Client) SetServerAddress(address string) error {
	if strings.TrimSpace(address) == "" {
		return fmt.Errorf("grpc server address is required")
	}
	dialOpts := append([]grpclib.DialOption{grpclib.WithTransportCredentials(c.creds)}, c.dialOptions...)
	conn, err := grpclib.NewClient(address, dialOpts...)
	if err != nil {
		return transport.NewTransportError(transport.KindGRPC, "connect", address, err)
	}
	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.address = address
	c.stubs.Clear()
	c.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

func (c *Client) ServerAddress() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.address
}

func (c *Client) ServiceName() string {
	return c.service
}

// Close releases the channel.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.stubs.Clear()
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// stubFor returns the cached stub for m, creating it on first use.
func (c *Client) stubFor(m Method) (*stub, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return nil, transport.NewTransportError(transport.KindGRPC, string(m), "", errors.New("client closed"))
	}
	if v, ok := c.stubs.Load(m); ok {
		if s := v.(*stub); s.conn == conn {
			return s, nil
		}
	}
	r, err := c.schema.rpc(m)
	if err != nil {
		return nil, err
	}
	created := &stub{method: m, fullMethod: FullMethod(c.service, m), conn: conn, rpc: r}
	v, loaded := c.stubs.LoadOrStore(m, created)
	s := v.(*stub)
	if loaded && s.conn != conn {
		// stale entry from a replaced channel
		c.stubs.Store(m, created)
		return created, nil
	}
	return s, nil
}

func (c *Client) Get(ctx context.Context, path string, params transport.Params) (*transport.Response, error) {
	resource, id := transport.SplitResourceID(path)
	if v, ok := params[fieldID]; ok && id == "" {
		id = v
	}
	fields := getFields(resource, id, params)
	resp, err := c.call(ctx, MethodGet, path, fields)
	if err != nil {
		return nil, err
	}
	rows := rowsOf(resp)
	return transport.ResponseFrom(normalizeGet(rows, totalOf(resp), params, id))
}

func (c *Client) Post(ctx context.Context, path string, body transport.Record) (transport.Record, error) {
	fields := map[string]any{
		fieldResource:   strings.Trim(path, "/"),
		fieldAttributes: recordOrEmpty(body),
	}
	resp, err := c.call(ctx, MethodCreate, path, fields)
	if err != nil {
		return nil, err
	}
	return recordOf(resp), nil
}

func (c *Client) Put(ctx context.Context, path string, body transport.Record) (transport.Record, error) {
	resource, id := transport.SplitResourceID(path)
	fields := map[string]any{
		fieldResource:   resource,
		fieldID:         id,
		fieldAttributes: recordOrEmpty(body),
	}
	resp, err := c.call(ctx, MethodUpdate, path, fields)
	if err != nil {
		return nil, err
	}
	return recordOf(resp), nil
}

// Delete takes the identifier from the last path segment.
func (c *Client) Delete(ctx context.Context, path string) error {
	resource, id := transport.SplitResourceID(path)
	_, err := c.call(ctx, MethodDelete, path, map[string]any{
		fieldResource: resource,
		fieldID:       id,
	})
	return err
}

// Run executes a parameterized SQL statement through RunQuery.
func (c *Client) Run(ctx context.Context, sql string, args ...any) ([]transport.Record, error) {
	strArgs := make([]string, len(args))
	for i, a := range args {
		strArgs[i] = transport.Stringify(a)
	}
	resp, err := c.call(ctx, MethodRunQuery, "", map[string]any{
		fieldSQL:  sql,
		fieldArgs: strArgs,
	})
	if err != nil {
		return nil, err
	}
	return rowsOf(resp), nil
}

func recordOrEmpty(r transport.Record) transport.Record {
	if r == nil {
		return transport.Record{}
	}
	return r
}

// call builds the request, invokes the unary RPC and wraps failures once.
func (c *Client) call(
	ctx context.Context,
	m Method,
	path string,
	fields map[string]any,
) (*dynamicpb.Message, error) {
	log := logger.FromContext(ctx)
	s, err := c.stubFor(m)
	if err != nil {
		return nil, err
	}
	req, err := c.schema.builder(s.rpc.request).build(fields, c.strict, func(field string) {
		log.Debug("Skipping unknown gRPC request field", "method", m, "field", field)
	})
	if err != nil {
		return nil, err
	}
	resp := newMessage(s.rpc.response)
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	start := time.Now()
	err = c.invoke(ctx, s, req, resp)
	log.Debug("gRPC call completed",
		"method", s.fullMethod,
		"path", path,
		"code", status.Code(err).String(),
		"duration", time.Since(start),
	)
	if err != nil {
		return nil, wrapStatus(m, path, err)
	}
	return resp, nil
}

func (c *Client) invoke(ctx context.Context, s *stub, req, resp proto.Message) error {
	attempt := func(ctx context.Context) error {
		err := s.conn.Invoke(ctx, s.fullMethod, req, resp)
		if status.Code(err) == codes.Unavailable {
			return retry.RetryableError(err)
		}
		return err
	}
	if c.retries <= 0 {
		return attempt(ctx)
	}
	exponential := retry.WithCappedDuration(retryMax, retry.NewExponential(retryBase))
	backoff := retry.WithMaxRetries(uint64(c.retries), exponential)
	return retry.Do(ctx, backoff, attempt)
}

// withTimeout applies the transport timeout unless ctx already ends sooner.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= c.timeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func wrapStatus(m Method, path string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return transport.NewTransportError(transport.KindGRPC, string(m), path, err)
	}
	cause := err
	switch st.Code() {
	case codes.DeadlineExceeded:
		cause = errors.Join(context.DeadlineExceeded, err)
	case codes.Canceled:
		cause = errors.Join(context.Canceled, err)
	}
	return &transport.TransportError{
		Transport: transport.KindGRPC,
		Op:        string(m),
		Path:      path,
		Status:    int(st.Code()),
		Detail:    st.Message(),
		Cause:     cause,
	}
}
