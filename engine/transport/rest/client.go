package rest

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/compozy/remotequery/engine/transport"
	"github.com/compozy/remotequery/pkg/config"
	"github.com/compozy/remotequery/pkg/logger"
)

const (
	DefaultTimeout = 30 * time.Second

	headerContentType   = "Content-Type"
	headerAccept        = "Accept"
	headerAuthorization = "Authorization"
	headerRequestID     = "X-Request-ID"
	mimeJSON            = "application/json"
	maxDetailBytes      = 512
)

// Client is the REST transport. Header state is safe for concurrent use.
type Client struct {
	http *resty.Client

	mu      sync.RWMutex
	baseURL string
	headers map[string]string
}

type Option func(*options)

type options struct {
	timeout    time.Duration
	headers    map[string]string
	retryCount int
	debug      bool
	httpClient *http.Client
}

// WithTimeout overrides the default 30s request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithHeaders adds default headers. Content-Type and Accept stay JSON.
func WithHeaders(h map[string]string) Option {
	return func(o *options) {
		maps.Copy(o.headers, h)
	}
}

// WithRetryCount retries idempotent verbs on network errors, 408, 429 and 5xx.
func WithRetryCount(n int) Option {
	return func(o *options) {
		o.retryCount = n
	}
}

func WithDebug(debug bool) Option {
	return func(o *options) {
		o.debug = debug
	}
}

// WithHTTPClient sets the underlying http.Client, e.g. an httptest server client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// New creates a REST transport rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	o := &options{timeout: DefaultTimeout, headers: map[string]string{}}
	for _, opt := range opts {
		opt(o)
	}
	var hc *resty.Client
	if o.httpClient != nil {
		hc = resty.NewWithClient(o.httpClient)
	} else {
		hc = resty.New()
	}
	hc.SetTimeout(o.timeout).SetDebug(o.debug)
	if o.retryCount > 0 {
		hc.SetRetryCount(o.retryCount).
			SetRetryWaitTime(100 * time.Millisecond).
			SetRetryMaxWaitTime(2 * time.Second).
			AddRetryCondition(retryCondition)
	}
	c := &Client{
		http:    hc,
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: map[string]string{},
	}
	c.SetHeaders(o.headers)
	return c
}

// NewFromConfig builds a REST transport from the rest config section.
// Extra opts are applied after the configured ones.
func NewFromConfig(cfg *config.RESTConfig, opts ...Option) *Client {
	base := []Option{
		WithTimeout(cfg.Timeout),
		WithHeaders(cfg.Headers),
		WithRetryCount(cfg.RetryCount),
		WithDebug(cfg.Debug),
	}
	return New(cfg.BaseURL, append(base, opts...)...)
}

// retryCondition determines if a request should be retried
func retryCondition(r *resty.Response, err error) bool {
	if r == nil || r.Request == nil || !idempotent(r.Request.Method) {
		return false
	}
	if err != nil {
		return true
	}
	code := r.StatusCode()
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

// SetAuthToken sets the bearer token sent with every subsequent request.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[headerAuthorization] = "Bearer " + token
}

// SetHeaders merges h into the default headers.
func (c *Client) SetHeaders(h map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	maps.Copy(c.headers, h)
	c.headers[headerContentType] = mimeJSON
	c.headers[headerAccept] = mimeJSON
}

// Headers returns a copy of the default headers.
func (c *Client) Headers() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.headers)
}

func (c *Client) SetBaseURL(baseURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = strings.TrimRight(baseURL, "/")
}

func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

func (c *Client) Get(ctx context.Context, path string, params transport.Params) (*transport.Response, error) {
	body, err := c.do(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return nil, err
	}
	return transport.NewResponse(body)
}

func (c *Client) Post(ctx context.Context, path string, body transport.Record) (transport.Record, error) {
	return c.write(ctx, http.MethodPost, path, body)
}

func (c *Client) Put(ctx context.Context, path string, body transport.Record) (transport.Record, error) {
	return c.write(ctx, http.MethodPut, path, body)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodDelete, path, nil, nil)
	return err
}

func (c *Client) write(
	ctx context.Context,
	method, path string,
	body transport.Record,
) (transport.Record, error) {
	if body == nil {
		body = transport.Record{}
	}
	raw, err := c.do(ctx, method, path, nil, body)
	if err != nil {
		return nil, err
	}
	return transport.DecodeRecord(raw)
}

// do performs one request and wraps every failure at this boundary.
func (c *Client) do(
	ctx context.Context,
	method, path string,
	params transport.Params,
	body any,
) ([]byte, error) {
	log := logger.FromContext(ctx)
	c.mu.RLock()
	url := transport.JoinURL(c.baseURL, path)
	headers := maps.Clone(c.headers)
	c.mu.RUnlock()

	requestID := uuid.NewString()
	req := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetHeader(headerRequestID, requestID)
	if len(params) > 0 {
		req.SetQueryParams(params)
	}
	if body != nil {
		req.SetBody(body)
	}
	start := time.Now()
	resp, err := req.Execute(method, url)
	if err != nil {
		log.Debug("REST request failed", "method", method, "path", path, "request_id", requestID, "error", err)
		return nil, transport.NewTransportError(transport.KindREST, method, path, err)
	}
	log.Debug("REST request completed",
		"method", method,
		"path", path,
		"status", resp.StatusCode(),
		"duration", time.Since(start),
		"request_id", requestID,
	)
	if !resp.IsSuccess() {
		return nil, transport.NewStatusError(
			transport.KindREST, method, path, resp.StatusCode(), detail(resp.Body()),
		)
	}
	return resp.Body(), nil
}

func detail(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxDetailBytes {
		return fmt.Sprintf("%s...", s[:maxDetailBytes])
	}
	return s
}
