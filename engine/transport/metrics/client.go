package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/compozy/remotequery/engine/transport"
)

const DefaultNamespace = "remoteq"

// Outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeNotFound = "not_found"
	OutcomeTimeout  = "timeout"
	OutcomeAuth     = "auth_error"
	OutcomeDecode   = "decode_error"
	OutcomeError    = "error"
)

// Collectors holds the request counter and latency histogram shared by every
// instrumented transport on one registerer.
type Collectors struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewCollectors registers the transport collectors on reg. Collectors that are
// already registered are reused.
func NewCollectors(reg prometheus.Registerer, namespace string) (*Collectors, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	labels := []string{"transport", "method", "outcome"}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transport_requests_total",
		Help:      "Total number of remote transport requests",
	}, labels)
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "transport_request_duration_seconds",
		Help:      "Remote transport request latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, labels)
	var err error
	if requests, err = register(reg, requests); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	return &Collectors{requests: requests, duration: duration}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("failed to register transport metrics: %w", err)
	}
	return c, nil
}

// Client instruments every verb of inner.
type Client struct {
	inner      transport.Client
	kind       transport.Kind
	collectors *Collectors
}

func New(inner transport.Client, kind transport.Kind, collectors *Collectors) *Client {
	return &Client{inner: inner, kind: kind, collectors: collectors}
}

func (c *Client) Unwrap() transport.Client {
	return c.inner
}

func (c *Client) Get(ctx context.Context, path string, params transport.Params) (*transport.Response, error) {
	start := time.Now()
	resp, err := c.inner.Get(ctx, path, params)
	c.observe(http.MethodGet, start, err)
	return resp, err
}

func (c *Client) Post(ctx context.Context, path string, body transport.Record) (transport.Record, error) {
	start := time.Now()
	rec, err := c.inner.Post(ctx, path, body)
	c.observe(http.MethodPost, start, err)
	return rec, err
}

func (c *Client) Put(ctx context.Context, path string, body transport.Record) (transport.Record, error) {
	start := time.Now()
	rec, err := c.inner.Put(ctx, path, body)
	c.observe(http.MethodPut, start, err)
	return rec, err
}

func (c *Client) Delete(ctx context.Context, path string) error {
	start := time.Now()
	err := c.inner.Delete(ctx, path)
	c.observe(http.MethodDelete, start, err)
	return err
}

// Run instruments raw queries when the wrapped chain supports them.
func (c *Client) Run(ctx context.Context, sql string, args ...any) ([]transport.Record, error) {
	runner, ok := transport.AsRunner(c.inner)
	if !ok {
		return nil, fmt.Errorf("%s: %w", c.kind, transport.ErrNotSupported)
	}
	start := time.Now()
	rows, err := runner.Run(ctx, sql, args...)
	c.observe("RUN", start, err)
	return rows, err
}

func (c *Client) observe(method string, start time.Time, err error) {
	outcome := Outcome(err)
	kind := string(c.kind)
	c.collectors.requests.WithLabelValues(kind, method, outcome).Inc()
	c.collectors.duration.WithLabelValues(kind, method, outcome).Observe(time.Since(start).Seconds())
}

// Outcome classifies err into a metrics label.
func Outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	var te *transport.TransportError
	switch {
	case errors.As(err, &te) && te.Timeout():
		return OutcomeTimeout
	case errors.Is(err, transport.ErrAuth):
		return OutcomeAuth
	case errors.Is(err, transport.ErrDecode):
		return OutcomeDecode
	case transport.IsNotFoundStatus(err):
		return OutcomeNotFound
	default:
		return OutcomeError
	}
}
