package transport

import "context"

// Kind names a transport implementation.
type Kind string

const (
	KindREST Kind = "rest"
	KindGRPC Kind = "grpc"
)

// Params are query parameters for reads, rendered by the query builder.
type Params map[string]string

// Clone returns a shallow copy so callers can extend params without aliasing.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Record is one row or object exchanged with a remote resource.
type Record map[string]any

// Client is the capability contract shared by every transport and decorator.
type Client interface {
	Get(ctx context.Context, path string, params Params) (*Response, error)
	Post(ctx context.Context, path string, body Record) (Record, error)
	Put(ctx context.Context, path string, body Record) (Record, error)
	Delete(ctx context.Context, path string) error
}

// QueryRunner is implemented by transports that accept raw parameterized SQL.
type QueryRunner interface {
	Run(ctx context.Context, sql string, args ...any) ([]Record, error)
}

// Wrapper is implemented by decorators so callers can reach inner capabilities.
type Wrapper interface {
	Unwrap() Client
}

// AsRunner walks the decorator chain and returns the first QueryRunner found.
func AsRunner(c Client) (QueryRunner, bool) {
	for c != nil {
		if r, ok := c.(QueryRunner); ok {
			return r, true
		}
		w, ok := c.(Wrapper)
		if !ok {
			return nil, false
		}
		c = w.Unwrap()
	}
	return nil, false
}

// Innermost returns the transport at the bottom of a decorator chain.
func Innermost(c Client) Client {
	for {
		w, ok := c.(Wrapper)
		if !ok {
			return c
		}
		inner := w.Unwrap()
		if inner == nil {
			return c
		}
		c = inner
	}
}
