package oauth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/compozy/remotequery/engine/infra/cache"
	"github.com/compozy/remotequery/engine/transport"
	"github.com/compozy/remotequery/pkg/config"
	"github.com/compozy/remotequery/pkg/logger"
)

const (
	// TokenKey is the store key of the shared access token.
	TokenKey cache.Key = "oauth-access-token"

	DefaultTokenTTL  = 3500 * time.Second
	DefaultScope     = "*"
	DefaultTokenPath = "/oauth/token"
)

// Authenticatable is a transport that accepts a bearer token.
type Authenticatable interface {
	transport.Client
	SetAuthToken(token string)
}

// Config holds client-credentials settings.
type Config struct {
	BaseURL      string
	TokenPath    string
	ClientID     string
	ClientSecret string
	Scope        string
	TokenTTL     time.Duration
	// HTTPClient is used for the token exchange when set.
	HTTPClient *http.Client
}

// Client ensures a bearer token is present before delegating each verb.
type Client struct {
	inner      Authenticatable
	memo       *cache.Memo
	creds      clientcredentials.Config
	ttl        time.Duration
	httpClient *http.Client
}

// New wraps inner. Tokens are memoized in store under TokenKey.
func New(inner Authenticatable, store cache.Store, cfg Config) *Client {
	if cfg.TokenPath == "" {
		cfg.TokenPath = DefaultTokenPath
	}
	if cfg.Scope == "" {
		cfg.Scope = DefaultScope
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	return &Client{
		inner: inner,
		memo:  cache.NewMemo(store),
		creds: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     transport.JoinURL(cfg.BaseURL, cfg.TokenPath),
			Scopes:       []string{cfg.Scope},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		ttl:        cfg.TokenTTL,
		httpClient: cfg.HTTPClient,
	}
}

// NewFromConfig wraps inner using the oauth section; the REST base URL is the
// fallback token server.
func NewFromConfig(inner Authenticatable, store cache.Store, rest *config.RESTConfig, cfg *config.OAuthConfig) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = rest.BaseURL
	}
	return New(inner, store, Config{
		BaseURL:      base,
		TokenPath:    cfg.TokenPath,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret.Value(),
		Scope:        cfg.Scope,
		TokenTTL:     cfg.TokenTTL,
	})
}

func (c *Client) Unwrap() transport.Client {
	return c.inner
}

func (c *Client) Get(ctx context.Context, path string, params transport.Params) (*transport.Response, error) {
	var resp *transport.Response
	err := c.withAuth(ctx, func() error {
		var err error
		resp, err = c.inner.Get(ctx, path, params)
		return err
	})
	return resp, err
}

func (c *Client) Post(ctx context.Context, path string, body transport.Record) (transport.Record, error) {
	var rec transport.Record
	err := c.withAuth(ctx, func() error {
		var err error
		rec, err = c.inner.Post(ctx, path, body)
		return err
	})
	return rec, err
}

func (c *Client) Put(ctx context.Context, path string, body transport.Record) (transport.Record, error) {
	var rec transport.Record
	err := c.withAuth(ctx, func() error {
		var err error
		rec, err = c.inner.Put(ctx, path, body)
		return err
	})
	return rec, err
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.withAuth(ctx, func() error {
		return c.inner.Delete(ctx, path)
	})
}

// withAuth runs call with a valid token. A 401 drops the shared token and
// retries once with a fresh one.
func (c *Client) withAuth(ctx context.Context, call func() error) error {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return err
	}
	err := call()
	if transport.StatusOf(err) != http.StatusUnauthorized {
		return err
	}
	logger.FromContext(ctx).Debug("Access token rejected, refreshing")
	if ferr := c.memo.Forget(ctx, TokenKey); ferr != nil {
		logger.FromContext(ctx).Warn("Failed to drop cached access token", "error", ferr)
	}
	if err := c.ensureAuthenticated(ctx); err != nil {
		return err
	}
	return call()
}

func (c *Client) ensureAuthenticated(ctx context.Context) error {
	token, hit, err := c.memo.Remember(ctx, TokenKey, c.ttl, c.fetchToken)
	if err != nil {
		return err
	}
	if !hit {
		logger.FromContext(ctx).Debug("Fetched OAuth access token", "token_url", c.creds.TokenURL)
	}
	c.inner.SetAuthToken(string(token))
	return nil
}

// fetchToken performs the client-credentials exchange.
func (c *Client) fetchToken(ctx context.Context) ([]byte, error) {
	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	tok, err := c.creds.Token(ctx)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return nil, transport.NewAuthError("token exchange failed with status "+re.Response.Status, err)
		}
		return nil, transport.NewAuthError("token exchange failed", err)
	}
	if tok.AccessToken == "" {
		return nil, transport.NewAuthError("missing access_token", nil)
	}
	return []byte(tok.AccessToken), nil
}
