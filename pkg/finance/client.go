// Package finance is the market-data facade over the Yahoo Finance
// endpoints: a shared session handle (Client), a single-symbol Ticker that
// lazily fetches and caches every data shape, and a Tickers batch facade that
// groups quote requests and fans out everything else with bounded
// concurrency.
package finance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/Verdenroz/finance-query-sub000/internal/auth"
	"github.com/Verdenroz/finance-query-sub000/internal/logger"
	"github.com/Verdenroz/finance-query-sub000/internal/metrics"
	"github.com/Verdenroz/finance-query-sub000/pkg/yahoo"
)

// Authenticator issues the cookie + crumb credential.
type Authenticator interface {
	GetOrRefresh(ctx context.Context) (auth.Credential, error)
	ForceRefresh(ctx context.Context, stale auth.Credential) (auth.Credential, error)
}

// Client is the shared session handle: transport, credential manager,
// endpoints and locale. It is safe for concurrent use and is meant to be
// shared between facades with WithClient.
type Client struct {
	fetcher   yahoo.Fetcher
	auth      Authenticator
	endpoints yahoo.Endpoints
	region    string
	lang      string
	log       *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewClient builds a session handle. No network traffic happens until the
// first request.
func NewClient(opts ...Option) (*Client, error) {
	return newClient(newSettings(opts))
}

func newClient(s *settings) (*Client, error) {
	if s.client != nil {
		return s.client, nil
	}
	endpoints := s.endpoints.WithDefaults()

	httpClient := s.httpClient
	if httpClient == nil && (s.fetcher == nil || s.auth == nil) {
		var err error
		httpClient, err = yahoo.NewHTTPClient(yahoo.Config{Timeout: s.timeout, ProxyURL: s.proxyURL})
		if err != nil {
			return nil, err
		}
	}

	fetcher := s.fetcher
	if fetcher == nil {
		t, err := yahoo.NewTransport(yahoo.Config{
			HTTPClient: httpClient,
			UserAgent:  s.userAgent,
			Logger:     s.logger.Named("transport"),
			Observer:   s.metrics,
		})
		if err != nil {
			return nil, err
		}
		fetcher = t
	}

	authn := s.auth
	if authn == nil {
		authn = auth.NewManager(auth.Config{
			Endpoints:  endpoints,
			HTTPClient: httpClient,
			UserAgent:  s.userAgent,
			Logger:     s.logger.Named("auth"),
			Observer:   s.metrics,
		})
	}

	return &Client{
		fetcher:   fetcher,
		auth:      authn,
		endpoints: endpoints,
		region:    s.region,
		lang:      s.lang,
		log:       s.logger,
		metrics:   s.metrics,
		now:       s.now,
	}, nil
}

// Logger returns the client's logger.
func (c *Client) Logger() *zap.Logger { return c.log }

// get performs an authenticated GET. A 401/403 triggers exactly one forced
// credential refresh and one retry; the retry's outcome is returned as-is.
func (c *Client) get(ctx context.Context, route, symbol string, q url.Values) ([]byte, error) {
	ctx = logger.EnsureTraceID(ctx)
	u, err := c.endpoints.URL(route, symbol)
	if err != nil {
		return nil, err
	}
	cred, err := c.auth.GetOrRefresh(ctx)
	if err != nil {
		return nil, err
	}
	body, err := c.fetcher.Fetch(ctx, c.request(route, u, q, cred))
	if err == nil || !errors.Is(err, yahoo.ErrUnauthorized) {
		return body, err
	}

	c.log.Info("credential rejected, refreshing",
		logger.Fields(ctx, zap.String("route", route), zap.String("symbol", symbol))...)
	cred, err = c.auth.ForceRefresh(ctx, cred)
	if err != nil {
		return nil, err
	}
	return c.fetcher.Fetch(ctx, c.request(route, u, q, cred))
}

func (c *Client) request(route, u string, q url.Values, cred auth.Credential) yahoo.Request {
	query := url.Values{}
	for k, vs := range q {
		query[k] = append([]string(nil), vs...)
	}
	if c.region != "" {
		query.Set("region", c.region)
	}
	if c.lang != "" {
		query.Set("lang", c.lang)
	}
	query.Set("crumb", cred.Crumb)
	h := http.Header{}
	h.Set("Cookie", cred.Cookie)
	return yahoo.Request{Route: route, URL: u, Query: query, Header: h}
}

// getJSON is get followed by decoding into out.
func (c *Client) getJSON(ctx context.Context, route, symbol string, q url.Values, out any) error {
	body, err := c.get(ctx, route, symbol, q)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return yahoo.DecodeError(route, err)
	}
	return nil
}

// upstreamError is the {"code","description"} object carried next to a
// null result by most endpoints.
type upstreamError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *upstreamError) err(route string) error {
	if e == nil || (e.Code == "" && e.Description == "") {
		return nil
	}
	return yahoo.UpstreamError(route, e.Code, e.Description)
}
