package finance

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Verdenroz/finance-query-sub000/internal/cache"
	"github.com/Verdenroz/finance-query-sub000/internal/metrics"
	"github.com/Verdenroz/finance-query-sub000/pkg/yahoo"
)

// DefaultMaxConcurrency bounds batch fan-out when no option is given.
const DefaultMaxConcurrency = 10

type settings struct {
	timeout        time.Duration
	proxyURL       string
	userAgent      string
	region         string
	lang           string
	httpClient     *http.Client
	fetcher        yahoo.Fetcher
	auth           Authenticator
	endpoints      yahoo.Endpoints
	logger         *zap.Logger
	metrics        *metrics.Metrics
	client         *Client
	maxConcurrency int
	cacheTTL       time.Duration
	cacheBackend   cache.Backend
	now            func() time.Time
}

func newSettings(opts []Option) *settings {
	s := &settings{
		timeout:        10 * time.Second,
		region:         "US",
		lang:           "en-US",
		maxConcurrency: DefaultMaxConcurrency,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.maxConcurrency <= 0 {
		s.maxConcurrency = DefaultMaxConcurrency
	}
	return s
}

// Option configures a Client, Ticker or Tickers.
type Option func(*settings)

// WithTimeout sets the per-request HTTP timeout. Default 10s.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithProxy routes every request, including credential issuance, through
// an HTTP(S) proxy.
func WithProxy(proxyURL string) Option {
	return func(s *settings) { s.proxyURL = proxyURL }
}

// WithUserAgent overrides the browser user agent.
func WithUserAgent(ua string) Option {
	return func(s *settings) { s.userAgent = ua }
}

// WithRegion sets the region query parameter. Default "US".
func WithRegion(region string) Option {
	return func(s *settings) { s.region = region }
}

// WithLang sets the lang query parameter. Default "en-US".
func WithLang(lang string) Option {
	return func(s *settings) { s.lang = lang }
}

// WithHTTPClient supplies the http.Client used by the default transport and
// the credential manager.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.httpClient = c }
}

// WithFetcher replaces the HTTP transport.
func WithFetcher(f yahoo.Fetcher) Option {
	return func(s *settings) { s.fetcher = f }
}

// WithAuth replaces the credential manager.
func WithAuth(a Authenticator) Option {
	return func(s *settings) { s.auth = a }
}

// WithEndpoints overrides the upstream base URLs.
func WithEndpoints(e yahoo.Endpoints) Option {
	return func(s *settings) { s.endpoints = e }
}

// WithLogger sets the zap logger. Default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithMetrics records upstream, cache, auth and batch metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithClient shares an existing session handle, so several facades use one
// credential and one connection pool. Transport options are then ignored.
func WithClient(c *Client) Option {
	return func(s *settings) { s.client = c }
}

// WithMaxConcurrency bounds in-flight per-symbol requests in batch
// operations. Default 10.
func WithMaxConcurrency(n int) Option {
	return func(s *settings) { s.maxConcurrency = n }
}

// WithCacheTTL enables the batch cache with the given entry lifetime.
// Zero (the default) disables batch caching.
func WithCacheTTL(d time.Duration) Option {
	return func(s *settings) { s.cacheTTL = d }
}

// WithCacheBackend adds a shared second cache tier, e.g. Redis. Only used
// when the cache is enabled.
func WithCacheBackend(b cache.Backend) Option {
	return func(s *settings) { s.cacheBackend = b }
}

// WithClock overrides time.Now, used for range filtering of corporate
// actions.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}
