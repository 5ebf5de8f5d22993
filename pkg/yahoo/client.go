// Package yahoo is the HTTP transport for the Yahoo Finance endpoints.
// It owns the route table, the proxy/timeout-aware http.Client and the
// mapping of HTTP failures onto typed errors. It knows nothing about
// credentials; callers attach the cookie header and crumb parameter.
package yahoo

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultUserAgent is a desktop browser UA; the endpoints reject obvious bots.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

const maxBodyBytes = 32 << 20

// Request describes one GET against a named route.
type Request struct {
	Route  string // key into the route table, used for metrics and errors
	URL    string
	Query  url.Values
	Header http.Header
}

// Fetcher performs a request and returns the raw response body.
// Implementations must return *Error for every failure.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

// Observer receives one call per completed request.
type Observer interface {
	ObserveRequest(route, outcome string, d time.Duration)
}

// Config configures the default HTTP transport.
type Config struct {
	Timeout    time.Duration // default: 10s
	ProxyURL   string        // optional HTTP(S) proxy URL
	UserAgent  string        // default: DefaultUserAgent
	DisableSSL bool          // if true, InsecureSkipVerify
	HTTPClient *http.Client  // overrides Timeout/ProxyURL/DisableSSL when set
	Logger     *zap.Logger
	Observer   Observer
}

// Transport is the default Fetcher backed by net/http.
type Transport struct {
	httpClient *http.Client
	userAgent  string
	log        *zap.Logger
	observer   Observer
}

// NewHTTPClient builds an http.Client honouring timeout, proxy and TLS settings.
// It is shared with the auth manager so both legs go through the same proxy.
func NewHTTPClient(cfg Config) (*http.Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: cfg.Timeout,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.DisableSSL,
		},
	}
	if cfg.ProxyURL != "" {
		purl, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("yahoo: invalid proxy url %q: %w", cfg.ProxyURL, err)
		}
		tr.Proxy = http.ProxyURL(purl)
	}
	return &http.Client{Transport: tr, Timeout: cfg.Timeout}, nil
}

// NewTransport initializes the default transport.
func NewTransport(cfg Config) (*Transport, error) {
	client := cfg.HTTPClient
	if client == nil {
		var err error
		client, err = NewHTTPClient(cfg)
		if err != nil {
			return nil, err
		}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Transport{
		httpClient: client,
		userAgent:  cfg.UserAgent,
		log:        cfg.Logger,
		observer:   cfg.Observer,
	}, nil
}

// Fetch implements Fetcher.
func (t *Transport) Fetch(ctx context.Context, r Request) ([]byte, error) {
	reqURL := r.URL
	if len(r.Query) > 0 {
		if strings.Contains(reqURL, "?") {
			reqURL += "&" + r.Query.Encode()
		} else {
			reqURL += "?" + r.Query.Encode()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &Error{Kind: KindBadRequest, Route: r.Route, Err: err}
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.observe(r.Route, KindNetwork.String(), start)
		t.log.Debug("request failed", zap.String("route", r.Route), zap.Error(err))
		return nil, &Error{Kind: KindNetwork, Route: r.Route, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		t.observe(r.Route, KindNetwork.String(), start)
		return nil, &Error{Kind: KindNetwork, Route: r.Route, Status: resp.StatusCode, Err: err}
	}

	if kind := StatusKind(resp.StatusCode); kind != 0 {
		t.observe(r.Route, kind.String(), start)
		t.log.Debug("request rejected",
			zap.String("route", r.Route),
			zap.Int("status", resp.StatusCode))
		return nil, &Error{Kind: kind, Route: r.Route, Status: resp.StatusCode, Detail: snippet(raw)}
	}

	t.observe(r.Route, "ok", start)
	return raw, nil
}

func (t *Transport) observe(route, outcome string, start time.Time) {
	if t.observer != nil {
		t.observer.ObserveRequest(route, outcome, time.Since(start))
	}
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// IsTimeout reports whether err was caused by a deadline or net timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
