package yahoo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	outcomes []string
}

func (o *countingObserver) ObserveRequest(route, outcome string, _ time.Duration) {
	o.outcomes = append(o.outcomes, route+":"+outcome)
}

func TestTransport_FetchOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/BRK-B", r.URL.Path)
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		assert.Equal(t, "abc", r.URL.Query().Get("crumb"))
		assert.Equal(t, "A3=x", r.Header.Get("Cookie"))
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	obs := &countingObserver{}
	tr, err := NewTransport(Config{Observer: obs})
	require.NoError(t, err)

	u, err := SingleHost(srv.URL).URL(RouteChart, "BRK-B")
	require.NoError(t, err)

	body, err := tr.Fetch(context.Background(), Request{
		Route:  RouteChart,
		URL:    u,
		Query:  url.Values{"interval": {"1d"}, "crumb": {"abc"}},
		Header: http.Header{"Cookie": {"A3=x"}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, []string{"chart:ok"}, obs.outcomes)
}

func TestTransport_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusBadRequest, ErrBadRequest},
		{http.StatusBadGateway, ErrServer},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(`{"finance":{"error":{"code":"x"}}}`))
			}))
			defer srv.Close()

			tr, err := NewTransport(Config{})
			require.NoError(t, err)
			_, err = tr.Fetch(context.Background(), Request{Route: RouteQuote, URL: srv.URL})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)

			var ye *Error
			require.True(t, errors.As(err, &ye))
			assert.Equal(t, tc.status, ye.Status)
		})
	}
}

func TestTransport_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	tr, err := NewTransport(Config{Timeout: 20 * time.Millisecond})
	require.NoError(t, err)
	_, err = tr.Fetch(context.Background(), Request{Route: RouteQuote, URL: srv.URL})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetwork))
	assert.True(t, IsTimeout(err))
}

func TestNewHTTPClient_InvalidProxy(t *testing.T) {
	_, err := NewHTTPClient(Config{ProxyURL: "://bad"})
	assert.Error(t, err)
}

func TestNewHTTPClient_DisableSSL(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	req := Request{Route: RouteQuote, URL: srv.URL}

	strict, err := NewTransport(Config{})
	require.NoError(t, err)
	_, err = strict.Fetch(context.Background(), req)
	assert.ErrorIs(t, err, ErrNetwork, "self-signed certificate is rejected by default")

	lax, err := NewTransport(Config{DisableSSL: true})
	require.NoError(t, err)
	_, err = lax.Fetch(context.Background(), req)
	assert.NoError(t, err)
}

func TestEndpoints_URL(t *testing.T) {
	var e Endpoints
	u, err := e.URL(RouteQuoteSummary, "^GSPC")
	require.NoError(t, err)
	assert.Equal(t, "https://query2.finance.yahoo.com/v10/finance/quoteSummary/%5EGSPC", u)

	u, err = e.URL(RouteQuote, "")
	require.NoError(t, err)
	assert.Equal(t, "https://query1.finance.yahoo.com/v7/finance/quote", u)

	_, err = e.URL(RouteChart, "")
	assert.Error(t, err)
	_, err = e.URL("nope", "AAPL")
	assert.Error(t, err)
}

func TestUpstreamError(t *testing.T) {
	err := UpstreamError(RouteChart, "Not Found", "No data found, symbol may be delisted")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrServer))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Contains(t, err.Error(), "delisted")
}
