package finance

import (
	"context"
	"encoding/json"
	"net/url"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Verdenroz/finance-query-sub000/internal/auth"
	"github.com/Verdenroz/finance-query-sub000/pkg/yahoo"
)

// stubFetcher answers requests from handle and counts them by route.
type stubFetcher struct {
	mu     sync.Mutex
	calls  map[string]int
	reqs   []yahoo.Request
	handle func(req yahoo.Request) ([]byte, error)
}

func newStubFetcher(handle func(req yahoo.Request) ([]byte, error)) *stubFetcher {
	return &stubFetcher{calls: map[string]int{}, handle: handle}
}

func (f *stubFetcher) Fetch(_ context.Context, req yahoo.Request) ([]byte, error) {
	f.mu.Lock()
	f.calls[req.Route]++
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return f.handle(req)
}

func (f *stubFetcher) count(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[route]
}

func (f *stubFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *stubFetcher) last() yahoo.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

// symbolOf extracts the path symbol of a per-symbol route.
func symbolOf(req yahoo.Request) string {
	s, _ := url.PathUnescape(path.Base(req.URL))
	return s
}

type stubAuth struct {
	mu     sync.Mutex
	forced int
	err    error
	crumb  string
}

func (a *stubAuth) GetOrRefresh(context.Context) (auth.Credential, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return auth.Credential{}, a.err
	}
	if a.crumb == "" {
		a.crumb = "crumb-1"
	}
	return auth.Credential{Cookie: "A3=session", Crumb: a.crumb, IssuedAt: time.Unix(1, 0)}, nil
}

func (a *stubAuth) ForceRefresh(context.Context, auth.Credential) (auth.Credential, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.forced++
	a.crumb = "crumb-fresh"
	return auth.Credential{Cookie: "A3=session", Crumb: a.crumb, IssuedAt: time.Unix(2, 0)}, nil
}

func testOptions(f yahoo.Fetcher, a Authenticator, extra ...Option) []Option {
	return append([]Option{
		WithFetcher(f),
		WithAuth(a),
		WithEndpoints(yahoo.SingleHost("http://stub.local")),
	}, extra...)
}

func newTestTicker(t *testing.T, symbol string, f yahoo.Fetcher, extra ...Option) (*Ticker, *stubAuth) {
	t.Helper()
	a := &stubAuth{}
	tk, err := NewTicker(symbol, testOptions(f, a, extra...)...)
	if err != nil {
		t.Fatalf("NewTicker: %v", err)
	}
	return tk, a
}

func mustJSON(t testing.TB, v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

const day = int64(86400)

// chartBody renders a v8 chart response with one bar per close, a day apart.
func chartBody(t testing.TB, symbol string, start int64, closes []float64, events map[string]any) []byte {
	ts := make([]int64, len(closes))
	open := make([]float64, len(closes))
	high := make([]float64, len(closes))
	low := make([]float64, len(closes))
	vol := make([]float64, len(closes))
	for i, c := range closes {
		ts[i] = start + int64(i)*day
		open[i] = c - 0.5
		high[i] = c + 1
		low[i] = c - 1
		vol[i] = 1000 + float64(i)
	}
	result := map[string]any{
		"meta":      map[string]any{"symbol": symbol, "currency": "USD", "exchangeName": "NMS"},
		"timestamp": ts,
		"indicators": map[string]any{
			"quote":    []any{map[string]any{"open": open, "high": high, "low": low, "close": closes, "volume": vol}},
			"adjclose": []any{map[string]any{"adjclose": closes}},
		},
	}
	if events != nil {
		result["events"] = events
	}
	return mustJSON(t, map[string]any{"chart": map[string]any{"result": []any{result}, "error": nil}})
}

func batchQuoteBody(t testing.TB, symbols ...string) []byte {
	var result []any
	for i, s := range symbols {
		result = append(result, map[string]any{
			"symbol":             s,
			"shortName":          s + " Inc.",
			"regularMarketPrice": 100 + float64(i),
			"marketCap":          1e9,
		})
	}
	return mustJSON(t, map[string]any{"quoteResponse": map[string]any{"result": result, "error": nil}})
}

func requestedSymbols(req yahoo.Request) []string {
	return strings.Split(req.Query.Get("symbols"), ",")
}

func upstream(kind yahoo.Kind, route string) error {
	return &yahoo.Error{Kind: kind, Route: route}
}

func ramp(n int, from, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = from + float64(i)*step
	}
	return out
}
