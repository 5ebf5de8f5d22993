package finance

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Verdenroz/finance-query-sub000/internal/auth"
	"github.com/Verdenroz/finance-query-sub000/pkg/yahoo"
)

func newTestTickers(t *testing.T, symbols []string, f yahoo.Fetcher, a *stubAuth, extra ...Option) *Tickers {
	t.Helper()
	if a == nil {
		a = &stubAuth{}
	}
	tk, err := NewTickers(symbols, testOptions(f, a, extra...)...)
	require.NoError(t, err)
	return tk
}

// knownQuotes answers batch quote requests for every requested symbol
// except the ones listed as unknown.
func knownQuotes(t *testing.T, unknown ...string) *stubFetcher {
	skip := map[string]bool{}
	for _, s := range unknown {
		skip[s] = true
	}
	return newStubFetcher(func(req yahoo.Request) ([]byte, error) {
		require.Equal(t, yahoo.RouteQuote, req.Route)
		var known []string
		for _, s := range requestedSymbols(req) {
			if !skip[s] {
				known = append(known, s)
			}
		}
		return batchQuoteBody(t, known...), nil
	})
}

func TestTickers_SymbolSet(t *testing.T) {
	tk := newTestTickers(t, []string{"aapl", "MSFT", "AAPL"}, newStubFetcher(nil), nil)
	assert.Equal(t, []string{"AAPL", "MSFT"}, tk.Symbols())

	require.NoError(t, tk.AddSymbols("goog", "msft"))
	assert.Equal(t, []string{"AAPL", "MSFT", "GOOG"}, tk.Symbols())

	assert.True(t, IsValidation(tk.AddSymbols("TSLA", "")))
	assert.Len(t, tk.Symbols(), 3)

	tk.RemoveSymbols(context.Background(), "msft", "NOPE")
	assert.Equal(t, []string{"AAPL", "GOOG"}, tk.Symbols())
}

func TestTickers_QuotesPartition(t *testing.T) {
	f := knownQuotes(t, "BOGUS")
	tk := newTestTickers(t, []string{"AAPL", "MSFT", "BOGUS"}, f, nil)

	resp, err := tk.Quotes(context.Background())
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
	assert.Equal(t, "AAPL Inc.", resp.Results["AAPL"].ShortName.String)
	require.Contains(t, resp.Errors, "BOGUS")
	assert.ErrorIs(t, resp.Err("BOGUS"), ErrNoData)
	assert.Equal(t, 1, f.count(yahoo.RouteQuote))
	assert.ElementsMatch(t, []string{"AAPL", "MSFT", "BOGUS"}, requestedSymbols(f.last()))
}

func TestTickers_QuotesTransportFailureMarksEverySymbol(t *testing.T) {
	f := newStubFetcher(func(req yahoo.Request) ([]byte, error) {
		return nil, upstream(yahoo.KindServer, req.Route)
	})
	tk := newTestTickers(t, []string{"AAPL", "MSFT"}, f, nil)

	resp, err := tk.Quotes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Len(t, resp.Errors, 2)
	assert.ErrorIs(t, resp.Err("MSFT"), yahoo.ErrServer)
}

func TestTickers_QuotesAuthUnavailableIsFatal(t *testing.T) {
	f := knownQuotes(t)
	tk := newTestTickers(t, []string{"AAPL"}, f, &stubAuth{err: fmt.Errorf("%w: both paths failed", auth.ErrUnavailable)})

	_, err := tk.Quotes(context.Background())
	assert.ErrorIs(t, err, auth.ErrUnavailable)
	assert.Zero(t, f.total())

	_, err = tk.Charts(context.Background(), Interval1d, Range1mo)
	assert.ErrorIs(t, err, auth.ErrUnavailable)
}

func TestTickers_CacheIsOptIn(t *testing.T) {
	ctx := context.Background()

	f := knownQuotes(t)
	plain := newTestTickers(t, []string{"AAPL", "MSFT"}, f, nil)
	_, err := plain.Quotes(ctx)
	require.NoError(t, err)
	_, err = plain.Quotes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.count(yahoo.RouteQuote))

	f = knownQuotes(t)
	cached := newTestTickers(t, []string{"AAPL", "MSFT"}, f, nil, WithCacheTTL(time.Minute))
	_, err = cached.Quotes(ctx)
	require.NoError(t, err)
	q, err := cached.Quote(ctx, "msft")
	require.NoError(t, err)
	assert.Equal(t, "MSFT", q.Symbol)
	assert.Equal(t, 1, f.count(yahoo.RouteQuote))

	// only the new symbol goes out
	require.NoError(t, cached.AddSymbols("GOOG"))
	resp, err := cached.Quotes(ctx)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 3)
	assert.Equal(t, []string{"GOOG"}, requestedSymbols(f.last()))

	_, err = cached.Quote(ctx, "TSLA")
	assert.True(t, IsValidation(err))
}

func TestTickers_QuoteMissRunsFullBatch(t *testing.T) {
	f := knownQuotes(t, "BOGUS")
	tk := newTestTickers(t, []string{"AAPL", "BOGUS"}, f, nil)

	q, err := tk.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.ElementsMatch(t, []string{"AAPL", "BOGUS"}, requestedSymbols(f.last()))

	_, err = tk.Quote(context.Background(), "BOGUS")
	assert.ErrorIs(t, err, ErrNoData)
}

func TestTickers_RemoveSymbolsPurgesCache(t *testing.T) {
	ctx := context.Background()
	f := chartFetcher(t, ramp(10, 50, 1))
	tk := newTestTickers(t, []string{"AAPL", "MSFT"}, f, nil, WithCacheTTL(time.Hour))

	_, err := tk.Charts(ctx, Interval1d, Range1mo)
	require.NoError(t, err)
	_, err = tk.Charts(ctx, Interval1d, Range1mo)
	require.NoError(t, err)
	assert.Equal(t, 2, f.count(yahoo.RouteChart))

	tk.RemoveSymbols(ctx, "MSFT")
	require.NoError(t, tk.AddSymbols("MSFT"))
	resp, err := tk.Charts(ctx, Interval1d, Range1mo)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
	assert.Equal(t, 3, f.count(yahoo.RouteChart))
}

func TestTickers_RemoveSymbolsPurgesQuoteCache(t *testing.T) {
	ctx := context.Background()
	f := knownQuotes(t)
	tk := newTestTickers(t, []string{"AAPL", "MSFT"}, f, nil, WithCacheTTL(time.Hour))

	_, err := tk.Quotes(ctx)
	require.NoError(t, err)
	_, err = tk.Quotes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.count(yahoo.RouteQuote))

	tk.RemoveSymbols(ctx, "MSFT")
	require.NoError(t, tk.AddSymbols("MSFT"))
	resp, err := tk.Quotes(ctx)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
	assert.Equal(t, 2, f.count(yahoo.RouteQuote))
	assert.Equal(t, []string{"MSFT"}, requestedSymbols(f.last()))
}

func TestTickers_ChartRequiresManagedSymbol(t *testing.T) {
	ctx := context.Background()
	f := chartFetcher(t, ramp(10, 50, 1))
	tk := newTestTickers(t, []string{"AAPL"}, f, nil, WithCacheTTL(time.Hour))

	_, err := tk.Chart(ctx, "TSLA", Interval1d, Range1mo)
	assert.True(t, IsValidation(err))
	assert.Zero(t, f.total())

	ch, err := tk.Chart(ctx, "aapl", Interval1d, Range1mo)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", ch.Symbol)
}

func TestTickers_ChartsIsolateFailures(t *testing.T) {
	f := newStubFetcher(func(req yahoo.Request) ([]byte, error) {
		switch symbolOf(req) {
		case "GONE":
			return nil, upstream(yahoo.KindNotFound, req.Route)
		case "BOOM":
			panic("decoder exploded")
		}
		return chartBody(t, symbolOf(req), 1_700_000_000, ramp(5, 10, 1), nil), nil
	})
	tk := newTestTickers(t, []string{"AAPL", "GONE", "BOOM", "MSFT"}, f, nil)

	resp, err := tk.Charts(context.Background(), Interval1d, Range5d)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
	assert.ErrorIs(t, resp.Err("GONE"), yahoo.ErrNotFound)
	assert.Contains(t, resp.Errors["BOOM"], "decoder exploded")
	assert.Nil(t, resp.Err("AAPL"))
}

func TestTickers_ValidationBeforeFanOut(t *testing.T) {
	f := chartFetcher(t, ramp(5, 10, 1))
	tk := newTestTickers(t, []string{"AAPL", "MSFT"}, f, nil)
	ctx := context.Background()

	_, err := tk.Charts(ctx, Interval5m, RangeMax)
	assert.True(t, IsValidation(err))
	_, err = tk.Indicators(ctx, Interval15m, Range1y)
	assert.True(t, IsValidation(err))
	_, err = tk.Spark(ctx, Interval1m, Range1mo)
	assert.True(t, IsValidation(err))
	_, err = tk.Recommendations(ctx, 0)
	assert.True(t, IsValidation(err))
	_, err = tk.Financials(ctx, Statement("equity"), FrequencyAnnual)
	assert.True(t, IsValidation(err))
	assert.Zero(t, f.total())
}

func TestTickers_FanOutIsBounded(t *testing.T) {
	var inFlight, peak int64
	f := newStubFetcher(func(req yahoo.Request) ([]byte, error) {
		n := atomic.AddInt64(&inFlight, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return []byte(`{"news":[{"uuid":"1","title":"t","providerPublishTime":1}]}`), nil
	})
	var symbols []string
	for i := 0; i < 12; i++ {
		symbols = append(symbols, fmt.Sprintf("S%d", i))
	}
	tk := newTestTickers(t, symbols, f, nil, WithMaxConcurrency(3))

	resp, err := tk.News(context.Background())
	require.NoError(t, err)
	assert.Len(t, resp.Results, 12)
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(3))
	assert.Equal(t, 12, f.count(yahoo.RouteSearch))
}

func TestTickers_SparkChunks(t *testing.T) {
	var mu sync.Mutex
	var chunkSizes []int
	f := newStubFetcher(func(req yahoo.Request) ([]byte, error) {
		syms := requestedSymbols(req)
		mu.Lock()
		chunkSizes = append(chunkSizes, len(syms))
		mu.Unlock()
		if syms[0] == "S40" {
			return nil, upstream(yahoo.KindRateLimited, req.Route)
		}
		var result []any
		for _, s := range syms {
			result = append(result, map[string]any{
				"symbol": s,
				"response": []any{map[string]any{
					"meta":       map[string]any{"chartPreviousClose": 9.5},
					"timestamp":  []int64{1, 2},
					"indicators": map[string]any{"quote": []any{map[string]any{"close": []any{10.0, nil}}}},
				}},
			})
		}
		return mustJSON(t, map[string]any{"spark": map[string]any{"result": result, "error": nil}}), nil
	})
	var symbols []string
	for i := 0; i < 45; i++ {
		symbols = append(symbols, fmt.Sprintf("S%d", i))
	}
	tk := newTestTickers(t, symbols, f, nil)

	resp, err := tk.Spark(context.Background(), Interval1d, Range5d)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{20, 20, 5}, chunkSizes)
	assert.Len(t, resp.Results, 40)
	assert.Len(t, resp.Errors, 5)
	assert.ErrorIs(t, resp.Err("S44"), yahoo.ErrRateLimited)

	sp := resp.Results["S3"]
	require.NotNil(t, sp)
	assert.Equal(t, 9.5, sp.PreviousClose.Float64)
	require.Len(t, sp.Closes, 2)
	assert.True(t, sp.Closes[0].Valid)
	assert.False(t, sp.Closes[1].Valid)
}

func TestTickers_SharedClient(t *testing.T) {
	f := knownQuotes(t)
	a := &stubAuth{}
	c, err := NewClient(testOptions(f, a)...)
	require.NoError(t, err)

	one, err := NewTickers([]string{"AAPL"}, WithClient(c))
	require.NoError(t, err)
	two, err := NewTickers([]string{"MSFT"}, WithClient(c))
	require.NoError(t, err)
	assert.Same(t, one.Client(), two.Client())

	_, err = one.Quotes(context.Background())
	require.NoError(t, err)
	_, err = two.Quotes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, f.count(yahoo.RouteQuote))
}
