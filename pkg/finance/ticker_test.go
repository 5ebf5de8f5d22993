package finance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Verdenroz/finance-query-sub000/pkg/backtest"
	"github.com/Verdenroz/finance-query-sub000/pkg/risk"
	"github.com/Verdenroz/finance-query-sub000/pkg/yahoo"
)

func chartFetcher(t *testing.T, closes []float64) *stubFetcher {
	return newStubFetcher(func(req yahoo.Request) ([]byte, error) {
		require.Equal(t, yahoo.RouteChart, req.Route)
		return chartBody(t, symbolOf(req), 1_700_000_000, closes, nil), nil
	})
}

func TestNewTicker_RejectsMalformedSymbol(t *testing.T) {
	for _, s := range []string{"", "   ", "AAPL,MSFT"} {
		_, err := NewTicker(s, testOptions(newStubFetcher(nil), &stubAuth{})...)
		assert.True(t, IsValidation(err), "%q", s)
	}
	tk, _ := newTestTicker(t, " aapl ", newStubFetcher(nil))
	assert.Equal(t, "AAPL", tk.Symbol())
}

func TestTicker_ChartCachedPerPair(t *testing.T) {
	ctx := context.Background()
	f := chartFetcher(t, ramp(30, 100, 1))
	tk, _ := newTestTicker(t, "AAPL", f)

	first, err := tk.Chart(ctx, Interval1d, Range1mo)
	require.NoError(t, err)
	require.Len(t, first.Candles, 30)
	assert.Equal(t, "USD", first.Currency)

	again, err := tk.Chart(ctx, Interval1d, Range1mo)
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, 1, f.count(yahoo.RouteChart))
	assert.Equal(t, "1d", f.last().Query.Get("interval"))
	assert.Equal(t, "1mo", f.last().Query.Get("range"))

	_, err = tk.Chart(ctx, Interval1d, Range1y)
	require.NoError(t, err)
	assert.Equal(t, 2, f.count(yahoo.RouteChart))

	tk.Clear(ctx)
	_, err = tk.Chart(ctx, Interval1d, Range1mo)
	require.NoError(t, err)
	assert.Equal(t, 3, f.count(yahoo.RouteChart))
}

func TestTicker_ClearFencesInflightFetch(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	f := newStubFetcher(func(req yahoo.Request) ([]byte, error) {
		started <- struct{}{}
		<-release
		return chartBody(t, symbolOf(req), 1_700_000_000, ramp(5, 100, 1), nil), nil
	})
	tk, _ := newTestTicker(t, "AAPL", f)

	done := make(chan error, 1)
	go func() {
		_, err := tk.Chart(ctx, Interval1d, Range5d)
		done <- err
	}()
	<-started
	tk.Clear(ctx)
	close(release)
	require.NoError(t, <-done)

	// the pre-Clear result was not stored, so this goes to the network
	_, err := tk.Chart(ctx, Interval1d, Range5d)
	require.NoError(t, err)
	assert.Equal(t, 2, f.count(yahoo.RouteChart))
}

func TestTicker_ChartValidationMakesNoCalls(t *testing.T) {
	f := chartFetcher(t, ramp(5, 1, 1))
	tk, _ := newTestTicker(t, "AAPL", f)

	_, err := tk.Chart(context.Background(), Interval1m, Range1y)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "range", ve.Field)

	_, err = tk.Chart(context.Background(), Interval("2m"), Range1d)
	assert.True(t, IsValidation(err))

	_, err = tk.Financials(context.Background(), StatementBalance, FrequencyTrailing)
	assert.True(t, IsValidation(err))

	assert.Zero(t, f.total())
}

func TestTicker_RetriesOnceAfterUnauthorized(t *testing.T) {
	calls := 0
	f := newStubFetcher(func(req yahoo.Request) ([]byte, error) {
		calls++
		if calls == 1 {
			return nil, upstream(yahoo.KindUnauthorized, req.Route)
		}
		return chartBody(t, "AAPL", 1_700_000_000, ramp(3, 10, 1), nil), nil
	})
	tk, a := newTestTicker(t, "AAPL", f)

	ch, err := tk.Chart(context.Background(), Interval1d, Range5d)
	require.NoError(t, err)
	assert.Len(t, ch.Candles, 3)
	assert.Equal(t, 1, a.forced)
	assert.Equal(t, 2, f.count(yahoo.RouteChart))
	assert.Equal(t, "crumb-fresh", f.last().Query.Get("crumb"))
	assert.Equal(t, "A3=session", f.last().Header.Get("Cookie"))
}

func TestTicker_SecondUnauthorizedIsSurfaced(t *testing.T) {
	f := newStubFetcher(func(req yahoo.Request) ([]byte, error) {
		return nil, upstream(yahoo.KindUnauthorized, req.Route)
	})
	tk, a := newTestTicker(t, "AAPL", f)

	_, err := tk.Chart(context.Background(), Interval1d, Range5d)
	assert.ErrorIs(t, err, yahoo.ErrUnauthorized)
	assert.Equal(t, 1, a.forced)
	assert.Equal(t, 2, f.count(yahoo.RouteChart))
}

func TestTicker_FailuresAreNotCached(t *testing.T) {
	fail := true
	f := newStubFetcher(func(req yahoo.Request) ([]byte, error) {
		if fail {
			fail = false
			return nil, upstream(yahoo.KindServer, req.Route)
		}
		return chartBody(t, "AAPL", 1_700_000_000, ramp(3, 10, 1), nil), nil
	})
	tk, _ := newTestTicker(t, "AAPL", f)

	_, err := tk.Chart(context.Background(), Interval1d, Range5d)
	assert.ErrorIs(t, err, yahoo.ErrServer)
	_, err = tk.Chart(context.Background(), Interval1d, Range5d)
	assert.NoError(t, err)
	assert.Equal(t, 2, f.count(yahoo.RouteChart))
}

func TestTicker_QuoteMergesModulesByPrecedence(t *testing.T) {
	body := []byte(`{"quoteSummary":{"result":[{
		"price":{"symbol":"AAPL","shortName":"Apple Inc.","regularMarketPrice":{"raw":150,"fmt":"150.00"},"marketCap":{"raw":3000000000000}},
		"summaryDetail":{"previousClose":{"raw":148},"marketCap":{"raw":2000000000000},"beta":{}},
		"financialData":{"currentPrice":{"raw":149}},
		"assetProfile":{"sector":"Technology","fullTimeEmployees":160000}
	}],"error":null}}`)
	f := newStubFetcher(func(req yahoo.Request) ([]byte, error) {
		require.Equal(t, yahoo.RouteQuoteSummary, req.Route)
		return body, nil
	})
	tk, _ := newTestTicker(t, "aapl", f)
	ctx := context.Background()

	q, err := tk.Quote(ctx)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, 150.0, q.Price.Float64)
	assert.Equal(t, 3e12, q.MarketCap.Float64)
	assert.Equal(t, 148.0, q.PreviousClose.Float64)
	assert.False(t, q.Beta.Valid)
	assert.Equal(t, "Technology", q.Sector.String)
	assert.Equal(t, int64(160000), q.Employees.Int64)

	profile, err := tk.AssetProfile(ctx)
	require.NoError(t, err)
	sector, _ := profile.Text("sector")
	assert.Equal(t, "Technology", sector.String)

	_, err = tk.ESGScores(ctx)
	assert.ErrorIs(t, err, ErrNoData)

	assert.Equal(t, 1, f.count(yahoo.RouteQuoteSummary))
	assert.Contains(t, f.last().Query.Get("modules"), ModuleUpgradeDowngradeHistory)
}

func TestTicker_IndicatorsComposeWithChartCache(t *testing.T) {
	closes := ramp(90, 100, 0.5)
	f := chartFetcher(t, closes)
	tk, _ := newTestTicker(t, "MSFT", f)
	ctx := context.Background()

	a, err := tk.Indicators(ctx, Interval1d, Range6mo)
	require.NoError(t, err)
	require.Len(t, a.SMA[20], 90)

	var want float64
	for _, c := range closes[70:] {
		want += c
	}
	want /= 20
	assert.InDelta(t, want, a.SMA[20].Last().Float64, 1e-9)
	assert.False(t, a.SMA[100].Last().Valid)

	_, err = tk.Chart(ctx, Interval1d, Range6mo)
	require.NoError(t, err)
	_, err = tk.Patterns(ctx, Interval1d, Range6mo)
	require.NoError(t, err)
	assert.Equal(t, 1, f.count(yahoo.RouteChart))
}

func TestTicker_CorporateActionsFilteredByRange(t *testing.T) {
	now := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)
	d1 := time.Date(2020, time.January, 2, 0, 0, 0, 0, time.UTC).Unix()
	d2 := time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC).Unix()
	d3 := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC).Unix()
	events := map[string]any{
		"dividends": map[string]any{
			"k3": map[string]any{"amount": 0.25, "date": d3},
			"k1": map[string]any{"amount": 0.2, "date": d1},
			"k2": map[string]any{"amount": 0.24, "date": d2},
		},
		"splits": map[string]any{
			"s1": map[string]any{"date": d1, "numerator": 4, "denominator": 1, "splitRatio": "4:1"},
		},
	}
	f := newStubFetcher(func(req yahoo.Request) ([]byte, error) {
		assert.Equal(t, "max", req.Query.Get("range"))
		assert.Equal(t, "div,splits,capitalGains", req.Query.Get("events"))
		return chartBody(t, "AAPL", d1, ramp(3, 10, 1), events), nil
	})
	tk, _ := newTestTicker(t, "AAPL", f, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	all, err := tk.Dividends(ctx, RangeMax)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, d1, all[0].Date)
	assert.Equal(t, d3, all[2].Date)

	year, err := tk.Dividends(ctx, Range1y)
	require.NoError(t, err)
	assert.Len(t, year, 2)

	ytd, err := tk.Dividends(ctx, RangeYTD)
	require.NoError(t, err)
	require.Len(t, ytd, 1)
	assert.Equal(t, 0.25, ytd[0].Amount)

	splits, err := tk.Splits(ctx, Range5y)
	require.NoError(t, err)
	require.Len(t, splits, 1)
	assert.Equal(t, "4:1", splits[0].Ratio)

	gains, err := tk.CapitalGains(ctx, RangeMax)
	require.NoError(t, err)
	assert.Empty(t, gains)

	_, err = tk.Dividends(ctx, Range("7y"))
	assert.True(t, IsValidation(err))
	assert.Equal(t, 1, f.count(yahoo.RouteChart))
}

func TestTicker_RecommendationsSliced(t *testing.T) {
	body := []byte(`{"finance":{"result":[{"symbol":"AAPL","recommendedSymbols":[
		{"symbol":"MSFT","score":0.3},{"symbol":"GOOG","score":0.2},{"symbol":"AMZN","score":0.1}]}],"error":null}}`)
	f := newStubFetcher(func(yahoo.Request) ([]byte, error) { return body, nil })
	tk, _ := newTestTicker(t, "AAPL", f)
	ctx := context.Background()

	_, err := tk.Recommendations(ctx, 0)
	assert.True(t, IsValidation(err))
	assert.Zero(t, f.total())

	two, err := tk.Recommendations(ctx, 2)
	require.NoError(t, err)
	require.Len(t, two, 2)
	assert.Equal(t, "MSFT", two[0].Symbol)

	all, err := tk.Recommendations(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, 1, f.count(yahoo.RouteRecommendations))
}

func TestTicker_OptionsKeyedByExpiration(t *testing.T) {
	body := []byte(`{"optionChain":{"result":[{"underlyingSymbol":"AAPL","expirationDates":[1718928000,1719532800],"strikes":[100,110],
		"options":[{"expirationDate":1718928000,"calls":[{"contractSymbol":"AAPL240621C00100000","strike":100,"lastPrice":12.5}],"puts":[]}]}],"error":null}}`)
	f := newStubFetcher(func(yahoo.Request) ([]byte, error) { return body, nil })
	tk, _ := newTestTicker(t, "AAPL", f)
	ctx := context.Background()

	near, err := tk.Options(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1718928000), near.Expiration)
	require.Len(t, near.Calls, 1)
	assert.Empty(t, f.last().Query.Get("date"))

	_, err = tk.Options(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, f.count(yahoo.RouteOptions))

	exp := time.Unix(1719532800, 0)
	_, err = tk.Options(ctx, &exp)
	require.NoError(t, err)
	assert.Equal(t, "1719532800", f.last().Query.Get("date"))
	assert.Equal(t, 2, f.count(yahoo.RouteOptions))
}

func TestTicker_RiskAgainstBenchmark(t *testing.T) {
	bench := []float64{100, 102, 101, 104, 103, 107, 105, 108, 110, 109}
	asset := []float64{50}
	for _, r := range risk.Returns(bench) {
		asset = append(asset, asset[len(asset)-1]*(1+2*r))
	}
	f := newStubFetcher(func(req yahoo.Request) ([]byte, error) {
		if symbolOf(req) == "^GSPC" {
			return chartBody(t, "^GSPC", 1_700_000_000, bench, nil), nil
		}
		return chartBody(t, "TQQQ", 1_700_000_000, asset, nil), nil
	})
	tk, _ := newTestTicker(t, "TQQQ", f)

	r, err := tk.Risk(context.Background(), Interval1d, Range1mo, "^GSPC", risk.Config{})
	require.NoError(t, err)
	assert.Equal(t, 9, r.Observations)
	require.True(t, r.Beta.Valid)
	assert.InDelta(t, 2, r.Beta.Float64, 1e-6)
	assert.Equal(t, 2, f.count(yahoo.RouteChart))

	// own chart is cached, the benchmark is not
	_, err = tk.Risk(context.Background(), Interval1d, Range1mo, "^GSPC", risk.Config{})
	require.NoError(t, err)
	assert.Equal(t, 3, f.count(yahoo.RouteChart))
}

func TestTicker_RiskBenchmarkFailure(t *testing.T) {
	f := newStubFetcher(func(req yahoo.Request) ([]byte, error) {
		if symbolOf(req) == "SPY" {
			return nil, upstream(yahoo.KindNotFound, req.Route)
		}
		return chartBody(t, "AAPL", 1_700_000_000, ramp(10, 100, 1), nil), nil
	})
	tk, _ := newTestTicker(t, "AAPL", f)
	_, err := tk.Risk(context.Background(), Interval1d, Range1mo, "SPY", risk.Config{})
	assert.True(t, errors.Is(err, yahoo.ErrNotFound))
}

func TestTicker_Backtest(t *testing.T) {
	var closes []float64
	for i := 0; i < 30; i++ {
		closes = append(closes, 100-float64(i))
	}
	for i := 0; i < 30; i++ {
		closes = append(closes, 71+float64(i))
	}
	f := chartFetcher(t, closes)
	tk, _ := newTestTicker(t, "AAPL", f)
	s, err := backtest.NewSMACrossover(3, 8, 0)
	require.NoError(t, err)

	res, err := tk.Backtest(context.Background(), Interval1d, Range3mo, s, backtest.Config{InitialCash: 1000})
	require.NoError(t, err)
	require.NotEmpty(t, res.Trades)
	assert.Equal(t, backtest.ActionBuy, res.Trades[0].Action)
	assert.Len(t, res.Equity, 60)
	assert.Greater(t, res.FinalEquity, 1000.0)
}
