package finance

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/guregu/null/v6"

	"github.com/Verdenroz/finance-query-sub000/pkg/backtest"
	"github.com/Verdenroz/finance-query-sub000/pkg/indicator"
	"github.com/Verdenroz/finance-query-sub000/pkg/risk"
	"github.com/Verdenroz/finance-query-sub000/pkg/yahoo"
)

// Candle is one OHLCV bar. Volume keeps upstream placeholders (including
// negative values) as-is.
type Candle struct {
	Timestamp int64      `json:"timestamp"`
	Open      float64    `json:"open"`
	High      float64    `json:"high"`
	Low       float64    `json:"low"`
	Close     float64    `json:"close"`
	Volume    int64      `json:"volume"`
	AdjClose  null.Float `json:"adj_close"`
}

// Chart is a candle series with its instrument metadata. Candles are sorted
// by timestamp with duplicates removed. A Chart is never mutated; a refetch
// produces a new one.
type Chart struct {
	Symbol   string   `json:"symbol"`
	Currency string   `json:"currency"`
	Exchange string   `json:"exchange"`
	Timezone string   `json:"timezone"`
	Interval Interval `json:"interval"`
	Range    Range    `json:"range"`
	Candles  []Candle `json:"candles"`
}

func (c *Chart) column(f func(Candle) float64) []float64 {
	out := make([]float64, len(c.Candles))
	for i, k := range c.Candles {
		out[i] = f(k)
	}
	return out
}

// Closes returns a fresh slice of close prices.
func (c *Chart) Closes() []float64 { return c.column(func(k Candle) float64 { return k.Close }) }

// Opens returns a fresh slice of open prices.
func (c *Chart) Opens() []float64 { return c.column(func(k Candle) float64 { return k.Open }) }

// Highs returns a fresh slice of high prices.
func (c *Chart) Highs() []float64 { return c.column(func(k Candle) float64 { return k.High }) }

// Lows returns a fresh slice of low prices.
func (c *Chart) Lows() []float64 { return c.column(func(k Candle) float64 { return k.Low }) }

// Volumes returns a fresh slice of volumes as floats.
func (c *Chart) Volumes() []float64 {
	return c.column(func(k Candle) float64 { return float64(k.Volume) })
}

// Timestamps returns a fresh slice of bar times (unix seconds).
func (c *Chart) Timestamps() []int64 {
	out := make([]int64, len(c.Candles))
	for i, k := range c.Candles {
		out[i] = k.Timestamp
	}
	return out
}

// Series returns the column view consumed by the indicator package.
func (c *Chart) Series() indicator.OHLCV {
	return indicator.OHLCV{
		Open:   c.Opens(),
		High:   c.Highs(),
		Low:    c.Lows(),
		Close:  c.Closes(),
		Volume: c.Volumes(),
	}
}

// Points returns the close series for risk analysis, preferring the
// dividend-adjusted close when present.
func (c *Chart) Points() []risk.Point {
	out := make([]risk.Point, len(c.Candles))
	for i, k := range c.Candles {
		out[i] = risk.Point{Time: k.Timestamp, Close: k.AdjClose.ValueOrZero()}
		if !k.AdjClose.Valid {
			out[i].Close = k.Close
		}
	}
	return out
}

// Bars returns the candles in the shape the backtest runner consumes.
func (c *Chart) Bars() []backtest.Bar {
	out := make([]backtest.Bar, len(c.Candles))
	for i, k := range c.Candles {
		out[i] = backtest.Bar{
			Time:   k.Timestamp,
			Open:   k.Open,
			High:   k.High,
			Low:    k.Low,
			Close:  k.Close,
			Volume: float64(k.Volume),
		}
	}
	return out
}

type chartEnvelope struct {
	Chart struct {
		Result []chartResult  `json:"result"`
		Error  *upstreamError `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol               string `json:"symbol"`
		Currency             string `json:"currency"`
		ExchangeName         string `json:"exchangeName"`
		ExchangeTimezoneName string `json:"exchangeTimezoneName"`
	} `json:"meta"`
	Timestamp  []int64    `json:"timestamp"`
	Events     *rawEvents `json:"events"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

func (c *Client) chartQuery(interval Interval, rng Range, events bool) url.Values {
	q := url.Values{}
	q.Set("interval", string(interval))
	q.Set("range", string(rng))
	q.Set("includePrePost", "false")
	if events {
		q.Set("events", "div,splits,capitalGains")
	}
	return q
}

func (c *Client) fetchChartResult(ctx context.Context, symbol string, q url.Values) (*chartResult, error) {
	var env chartEnvelope
	if err := c.getJSON(ctx, yahoo.RouteChart, symbol, q, &env); err != nil {
		return nil, err
	}
	if err := env.Chart.Error.err(yahoo.RouteChart); err != nil {
		return nil, err
	}
	if len(env.Chart.Result) == 0 {
		return nil, ErrNoData
	}
	return &env.Chart.Result[0], nil
}

// fetchChart validates the pair and fetches one chart.
func (c *Client) fetchChart(ctx context.Context, symbol string, interval Interval, rng Range) (*Chart, error) {
	if err := ValidateChart(interval, rng); err != nil {
		return nil, err
	}
	res, err := c.fetchChartResult(ctx, symbol, c.chartQuery(interval, rng, false))
	if err != nil {
		return nil, err
	}
	return res.chart(symbol, interval, rng), nil
}

func (r *chartResult) chart(symbol string, interval Interval, rng Range) *Chart {
	ch := &Chart{
		Symbol:   firstNonEmpty(r.Meta.Symbol, symbol),
		Currency: r.Meta.Currency,
		Exchange: r.Meta.ExchangeName,
		Timezone: r.Meta.ExchangeTimezoneName,
		Interval: interval,
		Range:    rng,
	}
	if len(r.Indicators.Quote) == 0 {
		return ch
	}
	q := r.Indicators.Quote[0]
	var adj []*float64
	if len(r.Indicators.AdjClose) > 0 {
		adj = r.Indicators.AdjClose[0].AdjClose
	}
	candles := make([]Candle, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		o, h, l, cl := at(q.Open, i), at(q.High, i), at(q.Low, i), at(q.Close, i)
		if o == nil && h == nil && l == nil && cl == nil {
			continue
		}
		k := Candle{Timestamp: ts}
		// A partially missing bar borrows the close (or the first present
		// price) for its missing fields.
		fill := firstPresent(cl, o, h, l)
		k.Open = deref(o, fill)
		k.High = deref(h, fill)
		k.Low = deref(l, fill)
		k.Close = deref(cl, fill)
		if v := at(q.Volume, i); v != nil {
			k.Volume = int64(*v)
		}
		if a := at(adj, i); a != nil {
			k.AdjClose = null.FloatFrom(*a)
		}
		candles = append(candles, k)
	}
	ch.Candles = normalizeCandles(candles)
	return ch
}

// normalizeCandles sorts by timestamp (stable) and drops later duplicates.
func normalizeCandles(cs []Candle) []Candle {
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].Timestamp < cs[j].Timestamp })
	out := cs[:0]
	for i, k := range cs {
		if i > 0 && k.Timestamp == cs[i-1].Timestamp {
			continue
		}
		out = append(out, k)
	}
	return out
}

func at(xs []*float64, i int) *float64 {
	if i < len(xs) {
		return xs[i]
	}
	return nil
}

func firstPresent(vs ...*float64) float64 {
	for _, v := range vs {
		if v != nil {
			return *v
		}
	}
	return 0
}

func deref(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
