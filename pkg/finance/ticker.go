package finance

import (
	"context"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Verdenroz/finance-query-sub000/internal/cache"
	"github.com/Verdenroz/finance-query-sub000/pkg/backtest"
	"github.com/Verdenroz/finance-query-sub000/pkg/indicator"
	"github.com/Verdenroz/finance-query-sub000/pkg/risk"
)

// Ticker is the single-symbol facade. Every resource is fetched on first use
// and kept until Clear; failures are never cached. A Ticker is safe for
// concurrent use, but two concurrent first calls for the same resource may
// both reach the network.
type Ticker struct {
	symbol string
	client *Client
	cache  *cache.Cache
}

// NewTicker creates a facade for symbol. No network traffic happens until
// the first data call.
func NewTicker(symbol string, opts ...Option) (*Ticker, error) {
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	s := newSettings(opts)
	c, err := newClient(s)
	if err != nil {
		return nil, err
	}
	return &Ticker{
		symbol: sym,
		client: c,
		cache: cache.New(cache.Options{
			Observer: c.metrics,
			Logger:   c.log.Named("cache"),
			Now:      c.now,
		}),
	}, nil
}

func normalizeSymbol(symbol string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" || strings.ContainsAny(sym, " ,/?#") {
		return "", invalid("symbol", symbol, "empty or malformed")
	}
	return sym, nil
}

// Symbol returns the upper-cased symbol.
func (t *Ticker) Symbol() string { return t.symbol }

// Client returns the session handle, for sharing with other facades.
func (t *Ticker) Client() *Client { return t.client }

func (t *Ticker) key(kind cache.Kind, params ...string) cache.Key {
	return key(t.symbol, kind, params...)
}

func (t *Ticker) bundle(ctx context.Context) (*QuoteBundle, error) {
	return cache.GetOrFetch(ctx, t.cache, t.key(cache.KindQuoteBundle), func(ctx context.Context) (*QuoteBundle, error) {
		return t.client.fetchQuoteBundle(ctx, t.symbol)
	})
}

// Quote returns the merged quote. The first call fetches the whole module
// bundle; every module accessor reads the same entry.
func (t *Ticker) Quote(ctx context.Context) (Quote, error) {
	b, err := t.bundle(ctx)
	if err != nil {
		return Quote{}, err
	}
	return b.Quote(), nil
}

// Module returns one raw quoteSummary sub-module by name.
func (t *Ticker) Module(ctx context.Context, name string) (Module, error) {
	b, err := t.bundle(ctx)
	if err != nil {
		return nil, err
	}
	return b.Module(name)
}

func (t *Ticker) Price(ctx context.Context) (Module, error) {
	return t.Module(ctx, ModulePrice)
}

func (t *Ticker) SummaryDetail(ctx context.Context) (Module, error) {
	return t.Module(ctx, ModuleSummaryDetail)
}

func (t *Ticker) KeyStatistics(ctx context.Context) (Module, error) {
	return t.Module(ctx, ModuleDefaultKeyStatistics)
}

func (t *Ticker) FinancialData(ctx context.Context) (Module, error) {
	return t.Module(ctx, ModuleFinancialData)
}

func (t *Ticker) AssetProfile(ctx context.Context) (Module, error) {
	return t.Module(ctx, ModuleAssetProfile)
}

func (t *Ticker) CalendarEvents(ctx context.Context) (Module, error) {
	return t.Module(ctx, ModuleCalendarEvents)
}

func (t *Ticker) Earnings(ctx context.Context) (Module, error) {
	return t.Module(ctx, ModuleEarnings)
}

func (t *Ticker) RecommendationTrend(ctx context.Context) (Module, error) {
	return t.Module(ctx, ModuleRecommendationTrend)
}

func (t *Ticker) UpgradeDowngradeHistory(ctx context.Context) (Module, error) {
	return t.Module(ctx, ModuleUpgradeDowngradeHistory)
}

func (t *Ticker) MajorHolders(ctx context.Context) (Module, error) {
	return t.Module(ctx, ModuleMajorHolders)
}

func (t *Ticker) InstitutionOwnership(ctx context.Context) (Module, error) {
	return t.Module(ctx, ModuleInstitutionOwnership)
}

func (t *Ticker) FundOwnership(ctx context.Context) (Module, error) {
	return t.Module(ctx, ModuleFundOwnership)
}

func (t *Ticker) InsiderHolders(ctx context.Context) (Module, error) {
	return t.Module(ctx, ModuleInsiderHolders)
}

func (t *Ticker) InsiderTransactions(ctx context.Context) (Module, error) {
	return t.Module(ctx, ModuleInsiderTransactions)
}

func (t *Ticker) ESGScores(ctx context.Context) (Module, error) {
	return t.Module(ctx, ModuleESGScores)
}

func (t *Ticker) EarningsTrend(ctx context.Context) (Module, error) {
	return t.Module(ctx, ModuleEarningsTrend)
}

func (t *Ticker) IndexTrend(ctx context.Context) (Module, error) {
	return t.Module(ctx, ModuleIndexTrend)
}

func (t *Ticker) SecFilings(ctx context.Context) (Module, error) {
	return t.Module(ctx, ModuleSecFilings)
}

func (t *Ticker) QuoteType(ctx context.Context) (Module, error) {
	return t.Module(ctx, ModuleQuoteType)
}

func (t *Ticker) SummaryProfile(ctx context.Context) (Module, error) {
	return t.Module(ctx, ModuleSummaryProfile)
}

// Chart returns candles for one interval/range pair. An incompatible pair
// fails with *ValidationError before any request is made.
func (t *Ticker) Chart(ctx context.Context, interval Interval, rng Range) (*Chart, error) {
	if err := ValidateChart(interval, rng); err != nil {
		return nil, err
	}
	return cache.GetOrFetch(ctx, t.cache, t.key(cache.KindChart, string(interval), string(rng)), func(ctx context.Context) (*Chart, error) {
		return t.client.fetchChart(ctx, t.symbol, interval, rng)
	})
}

// Financials returns one statement at one frequency.
func (t *Ticker) Financials(ctx context.Context, st Statement, freq Frequency) (*FinancialStatement, error) {
	if err := ValidateFinancials(st, freq); err != nil {
		return nil, err
	}
	return cache.GetOrFetch(ctx, t.cache, t.key(cache.KindFinancials, string(st), string(freq)), func(ctx context.Context) (*FinancialStatement, error) {
		return t.client.fetchFinancials(ctx, t.symbol, st, freq)
	})
}

// Options returns the option chain for expiration, or the nearest
// expiration when it is nil.
func (t *Ticker) Options(ctx context.Context, expiration *time.Time) (*OptionChain, error) {
	param := cache.NearestExpiration
	if expiration != nil {
		param = strconv.FormatInt(expiration.Unix(), 10)
	}
	return cache.GetOrFetch(ctx, t.cache, t.key(cache.KindOptions, param), func(ctx context.Context) (*OptionChain, error) {
		return t.client.fetchOptions(ctx, t.symbol, expiration)
	})
}

// News returns recent headlines.
func (t *Ticker) News(ctx context.Context) ([]NewsItem, error) {
	return cache.GetOrFetch(ctx, t.cache, t.key(cache.KindNews), func(ctx context.Context) ([]NewsItem, error) {
		return t.client.fetchNews(ctx, t.symbol)
	})
}

// Recommendations returns up to n similar symbols. The full list is cached
// once; n only slices it.
func (t *Ticker) Recommendations(ctx context.Context, n int) ([]Recommendation, error) {
	if n < 1 {
		return nil, invalid("limit", strconv.Itoa(n), "must be at least 1")
	}
	all, err := cache.GetOrFetch(ctx, t.cache, t.key(cache.KindRecommendations), func(ctx context.Context) ([]Recommendation, error) {
		return t.client.fetchRecommendations(ctx, t.symbol)
	})
	if err != nil {
		return nil, err
	}
	if n > len(all) {
		n = len(all)
	}
	return append([]Recommendation(nil), all[:n]...), nil
}

// actions returns the event history filtered to rng. The history is fetched
// once and shared by every range.
func (t *Ticker) actions(ctx context.Context, rng Range) (*CorporateActions, error) {
	if _, ok := rangeSpan[rng]; !ok {
		return nil, invalid("range", string(rng), "unknown range")
	}
	all, err := cache.GetOrFetch(ctx, t.cache, t.key(cache.KindEvents), func(ctx context.Context) (*CorporateActions, error) {
		return t.client.fetchEvents(ctx, t.symbol)
	})
	if err != nil {
		return nil, err
	}
	return all.Within(rng, t.client.now())
}

// Dividends returns dividends paid within rng.
func (t *Ticker) Dividends(ctx context.Context, rng Range) ([]Dividend, error) {
	a, err := t.actions(ctx, rng)
	if err != nil {
		return nil, err
	}
	return a.Dividends, nil
}

// Splits returns splits within rng.
func (t *Ticker) Splits(ctx context.Context, rng Range) ([]Split, error) {
	a, err := t.actions(ctx, rng)
	if err != nil {
		return nil, err
	}
	return a.Splits, nil
}

// CapitalGains returns capital-gain distributions within rng.
func (t *Ticker) CapitalGains(ctx context.Context, rng Range) ([]CapitalGain, error) {
	a, err := t.actions(ctx, rng)
	if err != nil {
		return nil, err
	}
	return a.CapitalGains, nil
}

// Spark returns a close-only series.
func (t *Ticker) Spark(ctx context.Context, interval Interval, rng Range) (*Spark, error) {
	if err := ValidateChart(interval, rng); err != nil {
		return nil, err
	}
	return cache.GetOrFetch(ctx, t.cache, t.key(cache.KindSpark, string(interval), string(rng)), func(ctx context.Context) (*Spark, error) {
		m, err := t.client.fetchSpark(ctx, []string{t.symbol}, interval, rng)
		if err != nil {
			return nil, err
		}
		sp, ok := m[t.symbol]
		if !ok {
			return nil, ErrNoData
		}
		return sp, nil
	})
}

// Indicators computes the standard indicator set over the (cached) chart.
func (t *Ticker) Indicators(ctx context.Context, interval Interval, rng Range) (*indicator.Analysis, error) {
	ch, err := t.Chart(ctx, interval, rng)
	if err != nil {
		return nil, err
	}
	return indicator.Analyze(ch.Series()), nil
}

// Patterns labels every candle of the (cached) chart.
func (t *Ticker) Patterns(ctx context.Context, interval Interval, rng Range) ([]indicator.Pattern, error) {
	ch, err := t.Chart(ctx, interval, rng)
	if err != nil {
		return nil, err
	}
	return indicator.Patterns(ch.Series()), nil
}

// Risk analyzes the chart's returns, against benchmark when it is not
// empty. The benchmark chart is fetched concurrently and is not cached on
// this Ticker. cfg.PeriodsPerYear defaults to the interval's bar count per
// year.
func (t *Ticker) Risk(ctx context.Context, interval Interval, rng Range, benchmark string, cfg risk.Config) (*risk.Report, error) {
	if err := ValidateChart(interval, rng); err != nil {
		return nil, err
	}
	if cfg.PeriodsPerYear == 0 {
		cfg.PeriodsPerYear = periodsPerYear[interval]
	}

	var sym string
	if benchmark != "" {
		var err error
		if sym, err = normalizeSymbol(benchmark); err != nil {
			return nil, err
		}
	}

	var own, bench *Chart
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		own, err = t.Chart(gctx, interval, rng)
		return err
	})
	if sym != "" {
		g.Go(func() error {
			var err error
			bench, err = t.client.fetchChart(gctx, sym, interval, rng)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var benchPoints []risk.Point
	if bench != nil {
		benchPoints = bench.Points()
	}
	return risk.Analyze(own.Points(), benchPoints, cfg)
}

// Backtest replays the (cached) chart through s.
func (t *Ticker) Backtest(ctx context.Context, interval Interval, rng Range, s backtest.Strategy, cfg backtest.Config) (*backtest.Result, error) {
	ch, err := t.Chart(ctx, interval, rng)
	if err != nil {
		return nil, err
	}
	return backtest.Run(ch.Bars(), s, cfg)
}

// Clear drops every cached resource of this Ticker.
func (t *Ticker) Clear(ctx context.Context) {
	t.cache.Clear(ctx)
}
