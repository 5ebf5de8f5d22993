package finance

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Verdenroz/finance-query-sub000/internal/cache"
	"github.com/Verdenroz/finance-query-sub000/internal/logger"
	"github.com/Verdenroz/finance-query-sub000/pkg/indicator"
)

// Tickers is the batch facade over a managed symbol set. Quotes go out as
// one grouped request; every other resource fans out per symbol with
// bounded concurrency. Caching is off unless WithCacheTTL is given.
type Tickers struct {
	client *Client
	cache  *cache.Cache
	limit  int

	mu      sync.RWMutex
	symbols []string
	index   map[string]struct{}
}

// NewTickers creates a batch facade. Symbols are upper-cased and
// de-duplicated, keeping first-seen order.
func NewTickers(symbols []string, opts ...Option) (*Tickers, error) {
	s := newSettings(opts)
	c, err := newClient(s)
	if err != nil {
		return nil, err
	}
	t := &Tickers{
		client: c,
		limit:  s.maxConcurrency,
		index:  make(map[string]struct{}),
		cache: cache.New(cache.Options{
			TTL:      s.cacheTTL,
			Disabled: s.cacheTTL <= 0,
			Backend:  s.cacheBackend,
			Observer: c.metrics,
			Logger:   c.log.Named("cache"),
			Now:      c.now,
		}),
	}
	if err := t.AddSymbols(symbols...); err != nil {
		return nil, err
	}
	return t, nil
}

// Client returns the session handle.
func (t *Tickers) Client() *Client { return t.client }

// AddSymbols adds symbols to the managed set. Nothing is added if any
// symbol is malformed.
func (t *Tickers) AddSymbols(symbols ...string) error {
	norm := make([]string, 0, len(symbols))
	for _, s := range symbols {
		sym, err := normalizeSymbol(s)
		if err != nil {
			return err
		}
		norm = append(norm, sym)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, sym := range norm {
		if _, ok := t.index[sym]; ok {
			continue
		}
		t.index[sym] = struct{}{}
		t.symbols = append(t.symbols, sym)
	}
	return nil
}

// RemoveSymbols drops symbols from the managed set and purges every cached
// resource for them. Unknown symbols are ignored.
func (t *Tickers) RemoveSymbols(ctx context.Context, symbols ...string) {
	drop := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		if sym, err := normalizeSymbol(s); err == nil {
			drop[sym] = struct{}{}
		}
	}

	t.mu.Lock()
	kept := t.symbols[:0]
	for _, sym := range t.symbols {
		if _, ok := drop[sym]; ok {
			delete(t.index, sym)
			continue
		}
		kept = append(kept, sym)
	}
	t.symbols = kept
	t.mu.Unlock()

	for sym := range drop {
		t.cache.InvalidateSymbol(ctx, sym)
	}
}

// Symbols returns a copy of the managed set in insertion order.
func (t *Tickers) Symbols() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.symbols...)
}

func (t *Tickers) managed(symbol string) (string, error) {
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return "", err
	}
	t.mu.RLock()
	_, ok := t.index[sym]
	t.mu.RUnlock()
	if !ok {
		return "", invalid("symbol", symbol, "not in the managed set")
	}
	return sym, nil
}

func key(symbol string, kind cache.Kind, params ...string) cache.Key {
	return cache.Key{Symbol: symbol, Kind: kind, Params: cache.Params(params...)}
}

// Quotes fetches quotes for the managed set. Cached symbols are served from
// cache and the rest go out in a single batch request. A failed request
// marks every requested symbol as failed; only credential or argument
// problems are returned as an error.
func (t *Tickers) Quotes(ctx context.Context) (*BatchResponse[Quote], error) {
	ctx = logger.EnsureTraceID(ctx)
	syms := t.Symbols()
	resp := newBatch[Quote](len(syms))

	var missing []string
	gens := make(map[string]uint64)
	for _, sym := range syms {
		k := key(sym, cache.KindQuote)
		if q, ok := cache.Lookup[Quote](ctx, t.cache, k); ok {
			resp.ok(sym, q)
			continue
		}
		gens[sym] = t.cache.Generation(sym)
		missing = append(missing, sym)
	}

	if len(missing) > 0 {
		quotes, err := t.client.fetchQuotes(ctx, missing)
		switch {
		case err != nil && batchFatal(ctx, err):
			return nil, err
		case err != nil:
			t.client.log.Warn("batch quote request failed",
				logger.Fields(ctx, zap.Int("symbols", len(missing)), zap.Error(err))...)
			for _, sym := range missing {
				resp.fail(sym, err)
			}
		default:
			for _, sym := range missing {
				q, ok := quotes[sym]
				if !ok {
					resp.fail(sym, fmt.Errorf("%w: quote for %s", ErrNoData, sym))
					continue
				}
				resp.ok(sym, q)
				t.cache.PutFenced(ctx, key(sym, cache.KindQuote), q, gens[sym])
			}
		}
	}

	t.client.metrics.BatchResult("quotes", len(resp.Results), len(resp.Errors))
	return resp, nil
}

// Quote returns one managed symbol's quote, running the full batch on a
// cache miss.
func (t *Tickers) Quote(ctx context.Context, symbol string) (Quote, error) {
	sym, err := t.managed(symbol)
	if err != nil {
		return Quote{}, err
	}
	if q, ok := cache.Lookup[Quote](ctx, t.cache, key(sym, cache.KindQuote)); ok {
		return q, nil
	}
	resp, err := t.Quotes(ctx)
	if err != nil {
		return Quote{}, err
	}
	if q, ok := resp.Results[sym]; ok {
		return q, nil
	}
	return Quote{}, resp.Err(sym)
}

func (t *Tickers) chart(ctx context.Context, sym string, interval Interval, rng Range) (*Chart, error) {
	return cache.GetOrFetch(ctx, t.cache, key(sym, cache.KindChart, string(interval), string(rng)), func(ctx context.Context) (*Chart, error) {
		return t.client.fetchChart(ctx, sym, interval, rng)
	})
}

// Chart returns one managed symbol's chart from cache or a single-symbol
// fetch.
func (t *Tickers) Chart(ctx context.Context, symbol string, interval Interval, rng Range) (*Chart, error) {
	if err := ValidateChart(interval, rng); err != nil {
		return nil, err
	}
	sym, err := t.managed(symbol)
	if err != nil {
		return nil, err
	}
	return t.chart(ctx, sym, interval, rng)
}

// Charts fetches one chart per managed symbol.
func (t *Tickers) Charts(ctx context.Context, interval Interval, rng Range) (*BatchResponse[*Chart], error) {
	if err := ValidateChart(interval, rng); err != nil {
		return nil, err
	}
	return fanOut(ctx, t.client, t.limit, "charts", t.Symbols(), func(ctx context.Context, sym string) (*Chart, error) {
		return t.chart(ctx, sym, interval, rng)
	})
}

// Financials fetches one statement per managed symbol.
func (t *Tickers) Financials(ctx context.Context, st Statement, freq Frequency) (*BatchResponse[*FinancialStatement], error) {
	if err := ValidateFinancials(st, freq); err != nil {
		return nil, err
	}
	return fanOut(ctx, t.client, t.limit, "financials", t.Symbols(), func(ctx context.Context, sym string) (*FinancialStatement, error) {
		return cache.GetOrFetch(ctx, t.cache, key(sym, cache.KindFinancials, string(st), string(freq)), func(ctx context.Context) (*FinancialStatement, error) {
			return t.client.fetchFinancials(ctx, sym, st, freq)
		})
	})
}

// News fetches headlines per managed symbol.
func (t *Tickers) News(ctx context.Context) (*BatchResponse[[]NewsItem], error) {
	return fanOut(ctx, t.client, t.limit, "news", t.Symbols(), func(ctx context.Context, sym string) ([]NewsItem, error) {
		return cache.GetOrFetch(ctx, t.cache, key(sym, cache.KindNews), func(ctx context.Context) ([]NewsItem, error) {
			return t.client.fetchNews(ctx, sym)
		})
	})
}

// Recommendations fetches up to n similar symbols per managed symbol.
func (t *Tickers) Recommendations(ctx context.Context, n int) (*BatchResponse[[]Recommendation], error) {
	if n < 1 {
		return nil, invalid("limit", strconv.Itoa(n), "must be at least 1")
	}
	return fanOut(ctx, t.client, t.limit, "recommendations", t.Symbols(), func(ctx context.Context, sym string) ([]Recommendation, error) {
		all, err := cache.GetOrFetch(ctx, t.cache, key(sym, cache.KindRecommendations), func(ctx context.Context) ([]Recommendation, error) {
			return t.client.fetchRecommendations(ctx, sym)
		})
		if err != nil {
			return nil, err
		}
		return append([]Recommendation(nil), all[:min(n, len(all))]...), nil
	})
}

// Options fetches the chain for expiration (nil = nearest) per managed
// symbol.
func (t *Tickers) Options(ctx context.Context, expiration *time.Time) (*BatchResponse[*OptionChain], error) {
	param := cache.NearestExpiration
	if expiration != nil {
		param = strconv.FormatInt(expiration.Unix(), 10)
	}
	return fanOut(ctx, t.client, t.limit, "options", t.Symbols(), func(ctx context.Context, sym string) (*OptionChain, error) {
		return cache.GetOrFetch(ctx, t.cache, key(sym, cache.KindOptions, param), func(ctx context.Context) (*OptionChain, error) {
			return t.client.fetchOptions(ctx, sym, expiration)
		})
	})
}

// Indicators computes the standard indicator set per managed symbol.
func (t *Tickers) Indicators(ctx context.Context, interval Interval, rng Range) (*BatchResponse[*indicator.Analysis], error) {
	if err := ValidateChart(interval, rng); err != nil {
		return nil, err
	}
	return fanOut(ctx, t.client, t.limit, "indicators", t.Symbols(), func(ctx context.Context, sym string) (*indicator.Analysis, error) {
		ch, err := t.chart(ctx, sym, interval, rng)
		if err != nil {
			return nil, err
		}
		return indicator.Analyze(ch.Series()), nil
	})
}

// Spark fetches sparks for the managed set in chunks of SparkChunkSize
// symbols. A failed chunk marks each of its symbols as failed.
func (t *Tickers) Spark(ctx context.Context, interval Interval, rng Range) (*BatchResponse[*Spark], error) {
	if err := ValidateChart(interval, rng); err != nil {
		return nil, err
	}
	ctx = logger.EnsureTraceID(ctx)
	syms := t.Symbols()
	resp := newBatch[*Spark](len(syms))
	params := []string{string(interval), string(rng)}

	var missing []string
	gens := make(map[string]uint64)
	for _, sym := range syms {
		if sp, ok := cache.Lookup[*Spark](ctx, t.cache, key(sym, cache.KindSpark, params...)); ok {
			resp.ok(sym, sp)
			continue
		}
		gens[sym] = t.cache.Generation(sym)
		missing = append(missing, sym)
	}

	chunks := chunk(missing, SparkChunkSize)
	names := make([]string, len(chunks))
	byName := make(map[string][]string, len(chunks))
	for i, c := range chunks {
		names[i] = strconv.Itoa(i)
		byName[names[i]] = c
	}
	got, err := fanOut(ctx, t.client, t.limit, "spark_chunks", names, func(ctx context.Context, name string) (map[string]*Spark, error) {
		return t.client.fetchSpark(ctx, byName[name], interval, rng)
	})
	if err != nil {
		return nil, err
	}

	for name, group := range byName {
		sparks, ok := got.Results[name]
		for _, sym := range group {
			switch {
			case !ok:
				resp.fail(sym, got.Err(name))
			case sparks[sym] == nil:
				resp.fail(sym, fmt.Errorf("%w: spark for %s", ErrNoData, sym))
			default:
				resp.ok(sym, sparks[sym])
				t.cache.PutFenced(ctx, key(sym, cache.KindSpark, params...), sparks[sym], gens[sym])
			}
		}
	}
	t.client.metrics.BatchResult("spark", len(resp.Results), len(resp.Errors))
	return resp, nil
}

// Clear drops every cached resource.
func (t *Tickers) Clear(ctx context.Context) {
	t.cache.Clear(ctx)
}
