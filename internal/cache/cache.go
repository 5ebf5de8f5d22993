// Package cache is the per-symbol resource cache shared by the single-symbol
// and batch facades. Entries are keyed by (symbol, kind, params); a cache is
// either unbounded in time (single symbol), TTL-bound (batch, opt-in) or
// disabled. Concurrent check-then-fetch races are allowed: both fetches run
// and the last write wins.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Kind identifies the resource family of an entry.
type Kind uint8

const (
	KindQuoteBundle Kind = iota + 1
	KindQuote
	KindChart
	KindFinancials
	KindOptions
	KindNews
	KindRecommendations
	KindSpark
	KindEvents
)

func (k Kind) String() string {
	switch k {
	case KindQuoteBundle:
		return "quote_bundle"
	case KindQuote:
		return "quote"
	case KindChart:
		return "chart"
	case KindFinancials:
		return "financials"
	case KindOptions:
		return "options"
	case KindNews:
		return "news"
	case KindRecommendations:
		return "recommendations"
	case KindSpark:
		return "spark"
	case KindEvents:
		return "events"
	default:
		return "unknown"
	}
}

// NearestExpiration is the Options params value for "no explicit expiration".
const NearestExpiration = "nearest"

// Key is a structured cache key. Params is empty for singleton kinds.
type Key struct {
	Symbol string
	Kind   Kind
	Params string
}

func (k Key) String() string {
	return k.Symbol + ":" + k.Kind.String() + ":" + k.Params
}

// Params joins parameter parts into a Key.Params value.
func Params(parts ...string) string {
	return strings.Join(parts, "|")
}

// Backend is an optional second tier shared across processes.
// Values are JSON. Implementations must be safe for concurrent use.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteSymbol(ctx context.Context, symbol string) error
	Flush(ctx context.Context) error
}

// Observer is notified of every lookup.
type Observer interface {
	CacheLookup(kind string, hit bool)
}

// Options configures a Cache.
type Options struct {
	TTL      time.Duration // 0 means entries never expire
	Disabled bool          // every lookup misses, puts are dropped
	Backend  Backend       // optional
	Observer Observer
	Logger   *zap.Logger
	Now      func() time.Time
}

type entry struct {
	value     any
	expiresAt time.Time // zero = never
}

// Cache is safe for concurrent use.
type Cache struct {
	ttl      time.Duration
	disabled bool
	backend  Backend
	observer Observer
	log      *zap.Logger
	now      func() time.Time

	mu      sync.RWMutex
	entries map[string]map[Key]entry
	gens    map[string]uint64
	epoch   uint64 // bumped by Clear
}

// New creates a cache.
func New(opts Options) *Cache {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		ttl:      opts.TTL,
		disabled: opts.Disabled,
		backend:  opts.Backend,
		observer: opts.Observer,
		log:      opts.Logger,
		now:      opts.Now,
		entries:  make(map[string]map[Key]entry),
		gens:     make(map[string]uint64),
	}
}

// Enabled reports whether the cache stores anything.
func (c *Cache) Enabled() bool { return !c.disabled }

// TTL returns the configured entry lifetime; 0 means unbounded.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the in-memory value for key. Expired entries read as absent.
func (c *Cache) Get(key Key) (any, bool) {
	if c.disabled {
		return nil, false
	}
	c.mu.RLock()
	e, ok := c.entries[key.Symbol][key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		// Re-check: a concurrent Put may have replaced it.
		if cur, ok := c.entries[key.Symbol][key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.entries[key.Symbol], key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Put stores value under key unconditionally.
func (c *Cache) Put(ctx context.Context, key Key, value any) {
	if c.disabled {
		return
	}
	c.mu.Lock()
	c.store(key, value)
	c.mu.Unlock()
	c.writeBackend(ctx, key, value)
}

// Generation returns the invalidation generation of symbol. A fetch records
// it before going to the network and hands it to PutFenced afterwards. It
// changes on InvalidateSymbol(symbol) and on every Clear, including for
// symbols that had no entries yet.
func (c *Cache) Generation(symbol string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen(symbol)
}

// caller holds mu. Both counters only grow, so the sum changes on any bump.
func (c *Cache) gen(symbol string) uint64 {
	return c.epoch + c.gens[symbol]
}

// PutFenced stores value only if symbol has not been invalidated since gen
// was read. It reports whether the value was stored.
func (c *Cache) PutFenced(ctx context.Context, key Key, value any, gen uint64) bool {
	if c.disabled {
		return false
	}
	c.mu.Lock()
	if c.gen(key.Symbol) != gen {
		c.mu.Unlock()
		return false
	}
	c.store(key, value)
	c.mu.Unlock()
	c.writeBackend(ctx, key, value)
	return true
}

// caller holds mu.
func (c *Cache) store(key Key, value any) {
	m, ok := c.entries[key.Symbol]
	if !ok {
		m = make(map[Key]entry)
		c.entries[key.Symbol] = m
	}
	e := entry{value: value}
	if c.ttl > 0 {
		e.expiresAt = c.now().Add(c.ttl)
	}
	m[key] = e
}

// InvalidateSymbol drops every entry of every kind for symbol and bumps its
// generation so in-flight fetches cannot resurrect them.
func (c *Cache) InvalidateSymbol(ctx context.Context, symbol string) {
	c.mu.Lock()
	delete(c.entries, symbol)
	c.gens[symbol]++
	c.mu.Unlock()

	if c.backend != nil {
		if err := c.backend.DeleteSymbol(ctx, symbol); err != nil {
			c.log.Warn("cache backend invalidate failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
}

// Clear drops everything and fences every fetch started before it.
func (c *Cache) Clear(ctx context.Context) {
	c.mu.Lock()
	c.epoch++
	c.entries = make(map[string]map[Key]entry)
	c.mu.Unlock()

	if c.backend != nil {
		if err := c.backend.Flush(ctx); err != nil {
			c.log.Warn("cache backend flush failed", zap.Error(err))
		}
	}
}

// Len counts live in-memory entries.
func (c *Cache) Len() int {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, m := range c.entries {
		for _, e := range m {
			if e.expiresAt.IsZero() || now.Before(e.expiresAt) {
				n++
			}
		}
	}
	return n
}

// Sweep removes expired entries and returns how many were dropped.
func (c *Cache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for sym, m := range c.entries {
		for k, e := range m {
			if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
				delete(m, k)
				n++
			}
		}
		if len(m) == 0 {
			delete(c.entries, sym)
		}
	}
	return n
}

func (c *Cache) writeBackend(ctx context.Context, key Key, value any) {
	if c.backend == nil {
		return
	}
	b, err := json.Marshal(value)
	if err != nil {
		c.log.Debug("cache value not serializable", zap.Stringer("key", key), zap.Error(err))
		return
	}
	if err := c.backend.Set(ctx, key.String(), b, c.ttl); err != nil {
		c.log.Debug("cache backend set failed", zap.Stringer("key", key), zap.Error(err))
	}
}

func (c *Cache) observe(key Key, hit bool) {
	if c.observer != nil {
		c.observer.CacheLookup(key.Kind.String(), hit)
	}
}

// Lookup returns the value for key as a T, consulting the backend on a memory
// miss. A backend hit is promoted into memory.
func Lookup[T any](ctx context.Context, c *Cache, key Key) (T, bool) {
	var zero T
	if c.disabled {
		return zero, false
	}
	if v, ok := c.Get(key); ok {
		if t, ok := v.(T); ok {
			c.observe(key, true)
			return t, true
		}
	}
	if c.backend != nil {
		gen := c.Generation(key.Symbol)
		b, ok, err := c.backend.Get(ctx, key.String())
		if err != nil {
			c.log.Debug("cache backend get failed", zap.Stringer("key", key), zap.Error(err))
		}
		if ok {
			var t T
			if err := json.Unmarshal(b, &t); err == nil {
				c.mu.Lock()
				if c.gen(key.Symbol) == gen {
					c.store(key, t)
				}
				c.mu.Unlock()
				c.observe(key, true)
				return t, true
			}
		}
	}
	c.observe(key, false)
	return zero, false
}

// GetOrFetch returns the cached T for key or calls fetch and stores its
// result. Errors are returned as-is and never cached.
func GetOrFetch[T any](ctx context.Context, c *Cache, key Key, fetch func(context.Context) (T, error)) (T, error) {
	if v, ok := Lookup[T](ctx, c, key); ok {
		return v, nil
	}
	gen := c.Generation(key.Symbol)
	v, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.PutFenced(ctx, key, v, gen)
	return v, nil
}
