package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const keyPrefix = "fq:"

// Config configures the Redis cache backend.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	MaxFailures  int           // breaker threshold, default 5
	ResetTimeout time.Duration // breaker cool-down, default 10s
	OpTimeout    time.Duration // per-command deadline, default 500ms
	Logger       *zap.Logger

	// OnStateChange is called after the breaker transition is logged.
	OnStateChange func(from, to State)
}

// Backend stores cache entries in Redis under fq:<SYMBOL>:<kind>:<params>.
// Every command goes through a circuit breaker so a down Redis costs one
// fast ErrCircuitOpen instead of a network timeout per lookup.
type Backend struct {
	client    *goredis.Client
	cb        *CircuitBreaker
	opTimeout time.Duration
	log       *zap.Logger
}

// New connects to Redis and pings it.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	b := NewWithClient(client, cfg)
	b.log.Info("redis cache backend connected", zap.String("addr", cfg.Addr))
	return b, nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, cfg Config) *Backend {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 10 * time.Second
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	b := &Backend{
		client:    client,
		cb:        NewCircuitBreaker(cfg.MaxFailures, cfg.ResetTimeout),
		opTimeout: cfg.OpTimeout,
		log:       cfg.Logger,
	}
	b.cb.OnStateChange = func(from, to State) {
		b.log.Warn("redis circuit breaker transition",
			zap.Stringer("from", from),
			zap.Stringer("to", to))
		if cfg.OnStateChange != nil {
			cfg.OnStateChange(from, to)
		}
	}
	return b
}

// Client returns the underlying Redis client for health checks.
func (b *Backend) Client() *goredis.Client { return b.client }

// State returns the breaker state.
func (b *Backend) State() State { return b.cb.CurrentState() }

// Close closes the client.
func (b *Backend) Close() error { return b.client.Close() }

// Get implements cache.Backend.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var val []byte
	var found bool
	err := b.exec(ctx, func(ctx context.Context) error {
		v, err := b.client.Get(ctx, keyPrefix+key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		val, found = v, true
		return nil
	})
	return val, found, err
}

// Set implements cache.Backend. ttl 0 stores without expiry.
func (b *Backend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.exec(ctx, func(ctx context.Context) error {
		return b.client.Set(ctx, keyPrefix+key, value, ttl).Err()
	})
}

// DeleteSymbol implements cache.Backend.
func (b *Backend) DeleteSymbol(ctx context.Context, symbol string) error {
	return b.deleteMatching(ctx, keyPrefix+symbol+":*")
}

// Flush implements cache.Backend. Only keys under the fq: prefix are touched.
func (b *Backend) Flush(ctx context.Context) error {
	return b.deleteMatching(ctx, keyPrefix+"*")
}

func (b *Backend) deleteMatching(ctx context.Context, pattern string) error {
	return b.exec(ctx, func(ctx context.Context) error {
		var cursor uint64
		for {
			keys, next, err := b.client.Scan(ctx, cursor, pattern, 200).Result()
			if err != nil {
				return err
			}
			if len(keys) > 0 {
				if err := b.client.Del(ctx, keys...).Err(); err != nil {
					return err
				}
			}
			cursor = next
			if cursor == 0 {
				return nil
			}
		}
	})
}

func (b *Backend) exec(ctx context.Context, fn func(context.Context) error) error {
	return b.cb.Execute(func() error {
		opCtx, cancel := context.WithTimeout(ctx, b.opTimeout)
		defer cancel()
		return fn(opCtx)
	})
}
