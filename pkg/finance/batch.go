package finance

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/Verdenroz/finance-query-sub000/internal/auth"
	"github.com/Verdenroz/finance-query-sub000/internal/logger"
)

// BatchResponse partitions a batch outcome by symbol. Every requested symbol
// appears in exactly one of the two maps.
type BatchResponse[T any] struct {
	Results map[string]T      `json:"results"`
	Errors  map[string]string `json:"errors"`

	errs map[string]error
}

func newBatch[T any](n int) *BatchResponse[T] {
	return &BatchResponse[T]{
		Results: make(map[string]T, n),
		Errors:  make(map[string]string),
		errs:    make(map[string]error),
	}
}

func (b *BatchResponse[T]) ok(symbol string, v T) {
	b.Results[symbol] = v
}

func (b *BatchResponse[T]) fail(symbol string, err error) {
	b.Errors[symbol] = err.Error()
	b.errs[symbol] = err
}

// Err returns the error recorded for symbol, or nil.
func (b *BatchResponse[T]) Err(symbol string) error {
	if err, ok := b.errs[symbol]; ok {
		return err
	}
	if msg, ok := b.Errors[symbol]; ok {
		return errors.New(msg)
	}
	return nil
}

// batchFatal reports whether err concerns the whole batch rather than one
// symbol: the credential cannot be obtained, an argument is invalid, or the
// caller gave up.
func batchFatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, auth.ErrUnavailable) || IsValidation(err)
}

// fanOut runs fetch once per symbol with at most limit in flight. Per-symbol
// failures, panics included, land in Errors; the first batch-fatal error is
// returned instead of a response.
func fanOut[T any](ctx context.Context, c *Client, limit int, op string, symbols []string,
	fetch func(ctx context.Context, symbol string) (T, error),
) (*BatchResponse[T], error) {
	ctx = logger.EnsureTraceID(ctx)
	resp := newBatch[T](len(symbols))
	var (
		mu    sync.Mutex
		fatal error
	)

	p := pool.New().WithMaxGoroutines(limit)
	for _, sym := range symbols {
		p.Go(func() {
			var (
				v   T
				err error
				pc  panics.Catcher
			)
			pc.Try(func() { v, err = fetch(ctx, sym) })
			if r := pc.Recovered(); r != nil {
				err = fmt.Errorf("%s: %w", op, r.AsError())
				c.log.Error("batch task panicked", logger.Fields(ctx, zap.String("op", op), zap.String("symbol", sym), zap.Error(err))...)
			}

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				resp.ok(sym, v)
			case batchFatal(ctx, err):
				if fatal == nil {
					fatal = err
				}
			default:
				resp.fail(sym, err)
			}
		})
	}
	p.Wait()

	if fatal != nil {
		return nil, fatal
	}
	c.metrics.BatchResult(op, len(resp.Results), len(resp.Errors))
	return resp, nil
}
