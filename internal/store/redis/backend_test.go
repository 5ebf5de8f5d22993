package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Port 1 on loopback refuses connections immediately, which is all the
// breaker path needs.
func unreachableBackend(t *testing.T) *Backend {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })
	return NewWithClient(client, Config{MaxFailures: 2, ResetTimeout: time.Minute})
}

func TestBackend_BreakerTripsOnUnreachableRedis(t *testing.T) {
	b := unreachableBackend(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, _, err := b.Get(ctx, "AAPL:chart:1d|1mo"); err == nil {
			t.Fatal("expected dial error")
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("expected Open, got %v", b.State())
	}

	start := time.Now()
	err := b.Set(ctx, "AAPL:chart:1d|1mo", []byte("{}"), time.Minute)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if time.Since(start) > 20*time.Millisecond {
		t.Error("open breaker should reject without touching the network")
	}
}

func TestBackend_OnStateChangeHook(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()

	var got []State
	b := NewWithClient(client, Config{
		MaxFailures:   1,
		OnStateChange: func(_, to State) { got = append(got, to) },
	})
	b.DeleteSymbol(context.Background(), "AAPL")

	if len(got) != 1 || got[0] != StateOpen {
		t.Fatalf("expected [Open], got %v", got)
	}
}
