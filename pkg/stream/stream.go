// Package stream maintains a live pricing websocket, decodes its protobuf
// frames and fans the updates out to subscribers.
package stream

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	DefaultHeartbeat     = 10 * time.Second
	DefaultRetryDelay    = time.Second
	DefaultMaxRetryDelay = 30 * time.Second
	DefaultMultiplier    = 2.0
)

// ErrRetriesExhausted is returned by Run once MaxRetries consecutive
// connection attempts have failed.
var ErrRetriesExhausted = errors.New("stream: retries exhausted")

// Observer receives connection level events. *metrics.Metrics satisfies it.
type Observer interface {
	StreamMessage()
	StreamReconnect()
	StreamDrop(subscriber string)
}

type Config struct {
	URL        string
	Header     http.Header
	Dialer     *websocket.Dialer
	Heartbeat  time.Duration
	RetryDelay time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	MaxRetries int // 0 retries forever
	Logger     *zap.Logger
	Observer   Observer

	// OnState is called with true after each successful connect and false
	// when the connection drops.
	OnState func(connected bool)
}

func (c Config) withDefaults() Config {
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = DefaultHeartbeat
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxRetryDelay
	}
	if c.Multiplier < 1 {
		c.Multiplier = DefaultMultiplier
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Header == nil {
		c.Header = http.Header{}
	}
	if c.Header.Get("Origin") == "" {
		c.Header.Set("Origin", "https://finance.yahoo.com")
	}
	return c
}

type subscribeMsg struct {
	Subscribe []string `json:"subscribe,omitempty"`
}

type unsubscribeMsg struct {
	Unsubscribe []string `json:"unsubscribe,omitempty"`
}

// Streamer owns one websocket connection at a time. The symbol set
// survives reconnects and is re-sent on every new connection.
type Streamer struct {
	cfg Config
	hub *Hub
	log *zap.Logger

	mu      sync.Mutex
	symbols map[string]struct{}
	conn    *websocket.Conn

	writeMu sync.Mutex
}

func New(cfg Config) (*Streamer, error) {
	if cfg.URL == "" {
		return nil, errors.New("stream: url is required")
	}
	cfg = cfg.withDefaults()
	s := &Streamer{
		cfg:     cfg,
		hub:     NewHub(),
		log:     cfg.Logger,
		symbols: make(map[string]struct{}),
	}
	s.hub.OnDrop = func(subscriber string) {
		if cfg.Observer != nil {
			cfg.Observer.StreamDrop(subscriber)
		}
		s.log.Debug("subscriber full, update dropped", zap.String("subscriber", subscriber))
	}
	return s, nil
}

// Hub returns the fan-out that receives every decoded update.
func (s *Streamer) Hub() *Hub { return s.hub }

// Symbols returns the current subscription set, sorted.
func (s *Streamer) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.symbolList()
}

func (s *Streamer) symbolList() []string {
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Subscribe adds symbols to the set. When connected, only the symbols not
// already subscribed are sent upstream.
func (s *Streamer) Subscribe(symbols ...string) error {
	s.mu.Lock()
	var added []string
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		if _, ok := s.symbols[sym]; !ok {
			s.symbols[sym] = struct{}{}
			added = append(added, sym)
		}
	}
	conn := s.conn
	s.mu.Unlock()

	if conn == nil || len(added) == 0 {
		return nil
	}
	return s.write(conn, subscribeMsg{Subscribe: added})
}

// Unsubscribe removes symbols from the set.
func (s *Streamer) Unsubscribe(symbols ...string) error {
	s.mu.Lock()
	var removed []string
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if _, ok := s.symbols[sym]; ok {
			delete(s.symbols, sym)
			removed = append(removed, sym)
		}
	}
	conn := s.conn
	s.mu.Unlock()

	if conn == nil || len(removed) == 0 {
		return nil
	}
	return s.write(conn, unsubscribeMsg{Unsubscribe: removed})
}

func (s *Streamer) write(conn *websocket.Conn, v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.Heartbeat)); err != nil {
		return err
	}
	if err := conn.WriteJSON(v); err != nil {
		return fmt.Errorf("stream: write: %w", err)
	}
	return nil
}

// Run connects and keeps reconnecting with exponential backoff until ctx
// is cancelled or MaxRetries consecutive attempts fail. The hub is closed
// when Run returns, so Run is meant to be called once.
func (s *Streamer) Run(ctx context.Context) error {
	defer s.hub.Close()

	attempt := 0
	for {
		connected, err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			attempt = 0
		}
		attempt++
		if s.cfg.MaxRetries > 0 && attempt > s.cfg.MaxRetries {
			return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, s.cfg.MaxRetries, err)
		}

		delay := s.backoff(attempt)
		s.log.Warn("stream disconnected, reconnecting",
			zap.Error(err), zap.Int("attempt", attempt), zap.Duration("delay", delay))
		if s.cfg.Observer != nil {
			s.cfg.Observer.StreamReconnect()
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// backoff returns RetryDelay * Multiplier^(attempt-1), capped at MaxDelay.
func (s *Streamer) backoff(attempt int) time.Duration {
	d := float64(s.cfg.RetryDelay) * math.Pow(s.cfg.Multiplier, float64(attempt-1))
	if d > float64(s.cfg.MaxDelay) || math.IsInf(d, 0) {
		return s.cfg.MaxDelay
	}
	return time.Duration(d)
}

// session runs one connection until it fails. connected reports whether
// the dial succeeded.
func (s *Streamer) session(ctx context.Context) (connected bool, err error) {
	conn, resp, err := s.cfg.Dialer.DialContext(ctx, s.cfg.URL, s.cfg.Header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %s)", err, resp.Status)
		}
		return false, fmt.Errorf("stream: dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	syms := s.symbolList()
	s.mu.Unlock()
	s.setState(true)
	s.log.Info("stream connected", zap.String("url", s.cfg.URL), zap.Int("symbols", len(syms)))

	done := make(chan struct{})
	defer func() {
		close(done)
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()
		s.setState(false)
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()
	go s.heartbeat(conn, done)

	deadline := func() { _ = conn.SetReadDeadline(time.Now().Add(3 * s.cfg.Heartbeat)) }
	deadline()
	conn.SetPongHandler(func(string) error {
		deadline()
		return nil
	})

	if len(syms) > 0 {
		if err := s.write(conn, subscribeMsg{Subscribe: syms}); err != nil {
			return true, err
		}
	}

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("stream: read: %w", err)
		}
		deadline()

		var p PricingData
		switch mt {
		case websocket.TextMessage:
			p, err = DecodeFrame(msg)
		case websocket.BinaryMessage:
			p, err = DecodePricing(msg)
		default:
			continue
		}
		if errors.Is(err, ErrEmptyFrame) {
			continue
		}
		if err != nil {
			s.log.Debug("undecodable frame", zap.Error(err), zap.Int("bytes", len(msg)))
			continue
		}
		if s.cfg.Observer != nil {
			s.cfg.Observer.StreamMessage()
		}
		s.hub.Publish(p)
	}
}

// heartbeat pings the server until done is closed. A failed ping closes the
// connection so the read loop returns.
func (s *Streamer) heartbeat(conn *websocket.Conn, done <-chan struct{}) {
	t := time.NewTicker(s.cfg.Heartbeat)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(s.cfg.Heartbeat))
			if err != nil {
				s.log.Debug("ping failed", zap.Error(err))
				conn.Close()
				return
			}
		}
	}
}

func (s *Streamer) setState(connected bool) {
	if s.cfg.OnState != nil {
		s.cfg.OnState(connected)
	}
}
