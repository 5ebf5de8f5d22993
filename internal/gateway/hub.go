// Package gateway relays live price updates to downstream WebSocket
// clients. Each client may narrow the feed to a symbol set; updates carry a
// per-symbol sequence number so clients can detect gaps and backfill them
// from the replay endpoint.
package gateway

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Verdenroz/finance-query-sub000/internal/markethours"
	"github.com/Verdenroz/finance-query-sub000/pkg/stream"
)

// DefaultReplaySize is the number of envelopes kept per symbol.
const DefaultReplaySize = 500

const sendBuffer = 256

// Hub owns the connected clients and the latest envelope per symbol.
type Hub struct {
	log        *zap.Logger
	replaySize int
	now        func() time.Time

	mu      sync.RWMutex
	clients map[*Client]struct{}
	latest  map[string]latestEntry
	seqs    map[string]int64
	replay  map[string]*ReplayBuffer
}

type latestEntry struct {
	Data []byte
	TS   time.Time
}

// NewHub creates an empty hub. replaySize <= 0 uses DefaultReplaySize.
func NewHub(log *zap.Logger, replaySize int) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	if replaySize <= 0 {
		replaySize = DefaultReplaySize
	}
	return &Hub{
		log:        log,
		replaySize: replaySize,
		now:        time.Now,
		clients:    make(map[*Client]struct{}),
		latest:     make(map[string]latestEntry),
		seqs:       make(map[string]int64),
		replay:     make(map[string]*ReplayBuffer),
	}
}

// Run broadcasts every update from in until in is closed or ctx is done,
// then disconnects all clients.
func (h *Hub) Run(ctx context.Context, in <-chan stream.PricingData) {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-in:
			if !ok {
				return
			}
			h.Broadcast(p)
		}
	}
}

// Broadcast wraps p in an envelope, records it as the symbol's latest and
// in its replay buffer, and fans it out to interested clients. Slow clients
// miss the update and are expected to backfill.
func (h *Hub) Broadcast(p stream.PricingData) {
	data, err := json.Marshal(p)
	if err != nil {
		h.log.Warn("marshal update", zap.String("symbol", p.ID), zap.Error(err))
		return
	}
	now := h.now().UTC()

	h.mu.Lock()
	h.seqs[p.ID]++
	seq := h.seqs[p.ID]
	env := envelope(p.ID, data, now, seq)
	h.latest[p.ID] = latestEntry{Data: env, TS: now}
	rb, ok := h.replay[p.ID]
	if !ok {
		rb = NewReplayBuffer(h.replaySize)
		h.replay[p.ID] = rb
	}
	h.mu.Unlock()
	rb.Push(seq, env)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(p.ID) {
			continue
		}
		select {
		case c.send <- env:
		default:
		}
	}
}

// envelope builds {"type":"pricing",...} without a second marshal of data.
func envelope(symbol string, data []byte, ts time.Time, seq int64) []byte {
	buf := make([]byte, 0, len(symbol)+len(data)+96)
	buf = append(buf, `{"type":"pricing","symbol":`...)
	buf = strconv.AppendQuote(buf, symbol)
	buf = append(buf, `,"seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"ts":"`...)
	buf = ts.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, '}')
	return buf
}

// marketEnvelope is sent to each client on connect.
func marketEnvelope(now time.Time) []byte {
	st := markethours.Now(now)
	b, _ := json.Marshal(map[string]any{
		"type":    "market",
		"open":    st.Open,
		"session": st.Session,
		"status":  markethours.StatusString(now),
	})
	return b
}

// deliver queues msg for c unless c has already been removed.
func (h *Hub) deliver(c *Client, msg []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// snapshot returns the latest envelope for each symbol c wants, skipping
// entries not newer than since.
func (h *Hub) snapshot(c *Client, symbols []string, since time.Time) [][]byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out [][]byte
	add := func(e latestEntry) {
		if !since.IsZero() && !e.TS.After(since) {
			return
		}
		out = append(out, e.Data)
	}
	if symbols != nil {
		for _, s := range symbols {
			if e, ok := h.latest[s]; ok {
				add(e)
			}
		}
		return out
	}
	for sym, e := range h.latest {
		if c.wants(sym) {
			add(e)
		}
	}
	return out
}

func (h *Hub) addClient(c *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	return len(h.clients)
}

// removeClient is safe to call more than once.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// Latest returns the most recent envelope per symbol.
func (h *Hub) Latest() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		out[k] = v.Data
	}
	return out
}

// Missed returns buffered envelopes for symbol with seq in [from, to].
func (h *Hub) Missed(symbol string, from, to int64) []json.RawMessage {
	h.mu.RLock()
	rb, ok := h.replay[symbol]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	entries := rb.Range(from, to)
	out := make([]json.RawMessage, len(entries))
	for i, e := range entries {
		out[i] = e.Data
	}
	return out
}

// Seq returns the last sequence number issued for symbol.
func (h *Hub) Seq(symbol string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seqs[symbol]
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
