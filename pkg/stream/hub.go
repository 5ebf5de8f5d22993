package stream

import (
	"context"
	"strconv"
	"sync"
)

// Hub broadcasts pricing updates from a single input channel to any number
// of subscriber channels. A full subscriber channel drops the update for
// that subscriber only, so a slow consumer never blocks the connection.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]*subscription
	nextID int
	closed bool

	// OnDrop is called with the subscriber name when an update is dropped.
	OnDrop func(subscriber string)
}

type subscription struct {
	name    string
	ch      chan PricingData
	symbols map[string]bool // empty means every symbol
}

// Subscription is the receiving side handed out by Subscribe.
type Subscription struct {
	ID int
	C  <-chan PricingData
}

// ChannelStat reports the saturation of one subscriber channel.
type ChannelStat struct {
	Name string
	Len  int
	Cap  int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]*subscription)}
}

// Subscribe registers a subscriber with the given buffer size. When symbols
// is non-empty only updates for those ids are delivered.
func (h *Hub) Subscribe(name string, buf int, symbols ...string) Subscription {
	if buf < 1 {
		buf = 1
	}
	s := &subscription{
		name:    name,
		ch:      make(chan PricingData, buf),
		symbols: make(map[string]bool, len(symbols)),
	}
	for _, sym := range symbols {
		s.symbols[sym] = true
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	if s.name == "" {
		s.name = strconv.Itoa(id)
	}
	if h.closed {
		close(s.ch)
	} else {
		h.subs[id] = s
	}
	return Subscription{ID: id, C: s.ch}
}

// Unsubscribe removes the subscriber and closes its channel.
func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(s.ch)
	}
}

// Publish delivers p to every interested subscriber without blocking.
func (h *Hub) Publish(p PricingData) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if len(s.symbols) > 0 && !s.symbols[p.ID] {
			continue
		}
		select {
		case s.ch <- p:
		default:
			if h.OnDrop != nil {
				h.OnDrop(s.name)
			}
		}
	}
}

// Run publishes everything read from input until ctx is cancelled or input
// is closed, then closes every subscriber channel.
func (h *Hub) Run(ctx context.Context, input <-chan PricingData) {
	defer h.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-input:
			if !ok {
				return
			}
			h.Publish(p)
		}
	}
}

// Close closes all subscriber channels. Later subscribers get a closed
// channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, s := range h.subs {
		close(s.ch)
		delete(h.subs, id)
	}
}

func (h *Hub) ChannelStats() []ChannelStat {
	h.mu.RLock()
	defer h.mu.RUnlock()
	stats := make([]ChannelStat, 0, len(h.subs))
	for _, s := range h.subs {
		stats = append(stats, ChannelStat{Name: s.name, Len: len(s.ch), Cap: cap(s.ch)})
	}
	return stats
}
