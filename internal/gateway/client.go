package gateway

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 4096
)

// Client is a single downstream WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	log  *zap.Logger

	// empty means every symbol
	subMu   sync.RWMutex
	symbols map[string]struct{}
}

// clientMsg is anything a client may send.
type clientMsg struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols,omitempty"`
	Ping    int64    `json:"ping,omitempty"`
}

func (c *Client) wants(symbol string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	if len(c.symbols) == 0 {
		return true
	}
	_, ok := c.symbols[symbol]
	return ok
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}

			// Coalesce whatever is queued into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write(next)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
		c.log.Debug("client disconnected", zap.Int("clients", c.hub.ClientCount()))
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.reply(map[string]any{"type": "error", "error": "invalid message: " + err.Error()})
			continue
		}

		switch strings.ToLower(msg.Type) {
		case "subscribe":
			added := c.subscribe(msg.Symbols)
			c.reply(map[string]any{"type": "subscribed", "symbols": c.Symbols()})
			if len(added) > 0 {
				for _, env := range c.hub.snapshot(c, added, time.Time{}) {
					c.hub.deliver(c, env)
				}
			}
		case "unsubscribe":
			c.unsubscribe(msg.Symbols)
			c.reply(map[string]any{"type": "unsubscribed", "symbols": c.Symbols()})
		case "ping":
			c.reply(map[string]any{"type": "pong", "ping": msg.Ping, "server_ts": c.hub.now().UnixMilli()})
		default:
			c.reply(map[string]any{"type": "error", "error": fmt.Sprintf("unknown type %q", msg.Type)})
		}
	}
}

func (c *Client) reply(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.hub.deliver(c, b)
}

// subscribe adds symbols and returns the ones not already present.
func (c *Client) subscribe(symbols []string) []string {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.symbols == nil {
		c.symbols = make(map[string]struct{})
	}
	var added []string
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := c.symbols[s]; ok {
			continue
		}
		c.symbols[s] = struct{}{}
		added = append(added, s)
	}
	return added
}

func (c *Client) unsubscribe(symbols []string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, s := range symbols {
		delete(c.symbols, strings.ToUpper(strings.TrimSpace(s)))
	}
}

// Symbols returns the client's filter, sorted; nil means every symbol.
func (c *Client) Symbols() []string {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	if len(c.symbols) == 0 {
		return nil
	}
	out := make([]string, 0, len(c.symbols))
	for s := range c.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
