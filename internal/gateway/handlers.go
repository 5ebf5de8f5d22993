package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:    1024,
	WriteBufferSize:   4096,
	EnableCompression: true,
	CheckOrigin:       func(*http.Request) bool { return true },
}

// Router mounts the relay endpoints:
//
//	GET /ws?symbols=A,B&since=RFC3339  live feed
//	GET /latest                       latest envelope per symbol
//	GET /missed?symbol=S&from=N&to=M  replay for gap backfill
func (h *Hub) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ws", h.ServeWS)
	r.Get("/latest", h.handleLatest)
	r.Get("/missed", h.handleMissed)
	return r
}

// ServeWS upgrades the request and registers the client. An optional
// symbols query narrows the feed; since limits the initial snapshot to
// entries newer than that instant.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("upgrade failed", zap.Error(err))
		return
	}
	conn.EnableWriteCompression(true)

	c := &Client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		hub:  h,
		log:  h.log,
	}
	if q := r.URL.Query().Get("symbols"); q != "" {
		c.subscribe(strings.Split(q, ","))
	}
	var since time.Time
	if q := r.URL.Query().Get("since"); q != "" {
		since, _ = time.Parse(time.RFC3339Nano, q)
	}

	n := h.addClient(c)
	h.log.Debug("client connected", zap.Int("clients", n), zap.Strings("symbols", c.Symbols()))

	h.deliver(c, marketEnvelope(h.now()))
	for _, env := range h.snapshot(c, nil, since) {
		h.deliver(c, env)
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) handleLatest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Latest())
}

func (h *Hub) handleMissed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol := strings.ToUpper(q.Get("symbol"))
	if symbol == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "symbol is required"})
		return
	}
	from, err := strconv.ParseInt(q.Get("from"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "from: " + err.Error()})
		return
	}
	to := h.Seq(symbol)
	if s := q.Get("to"); s != "" {
		if to, err = strconv.ParseInt(s, 10, 64); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "to: " + err.Error()})
			return
		}
	}
	missed := h.Missed(symbol, from, to)
	if missed == nil {
		missed = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":   symbol,
		"seq":      h.Seq(symbol),
		"messages": missed,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
