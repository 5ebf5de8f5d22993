package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds all Prometheus metrics for the market data client.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Upstream transport
	UpstreamRequests *prometheus.CounterVec   // labels: route, outcome
	UpstreamLatency  *prometheus.HistogramVec // labels: route

	// Symbol cache
	CacheLookups *prometheus.CounterVec // labels: kind, result=hit|miss

	// Auth manager
	AuthRefreshes *prometheus.CounterVec // labels: path=direct|consent, result

	// Batch facade
	BatchSymbols *prometheus.CounterVec // labels: op, outcome=ok|error

	// Streaming
	StreamMessages   prometheus.Counter
	StreamReconnects prometheus.Counter
	StreamDrops      *prometheus.CounterVec // labels: subscriber

	// Cache backend circuit breaker
	BackendBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	BackendBreakerTrips prometheus.Counter
}

// NewMetrics creates all metrics and registers them on reg.
// Pass prometheus.DefaultRegisterer to expose them on the default /metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fq_upstream_requests_total",
			Help: "Upstream HTTP requests by route and outcome",
		}, []string{"route", "outcome"}),
		UpstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fq_upstream_request_duration_seconds",
			Help:    "Upstream HTTP request latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"route"}),

		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fq_cache_lookups_total",
			Help: "Symbol cache lookups by kind and result",
		}, []string{"kind", "result"}),

		AuthRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fq_auth_refreshes_total",
			Help: "Credential refresh attempts by path and result",
		}, []string{"path", "result"}),

		BatchSymbols: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fq_batch_symbols_total",
			Help: "Symbols processed by batch operations",
		}, []string{"op", "outcome"}),

		StreamMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fq_stream_messages_total",
			Help: "Pricing messages decoded from the streamer",
		}),
		StreamReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fq_stream_reconnects_total",
			Help: "Streamer reconnection attempts",
		}),
		StreamDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fq_stream_drops_total",
			Help: "Price updates dropped per slow subscriber",
		}, []string{"subscriber"}),

		BackendBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fq_cache_backend_breaker_state",
			Help: "Cache backend circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		BackendBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fq_cache_backend_breaker_trips_total",
			Help: "Times the cache backend circuit breaker tripped open",
		}),
	}

	reg.MustRegister(
		m.UpstreamRequests,
		m.UpstreamLatency,
		m.CacheLookups,
		m.AuthRefreshes,
		m.BatchSymbols,
		m.StreamMessages,
		m.StreamReconnects,
		m.StreamDrops,
		m.BackendBreakerState,
		m.BackendBreakerTrips,
	)

	return m
}

// ObserveRequest records one upstream request.
func (m *Metrics) ObserveRequest(route, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(route, outcome).Inc()
	m.UpstreamLatency.WithLabelValues(route).Observe(d.Seconds())
}

// CacheLookup records a cache hit or miss for kind.
func (m *Metrics) CacheLookup(kind string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(kind, result).Inc()
}

// AuthRefresh records a refresh attempt on path.
func (m *Metrics) AuthRefresh(path string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.AuthRefreshes.WithLabelValues(path, result).Inc()
}

// BatchResult records per-symbol outcomes for a batch operation.
func (m *Metrics) BatchResult(op string, ok, failed int) {
	if m == nil {
		return
	}
	m.BatchSymbols.WithLabelValues(op, "ok").Add(float64(ok))
	m.BatchSymbols.WithLabelValues(op, "error").Add(float64(failed))
}

// StreamMessage counts one decoded pricing message.
func (m *Metrics) StreamMessage() {
	if m == nil {
		return
	}
	m.StreamMessages.Inc()
}

// StreamReconnect counts one reconnection attempt.
func (m *Metrics) StreamReconnect() {
	if m == nil {
		return
	}
	m.StreamReconnects.Inc()
}

// StreamDrop counts an update dropped for subscriber.
func (m *Metrics) StreamDrop(subscriber string) {
	if m == nil {
		return
	}
	m.StreamDrops.WithLabelValues(subscriber).Inc()
}

// BreakerState records a circuit breaker transition into state.
func (m *Metrics) BreakerState(state int) {
	if m == nil {
		return
	}
	m.BackendBreakerState.Set(float64(state))
	if state == 1 {
		m.BackendBreakerTrips.Inc()
	}
}

// HealthStatus represents the client's view of its dependencies.
type HealthStatus struct {
	mu sync.RWMutex

	AuthOK          bool      `json:"auth_ok"`
	LastFetchTime   time.Time `json:"last_fetch_time"`
	StreamConnected bool      `json:"stream_connected"`
	RedisConnected  bool      `json:"redis_connected"`
	SQLiteOK        bool      `json:"sqlite_ok"`

	// Which optional dependencies are in use; unused ones do not degrade health.
	UsesRedis  bool `json:"uses_redis"`
	UsesSQLite bool `json:"uses_sqlite"`
	UsesStream bool `json:"uses_stream"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetAuthOK(v bool) {
	h.mu.Lock()
	h.AuthOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastFetchTime(t time.Time) {
	h.mu.Lock()
	h.LastFetchTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetStreamConnected(v bool) {
	h.mu.Lock()
	h.UsesStream = true
	h.StreamConnected = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.UsesRedis = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the archive database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.UsesSQLite = true
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either handle may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	degraded := !h.AuthOK ||
		(h.UsesRedis && !h.RedisConnected) ||
		(h.UsesSQLite && !h.SQLiteOK) ||
		(h.UsesStream && !h.StreamConnected)
	if degraded {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	fetchAge := ""
	if !h.LastFetchTime.IsZero() {
		fetchAge = time.Since(h.LastFetchTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		AuthOK          bool    `json:"auth_ok"`
		FetchAge        string  `json:"fetch_age"`
		StreamConnected bool    `json:"stream_connected"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		AuthOK:          h.AuthOK,
		FetchAge:        fetchAge,
		StreamConnected: h.StreamConnected,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
	log    *zap.Logger
}

// NewServer creates a metrics and health server. gatherer is the registry the
// metrics were registered on.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Method(http.MethodGet, "/healthz", health)

	return &Server{
		health: health,
		addr:   addr,
		log:    log,
		srv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info("metrics server listening", zap.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("metrics server error", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
