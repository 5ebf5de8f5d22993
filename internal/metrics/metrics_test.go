package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("quote", "ok", time.Millisecond)
	m.CacheLookup("chart", true)
	m.AuthRefresh("direct", nil)
	m.BatchResult("quotes", 1, 1)
	m.StreamMessage()
	m.BreakerState(1)
}

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.CacheLookup("chart", true)
	m.CacheLookup("chart", false)
	m.CacheLookup("chart", false)
	m.BatchResult("quotes", 3, 1)
	m.BreakerState(1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("chart", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("chart", "miss")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.BatchSymbols.WithLabelValues("quotes", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendBreakerTrips))
}

func TestServer_Routes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.StreamMessage()

	health := NewHealthStatus()
	srv := NewServer(":0", health, reg, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "fq_stream_messages_total 1"))

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "auth not yet established")

	health.SetAuthOK(true)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}
