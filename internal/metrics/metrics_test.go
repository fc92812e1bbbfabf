package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ConnectionOpened()
		m.ConnectionClosed()
		m.FrameReceived("text")
		m.Joined()
		m.Broadcast(3, 1)
		m.SessionError("rate_limited")
	})

	h := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	assert.NotNil(t, m.Instrument("root", h))
}

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.Broadcast(4, 1)
	m.Broadcast(2, 0)
	m.FrameReceived("join")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectionsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ConnectionsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Broadcasts))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.Deliveries.WithLabelValues(ResultDelivered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues(ResultFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesReceived.WithLabelValues("join")))
}

func TestHandler_ExposesRelayMetrics(t *testing.T) {
	reg := NewRegistry()
	m := New(reg)
	m.ConnectionOpened()

	instrumented := m.Instrument("health", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	instrumented.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

	rr := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, "relay_connections_active 1"))
	assert.True(t, strings.Contains(body, `relay_http_requests_total{code="200",handler="health",method="get"} 1`))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
