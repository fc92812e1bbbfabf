package server

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Tyrowin/roomrelay/internal/metrics"
)

const testHostname = "relay-test-host"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	cfg := *NewConfig()
	cfg.Hostname = testHostname
	cfg.RateLimit = RateLimitConfig{Burst: 100, RefillInterval: time.Second}
	return cfg
}

// startTestServer runs a hub behind the full router on an httptest server.
// Both are torn down when the test ends.
func startTestServer(t *testing.T, cfg Config, m *metrics.Metrics) (*Hub, *httptest.Server) {
	t.Helper()

	hub := NewHub(cfg, discardLogger(), m)
	srv := httptest.NewServer(NewRouter(hub, nil))
	t.Cleanup(func() {
		srv.Close()
		_ = hub.Shutdown(2 * time.Second)
	})
	return hub, srv
}
