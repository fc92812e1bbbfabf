// Package server coordinates session registration, room membership, and
// broadcast for the relay via the Hub type.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomrelay/internal/broadcast"
	"github.com/Tyrowin/roomrelay/internal/metrics"
	"github.com/Tyrowin/roomrelay/internal/registry"
)

// Hub owns the registry, the broadcast engine and the goroutines of every
// session accepted by this process. Each process has its own Hub; nothing is
// shared between processes.
type Hub struct {
	cfg      Config
	registry *registry.Registry
	engine   *broadcast.Engine
	metrics  *metrics.Metrics
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu        sync.Mutex
	closing   bool
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewHub creates a Hub for cfg. logger may be nil (slog.Default is used) and
// m may be nil (no metrics are recorded).
func NewHub(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = sanitizeConfig(cfg)
	reg := registry.New(cfg.Rooms...)
	origins := newOriginPolicy(cfg.AllowedOrigins, logger)

	return &Hub{
		cfg:      cfg,
		registry: reg,
		engine:   broadcast.New(reg, logger, m),
		metrics:  m,
		log:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
	}
}

// Config returns the sanitized configuration the hub runs with.
func (h *Hub) Config() Config {
	return h.cfg
}

// Hostname is the process identity echoed in connection envelopes.
func (h *Hub) Hostname() string {
	return h.cfg.Hostname
}

// Registry exposes the connection registry.
func (h *Hub) Registry() *registry.Registry {
	return h.registry
}

// Engine exposes the broadcast engine.
func (h *Hub) Engine() *broadcast.Engine {
	return h.engine
}

// ActiveConnectionIDs returns the IDs of every registered connection.
func (h *Hub) ActiveConnectionIDs() []string {
	return h.registry.ActiveConnectionIDs()
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	return h.registry.Count()
}

// Rooms returns the occupancy of every known room.
func (h *Hub) Rooms() map[string]int {
	return h.registry.Rooms()
}

// Upgrade performs the WebSocket handshake with the hub's origin policy.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return h.upgrader.Upgrade(w, r, nil)
}

func (h *Hub) isClosing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closing
}

// acquire reserves a slot in the wait group unless shutdown has begun.
func (h *Hub) acquire() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.wg.Add(1)
	return true
}

// Serve takes ownership of an upgraded connection: it runs the Connecting
// state and, on success, starts the session's read and write pumps. It
// returns once the session is Active or has failed to get there.
func (h *Hub) Serve(conn *websocket.Conn, addr string) error {
	if !h.acquire() {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
		return ErrHubClosed
	}

	s := newSession(conn, h, addr)
	if err := s.open(); err != nil {
		s.closeTransport()
		h.wg.Done()
		h.log.Warn("session handshake failed", "addr", addr, "error", err)
		return err
	}

	go s.writePump()
	go func() {
		defer h.wg.Done()
		s.readPump()
		<-s.writerDone
	}()
	return nil
}

// Shutdown stops accepting sessions, closes every live connection and waits
// for all session goroutines to finish or the timeout to expire.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closing = true
		h.mu.Unlock()

		h.log.Info("hub shutdown started")
		conns := h.registry.Connections()
		for _, conn := range conns {
			if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.log.Warn("error closing connection", "client_id", conn.ID(), "error", err)
			}
		}
		h.log.Info("closed client connections", "count", len(conns))
	})

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached, some sessions may still be running")
		return context.DeadlineExceeded
	}
}
