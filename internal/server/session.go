// Package server manages individual WebSocket sessions, handling read/write
// pumps, frame dispatch, rate limiting, and lifecycle control for each
// connection.
package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomrelay/internal/protocol"
)

// Session is one client connection moving through Connecting, Active and
// Closed. It owns the transport: only the session's pumps write to or close
// the socket, everyone else goes through Send.
type Session struct {
	id   string
	conn *websocket.Conn
	hub  *Hub
	addr string
	log  *slog.Logger

	mu    sync.Mutex
	state SessionState
	send  chan []byte

	closeOnce  sync.Once
	writerDone chan struct{}

	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	now            func() time.Time
}

// newSession creates a session in StateConnecting with a fresh connection ID.
func newSession(conn *websocket.Conn, hub *Hub, addr string) *Session {
	cfg := hub.cfg
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	id := uuid.NewString()

	return &Session{
		id:             id,
		conn:           conn,
		hub:            hub,
		addr:           addr,
		log:            hub.log.With("client_id", id, "addr", addr),
		state:          StateConnecting,
		send:           make(chan []byte, cfg.SendBufferSize),
		writerDone:     make(chan struct{}),
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit),
		rateLimit:      cfg.RateLimit,
		writeWait:      cfg.WriteWait,
		pongWait:       cfg.PongWait,
		pingPeriod:     cfg.pingPeriod(),
		now:            time.Now,
	}
}

// ID returns the connection ID.
func (s *Session) ID() string {
	return s.id
}

// Addr returns the remote address the session was accepted from.
func (s *Session) Addr() string {
	return s.addr
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		s.state = state
	}
}

// Send queues one frame for the writer goroutine. It never blocks: a full
// queue or a closed session is reported as an error and the frame is dropped.
func (s *Session) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return ErrSessionClosed
	}

	select {
	case s.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close closes the underlying transport. The read pump observes the error and
// runs the Closed-state cleanup.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// open runs the Connecting state: register, then greet the client on the
// socket directly since the writer has not started yet.
func (s *Session) open() error {
	if err := s.hub.registry.Register(s); err != nil {
		return fmt.Errorf("register session: %w", err)
	}
	s.hub.metrics.ConnectionOpened()

	if s.hub.isClosing() {
		s.finish()
		return ErrHubClosed
	}

	payload, err := protocol.Encode(protocol.Connected(s.id, s.hub.Hostname()))
	if err == nil {
		err = s.writeDirect(payload)
	}
	if err != nil {
		s.finish()
		return fmt.Errorf("send connection envelope: %w", err)
	}

	s.setState(StateActive)
	s.log.Info("session opened", "hostname", s.hub.Hostname(), "clients", s.hub.Count())
	return nil
}

func (s *Session) writeDirect(payload []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// finish runs the Closed state exactly once: leave the registry, tell the
// vacated room, and stop the writer.
func (s *Session) finish() {
	s.closeOnce.Do(func() {
		room, registered := s.hub.registry.Unregister(s.id)
		if registered {
			s.hub.metrics.ConnectionClosed()
			if room != "" {
				s.hub.engine.BroadcastToRoom(room, protocol.UserLeft(s.id))
			}
		}

		s.mu.Lock()
		s.state = StateClosed
		close(s.send)
		s.mu.Unlock()

		s.log.Info("session closed", "room", room, "clients", s.hub.Count())
	})
}

// closeTransport closes the socket, ignoring errors from a socket that is
// already gone.
func (s *Session) closeTransport() {
	if err := s.Close(); err != nil && !isExpectedCloseError(err) {
		s.log.Warn("error closing connection", "error", err)
	}
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (s *Session) setupReadConnection() {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.pongWait)); err != nil {
		s.log.Warn("error setting initial read deadline", "error", err)
	}
	s.conn.SetPongHandler(func(string) error {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.pongWait)); err != nil {
			s.log.Warn("error setting read deadline in pong handler", "error", err)
		}
		return nil
	})
}

// logReadError records why the receive loop ended.
func (s *Session) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		s.log.Warn("message exceeded maximum size", "limit", s.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		s.log.Info("client disconnected", "reason", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		s.log.Info("client connection closed", "reason", err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		s.log.Warn("unexpected websocket close", "error", err)
	default:
		s.log.Info("websocket read ended", "error", err)
	}
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the frame should be processed
func (s *Session) checkRateLimit() bool {
	if s.rateLimiter != nil && !s.rateLimiter.allow() {
		s.log.Warn("rate limit exceeded; discarding frame",
			"burst", s.rateLimit.Burst, "interval", s.rateLimit.RefillInterval)
		return false
	}
	return true
}

func (s *Session) readPump() {
	defer func() {
		s.finish()
		s.closeTransport()
	}()

	s.setupReadConnection()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.logReadError(err)
			return
		}

		if !s.checkRateLimit() {
			s.reportError("rate_limited", "rate limit exceeded, message discarded")
			continue
		}

		s.handleFrame(raw)
	}
}

// handleFrame classifies and dispatches one inbound frame. Failures are
// reported to the client and never end the session.
func (s *Session) handleFrame(raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic while handling frame", "panic", r)
			s.reportError("internal", "internal error while processing message")
		}
	}()

	in := protocol.Classify(raw)
	s.hub.metrics.FrameReceived(in.Kind.String())
	s.log.Debug("frame received", "kind", in.Kind.String(), "bytes", len(raw))

	var err error
	switch in.Kind {
	case protocol.KindJoin:
		err = s.handleJoin(in.Room)
	case protocol.KindMessage, protocol.KindText:
		err = s.handleChat(in.Content)
	default:
		s.log.Debug("ignoring frame with unhandled type", "type", in.Type)
		return
	}

	if err != nil {
		s.log.Warn("frame processing failed", "kind", in.Kind.String(), "error", err)
		s.reportError("processing", err.Error())
	}
}

// handleJoin moves the session into room, reports the occupants to the
// joiner and announces the arrival to the room.
func (s *Session) handleJoin(room string) error {
	members, err := s.hub.registry.Join(s.id, room)
	if err != nil {
		return fmt.Errorf("join room %q: %w", room, err)
	}
	s.hub.metrics.Joined()
	s.log.Info("joined room", "room", room, "members", len(members))

	if err := s.enqueue(protocol.RoomUsers(members)); err != nil {
		return err
	}
	s.hub.engine.BroadcastToRoom(room, protocol.UserJoined(s.id))
	return nil
}

// handleChat acknowledges content to its author and relays it to the
// author's room, or DefaultRoom for a connection that never joined.
func (s *Session) handleChat(content string) error {
	room, ok := s.hub.registry.RoomOf(s.id)
	if !ok {
		room = protocol.DefaultRoom
	}
	at := s.now()

	if err := s.enqueue(protocol.Echo(content, at)); err != nil {
		return err
	}
	s.hub.engine.BroadcastToRoom(room, protocol.Chat(s.id, content, at))
	return nil
}

func (s *Session) enqueue(env protocol.Envelope) error {
	payload, err := protocol.Encode(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.Type, err)
	}
	if err := s.Send(payload); err != nil {
		return fmt.Errorf("queue %s: %w", env.Type, err)
	}
	return nil
}

// reportError sends an error envelope to this client only.
func (s *Session) reportError(reason, message string) {
	s.hub.metrics.SessionError(reason)
	if err := s.enqueue(protocol.Error(message)); err != nil {
		s.log.Warn("could not report error to client", "reason", reason, "error", err)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.pingPeriod)
	defer func() {
		ticker.Stop()
		s.closeTransport()
		close(s.writerDone)
	}()

	for s.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (s *Session) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-s.send:
		return s.handleMessage(message, ok)
	case <-ticker.C:
		return s.handlePing()
	}
}

// handleMessage writes one queued frame and returns false if the connection should be closed
func (s *Session) handleMessage(message []byte, ok bool) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeWait)); err != nil {
		s.log.Warn("error setting write deadline", "error", err)
		return false
	}

	if !ok {
		return s.writeCloseMessage()
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			s.log.Warn("error writing message", "error", err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close frame to the client
func (s *Session) writeCloseMessage() bool {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := s.conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		if !isExpectedCloseError(err) {
			s.log.Debug("error writing close message", "error", err)
		}
	}
	return false
}

// handlePing sends a ping message to keep the connection alive
func (s *Session) handlePing() bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeWait)); err != nil {
		s.log.Warn("error setting write deadline for ping", "error", err)
		return false
	}
	if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		s.log.Warn("error writing ping message", "error", err)
		return false
	}
	return true
}
