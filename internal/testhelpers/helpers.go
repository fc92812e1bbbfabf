// Package testhelpers provides common utilities for testing the relay.
//
// It holds the WebSocket client side of the protocol (dialing, sending join
// and chat frames, reading envelopes) and small HTTP assertions so the
// server and command tests do not duplicate them.
package testhelpers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomrelay/internal/protocol"
)

// TestOrigin is the Origin header sent by ConnectWebSocket.
const TestOrigin = "http://localhost:8080"

// DefaultReadTimeout bounds ReadEnvelope and friends.
const DefaultReadTimeout = 2 * time.Second

// WebSocketURL converts an httptest server URL into the relay's ws:// endpoint.
func WebSocketURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

// ConnectWebSocket creates a WebSocket connection to the specified URL with
// TestOrigin as its Origin header.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	headers := http.Header{}
	headers.Set("Origin", TestOrigin)
	return ConnectWebSocketWithHeaders(url, headers)
}

// ConnectWebSocketWithHeaders dials url with the given handshake headers. The
// handshake response is returned so callers can inspect rejected upgrades.
func ConnectWebSocketWithHeaders(url string, headers http.Header) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// MustConnect dials url, consumes the connection envelope and returns the
// connection with its assigned client ID. The connection is closed when the
// test ends.
func MustConnect(t *testing.T, url string) (*websocket.Conn, string) {
	t.Helper()

	conn, err := ConnectWebSocket(url)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	env := ReadEnvelope(t, conn)
	if env.Type != protocol.TypeConnection {
		t.Fatalf("Expected %q envelope first, got %q", protocol.TypeConnection, env.Type)
	}
	if env.ClientID == "" {
		t.Fatal("Connection envelope has no client_id")
	}
	return conn, env.ClientID
}

// SendJoin sends a join frame for room.
func SendJoin(conn *websocket.Conn, room string) error {
	payload, err := protocol.Encode(protocol.Join(room))
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// SendChat sends a structured chat frame.
func SendChat(conn *websocket.Conn, content string) error {
	return conn.WriteJSON(map[string]string{"type": protocol.TypeMessage, "content": content})
}

// SendText sends a raw text frame.
func SendText(conn *websocket.Conn, text string) error {
	return conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// ReadEnvelopeTimeout reads and decodes one frame, failing on timeout.
func ReadEnvelopeTimeout(conn *websocket.Conn, timeout time.Duration) (protocol.Envelope, error) {
	var env protocol.Envelope
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return env, err
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return env, err
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("decode %s: %w", data, err)
	}
	return env, nil
}

// ReadEnvelope reads one envelope within DefaultReadTimeout.
func ReadEnvelope(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()

	env, err := ReadEnvelopeTimeout(conn, DefaultReadTimeout)
	if err != nil {
		t.Fatalf("Failed to read envelope: %v", err)
	}
	return env
}

// ReadUntilType reads envelopes until one of type typ arrives, discarding
// the rest.
func ReadUntilType(t *testing.T, conn *websocket.Conn, typ string) protocol.Envelope {
	t.Helper()

	deadline := time.Now().Add(DefaultReadTimeout)
	for time.Now().Before(deadline) {
		env, err := ReadEnvelopeTimeout(conn, time.Until(deadline))
		if err != nil {
			t.Fatalf("Failed waiting for %q envelope: %v", typ, err)
		}
		if env.Type == typ {
			return env
		}
	}
	t.Fatalf("Timed out waiting for %q envelope", typ)
	return protocol.Envelope{}
}

// JoinRoom sends a join frame and consumes the room_users reply and the
// joiner's own user_joined announcement. It returns the reported members.
func JoinRoom(t *testing.T, conn *websocket.Conn, room string) []string {
	t.Helper()

	if err := SendJoin(conn, room); err != nil {
		t.Fatalf("Failed to send join: %v", err)
	}
	users := ReadEnvelope(t, conn)
	if users.Type != protocol.TypeRoomUsers {
		t.Fatalf("Expected %q after join, got %q", protocol.TypeRoomUsers, users.Type)
	}
	if joined := ReadEnvelope(t, conn); joined.Type != protocol.TypeUserJoined {
		t.Fatalf("Expected %q after room_users, got %q", protocol.TypeUserJoined, joined.Type)
	}
	return users.Users
}

// ExpectNoEnvelope asserts that nothing arrives on conn within wait.
func ExpectNoEnvelope(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()

	env, err := ReadEnvelopeTimeout(conn, wait)
	if err == nil {
		t.Fatalf("Expected no envelope, got %q", env.Type)
	}
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// Eventually polls cond until it returns true or timeout expires.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Condition not met within %v: %s", timeout, msg)
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}
