// Package server exposes HTTP handlers: the WebSocket upgrade, the root
// status endpoint and the health check.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// StatusResponse is the body of the root endpoint.
type StatusResponse struct {
	Message string `json:"message"`
}

// HealthResponse is the body of the /health endpoint.
type HealthResponse struct {
	Status        string         `json:"status"`
	Hostname      string         `json:"hostname"`
	Connections   int            `json:"connections"`
	ActiveClients []string       `json:"active_clients"`
	Rooms         map[string]int `json:"rooms"`
}

// WebSocketHandler validates that the request uses GET, upgrades it to a
// WebSocket and hands the connection to the hub.
func WebSocketHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := hub.Upgrade(w, r)
		if err != nil {
			hub.log.Warn("websocket upgrade failed", "addr", r.RemoteAddr, "error", err)
			return
		}

		// Serve logs its own failures; the connection is closed either way.
		_ = hub.Serve(conn, r.RemoteAddr)
	}
}

// RootHandler reports which host served the request.
func RootHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(hub, w, StatusResponse{
			Message: fmt.Sprintf("WebSocket server is running on %s", hub.Hostname()),
		})
	}
}

// HealthHandler reports process identity and the live connections.
func HealthHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		ids := hub.ActiveConnectionIDs()
		writeJSON(hub, w, HealthResponse{
			Status:        "healthy",
			Hostname:      hub.Hostname(),
			Connections:   len(ids),
			ActiveClients: ids,
			Rooms:         hub.Rooms(),
		})
	}
}

func writeJSON(hub *Hub, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hub.log.Warn("error writing JSON response", "error", err)
	}
}
