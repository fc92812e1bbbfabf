// Package server wires HTTP handlers into a router for the relay via
// routing helpers.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// SetupRoutes configures the router: root status, health check, WebSocket
// endpoint and, when metricsHandler is non-nil, /metrics.
func SetupRoutes(hub *Hub, metricsHandler http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/", hub.metrics.Instrument("root", RootHandler(hub))).Methods(http.MethodGet)
	r.Handle("/health", hub.metrics.Instrument("health", HealthHandler(hub))).Methods(http.MethodGet)
	r.HandleFunc("/ws", WebSocketHandler(hub))
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}
	return r
}

// NewRouter returns the routes wrapped in the CORS policy derived from the
// hub's allowed origins.
func NewRouter(hub *Hub, metricsHandler http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: hub.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(SetupRoutes(hub, metricsHandler))
}
