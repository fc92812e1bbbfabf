// Package server implements the relay's HTTP and WebSocket surface.
//
// A Hub owns one registry of connections and rooms plus the broadcast engine
// that fans messages out to a room. Each accepted WebSocket becomes a Session
// with its own read and write pumps:
//
//	Connecting  register, send {"type":"connection",...}
//	Active      join / message / plain text frames
//	Closed      unregister, announce user_left to the vacated room
//
// Configuration, origin checks, per-connection rate limiting, routing and the
// HTTP server helpers live in their own files so the pieces stay testable on
// their own.
package server
