// Package server defines session states, sentinel errors and utility helpers
// shared by the session and hub logic.
package server

import (
	"errors"
	"strings"
)

var (
	// ErrSessionClosed is returned by Session.Send once the session reached StateClosed.
	ErrSessionClosed = errors.New("server: session closed")
	// ErrSendBufferFull is returned by Session.Send when the outbound queue is full.
	ErrSendBufferFull = errors.New("server: send buffer full")
	// ErrHubClosed is returned by Hub.Serve after shutdown has begun.
	ErrHubClosed = errors.New("server: hub is shutting down")
)

// SessionState is the lifecycle stage of a connection.
type SessionState int

const (
	// StateConnecting covers registration and the connection greeting.
	StateConnecting SessionState = iota
	// StateActive is the receive loop.
	StateActive
	// StateClosed is terminal.
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
