// Package broadcast fans envelopes out to the members of a room.
//
// Delivery is best-effort and at-most-once: each recipient gets one Send
// attempt, a failing recipient is logged and skipped, and nothing is retried
// or acknowledged.
package broadcast

import (
	"log/slog"

	"github.com/Tyrowin/roomrelay/internal/metrics"
	"github.com/Tyrowin/roomrelay/internal/protocol"
	"github.com/Tyrowin/roomrelay/internal/registry"
)

// Result summarizes one fan-out.
type Result struct {
	Recipients int
	Delivered  int
	Failed     int
}

// Engine delivers envelopes to the current members of a room.
type Engine struct {
	registry *registry.Registry
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// New creates an Engine reading membership from reg. logger may be nil, in
// which case slog.Default is used; m may be nil.
func New(reg *registry.Registry, logger *slog.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{registry: reg, log: logger, metrics: m}
}

// BroadcastToRoom sends env to every connection in room at the time of the
// call, including the connection that caused the broadcast.
func (e *Engine) BroadcastToRoom(room string, env protocol.Envelope) Result {
	recipients := e.registry.Recipients(room)
	if len(recipients) == 0 {
		return Result{}
	}

	payload, err := protocol.Encode(env)
	if err != nil {
		e.log.Error("broadcast encode failed", "room", room, "type", env.Type, "error", err)
		e.metrics.Broadcast(0, len(recipients))
		return Result{Recipients: len(recipients), Failed: len(recipients)}
	}

	res := Result{Recipients: len(recipients)}
	for _, conn := range recipients {
		if err := conn.Send(payload); err != nil {
			res.Failed++
			e.log.Warn("broadcast delivery failed",
				"room", room, "type", env.Type, "client_id", conn.ID(), "error", err)
			continue
		}
		res.Delivered++
	}

	e.metrics.Broadcast(res.Delivered, res.Failed)
	e.log.Debug("broadcast", "room", room, "type", env.Type,
		"recipients", res.Recipients, "failed", res.Failed)
	return res
}
