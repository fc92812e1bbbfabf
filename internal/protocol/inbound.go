package protocol

import (
	"bytes"
	"encoding/json"
)

// Kind classifies an inbound frame.
type Kind int

const (
	// KindUnknown is a JSON object whose type the relay does not handle.
	KindUnknown Kind = iota
	// KindJoin asks to move the connection into a room.
	KindJoin
	// KindMessage is a structured chat message.
	KindMessage
	// KindText is a payload that is not a JSON object; the whole frame is chat content.
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindJoin:
		return "join"
	case KindMessage:
		return "message"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// Inbound is a classified client frame.
type Inbound struct {
	Kind    Kind
	Type    string
	Room    string
	Content string
}

type inboundFrame struct {
	Type    string `json:"type"`
	Room    string `json:"room"`
	Content string `json:"content"`
}

// Classify decodes a raw client frame. Anything that does not decode as a JSON
// object is treated as plain-text chat content. A join without a room name
// targets DefaultRoom.
func Classify(raw []byte) Inbound {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Inbound{Kind: KindText, Content: string(raw)}
	}

	var f inboundFrame
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return Inbound{Kind: KindText, Content: string(raw)}
	}

	switch f.Type {
	case TypeJoin:
		room := f.Room
		if room == "" {
			room = DefaultRoom
		}
		return Inbound{Kind: KindJoin, Type: f.Type, Room: room}
	case TypeMessage:
		return Inbound{Kind: KindMessage, Type: f.Type, Content: f.Content}
	default:
		return Inbound{Kind: KindUnknown, Type: f.Type}
	}
}
