// Package protocol defines the JSON envelopes exchanged over the relay's
// WebSocket endpoint and the classification of inbound frames.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope type discriminators.
const (
	TypeJoin       = "join"
	TypeMessage    = "message"
	TypeConnection = "connection"
	TypeRoomUsers  = "room_users"
	TypeUserJoined = "user_joined"
	TypeUserLeft   = "user_left"
	TypeError      = "error"
	TypeEcho       = "echo"
)

const (
	// DefaultRoom is used when a join omits the room name and for chat sent
	// by a connection that never joined a room.
	DefaultRoom = "general"

	// ServerSender is the sender recorded on echo acknowledgments.
	ServerSender = "server"

	// StatusConnected is the status carried by the connection envelope.
	StatusConnected = "connected"
)

// TimestampLayout is the ISO-8601 layout used for message timestamps.
const TimestampLayout = time.RFC3339Nano

// Envelope is one discriminated message sent to a client. Which fields are
// meaningful depends on Type; the JSON encoding only emits the fields that
// belong to that type. Envelopes are values and are never mutated after
// construction.
type Envelope struct {
	Type      string
	Status    string
	ClientID  string
	Hostname  string
	Users     []string
	UserID    string
	Username  string
	Sender    string
	Content   string
	Message   string
	Room      string
	Timestamp time.Time
}

// Connected builds the greeting sent to a client right after the handshake.
func Connected(clientID, hostname string) Envelope {
	return Envelope{Type: TypeConnection, Status: StatusConnected, ClientID: clientID, Hostname: hostname}
}

// RoomUsers reports the members of the room a client just joined.
func RoomUsers(users []string) Envelope {
	return Envelope{Type: TypeRoomUsers, Users: append([]string(nil), users...)}
}

// UserJoined announces a connection joining a room. The connection ID doubles
// as the display name.
func UserJoined(clientID string) Envelope {
	return Envelope{Type: TypeUserJoined, UserID: clientID, Username: clientID}
}

// UserLeft announces a connection leaving its room.
func UserLeft(clientID string) Envelope {
	return Envelope{Type: TypeUserLeft, UserID: clientID, Username: clientID}
}

// Chat is the room broadcast of a chat message.
func Chat(sender, content string, at time.Time) Envelope {
	return Envelope{Type: TypeMessage, Sender: sender, Content: content, Timestamp: at}
}

// Echo is the immediate acknowledgment returned to the author of a message.
func Echo(content string, at time.Time) Envelope {
	return Envelope{Type: TypeEcho, Sender: ServerSender, Content: content, Timestamp: at}
}

// Join is the client request to enter room.
func Join(room string) Envelope {
	return Envelope{Type: TypeJoin, Room: room}
}

// Error reports a processing failure to a single client.
func Error(message string) Envelope {
	return Envelope{Type: TypeError, Message: message}
}

type connectionFrame struct {
	Type     string `json:"type"`
	Status   string `json:"status"`
	ClientID string `json:"client_id"`
	Hostname string `json:"hostname"`
}

type roomUsersFrame struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

type presenceFrame struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type chatFrame struct {
	Type      string `json:"type"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type joinFrame struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

// wireFrame is the union of every field any envelope may carry on the wire.
type wireFrame struct {
	Type      string   `json:"type"`
	Status    string   `json:"status"`
	ClientID  string   `json:"client_id"`
	Hostname  string   `json:"hostname"`
	Users     []string `json:"users"`
	UserID    string   `json:"userId"`
	Username  string   `json:"username"`
	Sender    string   `json:"sender"`
	Content   string   `json:"content"`
	Message   string   `json:"message"`
	Room      string   `json:"room"`
	Timestamp string   `json:"timestamp"`
}

// MarshalJSON encodes the envelope with exactly the fields of its type.
func (e Envelope) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case TypeConnection:
		return json.Marshal(connectionFrame{e.Type, e.Status, e.ClientID, e.Hostname})
	case TypeRoomUsers:
		users := e.Users
		if users == nil {
			users = []string{}
		}
		return json.Marshal(roomUsersFrame{e.Type, users})
	case TypeUserJoined, TypeUserLeft:
		return json.Marshal(presenceFrame{e.Type, e.UserID, e.Username})
	case TypeMessage, TypeEcho:
		return json.Marshal(chatFrame{e.Type, e.Sender, e.Content, e.Timestamp.UTC().Format(TimestampLayout)})
	case TypeError:
		return json.Marshal(errorFrame{e.Type, e.Message})
	case TypeJoin:
		return json.Marshal(joinFrame{e.Type, e.Room})
	case "":
		return nil, fmt.Errorf("protocol: envelope has no type")
	default:
		return nil, fmt.Errorf("protocol: unknown envelope type %q", e.Type)
	}
}

// UnmarshalJSON decodes any envelope the relay emits. It is used by clients
// and tests; the server classifies inbound frames with Classify instead.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = Envelope{
		Type:     w.Type,
		Status:   w.Status,
		ClientID: w.ClientID,
		Hostname: w.Hostname,
		Users:    w.Users,
		UserID:   w.UserID,
		Username: w.Username,
		Sender:   w.Sender,
		Content:  w.Content,
		Message:  w.Message,
		Room:     w.Room,
	}
	if w.Timestamp != "" {
		ts, err := time.Parse(TimestampLayout, w.Timestamp)
		if err != nil {
			return fmt.Errorf("protocol: bad timestamp %q: %w", w.Timestamp, err)
		}
		e.Timestamp = ts
	}
	return nil
}

// Encode serializes the envelope into a single text frame payload.
func Encode(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}
