package realtime

import (
	"encoding/json"
	"errors"
	"strings"
)

// Event type constants prevent typos in event names.
const (
	EventNewNotification = "new_notification"
	EventNewMessage      = "new_message"
	EventUserOnline      = "user:online"
	EventUserOffline     = "user:offline"
	EventOnlineUsers     = "online_users_list"
	EventRoomJoined      = "room:joined"
	EventRoomLeft        = "room:left"

	EventJoinRoom  = "join_room"
	EventLeaveRoom = "leave_room"
)

// Lifecycle events are delivered to On handlers like server events, with a nil payload.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
	EventAuthError  = "auth_error"
)

// ErrUnauthorized reports that the server rejected the session credential.
// The channel does not retry after it; the caller must authenticate again.
var ErrUnauthorized = errors.New("realtime: credential rejected")

// ErrNotConnected is returned by Emit when no session is active.
var ErrNotConnected = errors.New("realtime: channel is not connected")

// Frame is the JSON envelope of every message on the channel.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Handler receives the raw payload of one event.
type Handler func(payload json.RawMessage)

// Subscriber is the subscription half of the channel, consumed by the sync engines.
type Subscriber interface {
	On(event string, handler Handler) (unsubscribe func())
}

type roomPayload struct {
	RoomID string `json:"roomId"`
}

// ParseID accepts an identifier encoded either as a JSON string or a JSON number.
func ParseID(raw json.RawMessage) string {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
