package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeUserOnline  = "user-online"
	InboundTypeSendMessage = "send-message"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventUserStatusUpdate = "userStatusUpdate"
	EventReceiveMessage   = "receive-message"
	EventMessageSent      = "message-sent"
	EventSessionReplaced  = "session-replaced"
)

var errUserOnlinePayload = errors.New("user-online payload must be a string or an object with userId")

// UserOnlineData announces the user behind the connection. Clients send either the
// bare id as a JSON string or an object {"userId": "..."}.
type UserOnlineData struct {
	UserID string `json:"userId"`
}

func (d *UserOnlineData) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		d.UserID = ""
		return nil
	}

	switch b[0] {
	case '"':
		return json.Unmarshal(b, &d.UserID)
	case '{':
		var obj struct {
			UserID string `json:"userId"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		d.UserID = obj.UserID
		return nil
	default:
		return errUserOnlinePayload
	}
}

// SendMessageData is a direct message from the client. An empty fromUserId means the
// identity bound with user-online.
type SendMessageData struct {
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId" validate:"required"`
	Message    string `json:"message"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// UserStatusUpdate is broadcast to every connection when a user goes online or offline.
type UserStatusUpdate struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

// Chat is the stored message as the client sees it.
type Chat struct {
	ID        string    `json:"_id"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChatEvent wraps a chat for receive-message and message-sent.
type ChatEvent struct {
	Chat Chat `json:"chat"`
}

// SessionReplaced tells a connection that a newer one now owns its user id.
type SessionReplaced struct {
	UserID string `json:"userId"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
