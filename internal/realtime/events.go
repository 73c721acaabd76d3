package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/nfrund/relaychat/internal/domain"
)

// Inbound event names.
const (
	EventSendMessage   = "sendMessage"
	EventDeleteMessage = "deleteMessage"
)

// Outbound event names.
const (
	EventMessage        = "message"
	EventMessageDeleted = "messageDeleted"
	EventUsers          = "users"
	EventError          = "error"
)

// Error codes carried by EventError. They are only ever sent to the
// connection that caused them.
const (
	CodeRateLimited    = "rate_limited"
	CodePersistFailed  = "persist_failed"
	CodeDeleteFailed   = "delete_failed"
	CodeMessageTooLong = "message_too_long"
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SendMessagePayload is the body of an inbound sendMessage event.
type SendMessagePayload struct {
	Content string `json:"content"`
}

// DeleteMessagePayload is the body of an inbound deleteMessage event.
type DeleteMessagePayload struct {
	MessageID string `json:"messageId"`
}

// Sender identifies the author of a broadcast message.
type Sender struct {
	ID       string      `json:"id"`
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
}

// MessagePayload is the body of an outbound message event.
type MessagePayload struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Sender  Sender `json:"sender"`
}

// RosterEntry is one live connection in a users event.
type RosterEntry struct {
	ID       string      `json:"id"`
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
}

// ErrorPayload is the body of an outbound error event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Encode builds a text frame for event with data as its payload.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
