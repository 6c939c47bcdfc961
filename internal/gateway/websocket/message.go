// Package websocket is fastpassd's debug event feed: connections
// authenticate once with a JWT, then receive every reset/ack/neg_ack/
// alloc occurrence the running daemon publishes. There is no
// channel subscription model here -- every authenticated connection
// gets the whole feed.
package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageType identifies the shape of Message.Data.
type MessageType string

const (
	MessageTypePing       MessageType = "ping"        // client heartbeat
	MessageTypePong       MessageType = "pong"        // heartbeat response
	MessageTypeAuth       MessageType = "auth"        // client presents a JWT
	MessageTypeAuthResult MessageType = "auth_result" // accept/reject
	MessageTypeError      MessageType = "error"       // malformed or rejected message
	MessageTypeEvent      MessageType = "event"       // a daemon.Event broadcast
)

// Message is the single envelope every websocket frame carries.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// NewMessage wraps data in an envelope with a fresh ID and timestamp.
func NewMessage(msgType MessageType, data interface{}) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// NewErrorMessage builds an error envelope.
func NewErrorMessage(err string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Type:      MessageTypeError,
		Timestamp: time.Now(),
		Error:     err,
	}
}

func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func newMessageID() string {
	return uuid.NewString()
}

func FromJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// AuthData is the payload of a MessageTypeAuth envelope.
type AuthData struct {
	Token string `json:"token"`
}

// AuthResult is the payload of a MessageTypeAuthResult envelope.
type AuthResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}
