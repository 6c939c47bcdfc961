package websocket

import (
	"testing"
	"time"
)

func TestNewMessage(t *testing.T) {
	msg := NewMessage(MessageTypePing, map[string]string{"test": "data"})

	if msg.ID == "" {
		t.Error("message ID should not be empty")
	}
	if msg.Type != MessageTypePing {
		t.Errorf("expected type %s, got %s", MessageTypePing, msg.Type)
	}
	if msg.Data == nil {
		t.Error("message data should not be nil")
	}
	if msg.Timestamp.IsZero() {
		t.Error("message timestamp should not be zero")
	}
}

func TestNewErrorMessage(t *testing.T) {
	errMsg := "test error"
	msg := NewErrorMessage(errMsg)

	if msg.Type != MessageTypeError {
		t.Errorf("expected type %s, got %s", MessageTypeError, msg.Type)
	}
	if msg.Error != errMsg {
		t.Errorf("expected error %s, got %s", errMsg, msg.Error)
	}
}

func TestMessageJSON(t *testing.T) {
	original := &Message{
		ID:        "test-id",
		Type:      MessageTypeEvent,
		Timestamp: time.Now(),
		Data:      map[string]string{"key": "value"},
	}

	jsonData, err := original.ToJSON()
	if err != nil {
		t.Fatalf("failed to convert to JSON: %v", err)
	}

	parsed, err := FromJSON(jsonData)
	if err != nil {
		t.Fatalf("failed to parse from JSON: %v", err)
	}

	if parsed.ID != original.ID {
		t.Errorf("expected ID %s, got %s", original.ID, parsed.ID)
	}
	if parsed.Type != original.Type {
		t.Errorf("expected type %s, got %s", original.Type, parsed.Type)
	}
}

func TestFromJSON_Invalid(t *testing.T) {
	invalidJSON := []byte("{invalid json")

	if _, err := FromJSON(invalidJSON); err == nil {
		t.Error("expected error for invalid JSON, got nil")
	}
}

func TestMessageTypes(t *testing.T) {
	types := []MessageType{
		MessageTypePing,
		MessageTypePong,
		MessageTypeAuth,
		MessageTypeAuthResult,
		MessageTypeError,
		MessageTypeEvent,
	}

	for _, msgType := range types {
		msg := NewMessage(msgType, nil)
		if msg.Type != msgType {
			t.Errorf("expected type %s, got %s", msgType, msg.Type)
		}
	}
}
