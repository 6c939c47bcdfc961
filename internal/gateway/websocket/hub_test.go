package websocket

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func createTestHub() *Hub {
	logger := zap.NewNop()
	handler := NewDefaultHandler(nil, logger)
	return NewHub(logger, handler)
}

func createTestConnection(id string) *Connection {
	logger := zap.NewNop()
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		ID:       id,
		send:     make(chan *Message, 256),
		lastPing: time.Now(),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := createTestHub()
	defer hub.Close()

	conn := createTestConnection("conn1")
	hub.Register(conn)

	stats := hub.GetStats()
	if got := stats["total_connections"].(int); got != 1 {
		t.Errorf("expected 1 connection, got %d", got)
	}

	hub.Unregister("conn1")

	stats = hub.GetStats()
	if got := stats["total_connections"].(int); got != 0 {
		t.Errorf("expected 0 connections, got %d", got)
	}
}

func TestHub_GetConnection(t *testing.T) {
	hub := createTestHub()
	defer hub.Close()

	conn := createTestConnection("conn1")
	hub.Register(conn)

	retrieved, err := hub.GetConnection("conn1")
	if err != nil {
		t.Fatalf("failed to get connection: %v", err)
	}
	if retrieved.ID != "conn1" {
		t.Errorf("expected conn1, got %s", retrieved.ID)
	}

	if _, err := hub.GetConnection("nonexistent"); err != ErrConnectionNotFound {
		t.Errorf("expected ErrConnectionNotFound, got %v", err)
	}
}

func TestHub_SetUserID(t *testing.T) {
	hub := createTestHub()
	defer hub.Close()

	conn := createTestConnection("conn1")
	hub.Register(conn)

	if err := hub.SetUserID("conn1", "user1", "session1"); err != nil {
		t.Fatalf("failed to set user ID: %v", err)
	}

	retrieved, _ := hub.GetConnection("conn1")
	if !retrieved.IsAuthenticated() {
		t.Error("connection should be authenticated")
	}
	if retrieved.UserID != "user1" {
		t.Errorf("expected user1, got %s", retrieved.UserID)
	}

	stats := hub.GetStats()
	if got := stats["authenticated_users"].(int); got != 1 {
		t.Errorf("expected 1 authenticated user, got %d", got)
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub := createTestHub()
	defer hub.Close()

	conn1 := createTestConnection("conn1")
	conn2 := createTestConnection("conn2")
	conn3 := createTestConnection("conn3") // left unauthenticated

	hub.Register(conn1)
	hub.Register(conn2)
	hub.Register(conn3)

	hub.SetUserID("conn1", "user1", "session1")
	hub.SetUserID("conn2", "user2", "session2")

	msg := NewMessage(MessageTypeEvent, map[string]string{"kind": "ack"})
	count := hub.Broadcast(msg)

	if count != 2 {
		t.Errorf("expected 2 recipients (only authenticated), got %d", count)
	}

	select {
	case received := <-conn1.send:
		if received.Type != MessageTypeEvent {
			t.Errorf("expected event message, got %s", received.Type)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for message on conn1")
	}

	select {
	case <-conn3.send:
		t.Error("unauthenticated connection should not receive broadcasts")
	default:
	}
}

func TestConnection_Send(t *testing.T) {
	conn := createTestConnection("conn1")

	msg := NewMessage(MessageTypePing, nil)
	if err := conn.Send(msg); err != nil {
		t.Fatalf("failed to send message: %v", err)
	}

	select {
	case received := <-conn.send:
		if received.Type != MessageTypePing {
			t.Errorf("expected ping message, got %s", received.Type)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for message")
	}
}

func TestConnection_IsClosed(t *testing.T) {
	conn := createTestConnection("conn1")

	if conn.IsClosed() {
		t.Error("connection should not be closed initially")
	}

	conn.mu.Lock()
	conn.closed = true
	conn.mu.Unlock()

	if !conn.IsClosed() {
		t.Error("connection should be closed")
	}
}

func TestConnection_Ping(t *testing.T) {
	conn := createTestConnection("conn1")

	firstPing := conn.LastPing()
	time.Sleep(10 * time.Millisecond)

	conn.UpdatePing()
	secondPing := conn.LastPing()

	if !secondPing.After(firstPing) {
		t.Error("second ping should be after first ping")
	}
}
