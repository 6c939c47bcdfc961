package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrConnectionClosed   = errors.New("connection closed")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrSendChannelFull    = errors.New("send channel full")
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// Hub tracks every connected client and broadcasts to the ones that
// have authenticated. There is no per-channel subscription model:
// fastpassd's debug feed has exactly one stream, the protocol event
// feed, so every authenticated connection gets everything.
type Hub struct {
	connections map[string]*Connection // connID -> Connection
	userConns   map[string][]string    // userID -> []connID, kept for GetStats

	mu     sync.RWMutex
	logger *zap.Logger

	handler MessageHandler

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(logger *zap.Logger, handler MessageHandler) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	hub := &Hub{
		connections: make(map[string]*Connection),
		userConns:   make(map[string][]string),
		logger:      logger,
		handler:     handler,
		ctx:         ctx,
		cancel:      cancel,
	}

	go hub.cleanupTask()
	return hub
}

func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[conn.ID] = conn
	h.logger.Info("connection registered", zap.String("conn_id", conn.ID), zap.Int("total_connections", len(h.connections)))
}

func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, exists := h.connections[connID]
	if !exists {
		return
	}

	if conn.UserID != "" {
		h.removeUserConn(conn.UserID, connID)
	}
	delete(h.connections, connID)

	h.logger.Info("connection unregistered",
		zap.String("conn_id", connID),
		zap.String("user_id", conn.UserID),
		zap.Int("total_connections", len(h.connections)),
	)
}

func (h *Hub) GetConnection(connID string) (*Connection, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conn, exists := h.connections[connID]
	if !exists {
		return nil, ErrConnectionNotFound
	}
	return conn, nil
}

// Broadcast delivers msg to every authenticated connection, returning
// how many it reached.
func (h *Hub) Broadcast(msg *Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, conn := range h.connections {
		if !conn.authenticated {
			continue
		}
		if err := conn.Send(msg); err == nil {
			count++
		}
	}
	return count
}

// SetUserID marks connID authenticated under userID/sessionID, called
// from DefaultHandler.handleAuth once a JWT verifies.
func (h *Hub) SetUserID(connID, userID, sessionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, exists := h.connections[connID]
	if !exists {
		return ErrConnectionNotFound
	}

	conn.SetAuthenticated(userID, sessionID)
	h.userConns[userID] = append(h.userConns[userID], connID)

	h.logger.Info("connection authenticated", zap.String("conn_id", connID), zap.String("user_id", userID), zap.String("session_id", sessionID))
	return nil
}

func (h *Hub) GetStats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"total_connections":   len(h.connections),
		"authenticated_users": len(h.userConns),
	}
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cancel()
	for _, conn := range h.connections {
		conn.Close()
	}
	h.logger.Info("hub closed")
}

func (h *Hub) removeUserConn(userID, connID string) {
	connList := h.userConns[userID]
	for i, id := range connList {
		if id == connID {
			h.userConns[userID] = append(connList[:i], connList[i+1:]...)
			break
		}
	}
	if len(h.userConns[userID]) == 0 {
		delete(h.userConns, userID)
	}
}

func (h *Hub) cleanupTask() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.cleanupDeadConnections()
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) cleanupDeadConnections() {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	timeout := 2 * pongWait
	deadConns := make([]string, 0)

	for connID, conn := range h.connections {
		if conn.IsClosed() || now.Sub(conn.LastPing()) > timeout {
			deadConns = append(deadConns, connID)
		}
	}

	for _, connID := range deadConns {
		if conn, exists := h.connections[connID]; exists {
			conn.Close()
			if conn.UserID != "" {
				h.removeUserConn(conn.UserID, connID)
			}
			delete(h.connections, connID)
		}
	}

	if len(deadConns) > 0 {
		h.logger.Info("cleaned up dead connections", zap.Int("count", len(deadConns)), zap.Int("remaining", len(h.connections)))
	}
}
