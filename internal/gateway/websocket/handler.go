package websocket

import (
	"go.uber.org/zap"
)

// MessageHandler reacts to frames a Connection's read pump parses.
type MessageHandler interface {
	HandleMessage(conn *Connection, msg *Message)
}

// DefaultHandler answers ping/auth messages; the only business data a
// connection ever receives is the broadcast event feed Hub.Broadcast
// pushes directly onto Connection.send.
type DefaultHandler struct {
	hub    *Hub
	logger *zap.Logger

	authFunc func(token string) (userID, sessionID string, err error)
}

func NewDefaultHandler(hub *Hub, logger *zap.Logger) *DefaultHandler {
	return &DefaultHandler{
		hub:    hub,
		logger: logger,
	}
}

// SetAuthFunc installs the token verifier used by handleAuth.
func (h *DefaultHandler) SetAuthFunc(f func(string) (string, string, error)) {
	h.authFunc = f
}

func (h *DefaultHandler) HandleMessage(conn *Connection, msg *Message) {
	h.logger.Debug("handling message",
		zap.String("conn_id", conn.ID),
		zap.String("msg_type", string(msg.Type)),
		zap.String("msg_id", msg.ID),
	)

	switch msg.Type {
	case MessageTypePing:
		h.handlePing(conn, msg)
	case MessageTypeAuth:
		h.handleAuth(conn, msg)
	default:
		h.logger.Warn("unknown message type", zap.String("conn_id", conn.ID), zap.String("msg_type", string(msg.Type)))
		conn.Send(NewErrorMessage("unknown message type"))
	}
}

func (h *DefaultHandler) handlePing(conn *Connection, msg *Message) {
	pong := NewMessage(MessageTypePong, map[string]interface{}{"timestamp": msg.Timestamp})
	conn.Send(pong)
}

// handleAuth verifies the token carried in msg.Data and, on success,
// marks conn authenticated so it starts receiving broadcasts.
func (h *DefaultHandler) handleAuth(conn *Connection, msg *Message) {
	authData, ok := msg.Data.(map[string]interface{})
	if !ok {
		conn.Send(&Message{ID: newMessageID(), Type: MessageTypeAuthResult, Data: AuthResult{Success: false, Message: "invalid auth data format"}})
		return
	}

	token, ok := authData["token"].(string)
	if !ok || token == "" {
		conn.Send(&Message{ID: newMessageID(), Type: MessageTypeAuthResult, Data: AuthResult{Success: false, Message: "token is required"}})
		return
	}

	var userID, sessionID string
	var err error
	if h.authFunc != nil {
		userID, sessionID, err = h.authFunc(token)
		if err != nil {
			conn.Send(&Message{ID: newMessageID(), Type: MessageTypeAuthResult, Data: AuthResult{Success: false, Message: "authentication failed: " + err.Error()}})
			return
		}
	} else {
		userID, sessionID = "test_user", "test_session"
	}

	h.hub.SetUserID(conn.ID, userID, sessionID)

	conn.Send(&Message{
		ID:   newMessageID(),
		Type: MessageTypeAuthResult,
		Data: AuthResult{Success: true, Message: "authentication successful", UserID: userID, SessionID: sessionID},
	})
}
