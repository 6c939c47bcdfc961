package websocket

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server upgrades HTTP requests to the debug websocket feed.
type Server struct {
	hub     *Hub
	logger  *zap.Logger
	handler MessageHandler
}

func NewServer(logger *zap.Logger) *Server {
	hub := NewHub(logger, nil)
	handler := NewDefaultHandler(hub, logger)
	hub.handler = handler

	return &Server{
		hub:     hub,
		logger:  logger,
		handler: handler,
	}
}

func (s *Server) GetHub() *Hub {
	return s.hub
}

// SetAuthFunc installs the token verifier a connection's "auth"
// message is checked against.
func (s *Server) SetAuthFunc(f func(string) (string, string, error)) {
	if defaultHandler, ok := s.handler.(*DefaultHandler); ok {
		defaultHandler.SetAuthFunc(f)
	}
}

// HandleWebSocket upgrades the request and runs the connection until
// it closes.
func (s *Server) HandleWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Error("failed to upgrade connection", zap.Error(err), zap.String("remote_addr", r.RemoteAddr))
			return
		}

		connID := uuid.NewString()
		wsConn := NewConnection(connID, conn, s.logger)

		s.hub.Register(wsConn)
		wsConn.Start(s.handler)
		defer s.hub.Unregister(wsConn.ID)

		s.logger.Info("websocket connection established", zap.String("conn_id", wsConn.ID), zap.String("remote_addr", r.RemoteAddr))

		<-wsConn.Done()
	}
}

// Broadcast delivers msg to every authenticated connection.
func (s *Server) Broadcast(msg *Message) int {
	return s.hub.Broadcast(msg)
}

func (s *Server) GetStats() map[string]interface{} {
	return s.hub.GetStats()
}

func (s *Server) Close() {
	s.hub.Close()
}
