// Package debughub is fastpassd's admin debug surface: a JWT-protected
// websocket stream broadcasting reset/ack/neg_ack/alloc occurrences,
// built on the gateway's websocket Hub (adapted here to a single
// broadcast-only event feed instead of its channel-subscription model).
package debughub

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/fastpass-proto/fastpass/cmd/fastpassd/daemon"
	"github.com/fastpass-proto/fastpass/internal/gateway/jwt"
	"github.com/fastpass-proto/fastpass/internal/gateway/websocket"
)

// Hub adapts the gateway's websocket.Hub to daemon.EventSink: every
// Publish call is broadcast as a MessageTypeEvent to every
// authenticated connection.
type Hub struct {
	ws     *websocket.Hub
	server *websocket.Server
	logger *zap.Logger
}

// New builds a debughub.Hub whose websocket connections must present a
// valid JWT (via the auth message, see gateway websocket.DefaultHandler)
// signed with the given manager.
func New(jwtMgr *jwt.JWTManager, logger *zap.Logger) *Hub {
	server := websocket.NewServer(logger)
	server.SetAuthFunc(func(token string) (userID, sessionID string, err error) {
		claims, err := jwtMgr.VerifyToken(token)
		if err != nil {
			return "", "", err
		}
		return claims.UserID, claims.SessionID, nil
	})

	return &Hub{
		ws:     server.GetHub(),
		server: server,
		logger: logger,
	}
}

// Publish implements daemon.EventSink.
func (h *Hub) Publish(ev daemon.Event) {
	msg := websocket.NewMessage(websocket.MessageTypeEvent, ev)
	n := h.ws.Broadcast(msg)
	h.logger.Debug("published protocol event",
		zap.String("kind", string(ev.Kind)),
		zap.String("endpoint", ev.Endpoint),
		zap.Int("subscribers", n),
	)
}

// Handler returns the HTTP handler that upgrades connections to the
// debug event stream, to be mounted under the admin HTTP server.
func (h *Hub) Handler() http.HandlerFunc {
	return h.server.HandleWebSocket()
}
