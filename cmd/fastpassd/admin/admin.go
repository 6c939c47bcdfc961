// Package admin is fastpassd's optional operator-facing HTTP surface:
// a JWT login endpoint and the debughub websocket event stream,
// rate-limited and request-ID-tagged the way the gateway's own HTTP
// handlers are.
package admin

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/fastpass-proto/fastpass/cmd/fastpassd/config"
	"github.com/fastpass-proto/fastpass/cmd/fastpassd/debughub"
	"github.com/fastpass-proto/fastpass/internal/gateway/jwt"
	"github.com/fastpass-proto/fastpass/internal/gateway/middleware"
	"github.com/fastpass-proto/fastpass/internal/gateway/tracing"
)

// Server is the admin HTTP surface: POST /login issues a token, and
// GET /events upgrades to the debug websocket stream (auth happens
// over the websocket's own auth message, per debughub.Hub).
type Server struct {
	srv    *http.Server
	jwtMgr *jwt.JWTManager
	logger *zap.Logger
}

// New builds the admin HTTP server bound to cfg.Addr. hub serves the
// websocket upgrade at /events.
func New(cfg config.AdminConfig, rl config.RateLimitConfig, hub *debughub.Hub, tracer *tracing.Tracer, logger *zap.Logger) *Server {
	jwtMgr := jwt.NewJWTManager(cfg.JWTSecret, 3600, 86400, "fastpassd")

	mux := http.NewServeMux()
	mux.HandleFunc("/login", loginHandler(jwtMgr))
	mux.HandleFunc("/events", hub.Handler())
	mux.HandleFunc("/healthz", healthHandler)

	traced := middleware.TracingMiddleware(tracer)(mux.ServeHTTP)
	logged := middleware.LoggerMiddleware(logger)(traced)
	var handler http.Handler = mux
	if rl.Enable {
		limited := middleware.RateLimitMiddleware(rl.Rate, rl.Burst)(logged)
		handler = middleware.RequestIDMiddleware(limited)
	} else {
		handler = middleware.RequestIDMiddleware(logged)
	}

	return &Server{
		srv:    &http.Server{Addr: cfg.Addr, Handler: handler},
		jwtMgr: jwtMgr,
		logger: logger,
	}
}

// Run starts serving and blocks until the server stops or fails.
func (s *Server) Run() error {
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the admin HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "UP"})
}

type loginRequest struct {
	UserID string `json:"user_id"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func loginHandler(jwtMgr *jwt.JWTManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}

		token, err := jwtMgr.GenerateToken(req.UserID, "", "", "")
		if err != nil {
			http.Error(w, "failed to issue token", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(loginResponse{Token: token})
	}
}
