package server

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/powens/tinyretro/internal/config"
	"github.com/powens/tinyretro/internal/store"
)

// HealthReporter exposes the persistence queue's state to /healthz.
type HealthReporter interface {
	Health() store.Health
}

// Server serves the board over HTTP and websockets.
type Server struct {
	store    *store.Store
	hub      *Hub
	health   HealthReporter
	origins  *originPolicy
	upgrader websocket.Upgrader
	session  SessionConfig

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Server for st. hub must be the store's publisher and already
// running. health may be nil when persistence is not tracked.
func New(cfg config.Config, st *store.Store, hub *Hub, health HealthReporter) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		store:   st,
		hub:     hub,
		health:  health,
		origins: newOriginPolicy(cfg.AllowedOrigins),
		session: SessionConfig{
			SendBuffer:     cfg.SendBuffer,
			MaxMessageSize: cfg.MaxMessageSize,
			PingPeriod:     cfg.PingPeriod,
			PongWait:       cfg.PongWait,
			WriteWait:      cfg.WriteWait,
			SendRejections: cfg.SendRejections,
			RateLimit:      cfg.RateLimit,
		},
		ctx:    ctx,
		cancel: cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.allow,
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

// Close cancels every session still running. Call it after Hub.Shutdown has
// had a chance to close sessions cleanly.
func (s *Server) Close() {
	s.cancel()
}
