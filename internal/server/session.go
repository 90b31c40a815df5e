package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/powens/tinyretro/internal/board"
	"github.com/powens/tinyretro/internal/config"
	"github.com/powens/tinyretro/internal/store"
)

var errHubClosed = errors.New("hub is shutting down")

// SessionConfig carries the per-connection limits and timings.
type SessionConfig struct {
	SendBuffer     int
	MaxMessageSize int64
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	SendRejections bool
	RateLimit      config.RateLimitConfig
}

// Session is one connected board client. It owns two goroutines: readPump
// decodes actions and applies them to the store, writePump forwards queued
// snapshots and keeps the connection alive with pings.
type Session struct {
	conn        *websocket.Conn
	hub         *Hub
	store       *store.Store
	addr        string
	cfg         SessionConfig
	rateLimiter *rateLimiter
	cancel      context.CancelFunc

	sendMu sync.Mutex
	send   chan []byte
	closed bool
}

// NewSession wraps an upgraded connection. Call Serve to run it.
func NewSession(conn *websocket.Conn, hub *Hub, st *store.Store, addr string, cfg SessionConfig) *Session {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 1
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = cfg.PongWait * 9 / 10
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if conn != nil && cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	return &Session{
		conn:        conn,
		hub:         hub,
		store:       st,
		addr:        addr,
		cfg:         cfg,
		rateLimiter: newRateLimiter(cfg.RateLimit),
		send:        make(chan []byte, cfg.SendBuffer),
	}
}

// Serve runs the session until the peer goes away, a loop fails or ctx is
// cancelled. It returns only after both loops have stopped and the session
// has left the hub.
func (s *Session) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancel = cancel

	// Queue the current board and join the hub while no mutation can run, so
	// the first snapshot is never older than the first broadcast.
	err := s.store.View(func(snapshot []byte) error {
		s.deliver(snapshot)
		if !s.hub.Register(s) {
			return errHubClosed
		}
		return nil
	})
	if err != nil {
		s.closeSend()
		s.closeConnection()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readPump() })
	g.Go(func() error { return s.writePump(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		s.closeConnection()
		return nil
	})

	err = g.Wait()
	s.hub.Unregister(s)
	return err
}

// deliver queues a snapshot. When the buffer is full the backlog is dropped
// and only snapshot is kept, since each snapshot supersedes the ones before
// it. It reports false if the session is closed.
func (s *Session) deliver(snapshot []byte) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.send <- snapshot:
		return true
	default:
	}

	dropped := 0
drain:
	for {
		select {
		case <-s.send:
			dropped++
		default:
			break drain
		}
	}
	s.send <- snapshot
	slog.Warn("session backlog dropped", "addr", s.addr, "dropped", dropped)
	return true
}

// tryDeliver queues msg only if there is room. Used for messages that must
// not push snapshots out of the buffer.
func (s *Session) tryDeliver(msg []byte) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

func (s *Session) closeSend() {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

func (s *Session) closeConnection() {
	if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
		slog.Warn("error closing connection", "addr", s.addr, "err", err)
	}
}

func (s *Session) setupReadConnection() {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait)); err != nil {
		slog.Warn("error setting read deadline", "addr", s.addr, "err", err)
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})
}

// handleReadError logs err at a level matching how surprising it is.
func (s *Session) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		slog.Warn("message exceeded maximum size", "addr", s.addr, "limit", s.cfg.MaxMessageSize)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		slog.Info("session disconnected", "addr", s.addr)
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		slog.Info("session connection closed", "addr", s.addr, "err", err)
	case isTimeout(err):
		slog.Info("session timed out waiting for pong", "addr", s.addr)
	default:
		slog.Warn("websocket read error", "addr", s.addr, "err", err)
	}
}

// checkRateLimit reports whether raw may be processed. A discarded frame is
// answered with a rate_limited rejection when rejections are enabled.
func (s *Session) checkRateLimit(raw []byte) bool {
	if !s.rateLimiter.allow() {
		slog.Warn("rate limit exceeded, discarding message", "addr", s.addr,
			"burst", s.cfg.RateLimit.Burst, "interval", s.cfg.RateLimit.RefillInterval)
		s.reject(actionType(raw), errRateLimited)
		return false
	}
	return true
}

// actionType returns the type tag of raw without decoding the action.
func actionType(raw []byte) string {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return ""
	}
	return tag.Type
}

// processMessage decodes one inbound frame and applies it to the store.
func (s *Session) processMessage(raw []byte) {
	action, err := board.DecodeAction(raw)
	if err != nil {
		slog.Warn("invalid action", "addr", s.addr, "err", err)
		s.reject("", err)
		return
	}

	if err := s.store.Mutate(action); err != nil {
		slog.Warn("action rejected", "addr", s.addr, "action", action.Kind(), "err", err)
		s.reject(action.Kind(), err)
		return
	}
	slog.Debug("action applied", "addr", s.addr, "action", action.Kind())
}

func (s *Session) reject(kind string, err error) {
	if !s.cfg.SendRejections {
		return
	}
	payload, merr := json.Marshal(newRejection(kind, err))
	if merr != nil {
		slog.Error("error encoding rejection", "addr", s.addr, "err", merr)
		return
	}
	if !s.tryDeliver(payload) {
		slog.Debug("rejection dropped, send buffer full", "addr", s.addr)
	}
}

func (s *Session) readPump() error {
	defer s.cancel()

	s.setupReadConnection()

	for {
		messageType, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.handleReadError(err)
			return nil
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if !s.checkRateLimit(raw) {
			continue
		}
		s.processMessage(raw)
	}
}

func (s *Session) writePump(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		s.cancel()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-s.send:
			if !ok {
				s.writeCloseMessage()
				return nil
			}
			if err := s.write(websocket.TextMessage, message); err != nil {
				return s.writeFailed(err)
			}
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				return s.writeFailed(err)
			}
		}
	}
}

func (s *Session) write(messageType int, data []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

// writeFailed logs a write error. Failures caused by the peer going away are
// not errors of the session.
func (s *Session) writeFailed(err error) error {
	if isExpectedCloseError(err) {
		slog.Debug("write to closed connection", "addr", s.addr)
		return nil
	}
	slog.Warn("websocket write error", "addr", s.addr, "err", err)
	return err
}

func (s *Session) writeCloseMessage() {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	if err := s.write(websocket.CloseMessage, msg); err != nil && !isExpectedCloseError(err) {
		slog.Warn("error writing close message", "addr", s.addr, "err", err)
	}
}
