package server

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Hub fans board snapshots out to every active session. It is the store's
// Publisher: snapshots enter through Publish in mutation order and leave in
// the same order on every session's send buffer.
type Hub struct {
	sessions   map[*Session]struct{}
	broadcast  chan []byte
	register   chan *Session
	unregister chan *Session
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	closed     bool
}

// NewHub creates a Hub whose broadcast queue holds up to buffer snapshots
// before Publish waits for the hub loop.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		sessions:   make(map[*Session]struct{}),
		broadcast:  make(chan []byte, buffer),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Publish queues snapshot for delivery to all sessions. After Shutdown it
// drops the snapshot.
func (h *Hub) Publish(snapshot []byte) {
	select {
	case h.broadcast <- snapshot:
	case <-h.ctx.Done():
	}
}

// Register adds s to the hub. It reports false once the hub is shutting down.
func (h *Hub) Register(s *Session) bool {
	h.mutex.Lock()
	if h.closed {
		h.mutex.Unlock()
		return false
	}
	h.wg.Add(1)
	h.mutex.Unlock()

	select {
	case h.register <- s:
		return true
	case <-h.ctx.Done():
		h.wg.Done()
		return false
	}
}

// Unregister removes s and closes its send buffer. It must be called exactly
// once for every successful Register.
func (h *Hub) Unregister(s *Session) {
	defer h.wg.Done()
	select {
	case h.unregister <- s:
	case <-h.done:
		s.closeSend()
	}
}

// SessionCount returns the number of registered sessions.
func (h *Hub) SessionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.sessions)
}

// Run is the hub loop. It returns after Shutdown, once every session's send
// buffer has been closed.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownSessions()
			return

		case s := <-h.register:
			h.mutex.Lock()
			h.sessions[s] = struct{}{}
			count := len(h.sessions)
			h.mutex.Unlock()
			slog.Info("session registered", "addr", s.addr, "sessions", count)

		case s := <-h.unregister:
			h.mutex.Lock()
			_, ok := h.sessions[s]
			delete(h.sessions, s)
			count := len(h.sessions)
			h.mutex.Unlock()
			s.closeSend()
			if ok {
				slog.Info("session unregistered", "addr", s.addr, "sessions", count)
			}

		case snapshot := <-h.broadcast:
			h.handleBroadcast(snapshot)
		}
	}
}

// handleBroadcast hands snapshot to every session without waiting on any of
// them. Sessions whose buffer is already closed are dropped from the set.
func (h *Hub) handleBroadcast(snapshot []byte) {
	var closed []*Session
	for _, s := range h.getSessionSnapshot() {
		if !s.deliver(snapshot) {
			closed = append(closed, s)
		}
	}
	h.removeClosedSessions(closed)
}

func (h *Hub) getSessionSnapshot() []*Session {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

func (h *Hub) removeClosedSessions(closed []*Session) {
	if len(closed) == 0 {
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for _, s := range closed {
		if _, ok := h.sessions[s]; ok {
			delete(h.sessions, s)
			slog.Debug("skipped closed session", "addr", s.addr)
		}
	}
}

// shutdownSessions closes every session's send buffer; each session's write
// loop then sends a close frame and the session winds down on its own.
func (h *Hub) shutdownSessions() {
	h.mutex.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessions = make(map[*Session]struct{})
	h.closed = true
	h.mutex.Unlock()

	for _, s := range sessions {
		s.closeSend()
	}
	slog.Info("closed sessions", "count", len(sessions))
}

// Shutdown stops the hub and waits up to timeout for every session to finish.
func (h *Hub) Shutdown(timeout time.Duration) error {
	slog.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		slog.Warn("hub shutdown timed out, some sessions may still be running")
		return context.DeadlineExceeded
	}
}
