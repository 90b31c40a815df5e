package server

import (
	"testing"
	"time"

	"github.com/powens/tinyretro/internal/testhelpers"
)

func newTestSession(hub *Hub, buffer int) *Session {
	return NewSession(nil, hub, nil, "test", SessionConfig{SendBuffer: buffer})
}

func drain(s *Session) []string {
	var out []string
	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				return out
			}
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestDeliverKeepsNewestWhenFull(t *testing.T) {
	s := newTestSession(nil, 2)

	for _, msg := range []string{"1", "2", "3"} {
		if !s.deliver([]byte(msg)) {
			t.Fatalf("deliver(%s) reported closed session", msg)
		}
	}

	if got := drain(s); len(got) != 1 || got[0] != "3" {
		t.Errorf("buffer = %v, want [3]", got)
	}
}

func TestTryDeliverDoesNotDisplaceSnapshots(t *testing.T) {
	s := newTestSession(nil, 1)

	s.deliver([]byte("snapshot"))
	if s.tryDeliver([]byte("rejection")) {
		t.Error("tryDeliver succeeded on a full buffer")
	}
	if got := drain(s); len(got) != 1 || got[0] != "snapshot" {
		t.Errorf("buffer = %v, want [snapshot]", got)
	}
}

func TestDeliverAfterClose(t *testing.T) {
	s := newTestSession(nil, 1)
	s.closeSend()
	s.closeSend()

	if s.deliver([]byte("x")) {
		t.Error("deliver succeeded on a closed session")
	}
	if s.tryDeliver([]byte("x")) {
		t.Error("tryDeliver succeeded on a closed session")
	}
}

func TestHandleBroadcastSkipsSlowAndClosedSessions(t *testing.T) {
	hub := NewHub(4)
	slow := newTestSession(hub, 1)
	fast := newTestSession(hub, 10)
	gone := newTestSession(hub, 10)
	gone.closeSend()
	for _, s := range []*Session{slow, fast, gone} {
		hub.sessions[s] = struct{}{}
	}

	for _, msg := range []string{"1", "2", "3"} {
		hub.handleBroadcast([]byte(msg))
	}

	if got := drain(slow); len(got) != 1 || got[0] != "3" {
		t.Errorf("slow session buffer = %v, want [3]", got)
	}
	if got := drain(fast); len(got) != 3 {
		t.Errorf("fast session buffer = %v, want 3 snapshots", got)
	}
	if hub.SessionCount() != 2 {
		t.Errorf("SessionCount = %d, want closed session removed", hub.SessionCount())
	}
}

func TestHubPublishAndUnregister(t *testing.T) {
	hub := NewHub(4)
	go hub.Run()
	defer hub.Shutdown(time.Second)

	s := newTestSession(hub, 4)
	if !hub.Register(s) {
		t.Fatal("Register refused")
	}
	testhelpers.WaitFor(t, "registration", func() bool { return hub.SessionCount() == 1 })

	hub.Publish([]byte("a"))
	hub.Publish([]byte("b"))
	for _, want := range []string{"a", "b"} {
		select {
		case got := <-s.send:
			if string(got) != want {
				t.Errorf("got %q, want %q", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}

	hub.Unregister(s)
	testhelpers.WaitFor(t, "unregistration", func() bool { return hub.SessionCount() == 0 })
	if _, ok := <-s.send; ok {
		t.Error("send buffer still open after Unregister")
	}
}

func TestHubShutdown(t *testing.T) {
	hub := NewHub(1)
	go hub.Run()

	s := newTestSession(hub, 1)
	if !hub.Register(s) {
		t.Fatal("Register refused")
	}
	go func() {
		for range s.send {
		}
		hub.Unregister(s)
	}()

	if err := hub.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if hub.Register(newTestSession(hub, 1)) {
		t.Error("Register accepted a session after shutdown")
	}

	done := make(chan struct{})
	go func() {
		hub.Publish([]byte("late"))
		hub.Publish([]byte("later"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked after shutdown")
	}
}

func TestHubShutdownTimesOut(t *testing.T) {
	hub := NewHub(1)
	go hub.Run()

	// Registered but never unregistered.
	if !hub.Register(newTestSession(hub, 1)) {
		t.Fatal("Register refused")
	}
	if err := hub.Shutdown(50 * time.Millisecond); err == nil {
		t.Error("Shutdown returned nil with a session still running")
	}
}
