// Package testhelpers provides shared utilities for tinyretro tests: a
// websocket dialer that sets an allowed Origin, helpers for reading board
// snapshots off a connection, and small HTTP assertions.
package testhelpers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/powens/tinyretro/internal/board"
)

// TestOrigin is the Origin header sent by ConnectWebSocket.
const TestOrigin = "http://localhost:3000"

// WebSocketURL turns an httptest server URL into the board's websocket URL.
func WebSocketURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
}

// ConnectWebSocket dials url with TestOrigin and fails the test on error. The
// connection is closed when the test ends.
func ConnectWebSocket(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, err := DialWebSocket(url, TestOrigin)
	if err != nil {
		t.Fatalf("Failed to connect to websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// DialWebSocket dials url with the given Origin header.
func DialWebSocket(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// SendAction encodes action with its type tag and writes it to conn.
func SendAction(t *testing.T, conn *websocket.Conn, action board.Action) {
	t.Helper()

	payload, err := board.EncodeAction(action)
	if err != nil {
		t.Fatalf("Failed to encode action: %v", err)
	}
	SendRaw(t, conn, payload)
}

// SendRaw writes a text frame to conn.
func SendRaw(t *testing.T, conn *websocket.Conn, payload []byte) {
	t.Helper()

	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}
}

// ReceiveMessage reads one text frame, failing the test after timeout.
func ReceiveMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) []byte {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	return data
}

// ReceiveBoard reads one frame and decodes it as a board snapshot.
func ReceiveBoard(t *testing.T, conn *websocket.Conn, timeout time.Duration) *board.Board {
	t.Helper()

	data := ReceiveMessage(t, conn, timeout)
	var b board.Board
	if err := json.Unmarshal(data, &b); err != nil {
		t.Fatalf("Message is not a board snapshot: %v (%s)", err, data)
	}
	if b.Lanes == nil {
		t.Fatalf("Message is not a board snapshot: %s", data)
	}
	return &b
}

// ReceiveBoardUntil reads snapshots until match returns true, failing the
// test once timeout has passed in total.
func ReceiveBoardUntil(t *testing.T, conn *websocket.Conn, timeout time.Duration, match func(*board.Board) bool) *board.Board {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		b := ReceiveBoard(t, conn, time.Until(deadline))
		if match(b) {
			return b
		}
	}
	t.Fatalf("No matching snapshot within %s", timeout)
	return nil
}

// ExpectNoMessage fails the test if anything arrives on conn within timeout.
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no message, but received %s", data)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return
	}
	t.Fatalf("Unexpected error while waiting for absence of message: %v", err)
}

// CloseWebSocket sends a normal close frame and closes conn.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// MakeRequest performs an HTTP request with a five second timeout.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// AssertStatusCode checks the HTTP response status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks the HTTP response Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	if contentType := resp.Header.Get("Content-Type"); contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// WaitFor polls cond until it holds or two seconds pass.
func WaitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}
