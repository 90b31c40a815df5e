package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// handleWebSocket upgrades the request and runs a Session on it until the
// peer leaves or the server shuts down.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "addr", r.RemoteAddr, "err", err)
		return
	}

	session := NewSession(conn, s.hub, s.store, r.RemoteAddr, s.session)
	if err := session.Serve(s.ctx); err != nil && !errors.Is(err, errHubClosed) {
		slog.Warn("session ended with error", "addr", r.RemoteAddr, "err", err)
	}
}

type persistenceStatus struct {
	LastSavedAt         *time.Time `json:"last_saved_at"`
	LastError           string     `json:"last_error,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	Saves               uint64     `json:"saves"`
}

type healthResponse struct {
	Status      string             `json:"status"`
	Sessions    int                `json:"sessions"`
	Version     uint64             `json:"version"`
	Recoveries  uint64             `json:"recoveries"`
	Persistence *persistenceStatus `json:"persistence,omitempty"`
}

// handleHealth reports session and persistence state. It answers 503 while
// saves are failing.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:     "ok",
		Sessions:   s.hub.SessionCount(),
		Version:    s.store.Version(),
		Recoveries: s.store.Recoveries(),
	}
	status := http.StatusOK

	if s.health != nil {
		h := s.health.Health()
		p := &persistenceStatus{
			LastError:           h.LastError,
			ConsecutiveFailures: h.ConsecutiveFailures,
			Saves:               h.Saves,
		}
		if !h.LastSavedAt.IsZero() {
			saved := h.LastSavedAt.UTC()
			p.LastSavedAt = &saved
		}
		resp.Persistence = p
		if !h.Healthy() {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, resp)
}

// handleBoard returns the current board.
func (s *Server) handleBoard(w http.ResponseWriter, _ *http.Request) {
	snapshot, err := s.store.SnapshotJSON()
	if err != nil {
		slog.Error("error encoding board", "err", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(snapshot); err != nil {
		slog.Debug("error writing board response", "err", err)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "tinyretro server is running!")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("error writing json response", "err", err)
	}
}

// handleTestPage serves a bare page for driving the board by hand: it shows
// the latest snapshot and sends whatever action JSON is typed in.
func handleTestPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		slog.Debug("error writing test page", "err", err)
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>tinyretro websocket test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #board {
            border: 1px solid #ccc;
            height: 320px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
            white-space: pre;
            font-family: monospace;
        }
        #log { color: gray; font-size: 0.9em; }
        textarea { width: 520px; height: 60px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>tinyretro websocket test</h1>

    <div id="status" class="status disconnected">Disconnected</div>
    <button id="connectButton" onclick="toggleConnection()">Connect</button>

    <div>
        <textarea id="action">{"type":"UpvoteItem","lane_id":"went-well","id":"1"}</textarea><br>
        <button onclick="sendAction()">Send action</button>
        <button onclick="preset('AddItem')">AddItem</button>
        <button onclick="preset('AddLane')">AddLane</button>
        <button onclick="preset('UpvoteItem')">UpvoteItem</button>
    </div>

    <div id="board"></div>
    <div id="log"></div>

    <script>
        let ws = null;
        const boardDiv = document.getElementById('board');
        const logDiv = document.getElementById('log');
        const statusDiv = document.getElementById('status');
        const connectButton = document.getElementById('connectButton');
        const actionInput = document.getElementById('action');

        const presets = {
            AddItem: {type: 'AddItem', lane_id: 'went-well', body: 'New idea'},
            AddLane: {type: 'AddLane', title: 'Shout-outs'},
            UpvoteItem: {type: 'UpvoteItem', lane_id: 'went-well', id: '1'},
        };

        function log(text) {
            const line = document.createElement('div');
            line.textContent = new Date().toLocaleTimeString() + ' ' + text;
            logDiv.prepend(line);
        }

        function setConnected(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');
            ws.onopen = () => { log('connected'); setConnected(true); };
            ws.onmessage = (event) => {
                const msg = JSON.parse(event.data);
                if (msg.type === 'Rejected') {
                    log('rejected ' + msg.action + ': ' + msg.code);
                    return;
                }
                boardDiv.textContent = JSON.stringify(msg, null, 2);
            };
            ws.onclose = () => { log('connection closed'); setConnected(false); ws = null; };
            ws.onerror = () => { log('connection error'); };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function preset(name) {
            actionInput.value = JSON.stringify(presets[name]);
        }

        function sendAction() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(actionInput.value);
                log('sent ' + actionInput.value);
            }
        }
    </script>
</body>
</html>`
