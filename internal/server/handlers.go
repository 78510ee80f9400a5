// Package server exposes HTTP handlers, including WebSocket upgrades, health
// and readiness checks, and the built-in test page.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Relay server is running!")
}

// ReadyHandler answers 200 while the relay accepts clients and 503 before
// the listener is bound or once shutdown has started.
func (s *Server) ReadyHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if !s.Accepting() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprint(w, "not ready")
		return
	}
	_, _ = fmt.Fprint(w, "ready")
}

// Stats is the body served by StatsHandler.
type Stats struct {
	Sessions  int  `json:"sessions"`
	Accepting bool `json:"accepting"`
}

// StatsHandler reports the number of registered sessions.
func (s *Server) StatsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	stats := Stats{
		Sessions:  s.registry.Count(),
		Accepting: s.Accepting(),
	}
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		s.log.Warnw("Error writing stats response", "error", err)
	}
}

// WebSocketHandler upgrades the request and runs the connection as an
// ordinary relay session.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	if !s.coordinator.Running() {
		http.Error(w, "Server is shutting down.", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	s.launch(newWSConnection(conn, r.RemoteAddr, s.cfg.MaxLineBytes, s.cfg.WriteTimeout))
}

// TestPageHandler serves an HTML page that joins the relay over WebSocket.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>Relay WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #lines { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
    </style>
</head>
<body>
    <h1>Relay WebSocket Test</h1>
    <div>
        <input type="text" id="lineInput" placeholder="Type a line (or quit)..." disabled>
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div id="lines"></div>

    <script>
        let ws = null;
        const linesDiv = document.getElementById('lines');
        const lineInput = document.getElementById('lineInput');
        const connectButton = document.getElementById('connectButton');

        function addLine(text) {
            const el = document.createElement('div');
            el.textContent = text;
            linesDiv.appendChild(el);
            linesDiv.scrollTop = linesDiv.scrollHeight;
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
                return;
            }
            ws = new WebSocket('ws://' + location.host + '/ws');
            ws.onopen = function() { lineInput.disabled = false; connectButton.textContent = 'Disconnect'; };
            ws.onmessage = function(event) { addLine(event.data); };
            ws.onclose = function() {
                addLine('Disconnected from server.');
                lineInput.disabled = true;
                connectButton.textContent = 'Connect';
                ws = null;
            };
        }

        lineInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter' && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(lineInput.value);
                addLine('> ' + lineInput.value);
                lineInput.value = '';
            }
        });
    </script>
</body>
</html>`
	_, _ = fmt.Fprint(w, html)
}
