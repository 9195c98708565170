// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in editor page.
package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler upgrades the HTTP connection and hands the resulting
// client to the hub, which launches the read/write pumps.
func WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	h := GetHub()
	if h == nil {
		http.Error(w, "Service unavailable.", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := NewClient(conn, h, r.RemoteAddr)

	// The hub may have shut down between GetHub and here; never leave the
	// upgrade goroutine parked on a loop that stopped draining its channels.
	select {
	case h.register <- client:
	case <-h.ctx.Done():
		_ = conn.Close()
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "NoteCoven server is running!")
}

// EditorPageHandler serves a minimal browser editor that speaks the
// collaboration protocol: authenticate, live updates, rename, presence.
func EditorPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>NoteCoven</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #doc { width: 100%; height: 400px; font-family: monospace; }
        #presence { color: #555; margin: 8px 0; }
        #status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
        input { padding: 5px; margin-right: 6px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
    </style>
</head>
<body>
    <h1>NoteCoven</h1>
    <div id="status" class="disconnected">Disconnected</div>
    <div>
        <input id="username" placeholder="username">
        <input id="secret" type="password" placeholder="secret">
        <input id="room" placeholder="room (default: main)">
        <button onclick="join()">Join</button>
    </div>
    <div id="presence"></div>
    <textarea id="doc" disabled></textarea>

    <script>
        let ws = null;
        let version = 0;
        let debounce = null;
        const doc = document.getElementById('doc');
        const statusDiv = document.getElementById('status');
        const presenceDiv = document.getElementById('presence');

        function join() {
            if (ws) { ws.close(); }
            ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
            ws.onopen = function() {
                ws.send(JSON.stringify({
                    type: 'authenticate',
                    username: document.getElementById('username').value,
                    secret: document.getElementById('secret').value,
                    room: document.getElementById('room').value
                }));
            };
            ws.onmessage = function(event) {
                const msg = JSON.parse(event.data);
                if (msg.type === 'auth-ok') {
                    statusDiv.textContent = 'Editing "' + msg.room + '" as ' + msg.username;
                    statusDiv.className = 'connected';
                    doc.disabled = false;
                    doc.value = msg.content;
                    version = msg.version;
                } else if (msg.type === 'auth-fail') {
                    statusDiv.textContent = 'Login failed: ' + msg.reason;
                    statusDiv.className = 'disconnected';
                } else if (msg.type === 'update') {
                    if (msg.version > version) {
                        version = msg.version;
                        if (document.activeElement !== doc) { doc.value = msg.content; }
                    }
                } else if (msg.type === 'presence') {
                    presenceDiv.textContent = 'Online: ' + (msg.users || []).join(', ');
                }
            };
            ws.onclose = function() {
                statusDiv.textContent = 'Disconnected';
                statusDiv.className = 'disconnected';
                doc.disabled = true;
                ws = null;
            };
        }

        doc.addEventListener('input', function() {
            clearTimeout(debounce);
            debounce = setTimeout(function() {
                if (ws && ws.readyState === WebSocket.OPEN) {
                    ws.send(JSON.stringify({type: 'edit', content: doc.value}));
                }
            }, 250);
        });
    </script>
</body>
</html>`
	if _, err := fmt.Fprint(w, html); err != nil {
		log.Printf("Error writing HTML response: %v", err)
	}
}
