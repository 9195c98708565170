// Package integration contains end-to-end tests for the NoteCoven server.
//
// These tests exercise the complete system behavior with real HTTP servers
// and WebSocket connections: authentication, room joins, live edits,
// renames, presence, and persistence across them.
package integration

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/notecoven/notecoven/internal/server"
)

// collabServer is a fully wired test instance: HTTP server, hub, and a
// private data directory.
type collabServer struct {
	httpServer *httptest.Server
	wsURL      string
	dataDir    string
}

// startCollabServer boots the service against a temp data directory and
// registers cleanup that restores the default configuration.
func startCollabServer(t *testing.T) *collabServer {
	t.Helper()

	testServer := httptest.NewServer(server.SetupRoutes())
	t.Cleanup(testServer.Close)

	dataDir := t.TempDir()
	cfg := server.NewConfig()
	cfg.DataDir = dataDir
	cfg.AllowedOrigins = append([]string{testServer.URL}, cfg.AllowedOrigins...)
	server.SetConfig(cfg)
	t.Cleanup(func() { server.SetConfig(nil) })

	if err := server.StartHub(); err != nil {
		t.Fatalf("Failed to start hub: %v", err)
	}
	t.Cleanup(func() {
		if hub := server.GetHub(); hub != nil {
			_ = hub.Shutdown(2 * time.Second)
		}
	})

	u, err := url.Parse(testServer.URL)
	if err != nil {
		t.Fatalf("Failed to parse test server URL: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"

	return &collabServer{httpServer: testServer, wsURL: u.String(), dataDir: dataDir}
}

// dial opens a WebSocket connection with an allowed Origin header.
func (s *collabServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	header.Set("Origin", s.httpServer.URL)

	conn, resp, err := websocket.DefaultDialer.Dial(s.wsURL, header)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = resp.Body.Close()
	return conn
}

func writeEnvelope(t *testing.T, conn *websocket.Conn, env server.Envelope) {
	t.Helper()
	payload, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Failed to marshal %s message: %v", env.Type, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("Failed to send %s message: %v", env.Type, err)
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) server.Envelope {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var env server.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		t.Fatalf("Failed to parse message %q: %v", payload, err)
	}
	return env
}

// expectEnvelope reads the next message and fails unless it has wantType.
func expectEnvelope(t *testing.T, conn *websocket.Conn, wantType string) server.Envelope {
	t.Helper()
	env := readEnvelope(t, conn)
	if env.Type != wantType {
		t.Fatalf("Expected %q message, got %q (%+v)", wantType, env.Type, env)
	}
	return env
}

func expectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, payload, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no message, but received %q", payload)
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("Unexpected error while waiting for absence of message: %v", err)
}

// authenticate performs the login handshake and returns the auth reply.
func authenticate(t *testing.T, conn *websocket.Conn, username, secret, room string) server.Envelope {
	t.Helper()
	writeEnvelope(t, conn, server.Envelope{
		Type:     server.MsgAuthenticate,
		Username: username,
		Secret:   secret,
		Room:     room,
	})
	return readEnvelope(t, conn)
}

func equalUsers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
