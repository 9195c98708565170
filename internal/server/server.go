// Package server constructs and starts the NoteCoven HTTP service and the
// hub behind it, with helpers that apply sensible production defaults.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/notecoven/notecoven/internal/store"
)

var (
	hubMu sync.RWMutex
	hub   *Hub
)

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartHub opens the durable stores under the configured data directory,
// builds a fresh hub on top of them, and starts its event loop. Any
// previously running hub is replaced; its connections keep their old hub
// until they disconnect. Call before starting the HTTP server.
func StartHub() error {
	cfg := currentConfig()

	creds, err := store.OpenCredentialStore(filepath.Join(cfg.DataDir, "users.json"))
	if err != nil {
		return fmt.Errorf("opening credential store: %w", err)
	}
	docs, err := store.NewDocumentStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening document store: %w", err)
	}

	h := NewHub(creds, docs, cfg.DefaultRoom)

	hubMu.Lock()
	hub = h
	hubMu.Unlock()

	go h.Run()
	log.Println("Hub started and ready to manage collaboration sessions")
	return nil
}

// GetHub returns the running hub instance for shutdown coordination.
func GetHub() *Hub {
	hubMu.RLock()
	defer hubMu.RUnlock()
	return hub
}

// StartServer starts the HTTP server and begins listening for connections.
// It returns an error if the server fails to start.
func StartServer(server *http.Server) error {
	fmt.Printf("Server listening on port %s\n", server.Addr)
	return server.ListenAndServe()
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active connections.
// It waits for active connections to close or until the timeout is reached.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	log.Println("Shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		return err
	}

	log.Println("HTTP server shutdown completed")
	return nil
}
