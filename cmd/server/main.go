package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/notecoven/notecoven/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	fmt.Println("Starting NoteCoven server...")

	config := server.NewConfigFromEnv()
	server.SetConfig(config)

	if err := server.StartHub(); err != nil {
		log.Fatalf("Failed to start hub: %v", err)
	}

	mux := server.SetupRoutes()
	httpServer := server.CreateServer(config.Port, mux)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-stop:
		log.Printf("Received signal %s, shutting down...", sig)
	}

	if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	if hub := server.GetHub(); hub != nil {
		if err := hub.Shutdown(shutdownTimeout); err != nil {
			log.Printf("Hub shutdown error: %v", err)
		}
	}
}
