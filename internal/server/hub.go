// Package server coordinates the connection registry, room broadcasts, and
// connection cleanup for the NoteCoven collaboration service via the Hub type.
package server

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/notecoven/notecoven/internal/store"
)

// session is the per-connection protocol state. Both fields are empty until
// authentication succeeds; they are read and written only by the hub's
// event loop.
type session struct {
	user string
	room string
}

// Hub owns the connection registry and serializes all protocol processing:
// every inbound message from every connection is handled one at a time by
// the Run loop, so room documents and credentials never see interleaved
// mutations. The mutex guards registry membership for the send path, which
// snapshots members outside the loop during shutdown.
type Hub struct {
	sessions   map[*Client]*session
	inbound    chan inbound
	register   chan *Client
	unregister chan *Client

	creds       *store.CredentialStore
	docs        *store.DocumentStore
	defaultRoom string

	mutex  sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a Hub bound to the given stores. The returned Hub is ready
// to manage connections once Run is started in its own goroutine.
func NewHub(creds *store.CredentialStore, docs *store.DocumentStore, defaultRoom string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		sessions:    make(map[*Client]*session),
		inbound:     make(chan inbound, 64),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		creds:       creds,
		docs:        docs,
		defaultRoom: defaultRoom,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// Run is the hub's event loop: registration, unregistration, and protocol
// dispatch all happen here, one event at a time. Call in its own goroutine;
// it exits when Shutdown cancels the hub context.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}
			h.addSession(client)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			if room := h.dropSession(client); room != "" {
				h.broadcastPresence(room)
			}

		case msg := <-h.inbound:
			h.dispatch(msg.client, msg.payload)
		}
	}
}

// addSession enters a client into the registry with an unauthenticated,
// roomless session.
func (h *Hub) addSession(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.sessions[client] = &session{}
	count := len(h.sessions)
	h.mutex.Unlock()
	log.Printf("Client %s registered from %s. Total clients: %d", client.id, client.addr, count)
}

// dropSession removes a client from the registry and returns the room its
// session was last tagged with, so the caller can recompute presence.
func (h *Hub) dropSession(client *Client) string {
	h.mutex.Lock()
	sess, ok := h.sessions[client]
	if !ok {
		h.mutex.Unlock()
		return ""
	}
	delete(h.sessions, client)
	client.closed = true
	count := len(h.sessions)
	h.mutex.Unlock()

	// Close the channel after releasing the lock.
	close(client.send)
	log.Printf("Client %s unregistered from %s. Total clients: %d", client.id, client.addr, count)
	return sess.room
}

// membersOf returns the clients currently tagged with room.
func (h *Hub) membersOf(room string) []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	members := make([]*Client, 0, len(h.sessions))
	for client, sess := range h.sessions {
		if sess.room == room {
			members = append(members, client)
		}
	}
	return members
}

// presenceOf recomputes the sorted list of authenticated usernames tagged
// with room, fresh from the registry on every call.
func (h *Hub) presenceOf(room string) []string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	users := make([]string, 0, len(h.sessions))
	for _, sess := range h.sessions {
		if sess.room == room && sess.user != "" {
			users = append(users, sess.user)
		}
	}
	sort.Strings(users)
	return users
}

// safeSend queues a payload on a client's send channel without blocking.
// Returns false when the client is gone or its buffer is full.
func (h *Hub) safeSend(client *Client, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeSend: %v", r)
		}
	}()

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.sessions[client]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// broadcastToRoom delivers payload to every live member of room. Members
// whose send buffer is full are dropped from the registry so a slow client
// never stalls the rest of the room; their rooms get a fresh presence
// snapshot afterwards.
func (h *Hub) broadcastToRoom(room string, payload []byte) {
	var failed []*Client
	for _, client := range h.membersOf(room) {
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}
	h.removeFailedClients(failed)
}

// removeFailedClients evicts clients that could not accept a delivery and
// recomputes presence for the rooms they leave behind.
func (h *Hub) removeFailedClients(failed []*Client) {
	if len(failed) == 0 {
		return
	}

	rooms := make(map[string]struct{})
	for _, client := range failed {
		room := h.dropSession(client)
		if room != "" {
			rooms[room] = struct{}{}
		}
		log.Printf("Client %s from %s removed due to full send buffer", client.id, client.addr)
	}
	for room := range rooms {
		h.broadcastPresence(room)
	}
}

// shutdownClients gracefully closes all active client connections.
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.sessions))
	for client := range h.sessions {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error closing client connection from %s: %v", client.addr, err)
				}
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all client
// goroutines to finish, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
