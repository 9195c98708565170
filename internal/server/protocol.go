// Package server implements the per-session protocol state machine. Every
// handler here runs on the hub's event loop, so store and registry access
// is serialized across all connections.
package server

import (
	"encoding/json"
	"errors"
	"log"
	"strings"

	"github.com/notecoven/notecoven/internal/store"
)

// dispatch parses a raw inbound payload and routes it to the matching
// transition. Malformed payloads and unknown types are dropped without a
// reply; a misbehaving client must never take down the loop.
func (h *Hub) dispatch(client *Client, payload []byte) {
	sess := h.sessionFor(client)
	if sess == nil {
		return
	}

	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		log.Printf("Dropping malformed payload from %s: %v", client.addr, err)
		return
	}

	switch env.Type {
	case MsgAuthenticate:
		h.handleAuthenticate(client, sess, env)
	case MsgEdit:
		h.handleEdit(client, sess, env)
	case MsgRename:
		h.handleRename(client, sess, env)
	default:
		log.Printf("Dropping message with unknown type %q from %s", env.Type, client.addr)
	}
}

// handleAuthenticate moves a session from Unauthenticated to Active: it
// checks (or auto-registers) the credential, tags the session with user and
// room, replies with the room's current document, and announces presence.
func (h *Hub) handleAuthenticate(client *Client, sess *session, env Envelope) {
	if sess.user != "" {
		log.Printf("Ignoring authenticate from already-active client %s", client.id)
		return
	}

	username := strings.TrimSpace(env.Username)
	if username == "" {
		h.send(client, Envelope{Type: MsgAuthFail, Reason: "empty username"})
		return
	}

	if err := h.creds.LookupOrCreate(username, env.Secret); err != nil {
		switch {
		case errors.Is(err, store.ErrWrongSecret):
			h.send(client, Envelope{Type: MsgAuthFail, Reason: "wrong secret"})
		case errors.Is(err, store.ErrInvalidName):
			h.send(client, Envelope{Type: MsgAuthFail, Reason: "empty username"})
		default:
			log.Printf("Credential store failure for %s: %v", client.id, err)
			h.send(client, Envelope{Type: MsgAuthFail, Reason: "storage failure"})
		}
		return
	}

	room := strings.TrimSpace(env.Room)
	if room == "" {
		room = h.defaultRoom
	}

	content, version, err := h.docs.LoadOrCreate(room)
	if err != nil {
		log.Printf("Document load failure for room %q: %v", room, err)
		h.send(client, Envelope{Type: MsgAuthFail, Reason: "storage failure"})
		return
	}

	sess.user = username
	sess.room = room
	log.Printf("Client %s authenticated as %q in room %q", client.id, username, room)

	h.send(client, Envelope{
		Type:     MsgAuthOK,
		Username: username,
		Room:     room,
		Content:  content,
		Version:  version,
	})
	h.broadcastPresence(room)
}

// handleEdit replaces the room document wholesale and fans the new state
// out to the full room, sender included, so the author sees the accepted
// version. An edit before authentication is a protocol violation and is
// ignored; a storage failure is reported to the author only and leaves the
// document untouched.
func (h *Hub) handleEdit(client *Client, sess *session, env Envelope) {
	if sess.room == "" {
		log.Printf("Ignoring edit from unauthenticated client %s", client.id)
		return
	}

	version, err := h.docs.ApplyEdit(sess.room, env.Content)
	if err != nil {
		log.Printf("Edit persist failure in room %q: %v", sess.room, err)
		h.send(client, Envelope{Type: MsgEditFail, Reason: "storage failure"})
		return
	}

	h.broadcastEnvelope(sess.room, Envelope{
		Type:    MsgUpdate,
		Content: env.Content,
		Version: version,
		Author:  sess.user,
	})
}

// handleRename transfers the credential record to a new username, retags
// the session, and announces the new presence to the session's room.
func (h *Hub) handleRename(client *Client, sess *session, env Envelope) {
	if sess.user == "" {
		log.Printf("Ignoring rename from unauthenticated client %s", client.id)
		return
	}

	newName := strings.TrimSpace(env.Username)
	if err := h.creds.Rename(sess.user, newName); err != nil {
		switch {
		case errors.Is(err, store.ErrNameTaken):
			h.send(client, Envelope{Type: MsgRenameFail, Reason: "username already taken"})
		case errors.Is(err, store.ErrInvalidName):
			h.send(client, Envelope{Type: MsgRenameFail, Reason: "empty username"})
		default:
			log.Printf("Rename persist failure for %s: %v", client.id, err)
			h.send(client, Envelope{Type: MsgRenameFail, Reason: "storage failure"})
		}
		return
	}

	log.Printf("Client %s renamed %q -> %q", client.id, sess.user, newName)
	sess.user = newName

	h.send(client, Envelope{Type: MsgRenameOK, Username: newName})
	if sess.room != "" {
		h.broadcastPresence(sess.room)
	}
}

// broadcastPresence sends a fresh membership snapshot to every member of
// room. The snapshot is recomputed from the registry on every call.
func (h *Hub) broadcastPresence(room string) {
	h.broadcastEnvelope(room, Envelope{Type: MsgPresence, Users: h.presenceOf(room)})
}

// broadcastEnvelope marshals env once and delivers it to the whole room.
func (h *Hub) broadcastEnvelope(room string, env Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		log.Printf("Error encoding %s broadcast for room %q: %v", env.Type, room, err)
		return
	}
	h.broadcastToRoom(room, payload)
}

// send queues a single reply for one client.
func (h *Hub) send(client *Client, env Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		log.Printf("Error encoding %s reply for %s: %v", env.Type, client.addr, err)
		return
	}
	if !h.safeSend(client, payload) {
		h.removeFailedClients([]*Client{client})
	}
}

// sessionFor looks up a client's session entry.
func (h *Hub) sessionFor(client *Client) *session {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.sessions[client]
}
