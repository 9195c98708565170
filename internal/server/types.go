// Package server defines the wire message types exchanged with clients and
// small helpers shared across hub and client logic.
package server

import "strings"

// Message type tags. Inbound: MsgAuthenticate, MsgEdit, MsgRename.
// Everything else is outbound only.
const (
	MsgAuthenticate = "authenticate"
	MsgAuthOK       = "auth-ok"
	MsgAuthFail     = "auth-fail"
	MsgEdit         = "edit"
	MsgEditFail     = "edit-fail"
	MsgUpdate       = "update"
	MsgRename       = "rename"
	MsgRenameOK     = "rename-ok"
	MsgRenameFail   = "rename-fail"
	MsgPresence     = "presence"
)

// Envelope is the JSON payload for every protocol message, in both
// directions. Only the fields relevant to a given Type are populated.
// Content and Users always serialize: an empty document and an empty
// room are valid states, and receivers must see the keys.
type Envelope struct {
	Type     string   `json:"type"`
	Username string   `json:"username,omitempty"`
	Secret   string   `json:"secret,omitempty"`
	Room     string   `json:"room,omitempty"`
	Content  string   `json:"content"`
	Version  int      `json:"version,omitempty"`
	Author   string   `json:"author,omitempty"`
	Reason   string   `json:"reason,omitempty"`
	Users    []string `json:"users"`
}

// inbound carries a raw client payload into the hub's event loop, where all
// protocol processing is serialized.
type inbound struct {
	client  *Client
	payload []byte
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
