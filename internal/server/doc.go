// Package server implements the NoteCoven collaborative editing service:
// WebSocket session handling, the room coordination hub, and the HTTP
// surface around them.
//
// The implementation is organized into specialized files for configuration,
// hub management, the session protocol, clients, routing, and HTTP handlers
// to keep the codebase maintainable and testable as the project grows.
package server
