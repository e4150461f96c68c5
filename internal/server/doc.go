// Package server implements the core of the multi-agent chat relay: the room
// registry, the broadcast hub, and the HTTP/WebSocket transport.
//
// The implementation is organized into specialized files for the registry,
// hub, client connections, routing, and HTTP handlers to keep the codebase
// maintainable and testable as the project grows.
package server
