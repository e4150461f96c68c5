// Package server defines the shared frame types and connection-handle
// contract used across registry, hub, and transport logic.
package server

import (
	"errors"
	"strings"

	"github.com/rkka02/multi-agent-chat/internal/store"
)

// Wire frame types pushed to live subscribers.
const (
	FrameHistory = "history"
	FrameMessage = "message"
)

// Frame is one server-to-client event on a live connection.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Handle is an opaque reference to one live connection. The registry and hub
// use it without knowledge of transport details.
type Handle interface {
	// Deliver pushes one persisted message toward the connection. It must
	// not block; a non-nil error means the handle is dead or too slow and
	// the hub drops it from the room.
	Deliver(m store.Message) error

	// Close tears down the underlying connection.
	Close() error
}

var (
	// ErrHandleClosed is returned by Deliver on a torn-down connection.
	ErrHandleClosed = errors.New("connection closed")

	// ErrSlowConsumer is returned by Deliver when the connection's outbound
	// buffer is full. The subscriber is dropped rather than buffered
	// indefinitely.
	ErrSlowConsumer = errors.New("outbound buffer full")
)

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
