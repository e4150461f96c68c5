// Package server coordinates message persistence, room-scoped broadcast, and
// subscription lifecycle via the Hub type.
package server

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/rkka02/multi-agent-chat/internal/store"
)

// MessageLog is the slice of the store the hub depends on.
type MessageLog interface {
	Append(ctx context.Context, d store.Draft) (store.Message, error)
	Fetch(ctx context.Context, room string, limit int, afterID int64) ([]store.Message, error)
}

// Hub orchestrates "append to the log, then fan out to the room's live
// subscribers" as one logical publish operation, and manages the
// subscribe/unsubscribe lifecycle. It holds no state of its own beyond the
// registry and store it delegates to.
type Hub struct {
	log          zerolog.Logger
	store        MessageLog
	registry     *Registry
	historyLimit int
}

// NewHub creates a Hub over the given message log and registry. historyLimit
// bounds the backlog replayed on Join and is clamped to the store's fetch
// range.
func NewHub(logger zerolog.Logger, st MessageLog, reg *Registry, historyLimit int) *Hub {
	return &Hub{
		log:          logger,
		store:        st,
		registry:     reg,
		historyLimit: store.ClampLimit(historyLimit),
	}
}

// Publish persists the draft and delivers the stored message to every
// current subscriber of its room. Persistence success is necessary and
// sufficient for success: the message is returned even when live delivery to
// some subscriber fails. A failed delivery unsubscribes that handle only and
// is never surfaced to the publisher.
func (h *Hub) Publish(ctx context.Context, d store.Draft) (store.Message, error) {
	msg, err := h.store.Append(ctx, d)
	if err != nil {
		return store.Message{}, err
	}

	for _, handle := range h.registry.Snapshot(msg.Room) {
		if err := handle.Deliver(msg); err != nil {
			// Delivery failure is an implicit disconnect.
			h.registry.Unsubscribe(msg.Room, handle)
			h.log.Debug().
				Str("room", msg.Room).
				Int64("id", msg.ID).
				Err(err).
				Msg("subscriber dropped after failed delivery")
		}
	}
	return msg, nil
}

// Join subscribes the handle to room and returns the backlog the caller must
// send before streaming live events. The subscribe step completes before the
// backlog fetch begins, so a subscriber observes every message it is
// entitled to: in the backlog if persisted before the fetch, in the live
// stream otherwise, with the boundary resolved by message id.
func (h *Hub) Join(ctx context.Context, room string, handle Handle) ([]store.Message, error) {
	h.registry.Subscribe(room, handle)

	backlog, err := h.store.Fetch(ctx, room, h.historyLimit, 0)
	if err != nil {
		h.registry.Unsubscribe(room, handle)
		return nil, err
	}

	h.log.Debug().
		Str("room", room).
		Int("backlog", len(backlog)).
		Int("subscribers", h.registry.Count(room)).
		Msg("subscriber joined")
	return backlog, nil
}

// Leave unsubscribes the handle from room. Safe to call more than once.
func (h *Hub) Leave(room string, handle Handle) {
	h.registry.Unsubscribe(room, handle)
	h.log.Debug().
		Str("room", room).
		Int("subscribers", h.registry.Count(room)).
		Msg("subscriber left")
}

// Shutdown drops every subscription and closes all live connections.
func (h *Hub) Shutdown() {
	handles := h.registry.Drain()
	for _, handle := range handles {
		if err := handle.Close(); err != nil && !errors.Is(err, ErrHandleClosed) {
			if !isExpectedCloseError(err) {
				h.log.Warn().Err(err).Msg("error closing connection during shutdown")
			}
		}
	}
	h.log.Info().Int("connections", len(handles)).Msg("hub shut down")
}
