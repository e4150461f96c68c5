// Package store persists chat messages in an append-only, strictly ordered
// log. Messages are immutable once appended; ids are assigned by the store
// and define the total order within a room.
package store

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// Field bounds enforced on append.
const (
	MaxRoomLen    = 64
	MaxAgentLen   = 64
	MaxKindLen    = 32
	MaxContentLen = 4000
)

// Fetch limits. Requested limits are clamped into [MinFetchLimit, MaxFetchLimit].
const (
	MinFetchLimit = 1
	MaxFetchLimit = 1000
)

// DefaultRoom is used when a publish or fetch omits the room.
const DefaultRoom = "default"

// DefaultKind is used when a publish omits the kind.
const DefaultKind = "status"

var (
	// ErrValidation marks a message rejected before persistence because a
	// field is empty or over its length bound.
	ErrValidation = errors.New("invalid message")

	// ErrStorage marks a failure in the durability layer. The publish or
	// fetch call fails; the process does not.
	ErrStorage = errors.New("storage error")
)

// Message is one persisted chat message. Immutable after Append.
type Message struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts"`
	Room    string `json:"room"`
	Agent   string `json:"agent"`
	Kind    string `json:"kind"`
	Content string `json:"content"`
}

// Draft is the caller-supplied part of a message, before the store assigns
// an id. TS is optional; when empty the store uses append-time UTC.
type Draft struct {
	TS      string
	Room    string
	Agent   string
	Kind    string
	Content string
}

// normalize applies defaults and validates field constraints. It returns the
// draft ready for persistence or an error wrapping ErrValidation.
func (d Draft) normalize(now func() time.Time) (Draft, error) {
	if d.Room == "" {
		d.Room = DefaultRoom
	}
	if d.Kind == "" {
		d.Kind = DefaultKind
	}
	if d.TS == "" {
		d.TS = now().UTC().Format(time.RFC3339Nano)
	}

	if err := checkField("room", d.Room, MaxRoomLen); err != nil {
		return Draft{}, err
	}
	if err := checkField("agent", d.Agent, MaxAgentLen); err != nil {
		return Draft{}, err
	}
	if err := checkField("kind", d.Kind, MaxKindLen); err != nil {
		return Draft{}, err
	}
	if err := checkField("content", d.Content, MaxContentLen); err != nil {
		return Draft{}, err
	}
	return d, nil
}

func checkField(name, value string, maxLen int) error {
	if value == "" {
		return fmt.Errorf("%w: %s must not be empty", ErrValidation, name)
	}
	if utf8.RuneCountInString(value) > maxLen {
		return fmt.Errorf("%w: %s exceeds %d characters", ErrValidation, name, maxLen)
	}
	return nil
}

// ClampLimit bounds a requested fetch limit into the supported range.
func ClampLimit(limit int) int {
	if limit < MinFetchLimit {
		return MinFetchLimit
	}
	if limit > MaxFetchLimit {
		return MaxFetchLimit
	}
	return limit
}
