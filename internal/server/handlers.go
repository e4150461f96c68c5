// Package server exposes the JSON API handlers and the WebSocket upgrade
// endpoint that feed the hub.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rkka02/multi-agent-chat/internal/store"
)

// defaultFetchLimit applies when GET /api/messages omits limit.
const defaultFetchLimit = 200

type postMessageRequest struct {
	TS      string `json:"ts,omitempty"`
	Room    string `json:"room"`
	Agent   string `json:"agent"`
	Kind    string `json:"kind"`
	Content string `json:"content"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Debug().Err(err).Msg("error writing response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handlePostMessage persists a message and fans it out to the room's live
// subscribers. Validation failures are client errors; delivery failures to
// individual subscribers never affect the response.
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg, err := s.hub.Publish(r.Context(), store.Draft{
		TS:      req.TS,
		Room:    req.Room,
		Agent:   req.Agent,
		Kind:    req.Kind,
		Content: req.Content,
	})
	if err != nil {
		if errors.Is(err, store.ErrValidation) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error().Err(err).Msg("publish failed")
		s.writeError(w, http.StatusInternalServerError, "failed to store message")
		return
	}

	s.writeJSON(w, http.StatusCreated, msg)
}

// handleListMessages returns messages for a room in ascending id order,
// optionally resuming after a cursor. An unknown room yields an empty array.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	room := q.Get("room")
	if room == "" {
		room = store.DefaultRoom
	}

	limit := defaultFetchLimit
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = parsed
	}

	var afterID int64
	if raw := q.Get("after_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, "after_id must be a non-negative integer")
			return
		}
		afterID = parsed
	}

	msgs, err := s.messages.Fetch(r.Context(), room, limit, afterID)
	if err != nil {
		s.log.Error().Err(err).Str("room", room).Msg("fetch failed")
		s.writeError(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}

	s.writeJSON(w, http.StatusOK, msgs)
}

// handleWS upgrades the connection and streams the room: one history frame,
// then live message frames until the client goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	if room == "" {
		room = store.DefaultRoom
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	clientLog := s.log.With().Str("room", room).Str("remote", r.RemoteAddr).Logger()
	client := NewClient(conn, s.hub,
		room,
		s.cfg.MaxFrameSize,
		s.cfg.RateLimitBurst,
		s.cfg.RateLimitInterval,
		clientLog,
	)

	// Subscribe first, then fetch: anything persisted before the fetch is
	// in the backlog, anything after lands in the live buffer. The write
	// pump drops buffered ids already covered by the history frame.
	backlog, err := s.hub.Join(r.Context(), room, client)
	if err != nil {
		clientLog.Error().Err(err).Msg("join failed")
		_ = conn.Close()
		return
	}

	if err := client.SendHistory(backlog); err != nil {
		if !isExpectedCloseError(err) {
			clientLog.Debug().Err(err).Msg("error sending history frame")
		}
		_ = client.Close()
		return
	}

	s.connWG.Add(1)
	defer s.connWG.Done()
	client.Run()
}
