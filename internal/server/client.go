// Package server manages individual WebSocket connections, handling the
// read/write pumps, keepalive, and lifecycle control for each subscriber.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rkka02/multi-agent-chat/internal/store"
)

const (
	// writeWait is the deadline for a single outbound frame write.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may stay silent before the read
	// side gives up; refreshed on every pong.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = 54 * time.Second

	// sendBufferSize bounds the per-connection outbound queue. A
	// subscriber that falls this far behind is dropped, not buffered.
	sendBufferSize = 256
)

// outbound is one queued wire frame plus the message id it carries, so the
// write pump can skip messages already replayed in the history frame.
type outbound struct {
	id    int64
	frame []byte
}

// Client is one live WebSocket subscriber. It implements Handle: the hub
// delivers persisted messages, the client encodes them into wire frames and
// owns the socket. Inbound frames are read and discarded; the live channel
// is push-only from server to client.
type Client struct {
	conn *websocket.Conn
	hub  *Hub
	room string
	log  zerolog.Logger

	send chan outbound
	done chan struct{}

	// afterID is the highest message id sent in the history frame. Set
	// before the pumps start; live frames at or below it are dropped as
	// already replayed.
	afterID int64

	maxFrameSize int64
	limiter      *inboundLimiter

	teardown sync.Once
}

// NewClient wraps an upgraded WebSocket connection joining room.
func NewClient(conn *websocket.Conn, hub *Hub, room string, maxFrameSize int64, burst int, interval time.Duration, logger zerolog.Logger) *Client {
	if conn != nil {
		conn.SetReadLimit(maxFrameSize)
	}
	return &Client{
		conn:         conn,
		hub:          hub,
		room:         room,
		log:          logger,
		send:         make(chan outbound, sendBufferSize),
		done:         make(chan struct{}),
		maxFrameSize: maxFrameSize,
		limiter:      newInboundLimiter(burst, interval),
	}
}

// Deliver queues one persisted message for the connection. It never blocks:
// a closed connection yields ErrHandleClosed and a full outbound buffer
// yields ErrSlowConsumer, both of which make the hub drop the subscriber.
func (c *Client) Deliver(m store.Message) error {
	select {
	case <-c.done:
		return ErrHandleClosed
	default:
	}

	frame, err := json.Marshal(Frame{Type: FrameMessage, Data: m})
	if err != nil {
		return err
	}

	select {
	case c.send <- outbound{id: m.ID, frame: frame}:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Close tears down the connection. Idempotent; the room is left exactly once.
func (c *Client) Close() error {
	c.close()
	return nil
}

func (c *Client) close() {
	c.teardown.Do(func() {
		close(c.done)
		c.hub.Leave(c.room, c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Debug().Err(err).Msg("error closing connection")
		}
	})
}

// SendHistory writes the backlog frame. It must be called after Join and
// before Run, while nothing else writes to the socket.
func (c *Client) SendHistory(backlog []store.Message) error {
	if n := len(backlog); n > 0 {
		c.afterID = backlog[n-1].ID
	}

	frame, err := json.Marshal(Frame{Type: FrameHistory, Data: backlog})
	if err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Run serves the connection until it closes: the write pump streams queued
// frames and pings, the read pump (this goroutine) watches for disconnect.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer c.close()

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Debug().Err(err).Msg("error setting read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadEnd(err)
			return
		}
		// Inbound frames are ignored; publishing goes through the HTTP
		// API. The limiter just keeps a chatty client from spinning us.
		if !c.limiter.allow() {
			c.log.Debug().Str("room", c.room).Msg("inbound frame rate limit exceeded")
		}
	}
}

func (c *Client) logReadEnd(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn().
			Int64("max_frame_size", c.maxFrameSize).
			Msg("inbound frame exceeded maximum size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure),
		errors.Is(err, io.EOF),
		isExpectedCloseError(err):
		c.log.Debug().Err(err).Str("room", c.room).Msg("subscriber disconnected")
	default:
		c.log.Warn().Err(err).Str("room", c.room).Msg("websocket read error")
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case out := <-c.send:
			if out.id <= c.afterID {
				// Already replayed in the history frame.
				continue
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, out.frame); err != nil {
				if !isExpectedCloseError(err) {
					c.log.Debug().Err(err).Str("room", c.room).Msg("websocket write error")
				}
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
