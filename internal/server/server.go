// Package server constructs and runs the relay's HTTP service with graceful
// shutdown of in-flight requests and live connections.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rkka02/multi-agent-chat/internal/config"
)

// Server ties the hub, store, and transport together behind one HTTP
// listener.
type Server struct {
	cfg      config.Config
	log      zerolog.Logger
	hub      *Hub
	messages MessageLog
	upgrader websocket.Upgrader

	httpSrv *http.Server
	connWG  sync.WaitGroup
}

// New creates a Server over the given hub and message log.
func New(cfg config.Config, logger zerolog.Logger, messages MessageLog, hub *Hub) *Server {
	oc := newOriginChecker(cfg.AllowedOrigins, logger)

	s := &Server{
		cfg:      cfg,
		log:      logger,
		hub:      hub,
		messages: messages,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     oc.check,
		},
	}

	s.httpSrv = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening for connections and blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpSrv.Addr).Msg("server listening")
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains in-flight HTTP requests, closes every live WebSocket
// connection via the hub, and waits for connection goroutines to finish or
// the context to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down http server")
	err := s.httpSrv.Shutdown(ctx)

	// Server.Shutdown does not touch hijacked connections; closing the
	// sockets through the hub unblocks their pumps.
	s.hub.Shutdown()

	done := make(chan struct{})
	go func() {
		s.connWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info().Msg("all connections closed")
	case <-ctx.Done():
		s.log.Warn().Msg("shutdown timeout reached before all connections closed")
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}
