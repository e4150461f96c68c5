package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/rkka02/multi-agent-chat/internal/config"
	"github.com/rkka02/multi-agent-chat/internal/server"
	"github.com/rkka02/multi-agent-chat/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("invalid configuration")
	}

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	messages, err := store.Open(ctx, cfg.DBPath, logger.With().Str("component", "store").Logger())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open message log")
	}
	defer func() {
		if err := messages.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing message log")
		}
	}()

	registry := server.NewRegistry()
	hub := server.NewHub(logger.With().Str("component", "hub").Logger(), messages, registry, cfg.HistoryLimit)
	srv := server.New(cfg, logger.With().Str("component", "http").Logger(), messages, hub)

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("db", cfg.DBPath).
			Int("history_limit", cfg.HistoryLimit).
			Msg("starting multi-agent chat hub")

		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown did not complete cleanly")
	}

	logger.Info().Msg("server stopped")
}
