package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chathub/chatroom"
	"chathub/config"
	"chathub/hub"
	"chathub/identity"
	"chathub/logging"
	"chathub/throttle"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Error loading configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.Init(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, logger); err != nil {
		logger.Error("Chat server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	gin.SetMode(gin.ReleaseMode)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	store, err := openHistory(ctx, cfg)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Error closing history store", "error", err)
		}
	}()
	logger.Info("History store ready", "backend", cfg.HistoryBackend)

	room := &chatroom.ChatRoom{
		Hub:          hub.New(cfg.BroadcastBuffer),
		History:      store,
		Limiter:      throttle.NewLimiter(cfg.MinMessageInterval),
		Identities:   identity.NewDeriver(),
		Clock:        clockwork.NewRealClock(),
		Logger:       logger,
		HistoryLimit: cfg.HistoryLimit,
		ReadLimit:    cfg.MaxFrameBytes,
	}

	r, err := newRouter(cfg, room, logger)
	if err != nil {
		return err
	}
	server := &http.Server{Addr: cfg.Addr(), Handler: r}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting chat server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return err
	case <-quit:
	}
	logger.Info("Shutting down chat server...")

	ctx, cancel = context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("Chat server forced shutdown", "error", err)
	}
	// hijacked websocket connections are not tracked by Shutdown
	room.Hub.Close()
	if err := room.Wait(ctx); err != nil {
		logger.Warn("Sessions still open at shutdown", "error", err)
	}
	return nil
}
