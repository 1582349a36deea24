package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roomsync/roomsync/internal/api"
	"github.com/roomsync/roomsync/internal/config"
	"github.com/roomsync/roomsync/internal/roommanager"
	"github.com/roomsync/roomsync/internal/roomservice"
	"github.com/roomsync/roomsync/internal/roomstore"
	"github.com/roomsync/roomsync/internal/server"
	"github.com/roomsync/roomsync/internal/wsroom"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	store, err := roomstore.NewRedisPair(cfg.RedisURL, logger)
	if err != nil {
		slog.Error("failed to build store client pair", "error", err)
		os.Exit(1)
	}

	manager := roommanager.New(store, roommanager.Config{
		Prefix:           cfg.RoomPrefix,
		CheckInterval:    cfg.CheckInterval(),
		IdleTimeout:      cfg.IdleTimeout(),
		PublishRateLimit: cfg.PublishRateLimit,
		PublishRateBurst: cfg.PublishRateBurst,
	}, logger)

	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := manager.Start(startCtx); err != nil {
		slog.Error("failed to start room manager", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to store", "redis_url", cfg.RedisURL)

	svc := roomservice.New(manager)

	roomHandler := api.NewRoomHandler(svc, logger)
	wsHandler := wsroom.NewHandler(svc, logger)

	deps := &server.Dependencies{
		RoomHandler: roomHandler,
		WSHandler:   wsHandler,
		Logger:      logger,
	}

	srv := server.New(cfg, deps)

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-shutdownCtx.Done()
	slog.Info("shutting down gracefully...")

	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer timeoutCancel()

	if err := srv.Shutdown(timeoutCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	manager.Stop(context.Background())

	slog.Info("server stopped")
}
