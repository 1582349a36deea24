package server

import (
	"log/slog"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/roomsync/roomsync/internal/api"
	"github.com/roomsync/roomsync/internal/config"
	"github.com/roomsync/roomsync/internal/wsroom"
)

// Dependencies holds all service dependencies for the server
type Dependencies struct {
	RoomHandler *api.RoomHandler
	WSHandler   *wsroom.Handler
	Logger      *slog.Logger
}

// New creates an HTTP server with all routes configured.
func New(cfg *config.Config, deps *Dependencies) *http.Server {
	mux := http.NewServeMux()

	registerRoutes(mux, deps)

	handler := chainMiddleware(mux,
		requestIDMiddleware,
		corsMiddleware(cfg),
		loggingMiddleware(deps.Logger),
		recoverMiddleware(deps.Logger),
	)

	return &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	// =========================================================================
	// Room REST facade
	// =========================================================================
	mux.HandleFunc("POST /rooms/{name}", deps.RoomHandler.CreateRoom)
	mux.HandleFunc("GET /rooms/{name}", deps.RoomHandler.GetRoom)
	mux.HandleFunc("GET /rooms/{name}/history", deps.RoomHandler.GetHistory)
	mux.HandleFunc("POST /rooms/{name}/publish", deps.RoomHandler.Publish)

	// =========================================================================
	// WebSocket join surface
	// =========================================================================
	mux.Handle("GET /ws/rooms/{name}", deps.WSHandler)

	// =========================================================================
	// API docs
	// =========================================================================
	mux.Handle("GET /swagger/", httpSwagger.WrapHandler)
}
