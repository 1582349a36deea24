package wsroom

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/roomsync/roomsync/internal/room"
	"github.com/roomsync/roomsync/internal/roomservice"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades GET /ws/rooms/{name} to a WebSocket connection joined
// to that room. ?role=producer opens it as a producer instead of the
// default consumer.
type Handler struct {
	svc    *roomservice.Service
	logger *slog.Logger
}

// NewHandler builds a Handler over svc.
func NewHandler(svc *roomservice.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		http.Error(w, "room name required", http.StatusBadRequest)
		return
	}
	producer := r.URL.Query().Get("role") == "producer"

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err, "room", name)
		return
	}

	if producer {
		if _, err := h.svc.CreateRoom(name, room.OptionsInput{}); err != nil {
			h.logger.Error("create producer room failed", "error", err, "room", name)
			_ = conn.Close()
			return
		}
	}

	client := NewClient(conn, name, producer, h.svc, h.logger)
	client.Run(context.Background())
}
