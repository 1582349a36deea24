package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/roomsync/roomsync/internal/room"
	"github.com/roomsync/roomsync/internal/roommanager"
	"github.com/roomsync/roomsync/internal/roomservice"
)

// RoomHandler exposes the Service Facade over plain HTTP, for callers
// that want request/response semantics instead of a live WebSocket feed.
type RoomHandler struct {
	svc    *roomservice.Service
	logger *slog.Logger
}

func NewRoomHandler(svc *roomservice.Service, logger *slog.Logger) *RoomHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoomHandler{svc: svc, logger: logger}
}

type createRoomInput struct {
	HistoryLength  *int  `json:"history_length,omitempty"`
	CleanOnStartUp *bool `json:"clean_on_start_up,omitempty"`
}

// CreateRoom godoc
//
//	@Summary		Create a producer room
//	@Description	Acquires name as a producer, creating it if necessary
//	@Tags			rooms
//	@Accept			json
//	@Produce		json
//	@Param			name	path		string			true	"room name"
//	@Param			request	body		createRoomInput	false	"room options"
//	@Success		201		{object}	map[string]bool
//	@Failure		400		{object}	map[string]string
//	@Router			/rooms/{name} [post]
func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var input createRoomInput
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	_, err := h.svc.CreateRoom(name, room.OptionsInput{
		HistoryLength:  input.HistoryLength,
		CleanOnStartUp: input.CleanOnStartUp,
	})
	if err != nil {
		h.handleRoomError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]bool{"created": true})
}

// GetRoom godoc
//
//	@Summary		Get a room's current snapshot
//	@Tags			rooms
//	@Produce		json
//	@Param			name	path		string	true	"room name"
//	@Success		200		{object}	map[string]interface{}
//	@Failure		400		{object}	map[string]string
//	@Router			/rooms/{name} [get]
func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	rm, err := h.svc.GetRoom(name, room.OptionsInput{})
	if err != nil {
		h.handleRoomError(w, err)
		return
	}

	data, err := rm.GetFullData(r.Context())
	if err != nil {
		h.logger.Error("get full data failed", "error", err, "room", name)
		writeError(w, http.StatusInternalServerError, "failed to fetch room data")
		return
	}

	writeJSON(w, http.StatusOK, data)
}

// GetHistory godoc
//
//	@Summary		Get a room's bounded history
//	@Tags			rooms
//	@Produce		json
//	@Param			name	path		string	true	"room name"
//	@Success		200		{array}		map[string]interface{}
//	@Failure		400		{object}	map[string]string
//	@Router			/rooms/{name}/history [get]
func (h *RoomHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	rm, err := h.svc.GetRoom(name, room.OptionsInput{})
	if err != nil {
		h.handleRoomError(w, err)
		return
	}

	history, err := rm.GetHistoryData(r.Context())
	if err != nil {
		h.logger.Error("get history failed", "error", err, "room", name)
		writeError(w, http.StatusInternalServerError, "failed to fetch room history")
		return
	}

	writeJSON(w, http.StatusOK, history)
}

// Publish godoc
//
//	@Summary		Publish data into a room
//	@Tags			rooms
//	@Accept			json
//	@Produce		json
//	@Param			name	path		string					true	"room name"
//	@Param			request	body		map[string]interface{}	true	"publish payload"
//	@Success		202		{object}	map[string]bool
//	@Failure		400		{object}	map[string]string
//	@Router			/rooms/{name}/publish [post]
func (h *RoomHandler) Publish(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.Publish(r.Context(), name, data, room.OptionsInput{}); err != nil {
		h.handleRoomError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]bool{"published": true})
}

func (h *RoomHandler) handleRoomError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, roommanager.ErrPatternNotAllowedForProducer):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("room operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
