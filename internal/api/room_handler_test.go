package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomsync/roomsync/internal/roommanager"
	"github.com/roomsync/roomsync/internal/roomservice"
	"github.com/roomsync/roomsync/internal/roomstore"
)

func newTestHandler(t *testing.T) *RoomHandler {
	t.Helper()
	store := roomstore.NewFake()
	m := roommanager.New(store, roommanager.Config{}, nil)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { m.Stop(context.Background()) })
	return NewRoomHandler(roomservice.New(m), nil)
}

func withPathValue(r *http.Request, key, value string) *http.Request {
	r.SetPathValue(key, value)
	return r
}

func TestRoomHandler_PublishThenGetRoom(t *testing.T) {
	h := newTestHandler(t)

	body, _ := json.Marshal(map[string]any{"score": 10})
	req := withPathValue(httptest.NewRequest(http.MethodPost, "/rooms/r/publish", bytes.NewReader(body)), "name", "r")
	rec := httptest.NewRecorder()
	h.Publish(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	req2 := withPathValue(httptest.NewRequest(http.MethodGet, "/rooms/r", nil), "name", "r")
	rec2 := httptest.NewRecorder()
	h.GetRoom(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &got))
	assert.Equal(t, "10", got["score"])
}

func TestRoomHandler_CreateRoom(t *testing.T) {
	h := newTestHandler(t)

	req := withPathValue(httptest.NewRequest(http.MethodPost, "/rooms/r", nil), "name", "r")
	rec := httptest.NewRecorder()
	h.CreateRoom(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
}
