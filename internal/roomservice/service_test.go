package roomservice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomsync/roomsync/internal/room"
	"github.com/roomsync/roomsync/internal/roommanager"
	"github.com/roomsync/roomsync/internal/roomstore"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store := roomstore.NewFake()
	m := roommanager.New(store, roommanager.Config{}, nil)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { m.Stop(context.Background()) })
	return New(m)
}

func TestService_CreateRoomForcesProducer(t *testing.T) {
	svc := newTestService(t)
	r, err := svc.CreateRoom("r", room.OptionsInput{EnablePublish: room.BoolPtr(false)})
	require.NoError(t, err)
	assert.True(t, r.IsProducer())
}

func TestService_GetRoomDoesNotForceProducer(t *testing.T) {
	svc := newTestService(t)
	r, err := svc.GetRoom("r", room.OptionsInput{})
	require.NoError(t, err)
	assert.False(t, r.IsProducer())
}

func TestService_PublishRoundTrip(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.Publish(context.Background(), "r", map[string]any{"a": "b"}, room.OptionsInput{}))

	r, err := svc.GetRoom("r", room.OptionsInput{})
	require.NoError(t, err)
	data, err := r.GetFullData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b", data["a"])
}
