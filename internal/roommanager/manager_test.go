package roommanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomsync/roomsync/internal/room"
	"github.com/roomsync/roomsync/internal/roomstore"
)

func newTestManager(t *testing.T, cfg Config) (*Manager, *roomstore.Fake) {
	t.Helper()
	store := roomstore.NewFake()
	m := New(store, cfg, nil)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { m.Stop(context.Background()) })
	return m, store
}

// S5: a pattern name cannot be acquired as a producer.
func TestManager_CreateRoomRejectsPatternProducer(t *testing.T) {
	m, _ := newTestManager(t, Config{})
	_, err := m.CreateRoom("p:*", room.OptionsInput{EnablePublish: room.BoolPtr(true)})
	assert.ErrorIs(t, err, ErrPatternNotAllowedForProducer)
}

func TestManager_GetRoomReturnsSingleton(t *testing.T) {
	m, _ := newTestManager(t, Config{})
	a, err := m.GetRoom("r", room.OptionsInput{})
	require.NoError(t, err)
	b, err := m.GetRoom("r", room.OptionsInput{})
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, m.roomCount())
}

func TestManager_CreateRoomUpgradesExistingToProducer(t *testing.T) {
	m, _ := newTestManager(t, Config{})
	consumer, err := m.GetRoom("r", room.OptionsInput{})
	require.NoError(t, err)
	assert.False(t, consumer.IsProducer())

	producer, err := m.CreateRoom("r", room.OptionsInput{EnablePublish: room.BoolPtr(true)})
	require.NoError(t, err)
	assert.Same(t, consumer, producer)
	assert.True(t, consumer.IsProducer())
}

func TestManager_PublishWritesThroughStatelessPath(t *testing.T) {
	m, store := newTestManager(t, Config{})
	err := m.Publish(context.Background(), "r", map[string]any{"a": "b"}, room.OptionsInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Calls().HSet)
}

// S4: idle reaping destroys a callback-less consumer room but exempts
// producers and rooms with active callbacks.
func TestManager_ReapOnceExemptsProducersAndActiveConsumers(t *testing.T) {
	m, _ := newTestManager(t, Config{IdleTimeout: time.Millisecond})

	producer, err := m.CreateRoom("producer-room", room.OptionsInput{EnablePublish: room.BoolPtr(true)})
	require.NoError(t, err)
	require.NoError(t, producer.Publish(context.Background(), map[string]any{"x": 1.0}, nil))

	idleConsumer, err := m.GetRoom("idle-room", room.OptionsInput{})
	require.NoError(t, err)
	require.NoError(t, idleConsumer.Join(context.Background(), "u", func(map[string]any, map[string]any, any) {}, nil))
	idleConsumer.Leave("u")

	activeConsumer, err := m.GetRoom("active-room", room.OptionsInput{})
	require.NoError(t, err)
	require.NoError(t, activeConsumer.Join(context.Background(), "u", func(map[string]any, map[string]any, any) {}, nil))

	time.Sleep(5 * time.Millisecond)
	m.reapOnce()

	assert.Equal(t, 2, m.roomCount())
	_, producerStillTracked := m.rooms["producer-room"]
	_, activeStillTracked := m.rooms["active-room"]
	assert.True(t, producerStillTracked)
	assert.True(t, activeStillTracked)
	_, idleStillTracked := m.rooms["idle-room"]
	assert.False(t, idleStillTracked)
}
