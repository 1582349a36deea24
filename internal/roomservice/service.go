// Package roomservice is the Service Facade: the single entry point
// embedders (the HTTP API, the WebSocket join surface, or a Go caller
// linking this module directly) use to acquire rooms and publish data.
// It does nothing the Room Manager doesn't already do; it exists so
// every caller shares one producer-acquisition policy.
package roomservice

import (
	"context"

	"github.com/roomsync/roomsync/internal/room"
	"github.com/roomsync/roomsync/internal/roommanager"
)

// Service wraps a Manager and fixes the producer-acquisition policy:
// CreateRoom always forces EnablePublish, so every caller going through
// the facade gets the same "create means produce" semantics spec.md
// documents for the top-level API.
type Service struct {
	manager *roommanager.Manager
}

// New wraps an already-started Manager.
func New(manager *roommanager.Manager) *Service {
	return &Service{manager: manager}
}

// CreateRoom acquires name as a producer, creating it if necessary. in's
// EnablePublish field is ignored and forced true.
func (s *Service) CreateRoom(name string, in room.OptionsInput) (*room.Room, error) {
	in.EnablePublish = room.BoolPtr(true)
	return s.manager.CreateRoom(name, in)
}

// GetRoom acquires name as a consumer (or returns the existing producer
// Room if one was already created under that name).
func (s *Service) GetRoom(name string, in room.OptionsInput) (*room.Room, error) {
	return s.manager.GetRoom(name, in)
}

// Publish writes data through the stateless producer path without
// requiring the caller to hold a Room.
func (s *Service) Publish(ctx context.Context, name string, data map[string]any, in room.OptionsInput) error {
	return s.manager.Publish(ctx, name, data, in)
}
