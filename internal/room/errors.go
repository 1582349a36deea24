package room

import "errors"

var (
	// ErrNotAProducer is returned by Publish when the room was never
	// acquired with EnablePublish set.
	ErrNotAProducer = errors.New("room: not a producer")

	// ErrPatternRoom is returned by Publish on a pattern (wildcard) room;
	// pattern rooms are consumer-only and never write to the store.
	ErrPatternRoom = errors.New("room: pattern rooms cannot publish")

	// ErrDestroyed is returned by any operation attempted on a destroyed
	// room.
	ErrDestroyed = errors.New("room: destroyed")
)
