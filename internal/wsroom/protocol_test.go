package wsroom

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFrame_CreatesCorrectEnvelope(t *testing.T) {
	before := time.Now()
	frame, err := NewFrame(EventTypeSnapshot, SnapshotPayload{FullData: map[string]any{"a": "b"}})
	after := time.Now()

	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, EventTypeSnapshot, frame.Type)
	assert.NotNil(t, frame.Payload)
	assert.True(t, !frame.Timestamp.Before(before) && !frame.Timestamp.After(after))
}

func TestNewFrame_InvalidPayload(t *testing.T) {
	frame, err := NewFrame(EventTypeError, make(chan int))
	assert.Error(t, err)
	assert.Nil(t, frame)
}

func TestUpdatePayload_RoundTrip(t *testing.T) {
	original := UpdatePayload{
		FullData: map[string]any{"state": "playing"},
		NewData:  map[string]any{"state": "playing"},
	}
	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded UpdatePayload
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original.FullData["state"], decoded.FullData["state"])
	assert.Equal(t, original.NewData["state"], decoded.NewData["state"])
}

func TestErrorPayload_RoundTrip(t *testing.T) {
	original := ErrorPayload{Code: "join_failed", Message: "room destroyed"}
	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded ErrorPayload
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original, decoded)
}

func TestFrame_JSONFormat(t *testing.T) {
	frame, err := NewFrame(EventTypeUpdate, map[string]string{"hello": "world"})
	require.NoError(t, err)

	data, err := json.Marshal(frame)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "type")
	assert.Contains(t, raw, "payload")
	assert.Contains(t, raw, "timestamp")
	assert.Equal(t, EventTypeUpdate, raw["type"])
}
