package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStackDeleteAll_CopiesIDs(t *testing.T) {
	ids := []string{"S1", "S2"}
	ev := NewStackDeleteAll(ids, "U1")
	ids[0] = "mutated"

	payload, ok := ev.Payload.(StackDeleteAllEvent)
	require.True(t, ok)
	assert.Equal(t, []string{"S1", "S2"}, payload.StackIDs)
}

func TestEvent_PayloadObjectRoundTrip(t *testing.T) {
	events := []Event{
		NewAssetMetadataExtracted("A1", "U1"),
		NewAssetDelete("A1", "U1"),
		NewStackEvent(EventStackCreate, "S1", "U1"),
		NewStackDeleteAll([]string{"S1", "S2"}, "U1"),
	}

	for _, ev := range events {
		t.Run(string(ev.Name), func(t *testing.T) {
			obj, err := ev.PayloadObject()
			require.NoError(t, err)

			// Through JSON, as the journal and ingest stream do.
			data, err := json.Marshal(obj)
			require.NoError(t, err)
			var decoded map[string]any
			require.NoError(t, json.Unmarshal(data, &decoded))

			payload, err := DecodePayload(ev.Name, decoded)
			require.NoError(t, err)
			assert.Equal(t, ev.Payload, payload)
		})
	}
}

func TestDecodePayload_UnknownEvent(t *testing.T) {
	_, err := DecodePayload("Nope", map[string]any{})
	assert.Error(t, err)
}

func TestStack_HasMember(t *testing.T) {
	s := Stack{ID: "S1", MemberIDs: []string{"A1", "A2"}}
	assert.True(t, s.HasMember("A2"))
	assert.False(t, s.HasMember("A9"))
}

func TestFixedGenerator(t *testing.T) {
	gen := NewFixedGenerator("stack", "S1", "S2")
	assert.Equal(t, "S1", gen.Generate())
	assert.Equal(t, "S2", gen.Generate())
	assert.Equal(t, "stack-3", gen.Generate())
}

func TestUUIDv7Generator(t *testing.T) {
	gen := UUIDv7Generator{}
	a, b := gen.Generate(), gen.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
