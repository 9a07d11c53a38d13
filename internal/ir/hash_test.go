package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventID_Deterministic(t *testing.T) {
	ev := NewStackEvent(EventStackCreate, "S1", "U1")
	ev.Seq = 7

	id1, err := EventID(ev)
	require.NoError(t, err)
	id2, err := EventID(ev)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64, "SHA-256 hex digest")
}

func TestEventID_SeqIsPartOfIdentity(t *testing.T) {
	a := NewStackEvent(EventStackUpdate, "S1", "U1")
	a.Seq = 1
	b := a
	b.Seq = 2

	idA, err := EventID(a)
	require.NoError(t, err)
	idB, err := EventID(b)
	require.NoError(t, err)

	assert.NotEqual(t, idA, idB)
}

func TestEventID_NameIsPartOfIdentity(t *testing.T) {
	a := NewStackEvent(EventStackUpdate, "S1", "U1")
	b := NewStackEvent(EventStackDelete, "S1", "U1")

	idA, err := EventID(a)
	require.NoError(t, err)
	idB, err := EventID(b)
	require.NoError(t, err)

	assert.NotEqual(t, idA, idB)
}

func TestEventID_UnsupportedPayload(t *testing.T) {
	_, err := EventID(Event{Name: EventStackCreate, Payload: 42})
	assert.Error(t, err)
}

func TestGroupHash(t *testing.T) {
	assert.Equal(t, GroupHash("U1", "burst-42"), GroupHash("U1", "burst-42"))
	assert.NotEqual(t, GroupHash("U1", "burst-42"), GroupHash("U2", "burst-42"))

	// Separator characters cannot make two pairs collide.
	assert.NotEqual(t, GroupHash("U1:", "x"), GroupHash("U1", ":x"))
}
