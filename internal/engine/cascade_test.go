package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/photostack/internal/ir"
)

func TestDeleteAsset_NonPrimaryMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "U1", "burst-1", "A1", "A2", "A3")

	_, err := f.engine.AutoStack(ctx, "A1", "U1")
	require.NoError(t, err)
	f.events.reset()

	require.NoError(t, f.engine.DeleteAsset(ctx, u1, "A3"))

	st, err := f.store.GetStack(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2"}, st.MemberIDs)
	assert.Equal(t, "A1", st.PrimaryAssetID)
	assert.Equal(t, []ir.Event{ir.NewStackEvent(ir.EventStackUpdate, "S1", "U1")}, f.events.all())
}

func TestDeleteAsset_PrimaryIsReassigned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "U1", "burst-1", "A1", "A2", "A3")

	_, err := f.engine.AutoStack(ctx, "A2", "U1")
	require.NoError(t, err)
	f.events.reset()

	require.NoError(t, f.engine.DeleteAsset(ctx, u1, "A1"))

	st, err := f.store.GetStack(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, []string{"A2", "A3"}, st.MemberIDs)
	assert.Equal(t, "A2", st.PrimaryAssetID, "earliest remaining member becomes primary")
	assert.Equal(t, []ir.Event{ir.NewStackEvent(ir.EventStackUpdate, "S1", "U1")}, f.events.all())
	f.requireInvariants(t)
}

func TestDeleteAsset_LastMemberDeletesStack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "U1", "", "A1")

	_, err := f.engine.Create(ctx, u1, []string{"A1"})
	require.NoError(t, err)
	f.events.reset()

	require.NoError(t, f.engine.DeleteAsset(ctx, u1, "A1"))

	assert.Empty(t, f.stacks(t, "U1"))
	assert.Equal(t, []ir.Event{ir.NewStackEvent(ir.EventStackDelete, "S1", "U1")}, f.events.all())
	f.requireInvariants(t)
}

func TestDeleteAsset_Unstacked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "U1", "", "A1")

	require.NoError(t, f.engine.DeleteAsset(ctx, u1, "A1"))

	got, err := f.store.GetAsset(ctx, "A1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Empty(t, f.events.all())
}

// newPrimaryPair stacks A1 and A2 as S1 with A1 as primary.
func newPrimaryPair(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	f.seed(t, "U1", "", "A1", "A2")
	_, err := f.engine.Create(ctx, u1, []string{"A1", "A2"})
	require.NoError(t, err)
	_, err = f.engine.Update(ctx, u1, "S1", UpdateRequest{PrimaryAssetID: ptr("A1")})
	require.NoError(t, err)
}

func TestDeleteAsset_PrimaryStackEmptiedBeforeReassign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	newPrimaryPair(t, f)

	// The second GetStack is the empty check; A2 goes right after it.
	wrapper := &interleavedStacks{afterGetAt: 2}
	wrapper.afterGet = func() {
		_, err := f.store.DeleteAsset(ctx, "A2")
		require.NoError(t, err)
	}
	e := f.interleaved(wrapper)
	f.events.reset()

	require.NoError(t, e.DeleteAsset(ctx, u1, "A1"))

	assert.Empty(t, f.stacks(t, "U1"))
	assert.Equal(t, []ir.Event{ir.NewStackEvent(ir.EventStackDelete, "S1", "U1")}, f.events.all())
	f.requireInvariants(t)
}

func TestDeleteAsset_PrimaryStackDeletedBeforeReassign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	newPrimaryPair(t, f)

	wrapper := &interleavedStacks{afterGetAt: 2}
	wrapper.afterGet = func() {
		require.NoError(t, f.engine.DeleteAsset(ctx, u1, "A2"))
	}
	e := f.interleaved(wrapper)
	f.events.reset()

	require.NoError(t, e.DeleteAsset(ctx, u1, "A1"))

	assert.Empty(t, f.stacks(t, "U1"))
	assert.Equal(t, 1, f.events.count(ir.EventStackDelete), "only the deleting writer publishes")
	assert.Zero(t, f.events.count(ir.EventStackUpdate))
	f.requireInvariants(t)
}

func TestDeleteAsset_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "U1", "", "A1")

	assert.True(t, IsNotFound(f.engine.DeleteAsset(ctx, u1, "A404")))
	assert.True(t, IsForbidden(f.engine.DeleteAsset(ctx, u2, "A1")))
	assert.NotNil(t, f.asset(t, "A1"))
}

func TestHandleAssetDelete_Redelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "U1", "", "A1", "A2")

	_, err := f.engine.Create(ctx, u1, []string{"A1", "A2"})
	require.NoError(t, err)
	f.events.reset()

	ev := ir.NewAssetDelete("A1", "U1")
	require.NoError(t, f.engine.HandleAssetDelete(ctx, ev))
	require.NoError(t, f.engine.HandleAssetDelete(ctx, ev))

	assert.Equal(t, 1, f.events.count(ir.EventStackUpdate), "second delivery is a no-op")
	f.requireInvariants(t)
}
