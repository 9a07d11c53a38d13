package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/photostack/internal/ir"
)

func TestCreateStack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	putAssets(t, s, "U1", "", "A2", "A1")

	st, err := s.CreateStack(ctx, "U1", []string{"A1", "A2", "A1"})
	require.NoError(t, err)

	assert.Equal(t, "stack-1", st.ID)
	assert.Equal(t, "U1", st.OwnerID)
	assert.Equal(t, "", st.PrimaryAssetID)
	assert.Equal(t, []string{"A2", "A1"}, st.MemberIDs)

	for _, id := range []string{"A1", "A2"} {
		a, err := s.GetAsset(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, st.ID, a.StackID)
	}
}

func TestCreateStack_MissingAsset(t *testing.T) {
	s := createTestStore(t)
	putAssets(t, s, "U1", "", "A1")

	_, err := s.CreateStack(context.Background(), "U1", []string{"A1", "A9"})
	assert.ErrorIs(t, err, ErrNotFound)

	a, err := s.GetAsset(context.Background(), "A1")
	require.NoError(t, err)
	assert.False(t, a.Stacked(), "failed create must not attach anything")
}

func TestCreateStack_NoAssets(t *testing.T) {
	s := createTestStore(t)

	_, err := s.CreateStack(context.Background(), "U1", nil)
	assert.Error(t, err)
}

func TestCreateStack_AbsorbsExistingStacks(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	putAssets(t, s, "U1", "", "A1", "A2", "A3", "A4")

	first, err := s.CreateStack(ctx, "U1", []string{"A1", "A2"})
	require.NoError(t, err)

	merged, err := s.CreateStack(ctx, "U1", []string{"A2", "A3"})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, merged.ID)
	assert.Equal(t, []string{"A1", "A2", "A3"}, merged.MemberIDs)

	gone, err := s.GetStack(ctx, first.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	a4, err := s.GetAsset(ctx, "A4")
	require.NoError(t, err)
	assert.False(t, a4.Stacked())
}

func TestSearchStacks(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	putAssets(t, s, "U1", "", "A1", "A2")
	putAssets(t, s, "U2", "", "B1")

	st1, err := s.CreateStack(ctx, "U1", []string{"A1"})
	require.NoError(t, err)
	st2, err := s.CreateStack(ctx, "U1", []string{"A2"})
	require.NoError(t, err)
	_, err = s.CreateStack(ctx, "U2", []string{"B1"})
	require.NoError(t, err)

	primary := "A2"
	_, err = s.UpdateStack(ctx, st2.ID, ir.StackPatch{PrimaryAssetID: &primary})
	require.NoError(t, err)

	all, err := s.SearchStacks(ctx, ir.StackFilter{OwnerID: "U1"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, st1.ID, all[0].ID)
	assert.Equal(t, []string{"A1"}, all[0].MemberIDs)

	byPrimary, err := s.SearchStacks(ctx, ir.StackFilter{OwnerID: "U1", PrimaryAssetID: "A2"})
	require.NoError(t, err)
	require.Len(t, byPrimary, 1)
	assert.Equal(t, st2.ID, byPrimary[0].ID)

	none, err := s.SearchStacks(ctx, ir.StackFilter{OwnerID: "U3"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestGetForAssetRemoval(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	putAssets(t, s, "U1", "", "A1", "A2")

	st, err := s.CreateStack(ctx, "U1", []string{"A1"})
	require.NoError(t, err)

	got, err := s.GetForAssetRemoval(ctx, "A1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, st.ID, got.ID)

	got, err = s.GetForAssetRemoval(ctx, "A2")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.GetForAssetRemoval(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateStack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	putAssets(t, s, "U1", "", "A1", "A2", "A3")

	st, err := s.CreateStack(ctx, "U1", []string{"A1", "A2"})
	require.NoError(t, err)

	t.Run("set primary", func(t *testing.T) {
		primary := "A2"
		got, err := s.UpdateStack(ctx, st.ID, ir.StackPatch{PrimaryAssetID: &primary})
		require.NoError(t, err)
		assert.Equal(t, "A2", got.PrimaryAssetID)
	})

	t.Run("non-member primary", func(t *testing.T) {
		primary := "A3"
		_, err := s.UpdateStack(ctx, st.ID, ir.StackPatch{PrimaryAssetID: &primary})
		assert.ErrorIs(t, err, ErrNotMember)

		got, err := s.GetStack(ctx, st.ID)
		require.NoError(t, err)
		assert.Equal(t, "A2", got.PrimaryAssetID)
	})

	t.Run("empty patch", func(t *testing.T) {
		got, err := s.UpdateStack(ctx, st.ID, ir.StackPatch{})
		require.NoError(t, err)
		assert.Equal(t, "A2", got.PrimaryAssetID)
	})

	t.Run("missing stack", func(t *testing.T) {
		_, err := s.UpdateStack(ctx, "nope", ir.StackPatch{})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDeleteStack_ClearsMembers(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	putAssets(t, s, "U1", "", "A1", "A2")

	st, err := s.CreateStack(ctx, "U1", []string{"A1", "A2"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteStack(ctx, st.ID))

	for _, id := range []string{"A1", "A2"} {
		a, err := s.GetAsset(ctx, id)
		require.NoError(t, err)
		assert.False(t, a.Stacked())
	}

	assert.ErrorIs(t, s.DeleteStack(ctx, st.ID), ErrNotFound)
}

func TestDeleteStacks_AllOrNothing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	putAssets(t, s, "U1", "", "A1", "A2")

	st1, err := s.CreateStack(ctx, "U1", []string{"A1"})
	require.NoError(t, err)
	st2, err := s.CreateStack(ctx, "U1", []string{"A2"})
	require.NoError(t, err)

	err = s.DeleteStacks(ctx, []string{st1.ID, "missing"})
	assert.ErrorIs(t, err, ErrNotFound)

	still, err := s.GetStack(ctx, st1.ID)
	require.NoError(t, err)
	assert.NotNil(t, still, "rollback must keep the first stack")

	require.NoError(t, s.DeleteStacks(ctx, []string{st1.ID, st2.ID}))
	left, err := s.SearchStacks(ctx, ir.StackFilter{OwnerID: "U1"})
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestStackOwners(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	putAssets(t, s, "U1", "", "A1")

	st, err := s.CreateStack(ctx, "U1", []string{"A1"})
	require.NoError(t, err)

	got, err := s.StackOwners(ctx, []string{st.ID, "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{st.ID: "U1"}, got)
}

// Auto-stack claim tests

func TestCreateAutoStack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	putAssets(t, s, "U1", "burst-1", "A1", "A2", "A3")

	st, err := s.CreateAutoStack(ctx, ir.AutoStackRequest{
		OwnerID:        "U1",
		GroupingKey:    "burst-1",
		AssetIDs:       []string{"A1", "A2", "A3"},
		PrimaryAssetID: "A1",
	})
	require.NoError(t, err)
	assert.Equal(t, "A1", st.PrimaryAssetID)
	assert.Equal(t, []string{"A1", "A2", "A3"}, st.MemberIDs)
}

func TestCreateAutoStack_RequiresTwoAssets(t *testing.T) {
	s := createTestStore(t)
	putAssets(t, s, "U1", "burst-1", "A1")

	_, err := s.CreateAutoStack(context.Background(), ir.AutoStackRequest{
		OwnerID: "U1", GroupingKey: "burst-1", AssetIDs: []string{"A1"},
	})
	assert.Error(t, err)
}

func TestCreateAutoStack_ClaimedGroupConflicts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	putAssets(t, s, "U1", "burst-1", "A1", "A2", "A3", "A4")

	_, err := s.CreateAutoStack(ctx, ir.AutoStackRequest{
		OwnerID: "U1", GroupingKey: "burst-1", AssetIDs: []string{"A1", "A2"},
	})
	require.NoError(t, err)

	_, err = s.CreateAutoStack(ctx, ir.AutoStackRequest{
		OwnerID: "U1", GroupingKey: "burst-1", AssetIDs: []string{"A3", "A4"},
	})
	assert.ErrorIs(t, err, ErrConflict)

	// The losing transaction rolled back entirely.
	stacks, err := s.SearchStacks(ctx, ir.StackFilter{OwnerID: "U1"})
	require.NoError(t, err)
	assert.Len(t, stacks, 1)
	a3, err := s.GetAsset(ctx, "A3")
	require.NoError(t, err)
	assert.False(t, a3.Stacked())
}

func TestCreateAutoStack_StackedAssetConflicts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	putAssets(t, s, "U1", "burst-1", "A1", "A2")

	_, err := s.CreateStack(ctx, "U1", []string{"A2"})
	require.NoError(t, err)

	_, err = s.CreateAutoStack(ctx, ir.AutoStackRequest{
		OwnerID: "U1", GroupingKey: "burst-1", AssetIDs: []string{"A1", "A2"},
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCreateAutoStack_ReplacesStaleClaim(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	putAssets(t, s, "U1", "burst-1", "A1", "A2")
	putAssets(t, s, "U1", "other", "X1")

	first, err := s.CreateAutoStack(ctx, ir.AutoStackRequest{
		OwnerID: "U1", GroupingKey: "burst-1", AssetIDs: []string{"A1", "A2"},
	})
	require.NoError(t, err)

	// Move every group member out while the claimed stack survives.
	require.NoError(t, s.AddToStack(ctx, first.ID, "X1"))
	require.NoError(t, s.RemoveFromStack(ctx, first.ID, "A1"))
	require.NoError(t, s.RemoveFromStack(ctx, first.ID, "A2"))

	second, err := s.CreateAutoStack(ctx, ir.AutoStackRequest{
		OwnerID: "U1", GroupingKey: "burst-1", AssetIDs: []string{"A1", "A2"},
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestCreateAutoStack_ClaimReleasedOnDelete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	putAssets(t, s, "U1", "burst-1", "A1", "A2")

	req := ir.AutoStackRequest{OwnerID: "U1", GroupingKey: "burst-1", AssetIDs: []string{"A1", "A2"}}
	first, err := s.CreateAutoStack(ctx, req)
	require.NoError(t, err)
	require.NoError(t, s.DeleteStack(ctx, first.ID))

	_, err = s.CreateAutoStack(ctx, req)
	assert.NoError(t, err)
}

func TestAddToStack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	putAssets(t, s, "U1", "burst-1", "A1", "A2", "A3")

	st, err := s.CreateAutoStack(ctx, ir.AutoStackRequest{
		OwnerID: "U1", GroupingKey: "burst-1", AssetIDs: []string{"A1", "A2"},
	})
	require.NoError(t, err)

	require.NoError(t, s.AddToStack(ctx, st.ID, "A3"))
	got, err := s.GetStack(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2", "A3"}, got.MemberIDs)

	assert.ErrorIs(t, s.AddToStack(ctx, st.ID, "A3"), ErrConflict, "already stacked")

	putAssets(t, s, "U1", "burst-1", "A4")
	assert.ErrorIs(t, s.AddToStack(ctx, "vanished", "A4"), ErrConflict)
}

func TestRemoveFromStack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	putAssets(t, s, "U1", "", "A1", "A2", "A3", "B1")

	st, err := s.CreateStack(ctx, "U1", []string{"A1", "A2", "A3"})
	require.NoError(t, err)
	other, err := s.CreateStack(ctx, "U1", []string{"B1"})
	require.NoError(t, err)
	primary := "A1"
	_, err = s.UpdateStack(ctx, st.ID, ir.StackPatch{PrimaryAssetID: &primary})
	require.NoError(t, err)

	require.NoError(t, s.RemoveFromStack(ctx, st.ID, "A3"))
	a, err := s.GetAsset(ctx, "A3")
	require.NoError(t, err)
	assert.False(t, a.Stacked())

	assert.ErrorIs(t, s.RemoveFromStack(ctx, st.ID, "A1"), ErrPrimaryAsset)
	assert.ErrorIs(t, s.RemoveFromStack(ctx, st.ID, "A3"), ErrNotMember, "already removed")
	assert.ErrorIs(t, s.RemoveFromStack(ctx, st.ID, "B1"), ErrNotMember, "member of another stack")
	assert.ErrorIs(t, s.RemoveFromStack(ctx, st.ID, "missing"), ErrNotMember)
	assert.ErrorIs(t, s.RemoveFromStack(ctx, "missing", "A2"), ErrNotFound)

	got, err := s.GetStack(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2"}, got.MemberIDs)
	assert.Equal(t, "A1", got.PrimaryAssetID)

	b, err := s.GetAsset(ctx, "B1")
	require.NoError(t, err)
	assert.Equal(t, other.ID, b.StackID)
}
