package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssetPut(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun("asset", "put", "A1", "--owner", "U1", "--key", "burst-1")
	assert.Contains(t, out, "asset A1 not stacked")
}

func TestAssetPutRequiresOwner(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.run("asset", "put", "A1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "owner")
}

func TestAssetPutInvalidCaptured(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.run("asset", "put", "A1", "--owner", "U1", "--captured", "yesterday")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid --captured")
}

func TestAssetExtractedAutoStacks(t *testing.T) {
	env := newCLIEnv(t)
	env.putAssets("U1", "burst-1", "A1")

	out := env.mustRun("asset", "extracted", "A1", "--user", "U1")
	assert.Contains(t, out, "asset A1 not stacked", "a lone asset is not stacked")

	env.mustRun("asset", "put", "A2", "--owner", "U1", "--key", "burst-1", "--captured", "2024-06-01T12:00:05Z")

	resp, err := env.runJSON("asset", "extracted", "A2", "--user", "U1")
	require.NoError(t, err)

	var status AssetStatus
	decodeData(t, resp, &status)
	assert.Equal(t, "A2", status.AssetID)
	require.NotEmpty(t, status.StackID)

	resp, err = env.runJSON("stack", "get", status.StackID, "--user", "U1")
	require.NoError(t, err)
	var view StackView
	decodeData(t, resp, &view)
	assert.Equal(t, []string{"A1", "A2"}, view.Stack.MemberIDs)
	assert.Equal(t, "A1", view.Stack.PrimaryAssetID, "earliest capture becomes primary")
}

func TestAssetExtractedIgnoresOtherOwner(t *testing.T) {
	env := newCLIEnv(t)
	env.putAssets("U1", "burst-1", "A1", "A2")

	env.mustRun("asset", "extracted", "A1", "--user", "U2")
	resp, err := env.runJSON("asset", "extracted", "A2", "--user", "U2")
	require.NoError(t, err)

	var status AssetStatus
	decodeData(t, resp, &status)
	assert.Empty(t, status.StackID)
}

func TestAssetDeleteRepairsStack(t *testing.T) {
	env := newCLIEnv(t)
	env.putAssets("U1", "burst-1", "A1", "A2", "A3")
	for _, id := range []string{"A1", "A2", "A3"} {
		env.mustRun("asset", "extracted", id, "--user", "U1")
	}

	resp, err := env.runJSON("stack", "list", "--user", "U1")
	require.NoError(t, err)
	var list StackList
	decodeData(t, resp, &list)
	require.Len(t, list.Stacks, 1)
	stackID := list.Stacks[0].ID
	require.Equal(t, "A1", list.Stacks[0].PrimaryAssetID)

	out := env.mustRun("asset", "delete", "A1", "--user", "U1")
	assert.Contains(t, out, "asset A1 deleted")

	resp, err = env.runJSON("stack", "get", stackID, "--user", "U1")
	require.NoError(t, err)
	var view StackView
	decodeData(t, resp, &view)
	assert.Equal(t, []string{"A2", "A3"}, view.Stack.MemberIDs)
	assert.Equal(t, "A2", view.Stack.PrimaryAssetID)
}

func TestAssetDeleteForbidden(t *testing.T) {
	env := newCLIEnv(t)
	env.putAssets("U1", "", "A1")

	resp, err := env.runJSON("asset", "delete", "A1", "--user", "U2")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, IsReported(err))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "FORBIDDEN", resp.Error.Code)
}
