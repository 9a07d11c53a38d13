package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// cliEnv runs commands against one temporary database.
type cliEnv struct {
	t  *testing.T
	db string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	return &cliEnv{t: t, db: filepath.Join(t.TempDir(), "photostack.db")}
}

// run executes stackctl with args and returns stdout, stderr and the error.
func (e *cliEnv) run(args ...string) (string, string, error) {
	e.t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}

	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(append([]string{"--db", e.db}, args...))

	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// mustRun executes args and fails the test on error.
func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, errOut, err := e.run(args...)
	require.NoError(e.t, err, "stackctl %v\nstdout: %s\nstderr: %s", args, out, errOut)
	return out
}

// runJSON executes args with --format json and decodes the response.
func (e *cliEnv) runJSON(args ...string) (CLIResponse, error) {
	e.t.Helper()
	out, _, err := e.run(append([]string{"--format", "json"}, args...)...)
	var resp CLIResponse
	require.NoError(e.t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp, err
}

// decodeData re-decodes resp.Data into v.
func decodeData(t *testing.T, resp CLIResponse, v any) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
}

// putAssets seeds assets owned by owner under key, one second apart.
func (e *cliEnv) putAssets(owner, key string, ids ...string) {
	e.t.Helper()
	for i, id := range ids {
		captured := fmt.Sprintf("2024-06-01T12:00:%02dZ", i)
		e.mustRun("asset", "put", id, "--owner", owner, "--key", key, "--captured", captured)
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
