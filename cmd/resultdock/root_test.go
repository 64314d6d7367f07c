package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resultdock/pkg/results"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_WriteReadExists(t *testing.T) {
	location := "file://" + t.TempDir()

	out, err := run(t, "--storage", location, "exists", "reports/mon")
	require.NoError(t, err)
	assert.Equal(t, "false", strings.TrimSpace(out))

	_, err = run(t, "--storage", location, "write", "reports/mon", `{"count": 3}`)
	require.NoError(t, err)

	out, err = run(t, "--storage", location, "exists", "reports/mon")
	require.NoError(t, err)
	assert.Equal(t, "true", strings.TrimSpace(out))

	out, err = run(t, "--storage", location, "read", "reports/mon")
	require.NoError(t, err)

	var doc struct {
		Metadata map[string]any `json:"metadata"`
		Result   map[string]any `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "reports/mon", doc.Metadata["storage_key"])
	assert.Equal(t, map[string]any{"count": float64(3)}, doc.Result)
}

func TestCLI_WriteRawWithSerializer(t *testing.T) {
	dir := t.TempDir()
	location := "file://" + dir

	_, err := run(t, "--storage", location, "--serializer", "compressed/json",
		"write", "greeting", "hello", "--raw", "--expires-in", "1h")
	require.NoError(t, err)

	// The blob on disk is a regular record
	blob, err := os.ReadFile(filepath.Join(dir, "greeting"))
	require.NoError(t, err)
	rec, err := results.DeserializeRecord(blob)
	require.NoError(t, err)
	assert.Equal(t, "compressed", rec.Serializer().Type())
	assert.Equal(t, "hello", rec.Result)
	assert.NotNil(t, rec.Expiration())
}

func TestCLI_WriteInvalidJSON(t *testing.T) {
	_, err := run(t, "--storage", "file://"+t.TempDir(), "write", "k", "{not json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--raw")
}

func TestCLI_SplitStorage(t *testing.T) {
	payloads, metadata := t.TempDir(), t.TempDir()
	args := []string{"--storage", "file://" + payloads, "--metadata-storage", "file://" + metadata}

	_, err := run(t, append(args, "write", "k", `[1, 2]`)...)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(payloads, "k"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(metadata, "k"))
	require.NoError(t, err)

	out, err := run(t, append(args, "read", "k", "--metadata")...)
	require.NoError(t, err)
	assert.Contains(t, out, `"storage_key": "k"`)
}

func TestCLI_Params(t *testing.T) {
	location := "file://" + t.TempDir()

	out, err := run(t, "--storage", location, "params", "put", `{"day": "mon"}`)
	require.NoError(t, err)
	id := strings.TrimSpace(out)

	out, err = run(t, "--storage", location, "params", "get", id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"day": "mon"}`, out)

	_, err = run(t, "--storage", location, "params", "get", "not-a-uuid")
	require.Error(t, err)
}

func TestCLI_LockWithoutManager(t *testing.T) {
	_, err := run(t, "--storage", "memory:", "lock", "status", "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, results.ErrNoLockManager)
}

func TestCLI_ConfigBlocks(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "resultdock.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(`
results:
  default_storage_block: archive
blocks:
  archive: "file://`+filepath.Join(dir, "archive")+`"
`), 0o644))

	out, err := run(t, "--config", cfg, "blocks")
	require.NoError(t, err)
	assert.Contains(t, out, "archive")
	assert.Contains(t, out, "(default)")

	// Writes without --storage go to the default block
	_, err = run(t, "--config", cfg, "write", "k", `"v"`)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "archive", "k"))
	require.NoError(t, err)
}
