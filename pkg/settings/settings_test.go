package settings

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	s := Default()
	assert.Equal(t, "~/.resultdock/storage", s.Results.LocalStoragePath)
	assert.Equal(t, "json", s.Results.DefaultSerializer)
	assert.False(t, s.Results.PersistByDefault)
	assert.Empty(t, s.Results.DefaultStorageBlock)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resultdock.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
results:
  default_storage_block: team-bucket
  default_serializer: compressed/json
  persist_by_default: true
tasks:
  scheduling_default_storage_block: scheduled
logging:
  level: debug
  format: json
blocks:
  team-bucket: "memory:"
`), 0o644))

	t.Setenv("RESULTDOCK_RESULTS_LOCAL_STORAGE_PATH", "/tmp/results-env")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "team-bucket", s.Results.DefaultStorageBlock)
	assert.Equal(t, "compressed/json", s.Results.DefaultSerializer)
	assert.True(t, s.Results.PersistByDefault)
	assert.Equal(t, "scheduled", s.Tasks.SchedulingDefaultStorageBlock)
	assert.Equal(t, "/tmp/results-env", s.Results.LocalStoragePath)
	assert.Equal(t, "debug", s.Logging.Level)
	assert.Equal(t, map[string]string{"team-bucket": "memory:"}, s.Blocks)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	s := Default()
	s.Logging.Level = "loud"
	assert.Error(t, s.Validate())

	s = Default()
	s.Logging.Format = "xml"
	assert.Error(t, s.Validate())

	s = Default()
	s.Results.LocalStoragePath = ""
	assert.Error(t, s.Validate())
	s.Results.DefaultStorageBlock = "named"
	assert.NoError(t, s.Validate())
}

func TestNewLogger(t *testing.T) {
	s := Default()
	s.Logging.Format = "json"
	s.Logging.Level = "warn"

	var buf bytes.Buffer
	logger := s.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "key", "k1")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"key":"k1"`)
}
