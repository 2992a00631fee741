package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "engram", cfg.Name)
	assert.Equal(t, "data", cfg.Storage.DataDir)
	assert.Equal(t, "2s", cfg.Watcher.PollInterval)
	assert.Equal(t, 20.0, cfg.Watcher.MaxFileMB)
	assert.Equal(t, "local", cfg.Vector.Mode)
	assert.Equal(t, 8000, cfg.Tools.DefaultTimeoutMS)
	assert.Equal(t, 200000, cfg.Tools.MaxOutputBytes)
	assert.Equal(t, "local_only", cfg.Tools.PrivacyMode)
	assert.Contains(t, cfg.Watcher.IgnoreDirs, ".git")
	assert.Contains(t, cfg.Watcher.IgnoreDirs, "node_modules")

	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "engram", cfg.Name)
	assert.Equal(t, 8000, cfg.Tools.DefaultTimeoutMS)
}

func TestLoadOverlaysYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `storage:
  data_dir: /srv/engram
watcher:
  poll_interval: 10s
  max_file_mb: 5
vector:
  mode: qdrant
  qdrant_url: http://qdrant:6333
llm:
  model: llama3.2:3b
tools:
  default_timeout_ms: 12000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/engram", cfg.Storage.DataDir)
	assert.Equal(t, 10*time.Second, cfg.PollInterval())
	assert.Equal(t, 5.0, cfg.Watcher.MaxFileMB)
	assert.Equal(t, int64(5*1024*1024), cfg.MaxFileBytes())
	assert.Equal(t, "qdrant", cfg.Vector.Mode)
	assert.Equal(t, "llama3.2:3b", cfg.LLM.Model)
	assert.Equal(t, 12000, cfg.Tools.DefaultTimeoutMS)

	// Untouched sections keep defaults
	assert.Equal(t, "local_only", cfg.Tools.PrivacyMode)
	assert.Equal(t, "0 3 * * *", cfg.Compaction.Schedule)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("watcher: [not a map"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Storage.DataDir = "/var/lib/engram"
	cfg.Chat.TopK = 4
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("config changed across save/load (-saved +loaded):\n%s", diff)
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.DataDir = "/d"

	assert.Equal(t, filepath.Join("/d", "sqlite", "engram.db"), cfg.DBPath())
	assert.Equal(t, filepath.Join("/d", "thumbs"), cfg.ThumbDir())
	assert.Equal(t, filepath.Join("/d", "captures"), cfg.CapturesDir())

	cfg.Storage.DBPath = "/elsewhere/x.db"
	cfg.Storage.ThumbDir = "/elsewhere/thumbs"
	assert.Equal(t, "/elsewhere/x.db", cfg.DBPath())
	assert.Equal(t, "/elsewhere/thumbs", cfg.ThumbDir())
}

func TestDurationAccessorsParseWithDefault(t *testing.T) {
	cfg := DefaultConfig()

	cfg.Watcher.PollInterval = "750ms"
	assert.Equal(t, 750*time.Millisecond, cfg.PollInterval())

	cfg.Watcher.PollInterval = "garbage"
	assert.Equal(t, 2*time.Second, cfg.PollInterval())

	cfg.LLM.Timeout = ""
	assert.Equal(t, 30*time.Second, cfg.LLMTimeout())

	cfg.Worker.PollInterval = "-5s"
	assert.Equal(t, 500*time.Millisecond, cfg.WorkerPollInterval())
}

func TestValidateRejectsBadModes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Vector.Mode = "pinecone"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Models.WhisperMode = "cloud"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.LLM.EmbedMode = "openai"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Tools.DefaultTimeoutMS = 50
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Tools.DefaultTimeoutMS = 400000
	assert.Error(t, cfg.Validate())
}
