package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides_Storage(t *testing.T) {
	t.Run("DATA_DIR and DB_PATH", func(t *testing.T) {
		t.Setenv("DATA_DIR", "/mnt/engram")
		t.Setenv("DB_PATH", "/mnt/engram/custom.db")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "/mnt/engram", cfg.Storage.DataDir)
		assert.Equal(t, "/mnt/engram/custom.db", cfg.DBPath())
	})

	t.Run("DB_PATH unset derives from DATA_DIR", func(t *testing.T) {
		t.Setenv("DATA_DIR", "/mnt/engram")
		t.Setenv("DB_PATH", "")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "/mnt/engram/sqlite/engram.db", cfg.DBPath())
	})

	t.Run("THUMB_DIR", func(t *testing.T) {
		t.Setenv("THUMB_DIR", "/cache/thumbs")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "/cache/thumbs", cfg.ThumbDir())
	})
}

func TestEnvOverrides_Watcher(t *testing.T) {
	t.Run("WATCH_ROOTS comma separated with whitespace", func(t *testing.T) {
		t.Setenv("WATCH_ROOTS", "/a, /b ,,/c")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, []string{"/a", "/b", "/c"}, cfg.Watcher.Roots)
	})

	t.Run("POLL_INTERVAL seconds float", func(t *testing.T) {
		t.Setenv("POLL_INTERVAL", "0.5")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, 500*time.Millisecond, cfg.PollInterval())
	})

	t.Run("POLL_INTERVAL garbage keeps default", func(t *testing.T) {
		t.Setenv("POLL_INTERVAL", "soon")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, 2*time.Second, cfg.PollInterval())
	})

	t.Run("MAX_FILE_MB", func(t *testing.T) {
		t.Setenv("MAX_FILE_MB", "2.5")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, 2.5, cfg.Watcher.MaxFileMB)
		assert.Equal(t, int64(2.5*1024*1024), cfg.MaxFileBytes())
	})
}

func TestEnvOverrides_Vector(t *testing.T) {
	t.Run("QDRANT_URL switches mode to qdrant", func(t *testing.T) {
		t.Setenv("QDRANT_URL", "http://qdrant:6333")
		t.Setenv("VECTOR_MODE", "")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "qdrant", cfg.Vector.Mode)
		assert.Equal(t, "http://qdrant:6333", cfg.Vector.QdrantURL)
	})

	t.Run("VECTOR_MODE wins over implied mode", func(t *testing.T) {
		t.Setenv("QDRANT_URL", "http://qdrant:6333")
		t.Setenv("VECTOR_MODE", "local")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "local", cfg.Vector.Mode)
		assert.Equal(t, "http://qdrant:6333", cfg.Vector.QdrantURL)
	})
}

func TestEnvOverrides_ServicesAndAPI(t *testing.T) {
	t.Setenv("OLLAMA_URL", "http://gpu-box:11434")
	t.Setenv("OLLAMA_MODEL", "qwen2.5:7b")
	t.Setenv("EMBED_MODE", "stub")
	t.Setenv("TIKA_URL", "http://tika:9998")
	t.Setenv("MODELS_DIR", "/models")
	t.Setenv("WHISPER_MODE", "local")
	t.Setenv("OPENCLIP_MODE", "local")
	t.Setenv("API_ADDR", ":9000")
	t.Setenv("CAPTURE_API_KEY", "sekrit")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "http://gpu-box:11434", cfg.LLM.OllamaURL)
	assert.Equal(t, "qwen2.5:7b", cfg.LLM.Model)
	assert.Equal(t, "stub", cfg.LLM.EmbedMode)
	assert.Equal(t, "http://tika:9998", cfg.Extraction.TikaURL)
	assert.Equal(t, "/models", cfg.Models.Dir)
	assert.Equal(t, "local", cfg.Models.WhisperMode)
	assert.Equal(t, "local", cfg.Models.OpenCLIPMode)
	assert.Equal(t, ":9000", cfg.API.Addr)
	assert.Equal(t, "sekrit", cfg.API.CaptureAPIKey)
}
