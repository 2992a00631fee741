package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all engram configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Storage paths
	Storage StorageConfig `yaml:"storage"`

	// Filesystem watcher
	Watcher WatcherConfig `yaml:"watcher"`

	// Vector store
	Vector VectorConfig `yaml:"vector"`

	// Generative + embedding model
	LLM LLMConfig `yaml:"llm"`

	// Local model tools (ASR, vision)
	Models ModelsConfig `yaml:"models"`

	// Text extraction service
	Extraction ExtractionConfig `yaml:"extraction"`

	// Tool dispatch constraints
	Tools ToolsConfig `yaml:"tools"`

	// Job worker
	Worker WorkerConfig `yaml:"worker"`

	// Entity compaction schedule
	Compaction CompactionConfig `yaml:"compaction"`

	// Chat pipeline
	Chat ChatConfig `yaml:"chat"`

	// HTTP surface
	API APIConfig `yaml:"api"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig configures on-disk locations.
type StorageConfig struct {
	// Root data directory; derived paths live under it unless overridden
	DataDir string `yaml:"data_dir"`

	// SQLite database file; empty means <data_dir>/sqlite/engram.db
	DBPath string `yaml:"db_path"`

	// Thumbnail cache; empty means <data_dir>/thumbs
	ThumbDir string `yaml:"thumb_dir"`
}

// WatcherConfig configures the polling filesystem scanner.
type WatcherConfig struct {
	// Directories scanned for new/changed files (read-only inputs)
	Roots []string `yaml:"roots"`

	// Scan interval
	PollInterval string `yaml:"poll_interval"`

	// Files larger than this get a placeholder card, content unread
	MaxFileMB float64 `yaml:"max_file_mb"`

	// Directory names always skipped
	IgnoreDirs []string `yaml:"ignore_dirs"`
}

// VectorConfig configures the vector store.
type VectorConfig struct {
	Mode      string `yaml:"mode"` // qdrant, local
	QdrantURL string `yaml:"qdrant_url"`
	Timeout   string `yaml:"timeout"`
}

// LLMConfig configures the local generative model.
type LLMConfig struct {
	OllamaURL  string `yaml:"ollama_url"`
	Model      string `yaml:"model"`
	EmbedModel string `yaml:"embed_model"`
	EmbedMode  string `yaml:"embed_mode"` // ollama, stub
	Timeout    string `yaml:"timeout"`
}

// ModelsConfig configures local model-backed tools.
type ModelsConfig struct {
	Dir          string `yaml:"dir"`           // model cache directory
	WhisperMode  string `yaml:"whisper_mode"`  // local, stub
	WhisperModel string `yaml:"whisper_model"` // model size when local
	OpenCLIPMode string `yaml:"openclip_mode"` // local, stub
	CLIPURL      string `yaml:"clip_url"`      // vision sidecar when local
}

// ExtractionConfig configures the text-extraction service.
type ExtractionConfig struct {
	TikaURL string `yaml:"tika_url"`
	Timeout string `yaml:"timeout"`
}

// ToolsConfig configures default dispatch constraints.
type ToolsConfig struct {
	DefaultTimeoutMS int    `yaml:"default_timeout_ms"`
	MaxOutputBytes   int    `yaml:"max_output_bytes"`
	PrivacyMode      string `yaml:"privacy_mode"`
}

// WorkerConfig configures the job worker loop.
type WorkerConfig struct {
	PollInterval string `yaml:"poll_interval"`
}

// CompactionConfig configures scheduled entity compaction.
type CompactionConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"` // cron expression
}

// ChatConfig configures the chat pipeline.
type ChatConfig struct {
	TopK int `yaml:"top_k"`
}

// APIConfig configures the HTTP surface.
type APIConfig struct {
	Addr          string `yaml:"addr"`
	CaptureAPIKey string `yaml:"capture_api_key"`
}

// LoggingConfig configures categorized debug logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	JSONFormat bool            `yaml:"json_format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "engram",
		Version: "0.7.0",

		Storage: StorageConfig{
			DataDir: "data",
		},

		Watcher: WatcherConfig{
			Roots:        []string{},
			PollInterval: "2s",
			MaxFileMB:    20,
			IgnoreDirs:   []string{"__pycache__", ".git", ".svn", "node_modules", ".DS_Store"},
		},

		Vector: VectorConfig{
			Mode:      "local",
			QdrantURL: "http://localhost:6333",
			Timeout:   "10s",
		},

		LLM: LLMConfig{
			OllamaURL:  "http://localhost:11434",
			Model:      "phi3:mini",
			EmbedModel: "nomic-embed-text",
			EmbedMode:  "ollama",
			Timeout:    "30s",
		},

		Models: ModelsConfig{
			Dir:          "data/models",
			WhisperMode:  "stub",
			WhisperModel: "base",
			OpenCLIPMode: "stub",
			CLIPURL:      "http://localhost:8234",
		},

		Extraction: ExtractionConfig{
			TikaURL: "http://localhost:9998",
			Timeout: "20s",
		},

		Tools: ToolsConfig{
			DefaultTimeoutMS: 8000,
			MaxOutputBytes:   200000,
			PrivacyMode:      "local_only",
		},

		Worker: WorkerConfig{
			PollInterval: "500ms",
		},

		Compaction: CompactionConfig{
			Enabled:  true,
			Schedule: "0 3 * * *",
		},

		Chat: ChatConfig{
			TopK: 10,
		},

		API: APIConfig{
			Addr: ":8807",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
// Missing file means defaults; environment variables override both.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("THUMB_DIR"); v != "" {
		c.Storage.ThumbDir = v
	}

	if v := os.Getenv("WATCH_ROOTS"); v != "" {
		roots := []string{}
		for _, r := range strings.Split(v, ",") {
			if r = strings.TrimSpace(r); r != "" {
				roots = append(roots, r)
			}
		}
		c.Watcher.Roots = roots
	}
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		// Seconds (float-friendly), matching the capture daemon contract
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			c.Watcher.PollInterval = time.Duration(secs * float64(time.Second)).String()
		}
	}
	if v := os.Getenv("MAX_FILE_MB"); v != "" {
		if mb, err := strconv.ParseFloat(v, 64); err == nil && mb > 0 {
			c.Watcher.MaxFileMB = mb
		}
	}

	if v := os.Getenv("VECTOR_MODE"); v != "" {
		c.Vector.Mode = v
	}
	if v := os.Getenv("QDRANT_URL"); v != "" {
		c.Vector.QdrantURL = v
		if os.Getenv("VECTOR_MODE") == "" {
			c.Vector.Mode = "qdrant"
		}
	}

	if v := os.Getenv("OLLAMA_URL"); v != "" {
		c.LLM.OllamaURL = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("OLLAMA_EMBED_MODEL"); v != "" {
		c.LLM.EmbedModel = v
	}
	if v := os.Getenv("EMBED_MODE"); v != "" {
		c.LLM.EmbedMode = v
	}

	if v := os.Getenv("MODELS_DIR"); v != "" {
		c.Models.Dir = v
	}
	if v := os.Getenv("WHISPER_MODE"); v != "" {
		c.Models.WhisperMode = v
	}
	if v := os.Getenv("OPENCLIP_MODE"); v != "" {
		c.Models.OpenCLIPMode = v
	}
	if v := os.Getenv("CLIP_URL"); v != "" {
		c.Models.CLIPURL = v
	}

	if v := os.Getenv("TIKA_URL"); v != "" {
		c.Extraction.TikaURL = v
	}

	if v := os.Getenv("API_ADDR"); v != "" {
		c.API.Addr = v
	}
	if v := os.Getenv("CAPTURE_API_KEY"); v != "" {
		c.API.CaptureAPIKey = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must not be empty")
	}
	if c.Vector.Mode != "local" && c.Vector.Mode != "qdrant" {
		return fmt.Errorf("invalid vector.mode: %s (valid: local, qdrant)", c.Vector.Mode)
	}
	if c.Models.WhisperMode != "local" && c.Models.WhisperMode != "stub" {
		return fmt.Errorf("invalid models.whisper_mode: %s (valid: local, stub)", c.Models.WhisperMode)
	}
	if c.Models.OpenCLIPMode != "local" && c.Models.OpenCLIPMode != "stub" {
		return fmt.Errorf("invalid models.openclip_mode: %s (valid: local, stub)", c.Models.OpenCLIPMode)
	}
	if c.LLM.EmbedMode != "ollama" && c.LLM.EmbedMode != "stub" {
		return fmt.Errorf("invalid llm.embed_mode: %s (valid: ollama, stub)", c.LLM.EmbedMode)
	}
	if c.Tools.DefaultTimeoutMS < 100 || c.Tools.DefaultTimeoutMS > 300000 {
		return fmt.Errorf("tools.default_timeout_ms out of range [100, 300000]: %d", c.Tools.DefaultTimeoutMS)
	}
	return nil
}

// DBPath returns the SQLite database path, derived from the data
// directory when not set explicitly.
func (c *Config) DBPath() string {
	if c.Storage.DBPath != "" {
		return c.Storage.DBPath
	}
	return filepath.Join(c.Storage.DataDir, "sqlite", "engram.db")
}

// VectorDBPath returns the local vector store file.
func (c *Config) VectorDBPath() string {
	return filepath.Join(c.Storage.DataDir, "sqlite", "vectors.db")
}

// ThumbDir returns the thumbnail cache directory.
func (c *Config) ThumbDir() string {
	if c.Storage.ThumbDir != "" {
		return c.Storage.ThumbDir
	}
	return filepath.Join(c.Storage.DataDir, "thumbs")
}

// CapturesDir returns the directory where capture bodies are persisted.
func (c *Config) CapturesDir() string {
	return filepath.Join(c.Storage.DataDir, "captures")
}

// MaxFileBytes returns the watcher file-size cap in bytes.
func (c *Config) MaxFileBytes() int64 {
	return int64(c.Watcher.MaxFileMB * 1024 * 1024)
}

// PollInterval returns the watcher scan interval as a duration.
func (c *Config) PollInterval() time.Duration {
	d, err := time.ParseDuration(c.Watcher.PollInterval)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// WorkerPollInterval returns the worker claim interval as a duration.
func (c *Config) WorkerPollInterval() time.Duration {
	d, err := time.ParseDuration(c.Worker.PollInterval)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// LLMTimeout returns the generative model timeout as a duration.
func (c *Config) LLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// VectorTimeout returns the object store timeout as a duration.
func (c *Config) VectorTimeout() time.Duration {
	d, err := time.ParseDuration(c.Vector.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// ExtractionTimeout returns the text-extraction timeout as a duration.
func (c *Config) ExtractionTimeout() time.Duration {
	d, err := time.ParseDuration(c.Extraction.Timeout)
	if err != nil || d <= 0 {
		return 20 * time.Second
	}
	return d
}

// DefaultConfigPath returns the config file path under the data directory.
// DATA_DIR is consulted so that the config file and the data it describes
// stay co-located.
func DefaultConfigPath() string {
	dir := os.Getenv("DATA_DIR")
	if dir == "" {
		dir = "data"
	}
	return filepath.Join(dir, "config.yaml")
}
