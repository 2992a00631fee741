package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// resetState clears package state so each test starts from a clean slate.
func resetState() {
	CloseAll()
	loggers = make(map[Category]*Logger)
	logsDir = ""
	dataDir = ""
	config = loggingConfig{}
	logLevel = LevelInfo
}

// TestAllCategoriesLog tests that all categories create log files when debug_mode is true
func TestAllCategoriesLog(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configContent := `logging:
  level: debug
  debug_mode: true
  categories:
    boot: true
    config: true
    store: true
    graph: true
    vector: true
    llm: true
    extract: true
    tools: true
    watcher: true
    queue: true
    worker: true
    orchestrator: true
    retrieval: true
    chat: true
    api: true
`
	if err := os.WriteFile(filepath.Join(tempDir, "config.yaml"), []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if !IsDebugMode() {
		t.Error("Expected debug mode to be enabled")
	}

	categories := []Category{
		CategoryBoot,
		CategoryConfig,
		CategoryStore,
		CategoryGraph,
		CategoryVector,
		CategoryLLM,
		CategoryExtract,
		CategoryTools,
		CategoryWatcher,
		CategoryQueue,
		CategoryWorker,
		CategoryOrchestrator,
		CategoryRetrieval,
		CategoryChat,
		CategoryAPI,
	}

	for _, cat := range categories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be enabled", cat)
		}

		logger := Get(cat)
		logger.Info("Test info message for %s", cat)
		logger.Debug("Test debug message for %s", cat)
		logger.Warn("Test warn message for %s", cat)
		logger.Error("Test error message for %s", cat)
	}

	// Also test convenience functions
	Boot("Convenience boot log")
	Store("Convenience store log")
	Graph("Convenience graph log")
	Vector("Convenience vector log")
	LLM("Convenience llm log")
	Tools("Convenience tools log")
	Watcher("Convenience watcher log")
	Queue("Convenience queue log")
	Worker("Convenience worker log")
	Orchestrator("Convenience orchestrator log")
	Retrieval("Convenience retrieval log")
	Chat("Convenience chat log")
	API("Convenience api log")

	CloseAll()

	logsPath := filepath.Join(tempDir, "logs")
	entries, err := os.ReadDir(logsPath)
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}

	t.Logf("Created %d log files in %s", len(entries), logsPath)

	for _, cat := range categories {
		found := false
		for _, entry := range entries {
			if strings.Contains(entry.Name(), "_"+string(cat)+".log") {
				found = true
				content, err := os.ReadFile(filepath.Join(logsPath, entry.Name()))
				if err != nil {
					t.Errorf("Failed to read log file for %s: %v", cat, err)
					continue
				}
				if len(content) == 0 {
					t.Errorf("Log file for %s is empty", cat)
				}
				break
			}
		}
		if !found {
			t.Errorf("No log file found for category: %s", cat)
		}
	}
}

// TestDebugModeDisabled tests that no logs are created when debug_mode is false
func TestDebugModeDisabled(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_disabled")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configContent := `logging:
  level: debug
  debug_mode: false
  categories:
    boot: true
    store: true
`
	if err := os.WriteFile(filepath.Join(tempDir, "config.yaml"), []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if IsDebugMode() {
		t.Error("Expected debug mode to be DISABLED (production mode)")
	}

	for _, cat := range []Category{CategoryBoot, CategoryStore, CategoryChat} {
		if IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be DISABLED when debug_mode=false", cat)
		}
	}

	// Try to log - should be no-ops
	Boot("This should NOT be logged")
	Store("This should NOT be logged")

	logger := Get(CategoryBoot)
	logger.Info("This should NOT be logged")
	logger.Debug("This should NOT be logged")
	logger.Error("This should NOT be logged")

	CloseAll()

	// Logs directory shouldn't even exist
	logsPath := filepath.Join(tempDir, "logs")
	if _, err := os.Stat(logsPath); err == nil {
		entries, _ := os.ReadDir(logsPath)
		if len(entries) > 0 {
			t.Errorf("Expected NO log files in production mode, but found %d files", len(entries))
		}
	}
}

// TestMissingConfigMeansProductionMode tests that an absent config file disables logging
func TestMissingConfigMeansProductionMode(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_noconfig")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	resetState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if IsDebugMode() {
		t.Error("Expected debug mode to default to disabled with no config file")
	}
	if IsCategoryEnabled(CategoryStore) {
		t.Error("Categories should be disabled with no config file")
	}
}

// TestCategoryToggle tests individual category enable/disable
func TestCategoryToggle(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_category")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configContent := `logging:
  level: debug
  debug_mode: true
  categories:
    boot: true
    store: true
    watcher: false
    chat: false
`
	if err := os.WriteFile(filepath.Join(tempDir, "config.yaml"), []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize: %v", err)
	}

	if !IsCategoryEnabled(CategoryBoot) {
		t.Error("boot should be enabled")
	}
	if !IsCategoryEnabled(CategoryStore) {
		t.Error("store should be enabled")
	}
	if IsCategoryEnabled(CategoryWatcher) {
		t.Error("watcher should be DISABLED")
	}
	if IsCategoryEnabled(CategoryChat) {
		t.Error("chat should be DISABLED")
	}

	// Category not in config defaults to enabled when debug_mode=true
	if !IsCategoryEnabled(CategoryGraph) {
		t.Error("graph (not in config) should default to enabled")
	}

	Boot("This SHOULD be logged")
	Store("This SHOULD be logged")
	Watcher("This should NOT be logged")
	Chat("This should NOT be logged")
	Graph("This SHOULD be logged (default enabled)")

	CloseAll()

	logsPath := filepath.Join(tempDir, "logs")
	entries, _ := os.ReadDir(logsPath)

	hasBoot, hasStore, hasWatcher, hasChat := false, false, false, false
	for _, e := range entries {
		name := e.Name()
		if strings.Contains(name, "_boot.log") {
			hasBoot = true
		}
		if strings.Contains(name, "_store.log") {
			hasStore = true
		}
		if strings.Contains(name, "_watcher.log") {
			hasWatcher = true
		}
		if strings.Contains(name, "_chat.log") {
			hasChat = true
		}
	}

	if !hasBoot {
		t.Error("Expected boot log file")
	}
	if !hasStore {
		t.Error("Expected store log file")
	}
	if hasWatcher {
		t.Error("Should NOT have watcher log file (disabled)")
	}
	if hasChat {
		t.Error("Should NOT have chat log file (disabled)")
	}
}

// TestTraceLogger tests trace-scoped log correlation
func TestTraceLogger(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_trace")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configContent := `logging:
  level: debug
  debug_mode: true
`
	os.WriteFile(filepath.Join(tempDir, "config.yaml"), []byte(configContent), 0644)

	resetState()
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize: %v", err)
	}

	tl := WithTraceID(CategoryOrchestrator, "abc123")
	tl.Info("pipeline started")
	tl.WithField("step", "doc_parse").Debug("dispatching")
	tl.Error("step failed")

	CloseAll()

	logsPath := filepath.Join(tempDir, "logs")
	entries, err := os.ReadDir(logsPath)
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}

	var content []byte
	for _, e := range entries {
		if strings.Contains(e.Name(), "_orchestrator.log") {
			content, err = os.ReadFile(filepath.Join(logsPath, e.Name()))
			if err != nil {
				t.Fatalf("Failed to read orchestrator log: %v", err)
			}
		}
	}

	if !strings.Contains(string(content), "[trace:abc123]") {
		t.Error("Expected trace id in log lines")
	}
	if !strings.Contains(string(content), "pipeline started") {
		t.Error("Expected trace log message in file")
	}
}

// TestTimerLogging tests the timing helper
func TestTimerLogging(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_timer")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configContent := `logging:
  level: debug
  debug_mode: true
`
	os.WriteFile(filepath.Join(tempDir, "config.yaml"), []byte(configContent), 0644)

	resetState()
	Initialize(tempDir)

	timer := StartTimer(CategoryStore, "TestOperation")
	time.Sleep(time.Millisecond)
	elapsed := timer.Stop()

	if elapsed <= 0 {
		t.Error("Timer should have recorded non-zero duration")
	}

	CloseAll()
}
