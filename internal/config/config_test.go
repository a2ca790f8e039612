package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleConfig = `
server:
  host: 127.0.0.1
  port: "9090"
backend:
  base_url: http://backend.local:8000
  api_key: file-key
  timeout_seconds: 15
chat:
  streaming: false
  history_limit: 10
news:
  api_key: news-key
log:
  level: debug
`

// TestLoad_File verifies file values land in the struct and unset keys keep
// their defaults.
func TestLoad_File(t *testing.T) {
	tmp, err := os.CreateTemp(t.TempDir(), "cfg-*.yaml")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	if _, err := tmp.WriteString(sampleConfig); err != nil {
		t.Fatalf("write: %v", err)
	}
	tmp.Close()

	t.Setenv("CONFIG_PATH", tmp.Name())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != "9090" {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Backend.BaseURL != "http://backend.local:8000" {
		t.Fatalf("unexpected backend url: %s", cfg.Backend.BaseURL)
	}
	if cfg.Backend.TimeoutSeconds != 15 {
		t.Fatalf("unexpected timeout: %d", cfg.Backend.TimeoutSeconds)
	}
	if cfg.Chat.Streaming {
		t.Fatal("streaming should be disabled by the file")
	}
	if cfg.Chat.HistoryLimit != 10 {
		t.Fatalf("unexpected history limit: %d", cfg.Chat.HistoryLimit)
	}
	if cfg.News.APIKey != "news-key" {
		t.Fatalf("unexpected news key: %s", cfg.News.APIKey)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("unexpected log level: %s", cfg.Log.Level)
	}

	// Keys the file does not mention keep their defaults.
	if cfg.Chat.StageDelayMS != 400 || cfg.Chat.CompleteDelayMS != 1200 {
		t.Fatalf("unexpected delays: %+v", cfg.Chat)
	}
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected model default: %s", cfg.LLM.Model)
	}
	if cfg.News.BaseURL != "https://newsapi.org/v2" {
		t.Fatalf("unexpected news base url: %s", cfg.News.BaseURL)
	}
	if cfg.Store.Path != "sentimochi.db" {
		t.Fatalf("unexpected store path: %s", cfg.Store.Path)
	}
}

// TestLoad_MissingFileUsesDefaults verifies a missing config file is not an
// error.
func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != "8080" {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
	if !cfg.Chat.Streaming {
		t.Fatal("streaming should default to on")
	}
	if cfg.Backend.TimeoutSeconds != 30 {
		t.Fatalf("unexpected timeout default: %d", cfg.Backend.TimeoutSeconds)
	}
}

// TestLoad_EnvOverridesFile verifies SENTIMOCHI_* variables win over the
// config file.
func TestLoad_EnvOverridesFile(t *testing.T) {
	tmp, err := os.CreateTemp(t.TempDir(), "cfg-*.yaml")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	if _, err := tmp.WriteString(sampleConfig); err != nil {
		t.Fatalf("write: %v", err)
	}
	tmp.Close()

	t.Setenv("CONFIG_PATH", tmp.Name())
	t.Setenv("SENTIMOCHI_BACKEND_API_KEY", "env-key")
	t.Setenv("SENTIMOCHI_LOG_LEVEL", "warn")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Backend.APIKey != "env-key" {
		t.Fatalf("env override lost: %s", cfg.Backend.APIKey)
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("env override lost: %s", cfg.Log.Level)
	}
	// File values without overrides are untouched.
	if cfg.Backend.BaseURL != "http://backend.local:8000" {
		t.Fatalf("unexpected backend url: %s", cfg.Backend.BaseURL)
	}
}
