package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/56kcloud/mb-client/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"MB_API_KEY", "MB_API_HOST", "MB_WEBSOCKET_HOST", "XDG_STATE_HOME"} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaultConfigExpandsStateDir(t *testing.T) {
	clearEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved != filepath.Join(tempHome, ".config", "mbclient", "config.toml") {
		t.Fatalf("unexpected resolved path %q", resolved)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "state", "mbclient")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.JournalPath() != filepath.Join(wantState, "journal.db") {
		t.Fatalf("unexpected journal path %q", cfg.JournalPath())
	}
	if cfg.LockDir() != filepath.Join(wantState, "locks") {
		t.Fatalf("unexpected lock dir %q", cfg.LockDir())
	}
	if cfg.DesignTimeout() != 5*time.Minute {
		t.Fatalf("unexpected design timeout %v", cfg.DesignTimeout())
	}
	if cfg.RequestTimeout() != 30*time.Second {
		t.Fatalf("unexpected request timeout %v", cfg.RequestTimeout())
	}
	if cfg.API.Host != config.Default().API.Host {
		t.Fatalf("unexpected api host %q", cfg.API.Host)
	}
	if cfg.Design.DefaultBookSize != "10x10" || cfg.Design.DefaultStyle != 1004 {
		t.Fatalf("unexpected design defaults %+v", cfg.Design)
	}
	if err := cfg.RequireAPIKey(); err == nil || !strings.Contains(err.Error(), "MB_API_KEY") {
		t.Fatalf("expected missing key error mentioning MB_API_KEY, got %v", err)
	}
}

func TestLoadHonoursXDGStateHome(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	state := t.TempDir()
	t.Setenv("XDG_STATE_HOME", state)

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.StateDir != filepath.Join(state, "mbclient") {
		t.Fatalf("unexpected state dir %q", cfg.Paths.StateDir)
	}
}

func TestLoadCustomPath(t *testing.T) {
	clearEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "mbclient.toml")
	content := `
[api]
host = "http://localhost:8080/"
websocket_host = "ws://localhost:8081"
api_key = "file-key"

[design]
timeout_seconds = 42
default_book_size = " 12X12 "

[paths]
state_dir = "~/mb-state"

[logging]
format = "JSON"
level = "Debug"
file = "~/logs/mbclient.log"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution %q (%v)", resolved, exists)
	}
	if cfg.API.Host != "http://localhost:8080" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.API.Host)
	}
	if cfg.API.APIKey != "file-key" {
		t.Fatalf("unexpected api key %q", cfg.API.APIKey)
	}
	if cfg.DesignTimeout() != 42*time.Second {
		t.Fatalf("unexpected design timeout %v", cfg.DesignTimeout())
	}
	if cfg.Design.DefaultBookSize != "12x12" {
		t.Fatalf("unexpected book size %q", cfg.Design.DefaultBookSize)
	}
	if cfg.Design.DefaultCoverType != "sc" {
		t.Fatalf("expected missing keys to keep defaults, got %q", cfg.Design.DefaultCoverType)
	}
	if cfg.Paths.StateDir != filepath.Join(tempHome, "mb-state") {
		t.Fatalf("unexpected state dir %q", cfg.Paths.StateDir)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging %+v", cfg.Logging)
	}
	if cfg.Logging.File != filepath.Join(tempHome, "logs", "mbclient.log") {
		t.Fatalf("unexpected log file %q", cfg.Logging.File)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	if info, err := os.Stat(cfg.LockDir()); err != nil || !info.IsDir() {
		t.Fatalf("expected lock dir to exist: %v", err)
	}
}

func TestEnvVarOverridesConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MB_API_KEY", " env-key ")
	t.Setenv("MB_API_HOST", "https://staging.example.com")
	t.Setenv("MB_WEBSOCKET_HOST", "wss://socket.staging.example.com")

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := "[api]\napi_key = \"file-key\"\nhost = \"https://file.example.com\"\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.API.APIKey != "env-key" {
		t.Fatalf("expected env api key, got %q", cfg.API.APIKey)
	}
	if cfg.API.Host != "https://staging.example.com" {
		t.Fatalf("expected env host, got %q", cfg.API.Host)
	}
	if cfg.API.WebSocketHost != "wss://socket.staging.example.com" {
		t.Fatalf("expected env websocket host, got %q", cfg.API.WebSocketHost)
	}
	if err := cfg.RequireAPIKey(); err != nil {
		t.Fatalf("RequireAPIKey: %v", err)
	}
}

func TestLoadFallsBackToProjectFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	project := t.TempDir()
	t.Chdir(project)
	if err := os.WriteFile("mbclient.toml", []byte("[design]\ntimeout_seconds = 7\n"), 0o644); err != nil {
		t.Fatalf("write project config: %v", err)
	}

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || filepath.Base(resolved) != "mbclient.toml" {
		t.Fatalf("expected project config, got %q (%v)", resolved, exists)
	}
	if cfg.Design.TimeoutSeconds != 7 {
		t.Fatalf("unexpected timeout %d", cfg.Design.TimeoutSeconds)
	}
}

func TestCreateSample(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var parsed config.Config
	if err := toml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("sample config is not valid TOML: %v", err)
	}
	if parsed.Design.TimeoutSeconds != config.Default().Design.TimeoutSeconds {
		t.Fatalf("sample timeout %d does not match default", parsed.Design.TimeoutSeconds)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if !exists || cfg.API.WebSocketHost != config.Default().API.WebSocketHost {
		t.Fatalf("unexpected sample load result %+v", cfg.API)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"bad host scheme", func(c *config.Config) { c.API.Host = "ftp://example.com" }, "api.host"},
		{"missing host", func(c *config.Config) { c.API.Host = "https://" }, "api.host"},
		{"http websocket", func(c *config.Config) { c.API.WebSocketHost = "https://socket.example.com" }, "api.websocket_host"},
		{"request timeout", func(c *config.Config) { c.API.RequestTimeout = -1 }, "api.request_timeout"},
		{"design timeout", func(c *config.Config) { c.Design.TimeoutSeconds = -5 }, "design.timeout_seconds"},
		{"style", func(c *config.Config) { c.Design.DefaultStyle = -1 }, "design.default_style"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"log level", func(c *config.Config) { c.Logging.Level = "trace" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}
