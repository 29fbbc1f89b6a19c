package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"dripfeed/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv(config.ConfigEnvVar, "")
	t.Setenv("DRIPFEED_ENDPOINT", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved != filepath.Join(tempHome, ".config", "dripfeed", "config.toml") {
		t.Fatalf("unexpected resolved path %q", resolved)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "dripfeed")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7488" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.PollInterval() != 5*time.Minute {
		t.Fatalf("unexpected poll interval: %s", cfg.PollInterval())
	}
	if cfg.ExecutorTimeout() != 30*time.Second {
		t.Fatalf("unexpected executor timeout: %s", cfg.ExecutorTimeout())
	}
	if cfg.Executor.Method != "POST" {
		t.Fatalf("unexpected executor method: %q", cfg.Executor.Method)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "queue.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "dripfeed.toml")

	type payload struct {
		Paths struct {
			DataDir string `toml:"data_dir"`
		} `toml:"paths"`
		Executor struct {
			Endpoint       string `toml:"endpoint"`
			Method         string `toml:"method"`
			TimeoutSeconds int    `toml:"timeout_seconds"`
		} `toml:"executor"`
		Workflow struct {
			PollIntervalSeconds int `toml:"poll_interval_seconds"`
		} `toml:"workflow"`
	}
	custom := payload{}
	custom.Paths.DataDir = filepath.Join(tempDir, "data")
	custom.Executor.Endpoint = "https://collector.example.com/events"
	custom.Executor.Method = " get "
	custom.Executor.TimeoutSeconds = 5
	custom.Workflow.PollIntervalSeconds = 60

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Executor.Method != "GET" {
		t.Fatalf("expected normalized method GET, got %q", cfg.Executor.Method)
	}
	if cfg.Executor.Endpoint != "https://collector.example.com/events" {
		t.Fatalf("unexpected endpoint %q", cfg.Executor.Endpoint)
	}
	if cfg.ExecutorTimeout() != 5*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.ExecutorTimeout())
	}
	if cfg.PollInterval() != time.Minute {
		t.Fatalf("unexpected poll interval %s", cfg.PollInterval())
	}
	if cfg.Workflow.MaxConcurrency != config.Default().Workflow.MaxConcurrency {
		t.Fatalf("expected default concurrency, got %d", cfg.Workflow.MaxConcurrency)
	}
}

func TestLoadUsesEnvironmentConfigPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "env.toml")
	content := "[logging]\nlevel = \"debug\"\nformat = \"json\"\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(config.ConfigEnvVar, configPath)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected env config, got %q exists=%v", resolved, exists)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging config %+v", cfg.Logging)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(configPath, []byte("[workflow]\npoll_interval = 10\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"method", func(c *config.Config) { c.Executor.Method = "PUT" }, "executor.method"},
		{"endpoint", func(c *config.Config) { c.Executor.Endpoint = "collector.local/events" }, "executor.endpoint"},
		{"poll", func(c *config.Config) { c.Workflow.PollIntervalSeconds = 0 }, "workflow.poll_interval_seconds"},
		{"concurrency", func(c *config.Config) { c.Workflow.MaxConcurrency = -1 }, "workflow.max_concurrency"},
		{"grace", func(c *config.Config) { c.Workflow.ClaimGraceSeconds = -5 }, "workflow.claim_grace_seconds"},
		{"rate", func(c *config.Config) { c.Notifications.MaxPerMinute = -1 }, "notifications.max_per_minute"},
		{"discord", func(c *config.Config) { c.Notifications.DiscordWebhook = "not a url" }, "notifications.discord_webhook"},
		{"level", func(c *config.Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleLoadsCleanly(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Workflow.ClaimGraceSeconds != 60 {
		t.Fatalf("unexpected claim grace %d", cfg.Workflow.ClaimGraceSeconds)
	}
}
