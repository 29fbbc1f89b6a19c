package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// ConfigEnvVar names the environment variable that overrides the config search path.
const ConfigEnvVar = "DRIPFEED_CONFIG"

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Catalog points at the JSON app catalog used to resolve event names into step tokens.
type Catalog struct {
	Path string `toml:"path"`
}

// Executor contains configuration for the outbound step executor.
type Executor struct {
	Endpoint       string `toml:"endpoint"`
	Method         string `toml:"method"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	UserAgent      string `toml:"user_agent"`
}

// Workflow contains configuration for the scan loop.
type Workflow struct {
	PollIntervalSeconds    int `toml:"poll_interval_seconds"`
	MaxConcurrency         int `toml:"max_concurrency"`
	ClaimGraceSeconds      int `toml:"claim_grace_seconds"`
	CompletedRetentionDays int `toml:"completed_retention_days"`
}

// Notifications contains configuration for lifecycle notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	DiscordWebhook string `toml:"discord_webhook"`
	RequestTimeout int    `toml:"request_timeout_seconds"`
	StepExecuted   bool   `toml:"step_executed"`
	JobCompleted   bool   `toml:"job_completed"`
	StepFailed     bool   `toml:"step_failed"`
	StorageErrors  bool   `toml:"storage_errors"`
	MaxPerMinute   int    `toml:"max_per_minute"`
	Buffer         int    `toml:"buffer"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for dripfeed.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Catalog: app catalog used by enqueue and the jobs API
//   - Executor: outbound endpoint and timeout for each step
//   - Workflow: poll interval, scan concurrency, claim lease grace
//   - Notifications: ntfy and Discord lifecycle messages
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Catalog       Catalog       `toml:"catalog"`
	Executor      Executor      `toml:"executor"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if strings.TrimSpace(path) == "" {
		path = strings.TrimSpace(os.Getenv(ConfigEnvVar))
	}
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("dripfeed.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite queue database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "queue.db")
}

// DaemonLockPath returns the single-instance lock file for the daemon.
func (c *Config) DaemonLockPath() string {
	return filepath.Join(c.Paths.DataDir, "dripfeed.lock")
}

// ScanLockPath returns the lock file that serializes scans across processes.
func (c *Config) ScanLockPath() string {
	return filepath.Join(c.Paths.DataDir, "scan.lock")
}

// PIDPath returns the file recording the running daemon's process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "dripfeed.pid")
}

// LogFilePath returns the primary log file.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.Paths.LogDir, "dripfeed.log")
}

// PollInterval returns the daemon scan interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Workflow.PollIntervalSeconds) * time.Second
}

// ExecutorTimeout bounds a single outbound step call.
func (c *Config) ExecutorTimeout() time.Duration {
	return time.Duration(c.Executor.TimeoutSeconds) * time.Second
}

// ClaimGrace is added on top of the executor timeout when leasing a job.
func (c *Config) ClaimGrace() time.Duration {
	return time.Duration(c.Workflow.ClaimGraceSeconds) * time.Second
}

// NotificationTimeout bounds a single notification request.
func (c *Config) NotificationTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
