package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateExecutor(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateExecutor() error {
	switch c.Executor.Method {
	case "GET", "POST":
	default:
		return fmt.Errorf("executor.method must be GET or POST, got %q", c.Executor.Method)
	}
	if c.Executor.Endpoint != "" {
		if err := validateHTTPURL("executor.endpoint", c.Executor.Endpoint); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"executor.timeout_seconds":              c.Executor.TimeoutSeconds,
		"workflow.poll_interval_seconds":        c.Workflow.PollIntervalSeconds,
		"workflow.max_concurrency":              c.Workflow.MaxConcurrency,
		"notifications.request_timeout_seconds": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Workflow.ClaimGraceSeconds < 0 {
		return errors.New("workflow.claim_grace_seconds must be >= 0")
	}
	if c.Workflow.CompletedRetentionDays < 0 {
		return errors.New("workflow.completed_retention_days must be >= 0")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.MaxPerMinute < 0 {
		return errors.New("notifications.max_per_minute must be >= 0")
	}
	if c.Notifications.DiscordWebhook != "" {
		if err := validateHTTPURL("notifications.discord_webhook", c.Notifications.DiscordWebhook); err != nil {
			return err
		}
	}
	if c.Notifications.NtfyTopic != "" {
		if err := validateHTTPURL("notifications.ntfy_topic", c.Notifications.NtfyTopic); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
}

func validateHTTPURL(key, value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if (scheme != "http" && scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", key, value)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
