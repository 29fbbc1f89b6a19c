package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeExecutor()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("DRIPFEED_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}

	c.Catalog.Path = strings.TrimSpace(c.Catalog.Path)
	if c.Catalog.Path != "" {
		if c.Catalog.Path, err = expandPath(c.Catalog.Path); err != nil {
			return fmt.Errorf("catalog.path: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeExecutor() {
	c.Executor.Endpoint = strings.TrimSpace(c.Executor.Endpoint)
	if c.Executor.Endpoint == "" {
		if value, ok := os.LookupEnv("DRIPFEED_ENDPOINT"); ok {
			c.Executor.Endpoint = strings.TrimSpace(value)
		}
	}
	c.Executor.Method = strings.ToUpper(strings.TrimSpace(c.Executor.Method))
	if c.Executor.Method == "" {
		c.Executor.Method = defaultExecutorMethod
	}
	c.Executor.UserAgent = strings.TrimSpace(c.Executor.UserAgent)
	if c.Executor.UserAgent == "" {
		c.Executor.UserAgent = defaultExecutorUserAgent
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.Notifications.DiscordWebhook = strings.TrimSpace(c.Notifications.DiscordWebhook)
	if c.Notifications.DiscordWebhook == "" {
		if value, ok := os.LookupEnv("DRIPFEED_DISCORD_WEBHOOK"); ok {
			c.Notifications.DiscordWebhook = strings.TrimSpace(value)
		}
	}
	if c.Notifications.Buffer <= 0 {
		c.Notifications.Buffer = defaultNotifyBuffer
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
