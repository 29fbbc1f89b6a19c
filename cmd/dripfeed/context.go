package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"dripfeed/internal/api"
	"dripfeed/internal/catalog"
	"dripfeed/internal/config"
	"dripfeed/internal/logging"
	"dripfeed/internal/queue"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(c.flagPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

func (c *commandContext) flagPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

// withStore opens the queue database for the duration of fn.
func (c *commandContext) withStore(fn func(*config.Config, *queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	defer store.Close()
	return fn(cfg, store)
}

// withJobs wraps withStore with the job service used by the HTTP API.
func (c *commandContext) withJobs(fn func(*config.Config, *api.JobService) error) error {
	return c.withStore(func(cfg *config.Config, store *queue.Store) error {
		var resolver api.Resolver
		if path := strings.TrimSpace(cfg.Catalog.Path); path != "" {
			apps, err := catalog.Open(path, logging.NewNop())
			if err != nil {
				resolver = brokenCatalog{err: err}
			} else {
				resolver = apps
			}
		}
		return fn(cfg, api.NewJobService(store, resolver, nil))
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// brokenCatalog defers a catalog load error to the submissions that need it,
// so listing and removal keep working while the file is malformed.
type brokenCatalog struct{ err error }

func (b brokenCatalog) Resolve(string, []string) (queue.Target, queue.Steps, error) {
	return queue.Target{}, nil, b.err
}
