package preflight

import (
	"context"
	"strings"

	"dripfeed/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every readiness check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckQueueDatabase(ctx, cfg.DatabasePath()),
		CheckExecutorEndpoint(ctx, cfg.Executor.Endpoint),
	}
	if strings.TrimSpace(cfg.Catalog.Path) != "" {
		results = append(results, CheckCatalog(cfg.Catalog.Path))
	}
	results = append(results, CheckNotifications(cfg))
	return results
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}
