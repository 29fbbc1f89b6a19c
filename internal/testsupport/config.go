package testsupport

import (
	"path/filepath"
	"testing"

	"dripfeed/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t   testing.TB
	cfg *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Catalog.Path = filepath.Join(base, "apps.json")
	cfgVal.Executor.Endpoint = "http://127.0.0.1:1/events"
	cfgVal.Executor.TimeoutSeconds = 5
	cfgVal.Workflow.ClaimGraceSeconds = 1

	builder := &configBuilder{t: t, cfg: &cfgVal}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithEndpoint points the executor at a test server.
func WithEndpoint(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Executor.Endpoint = url
	}
}

// WithAPIToken requires bearer auth on the HTTP API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}
