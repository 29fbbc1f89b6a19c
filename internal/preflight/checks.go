package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"dripfeed/internal/catalog"
	"dripfeed/internal/config"
	"dripfeed/internal/logging"
	"dripfeed/internal/queue"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckQueueDatabase opens the queue database and verifies schema and integrity.
// A database that does not exist yet passes: it is created on first use.
func CheckQueueDatabase(ctx context.Context, path string) Result {
	const name = "Queue database"

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (not created yet)", path)}
	}
	store, err := queue.OpenPath(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("open failed (%v)", err)}
	}
	defer store.Close()

	health, err := store.CheckHealth(ctx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%v)", err)}
	}
	switch {
	case !health.IntegrityCheck:
		return Result{Name: name, Detail: "integrity check failed"}
	case len(health.MissingColumns) > 0:
		return Result{Name: name, Detail: "missing columns: " + strings.Join(health.MissingColumns, ", ")}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d jobs, schema v%d", health.TotalJobs, health.SchemaVersion)}
}

// CheckExecutorEndpoint verifies that the endpoint is configured and answers
// HTTP. Any response status counts as reachable.
func CheckExecutorEndpoint(ctx context.Context, endpoint string) Result {
	const name = "Executor endpoint"

	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return Result{Name: name, Detail: "not configured (set executor.endpoint)"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodHead, endpoint, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid endpoint (%v)", err)}
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	resp.Body.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("reachable (%d)", resp.StatusCode)}
}

// CheckCatalog verifies that the app catalog parses.
func CheckCatalog(path string) Result {
	const name = "App catalog"

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (absent, explicit steps only)", path)}
	}
	apps, err := catalog.Open(path, logging.NewNop())
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d apps", len(apps.Apps()))}
}

// CheckNotifications reports which notification transports are configured.
func CheckNotifications(cfg *config.Config) Result {
	const name = "Notifications"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	var targets []string
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		targets = append(targets, "ntfy")
	}
	if strings.TrimSpace(cfg.Notifications.DiscordWebhook) != "" {
		targets = append(targets, "discord")
	}
	if len(targets) == 0 {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	return Result{Name: name, Passed: true, Detail: strings.Join(targets, ", ")}
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "unreachable (timed out)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "unreachable (timed out)"
	}
	return fmt.Sprintf("unreachable (%v)", err)
}
