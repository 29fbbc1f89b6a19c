package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"dripfeed/internal/catalog"
	"dripfeed/internal/config"
	"dripfeed/internal/daemon"
	"dripfeed/internal/executor"
	"dripfeed/internal/logging"
	"dripfeed/internal/metrics"
	"dripfeed/internal/notifications"
	"dripfeed/internal/processor"
	"dripfeed/internal/queue"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the dripfeed daemon and blocks until the context is cancelled or
// the process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("dripfeed-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.LogFilePath(), logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update dripfeed.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "dripfeed-*.log", Exclude: []string{logPath}},
	)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logging.ErrorWithContext(logger, "open queue store", "queue_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check data_dir permissions"),
		)
		return err
	}

	var apps *catalog.Catalog
	if path := strings.TrimSpace(cfg.Catalog.Path); path != "" {
		apps, err = catalog.Open(path, logger)
		if err != nil {
			logging.WarnWithContext(logger, "app catalog unavailable", "catalog_open_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "event-name submissions are rejected until the catalog loads"),
			)
			apps = nil
		}
	}

	collector := metrics.NewCollector()
	dispatcher := notifications.NewDispatcher(notifications.NewService(cfg, nil), notifications.DispatcherOptions{
		Buffer:       cfg.Notifications.Buffer,
		MaxPerMinute: cfg.Notifications.MaxPerMinute,
		SendTimeout:  cfg.NotificationTimeout(),
		Logger:       logger,
		Drops:        collector,
	})
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.NotificationTimeout())
		defer closeCancel()
		_ = dispatcher.Close(closeCtx)
	}()

	exec := executor.New(cfg, nil, logger)
	if !exec.Configured() {
		logging.WarnWithContext(logger, "executor endpoint not configured", "executor_unconfigured",
			logging.String(logging.FieldImpact, "due steps are popped and recorded as failed"),
			logging.String(logging.FieldErrorHint, "set executor.endpoint or DRIPFEED_ENDPOINT"),
		)
	}

	procOpts := append(processor.OptionsFromConfig(cfg),
		processor.WithLogger(logger),
		processor.WithMetrics(collector),
		processor.WithNotifier(dispatcher),
		processor.WithScanGuard(flock.New(cfg.ScanLockPath())),
	)
	proc := processor.New(store, exec, procOpts...)

	d, err := daemon.New(cfg, daemon.Options{
		Store:   store,
		Scanner: proc,
		Catalog: apps,
		Metrics: collector,
		Logger:  logger,
	})
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	logStartup(logger, cfg, exec.Configured(), apps)
	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another running instance and the api_bind address"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("dripfeed daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func ensureCurrentLogPointer(current, target string) error {
	if current == "" || target == "" {
		return nil
	}
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logStartup(logger *slog.Logger, cfg *config.Config, executorReady bool, apps *catalog.Catalog) {
	appCount, catalogPath := 0, ""
	if apps != nil {
		appCount, catalogPath = len(apps.Apps()), apps.Path()
	}
	logger.Info("runtime snapshot",
		logging.String(logging.FieldEventType, "runtime_snapshot"),
		logging.Bool("executor_configured", executorReady),
		logging.String("executor_method", cfg.Executor.Method),
		logging.Int("catalog_apps", appCount),
		logging.String("catalog_path", catalogPath),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.Bool("discord_configured", strings.TrimSpace(cfg.Notifications.DiscordWebhook) != ""),
		logging.Int("max_concurrency", cfg.Workflow.MaxConcurrency),
		logging.Duration("poll_interval", cfg.PollInterval()),
	)
}
