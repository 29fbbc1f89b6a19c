package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"dripfeed/internal/api"
	"dripfeed/internal/catalog"
	"dripfeed/internal/config"
	"dripfeed/internal/logging"
	"dripfeed/internal/metrics"
	"dripfeed/internal/processor"
	"dripfeed/internal/queue"
)

const housekeepingInterval = time.Hour

// Scanner runs one scan pass.
type Scanner interface {
	RunOnce(ctx context.Context) processor.Summary
}

// Options carries the collaborators a daemon coordinates.
type Options struct {
	Store     *queue.Store
	Scanner   Scanner
	Jobs      *api.JobService
	Catalog   *catalog.Catalog
	Metrics   *metrics.Collector
	Logger    *slog.Logger
	PollEvery time.Duration
}

// Daemon drives periodic scans and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	scanner  Scanner
	jobs     *api.JobService
	catalog  *catalog.Catalog
	metrics  *metrics.Collector
	interval time.Duration

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running   atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time

	mu            sync.RWMutex
	lastScan      *processor.Summary
	lastScanAt    time.Time
	lastHousekeep time.Time
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	if cfg == nil || opts.Store == nil || opts.Scanner == nil {
		return nil, errors.New("daemon requires config, store, and scanner")
	}
	interval := opts.PollEvery
	if interval <= 0 {
		interval = cfg.PollInterval()
	}
	jobs := opts.Jobs
	if jobs == nil {
		var resolver api.Resolver
		if opts.Catalog != nil {
			resolver = opts.Catalog
		}
		jobs = api.NewJobService(opts.Store, resolver, opts.Metrics)
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(opts.Logger, "daemon"),
		store:    opts.Store,
		scanner:  opts.Scanner,
		jobs:     jobs,
		catalog:  opts.Catalog,
		metrics:  opts.Metrics,
		interval: interval,
		lockPath: cfg.DaemonLockPath(),
		lock:     flock.New(cfg.DaemonLockPath()),
	}
	d.api = newAPIServer(cfg, d, d.logger)
	return d, nil
}

// Start acquires the daemon lock, begins the scan loop, and starts the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another dripfeed daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.startedAt = time.Now()
	d.running.Store(true)

	d.wg.Add(1)
	go d.runLoop(runCtx)
	if d.catalog != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.catalog.Watch(runCtx); err != nil {
				logging.WarnWithContext(d.logger, "catalog watcher stopped", "catalog_watch_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "catalog edits are picked up on next lookup instead"),
				)
			}
		}()
	}

	d.logger.Info("dripfeed daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.Duration("poll_interval", d.interval),
	)
	return nil
}

// Stop halts the scan loop, shuts the API down, and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("dripfeed daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// APIAddress returns the bound API address, empty when the API is disabled or not started.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Tick runs one scan immediately.
func (d *Daemon) Tick(ctx context.Context) processor.Summary {
	summary := d.scanner.RunOnce(ctx)
	d.mu.Lock()
	d.lastScan = &summary
	d.lastScanAt = time.Now()
	d.mu.Unlock()
	return summary
}

// Status reports runtime information.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		PollInterval: d.interval.String(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
	}
	if !d.startedAt.IsZero() {
		status.StartedAt = d.startedAt.UTC().Format(time.RFC3339)
	}
	d.mu.RLock()
	if d.lastScan != nil {
		summary := api.FromSummary(*d.lastScan, d.lastScanAt)
		status.LastScan = &summary
	}
	d.mu.RUnlock()
	if queueStatus, err := d.jobs.Status(ctx); err == nil {
		status.Queue = queueStatus
	} else {
		d.logger.Warn("queue status unavailable", logging.Error(err))
	}
	return status
}

func (d *Daemon) runLoop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		d.Tick(ctx)
		d.housekeep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// housekeep prunes completed jobs past retention at most once per interval.
func (d *Daemon) housekeep(ctx context.Context) {
	days := d.cfg.Workflow.CompletedRetentionDays
	if days <= 0 || ctx.Err() != nil {
		return
	}
	d.mu.Lock()
	if time.Since(d.lastHousekeep) < housekeepingInterval {
		d.mu.Unlock()
		return
	}
	d.lastHousekeep = time.Now()
	d.mu.Unlock()

	res, err := d.jobs.Prune(ctx, time.Duration(days)*24*time.Hour)
	if err != nil {
		logging.WarnWithContext(d.logger, "prune completed jobs failed", "housekeeping_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return
	}
	if res.Removed > 0 {
		d.logger.Info("pruned completed jobs",
			logging.String(logging.FieldEventType, "jobs_pruned"),
			logging.Int64("removed", res.Removed),
			logging.Int("retention_days", days),
		)
	}
}
