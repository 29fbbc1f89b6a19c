package processor

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"dripfeed/internal/config"
	"dripfeed/internal/logging"
	"dripfeed/internal/metrics"
	"dripfeed/internal/notifications"
	"dripfeed/internal/queue"
	"dripfeed/internal/services"
)

// Status reports whether a scan found work.
type Status string

const (
	StatusIdle   Status = "idle"
	StatusActive Status = "active"
)

// Summary is the aggregate result of one scan.
type Summary struct {
	ScanID    string `json:"scanId"`
	Status    Status `json:"status"`
	Processed int    `json:"processed"`
	Due       int    `json:"due"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
}

// Store is the subset of the queue the processor drives.
type Store interface {
	DueJobs(ctx context.Context, now time.Time) ([]*queue.Job, error)
	Claim(ctx context.Context, job *queue.Job, leaseUntil time.Time) (bool, error)
	Update(ctx context.Context, job *queue.Job) error
}

// Executor performs the network action for one step. Failures are reported
// through the code and text, never by panicking or blocking past ctx.
type Executor interface {
	Execute(ctx context.Context, target queue.Target, payload string) (code int, text string)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, target queue.Target, payload string) (int, string)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, target queue.Target, payload string) (int, string) {
	return f(ctx, target, payload)
}

// ScanGuard is an advisory lock shared by every process that scans the same
// database. *flock.Flock satisfies it.
type ScanGuard interface {
	TryLock() (bool, error)
	Unlock() error
}

// Processor advances due jobs one step per scan.
type Processor struct {
	store    Store
	exec     Executor
	notifier notifications.Service
	metrics  *metrics.Collector
	logger   *slog.Logger
	guard    ScanGuard

	now         func() time.Time
	sample      func() float64
	concurrency int
	execTimeout time.Duration
	claimGrace  time.Duration

	mu sync.Mutex
}

// New constructs a Processor over store and exec.
func New(store Store, exec Executor, opts ...Option) *Processor {
	p := &Processor{
		store:       store,
		exec:        exec,
		notifier:    notifications.NewService(nil, nil),
		now:         time.Now,
		sample:      rand.Float64,
		concurrency: 4,
		execTimeout: 30 * time.Second,
		claimGrace:  time.Minute,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.NewComponentLogger(p.logger, "processor")
	return p
}

// OptionsFromConfig maps the workflow and executor settings onto options.
func OptionsFromConfig(cfg *config.Config) []Option {
	if cfg == nil {
		return nil
	}
	return []Option{
		WithConcurrency(cfg.Workflow.MaxConcurrency),
		WithExecTimeout(cfg.ExecutorTimeout()),
		WithClaimGrace(cfg.ClaimGrace()),
	}
}

// RunOnce performs a single scan. It never returns an error: storage failures
// while listing due jobs degrade to an idle summary and per-job failures are
// only visible through logs, metrics and notifications.
func (p *Processor) RunOnce(ctx context.Context) Summary {
	p.mu.Lock()
	defer p.mu.Unlock()

	scanID := uuid.NewString()
	ctx = services.WithScanID(ctx, scanID)
	logger := logging.WithContext(ctx, p.logger)
	summary := Summary{ScanID: scanID, Status: StatusIdle}
	started := time.Now()

	if p.guard != nil {
		locked, err := p.guard.TryLock()
		if err != nil {
			logging.WarnWithContext(logger, "scan guard unavailable; skipping scan", "scan_guard_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check permissions on the data directory"),
				logging.String(logging.FieldImpact, "due jobs wait for the next trigger"),
			)
			p.metrics.RecordScan("skipped", 0, time.Since(started), p.now())
			return summary
		}
		if !locked {
			logger.Debug("another scan holds the guard; skipping",
				logging.String(logging.FieldEventType, "scan_skipped"),
			)
			p.metrics.RecordScan("skipped", 0, time.Since(started), p.now())
			return summary
		}
		defer func() {
			if err := p.guard.Unlock(); err != nil {
				logger.Warn("release scan guard failed", logging.Error(err))
			}
		}()
	}

	jobs, err := p.store.DueJobs(ctx, p.now())
	if err != nil {
		p.metrics.RecordStorageError("due_jobs")
		logging.ErrorWithContext(logger, "list due jobs failed", "queue_fetch_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		p.publish(ctx, notifications.EventStorageError, notifications.Payload{"op": "due_jobs", "error": err})
		p.metrics.RecordScan("error", 0, time.Since(started), p.now())
		return summary
	}
	if len(jobs) == 0 {
		logger.Debug("no due jobs", logging.String(logging.FieldEventType, "scan_idle"))
		p.metrics.RecordScan(string(StatusIdle), 0, time.Since(started), p.now())
		return summary
	}

	summary.Status = StatusActive
	summary.Due = len(jobs)

	var (
		tally sync.Mutex
		group errgroup.Group
	)
	group.SetLimit(p.concurrency)
	for _, job := range jobs {
		group.Go(func() error {
			out := p.processJob(ctx, job)
			tally.Lock()
			summary.add(out)
			tally.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	logger.Info("scan finished",
		logging.String(logging.FieldEventType, "scan_finished"),
		logging.Int("due", summary.Due),
		logging.Int("processed", summary.Processed),
		logging.Int("completed", summary.Completed),
		logging.Int("failed", summary.Failed),
		logging.Int("skipped", summary.Skipped),
		logging.Duration("elapsed", time.Since(started)),
	)
	p.metrics.RecordScan(string(StatusActive), summary.Due, time.Since(started), p.now())
	return summary
}

func (p *Processor) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := p.notifier.Publish(ctx, event, payload); err != nil {
		logging.WithContext(ctx, p.logger).Debug("notification publish failed",
			logging.String("event", string(event)),
			logging.Error(err),
		)
	}
}

func (s *Summary) add(out jobOutcome) {
	if out.processed {
		s.Processed++
	}
	if out.completed {
		s.Completed++
	}
	if out.failed {
		s.Failed++
	}
	if out.skipped {
		s.Skipped++
	}
}
