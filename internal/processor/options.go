package processor

import (
	"log/slog"
	"time"

	"dripfeed/internal/metrics"
	"dripfeed/internal/notifications"
)

// Option configures a Processor.
type Option func(*Processor)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// WithRand overrides the source of uniform [0,1) samples used for delays.
func WithRand(sample func() float64) Option {
	return func(p *Processor) {
		if sample != nil {
			p.sample = sample
		}
	}
}

// WithLogger sets the logger; the processor adds its own component attribute.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithMetrics attaches a Prometheus collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(p *Processor) {
		p.metrics = c
	}
}

// WithNotifier routes lifecycle events to svc. Publish must not block; wrap
// slow transports in a notifications.Dispatcher.
func WithNotifier(svc notifications.Service) Option {
	return func(p *Processor) {
		if svc != nil {
			p.notifier = svc
		}
	}
}

// WithScanGuard serializes scans across processes. A scan that cannot take
// the guard returns idle without touching the store.
func WithScanGuard(guard ScanGuard) Option {
	return func(p *Processor) {
		p.guard = guard
	}
}

// WithConcurrency bounds how many jobs are advanced in parallel.
func WithConcurrency(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithExecTimeout bounds each executor call.
func WithExecTimeout(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.execTimeout = d
		}
	}
}

// WithClaimGrace extends the lease beyond the executor timeout to cover the
// store write that follows it.
func WithClaimGrace(d time.Duration) Option {
	return func(p *Processor) {
		if d >= 0 {
			p.claimGrace = d
		}
	}
}
