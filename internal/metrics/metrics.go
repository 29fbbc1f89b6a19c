// Package metrics exposes Prometheus instrumentation for the scan loop.
//
// Counters track steps executed by outcome, jobs completed, storage failures
// by operation, and scans by status. Histograms cover executor latency and
// whole-scan duration; gauges report the due backlog seen by the last scan.
// All methods are safe on a nil *Collector so callers can leave metrics off.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dripfeed"

// Step outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
)

// Collector owns a private registry so tests and multiple daemons never collide
// on the global default registerer.
type Collector struct {
	registry *prometheus.Registry

	stepsExecuted  *prometheus.CounterVec
	jobsCompleted  prometheus.Counter
	jobsSubmitted  prometheus.Counter
	storageErrors  *prometheus.CounterVec
	claimConflicts prometheus.Counter
	scans          *prometheus.CounterVec
	notifyDropped  prometheus.Counter

	executeDuration prometheus.Histogram
	scanDuration    prometheus.Histogram

	jobsDue      prometheus.Gauge
	lastScanUnix prometheus.Gauge
}

// NewCollector builds a collector with Go runtime and process collectors attached.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		stepsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_executed_total",
			Help:      "Steps sent to the executor, by outcome.",
		}, []string{"outcome"}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Jobs whose final step was processed.",
		}),
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Jobs accepted into the queue.",
		}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Queue store failures, by operation.",
		}, []string{"op"}),
		claimConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claim_conflicts_total",
			Help:      "Due jobs skipped because another scan claimed them first.",
		}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Processor scans, by resulting status.",
		}, []string{"status"}),
		notifyDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Notifications discarded because the buffer was full or the send failed.",
		}),
		executeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execute_duration_seconds",
			Help:      "Latency of a single executor call.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Wall time of a full scan pass.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		jobsDue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_due",
			Help:      "Due jobs found by the most recent scan.",
		}),
		lastScanUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_scan_timestamp_seconds",
			Help:      "Unix time the most recent scan finished.",
		}),
	}
	reg.MustRegister(
		c.stepsExecuted,
		c.jobsCompleted,
		c.jobsSubmitted,
		c.storageErrors,
		c.claimConflicts,
		c.scans,
		c.notifyDropped,
		c.executeDuration,
		c.scanDuration,
		c.jobsDue,
		c.lastScanUnix,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry backing this collector.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the collector in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RecordStep records one executor call.
func (c *Collector) RecordStep(outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.stepsExecuted.WithLabelValues(outcome).Inc()
	c.executeDuration.Observe(elapsed.Seconds())
}

// RecordJobCompleted counts a job reaching its terminal state.
func (c *Collector) RecordJobCompleted() {
	if c == nil {
		return
	}
	c.jobsCompleted.Inc()
}

// RecordJobSubmitted counts an accepted submission.
func (c *Collector) RecordJobSubmitted() {
	if c == nil {
		return
	}
	c.jobsSubmitted.Inc()
}

// RecordStorageError counts a failed store operation.
func (c *Collector) RecordStorageError(op string) {
	if c == nil {
		return
	}
	c.storageErrors.WithLabelValues(op).Inc()
}

// RecordClaimConflict counts a job skipped because its claim was lost.
func (c *Collector) RecordClaimConflict() {
	if c == nil {
		return
	}
	c.claimConflicts.Inc()
}

// RecordNotificationDropped counts a notification that was not delivered.
func (c *Collector) RecordNotificationDropped() {
	if c == nil {
		return
	}
	c.notifyDropped.Inc()
}

// RecordScan records the outcome of one scan pass.
func (c *Collector) RecordScan(status string, due int, elapsed time.Duration, finished time.Time) {
	if c == nil {
		return
	}
	c.scans.WithLabelValues(status).Inc()
	c.scanDuration.Observe(elapsed.Seconds())
	c.jobsDue.Set(float64(due))
	c.lastScanUnix.Set(float64(finished.Unix()))
}
