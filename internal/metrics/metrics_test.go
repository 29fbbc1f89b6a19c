package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dripfeed/internal/metrics"
)

func findFamily(t *testing.T, families []*dto.MetricFamily, name string) *dto.MetricFamily {
	t.Helper()
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	t.Fatalf("metric family %s not found", name)
	return nil
}

func TestRecordStepCountsByOutcome(t *testing.T) {
	c := metrics.NewCollector()

	c.RecordStep(metrics.OutcomeSuccess, 120*time.Millisecond)
	c.RecordStep(metrics.OutcomeSuccess, 80*time.Millisecond)
	c.RecordStep(metrics.OutcomeFailure, time.Second)

	families, err := c.Registry().Gather()
	require.NoError(t, err)

	steps := findFamily(t, families, "dripfeed_steps_executed_total")
	counts := map[string]float64{}
	for _, m := range steps.GetMetric() {
		counts[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}
	assert.Equal(t, 2.0, counts[metrics.OutcomeSuccess])
	assert.Equal(t, 1.0, counts[metrics.OutcomeFailure])

	latency := findFamily(t, families, "dripfeed_execute_duration_seconds")
	require.Len(t, latency.GetMetric(), 1)
	assert.Equal(t, uint64(3), latency.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestRecordScanSetsGauges(t *testing.T) {
	c := metrics.NewCollector()
	finished := time.Unix(1_700_000_000, 0)

	c.RecordScan("active", 4, 50*time.Millisecond, finished)
	c.RecordScan("idle", 0, time.Millisecond, finished.Add(time.Minute))

	families, err := c.Registry().Gather()
	require.NoError(t, err)
	due := findFamily(t, families, "dripfeed_jobs_due")
	assert.Equal(t, 0.0, due.GetMetric()[0].GetGauge().GetValue())
	last := findFamily(t, families, "dripfeed_last_scan_timestamp_seconds")
	assert.Equal(t, float64(finished.Add(time.Minute).Unix()), last.GetMetric()[0].GetGauge().GetValue())
}

func TestCountersIncrement(t *testing.T) {
	c := metrics.NewCollector()
	c.RecordJobCompleted()
	c.RecordJobSubmitted()
	c.RecordJobSubmitted()
	c.RecordClaimConflict()
	c.RecordNotificationDropped()
	c.RecordStorageError("update")
	c.RecordStorageError("update")
	c.RecordStorageError("due_jobs")

	count, err := testutil.GatherAndCount(c.Registry(), "dripfeed_jobs_completed_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	families, err := c.Registry().Gather()
	require.NoError(t, err)
	assert.Equal(t, 2.0, findFamily(t, families, "dripfeed_jobs_submitted_total").GetMetric()[0].GetCounter().GetValue())
	assert.Len(t, findFamily(t, families, "dripfeed_storage_errors_total").GetMetric(), 2)
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *metrics.Collector
	assert.NotPanics(t, func() {
		c.RecordStep(metrics.OutcomeTimeout, time.Second)
		c.RecordJobCompleted()
		c.RecordJobSubmitted()
		c.RecordStorageError("update")
		c.RecordClaimConflict()
		c.RecordNotificationDropped()
		c.RecordScan("idle", 0, 0, time.Now())
	})
	assert.Nil(t, c.Registry())
}

func TestHandlerServesTextFormat(t *testing.T) {
	c := metrics.NewCollector()
	c.RecordJobCompleted()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "dripfeed_jobs_completed_total 1")
}
