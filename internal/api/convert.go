package api

import (
	"slices"
	"time"

	"dripfeed/internal/catalog"
	"dripfeed/internal/processor"
	"dripfeed/internal/queue"
)

// FromJob converts a queue record to its API representation.
func FromJob(job *queue.Job) Job {
	if job == nil {
		return Job{}
	}
	dto := Job{
		ID:             job.ID,
		AppName:        job.Target.AppName,
		Platform:       job.Target.Platform,
		DeviceID:       job.Target.DeviceID,
		Owner:          job.Owner,
		Status:         string(job.Status),
		RemainingSteps: job.Steps.Names(),
		StepsDone:      job.StepsDone,
		DelayMin:       job.DelayMin,
		DelayMax:       job.DelayMax,
		LastStep:       job.LastStep,
		LastResultCode: job.LastResultCode,
		LastResultText: job.LastResultText,
		CreatedAt:      formatTime(job.CreatedAt),
		UpdatedAt:      formatTime(job.UpdatedAt),
	}
	if job.Status == queue.StatusPending {
		dto.NextDueAt = formatTime(job.NextDueAt)
	}
	return dto
}

// FromJobs converts a slice of queue records.
func FromJobs(jobs []*queue.Job) []Job {
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		if job == nil {
			continue
		}
		out = append(out, FromJob(job))
	}
	return out
}

// FromHealth converts queue health into a QueueStatus, filling every known
// status so consumers see zero counts explicitly.
func FromHealth(health queue.HealthSummary, stats map[queue.Status]int) QueueStatus {
	byStatus := map[string]int{
		string(queue.StatusPending):   0,
		string(queue.StatusCompleted): 0,
	}
	for status, count := range stats {
		byStatus[string(status)] = count
	}
	return QueueStatus{
		Total:        health.Total,
		Pending:      health.Pending,
		Due:          health.Due,
		Completed:    health.Completed,
		StepsPending: health.StepsPending,
		NextDueAt:    formatTime(health.NextDueAt),
		ByStatus:     byStatus,
	}
}

// StatusKeys returns the status names in a stable order.
func (s QueueStatus) StatusKeys() []string {
	keys := make([]string, 0, len(s.ByStatus))
	for key := range s.ByStatus {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// FromCatalogApp converts a catalog entry, listing its events by name.
func FromCatalogApp(app catalog.App) CatalogApp {
	method := "POST"
	if app.UseGet {
		method = "GET"
	}
	return CatalogApp{Name: app.Name, Method: method, Events: app.EventNames()}
}

// FromCatalogApps converts catalog entries in their given order.
func FromCatalogApps(apps []catalog.App) []CatalogApp {
	out := make([]CatalogApp, 0, len(apps))
	for _, app := range apps {
		out = append(out, FromCatalogApp(app))
	}
	return out
}

// FromSummary converts a processor scan summary.
func FromSummary(summary processor.Summary, finished time.Time) ScanSummary {
	return ScanSummary{
		ScanID:     summary.ScanID,
		Status:     string(summary.Status),
		Processed:  summary.Processed,
		Due:        summary.Due,
		Completed:  summary.Completed,
		Failed:     summary.Failed,
		Skipped:    summary.Skipped,
		FinishedAt: formatTime(finished),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
