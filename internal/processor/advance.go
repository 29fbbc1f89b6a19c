package processor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"dripfeed/internal/logging"
	"dripfeed/internal/metrics"
	"dripfeed/internal/notifications"
	"dripfeed/internal/queue"
	"dripfeed/internal/services"
)

const maxResultText = 500

type jobOutcome struct {
	processed bool
	completed bool
	failed    bool
	skipped   bool
}

// processJob advances one due job. Every failure stays inside this call.
func (p *Processor) processJob(ctx context.Context, job *queue.Job) (out jobOutcome) {
	ctx = services.WithJobID(ctx, job.ID)
	logger := logging.WithContext(ctx, p.logger)

	defer func() {
		if r := recover(); r != nil {
			out.failed = true
			logging.ErrorWithContext(logger, "job processing panicked", "job_panic",
				logging.String("panic", fmt.Sprint(r)),
				logging.String(logging.FieldImpact, "job left as stored; it is retried once its lease expires"),
			)
		}
	}()

	if len(job.Steps) == 0 {
		job.Status = queue.StatusCompleted
		if err := p.store.Update(ctx, job); err != nil {
			p.storageFailure(ctx, "update", job, err)
		} else {
			logger.Info("finalized job without remaining steps",
				logging.String(logging.FieldEventType, "job_finalized_empty"),
			)
		}
		out.skipped = true
		return out
	}

	leaseUntil := p.now().Add(p.execTimeout + p.claimGrace)
	claimed, err := p.store.Claim(ctx, job, leaseUntil)
	if err != nil {
		p.storageFailure(ctx, "claim", job, err)
		out.skipped = true
		return out
	}
	if !claimed {
		p.metrics.RecordClaimConflict()
		logger.Debug("job claimed by a concurrent scan",
			logging.String(logging.FieldEventType, "claim_conflict"),
		)
		out.skipped = true
		return out
	}

	step, rest := job.Steps.Pop()
	stepLogger := logger.With(logging.String(logging.FieldStep, step.Name))

	started := time.Now()
	code, text, outcome := p.execute(ctx, job.Target, step.Payload)
	p.metrics.RecordStep(outcome, time.Since(started))

	if ctx.Err() != nil {
		// Scan cancelled mid-step: leave the lease to expire so the step is resent.
		logging.WarnWithContext(stepLogger, "scan cancelled before step was recorded", "step_abandoned",
			logging.Error(ctx.Err()),
			logging.String(logging.FieldImpact, "step is resent after the lease expires"),
		)
		out.skipped = true
		return out
	}

	job.Steps = rest
	job.StepsDone++
	job.LastStep = step.Name
	job.LastResultCode = code
	job.LastResultText = truncate(text, maxResultText)
	if len(rest) == 0 {
		job.Status = queue.StatusCompleted
		job.NextDueAt = time.Time{}
	} else {
		job.Status = queue.StatusPending
		job.NextDueAt = p.now().Add(p.delay(job.DelayMin, job.DelayMax))
	}

	out.processed = true
	out.failed = outcome != metrics.OutcomeSuccess

	if err := p.store.Update(ctx, job); err != nil {
		if errors.Is(err, queue.ErrConflict) {
			p.metrics.RecordClaimConflict()
			logging.WarnWithContext(stepLogger, "job advanced by another scan after lease expiry", "update_conflict",
				logging.Error(err),
				logging.String(logging.FieldImpact, "newer claim kept; this step may have been sent twice"),
			)
			return out
		}
		p.storageFailure(ctx, "update", job, err)
		return out
	}

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "step_executed"),
		logging.String("app", job.Target.AppName),
		logging.Int("code", code),
		logging.String("outcome", outcome),
		logging.Int("remaining", len(rest)),
	}
	if job.Status == queue.StatusPending {
		attrs = append(attrs, logging.String("next_due_at", job.NextDueAt.Format(time.RFC3339)))
	}
	if out.failed {
		attrs = append(attrs, logging.String("result", job.LastResultText))
		logging.WarnWithContext(stepLogger, "step executed with failure", "step_failed", attrs...)
	} else {
		stepLogger.Info("step executed", logging.Args(attrs...)...)
	}

	payload := notifications.Payload{
		"jobID":     job.ID,
		"app":       job.Target.AppName,
		"step":      step.Name,
		"code":      code,
		"remaining": len(rest),
		"owner":     job.Owner,
	}
	if out.failed {
		payload["text"] = job.LastResultText
	}
	if job.Status == queue.StatusPending {
		payload["nextDueAt"] = job.NextDueAt
	}
	event := notifications.EventStepExecuted
	if out.failed {
		event = notifications.EventStepFailed
	}
	p.publish(ctx, event, payload)

	if job.Status == queue.StatusCompleted {
		out.completed = true
		p.metrics.RecordJobCompleted()
		stepLogger.Info("job completed",
			logging.String(logging.FieldEventType, "job_completed"),
			logging.Int("steps_done", job.StepsDone),
		)
		p.publish(ctx, notifications.EventJobCompleted, notifications.Payload{
			"jobID": job.ID,
			"app":   job.Target.AppName,
			"owner": job.Owner,
		})
	}
	return out
}

// execute runs the executor under the per-step timeout. The call happens on
// its own goroutine so an executor that ignores ctx still cannot stall the scan.
func (p *Processor) execute(ctx context.Context, target queue.Target, payload string) (int, string, string) {
	execCtx, cancel := context.WithTimeout(ctx, p.execTimeout)
	defer cancel()

	type result struct {
		code int
		text string
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{text: fmt.Sprintf("executor panic: %v", r)}
			}
		}()
		code, text := p.exec.Execute(execCtx, target, payload)
		done <- result{code: code, text: text}
	}()

	select {
	case res := <-done:
		if res.code == 0 && errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return res.code, res.text, metrics.OutcomeTimeout
		}
		if res.code >= 200 && res.code < 300 {
			return res.code, res.text, metrics.OutcomeSuccess
		}
		return res.code, res.text, metrics.OutcomeFailure
	case <-execCtx.Done():
		return 0, fmt.Sprintf("execution timed out after %s", p.execTimeout), metrics.OutcomeTimeout
	}
}

// delay draws a uniform delay between the job's bounds, given in hours.
func (p *Processor) delay(minHours, maxHours float64) time.Duration {
	if maxHours < minHours {
		minHours, maxHours = maxHours, minHours
	}
	hours := minHours + (maxHours-minHours)*p.sample()
	switch {
	case math.IsNaN(hours) || hours < 0:
		hours = 0
	case hours > queue.MaxDelayHours:
		hours = queue.MaxDelayHours
	}
	return time.Duration(hours * float64(time.Hour))
}

func (p *Processor) storageFailure(ctx context.Context, op string, job *queue.Job, err error) {
	p.metrics.RecordStorageError(op)
	logging.ErrorWithContext(logging.WithContext(ctx, p.logger), "queue "+op+" failed", "queue_"+op+"_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorKind, services.Kind(err)),
		logging.String(logging.FieldErrorHint, "check queue database access"),
		logging.String(logging.FieldImpact, "job keeps its stored state; the step may be sent again"),
	)
	p.publish(ctx, notifications.EventStorageError, notifications.Payload{
		"op":    op,
		"jobID": job.ID,
		"error": err,
	})
}

// truncate cuts value to at most limit bytes without splitting a rune.
func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	for limit > 0 && !utf8.RuneStart(value[limit]) {
		limit--
	}
	return value[:limit]
}
