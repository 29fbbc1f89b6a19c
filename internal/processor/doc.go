// Package processor runs scan passes over the durable queue.
//
// Each RunOnce call selects the jobs that are due, leases every one of them
// with a revision compare-and-swap, sends exactly one head step per job to the
// Executor and writes the remainder back with a fresh random due time measured
// from the moment the step finished. Missed time is never made up: a job that
// has been overdue for days still advances by a single step.
//
// Execution failures advance the job like successes. A failed write after the
// step was sent leaves the lease to expire, so the step is delivered again on
// a later scan.
package processor
