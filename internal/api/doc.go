// Package api defines wire-format types and the job service shared by the
// HTTP API and the CLI. It translates queue models into transport-friendly
// DTOs so consumers never couple to internal types.
//
// # Key Types
//
// Job: transport representation of a queued sequence with remaining step
// names, last result, and schedule.
//
// QueueStatus: aggregate counts and the earliest upcoming due time.
//
// SubmitRequest: a new job, given either as explicit name/token steps or as
// event names resolved through the app catalog.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Step tokens and app credentials are never
// echoed back. Timestamps use RFC3339 with milliseconds.
package api
