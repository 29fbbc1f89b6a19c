// Package services defines shared utilities consumed by the queue, processor,
// and API layers.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, scan IDs, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures (validation, configuration, not found) without string matching.
package services
