// Package notifications publishes job lifecycle events (step executed, step
// failed, sequence finished, storage errors) to ntfy topics and Discord
// webhooks.
//
// NewService composes the configured transports and filters events by the
// [notifications] toggles; with nothing configured it returns a noop. The
// processor never talks to a transport directly: it goes through a
// Dispatcher, which buffers, rate limits, and sends on its own goroutine so a
// slow or unreachable channel cannot stall a scan.
package notifications
