// Package daemon coordinates the long-running dripfeed process.
//
// It owns the single-instance flock, drives the processor on a fixed poll
// interval, keeps the app catalog fresh, prunes old completed jobs, and serves
// the HTTP API (status, jobs, manual tick, Prometheus metrics).
//
// Keep orchestration logic here: scan semantics live in the processor and
// persistence in the queue package.
package daemon
