// Package main hosts the dripfeed CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the daemon, triggers one-off scans, and
// manages the queue database directly. Queue commands go through the same
// job service the daemon's HTTP API uses, so validation and catalog
// resolution behave identically from either surface.
package main
