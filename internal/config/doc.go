// Package config loads, normalizes, and validates dripfeed configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// DRIPFEED_CONFIG and DRIPFEED_ENDPOINT. The Config type centralizes every knob
// the daemon and CLI need so the queue database, executor endpoint, and
// notification targets are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
