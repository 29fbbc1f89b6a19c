// Package executor delivers a single step to the configured collection
// endpoint over HTTP.
//
// The Client never returns an error: transport failures, timeouts and
// non-2xx responses surface as a result code and text so the scan loop can
// record them and move on. A zero code means no HTTP response was received.
package executor
