// Package preflight provides readiness checks for the filesystem, queue
// database, executor endpoint, and app catalog that dripfeed depends on.
//
// The CLI "doctor" command runs RunAll and renders the results; individual
// checks are reused by "config validate". Checks never mutate the queue.
package preflight
